package propagation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"go.uber.org/zap"
)

const maxIDLength = 32

// Propagator moves trace identifiers and the suppression flag between an
// execution context and a Carrier.
type Propagator struct {
	tracer *service.Tracer
	logger *zap.Logger
}

func NewPropagator(tracer *service.Tracer, logger *zap.Logger) *Propagator {
	return &Propagator{
		tracer: tracer,
		logger: logger,
	}
}

// InjectSuppression marks carrier as suppressed if tracing is suppressed for
// ctx, and reports whether it did. Nothing else is written in that case.
func (p *Propagator) InjectSuppression(ctx context.Context, carrier Carrier) bool {
	if carrier == nil || !p.tracer.TracingSuppressed(ctx) {
		return false
	}
	carrier.Set(TraceLevelKey, LevelSuppressed)
	return true
}

// InjectContext writes span's identifiers and the enabled level into carrier.
func (p *Propagator) InjectContext(carrier Carrier, span *service.Span) {
	if carrier == nil || span == nil || span.IsNoop() {
		return
	}
	spanContext := span.Propagate()
	carrier.Set(TraceIDKey, spanContext.TraceID)
	carrier.Set(SpanIDKey, spanContext.ParentID)
	carrier.Set(TraceLevelKey, LevelEnabled)
}

// Inject writes suppression if it applies to ctx, otherwise span's context.
func (p *Propagator) Inject(ctx context.Context, carrier Carrier, span *service.Span) {
	if p.InjectSuppression(ctx, carrier) {
		return
	}
	p.InjectContext(carrier, span)
}

// ExtractContext reads an inbound carrier. A suppressed level switches
// tracing off for ctx's execution context and yields no context; missing or
// malformed identifiers also yield no context.
func (p *Propagator) ExtractContext(ctx context.Context, carrier Carrier) (model.SpanContext, bool) {
	if carrier == nil {
		return model.SpanContext{}, false
	}
	if rawLevel, ok := carrier.Get(TraceLevelKey); ok {
		level, err := ParseLevel(rawLevel)
		if err != nil {
			p.logger.Debug("Ignoring trace level", zap.String("level", rawLevel), zap.Error(err))
		} else if level == service.TracingLevelSuppressed {
			if err := p.tracer.SetTracingLevel(ctx, service.TracingLevelSuppressed); err != nil {
				p.logger.Debug("Unable to suppress tracing for inbound carrier", zap.Error(err))
			}
			return model.SpanContext{}, false
		}
	}

	traceID, hasTraceID := carrier.Get(TraceIDKey)
	spanID, hasSpanID := carrier.Get(SpanIDKey)
	if !hasTraceID && !hasSpanID {
		return model.SpanContext{}, false
	}
	if !IsValidID(traceID) || !IsValidID(spanID) {
		p.logger.Debug("Ignoring carrier identifiers",
			zap.String("trace_id", traceID),
			zap.String("span_id", spanID),
			zap.Error(ErrMalformedCarrier),
		)
		return model.SpanContext{}, false
	}
	return model.SpanContext{TraceID: traceID, ParentID: spanID}, true
}

// ParseLevel reads a trace level value. Anything after the first comma
// (correlation data) is ignored.
func ParseLevel(value string) (service.TracingLevel, error) {
	level, _, _ := strings.Cut(value, ",")
	switch strings.TrimSpace(level) {
	case LevelSuppressed:
		return service.TracingLevelSuppressed, nil
	case LevelEnabled:
		return service.TracingLevelEnabled, nil
	default:
		return service.TracingLevelEnabled, fmt.Errorf("unknown trace level %q: %w", value, ErrMalformedCarrier)
	}
}

// IsValidID reports whether id is 1 to 32 hex digits.
func IsValidID(id string) bool {
	if len(id) == 0 || len(id) > maxIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
		if !isHex {
			return false
		}
	}
	return true
}

var ErrMalformedCarrier = errors.New("malformed carrier")
