package instrumentation

import (
	"context"

	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/trace/propagation"
	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"go.uber.org/zap"
)

// ConsumeOperation describes a poll for inbound work.
type ConsumeOperation[R any] struct {
	Name    string
	Options []service.StartOption
	// Found returns how much work result holds. Zero cancels the span. A nil
	// Found treats every successful poll as work.
	Found func(result R) int
	// Carrier returns the trace carrier of the work in result, nil if it has none.
	Carrier  func(result R) propagation.Carrier
	Annotate func(span *service.Span, result R, err error)
}

// Consume polls for work under a speculative ENTRY span. If the poll finds
// nothing the span is cancelled. If the work carries a trace context the span
// adopts it, and a suppressed carrier cancels the span and switches tracing
// off for the rest of the flow. handle runs with the ENTRY span active, and
// the span ends when handle returns unless handle disabled auto end. handle
// may be nil.
func Consume[R any](
	ctx context.Context,
	s *Shim,
	op ConsumeOperation[R],
	poll func(ctx context.Context) (R, error),
	handle func(ctx context.Context, result R, err error),
) (R, error) {
	if !s.sw.IsActive() || s.tracer.TracingSuppressed(ctx) {
		result, err := poll(ctx)
		if handle != nil {
			handle(ctx, result, err)
		}
		return result, err
	}

	spanCtx := s.tracer.NewContext(ctx)
	startOptions := append([]service.StartOption{
		service.WithStackSkip(1),
		service.Speculative(),
	}, op.Options...)
	span := s.tracer.StartSpan(spanCtx, op.Name, model.Entry, startOptions...)

	// the poll runs outside the span's context so nothing pins the span's ids
	// before the work has been inspected
	result, err := pollWithSpan(span, ctx, poll)

	found := 1
	var carrier propagation.Carrier
	s.guard(span, func() {
		if err != nil {
			return
		}
		if op.Found != nil {
			found = op.Found(result)
		}
		if found > 0 && op.Carrier != nil {
			carrier = op.Carrier(result)
		}
	})
	if err == nil && found == 0 {
		span.Cancel()
		if handle != nil {
			handle(spanCtx, result, err)
		}
		return result, err
	}

	if carrier != nil {
		if remote, ok := s.propagator.ExtractContext(spanCtx, carrier); ok {
			span.Adopt(remote)
		} else if s.tracer.TracingSuppressed(spanCtx) {
			span.Cancel()
		}
	}
	if op.Annotate != nil {
		s.guard(span, func() {
			op.Annotate(span, result, err)
		})
	}
	span.AddError(err)

	if handle != nil {
		handleWithSpan(span, spanCtx, result, err, handle)
	}
	span.Complete(nil)
	return result, err
}

func pollWithSpan[R any](span *service.Span, ctx context.Context, poll func(ctx context.Context) (R, error)) (R, error) {
	defer EndOnPanic(span)
	return poll(ctx)
}

func handleWithSpan[R any](
	span *service.Span,
	ctx context.Context,
	result R,
	err error,
	handle func(ctx context.Context, result R, err error),
) {
	defer EndOnPanic(span)
	handle(ctx, result, err)
}

// guard runs instrumentation code, logging instead of propagating its panics.
func (s *Shim) guard(span *service.Span, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Recovered from instrumentation fault",
				zap.String("span_id", span.SpanID()),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}
