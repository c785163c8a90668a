// Package sdk lets applications create spans by hand, for code that no
// instrumentation covers. SDK spans are recorded even when automatic
// instrumentation is switched off.
package sdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/trace/propagation"
	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"go.uber.org/zap"
)

const (
	spanName = "sdk"
	category = "sdk"

	// frames between the application and StartSpan
	startStackSkip = 2
	withStackSkip  = 3
)

var kindNames = map[model.SpanKind]string{
	model.Entry:        "entry",
	model.Exit:         "exit",
	model.Intermediate: "intermediate",
}

type SDK struct {
	tracer     *service.Tracer
	propagator *propagation.Propagator
	logger     *zap.Logger
}

func New(tracer *service.Tracer, propagator *propagation.Propagator, logger *zap.Logger) *SDK {
	return &SDK{
		tracer:     tracer,
		propagator: propagator,
		logger:     logger,
	}
}

type options struct {
	tags    map[string]interface{}
	remote  model.SpanContext
	carrier propagation.Carrier
}

type Option func(*options)

// WithTags attaches custom tags, stored under data.sdk.custom.tags.
func WithTags(tags map[string]interface{}) Option {
	return func(o *options) {
		o.tags = tags
	}
}

// WithParent continues a trace that arrived by means no instrumentation knows
// about. Only entry spans honour it.
func WithParent(traceID string, parentSpanID string) Option {
	return func(o *options) {
		o.remote = model.SpanContext{TraceID: traceID, ParentID: parentSpanID}
	}
}

// WithCarrier reads the parent and the tracing level from carrier. Only entry
// spans honour it.
func WithCarrier(carrier propagation.Carrier) Option {
	return func(o *options) {
		o.carrier = carrier
	}
}

// StartEntrySpan opens a fresh execution context with an ENTRY span active in
// it. The span is a root span unless WithParent or WithCarrier links it to a
// caller. Starting an entry span while another span is active is ignored.
func (s *SDK) StartEntrySpan(ctx context.Context, name string, opts ...Option) context.Context {
	spanCtx, _ := s.start(ctx, name, model.Entry, opts, startStackSkip)
	return spanCtx
}

// StartIntermediateSpan opens a fresh execution context with an INTERMEDIATE
// span active in it, a child of ctx's active span or the root of a new trace.
func (s *SDK) StartIntermediateSpan(ctx context.Context, name string, opts ...Option) context.Context {
	spanCtx, _ := s.start(ctx, name, model.Intermediate, opts, startStackSkip)
	return spanCtx
}

// StartExitSpan opens a fresh execution context with an EXIT span active in
// it, a child of ctx's active span or the root of a new trace.
func (s *SDK) StartExitSpan(ctx context.Context, name string, opts ...Option) context.Context {
	spanCtx, _ := s.start(ctx, name, model.Exit, opts, startStackSkip)
	return spanCtx
}

func (s *SDK) CompleteEntrySpan(ctx context.Context, err error, tags map[string]interface{}) {
	s.complete(ctx, model.Entry, err, tags)
}

func (s *SDK) CompleteIntermediateSpan(ctx context.Context, err error, tags map[string]interface{}) {
	s.complete(ctx, model.Intermediate, err, tags)
}

func (s *SDK) CompleteExitSpan(ctx context.Context, err error, tags map[string]interface{}) {
	s.complete(ctx, model.Exit, err, tags)
}

// WithEntrySpan runs fn under an entry span and completes the span with fn's error.
func (s *SDK) WithEntrySpan(ctx context.Context, name string, fn func(ctx context.Context) error, opts ...Option) error {
	return s.with(ctx, name, model.Entry, fn, opts)
}

func (s *SDK) WithIntermediateSpan(ctx context.Context, name string, fn func(ctx context.Context) error, opts ...Option) error {
	return s.with(ctx, name, model.Intermediate, fn, opts)
}

func (s *SDK) WithExitSpan(ctx context.Context, name string, fn func(ctx context.Context) error, opts ...Option) error {
	return s.with(ctx, name, model.Exit, fn, opts)
}

// Inject writes the context of ctx's active span into carrier, so a manually
// traced exit call can be continued by the callee.
func (s *SDK) Inject(ctx context.Context, carrier propagation.Carrier) {
	s.propagator.Inject(ctx, carrier, s.tracer.CurrentSpan(ctx))
}

func (s *SDK) with(ctx context.Context, name string, kind model.SpanKind, fn func(ctx context.Context) error, opts []Option) (err error) {
	spanCtx, span := s.start(ctx, name, kind, opts, withStackSkip)
	defer func() {
		if r := recover(); r != nil {
			span.EndWithError(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	err = fn(spanCtx)
	span.EndWithError(err)
	return err
}

// start returns the context the span is active in. When no span is started,
// the context is marked so that completing it leaves the enclosing span alone.
func (s *SDK) start(ctx context.Context, name string, kind model.SpanKind, opts []Option, stackSkip int) (context.Context, *service.Span) {
	options := options{}
	for _, opt := range opts {
		opt(&options)
	}

	spanCtx := s.tracer.NewContext(ctx)
	parent, hasParent := service.ActiveSpan(spanCtx)
	switch {
	case kind == model.Entry && hasParent:
		s.logger.Warn("Not starting an entry span while another span is active",
			zap.String("name", name),
			zap.String("active_span", parent.Name()),
		)
		return skipped(spanCtx), service.NoopSpan()
	case kind != model.Entry && hasParent && parent.IsExit():
		s.logger.Warn("Not starting a span below an exit span",
			zap.String("name", name),
			zap.String("kind", kindNames[kind]),
		)
		return skipped(spanCtx), service.NoopSpan()
	}

	startOptions := []service.StartOption{
		service.WithStackSkip(stackSkip),
		service.WithCategory(category),
		service.WithData(category, "name", name),
		service.WithData(category, "type", kindNames[kind]),
	}
	if kind == model.Entry {
		remote, ok := s.remoteParent(spanCtx, options)
		if ok {
			startOptions = append(startOptions, service.WithRemoteParent(remote))
		}
	}
	span := s.tracer.StartSpan(spanCtx, spanName, kind, startOptions...)
	if span.IsNoop() {
		return skipped(spanCtx), span
	}
	if len(options.tags) > 0 {
		span.SetData(category, "custom", map[string]interface{}{"tags": options.tags})
	}
	if ctx.Value(skippedKey{}) != nil {
		spanCtx = context.WithValue(spanCtx, skippedKey{}, false)
	}
	return spanCtx, span
}

type skippedKey struct{}

func skipped(ctx context.Context) context.Context {
	return context.WithValue(ctx, skippedKey{}, true)
}

func (s *SDK) remoteParent(ctx context.Context, options options) (model.SpanContext, bool) {
	if options.carrier != nil {
		return s.propagator.ExtractContext(ctx, options.carrier)
	}
	if options.remote.TraceID == "" && options.remote.ParentID == "" {
		return model.SpanContext{}, false
	}
	if !propagation.IsValidID(options.remote.TraceID) || !propagation.IsValidID(options.remote.ParentID) {
		s.logger.Debug("Ignoring malformed parent of an entry span",
			zap.String("trace_id", options.remote.TraceID),
			zap.String("parent_span_id", options.remote.ParentID),
			zap.Error(propagation.ErrMalformedCarrier),
		)
		return model.SpanContext{}, false
	}
	return options.remote, true
}

func (s *SDK) complete(ctx context.Context, kind model.SpanKind, err error, tags map[string]interface{}) {
	if isSkipped, _ := ctx.Value(skippedKey{}).(bool); isSkipped {
		return
	}
	span, ok := service.ActiveSpan(ctx)
	if !ok {
		s.logger.Debug("Ignoring completion of a span that is not active",
			zap.String("kind", kindNames[kind]),
			zap.Error(ErrNoActiveSpan),
		)
		return
	}
	if span.Kind() != kind || span.Name() != spanName {
		s.logger.Warn("Ignoring completion of a span of another kind",
			zap.String("kind", kindNames[kind]),
			zap.String("active_span", span.Name()),
			zap.String("active_kind", kindNames[span.Kind()]),
			zap.Error(ErrKindMismatch),
		)
		return
	}
	if len(tags) > 0 {
		merged := map[string]interface{}{}
		if custom, ok := span.Record().Data.Get(category, "custom").(map[string]interface{}); ok {
			if existing, ok := custom["tags"].(map[string]interface{}); ok {
				for key, value := range existing {
					merged[key] = value
				}
			}
		}
		for key, value := range tags {
			merged[key] = value
		}
		span.SetData(category, "custom", map[string]interface{}{"tags": merged})
	}
	span.EndWithError(err)
}

var (
	ErrNoActiveSpan = errors.New("no active sdk span")
	ErrKindMismatch = errors.New("active span has another kind")
)
