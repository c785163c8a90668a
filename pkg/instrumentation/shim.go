// Package instrumentation holds the generic recipe every library wrapper
// follows: decide whether to trace, open a span in a fresh execution context,
// inject the carrier, and complete the span when the wrapped operation
// completes, whether it reports back synchronously, through a callback or
// through a deferred value.
package instrumentation

import (
	"context"
	"fmt"

	"github.com/Avi18971911/AugurSensor/pkg/execution_context"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/trace/propagation"
	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"go.uber.org/zap"
)

// frames between the wrapper's caller and Tracer.StartSpan: begin, Call/CallAsync/CallDeferred
const shimStackSkip = 2

type Shim struct {
	name       string
	tracer     *service.Tracer
	propagator *propagation.Propagator
	logger     *zap.Logger
	sw         *Switch
}

func NewShim(name string, tracer *service.Tracer, propagator *propagation.Propagator, logger *zap.Logger) *Shim {
	return &Shim{
		name:       name,
		tracer:     tracer,
		propagator: propagator,
		logger:     logger,
		sw:         &Switch{},
	}
}

func (s *Shim) Name() string {
	return s.name
}

func (s *Shim) Switch() *Switch {
	return s.sw
}

func (s *Shim) Tracer() *service.Tracer {
	return s.tracer
}

func (s *Shim) Propagator() *propagation.Propagator {
	return s.propagator
}

func (s *Shim) Logger() *zap.Logger {
	return s.logger
}

// Operation describes one wrapped call.
type Operation[R any] struct {
	Name string
	Kind model.SpanKind
	// Carrier receives the outbound trace context. Optional.
	Carrier propagation.Carrier
	Options []service.StartOption
	// Annotate copies attributes of the outcome onto the span before it completes. Optional.
	Annotate func(span *service.Span, result R, err error)
}

func (op Operation[R]) kind() model.SpanKind {
	if op.Kind == 0 {
		return model.Exit
	}
	return op.Kind
}

// begin decides whether the call is traced. If it is, the span is active in
// the returned context; otherwise the caller must run the operation untouched.
func (s *Shim) begin(ctx context.Context, name string, kind model.SpanKind, carrier propagation.Carrier, opts []service.StartOption) (context.Context, *service.Span, bool) {
	if !s.sw.IsActive() {
		return ctx, nil, false
	}
	if s.tracer.TracingSuppressed(ctx) {
		s.propagator.InjectSuppression(ctx, carrier)
		return ctx, nil, false
	}
	parent, ok := service.ActiveSpan(ctx)
	if !ok || parent.IsExit() {
		return ctx, nil, false
	}

	spanCtx := s.tracer.NewContext(ctx)
	startOptions := append([]service.StartOption{service.WithStackSkip(shimStackSkip)}, opts...)
	span := s.tracer.StartSpan(spanCtx, name, kind, startOptions...)
	if span.IsNoop() {
		return ctx, nil, false
	}
	s.propagator.InjectContext(carrier, span)
	return spanCtx, span, true
}

// complete is the single completion path of every call variant.
func complete[R any](s *Shim, span *service.Span, op Operation[R], result R, err error) {
	if op.Annotate != nil {
		s.guard(span, func() {
			op.Annotate(span, result, err)
		})
	}
	span.Complete(err)
}

// EndOnPanic ends span with an error when the wrapped operation panics, then
// lets the panic continue. It must be deferred.
func EndOnPanic(span *service.Span) {
	if r := recover(); r != nil {
		span.EndWithError(fmt.Errorf("panic: %v", r))
		panic(r)
	}
}

// Call wraps an operation that reports its outcome by returning.
func Call[R any](ctx context.Context, s *Shim, op Operation[R], fn func(ctx context.Context) (R, error)) (R, error) {
	spanCtx, span, ok := s.begin(ctx, op.Name, op.kind(), op.Carrier, op.Options)
	if !ok {
		return fn(ctx)
	}
	defer EndOnPanic(span)
	result, err := fn(spanCtx)
	complete(s, span, op, result, err)
	return result, err
}

// CallAsync wraps an operation that reports its outcome through a callback.
// The span completes before callback runs; callback runs in the call's
// execution context, wherever the operation invokes it from.
func CallAsync[R any](
	ctx context.Context,
	s *Shim,
	op Operation[R],
	fn func(ctx context.Context, done func(R, error)),
	callback func(ctx context.Context, result R, err error),
) {
	spanCtx, span, ok := s.begin(ctx, op.Name, op.kind(), op.Carrier, op.Options)
	if !ok {
		fn(ctx, func(result R, err error) {
			if callback != nil {
				callback(ctx, result, err)
			}
		})
		return
	}
	done := execution_context.Bind2(spanCtx, func(ctx context.Context, result R, err error) {
		complete(s, span, op, result, err)
		if callback != nil {
			callback(ctx, result, err)
		}
	})
	defer EndOnPanic(span)
	fn(spanCtx, done)
}

// Deferred is the handle of an operation that settles later.
type Deferred interface {
	// OnSettled registers fn to run once the operation settles.
	OnSettled(fn func(err error))
}

// Rebinder is a Deferred whose chained continuations can be moved to another context.
type Rebinder interface {
	Rebind(ctx context.Context)
}

// CallDeferred wraps an operation that hands back a Deferred. The span
// completes when the Deferred settles, and continuations chained onto a
// Rebinder run in the call's execution context.
func CallDeferred[D Deferred](ctx context.Context, s *Shim, op Operation[D], fn func(ctx context.Context) D) D {
	spanCtx, span, ok := s.begin(ctx, op.Name, op.kind(), op.Carrier, op.Options)
	if !ok {
		return fn(ctx)
	}
	defer EndOnPanic(span)
	deferred := fn(spanCtx)
	deferred.OnSettled(execution_context.Bind1(spanCtx, func(_ context.Context, err error) {
		complete(s, span, op, deferred, err)
	}))
	if rebinder, ok := any(deferred).(Rebinder); ok {
		rebinder.Rebind(spanCtx)
	}
	return deferred
}

// Entry opens a fresh execution context for an inbound request and starts an
// ENTRY span in it, linked to carrier's trace context when there is one. The
// span is a no-op if the instrumentation is inactive or tracing is suppressed,
// including by the carrier itself.
func (s *Shim) Entry(ctx context.Context, name string, carrier propagation.Carrier, opts ...service.StartOption) (context.Context, *service.Span) {
	spanCtx := s.tracer.NewContext(ctx)
	if !s.sw.IsActive() {
		return spanCtx, service.NoopSpan()
	}
	startOptions := []service.StartOption{service.WithStackSkip(1)}
	if remote, ok := s.propagator.ExtractContext(spanCtx, carrier); ok {
		startOptions = append(startOptions, service.WithRemoteParent(remote))
	}
	startOptions = append(startOptions, opts...)
	return spanCtx, s.tracer.StartSpan(spanCtx, name, model.Entry, startOptions...)
}
