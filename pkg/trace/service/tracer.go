package service

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Avi18971911/AugurSensor/pkg/execution_context"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"go.uber.org/zap"
)

const defaultStackTraceLength = 10

// Transmitter accepts finished spans. It is fire-and-forget from the tracer's point of view.
type Transmitter interface {
	Transmit(span model.Span)
}

type TracingLevel int

const (
	TracingLevelSuppressed TracingLevel = 0
	TracingLevelEnabled    TracingLevel = 1
)

type Tracer struct {
	transmitter      Transmitter
	logger           *zap.Logger
	metrics          *Metrics
	watchdog         *AutoEndWatchdog
	disabled         atomic.Bool
	stackTraceLength int
	serviceName      string
	from             *model.From
	now              func() time.Time
}

type TracerOption func(*Tracer)

func WithStackTraceLength(length int) TracerOption {
	return func(t *Tracer) {
		t.stackTraceLength = length
	}
}

func WithServiceName(serviceName string) TracerOption {
	return func(t *Tracer) {
		t.serviceName = serviceName
	}
}

func WithHostID(hostID string) TracerOption {
	return func(t *Tracer) {
		t.from.HostID = hostID
	}
}

func WithMetrics(metrics *Metrics) TracerOption {
	return func(t *Tracer) {
		t.metrics = metrics
	}
}

func WithAutoEndWatchdog(watchdog *AutoEndWatchdog) TracerOption {
	return func(t *Tracer) {
		t.watchdog = watchdog
	}
}

func WithClock(now func() time.Time) TracerOption {
	return func(t *Tracer) {
		t.now = now
	}
}

func NewTracer(transmitter Transmitter, logger *zap.Logger, opts ...TracerOption) *Tracer {
	t := &Tracer{
		transmitter:      transmitter,
		logger:           logger,
		stackTraceLength: defaultStackTraceLength,
		from:             &model.From{EntityID: strconv.Itoa(os.Getpid())},
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetDisabled switches span creation off for the whole process.
func (t *Tracer) SetDisabled(disabled bool) {
	t.disabled.Store(disabled)
}

func (t *Tracer) IsDisabled() bool {
	return t.disabled.Load()
}

// NewContext returns a child of ctx with a fresh execution context.
func (t *Tracer) NewContext(ctx context.Context) context.Context {
	scopedCtx, _ := execution_context.Enter[*Span](ctx)
	return scopedCtx
}

// CurrentSpan returns the active span of ctx's execution context, or a no-op span.
func (t *Tracer) CurrentSpan(ctx context.Context) *Span {
	span, ok := ActiveSpan(ctx)
	if !ok {
		return noopSpan
	}
	return span
}

// TracingSuppressed reports whether span creation is off for ctx.
func (t *Tracer) TracingSuppressed(ctx context.Context) bool {
	if t.IsDisabled() {
		return true
	}
	scope, ok := execution_context.FromContext[*Span](ctx)
	return ok && scope.Suppressed()
}

// SetTracingLevel changes suppression for ctx's execution context and every
// context entered from it afterwards.
func (t *Tracer) SetTracingLevel(ctx context.Context, level TracingLevel) error {
	scope, ok := execution_context.FromContext[*Span](ctx)
	if !ok {
		return ErrNoActiveContext
	}
	scope.SetSuppressed(level == TracingLevelSuppressed)
	return nil
}

// StartSpan opens a span in ctx's execution context and makes it the active
// span there. Misuse (no execution context, suppressed tracing) yields a
// no-op span rather than an error.
func (t *Tracer) StartSpan(ctx context.Context, name string, kind model.SpanKind, opts ...StartOption) *Span {
	if t.IsDisabled() {
		return noopSpan
	}
	scope, ok := execution_context.FromContext[*Span](ctx)
	if !ok {
		t.logger.Debug("Ignoring span start outside of an execution context",
			zap.String("span_name", name),
			zap.Error(ErrNoActiveContext),
		)
		return noopSpan
	}
	if scope.Suppressed() {
		t.metrics.suppressed()
		return noopSpan
	}

	options := startOptions{category: name}
	for _, opt := range opts {
		opt(&options)
	}

	startedAt := t.now()
	if !options.startTime.IsZero() {
		startedAt = options.startTime
	}

	span := &Span{
		tracer:      t,
		scope:       scope,
		category:    options.category,
		startedAt:   startedAt,
		state:       model.Active,
		autoEnd:     true,
		speculative: options.speculative,
		record: model.Span{
			SpanID:    GenerateID(),
			Kind:      kind,
			Name:      name,
			Timestamp: startedAt.UnixMilli(),
			Data:      model.SpanData{},
			From:      t.from,
		},
	}

	parent, hasParent := scope.Active()
	if hasParent && parent.noop {
		hasParent = false
	}
	if hasParent {
		span.previous = parent
	}
	if options.remote.IsValid() {
		span.speculative = false
	}
	switch {
	case options.remote.IsValid():
		span.record.TraceID = options.remote.TraceID
		span.record.ParentID = options.remote.ParentID
	case hasParent:
		parentContext := parent.Propagate()
		span.record.TraceID = parentContext.TraceID
		span.record.ParentID = parentContext.ParentID
	default:
		span.record.TraceID = GenerateID()
	}

	if t.serviceName != "" {
		span.record.Data["service"] = t.serviceName
	}
	for category, attributes := range options.data {
		for key, value := range attributes {
			span.record.Data.Set(category, key, value)
		}
	}
	span.record.Stack = t.captureStack(options.stackSkip)

	scope.SetActive(span)
	t.metrics.started()
	return span
}

func (t *Tracer) transmit(record model.Span) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("Span transmission panicked", zap.Any("panic", r))
		}
	}()
	if t.transmitter == nil {
		return
	}
	t.transmitter.Transmit(record)
	t.metrics.transmitted()
}

func (t *Tracer) captureStack(skip int) []model.StackFrame {
	if t.stackTraceLength <= 0 {
		return nil
	}
	pcs := make([]uintptr, t.stackTraceLength)
	// runtime.Callers, captureStack, StartSpan
	n := runtime.Callers(3+skip, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]model.StackFrame, 0, n)
	for {
		frame, more := frames.Next()
		stack = append(stack, model.StackFrame{
			Method: frame.Function,
			File:   frame.File,
			Line:   frame.Line,
		})
		if !more {
			break
		}
	}
	return stack
}

// ActiveSpan returns the span active in ctx's execution context.
func ActiveSpan(ctx context.Context) (*Span, bool) {
	scope, ok := execution_context.FromContext[*Span](ctx)
	if !ok {
		return nil, false
	}
	span, ok := scope.Active()
	if !ok || span == nil || span.noop {
		return nil, false
	}
	return span, true
}

// Run calls fn inside a fresh execution context and returns its result.
func Run[R any](ctx context.Context, fn func(ctx context.Context) R) R {
	return execution_context.Run[*Span](ctx, fn)
}

var (
	ErrNoActiveContext = errors.New("no active execution context")
	ErrSpanNotActive   = errors.New("span is not active")
)
