package service

import (
	"sync"
	"time"

	"github.com/Avi18971911/AugurSensor/pkg/execution_context"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"go.uber.org/zap"
)

// Span is a live, not yet transmitted span. All methods are safe on the
// no-op span returned when tracing is off or misused.
type Span struct {
	tracer    *Tracer
	scope     *execution_context.Scope[*Span]
	previous  *Span
	category  string
	startedAt time.Time
	noop      bool

	mu          sync.Mutex
	record      model.Span
	state       model.LifecycleState
	autoEnd     bool
	speculative bool
}

var noopSpan = &Span{noop: true, record: model.Span{Data: model.SpanData{}}}

// NoopSpan returns the span handed out whenever nothing is traced.
func NoopSpan() *Span {
	return noopSpan
}

func (s *Span) IsNoop() bool {
	return s.noop
}

func (s *Span) TraceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.TraceID
}

func (s *Span) SpanID() string {
	return s.record.SpanID
}

func (s *Span) ParentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.ParentID
}

func (s *Span) Name() string {
	return s.record.Name
}

func (s *Span) Kind() model.SpanKind {
	return s.record.Kind
}

func (s *Span) IsExit() bool {
	return !s.noop && s.record.Kind == model.Exit
}

func (s *Span) State() model.LifecycleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Span) StartTime() time.Time {
	return s.startedAt
}

// Record returns a copy of the span's current record.
func (s *Span) Record() model.Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Propagate returns the context a downstream span should link to. Once called,
// the span's identifiers are fixed.
func (s *Span) Propagate() model.SpanContext {
	if s.noop {
		return model.SpanContext{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speculative = false
	return model.SpanContext{TraceID: s.record.TraceID, ParentID: s.record.SpanID}
}

// Adopt re-links a speculative span to an inbound carrier's context, replacing
// any local parent. It only succeeds once, before any child or carrier has
// seen the span's ids.
func (s *Span) Adopt(remote model.SpanContext) bool {
	if s.noop || !remote.IsValid() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.speculative || s.state != model.Active {
		return false
	}
	s.record.TraceID = remote.TraceID
	s.record.ParentID = remote.ParentID
	s.speculative = false
	return true
}

// SetData stores a payload attribute. Ignored once the span has finished.
func (s *Span) SetData(category string, key string, value interface{}) {
	if s.noop {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != model.Active {
		return
	}
	s.record.Data.Set(category, key, value)
}

// AddError marks the span as failed and stores err's message. It does not end the span.
func (s *Span) AddError(err error) {
	if s.noop || err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != model.Active {
		return
	}
	s.record.ErrorCount = 1
	s.record.Data.Set(s.category, "error", err.Error())
}

func (s *Span) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.ErrorCount
}

// DisableAutoEnd hands responsibility for ending the span to the caller.
func (s *Span) DisableAutoEnd() {
	if s.noop {
		return
	}
	s.mu.Lock()
	wasEnabled := s.autoEnd && s.state == model.Active
	s.autoEnd = false
	s.mu.Unlock()
	if wasEnabled && s.tracer.watchdog != nil {
		s.tracer.watchdog.Watch(s)
	}
}

func (s *Span) AutoEnd() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoEnd
}

// Complete is the natural completion point of a wrapped operation: err is
// recorded, and the span ends unless auto end was disabled.
func (s *Span) Complete(err error) {
	if s.noop {
		return
	}
	s.AddError(err)
	if s.AutoEnd() {
		s.End()
	}
}

// End transmits the span. Only the first End or Cancel has an effect.
func (s *Span) End() {
	s.finish(model.Ended, true)
}

// EndWithError records err, if any, and ends the span.
func (s *Span) EndWithError(err error) {
	s.AddError(err)
	s.End()
}

// Cancel drops the span; it is never transmitted.
func (s *Span) Cancel() {
	s.finish(model.Cancelled, true)
}

func (s *Span) finish(final model.LifecycleState, forgetWatch bool) bool {
	if s.noop {
		return false
	}
	s.mu.Lock()
	if s.state != model.Active {
		state := s.state
		s.mu.Unlock()
		s.tracer.logger.Debug("Ignoring repeated span completion",
			zap.String("span_id", s.record.SpanID),
			zap.Stringer("state", state),
			zap.Error(ErrSpanNotActive),
		)
		return false
	}
	s.state = final
	s.record.Duration = s.tracer.now().Sub(s.startedAt).Milliseconds()
	record := s.snapshot()
	autoEnd := s.autoEnd
	s.mu.Unlock()

	next := s.activeAncestor()
	s.scope.Replace(s, next, next != nil, func(a, b *Span) bool { return a == b })
	if forgetWatch && !autoEnd && s.tracer.watchdog != nil {
		s.tracer.watchdog.Forget(s)
	}

	switch final {
	case model.Ended:
		s.tracer.transmit(record)
	case model.Cancelled:
		s.tracer.metrics.cancelled()
	}
	return true
}

// activeAncestor returns the closest enclosing span that has not finished yet.
func (s *Span) activeAncestor() *Span {
	next := s.previous
	for next != nil && next.State() != model.Active {
		next = next.previous
	}
	return next
}

func (s *Span) snapshot() model.Span {
	record := s.record
	record.Data = make(model.SpanData, len(s.record.Data))
	for category, value := range s.record.Data {
		if attributes, ok := value.(map[string]interface{}); ok {
			copied := make(map[string]interface{}, len(attributes))
			for key, attribute := range attributes {
				copied[key] = attribute
			}
			record.Data[category] = copied
			continue
		}
		record.Data[category] = value
	}
	return record
}
