package recorder

import (
	"sync"

	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
)

// Recorder keeps every transmitted span in memory. Used by tests and by the stub agent.
type Recorder struct {
	mu    sync.Mutex
	spans []model.Span
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Transmit(span model.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, span)
}

// TransmitBatch records a batch in order.
func (r *Recorder) TransmitBatch(spans []model.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, spans...)
}

func (r *Recorder) Spans() []model.Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	spans := make([]model.Span, len(r.spans))
	copy(spans, r.spans)
	return spans
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spans)
}

// SpansByTraceID groups the recorded spans by trace.
func (r *Recorder) SpansByTraceID() map[string][]model.Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	grouped := make(map[string][]model.Span)
	for _, span := range r.spans {
		grouped[span.TraceID] = append(grouped[span.TraceID], span)
	}
	return grouped
}

// Find returns the recorded spans matching every predicate.
func (r *Recorder) Find(predicates ...func(model.Span) bool) []model.Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []model.Span
	for _, span := range r.spans {
		matched := true
		for _, predicate := range predicates {
			if !predicate(span) {
				matched = false
				break
			}
		}
		if matched {
			matches = append(matches, span)
		}
	}
	return matches
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = nil
}

func WithName(name string) func(model.Span) bool {
	return func(span model.Span) bool {
		return span.Name == name
	}
}

func WithKind(kind model.SpanKind) func(model.Span) bool {
	return func(span model.Span) bool {
		return span.Kind == kind
	}
}
