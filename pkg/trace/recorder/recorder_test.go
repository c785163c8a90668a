package recorder

import (
	"testing"

	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	t.Run("Keeps spans in transmission order", func(t *testing.T) {
		r := NewRecorder()
		r.Transmit(model.Span{SpanID: "1"})
		r.TransmitBatch([]model.Span{{SpanID: "2"}, {SpanID: "3"}})
		spans := r.Spans()
		assert.Len(t, spans, 3)
		assert.Equal(t, "1", spans[0].SpanID)
		assert.Equal(t, "3", spans[2].SpanID)
	})

	t.Run("Groups spans by trace id", func(t *testing.T) {
		r := NewRecorder()
		r.Transmit(model.Span{TraceID: "a", SpanID: "1"})
		r.Transmit(model.Span{TraceID: "b", SpanID: "2"})
		r.Transmit(model.Span{TraceID: "a", SpanID: "3"})
		grouped := r.SpansByTraceID()
		assert.Len(t, grouped["a"], 2)
		assert.Len(t, grouped["b"], 1)
	})

	t.Run("Finds spans matching every predicate", func(t *testing.T) {
		r := NewRecorder()
		r.Transmit(model.Span{Name: "sqs", Kind: model.Exit})
		r.Transmit(model.Span{Name: "sqs", Kind: model.Entry})
		r.Transmit(model.Span{Name: "g.http", Kind: model.Entry})
		matches := r.Find(WithName("sqs"), WithKind(model.Entry))
		assert.Len(t, matches, 1)
	})

	t.Run("Forgets everything on reset", func(t *testing.T) {
		r := NewRecorder()
		r.Transmit(model.Span{})
		r.Reset()
		assert.Equal(t, 0, r.Len())
	})
}
