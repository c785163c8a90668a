package write_buffer

import (
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"go.uber.org/zap"
)

// SpanBuffer batches finished spans for a Flusher. It is the tracer's Transmitter.
type SpanBuffer struct {
	*WriteBufferImpl[model.Span]
}

func NewSpanBuffer(flusher Flusher[model.Span], config Config, metrics *Metrics, logger *zap.Logger) *SpanBuffer {
	return &SpanBuffer{
		WriteBufferImpl: NewWriteBufferImpl[model.Span](flusher, config, metrics, logger),
	}
}

func (b *SpanBuffer) Transmit(span model.Span) {
	if err := b.WriteToBuffer(span); err != nil {
		b.logger.Debug("Dropping span", zap.String("span_id", span.SpanID), zap.Error(err))
	}
}
