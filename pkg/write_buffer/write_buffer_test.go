package write_buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriteBufferImpl_WriteToBuffer(t *testing.T) {
	t.Run("Flushes as soon as the force threshold is reached", func(t *testing.T) {
		flusher := newFakeFlusher[int]()
		wb := getNewWriteBuffer(flusher, Config{ForceFlushAt: 3, FlushInterval: time.Hour})
		defer wb.Close(context.Background())

		require.Nil(t, wb.WriteToBuffer(1, 2))
		require.Nil(t, wb.WriteToBuffer(3))

		assert.Equal(t, []int{1, 2, 3}, flusher.next(t))
	})

	t.Run("Flushes periodically", func(t *testing.T) {
		flusher := newFakeFlusher[int]()
		wb := getNewWriteBuffer(flusher, Config{ForceFlushAt: 100, FlushInterval: 10 * time.Millisecond})
		defer wb.Close(context.Background())

		require.Nil(t, wb.WriteToBuffer(7))

		assert.Equal(t, []int{7}, flusher.next(t))
	})

	t.Run("Drops values beyond the capacity", func(t *testing.T) {
		flusher := newFakeFlusher[int]()
		metrics := NewMetrics(prometheus.NewRegistry())
		wb := NewWriteBufferImpl[int](flusher, Config{ForceFlushAt: 10, FlushInterval: time.Hour, MaxBuffered: 2}, metrics, zap.NewNop())
		defer wb.Close(context.Background())

		require.Nil(t, wb.WriteToBuffer(1, 2, 3))

		assert.Equal(t, []int{1, 2}, flusher.next(t))
		assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Buffered))
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Dropped))
	})

	t.Run("Rejects writes once closed", func(t *testing.T) {
		wb := getNewWriteBuffer(newFakeFlusher[int](), Config{})
		require.Nil(t, wb.Close(context.Background()))

		assert.ErrorIs(t, wb.WriteToBuffer(1), ErrBufferClosed)
	})
}

func TestWriteBufferImpl_Flush(t *testing.T) {
	t.Run("Hands nothing to the flusher when empty", func(t *testing.T) {
		flusher := newFakeFlusher[int]()
		wb := getNewWriteBuffer(flusher, Config{FlushInterval: time.Hour})
		defer wb.Close(context.Background())

		require.Nil(t, wb.Flush(context.Background()))
		assert.Equal(t, 0, flusher.calls())
	})

	t.Run("Drops and counts a batch that failed to flush", func(t *testing.T) {
		flusher := newFakeFlusher[int]()
		flusher.err = assert.AnError
		metrics := NewMetrics(prometheus.NewRegistry())
		wb := NewWriteBufferImpl[int](flusher, Config{FlushInterval: time.Hour}, metrics, zap.NewNop())
		defer wb.Close(context.Background())
		require.Nil(t, wb.WriteToBuffer(1, 2))

		err := wb.Flush(context.Background())

		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 0, wb.Len())
		assert.Equal(t, float64(2), testutil.ToFloat64(metrics.FailedFlushes))
		assert.Equal(t, float64(0), testutil.ToFloat64(metrics.Flushed))
	})
}

func TestWriteBufferImpl_Close(t *testing.T) {
	t.Run("Flushes what is left", func(t *testing.T) {
		flusher := newFakeFlusher[int]()
		wb := getNewWriteBuffer(flusher, Config{FlushInterval: time.Hour})
		require.Nil(t, wb.WriteToBuffer(4, 5))

		require.Nil(t, wb.Close(context.Background()))

		assert.Equal(t, []int{4, 5}, flusher.next(t))
		require.Nil(t, wb.Close(context.Background()))
	})
}

func TestSpanBuffer_Transmit(t *testing.T) {
	t.Run("Collects the spans a tracer ends", func(t *testing.T) {
		flusher := newFakeFlusher[model.Span]()
		buffer := NewSpanBuffer(flusher, Config{FlushInterval: time.Hour}, nil, zap.NewNop())
		tracer := service.NewTracer(buffer, zap.NewNop())
		ctx := tracer.NewContext(context.Background())

		tracer.StartSpan(ctx, "sqs", model.Entry).End()
		require.Nil(t, buffer.Close(context.Background()))

		spans := flusher.next(t)
		require.Len(t, spans, 1)
		assert.Equal(t, "sqs", spans[0].Name)
	})
}

type fakeFlusher[ValueType any] struct {
	mu      sync.Mutex
	batches chan []ValueType
	count   int
	err     error
}

func newFakeFlusher[ValueType any]() *fakeFlusher[ValueType] {
	return &fakeFlusher[ValueType]{batches: make(chan []ValueType, 16)}
}

func (f *fakeFlusher[ValueType]) Flush(_ context.Context, values []ValueType) error {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches <- values
	return nil
}

func (f *fakeFlusher[ValueType]) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *fakeFlusher[ValueType]) next(t *testing.T) []ValueType {
	select {
	case batch := <-f.batches:
		return batch
	case <-time.After(time.Second):
		require.FailNow(t, "no batch was flushed")
		return nil
	}
}

func getNewWriteBuffer(flusher *fakeFlusher[int], config Config) *WriteBufferImpl[int] {
	return NewWriteBufferImpl[int](flusher, config, nil, zap.NewNop())
}
