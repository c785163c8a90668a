package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSpan_End(t *testing.T) {
	t.Run("Transmits the span once with its duration", func(t *testing.T) {
		now := time.UnixMilli(10_000)
		tracer, rec := newTestTracer(WithClock(func() time.Time { return now }))
		ctx := tracer.NewContext(context.Background())

		span := tracer.StartSpan(ctx, "sqs", model.Exit)
		now = now.Add(250 * time.Millisecond)
		span.End()
		span.End()
		span.Cancel()

		spans := rec.Spans()
		assert.Len(t, spans, 1)
		assert.Equal(t, int64(250), spans[0].Duration)
		assert.Equal(t, int64(10_000), spans[0].Timestamp)
		assert.Equal(t, model.Ended, span.State())
	})

	t.Run("Restores the previously active span", func(t *testing.T) {
		tracer, _ := newTestTracer()
		ctx := tracer.NewContext(context.Background())
		entry := tracer.StartSpan(ctx, "g.http", model.Entry)
		exit := tracer.StartSpan(ctx, "sqs", model.Exit)

		exit.End()
		assert.Same(t, entry, tracer.CurrentSpan(ctx))

		entry.End()
		_, ok := ActiveSpan(ctx)
		assert.False(t, ok)
	})

	t.Run("Leaves a newer active span in place when an older one ends", func(t *testing.T) {
		tracer, _ := newTestTracer()
		ctx := tracer.NewContext(context.Background())
		entry := tracer.StartSpan(ctx, "g.http", model.Entry)
		exit := tracer.StartSpan(ctx, "sqs", model.Exit)

		entry.End()
		assert.Same(t, exit, tracer.CurrentSpan(ctx))
	})

	t.Run("Skips finished ancestors when restoring", func(t *testing.T) {
		tracer, rec := newTestTracer()
		ctx := tracer.NewContext(context.Background())
		root := tracer.StartSpan(ctx, "g.http", model.Entry)
		intermediate := tracer.StartSpan(ctx, "sdk", model.Intermediate)
		exit := tracer.StartSpan(ctx, "sqs", model.Exit)

		intermediate.End()
		exit.End()
		assert.Same(t, root, tracer.CurrentSpan(ctx))

		root.End()
		_, ok := ActiveSpan(ctx)
		assert.False(t, ok)
		next := tracer.StartSpan(ctx, "log.go", model.Exit)
		assert.Empty(t, next.ParentID())
		assert.NotEqual(t, root.TraceID(), next.TraceID())
		assert.Equal(t, 3, rec.Len())
	})

	t.Run("Ignores data written after the span finished", func(t *testing.T) {
		tracer, rec := newTestTracer()
		ctx := tracer.NewContext(context.Background())
		span := tracer.StartSpan(ctx, "sqs", model.Exit)
		span.SetData("sqs", "queue", "orders")
		span.End()
		span.SetData("sqs", "queue", "late")
		span.AddError(errors.New("late"))

		spans := rec.Spans()
		assert.Equal(t, "orders", spans[0].Data.Get("sqs", "queue"))
		assert.Equal(t, 0, spans[0].ErrorCount)
	})

	t.Run("Hands out records that do not alias live data", func(t *testing.T) {
		tracer, _ := newTestTracer()
		ctx := tracer.NewContext(context.Background())
		span := tracer.StartSpan(ctx, "sqs", model.Exit)
		span.SetData("sqs", "queue", "orders")

		record := span.Record()
		span.SetData("sqs", "queue", "changed")
		assert.Equal(t, "orders", record.Data.Get("sqs", "queue"))
	})
}

func TestSpan_Cancel(t *testing.T) {
	t.Run("Drops the span without transmitting it", func(t *testing.T) {
		metrics := NewMetrics(prometheus.NewRegistry())
		tracer, rec := newTestTracer(WithMetrics(metrics))
		ctx := tracer.NewContext(context.Background())

		span := tracer.StartSpan(ctx, "sqs", model.Entry)
		span.Cancel()
		span.End()

		assert.Equal(t, 0, rec.Len())
		assert.Equal(t, model.Cancelled, span.State())
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SpansCancelled))
		assert.Equal(t, float64(0), testutil.ToFloat64(metrics.SpansTransmitted))
		_, ok := ActiveSpan(ctx)
		assert.False(t, ok)
	})
}

func TestSpan_AddError(t *testing.T) {
	t.Run("Marks the span failed under its category", func(t *testing.T) {
		tracer, rec := newTestTracer()
		ctx := tracer.NewContext(context.Background())

		span := tracer.StartSpan(ctx, "sqs", model.Exit)
		span.AddError(errors.New("queue does not exist"))
		assert.Equal(t, model.Active, span.State())
		span.End()

		spans := rec.Spans()
		assert.Equal(t, 1, spans[0].ErrorCount)
		assert.Equal(t, "queue does not exist", spans[0].Data.Get("sqs", "error"))
	})

	t.Run("Uses the configured category", func(t *testing.T) {
		tracer, _ := newTestTracer()
		ctx := tracer.NewContext(context.Background())

		span := tracer.StartSpan(ctx, "g.http", model.Entry, WithCategory("http"))
		span.AddError(errors.New("boom"))

		assert.Equal(t, "boom", span.Record().Data.Get("http", "error"))
	})

	t.Run("Ignores a nil error", func(t *testing.T) {
		tracer, _ := newTestTracer()
		ctx := tracer.NewContext(context.Background())

		span := tracer.StartSpan(ctx, "sqs", model.Exit)
		span.AddError(nil)

		assert.Equal(t, 0, span.ErrorCount())
	})
}

func TestSpan_Complete(t *testing.T) {
	t.Run("Ends the span by default", func(t *testing.T) {
		tracer, rec := newTestTracer()
		ctx := tracer.NewContext(context.Background())

		span := tracer.StartSpan(ctx, "sqs", model.Exit)
		span.Complete(errors.New("throttled"))

		assert.Equal(t, model.Ended, span.State())
		assert.Equal(t, 1, rec.Spans()[0].ErrorCount)
	})

	t.Run("Leaves the span open when auto end is disabled", func(t *testing.T) {
		tracer, rec := newTestTracer()
		ctx := tracer.NewContext(context.Background())

		span := tracer.StartSpan(ctx, "sqs", model.Entry)
		span.DisableAutoEnd()
		span.Complete(nil)

		assert.False(t, span.AutoEnd())
		assert.Equal(t, model.Active, span.State())
		assert.Equal(t, 0, rec.Len())

		span.End()
		assert.Equal(t, 1, rec.Len())
	})
}

func TestSpan_Adopt(t *testing.T) {
	remote := model.SpanContext{TraceID: "1234", ParentID: "5678"}

	t.Run("Re-links a speculative root span once", func(t *testing.T) {
		tracer, _ := newTestTracer()
		ctx := tracer.NewContext(context.Background())
		span := tracer.StartSpan(ctx, "sqs", model.Entry, Speculative())

		assert.True(t, span.Adopt(remote))
		assert.Equal(t, "1234", span.TraceID())
		assert.Equal(t, "5678", span.ParentID())
		assert.False(t, span.Adopt(model.SpanContext{TraceID: "aa", ParentID: "bb"}))
	})

	t.Run("Refuses once the span's ids were propagated", func(t *testing.T) {
		tracer, _ := newTestTracer()
		ctx := tracer.NewContext(context.Background())
		span := tracer.StartSpan(ctx, "sqs", model.Entry, Speculative())
		child := tracer.StartSpan(ctx, "log.go", model.Exit)

		assert.False(t, span.Adopt(remote))
		assert.Equal(t, span.TraceID(), child.TraceID())
	})

	t.Run("Refuses for spans that were not started speculatively", func(t *testing.T) {
		tracer, _ := newTestTracer()
		ctx := tracer.NewContext(context.Background())
		span := tracer.StartSpan(ctx, "sqs", model.Entry)

		assert.False(t, span.Adopt(remote))
	})

	t.Run("Replaces the local parent of a speculative span", func(t *testing.T) {
		tracer, _ := newTestTracer()
		ctx := tracer.NewContext(context.Background())
		local := tracer.StartSpan(ctx, "g.http", model.Entry)
		span := tracer.StartSpan(ctx, "sqs", model.Entry, Speculative())
		assert.Equal(t, local.SpanID(), span.ParentID())

		assert.True(t, span.Adopt(remote))
		assert.Equal(t, "1234", span.TraceID())
		assert.Equal(t, "5678", span.ParentID())
	})

	t.Run("Refuses an invalid remote context", func(t *testing.T) {
		tracer, _ := newTestTracer()
		ctx := tracer.NewContext(context.Background())
		span := tracer.StartSpan(ctx, "sqs", model.Entry, Speculative())

		assert.False(t, span.Adopt(model.SpanContext{TraceID: "1234"}))
	})
}
