package instrumentation

import (
	"context"
	"errors"
	"testing"

	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/trace/propagation"
	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"github.com/stretchr/testify/assert"
)

type testMessage struct {
	body       string
	attributes propagation.MapCarrier
}

func TestConsume(t *testing.T) {
	t.Run("Cancels the speculative span when the poll finds nothing", func(t *testing.T) {
		tracer, shim, rec := getNewShim()
		ctx := tracer.NewContext(context.Background())

		handled := false
		_, err := Consume(ctx, shim, receiveOperation(), func(context.Context) ([]testMessage, error) {
			return nil, nil
		}, func(handlerCtx context.Context, _ []testMessage, _ error) {
			handled = true
			assert.True(t, tracer.CurrentSpan(handlerCtx).IsNoop())
		})

		assert.Nil(t, err)
		assert.True(t, handled)
		assert.Equal(t, 0, rec.Len())
	})

	t.Run("Continues the sender's trace when work arrives", func(t *testing.T) {
		tracer, shim, rec := getNewShim()
		ctx := tracer.NewContext(context.Background())
		message := testMessage{body: "hello", attributes: propagation.MapCarrier{
			propagation.TraceIDKey:    "1234",
			propagation.SpanIDKey:     "5678",
			propagation.TraceLevelKey: propagation.LevelEnabled,
		}}

		var entryInHandler *service.Span
		_, _ = Consume(ctx, shim, receiveOperation(), func(context.Context) ([]testMessage, error) {
			return []testMessage{message}, nil
		}, func(handlerCtx context.Context, messages []testMessage, _ error) {
			entryInHandler = tracer.CurrentSpan(handlerCtx)
			tracer.StartSpan(handlerCtx, "log.go", model.Exit).End()
		})

		spans := rec.Spans()
		assert.Len(t, spans, 2)
		entry := spans[1]
		assert.Equal(t, model.Entry, entry.Kind)
		assert.Equal(t, "1234", entry.TraceID)
		assert.Equal(t, "5678", entry.ParentID)
		assert.Equal(t, entryInHandler.SpanID(), entry.SpanID)
		assert.Equal(t, 1, entry.Data.Get("sqs", "size"))
		assert.Equal(t, "1234", spans[0].TraceID)
		assert.Equal(t, entry.SpanID, spans[0].ParentID)
	})

	t.Run("Prefers the sender's trace over a local span active during the poll", func(t *testing.T) {
		tracer, shim, rec := getNewShim()
		ctx := tracer.NewContext(context.Background())
		local := tracer.StartSpan(ctx, "sdk", model.Intermediate)
		message := testMessage{body: "hello", attributes: propagation.MapCarrier{
			propagation.TraceIDKey:    "1234",
			propagation.SpanIDKey:     "5678",
			propagation.TraceLevelKey: propagation.LevelEnabled,
		}}

		_, _ = Consume(ctx, shim, receiveOperation(), func(context.Context) ([]testMessage, error) {
			return []testMessage{message}, nil
		}, nil)

		spans := rec.Spans()
		assert.Len(t, spans, 1)
		assert.Equal(t, model.Entry, spans[0].Kind)
		assert.Equal(t, "1234", spans[0].TraceID)
		assert.Equal(t, "5678", spans[0].ParentID)
		assert.Same(t, local, tracer.CurrentSpan(ctx))
	})

	t.Run("Links to the local span when the work carries no trace", func(t *testing.T) {
		tracer, shim, rec := getNewShim()
		ctx := tracer.NewContext(context.Background())
		local := tracer.StartSpan(ctx, "sdk", model.Intermediate)

		_, _ = Consume(ctx, shim, receiveOperation(), func(context.Context) ([]testMessage, error) {
			return []testMessage{{body: "hello"}}, nil
		}, nil)

		spans := rec.Spans()
		assert.Len(t, spans, 1)
		assert.Equal(t, local.TraceID(), spans[0].TraceID)
		assert.Equal(t, local.SpanID(), spans[0].ParentID)
	})

	t.Run("Starts a fresh trace for work without a carrier", func(t *testing.T) {
		tracer, shim, rec := getNewShim()
		ctx := tracer.NewContext(context.Background())

		_, _ = Consume(ctx, shim, receiveOperation(), func(context.Context) ([]testMessage, error) {
			return []testMessage{{body: "hello"}}, nil
		}, nil)

		spans := rec.Spans()
		assert.Len(t, spans, 1)
		assert.Empty(t, spans[0].ParentID)
		assert.Len(t, spans[0].TraceID, 16)
	})

	t.Run("Suppresses the whole flow for a suppressed carrier", func(t *testing.T) {
		tracer, shim, rec := getNewShim()
		ctx := tracer.NewContext(context.Background())
		message := testMessage{attributes: propagation.MapCarrier{
			propagation.TraceLevelKey: propagation.LevelSuppressed,
		}}

		onward := propagation.MapCarrier{}
		_, _ = Consume(ctx, shim, receiveOperation(), func(context.Context) ([]testMessage, error) {
			return []testMessage{message}, nil
		}, func(handlerCtx context.Context, _ []testMessage, _ error) {
			assert.True(t, tracer.TracingSuppressed(handlerCtx))
			_, _ = Call(handlerCtx, shim, publishOperation(onward), func(context.Context) (string, error) {
				return "id", nil
			})
		})

		assert.Equal(t, 0, rec.Len())
		assert.Equal(t, propagation.MapCarrier{propagation.TraceLevelKey: propagation.LevelSuppressed}, onward)
		assert.False(t, tracer.TracingSuppressed(ctx))
	})

	t.Run("Transmits a failed poll with its error", func(t *testing.T) {
		tracer, shim, rec := getNewShim()
		ctx := tracer.NewContext(context.Background())
		pollErr := errors.New("connection reset")

		_, err := Consume(ctx, shim, receiveOperation(), func(context.Context) ([]testMessage, error) {
			return nil, pollErr
		}, nil)

		assert.Same(t, pollErr, err)
		spans := rec.Spans()
		assert.Len(t, spans, 1)
		assert.Equal(t, 1, spans[0].ErrorCount)
		assert.Equal(t, "connection reset", spans[0].Data.Get("sqs", "error"))
	})

	t.Run("Lets the handler take over ending the span", func(t *testing.T) {
		tracer, shim, rec := getNewShim()
		ctx := tracer.NewContext(context.Background())

		var entry *service.Span
		_, _ = Consume(ctx, shim, receiveOperation(), func(context.Context) ([]testMessage, error) {
			return []testMessage{{body: "hello"}}, nil
		}, func(handlerCtx context.Context, _ []testMessage, _ error) {
			entry = tracer.CurrentSpan(handlerCtx)
			entry.DisableAutoEnd()
		})

		assert.Equal(t, 0, rec.Len())
		assert.Equal(t, model.Active, entry.State())
		entry.End()
		assert.Equal(t, 1, rec.Len())
	})

	t.Run("Polls untouched when the switch is off", func(t *testing.T) {
		tracer, shim, rec := getNewShim()
		shim.Switch().Deactivate()
		ctx := tracer.NewContext(context.Background())

		messages, _ := Consume(ctx, shim, receiveOperation(), func(context.Context) ([]testMessage, error) {
			return []testMessage{{body: "hello"}}, nil
		}, nil)

		assert.Len(t, messages, 1)
		assert.Equal(t, 0, rec.Len())
	})
}

func TestPublishConsumeRoundTrip(t *testing.T) {
	t.Run("Produces a two span trace across the queue", func(t *testing.T) {
		tracer, shim, rec := getNewShim()
		queue := make(chan testMessage, 1)

		sender := tracer.NewContext(context.Background())
		httpEntry := tracer.StartSpan(sender, "g.http", model.Entry)
		attributes := propagation.MapCarrier{}
		CallAsync(sender, shim, publishOperation(attributes),
			func(_ context.Context, done func(string, error)) {
				queue <- testMessage{body: "hello", attributes: attributes}
				done("message-1", nil)
			},
			nil,
		)
		httpEntry.End()

		receiver := tracer.NewContext(context.Background())
		_, _ = Consume(receiver, shim, receiveOperation(), func(context.Context) ([]testMessage, error) {
			return []testMessage{<-queue}, nil
		}, nil)

		spans := rec.Spans()
		assert.Len(t, spans, 3)
		publish, consume := spans[0], spans[2]
		assert.Equal(t, model.Exit, publish.Kind)
		assert.Equal(t, model.Entry, consume.Kind)
		assert.Equal(t, publish.TraceID, consume.TraceID)
		assert.Equal(t, publish.SpanID, consume.ParentID)
		assert.Equal(t, 0, publish.ErrorCount)
		assert.Equal(t, 0, consume.ErrorCount)
	})
}

func receiveOperation() ConsumeOperation[[]testMessage] {
	return ConsumeOperation[[]testMessage]{
		Name: "sqs",
		Found: func(messages []testMessage) int {
			return len(messages)
		},
		Carrier: func(messages []testMessage) propagation.Carrier {
			if len(messages) == 0 || messages[0].attributes == nil {
				return nil
			}
			return messages[0].attributes
		},
		Annotate: func(span *service.Span, messages []testMessage, _ error) {
			span.SetData("sqs", "sort", "consume")
			if len(messages) > 0 {
				span.SetData("sqs", "size", len(messages))
			}
		},
	}
}
