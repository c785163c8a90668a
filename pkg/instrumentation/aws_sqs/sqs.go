// Package aws_sqs traces publish and consume calls of the AWS SDK SQS client
// and carries trace context in message attributes.
package aws_sqs

import (
	"context"
	"fmt"
	"strings"

	"github.com/Avi18971911/AugurSensor/pkg/instrumentation"
	"github.com/Avi18971911/AugurSensor/pkg/trace/propagation"
	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"go.uber.org/zap"
)

const (
	InstrumentationName = "sqs"
	spanName            = "sqs"

	sortPublish = "publish"
	sortConsume = "consume"
)

// SQS decorates an SQS client. Methods it does not override go straight to the wrapped client.
type SQS struct {
	sqsiface.SQSAPI
	shim *instrumentation.Shim
}

var _ sqsiface.SQSAPI = (*SQS)(nil)

func New(client sqsiface.SQSAPI, registry *instrumentation.Registry) *SQS {
	return &SQS{
		SQSAPI: client,
		shim:   registry.Init(InstrumentationName),
	}
}

func (c *SQS) SendMessage(input *sqs.SendMessageInput) (*sqs.SendMessageOutput, error) {
	return c.SendMessageWithContext(aws.BackgroundContext(), input)
}

// SendMessageWithContext publishes under an EXIT span when ctx has an active
// span, carrying the trace context in the message attributes.
func (c *SQS) SendMessageWithContext(ctx aws.Context, input *sqs.SendMessageInput, opts ...request.Option) (*sqs.SendMessageOutput, error) {
	tracedInput, carrier := c.prepareSend(input)
	return instrumentation.Call(ctx, c.shim, sendOperation(tracedInput, carrier), func(callCtx context.Context) (*sqs.SendMessageOutput, error) {
		return c.SQSAPI.SendMessageWithContext(callCtx, tracedInput, opts...)
	})
}

// SendMessageAsync publishes on another goroutine and reports the outcome to
// callback, which runs in ctx's flow after the span has ended.
func (c *SQS) SendMessageAsync(
	ctx aws.Context,
	input *sqs.SendMessageInput,
	callback func(ctx context.Context, output *sqs.SendMessageOutput, err error),
	opts ...request.Option,
) {
	tracedInput, carrier := c.prepareSend(input)
	instrumentation.CallAsync(ctx, c.shim, sendOperation(tracedInput, carrier),
		func(callCtx context.Context, done func(*sqs.SendMessageOutput, error)) {
			go func() {
				done(c.SQSAPI.SendMessageWithContext(callCtx, tracedInput, opts...))
			}()
		},
		callback,
	)
}

// SendMessageRequestWithContext builds a request that is traced when it is
// sent. The request's context becomes the traced flow, so handlers and
// retries observe the EXIT span.
func (c *SQS) SendMessageRequestWithContext(ctx aws.Context, input *sqs.SendMessageInput) (*request.Request, *sqs.SendMessageOutput) {
	tracedInput, carrier := c.prepareSend(input)
	op := instrumentation.Operation[*Request]{
		Name:    spanName,
		Carrier: carrier,
		Options: publishOptions(tracedInput.QueueUrl),
		Annotate: func(span *service.Span, req *Request, err error) {
			if output, ok := req.Data.(*sqs.SendMessageOutput); ok && err == nil {
				annotateSend(span, output)
			}
		},
	}
	req := instrumentation.CallDeferred(ctx, c.shim, op, func(callCtx context.Context) *Request {
		req, _ := c.SQSAPI.SendMessageRequest(tracedInput)
		req.SetContext(callCtx)
		return &Request{Request: req}
	})
	output, _ := req.Data.(*sqs.SendMessageOutput)
	return req.Request, output
}

// SendMessageBatchWithContext publishes a batch under one EXIT span and
// writes the trace context into every entry.
func (c *SQS) SendMessageBatchWithContext(ctx aws.Context, input *sqs.SendMessageBatchInput, opts ...request.Option) (*sqs.SendMessageBatchOutput, error) {
	if input == nil {
		return c.SQSAPI.SendMessageBatchWithContext(ctx, input, opts...)
	}
	tracedInput := *input
	tracedInput.Entries = make([]*sqs.SendMessageBatchRequestEntry, 0, len(input.Entries))
	var carriers batchCarrier
	for _, entry := range input.Entries {
		if entry == nil {
			tracedInput.Entries = append(tracedInput.Entries, entry)
			continue
		}
		tracedEntry := *entry
		if attributes, ok := copyAttributes(entry.MessageAttributes); ok {
			tracedEntry.MessageAttributes = attributes
			carriers = append(carriers, attributes)
		}
		tracedInput.Entries = append(tracedInput.Entries, &tracedEntry)
	}

	op := instrumentation.Operation[*sqs.SendMessageBatchOutput]{
		Name:    spanName,
		Options: append(publishOptions(input.QueueUrl), service.WithData("sqs", "size", len(input.Entries))),
		Annotate: func(span *service.Span, output *sqs.SendMessageBatchOutput, err error) {
			if err == nil && output != nil && len(output.Failed) > 0 {
				span.AddError(fmt.Errorf("%d of %d messages failed", len(output.Failed), len(input.Entries)))
			}
		},
	}
	if len(carriers) > 0 {
		op.Carrier = carriers
	}
	return instrumentation.Call(ctx, c.shim, op, func(callCtx context.Context) (*sqs.SendMessageBatchOutput, error) {
		return c.SQSAPI.SendMessageBatchWithContext(callCtx, &tracedInput, opts...)
	})
}

func (c *SQS) ReceiveMessage(input *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error) {
	return c.ReceiveMessageWithContext(aws.BackgroundContext(), input)
}

// ReceiveMessageWithContext polls under an ENTRY span that is only
// transmitted when messages arrive, and ends as soon as the poll returns.
func (c *SQS) ReceiveMessageWithContext(ctx aws.Context, input *sqs.ReceiveMessageInput, opts ...request.Option) (*sqs.ReceiveMessageOutput, error) {
	return c.ReceiveMessageWithHandler(ctx, input, nil, opts...)
}

// ReceiveMessageWithHandler polls like ReceiveMessageWithContext and runs
// handler with the ENTRY span active. The span ends when handler returns,
// unless handler disabled auto end on it.
func (c *SQS) ReceiveMessageWithHandler(
	ctx aws.Context,
	input *sqs.ReceiveMessageInput,
	handler func(ctx context.Context, output *sqs.ReceiveMessageOutput, err error),
	opts ...request.Option,
) (*sqs.ReceiveMessageOutput, error) {
	tracedInput := input
	if input != nil {
		copied := *input
		copied.MessageAttributeNames = withTraceAttributeNames(input.MessageAttributeNames)
		tracedInput = &copied
	}
	return instrumentation.Consume(ctx, c.shim, receiveOperation(tracedInput), func(pollCtx context.Context) (*sqs.ReceiveMessageOutput, error) {
		return c.SQSAPI.ReceiveMessageWithContext(pollCtx, tracedInput, opts...)
	}, handler)
}

// Request is a sent-later SQS request whose completion can be observed.
type Request struct {
	*request.Request
}

func (r *Request) OnSettled(fn func(err error)) {
	r.Handlers.Complete.PushBack(func(req *request.Request) {
		fn(req.Error)
	})
}

func (r *Request) Rebind(ctx context.Context) {
	r.SetContext(ctx)
}

func (c *SQS) prepareSend(input *sqs.SendMessageInput) (*sqs.SendMessageInput, propagation.Carrier) {
	if input == nil {
		return input, nil
	}
	attributes, ok := copyAttributes(input.MessageAttributes)
	if !ok {
		c.shim.Logger().Debug("Not propagating trace context, message has no room for more attributes",
			zap.String("queue", queueName(input.QueueUrl)),
		)
		return input, nil
	}
	copied := *input
	copied.MessageAttributes = attributes
	return &copied, attributes
}

func sendOperation(input *sqs.SendMessageInput, carrier propagation.Carrier) instrumentation.Operation[*sqs.SendMessageOutput] {
	var queueURL *string
	if input != nil {
		queueURL = input.QueueUrl
	}
	return instrumentation.Operation[*sqs.SendMessageOutput]{
		Name:    spanName,
		Carrier: carrier,
		Options: publishOptions(queueURL),
		Annotate: func(span *service.Span, output *sqs.SendMessageOutput, err error) {
			if err == nil {
				annotateSend(span, output)
			}
		},
	}
}

func receiveOperation(input *sqs.ReceiveMessageInput) instrumentation.ConsumeOperation[*sqs.ReceiveMessageOutput] {
	var queueURL *string
	if input != nil {
		queueURL = input.QueueUrl
	}
	return instrumentation.ConsumeOperation[*sqs.ReceiveMessageOutput]{
		Name: spanName,
		Options: []service.StartOption{
			service.WithData("sqs", "sort", sortConsume),
			service.WithData("sqs", "queue", queueName(queueURL)),
		},
		Found: func(output *sqs.ReceiveMessageOutput) int {
			if output == nil {
				return 0
			}
			return len(output.Messages)
		},
		Carrier: func(output *sqs.ReceiveMessageOutput) propagation.Carrier {
			message := output.Messages[0]
			if message == nil || len(message.MessageAttributes) == 0 {
				return nil
			}
			return attributeCarrier(message.MessageAttributes)
		},
		Annotate: func(span *service.Span, output *sqs.ReceiveMessageOutput, err error) {
			if err == nil && output != nil && len(output.Messages) > 1 {
				span.SetData("sqs", "size", len(output.Messages))
			}
		},
	}
}

func publishOptions(queueURL *string) []service.StartOption {
	return []service.StartOption{
		service.WithData("sqs", "sort", sortPublish),
		service.WithData("sqs", "queue", queueName(queueURL)),
	}
}

func annotateSend(span *service.Span, output *sqs.SendMessageOutput) {
	if output != nil && output.MessageId != nil {
		span.SetData("sqs", "messageId", *output.MessageId)
	}
}

// queueName returns the last path segment of a queue URL.
func queueName(queueURL *string) string {
	url := strings.TrimRight(aws.StringValue(queueURL), "/")
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}
