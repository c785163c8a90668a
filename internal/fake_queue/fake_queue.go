// Package fake_queue is an in-memory stand-in for an SQS queue, for running
// the example applications and their tests without AWS.
package fake_queue

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client/metadata"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
)

const (
	defaultMaxMessages = 1
	maxMessages        = 10
)

// FakeQueue implements the publish, receive and delete calls of
// sqsiface.SQSAPI. Every queue URL shares the same messages. Calling any
// other method panics.
type FakeQueue struct {
	sqsiface.SQSAPI

	mu       sync.Mutex
	messages []*sqs.Message
	inFlight map[string]*sqs.Message
	sent     int
	arrived  chan struct{}
}

var _ sqsiface.SQSAPI = (*FakeQueue)(nil)

func NewFakeQueue() *FakeQueue {
	return &FakeQueue{
		inFlight: make(map[string]*sqs.Message),
		arrived:  make(chan struct{}),
	}
}

func (q *FakeQueue) SendMessage(input *sqs.SendMessageInput) (*sqs.SendMessageOutput, error) {
	return q.SendMessageWithContext(aws.BackgroundContext(), input)
}

func (q *FakeQueue) SendMessageWithContext(ctx aws.Context, input *sqs.SendMessageInput, _ ...request.Option) (*sqs.SendMessageOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input == nil || aws.StringValue(input.QueueUrl) == "" {
		return nil, ErrMissingQueueURL
	}
	message := q.push(input.MessageBody, input.MessageAttributes)
	return &sqs.SendMessageOutput{
		MessageId:        message.MessageId,
		MD5OfMessageBody: message.MD5OfBody,
	}, nil
}

// SendMessageRequest returns a request that publishes when it is sent.
func (q *FakeQueue) SendMessageRequest(input *sqs.SendMessageInput) (*request.Request, *sqs.SendMessageOutput) {
	output := &sqs.SendMessageOutput{}
	handlers := request.Handlers{}
	handlers.Send.PushBack(func(r *request.Request) {
		sent, err := q.SendMessageWithContext(r.Context(), input)
		if err != nil {
			r.Error = err
			return
		}
		*output = *sent
	})
	req := request.New(
		aws.Config{},
		metadata.ClientInfo{ServiceName: sqs.ServiceName},
		handlers,
		nil,
		&request.Operation{Name: "SendMessage", HTTPMethod: "POST", HTTPPath: "/"},
		input,
		output,
	)
	return req, output
}

func (q *FakeQueue) SendMessageBatchWithContext(ctx aws.Context, input *sqs.SendMessageBatchInput, _ ...request.Option) (*sqs.SendMessageBatchOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input == nil || aws.StringValue(input.QueueUrl) == "" {
		return nil, ErrMissingQueueURL
	}
	output := &sqs.SendMessageBatchOutput{}
	for _, entry := range input.Entries {
		message := q.push(entry.MessageBody, entry.MessageAttributes)
		output.Successful = append(output.Successful, &sqs.SendMessageBatchResultEntry{
			Id:        entry.Id,
			MessageId: message.MessageId,
		})
	}
	return output, nil
}

func (q *FakeQueue) ReceiveMessage(input *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error) {
	return q.ReceiveMessageWithContext(aws.BackgroundContext(), input)
}

// ReceiveMessageWithContext long-polls for up to WaitTimeSeconds. Received
// messages stay in flight until they are deleted.
func (q *FakeQueue) ReceiveMessageWithContext(ctx aws.Context, input *sqs.ReceiveMessageInput, _ ...request.Option) (*sqs.ReceiveMessageOutput, error) {
	if input == nil || aws.StringValue(input.QueueUrl) == "" {
		return nil, ErrMissingQueueURL
	}
	limit := int(aws.Int64Value(input.MaxNumberOfMessages))
	if limit <= 0 {
		limit = defaultMaxMessages
	}
	if limit > maxMessages {
		limit = maxMessages
	}
	deadline := time.NewTimer(time.Duration(aws.Int64Value(input.WaitTimeSeconds)) * time.Second)
	defer deadline.Stop()

	for {
		messages, arrived := q.pop(limit, input.MessageAttributeNames)
		if len(messages) > 0 {
			return &sqs.ReceiveMessageOutput{Messages: messages}, nil
		}
		select {
		case <-arrived:
		case <-deadline.C:
			return &sqs.ReceiveMessageOutput{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *FakeQueue) DeleteMessage(input *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
	return q.DeleteMessageWithContext(aws.BackgroundContext(), input)
}

func (q *FakeQueue) DeleteMessageWithContext(ctx aws.Context, input *sqs.DeleteMessageInput, _ ...request.Option) (*sqs.DeleteMessageOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	handle := aws.StringValue(input.ReceiptHandle)
	if _, ok := q.inFlight[handle]; !ok {
		return nil, fmt.Errorf("receipt handle %q: %w", handle, ErrUnknownReceiptHandle)
	}
	delete(q.inFlight, handle)
	return &sqs.DeleteMessageOutput{}, nil
}

// Len returns the number of messages waiting to be received.
func (q *FakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// InFlight returns the number of received messages not yet deleted.
func (q *FakeQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

func (q *FakeQueue) push(body *string, attributes map[string]*sqs.MessageAttributeValue) *sqs.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent++
	checksum := md5.Sum([]byte(aws.StringValue(body)))
	message := &sqs.Message{
		MessageId:         aws.String(fmt.Sprintf("message-%d", q.sent)),
		Body:              body,
		MD5OfBody:         aws.String(hex.EncodeToString(checksum[:])),
		MessageAttributes: copyAttributes(attributes),
	}
	q.messages = append(q.messages, message)
	close(q.arrived)
	q.arrived = make(chan struct{})
	return message
}

// pop takes up to limit messages, or returns a channel closed on the next push.
func (q *FakeQueue) pop(limit int, attributeNames []*string) ([]*sqs.Message, <-chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return nil, q.arrived
	}
	if limit > len(q.messages) {
		limit = len(q.messages)
	}
	taken := q.messages[:limit]
	q.messages = q.messages[limit:]
	received := make([]*sqs.Message, 0, len(taken))
	for _, message := range taken {
		handle := fmt.Sprintf("%s-receipt", aws.StringValue(message.MessageId))
		q.inFlight[handle] = message
		delivered := *message
		delivered.ReceiptHandle = aws.String(handle)
		delivered.MessageAttributes = selectAttributes(message.MessageAttributes, attributeNames)
		received = append(received, &delivered)
	}
	return received, nil
}

func copyAttributes(attributes map[string]*sqs.MessageAttributeValue) map[string]*sqs.MessageAttributeValue {
	if len(attributes) == 0 {
		return nil
	}
	copied := make(map[string]*sqs.MessageAttributeValue, len(attributes))
	for key, value := range attributes {
		copied[key] = value
	}
	return copied
}

// selectAttributes returns only the attributes a receiver asked for, as SQS does.
func selectAttributes(attributes map[string]*sqs.MessageAttributeValue, names []*string) map[string]*sqs.MessageAttributeValue {
	selected := make(map[string]*sqs.MessageAttributeValue)
	for _, name := range names {
		value := aws.StringValue(name)
		if value == "All" || value == ".*" {
			return copyAttributes(attributes)
		}
		if attribute, ok := attributes[value]; ok {
			selected[value] = attribute
		}
	}
	if len(selected) == 0 {
		return nil
	}
	return selected
}
