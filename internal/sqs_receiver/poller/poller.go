// Package poller drains an SQS queue. Every received message is followed by
// an HTTP call that belongs to the message's trace.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"go.uber.org/zap"
)

type ReceiveMethod string

const (
	// ReceiveCallback handles messages inside the consume span and ends it
	// after the follow-up call.
	ReceiveCallback ReceiveMethod = "callback"
	// ReceivePromise receives, deletes, and lets the consume span end on return.
	ReceivePromise ReceiveMethod = "promise"

	defaultFollowUpDelay = 100 * time.Millisecond
	pollErrorBackoff     = time.Second
)

func ParseReceiveMethod(value string) (ReceiveMethod, error) {
	switch method := ReceiveMethod(strings.ToLower(strings.TrimSpace(value))); method {
	case ReceiveCallback, ReceivePromise:
		return method, nil
	default:
		return "", fmt.Errorf("%w %q, expected %s or %s", ErrUnknownReceiveMethod, value, ReceiveCallback, ReceivePromise)
	}
}

// MessageReceiver is the traced SQS client the poller consumes through.
type MessageReceiver interface {
	ReceiveMessageWithContext(ctx aws.Context, input *sqs.ReceiveMessageInput, opts ...request.Option) (*sqs.ReceiveMessageOutput, error)
	ReceiveMessageWithHandler(
		ctx aws.Context,
		input *sqs.ReceiveMessageInput,
		handler func(ctx context.Context, output *sqs.ReceiveMessageOutput, err error),
		opts ...request.Option,
	) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageWithContext(ctx aws.Context, input *sqs.DeleteMessageInput, opts ...request.Option) (*sqs.DeleteMessageOutput, error)
}

type Config struct {
	QueueURL        string
	Method          ReceiveMethod
	WaitTimeSeconds int64
	// FollowUpURL is requested after each received message. Empty disables the call.
	FollowUpURL   string
	FollowUpDelay time.Duration
}

type Poller struct {
	receiver MessageReceiver
	client   *http.Client
	tracer   *service.Tracer
	config   Config
	logger   *zap.Logger

	followUps sync.WaitGroup
	mu        sync.Mutex
	polling   bool
}

// NewPoller polls through receiver and sends follow-up calls with client,
// which should carry a traced transport.
func NewPoller(receiver MessageReceiver, client *http.Client, tracer *service.Tracer, config Config, logger *zap.Logger) *Poller {
	if config.Method == "" {
		config.Method = ReceiveCallback
	}
	if config.FollowUpDelay <= 0 {
		config.FollowUpDelay = defaultFollowUpDelay
	}
	return &Poller{
		receiver: receiver,
		client:   client,
		tracer:   tracer,
		config:   config,
		logger:   logger,
	}
}

// Run polls until ctx ends, then waits for outstanding follow-up calls.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Polling for messages",
		zap.String("queue_url", p.config.QueueURL),
		zap.String("method", string(p.config.Method)),
	)
	defer p.followUps.Wait()
	for {
		if err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("Failed to poll for messages", zap.Error(err))
			select {
			case <-time.After(pollErrorBackoff):
			case <-ctx.Done():
				return nil
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Poll performs a single receive.
func (p *Poller) Poll(ctx context.Context) error {
	p.setPolling(true)
	defer p.setPolling(false)
	if p.config.Method == ReceivePromise {
		return p.receivePromise(ctx)
	}
	return p.receiveCallback(ctx)
}

// IsPolling reports whether a receive is in progress.
func (p *Poller) IsPolling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polling
}

// Wait blocks until every follow-up call started so far has finished.
func (p *Poller) Wait() {
	p.followUps.Wait()
}

func (p *Poller) receivePromise(ctx context.Context) error {
	output, err := p.receiver.ReceiveMessageWithContext(ctx, p.receiveInput())
	if err != nil {
		return err
	}
	if len(output.Messages) == 0 {
		return nil
	}
	p.logger.Info("Received messages", zap.Int("count", len(output.Messages)))
	return p.delete(ctx, output.Messages[0])
}

func (p *Poller) receiveCallback(ctx context.Context) error {
	var deleteErr error
	_, err := p.receiver.ReceiveMessageWithHandler(ctx, p.receiveInput(),
		func(ctx context.Context, output *sqs.ReceiveMessageOutput, err error) {
			span := p.tracer.CurrentSpan(ctx)
			if err != nil {
				return
			}
			if output == nil || len(output.Messages) == 0 {
				return
			}
			p.logger.Info("Received messages",
				zap.Int("count", len(output.Messages)),
				zap.String("trace_id", span.TraceID()),
			)
			if p.config.FollowUpURL != "" {
				span.DisableAutoEnd()
				p.followUps.Add(1)
				time.AfterFunc(p.config.FollowUpDelay, func() {
					defer p.followUps.Done()
					span.EndWithError(p.followUp(ctx))
				})
			}
			deleteErr = p.delete(ctx, output.Messages[0])
		},
	)
	if err != nil {
		return err
	}
	return deleteErr
}

func (p *Poller) followUp(ctx context.Context) error {
	// the poll's context may be gone by now; the span context stays
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, p.config.FollowUpURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("The follow up request after receiving a message has failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %s", ErrFollowUpFailed, resp.Status)
	}
	p.logger.Debug("The follow up request after receiving a message has happened")
	return nil
}

func (p *Poller) delete(ctx context.Context, message *sqs.Message) error {
	_, err := p.receiver.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.config.QueueURL),
		ReceiptHandle: message.ReceiptHandle,
	})
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", aws.StringValue(message.MessageId), err)
	}
	return nil
}

func (p *Poller) receiveInput() *sqs.ReceiveMessageInput {
	return &sqs.ReceiveMessageInput{
		AttributeNames:        aws.StringSlice([]string{"SentTimestamp"}),
		MaxNumberOfMessages:   aws.Int64(1),
		MessageAttributeNames: aws.StringSlice([]string{"All"}),
		QueueUrl:              aws.String(p.config.QueueURL),
		VisibilityTimeout:     aws.Int64(20),
		WaitTimeSeconds:       aws.Int64(p.config.WaitTimeSeconds),
	}
}

func (p *Poller) setPolling(polling bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polling = polling
}

var (
	ErrUnknownReceiveMethod = errors.New("unknown receive method")
	ErrFollowUpFailed       = errors.New("follow up request failed")
)
