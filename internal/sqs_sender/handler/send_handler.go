package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"
)

// MessageSender is the traced SQS client the handlers publish through.
type MessageSender interface {
	SendMessageWithContext(ctx aws.Context, input *sqs.SendMessageInput, opts ...request.Option) (*sqs.SendMessageOutput, error)
	SendMessageAsync(
		ctx aws.Context,
		input *sqs.SendMessageInput,
		callback func(ctx context.Context, output *sqs.SendMessageOutput, err error),
		opts ...request.Option,
	)
	SendMessageRequestWithContext(ctx aws.Context, input *sqs.SendMessageInput) (*request.Request, *sqs.SendMessageOutput)
}

// SendCallbackHandler publishes through the callback API.
// @Router /send-callback [post]
func SendCallbackHandler(sender MessageSender, queueURL string, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type result struct {
			output *sqs.SendMessageOutput
			err    error
		}
		results := make(chan result, 1)
		sender.SendMessageAsync(r.Context(), messageInput(queueURL, "message sent via callback function"),
			func(ctx context.Context, output *sqs.SendMessageOutput, err error) {
				if err != nil {
					logger.WithContext(ctx).WithError(err).Error("Failed to send message via callback")
				}
				results <- result{output: output, err: err}
			},
		)
		select {
		case res := <-results:
			writeSendResult(w, res.output, res.err, logger)
		case <-r.Context().Done():
			logger.Warn("Request ended before the message was sent")
		}
	}
}

// SendPromiseHandler builds a request and sends it later, the way promise
// based callers do.
// @Router /send-promise [post]
func SendPromiseHandler(sender MessageSender, queueURL string, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, output := sender.SendMessageRequestWithContext(r.Context(), messageInput(queueURL, "message sent via promise"))
		err := req.Send()
		if err != nil {
			logger.WithContext(r.Context()).WithError(err).Error("Failed to send message via promise")
		}
		writeSendResult(w, output, err, logger)
	}
}

// SendSyncHandler publishes and waits for the outcome.
// @Router /send-sync [post]
func SendSyncHandler(sender MessageSender, queueURL string, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		output, err := sender.SendMessageWithContext(r.Context(), messageInput(queueURL, "message sent synchronously"))
		if err != nil {
			logger.WithContext(r.Context()).WithError(err).Error("Failed to send message synchronously")
		}
		writeSendResult(w, output, err, logger)
	}
}

func messageInput(queueURL string, body string) *sqs.SendMessageInput {
	return &sqs.SendMessageInput{
		MessageBody: aws.String(body),
		QueueUrl:    aws.String(queueURL),
	}
}

func writeSendResult(w http.ResponseWriter, output *sqs.SendMessageOutput, err error, logger *logrus.Logger) {
	status := http.StatusOK
	response := SendResponseDTO{Status: statusOK}
	if err != nil {
		status = http.StatusNotImplemented
		response = SendResponseDTO{Status: statusError, Data: err.Error()}
	} else if output != nil {
		response.Data = aws.StringValue(output.MessageId)
	}
	body, err := sonic.Marshal(response)
	if err != nil {
		logger.Errorf("Error encountered during JSON encoding of response %v", err)
		http.Error(w, "Unable to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
