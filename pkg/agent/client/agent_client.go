package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 42699

	tracesPathFormat = "/com.instana.plugin.golang/traces.%d"
	requestTimeout   = 5 * time.Second
)

var ErrAgentRejected = errors.New("agent rejected the spans")

// AgentClient uploads span batches to the host agent.
type AgentClient interface {
	Flush(ctx context.Context, spans []model.Span) error
}

type Config struct {
	Host string
	Port int
	// PID names the trace endpoint; defaults to this process.
	PID int
	// RetryMax is the number of retries after a failed upload. Zero keeps
	// the retryablehttp default, a negative value disables retrying.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

type AgentClientImpl struct {
	http     *retryablehttp.Client
	endpoint string
	logger   *zap.Logger
}

func NewAgentClientImpl(config Config, logger *zap.Logger) *AgentClientImpl {
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.PID == 0 {
		config.PID = os.Getpid()
	}

	retryClient := retryablehttp.NewClient()
	switch {
	case config.RetryMax > 0:
		retryClient.RetryMax = config.RetryMax
	case config.RetryMax < 0:
		retryClient.RetryMax = 0
	}
	if config.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = config.RetryWaitMin
	}
	if config.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = config.RetryWaitMax
	}
	retryClient.HTTPClient.Timeout = requestTimeout
	retryClient.Logger = nil

	return &AgentClientImpl{
		http:     retryClient,
		endpoint: TracesURL(config.Host, config.Port, config.PID),
		logger:   logger,
	}
}

// TracesURL is the agent endpoint that accepts the spans of process pid.
func TracesURL(host string, port int, pid int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + fmt.Sprintf(tracesPathFormat, pid)
}

func (c *AgentClientImpl) Flush(ctx context.Context, spans []model.Span) error {
	if len(spans) == 0 {
		return nil
	}
	body, err := sonic.Marshal(spans)
	if err != nil {
		return fmt.Errorf("error marshaling %d spans: %w", len(spans), err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return fmt.Errorf("error creating agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %d spans to the agent: %w", len(spans), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %s", ErrAgentRejected, resp.Status)
	}
	c.logger.Debug("Sent spans to the agent", zap.Int("count", len(spans)))
	return nil
}
