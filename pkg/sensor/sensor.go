// Package sensor assembles the tracer, the span sink and every
// instrumentation from one configuration.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Avi18971911/AugurSensor/internal/config"
	agentClient "github.com/Avi18971911/AugurSensor/pkg/agent/client"
	"github.com/Avi18971911/AugurSensor/pkg/instrumentation"
	"github.com/Avi18971911/AugurSensor/pkg/instrumentation/aws_sqs"
	"github.com/Avi18971911/AugurSensor/pkg/instrumentation/elasticsearch_tracing"
	"github.com/Avi18971911/AugurSensor/pkg/instrumentation/grpc_tracing"
	"github.com/Avi18971911/AugurSensor/pkg/instrumentation/http_tracing"
	"github.com/Avi18971911/AugurSensor/pkg/instrumentation/logrus_tracing"
	"github.com/Avi18971911/AugurSensor/pkg/otlp_export"
	"github.com/Avi18971911/AugurSensor/pkg/sdk"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/trace/propagation"
	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"github.com/Avi18971911/AugurSensor/pkg/write_buffer"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/prometheus/client_golang/prometheus"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type Sensor struct {
	Tracer        *service.Tracer
	Propagator    *propagation.Propagator
	Registry      *instrumentation.Registry
	SDK           *sdk.SDK
	HTTP          *http_tracing.Tracing
	GRPC          *grpc_tracing.Tracing
	Elasticsearch *elasticsearch_tracing.Tracing
	LogHook       *logrus_tracing.Hook

	buffer   *write_buffer.SpanBuffer
	watchdog *service.AutoEndWatchdog
	conn     *grpc.ClientConn
	logger   *zap.Logger
}

type options struct {
	registerer prometheus.Registerer
	flusher    write_buffer.Flusher[model.Span]
}

type Option func(*options)

// WithRegisterer registers the sensor's metrics with registerer instead of
// the default prometheus registry.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = registerer
	}
}

// WithFlusher replaces the configured exporter.
func WithFlusher(flusher write_buffer.Flusher[model.Span]) Option {
	return func(o *options) {
		o.flusher = flusher
	}
}

// New builds a running sensor. Callers must Shutdown it to flush the spans
// still buffered.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Sensor, error) {
	options := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&options)
	}

	s := &Sensor{logger: logger}
	flusher := options.flusher
	if flusher == nil {
		var err error
		flusher, err = s.newExporter(cfg)
		if err != nil {
			return nil, err
		}
	}

	s.buffer = write_buffer.NewSpanBuffer(
		flusher,
		write_buffer.Config{
			ForceFlushAt:  cfg.Transmission.ForceTransmissionStartingAt,
			FlushInterval: cfg.Transmission.TransmissionDelay,
			MaxBuffered:   cfg.Transmission.MaxBufferedSpans,
		},
		write_buffer.NewMetrics(options.registerer),
		logger,
	)

	tracerOptions := []service.TracerOption{
		service.WithServiceName(cfg.Tracing.ServiceName),
		service.WithStackTraceLength(cfg.Tracing.StackTraceLength),
		service.WithMetrics(service.NewMetrics(options.registerer)),
	}
	if hostname, err := os.Hostname(); err == nil {
		tracerOptions = append(tracerOptions, service.WithHostID(hostname))
	}
	if cfg.Tracing.AutoEndTimeout > 0 {
		watchdog, err := service.NewAutoEndWatchdog(cfg.Tracing.AutoEndTimeout, logger)
		if err != nil {
			_ = s.buffer.Close(context.Background())
			return nil, fmt.Errorf("failed to create auto end watchdog: %w", err)
		}
		s.watchdog = watchdog
		tracerOptions = append(tracerOptions, service.WithAutoEndWatchdog(watchdog))
	}

	s.Tracer = service.NewTracer(s.buffer, logger, tracerOptions...)
	s.Tracer.SetDisabled(cfg.Tracing.Disabled)
	s.Propagator = propagation.NewPropagator(s.Tracer, logger)
	s.Registry = instrumentation.NewRegistry(s.Tracer, s.Propagator, logger)
	s.SDK = sdk.New(s.Tracer, s.Propagator, logger)
	s.HTTP = http_tracing.New(s.Registry)
	s.GRPC = grpc_tracing.New(s.Registry)
	s.Elasticsearch = elasticsearch_tracing.New(s.Registry)
	s.LogHook = logrus_tracing.New(s.Registry)
	// registering the SQS shim up front lets it be switched before a client exists
	s.Registry.Init(aws_sqs.InstrumentationName)

	if !cfg.Tracing.DisableAutoInstr {
		s.Registry.Activate()
	}
	logger.Info("Sensor started",
		zap.String("service_name", cfg.Tracing.ServiceName),
		zap.String("exporter", cfg.Exporter.Kind),
		zap.Bool("tracing_disabled", cfg.Tracing.Disabled),
		zap.Bool("automatic_instrumentation", !cfg.Tracing.DisableAutoInstr),
	)
	return s, nil
}

func (s *Sensor) newExporter(cfg *config.Config) (write_buffer.Flusher[model.Span], error) {
	switch cfg.Exporter.Kind {
	case config.ExporterOTLP:
		conn, err := otlp_export.Dial(cfg.Exporter.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		s.conn = conn
		return otlp_export.NewExporterImpl(protoTrace.NewTraceServiceClient(conn), cfg.Tracing.ServiceName, s.logger), nil
	case config.ExporterAgent, "":
		retries := cfg.Agent.Retries
		if retries == 0 {
			retries = -1
		}
		return agentClient.NewAgentClientImpl(agentClient.Config{
			Host:         cfg.Agent.Host,
			Port:         cfg.Agent.Port,
			RetryMax:     retries,
			RetryWaitMin: cfg.Agent.RetryWaitMin,
			RetryWaitMax: cfg.Agent.RetryWaitMax,
		}, s.logger), nil
	default:
		return nil, fmt.Errorf("exporter %q: %w", cfg.Exporter.Kind, config.ErrInvalidConfig)
	}
}

// SQS wraps client so that its publish and consume calls are traced.
func (s *Sensor) SQS(client sqsiface.SQSAPI) *aws_sqs.SQS {
	return aws_sqs.New(client, s.Registry)
}

// Flush hands the buffered spans to the exporter now.
func (s *Sensor) Flush(ctx context.Context) error {
	return s.buffer.Flush(ctx)
}

// Shutdown flushes the remaining spans and releases the exporter.
func (s *Sensor) Shutdown(ctx context.Context) error {
	var errs []error
	if s.watchdog != nil {
		s.watchdog.Close()
	}
	if err := s.buffer.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush spans: %w", err))
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close OTLP connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
