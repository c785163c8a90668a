// Package otlp_export ships finished spans to an OpenTelemetry collector over
// OTLP/gRPC, and converts OTLP spans back into span records.
package otlp_export

import (
	"context"
	"fmt"

	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
)

const DefaultEndpoint = "localhost:4317"

type ExporterImpl struct {
	client      protoTrace.TraceServiceClient
	serviceName string
	logger      *zap.Logger
}

func NewExporterImpl(client protoTrace.TraceServiceClient, serviceName string, logger *zap.Logger) *ExporterImpl {
	return &ExporterImpl{
		client:      client,
		serviceName: serviceName,
		logger:      logger,
	}
}

// Dial opens a plaintext, gzip compressed connection to an OTLP endpoint.
func Dial(endpoint string) (*grpc.ClientConn, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	conn, err := grpc.NewClient(
		endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.UseCompressor(gzip.Name)),
	)
	if err != nil {
		return nil, fmt.Errorf("error connecting to OTLP endpoint %s: %w", endpoint, err)
	}
	return conn, nil
}

func (e *ExporterImpl) Flush(ctx context.Context, spans []model.Span) error {
	if len(spans) == 0 {
		return nil
	}
	req := &protoTrace.ExportTraceServiceRequest{
		ResourceSpans: ToResourceSpans(spans, e.serviceName),
	}
	resp, err := e.client.Export(ctx, req)
	if err != nil {
		return fmt.Errorf("error exporting %d spans: %w", len(spans), err)
	}
	if partial := resp.GetPartialSuccess(); partial.GetRejectedSpans() > 0 {
		e.logger.Warn("Collector rejected spans",
			zap.Int64("rejected", partial.GetRejectedSpans()),
			zap.String("reason", partial.GetErrorMessage()),
		)
	}
	return nil
}
