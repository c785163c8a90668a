package server

import (
	"context"

	"github.com/Avi18971911/AugurSensor/pkg/otlp_export"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/write_buffer"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
)

// TraceServiceServerImpl accepts OTLP exports and buffers them like span
// batches posted to the agent endpoint.
type TraceServiceServerImpl struct {
	protoTrace.UnimplementedTraceServiceServer
	logger *zap.Logger
	buffer write_buffer.WriteBuffer[model.Span]
}

func NewTraceServiceServerImpl(
	logger *zap.Logger,
	buffer write_buffer.WriteBuffer[model.Span],
) TraceServiceServerImpl {
	logger.Info("Creating new TraceServiceServerImpl")
	return TraceServiceServerImpl{
		logger: logger,
		buffer: buffer,
	}
}

func (tss TraceServiceServerImpl) Export(
	ctx context.Context,
	req *protoTrace.ExportTraceServiceRequest,
) (*protoTrace.ExportTraceServiceResponse, error) {
	rejected := int64(0)
	for _, resourceSpan := range req.ResourceSpans {
		spans := otlp_export.FromResourceSpans(resourceSpan)
		for traceID, group := range groupSpansByTraceID(spans) {
			tss.logger.Debug("Received spans", zap.String("trace_id", traceID), zap.Int("count", len(group)))
		}
		if err := tss.buffer.WriteToBuffer(spans...); err != nil {
			tss.logger.Error("Failed to buffer spans", zap.Error(err))
			rejected += int64(len(spans))
		}
	}

	resp := &protoTrace.ExportTraceServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &protoTrace.ExportTracePartialSuccess{
			RejectedSpans: rejected,
			ErrorMessage:  write_buffer.ErrBufferClosed.Error(),
		}
	}
	return resp, nil
}

func groupSpansByTraceID(spans []model.Span) map[string][]model.Span {
	groupedSpans := make(map[string][]model.Span)
	for _, span := range spans {
		groupedSpans[span.TraceID] = append(groupedSpans[span.TraceID], span)
	}
	return groupedSpans
}
