package server

import (
	"io"
	"net/http"

	"github.com/Avi18971911/AugurSensor/pkg/agent_stub/store"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/write_buffer"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

type ErrorMessage struct {
	Message string `json:"message"`
}

// TracesHandler accepts a JSON array of spans posted by a sensor.
func TracesHandler(buffer write_buffer.WriteBuffer[model.Span], logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			logger.Error("Error encountered when reading request body", zap.Error(err))
			HttpError(w, "Unable to read request body", http.StatusBadRequest, logger)
			return
		}
		var spans []model.Span
		if err := sonic.Unmarshal(body, &spans); err != nil {
			logger.Warn("Rejecting malformed span batch", zap.Error(err))
			HttpError(w, "Invalid span batch", http.StatusBadRequest, logger)
			return
		}
		if err := buffer.WriteToBuffer(spans...); err != nil {
			logger.Error("Failed to buffer spans", zap.Error(err))
			HttpError(w, "Agent is shutting down", http.StatusServiceUnavailable, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListSpansHandler returns every span received so far.
func ListSpansHandler(buffer write_buffer.WriteBuffer[model.Span], spanStore store.SpanStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := buffer.Flush(r.Context()); err != nil {
			logger.Error("Failed to flush buffered spans", zap.Error(err))
		}
		spans, err := spanStore.Spans(r.Context())
		if err != nil {
			logger.Error("Failed to list spans", zap.Error(err))
			HttpError(w, "Unable to list spans", http.StatusInternalServerError, logger)
			return
		}
		if spans == nil {
			spans = []model.Span{}
		}
		body, err := sonic.Marshal(spans)
		if err != nil {
			logger.Error("Error encountered during JSON encoding of spans", zap.Error(err))
			HttpError(w, "Unable to encode spans", http.StatusInternalServerError, logger)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}

// ResetSpansHandler forgets every span received so far.
func ResetSpansHandler(buffer write_buffer.WriteBuffer[model.Span], spanStore store.SpanStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := buffer.Flush(r.Context()); err != nil {
			logger.Error("Failed to flush buffered spans", zap.Error(err))
		}
		if err := spanStore.Reset(r.Context()); err != nil {
			logger.Error("Failed to reset spans", zap.Error(err))
			HttpError(w, "Unable to reset spans", http.StatusInternalServerError, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HttpError(w http.ResponseWriter, message string, statusCode int, logger *zap.Logger) {
	body, err := sonic.Marshal(ErrorMessage{Message: message})
	if err != nil {
		logger.Error("Failed to encode error message", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}
