package server

import (
	"net/http"

	"github.com/Avi18971911/AugurSensor/pkg/agent_stub/store"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/write_buffer"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func CreateRouter(
	buffer write_buffer.WriteBuffer[model.Span],
	spanStore store.SpanStore,
	logger *zap.Logger,
) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/com.instana.plugin.golang/traces.{pid:[0-9]+}", TracesHandler(buffer, logger)).Methods(http.MethodPost)
	r.Handle("/spans", ListSpansHandler(buffer, spanStore, logger)).Methods(http.MethodGet)
	r.Handle("/spans", ResetSpansHandler(buffer, spanStore, logger)).Methods(http.MethodDelete)
	return r
}
