package router

import (
	"net/http"

	"github.com/Avi18971911/AugurSensor/internal/sqs_sender/handler"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func CreateRouter(
	sender handler.MessageSender,
	queueURL string,
	middleware mux.MiddlewareFunc,
	logger *logrus.Logger,
) http.Handler {
	r := mux.NewRouter()
	if middleware != nil {
		r.Use(middleware)
	}
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	r.Handle("/send-callback", handler.SendCallbackHandler(sender, queueURL, logger)).Methods(http.MethodPost)
	r.Handle("/send-promise", handler.SendPromiseHandler(sender, queueURL, logger)).Methods(http.MethodPost)
	r.Handle("/send-sync", handler.SendSyncHandler(sender, queueURL, logger)).Methods(http.MethodPost)
	return r
}
