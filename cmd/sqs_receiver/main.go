package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Avi18971911/AugurSensor/internal/config"
	"github.com/Avi18971911/AugurSensor/internal/fake_queue"
	"github.com/Avi18971911/AugurSensor/internal/logging"
	"github.com/Avi18971911/AugurSensor/internal/sqs_receiver/poller"
	"github.com/Avi18971911/AugurSensor/pkg/sensor"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/gorilla/mux"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	port          int
	queueURL      string
	region        string
	endpoint      string
	useFakeSQS    bool
	receiveMethod string
	followUpURL   string
	waitTime      int64
}

func (o *options) AddFlags(fs *pflag.FlagSet) {
	method := os.Getenv("RECEIVE_METHOD")
	if method == "" {
		method = string(poller.ReceiveCallback)
	}
	fs.IntVar(&o.port, "port", 3125, "Port of the readiness endpoint")
	fs.StringVar(&o.queueURL, "queue-url", os.Getenv("AWS_SQS_QUEUE_URL"), "URL of the queue to poll")
	fs.StringVar(&o.region, "region", "us-east-2", "AWS region of the queue")
	fs.StringVar(&o.endpoint, "endpoint", "", "Custom SQS endpoint, e.g. a local emulator")
	fs.BoolVar(&o.useFakeSQS, "fake-sqs", false, "Poll an in-memory queue instead of SQS")
	fs.StringVar(&o.receiveMethod, "receive-method", method, "callback or promise")
	fs.StringVar(&o.followUpURL, "follow-up-url", "", "URL requested after each message; defaults to the agent")
	fs.Int64Var(&o.waitTime, "wait-time", 5, "Long poll wait time in seconds")
}

func main() {
	opts := &options{}
	opts.AddFlags(pflag.CommandLine)
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	logger := logging.NewOrProduction(cfg.Logging)
	defer logger.Sync()
	if err != nil {
		logger.Warn("Falling back to the default configuration", zap.Error(err))
	}

	method, err := poller.ParseReceiveMethod(opts.receiveMethod)
	if err != nil {
		logger.Fatal("Invalid receive method", zap.Error(err))
	}
	if opts.queueURL == "" {
		logger.Fatal("A queue URL is required, set --queue-url or AWS_SQS_QUEUE_URL")
	}
	followUpURL := opts.followUpURL
	if followUpURL == "" {
		followUpURL = "http://" + cfg.Agent.Host + ":" + strconv.Itoa(cfg.Agent.Port)
	}

	s, err := sensor.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start the sensor", zap.Error(err))
	}

	var client sqsiface.SQSAPI
	if opts.useFakeSQS {
		client = fake_queue.NewFakeQueue()
	} else {
		awsConfig := aws.NewConfig().WithRegion(opts.region)
		if opts.endpoint != "" {
			awsConfig = awsConfig.WithEndpoint(opts.endpoint)
		}
		client = sqs.New(session.Must(session.NewSession(awsConfig)))
	}

	p := poller.NewPoller(s.SQS(client), s.HTTP.Client(http.DefaultClient), s.Tracer, poller.Config{
		QueueURL:        opts.queueURL,
		Method:          method,
		WaitTimeSeconds: opts.waitTime,
		FollowUpURL:     followUpURL,
	}, logger)

	r := mux.NewRouter()
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !p.IsPolling() {
			http.Error(w, "Not ready yet.", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	srv := &http.Server{Addr: ":" + strconv.Itoa(opts.port), Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		logger.Info("Receiver listening", zap.Int("port", opts.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Stopped listening", zap.Error(err))
		}
	}()
	if err := p.Run(ctx); err != nil {
		logger.Error("Polling stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down the readiness endpoint", zap.Error(err))
	}
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down the sensor", zap.Error(err))
	}
}
