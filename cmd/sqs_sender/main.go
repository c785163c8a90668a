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
	"github.com/Avi18971911/AugurSensor/internal/sqs_sender/router"
	"github.com/Avi18971911/AugurSensor/pkg/sensor"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	port       int
	queueURL   string
	region     string
	endpoint   string
	useFakeSQS bool
}

func (o *options) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.port, "port", 3216, "Port the sender listens on")
	fs.StringVar(&o.queueURL, "queue-url", os.Getenv("AWS_SQS_QUEUE_URL"), "URL of the queue to publish to")
	fs.StringVar(&o.region, "region", "us-east-2", "AWS region of the queue")
	fs.StringVar(&o.endpoint, "endpoint", "", "Custom SQS endpoint, e.g. a local emulator")
	fs.BoolVar(&o.useFakeSQS, "fake-sqs", false, "Publish to an in-memory queue instead of SQS")
}

func initLogger() *logrus.Logger {
	log := logrus.New()
	log.Level = logrus.InfoLevel
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
	return log
}

func main() {
	opts := &options{}
	opts.AddFlags(pflag.CommandLine)
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	sensorLogger := logging.NewOrProduction(cfg.Logging)
	defer sensorLogger.Sync()
	if err != nil {
		sensorLogger.Warn("Falling back to the default configuration", zap.Error(err))
	}

	s, err := sensor.New(cfg, sensorLogger)
	if err != nil {
		sensorLogger.Fatal("Failed to start the sensor", zap.Error(err))
	}

	logger := initLogger()
	logger.AddHook(s.LogHook)

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
	if opts.queueURL == "" {
		logger.Fatal("A queue URL is required, set --queue-url or AWS_SQS_QUEUE_URL")
	}

	r := router.CreateRouter(s.SQS(client), opts.queueURL, s.HTTP.Middleware, logger)
	srv := &http.Server{Addr: ":" + strconv.Itoa(opts.port), Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		logger.Infof("AWS SQS message sender listening on port %d", opts.port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Stopped Listening to Webserver! %v", err)
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Failed to shut down the webserver: %v", err)
	}
	if err := s.Shutdown(shutdownCtx); err != nil {
		sensorLogger.Error("Failed to shut down the sensor", zap.Error(err))
	}
}
