package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Avi18971911/AugurSensor/pkg/agent_stub/server"
	"github.com/Avi18971911/AugurSensor/pkg/agent_stub/store"
	"github.com/Avi18971911/AugurSensor/pkg/elasticsearch/bootstrapper"
	"github.com/Avi18971911/AugurSensor/pkg/elasticsearch/client"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/write_buffer"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
)

const (
	storeMemory        = "memory"
	storeElasticsearch = "elasticsearch"
	shutdownTimeout    = 10 * time.Second
)

type options struct {
	httpPort   int
	grpcPort   int
	store      string
	esRetries  int
	esWaitTime time.Duration
	flushDelay time.Duration
}

func (o *options) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.httpPort, "http-port", 42699, "Port accepting span batches from sensors")
	fs.IntVar(&o.grpcPort, "grpc-port", 4317, "Port accepting OTLP trace exports")
	fs.StringVar(&o.store, "store", storeMemory, "Where received spans are kept: memory or elasticsearch")
	fs.IntVar(&o.esRetries, "es-retries", bootstrapper.DefaultRetries, "Attempts to reach Elasticsearch on startup")
	fs.DurationVar(&o.esWaitTime, "es-wait-time", bootstrapper.DefaultWaitTime, "Delay between attempts to reach Elasticsearch")
	fs.DurationVar(&o.flushDelay, "flush-delay", 100*time.Millisecond, "How long received spans are buffered before they are stored")
}

func main() {
	opts := &options{}
	opts.AddFlags(pflag.CommandLine)
	pflag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	spanStore, err := newSpanStore(opts, logger)
	if err != nil {
		logger.Fatal("Failed to create the span store", zap.Error(err))
	}

	spanBuffer := write_buffer.NewWriteBufferImpl[model.Span](
		spanStore,
		write_buffer.Config{FlushInterval: opts.flushDelay},
		write_buffer.NewMetrics(prometheus.DefaultRegisterer),
		logger,
	)

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(opts.grpcPort))
	if err != nil {
		logger.Fatal("Failed to listen", zap.Error(err))
	}
	srv := grpc.NewServer()
	protoTrace.RegisterTraceServiceServer(srv, server.NewTraceServiceServerImpl(logger, spanBuffer))

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(opts.httpPort),
		Handler: server.CreateRouter(spanBuffer, spanStore, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC service started, listening for OpenTelemetry traces...", zap.Int("port", opts.grpcPort))
		return srv.Serve(listener)
	})
	g.Go(func() error {
		logger.Info("Agent stub listening for span batches", zap.Int("port", opts.httpPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down agent stub")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("Agent stub stopped", zap.Error(err))
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := spanBuffer.Close(closeCtx); err != nil {
		logger.Error("Failed to flush the remaining spans", zap.Error(err))
	}
}

func newSpanStore(opts *options, logger *zap.Logger) (store.SpanStore, error) {
	switch opts.store {
	case storeMemory:
		return store.NewMemoryStore(), nil
	case storeElasticsearch:
		es, err := elasticsearch.NewDefaultClient()
		if err != nil {
			return nil, err
		}
		bs := bootstrapper.NewBootstrapper(es, opts.esRetries, opts.esWaitTime, logger)
		if err := bs.BootstrapElasticsearch(); err != nil {
			return nil, err
		}
		return store.NewElasticsearchStore(
			client.NewStoreClientImpl(es, client.Wait),
			bootstrapper.SpanIndexName,
			logger,
		), nil
	default:
		return nil, errors.New("unknown store " + strconv.Quote(opts.store))
	}
}
