package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Avi18971911/AugurSensor/pkg/agent/client"
	"github.com/Avi18971911/AugurSensor/pkg/agent_stub/store"
	"github.com/Avi18971911/AugurSensor/pkg/otlp_export"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/write_buffer"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func TestCreateRouter(t *testing.T) {
	t.Run("Serves the spans a sensor posted", func(t *testing.T) {
		server, _ := getNewAgentStub(t)
		ac := getNewAgentClient(t, server)

		spans := []model.Span{{TraceID: "a1", SpanID: "b2", Kind: model.Entry, Name: "sqs"}}
		require.Nil(t, ac.Flush(context.Background(), spans))

		listed := listSpans(t, server)
		require.Len(t, listed, 1)
		assert.Equal(t, "b2", listed[0].SpanID)
	})

	t.Run("Forgets spans on reset", func(t *testing.T) {
		server, _ := getNewAgentStub(t)
		ac := getNewAgentClient(t, server)
		require.Nil(t, ac.Flush(context.Background(), []model.Span{{TraceID: "a1", SpanID: "b2"}}))

		req, _ := http.NewRequest(http.MethodDelete, server.URL+"/spans", nil)
		resp, err := server.Client().Do(req)
		require.Nil(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		assert.Empty(t, listSpans(t, server))
	})

	t.Run("Rejects a malformed batch", func(t *testing.T) {
		server, _ := getNewAgentStub(t)

		resp, err := server.Client().Post(server.URL+"/com.instana.plugin.golang/traces.1", "application/json", strings.NewReader("{"))
		require.Nil(t, err)
		_ = resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Answers availability checks", func(t *testing.T) {
		server, _ := getNewAgentStub(t)

		resp, err := server.Client().Head(server.URL + "/")
		require.Nil(t, err)
		_ = resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestTraceServiceServerImpl_Export(t *testing.T) {
	t.Run("Stores exported spans", func(t *testing.T) {
		server, buffer := getNewAgentStub(t)
		exporter := getNewExporter(t, buffer)
		spans := []model.Span{
			{TraceID: "a1", SpanID: "b2", Kind: model.Entry, Name: "sqs", Timestamp: 1000, Duration: 5},
			{TraceID: "a1", ParentID: "b2", SpanID: "c3", Kind: model.Exit, Name: "sqs", Timestamp: 1001, Duration: 2},
		}

		require.Nil(t, exporter.Flush(context.Background(), spans))

		listed := listSpans(t, server)
		require.Len(t, listed, 2)
		assert.Equal(t, "00000000000000a1", listed[1].TraceID)
		assert.Equal(t, "00000000000000b2", listed[1].ParentID)
		assert.Equal(t, model.Exit, listed[1].Kind)
	})

	t.Run("Reports spans it could not accept", func(t *testing.T) {
		_, buffer := getNewAgentStub(t)
		require.Nil(t, buffer.Close(context.Background()))
		tss := NewTraceServiceServerImpl(zap.NewNop(), buffer)
		req := &protoTrace.ExportTraceServiceRequest{
			ResourceSpans: otlp_export.ToResourceSpans([]model.Span{{TraceID: "a1", SpanID: "b2"}}, "sender"),
		}

		resp, err := tss.Export(context.Background(), req)

		require.Nil(t, err)
		assert.Equal(t, int64(1), resp.GetPartialSuccess().GetRejectedSpans())
	})
}

func listSpans(t *testing.T, server *httptest.Server) []model.Span {
	resp, err := server.Client().Get(server.URL + "/spans")
	require.Nil(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.Nil(t, err)
	var spans []model.Span
	require.Nil(t, sonic.Unmarshal(body, &spans))
	return spans
}

func getNewAgentStub(t *testing.T) (*httptest.Server, *write_buffer.WriteBufferImpl[model.Span]) {
	spanStore := store.NewMemoryStore()
	buffer := write_buffer.NewWriteBufferImpl[model.Span](
		spanStore,
		write_buffer.Config{FlushInterval: time.Hour},
		nil,
		zap.NewNop(),
	)
	t.Cleanup(func() {
		_ = buffer.Close(context.Background())
	})
	server := httptest.NewServer(CreateRouter(buffer, spanStore, zap.NewNop()))
	t.Cleanup(server.Close)
	return server, buffer
}

func getNewAgentClient(t *testing.T, server *httptest.Server) *client.AgentClientImpl {
	host, portValue, err := net.SplitHostPort(server.Listener.Addr().String())
	require.Nil(t, err)
	port, err := strconv.Atoi(portValue)
	require.Nil(t, err)
	return client.NewAgentClientImpl(client.Config{Host: host, Port: port}, zap.NewNop())
}

func getNewExporter(t *testing.T, buffer write_buffer.WriteBuffer[model.Span]) *otlp_export.ExporterImpl {
	listener := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	protoTrace.RegisterTraceServiceServer(srv, NewTraceServiceServerImpl(zap.NewNop(), buffer))
	go func() {
		_ = srv.Serve(listener)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.Nil(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return otlp_export.NewExporterImpl(protoTrace.NewTraceServiceClient(conn), "sender", zap.NewNop())
}
