// Package grpc_tracing provides gRPC interceptors that trace served calls as
// rpc-server ENTRY spans and outgoing calls as rpc-client EXIT spans.
package grpc_tracing

import (
	"context"

	"github.com/Avi18971911/AugurSensor/pkg/instrumentation"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

const (
	InstrumentationName = "rpc"
	serverSpanName      = "rpc-server"
	clientSpanName      = "rpc-client"
	category            = "rpc"
	flavor              = "grpc"
)

type Tracing struct {
	shim *instrumentation.Shim
}

func New(registry *instrumentation.Registry) *Tracing {
	return &Tracing{shim: registry.Init(InstrumentationName)}
}

// metadataCarrier reads and writes trace context as gRPC metadata. Metadata
// keys are case-insensitive, so the X-INSTANA-* keys travel lowercased.
type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) (string, bool) {
	values := metadata.MD(c).Get(key)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (c metadataCarrier) Set(key string, value string) {
	metadata.MD(c).Set(key, value)
}

func (t *Tracing) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		spanCtx, span := t.serverSpan(ctx, info.FullMethod)
		defer instrumentation.EndOnPanic(span)
		resp, err := handler(spanCtx, req)
		span.Complete(err)
		return resp, err
	}
}

func (t *Tracing) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		spanCtx, span := t.serverSpan(ss.Context(), info.FullMethod)
		span.SetData(category, "streaming", true)
		wrapped := &tracedServerStream{
			ServerStream: ss,
			ctx:          spanCtx,
		}
		defer instrumentation.EndOnPanic(span)
		err := handler(srv, wrapped)
		span.Complete(err)
		return err
	}
}

func (t *Tracing) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		outgoing, _ := metadata.FromOutgoingContext(ctx)
		outgoing = outgoing.Copy()
		options := callOptions(method)
		if cc != nil {
			options = append(options, service.WithData(category, "host", cc.Target()))
		}
		op := instrumentation.Operation[struct{}]{
			Name:    clientSpanName,
			Kind:    model.Exit,
			Carrier: metadataCarrier(outgoing),
			Options: options,
		}
		_, err := instrumentation.Call(ctx, t.shim, op, func(callCtx context.Context) (struct{}, error) {
			return struct{}{}, invoker(metadata.NewOutgoingContext(callCtx, outgoing), method, req, reply, cc, opts...)
		})
		return err
	}
}

func (t *Tracing) serverSpan(ctx context.Context, fullMethod string) (context.Context, *service.Span) {
	incoming, _ := metadata.FromIncomingContext(ctx)
	options := callOptions(fullMethod)
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		options = append(options, service.WithData(category, "host", p.Addr.String()))
	}
	return t.shim.Entry(ctx, serverSpanName, metadataCarrier(incoming), options...)
}

func callOptions(method string) []service.StartOption {
	return []service.StartOption{
		service.WithCategory(category),
		service.WithData(category, "flavor", flavor),
		service.WithData(category, "call", method),
	}
}

type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}
