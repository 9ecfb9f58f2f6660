package skyapi

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/thyrannic-sky/internal/logging"
	"github.com/signalsfoundry/thyrannic-sky/internal/observability"
)

const requestIDMetadataKey = "x-request-id"

// NewServer builds a gRPC server with OpenTelemetry stats, request IDs and
// Prometheus interceptors installed. collector may be nil.
func NewServer(log logging.Logger, collector *observability.SkyCollector, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			collector.UnaryServerInterceptor(),
		),
	}
	return grpc.NewServer(append(base, opts...)...)
}

// RequestIDUnaryServerInterceptor takes the request ID from inbound
// x-request-id metadata or mints one, and stores a logger annotated with
// the method on the context.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(requestIDMetadataKey); len(vals) > 0 && vals[0] != "" {
				ctx = logging.ContextWithRequestID(ctx, vals[0])
			}
		}
		ctx, _ = logging.EnsureRequestID(ctx)

		reqLog := base.With(logging.String("method", info.FullMethod))
		ctx = logging.ContextWithLogger(ctx, reqLog)

		resp, err := handler(ctx, req)
		if err != nil {
			reqLog.Warn(ctx, "rpc failed", logging.String("code", status.Code(err).String()), logging.Err(err))
		}
		return resp, err
	}
}
