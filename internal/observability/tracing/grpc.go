package tracing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// propagator carries W3C traceparent headers. It is used even when no tracer
// is configured so trace IDs survive hops through untraced processes.
var propagator = propagation.TraceContext{}

// metadataCarrier adapts gRPC metadata to propagation.TextMapCarrier.
type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	values := metadata.MD(c).Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (c metadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// UnaryServerInterceptor continues any trace found in incoming metadata and
// wraps the handler in a server span.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			ctx = propagator.Extract(ctx, metadataCarrier(md))
		}
		ctx, span := StartSpan(ctx, info.FullMethod, WithSpanKind(SpanKindServer), WithAttributes(rpcAttributes(info.FullMethod)))
		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.End()
			return resp, err
		}
		span.EndWithStatus(StatusOK, "")
		return resp, nil
	}
}

// UnaryClientInterceptor wraps outgoing calls in a client span and injects
// the trace context into the request metadata.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx, span := StartSpan(ctx, method, WithSpanKind(SpanKindClient), WithAttributes(rpcAttributes(method)))
		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.MD{}
		}
		propagator.Inject(ctx, metadataCarrier(md))
		err := invoker(metadata.NewOutgoingContext(ctx, md), method, req, reply, cc, opts...)
		if err != nil {
			span.RecordError(err)
			span.End()
			return err
		}
		span.EndWithStatus(StatusOK, "")
		return nil
	}
}

func rpcAttributes(fullMethod string) map[string]any {
	attrs := map[string]any{"rpc.system": "grpc"}
	service, method := splitMethod(fullMethod)
	if service != "" {
		attrs["rpc.service"] = service
	}
	if method != "" {
		attrs["rpc.method"] = method
	}
	return attrs
}

func splitMethod(full string) (string, string) {
	full = strings.TrimPrefix(full, "/")
	parts := strings.Split(full, "/")
	if len(parts) != 2 {
		return full, ""
	}
	return parts[0], parts[1]
}
