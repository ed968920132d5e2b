package rpc

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/RowanDark/fbcrypt/internal/logging"
	"github.com/RowanDark/fbcrypt/internal/observability/metrics"
	"github.com/RowanDark/fbcrypt/internal/observability/tracing"
)

type requestIDKey struct{}

// RequestIDFromContext returns the request ID assigned by
// ObserveUnaryInterceptor, or "" outside an RPC.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ObserveUnaryInterceptor assigns each call a request ID (reusing a
// well-formed x-request-id from the client), echoes it in the response
// header, and records metrics and an rpc_call audit event.
func ObserveUnaryInterceptor(audit *logging.AuditLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := incomingRequestID(ctx)
		ctx = context.WithValue(ctx, requestIDKey{}, id)
		_ = grpc.SetHeader(ctx, metadata.Pairs(MetadataRequestID, id))

		done := metrics.TrackInFlight()
		defer done()
		metrics.RecordRPCRequest(info.FullMethod)

		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)

		code := status.Code(err)
		metrics.ObserveRPCLatency(info.FullMethod, code.String(), elapsed)
		if err != nil {
			metrics.RecordRPCError(info.FullMethod, code.String())
		}
		if audit != nil {
			decision := logging.DecisionAllow
			if err != nil {
				decision = logging.DecisionDeny
			}
			meta := map[string]any{
				"method":      info.FullMethod,
				"code":        code.String(),
				"duration_ms": elapsed.Milliseconds(),
			}
			if traceID := tracing.TraceIDFromContext(ctx); traceID != "" {
				meta["trace_id"] = traceID
			}
			_ = audit.Emit(logging.AuditEvent{
				EventType: logging.EventRPCCall,
				Decision:  decision,
				RequestID: id,
				Metadata:  meta,
			})
		}
		return resp, err
	}
}

// AuthUnaryInterceptor requires "authorization: Bearer <token>" on every
// call. An empty token disables the check.
func AuthUnaryInterceptor(token string, audit *logging.AuditLogger) grpc.UnaryServerInterceptor {
	expected := []byte(strings.TrimSpace(token))
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if len(expected) == 0 {
			return handler(ctx, req)
		}
		presented := bearerToken(ctx)
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
			if audit != nil {
				_ = audit.Emit(logging.AuditEvent{
					EventType: logging.EventRPCDenied,
					Decision:  logging.DecisionDeny,
					RequestID: RequestIDFromContext(ctx),
					Reason:    "missing or invalid bearer token",
					Metadata:  map[string]any{"method": info.FullMethod},
				})
			}
			return nil, status.Error(codes.Unauthenticated, "invalid auth token")
		}
		return handler(ctx, req)
	}
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(MetadataAuthorization) {
		scheme, token, found := strings.Cut(strings.TrimSpace(v), " ")
		if found && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, v := range md.Get(MetadataRequestID) {
			if parsed, err := uuid.Parse(strings.TrimSpace(v)); err == nil {
				return parsed.String()
			}
		}
	}
	return uuid.NewString()
}
