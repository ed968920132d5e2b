package rpc

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/RowanDark/fbcrypt/internal/fbc"
	"github.com/RowanDark/fbcrypt/internal/logging"
	"github.com/RowanDark/fbcrypt/internal/observability/metrics"
	"github.com/RowanDark/fbcrypt/internal/observability/tracing"
)

// Default ceilings for x-fbc-runs and x-fbc-threads.
const (
	DefaultMaxRuns    = 64
	DefaultMaxThreads = 256
)

// Server implements CipherServer around a single key. Each request runs on
// its own WithParams view, so the shared cipher is never reconfigured.
type Server struct {
	cipher     *fbc.Cipher
	audit      *logging.AuditLogger
	maxRuns    int
	maxThreads int
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithAuditLogger overrides the audit logger used by the server.
func WithAuditLogger(logger *logging.AuditLogger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.audit = logger
		}
	}
}

// WithLimits caps the runs and threads a request may ask for. Values below
// one keep the defaults.
func WithLimits(maxRuns, maxThreads int) ServerOption {
	return func(s *Server) {
		if maxRuns > 0 {
			s.maxRuns = maxRuns
		}
		if maxThreads > 0 {
			s.maxThreads = maxThreads
		}
	}
}

// NewServer serves c. The runs and threads configured on c are the defaults
// for requests that do not send x-fbc-runs or x-fbc-threads.
func NewServer(c *fbc.Cipher, opts ...ServerOption) *Server {
	srv := &Server{
		cipher:     c,
		audit:      logging.Discard("rpc"),
		maxRuns:    DefaultMaxRuns,
		maxThreads: DefaultMaxThreads,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Encrypt encrypts the payload with the server key.
func (s *Server) Encrypt(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	view, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	data := req.GetValue()

	annotate(ctx, view, len(data))
	start := time.Now()
	out := view.Encrypt(data)
	metrics.ObserveCipher("encrypt", view.Threads(), len(data), time.Since(start))

	s.emit(ctx, logging.EventEncrypt, logging.DecisionAllow, "", map[string]any{
		"bytes_in":  len(data),
		"bytes_out": len(out),
		"runs":      view.Runs(),
		"threads":   view.Threads(),
	})
	return wrapperspb.Bytes(out), nil
}

// Decrypt reverses Encrypt. Frames that cannot be taken apart are rejected
// with InvalidArgument; mismatched parameters still yield garbage.
func (s *Server) Decrypt(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	view, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	data := req.GetValue()

	annotate(ctx, view, len(data))
	start := time.Now()
	out, err := view.Decrypt(data)
	if err != nil {
		reason := "internal"
		switch {
		case errors.Is(err, fbc.ErrShortCiphertext):
			reason = "short_ciphertext"
		case errors.Is(err, fbc.ErrMalformedFrame):
			reason = "malformed_frame"
		}
		metrics.RecordCipherError("decrypt", reason)
		s.emit(ctx, logging.EventFrameRejected, logging.DecisionDeny, err.Error(), map[string]any{
			"bytes_in": len(data),
			"runs":     view.Runs(),
			"threads":  view.Threads(),
		})
		if reason == "internal" {
			return nil, status.Error(codes.Internal, "decrypt failed")
		}
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	metrics.ObserveCipher("decrypt", view.Threads(), len(data), time.Since(start))

	s.emit(ctx, logging.EventDecrypt, logging.DecisionAllow, "", map[string]any{
		"bytes_in":  len(data),
		"bytes_out": len(out),
		"runs":      view.Runs(),
		"threads":   view.Threads(),
	})
	return wrapperspb.Bytes(out), nil
}

// GenerateKey returns a fresh random permutation key. The server key is not
// changed.
func (s *Server) GenerateKey(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	key, err := fbc.GenerateKey()
	if err != nil {
		return nil, status.Error(codes.Internal, "generate key")
	}
	metrics.RecordKeyGenerated()
	s.emit(ctx, logging.EventKeyGenerated, logging.DecisionAllow, "", nil)
	return wrapperspb.Bytes(key[:]), nil
}

func (s *Server) view(ctx context.Context) (*fbc.Cipher, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	runs, err := positiveHeader(md, MetadataRuns, s.maxRuns)
	if err != nil {
		return nil, err
	}
	threads, err := positiveHeader(md, MetadataThreads, s.maxThreads)
	if err != nil {
		return nil, err
	}
	return s.cipher.WithParams(runs, threads), nil
}

// positiveHeader reads an optional integer header in [1, limit]. A missing
// header yields zero, which WithParams ignores.
func positiveHeader(md metadata.MD, key string, limit int) (int, error) {
	values := md.Get(key)
	if len(values) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(values[0]))
	if err != nil || n < 1 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", key)
	}
	if n > limit {
		return 0, status.Errorf(codes.InvalidArgument, "%s exceeds the server limit of %d", key, limit)
	}
	return n, nil
}

func (s *Server) emit(ctx context.Context, eventType logging.EventType, decision logging.Decision, reason string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(logging.AuditEvent{
		EventType: eventType,
		Decision:  decision,
		RequestID: RequestIDFromContext(ctx),
		Reason:    reason,
		Metadata:  meta,
	})
}

func annotate(ctx context.Context, view *fbc.Cipher, size int) {
	span := tracing.SpanFromContext(ctx)
	span.SetAttribute("fbc.runs", view.Runs())
	span.SetAttribute("fbc.threads", view.Threads())
	span.SetAttribute("fbc.bytes_in", size)
}

// NewGRPCServer builds a gRPC server serving s behind the tracing, observe and
// auth interceptors, in that order, so rejected calls are still traced and
// counted.
func NewGRPCServer(s *Server, token string, audit *logging.AuditLogger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		tracing.UnaryServerInterceptor(),
		ObserveUnaryInterceptor(audit),
		AuthUnaryInterceptor(token, audit),
	))
	srv := grpc.NewServer(opts...)
	RegisterCipherServer(srv, s)
	return srv
}
