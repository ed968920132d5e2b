package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Span represents an in-flight trace span.
type Span interface {
	TraceID() string
	End()
	EndWithStatus(status SpanStatus, description string)
	SetAttribute(key string, value any)
	RecordError(err error)
}

type spanConfig struct {
	kind       SpanKind
	attributes map[string]any
}

// SpanStartOption configures start behaviour for spans.
type SpanStartOption func(*spanConfig)

// WithSpanKind sets the span kind.
func WithSpanKind(kind SpanKind) SpanStartOption {
	return func(cfg *spanConfig) {
		cfg.kind = kind
	}
}

// WithAttributes attaches attributes to the span on start.
func WithAttributes(attrs map[string]any) SpanStartOption {
	return func(cfg *spanConfig) {
		if cfg.attributes == nil {
			cfg.attributes = make(map[string]any, len(attrs))
		}
		for k, v := range attrs {
			cfg.attributes[k] = v
		}
	}
}

// StartSpan begins a new span derived from ctx. Without an active tracer the
// returned span records nothing but still reports the inherited trace ID.
func StartSpan(ctx context.Context, name string, opts ...SpanStartOption) (context.Context, Span) {
	cfg := spanConfig{kind: SpanKindInternal}
	for _, opt := range opts {
		opt(&cfg)
	}
	tracer := CurrentTracer()
	if tracer == nil {
		return ctx, noopSpan{traceID: TraceIDFromContext(ctx)}
	}

	options := []trace.SpanStartOption{trace.WithSpanKind(cfg.kind)}
	if len(cfg.attributes) > 0 {
		options = append(options, trace.WithAttributes(mapToAttributes(cfg.attributes)...))
	}
	ctx, span := tracer.tracer.Start(ctx, name, options...)
	return ctx, &otelSpanWrapper{span: span}
}

// SpanFromContext retrieves the active span, returning a noop span if none
// is recording.
func SpanFromContext(ctx context.Context) Span {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		return &otelSpanWrapper{span: span}
	}
	return noopSpan{traceID: TraceIDFromContext(ctx)}
}

// TraceIDFromContext extracts the trace identifier, or "" when unavailable.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

type otelSpanWrapper struct {
	span trace.Span
}

func (s *otelSpanWrapper) TraceID() string {
	return s.span.SpanContext().TraceID().String()
}

func (s *otelSpanWrapper) End() {
	s.span.End()
}

func (s *otelSpanWrapper) EndWithStatus(status SpanStatus, description string) {
	switch status {
	case StatusError:
		s.span.SetStatus(codes.Error, description)
	case StatusOK:
		s.span.SetStatus(codes.Ok, description)
	}
	s.span.End()
}

func (s *otelSpanWrapper) SetAttribute(key string, value any) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	s.span.SetAttributes(attribute.KeyValue{Key: attribute.Key(key), Value: attributeValue(value)})
}

func (s *otelSpanWrapper) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

type noopSpan struct {
	traceID string
}

func (n noopSpan) TraceID() string                { return n.traceID }
func (noopSpan) End()                             {}
func (noopSpan) EndWithStatus(SpanStatus, string) {}
func (noopSpan) SetAttribute(string, any)         {}
func (noopSpan) RecordError(error)                {}

// SpanStatus represents the outcome of a span.
type SpanStatus string

const (
	StatusUnset SpanStatus = "unset"
	StatusOK    SpanStatus = "ok"
	StatusError SpanStatus = "error"
)

type spanEvent struct {
	Name       string         `json:"name"`
	Time       time.Time      `json:"time"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// SpanSnapshot is the JSON form of a finished span.
type SpanSnapshot struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Events       []spanEvent    `json:"events,omitempty"`
	Status       SpanStatus     `json:"status"`
	StatusMsg    string         `json:"status_message,omitempty"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	ServiceName  string         `json:"service_name,omitempty"`
}

// Duration returns the elapsed time recorded by the span.
func (s *SpanSnapshot) Duration() time.Duration {
	if s == nil || s.EndTime.IsZero() || s.StartTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

func (s *SpanSnapshot) MarshalJSON() ([]byte, error) {
	type alias SpanSnapshot
	out := &struct {
		*alias
		DurationMS float64 `json:"duration_ms"`
	}{alias: (*alias)(s)}
	out.DurationMS = float64(s.Duration().Microseconds()) / 1000
	return json.Marshal(out)
}

func spanSnapshotFromReadOnly(span sdktrace.ReadOnlySpan) *SpanSnapshot {
	sc := span.SpanContext()
	if !sc.IsValid() {
		return nil
	}

	var events []spanEvent
	for _, event := range span.Events() {
		events = append(events, spanEvent{Name: event.Name, Time: event.Time, Attributes: attributeMap(event.Attributes)})
	}

	status := StatusUnset
	switch span.Status().Code {
	case codes.Ok:
		status = StatusOK
	case codes.Error:
		status = StatusError
	}

	parentID := ""
	if parent := span.Parent(); parent.IsValid() {
		parentID = parent.SpanID().String()
	}

	serviceName := ""
	if resource := span.Resource(); resource != nil {
		if v, ok := resource.Set().Value(semconv.ServiceNameKey); ok {
			serviceName = v.AsString()
		}
	}

	return &SpanSnapshot{
		TraceID:      sc.TraceID().String(),
		SpanID:       sc.SpanID().String(),
		ParentSpanID: parentID,
		Name:         span.Name(),
		Kind:         span.SpanKind().String(),
		Attributes:   attributeMap(span.Attributes()),
		Events:       events,
		Status:       status,
		StatusMsg:    span.Status().Description,
		StartTime:    span.StartTime(),
		EndTime:      span.EndTime(),
		ServiceName:  serviceName,
	}
}

func attributeMap(kvs []attribute.KeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func mapToAttributes(attrs map[string]any) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.KeyValue{Key: attribute.Key(k), Value: attributeValue(v)})
	}
	return kvs
}

func attributeValue(value any) attribute.Value {
	switch v := value.(type) {
	case string:
		return attribute.StringValue(v)
	case bool:
		return attribute.BoolValue(v)
	case int:
		return attribute.IntValue(v)
	case int64:
		return attribute.Int64Value(v)
	case float64:
		return attribute.Float64Value(v)
	case fmt.Stringer:
		return attribute.StringValue(v.String())
	default:
		return attribute.StringValue(fmt.Sprintf("%v", v))
	}
}

// SpanKind describes the role of the span relative to external systems.
type SpanKind = trace.SpanKind

const (
	SpanKindInternal = trace.SpanKindInternal
	SpanKindServer   = trace.SpanKindServer
	SpanKindClient   = trace.SpanKindClient
)
