package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartRegisterSpan starts a span for one registration.
	StartRegisterSpan(ctx context.Context, path string, backends int) (context.Context, trace.Span)

	// StartListSpan starts a span for one listing.
	StartListSpan(ctx context.Context) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct {
	provider trace.TracerProvider
}

// NewSpanManager returns a SpanManager that uses the global OTel tracer
// provider at the time each span starts.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// NewSpanManagerWithProvider returns a SpanManager bound to provider.
func NewSpanManagerWithProvider(provider trace.TracerProvider) SpanManager {
	return &otelSpanManager{provider: provider}
}

func (m *otelSpanManager) tracer() trace.Tracer {
	if m.provider != nil {
		return m.provider.Tracer(instrumentationName)
	}
	return otel.Tracer(instrumentationName)
}

// StartRegisterSpan starts a span for one registration.
func (m *otelSpanManager) StartRegisterSpan(ctx context.Context, path string, backends int) (context.Context, trace.Span) {
	return m.tracer().Start(ctx, "nexusmesh.register",
		trace.WithAttributes(
			attribute.String("route.path", path),
			attribute.Int("route.backends", backends),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartListSpan starts a span for one listing.
func (m *otelSpanManager) StartListSpan(ctx context.Context) (context.Context, trace.Span) {
	return m.tracer().Start(ctx, "nexusmesh.list",
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
