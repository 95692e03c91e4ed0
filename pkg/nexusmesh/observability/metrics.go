package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/randalmurphal/nexusmesh"

// MetricsRecorder records registry metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordRegister records a registration attempt. partial is true when
	// the route was stored but the announcement failed.
	RecordRegister(ctx context.Context, duration time.Duration, err error, partial bool)

	// RecordList records a listing with the number of routes returned and
	// the number of stored values skipped as malformed.
	RecordList(ctx context.Context, routes, skipped int, duration time.Duration, err error)

	// RecordPublishReceivers records the subscriber count the transport
	// reported for an announcement.
	RecordPublishReceivers(ctx context.Context, receivers int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	registrations   metric.Int64Counter
	registerErrors  metric.Int64Counter
	registerLatency metric.Float64Histogram
	lists           metric.Int64Counter
	listErrors      metric.Int64Counter
	listLatency     metric.Float64Histogram
	listedRoutes    metric.Int64Histogram
	skippedRoutes   metric.Int64Counter
	receivers       metric.Int64Histogram
}

func newOtelMetrics(provider metric.MeterProvider) (*otelMetrics, error) {
	meter := provider.Meter(instrumentationName)
	m := &otelMetrics{}
	var err error

	if m.registrations, err = meter.Int64Counter("nexusmesh.register.count",
		metric.WithDescription("Number of route registrations"),
	); err != nil {
		return nil, err
	}
	if m.registerErrors, err = meter.Int64Counter("nexusmesh.register.errors",
		metric.WithDescription("Number of failed route registrations"),
	); err != nil {
		return nil, err
	}
	if m.registerLatency, err = meter.Float64Histogram("nexusmesh.register.latency_ms",
		metric.WithDescription("Route registration latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.lists, err = meter.Int64Counter("nexusmesh.list.count",
		metric.WithDescription("Number of route listings"),
	); err != nil {
		return nil, err
	}
	if m.listErrors, err = meter.Int64Counter("nexusmesh.list.errors",
		metric.WithDescription("Number of failed route listings"),
	); err != nil {
		return nil, err
	}
	if m.listLatency, err = meter.Float64Histogram("nexusmesh.list.latency_ms",
		metric.WithDescription("Route listing latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.listedRoutes, err = meter.Int64Histogram("nexusmesh.list.routes",
		metric.WithDescription("Routes returned per listing"),
	); err != nil {
		return nil, err
	}
	if m.skippedRoutes, err = meter.Int64Counter("nexusmesh.list.skipped",
		metric.WithDescription("Stored values skipped as malformed"),
	); err != nil {
		return nil, err
	}
	if m.receivers, err = meter.Int64Histogram("nexusmesh.publish.receivers",
		metric.WithDescription("Subscribers reached per announcement"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global OTel
// meter provider. If initialization fails, returns a no-op recorder.
//
// Configure the provider before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	return NewMetricsRecorderWithProvider(otel.GetMeterProvider())
}

// NewMetricsRecorderWithProvider is NewMetricsRecorder with an explicit provider.
func NewMetricsRecorderWithProvider(provider metric.MeterProvider) MetricsRecorder {
	m, err := newOtelMetrics(provider)
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordRegister records a registration attempt.
func (m *otelMetrics) RecordRegister(ctx context.Context, duration time.Duration, err error, partial bool) {
	attrs := metric.WithAttributes(attribute.Bool("success", err == nil))
	m.registrations.Add(ctx, 1, attrs)
	m.registerLatency.Record(ctx, ms(duration), attrs)

	if err != nil {
		m.registerErrors.Add(ctx, 1, metric.WithAttributes(attribute.Bool("partial", partial)))
	}
}

// RecordList records a listing.
func (m *otelMetrics) RecordList(ctx context.Context, routes, skipped int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.Bool("success", err == nil))
	m.lists.Add(ctx, 1, attrs)
	m.listLatency.Record(ctx, ms(duration), attrs)

	if err != nil {
		m.listErrors.Add(ctx, 1)
		return
	}
	m.listedRoutes.Record(ctx, int64(routes))
	if skipped > 0 {
		m.skippedRoutes.Add(ctx, int64(skipped))
	}
}

// RecordPublishReceivers records the subscriber count of an announcement.
func (m *otelMetrics) RecordPublishReceivers(ctx context.Context, receivers int64) {
	m.receivers.Record(ctx, receivers)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
