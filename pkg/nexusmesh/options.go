package nexusmesh

import (
	"log/slog"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/observability"
)

// registryConfig holds RouteRegistry configuration.
type registryConfig struct {
	channel   string
	keyPrefix string
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
}

func defaultRegistryConfig() registryConfig {
	return registryConfig{
		channel:   DefaultChannel,
		keyPrefix: DefaultKeyPrefix,
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
	}
}

// Option configures a RouteRegistry.
type Option func(*registryConfig)

// WithChannel sets the channel changes are announced on.
// Default: "config_updates"
func WithChannel(channel string) Option {
	return func(c *registryConfig) {
		if channel != "" {
			c.channel = channel
		}
	}
}

// WithKeyPrefix sets the store key prefix.
// Default: "route:"
func WithKeyPrefix(prefix string) Option {
	return func(c *registryConfig) {
		if prefix != "" {
			c.keyPrefix = prefix
		}
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *registryConfig) {
		c.logger = logger
	}
}

// WithMetrics enables metrics recording.
//
// Example:
//
//	registry, _ := nexusmesh.New(s, b,
//	    nexusmesh.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(recorder observability.MetricsRecorder) Option {
	return func(c *registryConfig) {
		if recorder == nil {
			recorder = observability.NoopMetrics{}
		}
		c.metrics = recorder
	}
}

// WithSpanManager sets the span manager used for tracing.
func WithSpanManager(spans observability.SpanManager) Option {
	return func(c *registryConfig) {
		if spans == nil {
			spans = observability.NoopSpanManager{}
		}
		c.spans = spans
	}
}

// WithTracing enables or disables OTel tracing against the global tracer
// provider.
func WithTracing(enabled bool) Option {
	return func(c *registryConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}
