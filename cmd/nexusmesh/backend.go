package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/bus"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/config"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/observability"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/redisconn"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/store"
)

// backend is an opened store/bus pair. health is nil when the pair has no
// remote link to check.
type backend struct {
	store  store.Store
	bus    bus.Bus
	health func(ctx context.Context) error
}

func openBackend(ctx context.Context, s config.Settings, logger *slog.Logger) (*backend, error) {
	switch s.Backend {
	case config.BackendRedis:
		conn, err := redisconn.Dial(ctx, s.RedisURL,
			redisconn.WithLogger(logger),
			redisconn.WithHealthCheckInterval(s.HealthCheckInterval),
			redisconn.WithTimeouts(s.DialTimeout, s.ReadTimeout, s.WriteTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return &backend{store: conn, bus: conn, health: conn.Ping}, nil

	case config.BackendSQLite:
		st, err := store.NewSQLiteStore(s.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &backend{store: st, bus: newLocalBus(logger)}, nil

	case config.BackendMemory:
		return &backend{store: store.NewMemoryStore(), bus: newLocalBus(logger)}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", s.Backend)
}

func newLocalBus(logger *slog.Logger) *bus.LocalBus {
	cfg := bus.DefaultBusConfig
	cfg.OnDrop = func(msg bus.Message, subscriberID string) {
		logger.Warn("announcement dropped",
			slog.String("channel", msg.Channel),
			slog.String("subscriber", subscriberID),
		)
	}
	cfg.OnError = func(msg bus.Message, subscriberID string, err error) {
		logger.Warn("subscriber failed",
			slog.String("channel", msg.Channel),
			slog.String("subscriber", subscriberID),
			slog.String("error", err.Error()),
		)
	}
	return bus.NewLocalBus(cfg)
}

// openRegistry opens the configured backend and wraps it in a registry.
// The registry owns the backend; Disconnect releases it.
func (a *app) openRegistry(ctx context.Context) (*nexusmesh.RouteRegistry, *backend, error) {
	b, err := openBackend(ctx, a.settings, a.logger)
	if err != nil {
		return nil, nil, err
	}

	reg, err := nexusmesh.New(b.store, b.bus,
		nexusmesh.WithChannel(a.settings.Channel),
		nexusmesh.WithKeyPrefix(a.settings.KeyPrefix),
		nexusmesh.WithLogger(a.logger),
		nexusmesh.WithMetrics(observability.NewMetricsRecorder()),
		nexusmesh.WithTracing(true),
	)
	if err != nil {
		_ = b.store.Close()
		_ = b.bus.Close()
		return nil, nil, err
	}
	return reg, b, nil
}
