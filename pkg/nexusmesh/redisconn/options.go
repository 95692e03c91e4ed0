package redisconn

import (
	"log/slog"
	"time"

	nmerrors "github.com/randalmurphal/nexusmesh/pkg/nexusmesh/errors"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/observability"
)

type connConfig struct {
	logger         *slog.Logger
	observer       nmerrors.ErrorObserver
	healthInterval time.Duration
	dialTimeout    time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	scanCount      int64
}

func defaultConfig() connConfig {
	logger := slog.Default()
	return connConfig{
		logger:    logger,
		observer:  observability.ConnectivityObserver(logger),
		scanCount: DefaultScanCount,
	}
}

// Option configures a Conn.
type Option func(*connConfig)

// WithLogger sets the logger. It also becomes the default error observer
// unless WithErrorObserver is given.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *connConfig) {
		if logger == nil {
			return
		}
		cfg.logger = logger
		cfg.observer = observability.ConnectivityObserver(logger)
	}
}

// WithErrorObserver receives transport faults detected by any operation,
// the health monitor or a subscription receive loop.
func WithErrorObserver(observer nmerrors.ErrorObserver) Option {
	return func(cfg *connConfig) {
		cfg.observer = observer
	}
}

// WithHealthCheckInterval enables a background PING every d.
// Zero disables the monitor.
func WithHealthCheckInterval(d time.Duration) Option {
	return func(cfg *connConfig) {
		cfg.healthInterval = d
	}
}

// WithTimeouts sets dial, read and write timeouts. Zero keeps the go-redis
// default. Only honored by Dial.
func WithTimeouts(dial, read, write time.Duration) Option {
	return func(cfg *connConfig) {
		cfg.dialTimeout = dial
		cfg.readTimeout = read
		cfg.writeTimeout = write
	}
}

// WithScanCount sets the SCAN COUNT hint.
func WithScanCount(n int64) Option {
	return func(cfg *connConfig) {
		if n > 0 {
			cfg.scanCount = n
		}
	}
}
