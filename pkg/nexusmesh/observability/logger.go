// Package observability provides structured logging, metrics and tracing
// for the route registry.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"errors"
	"log/slog"
	"time"

	nmerrors "github.com/randalmurphal/nexusmesh/pkg/nexusmesh/errors"
)

// LogRegister logs a route that was stored and announced.
func LogRegister(logger *slog.Logger, path string, backends int, receivers int64, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("route registered",
		slog.String("path", path),
		slog.Int("backends", backends),
		slog.Int64("receivers", receivers),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRegisterError logs a failed registration. stored reports whether the
// write took effect before the failure.
func LogRegisterError(logger *slog.Logger, path string, stored bool, err error) {
	if logger == nil {
		return
	}
	logger.Error("route registration failed",
		slog.String("path", path),
		slog.Bool("stored", stored),
		slog.String("error", err.Error()),
	)
}

// LogList logs a completed listing.
func LogList(logger *slog.Logger, routes int, skipped int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("routes listed",
		slog.Int("routes", routes),
		slog.Int("skipped", skipped),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogListError logs a failed listing.
func LogListError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Error("route listing failed",
		slog.String("error", err.Error()),
	)
}

// LogMalformedRoute logs a stored value that could not be decoded.
func LogMalformedRoute(logger *slog.Logger, key string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("skipping malformed route",
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}

// LogConnectivity logs a transport fault reported out-of-band, such as a
// failed health check or a dropped subscription.
func LogConnectivity(logger *slog.Logger, err error) {
	if logger == nil || err == nil {
		return
	}
	attrs := []any{
		slog.String("error", err.Error()),
		slog.String("category", nmerrors.Categorize(err).String()),
	}
	var connErr *nmerrors.ConnectivityError
	if errors.As(err, &connErr) {
		attrs = append(attrs, slog.String("operation", connErr.Op))
	}
	logger.Warn("transport error", attrs...)
}

// ConnectivityObserver returns an ErrorObserver that logs through
// LogConnectivity.
func ConnectivityObserver(logger *slog.Logger) nmerrors.ErrorObserver {
	return func(err error) {
		LogConnectivity(logger, err)
	}
}

// LogDisconnect logs registry shutdown.
func LogDisconnect(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Warn("registry disconnected with errors", slog.String("error", err.Error()))
		return
	}
	logger.Info("registry disconnected")
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}

// ParseLevel maps a level name to a slog.Level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}
