package config

import (
	"fmt"
	"time"

	nmerrors "github.com/randalmurphal/nexusmesh/pkg/nexusmesh/errors"
)

// Setting keys, shared by files, env (NEXUSMESH_ prefix, upper-cased) and flags.
const (
	KeyRedisURL            = "redis_url"
	KeyBackend             = "backend"
	KeySQLitePath          = "sqlite_path"
	KeyChannel             = "channel"
	KeyKeyPrefix           = "key_prefix"
	KeyHTTPAddr            = "http_addr"
	KeyHealthCheckInterval = "health_check_interval"
	KeyDialTimeout         = "dial_timeout"
	KeyReadTimeout         = "read_timeout"
	KeyWriteTimeout        = "write_timeout"
	KeyResyncInterval      = "resync_interval"
	KeyLogLevel            = "log_level"
	KeyLogFormat           = "log_format"
)

// Backend selects the store/bus pair.
type Backend string

const (
	// BackendRedis shares one Redis connection between store and bus.
	BackendRedis Backend = "redis"
	// BackendSQLite stores routes in SQLite and announces in-process.
	BackendSQLite Backend = "sqlite"
	// BackendMemory keeps everything in-process.
	BackendMemory Backend = "memory"
)

// Settings is the validated process configuration.
type Settings struct {
	RedisURL            string
	Backend             Backend
	SQLitePath          string
	Channel             string
	KeyPrefix           string
	HTTPAddr            string
	HealthCheckInterval time.Duration
	DialTimeout         time.Duration
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	ResyncInterval      time.Duration
	LogLevel            string
	LogFormat           string
}

// Defaults returns the default value of every setting.
func Defaults() map[string]any {
	return map[string]any{
		KeyRedisURL:            "redis://localhost:6379",
		KeyBackend:             string(BackendRedis),
		KeySQLitePath:          "nexusmesh.db",
		KeyChannel:             "config_updates",
		KeyKeyPrefix:           "route:",
		KeyHTTPAddr:            ":4000",
		KeyHealthCheckInterval: 5 * time.Second,
		KeyDialTimeout:         5 * time.Second,
		KeyReadTimeout:         3 * time.Second,
		KeyWriteTimeout:        3 * time.Second,
		KeyResyncInterval:      30 * time.Second,
		KeyLogLevel:            "info",
		KeyLogFormat:           "text",
	}
}

// LoadSettings reads Settings from cfg, filling gaps from Defaults.
func LoadSettings(cfg Config) (Settings, error) {
	d := New(Defaults())

	s := Settings{
		RedisURL:            cfg.String(KeyRedisURL, d.String(KeyRedisURL, "")),
		Backend:             Backend(cfg.String(KeyBackend, d.String(KeyBackend, ""))),
		SQLitePath:          cfg.String(KeySQLitePath, d.String(KeySQLitePath, "")),
		Channel:             cfg.String(KeyChannel, d.String(KeyChannel, "")),
		KeyPrefix:           cfg.String(KeyKeyPrefix, d.String(KeyKeyPrefix, "")),
		HTTPAddr:            cfg.String(KeyHTTPAddr, d.String(KeyHTTPAddr, "")),
		HealthCheckInterval: cfg.Duration(KeyHealthCheckInterval, d.Duration(KeyHealthCheckInterval, 0)),
		DialTimeout:         cfg.Duration(KeyDialTimeout, d.Duration(KeyDialTimeout, 0)),
		ReadTimeout:         cfg.Duration(KeyReadTimeout, d.Duration(KeyReadTimeout, 0)),
		WriteTimeout:        cfg.Duration(KeyWriteTimeout, d.Duration(KeyWriteTimeout, 0)),
		ResyncInterval:      cfg.Duration(KeyResyncInterval, d.Duration(KeyResyncInterval, 0)),
		LogLevel:            cfg.String(KeyLogLevel, d.String(KeyLogLevel, "")),
		LogFormat:           cfg.String(KeyLogFormat, d.String(KeyLogFormat, "")),
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks cross-field constraints.
func (s Settings) Validate() error {
	switch s.Backend {
	case BackendRedis:
		if s.RedisURL == "" {
			return &nmerrors.ValidationError{Field: KeyRedisURL, Message: "required for redis backend"}
		}
	case BackendSQLite:
		if s.SQLitePath == "" {
			return &nmerrors.ValidationError{Field: KeySQLitePath, Message: "required for sqlite backend"}
		}
	case BackendMemory:
	default:
		return &nmerrors.ValidationError{
			Field:   KeyBackend,
			Message: fmt.Sprintf("unknown backend %q (want redis, sqlite or memory)", s.Backend),
		}
	}

	if s.LogFormat != "json" && s.LogFormat != "text" {
		return &nmerrors.ValidationError{Field: KeyLogFormat, Message: fmt.Sprintf("unknown format %q", s.LogFormat)}
	}

	for key, d := range map[string]time.Duration{
		KeyHealthCheckInterval: s.HealthCheckInterval,
		KeyDialTimeout:         s.DialTimeout,
		KeyReadTimeout:         s.ReadTimeout,
		KeyWriteTimeout:        s.WriteTimeout,
		KeyResyncInterval:      s.ResyncInterval,
	} {
		if d < 0 {
			return &nmerrors.ValidationError{Field: key, Message: "must not be negative"}
		}
	}
	return nil
}
