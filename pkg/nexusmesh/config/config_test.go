package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/config"
	nmerrors "github.com/randalmurphal/nexusmesh/pkg/nexusmesh/errors"
)

func TestString(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"key exists", map[string]any{"channel": "updates"}, "updates"},
		{"key missing", map[string]any{}, "default"},
		{"empty string", map[string]any{"channel": ""}, "default"},
		{"wrong type", map[string]any{"channel": 123}, "default"},
		{"nil map", nil, "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, config.New(tt.data).String("channel", "default"))
		})
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want time.Duration
	}{
		{"string", "250ms", 250 * time.Millisecond},
		{"invalid string", "soon", time.Minute},
		{"int seconds", 3, 3 * time.Second},
		{"int64 seconds", int64(4), 4 * time.Second},
		{"float seconds", 1.5, 1500 * time.Millisecond},
		{"duration", 2 * time.Second, 2 * time.Second},
		{"wrong type", true, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"d": tt.val})
			assert.Equal(t, tt.want, cfg.Duration("d", time.Minute))
		})
	}
}

func TestMerge(t *testing.T) {
	base := config.New(map[string]any{"a": "1", "b": "2"})
	over := config.New(map[string]any{"b": "3", "c": "4"})

	merged := base.Merge(over)
	assert.Equal(t, "1", merged.String("a", ""))
	assert.Equal(t, "3", merged.String("b", ""))
	assert.Equal(t, "4", merged.String("c", ""))

	// Inputs untouched
	assert.Equal(t, "2", base.String("b", ""))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "nexusmesh.yaml")
		require.NoError(t, os.WriteFile(path, []byte("backend: sqlite\nresync-interval: 10s\n"), 0o600))

		cfg, err := config.LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.String(config.KeyBackend, ""))
		assert.Equal(t, 10*time.Second, cfg.Duration(config.KeyResyncInterval, 0))
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "nexusmesh.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"channel":"c","dial_timeout":2}`), 0o600))

		cfg, err := config.LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "c", cfg.String(config.KeyChannel, ""))
		assert.Equal(t, 2*time.Second, cfg.Duration(config.KeyDialTimeout, 0))
	})

	t.Run("unknown setting", func(t *testing.T) {
		path := filepath.Join(dir, "typo.yaml")
		require.NoError(t, os.WriteFile(path, []byte("redis_ulr: redis://x:6379\n"), 0o600))

		_, err := config.LoadFile(path)
		require.Error(t, err)
		assert.True(t, nmerrors.IsValidation(err))
		assert.ErrorContains(t, err, "redis_ulr")
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0o600))

		cfg, err := config.LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "fallback", cfg.String(config.KeyChannel, "fallback"))
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "nexusmesh.toml")
		require.NoError(t, os.WriteFile(path, []byte(""), 0o600))

		_, err := config.LoadFile(path)
		assert.True(t, nmerrors.IsValidation(err))
		assert.ErrorContains(t, err, "unsupported file extension")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadFile(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("a: [b"), 0o600))

		_, err := config.LoadFile(path)
		assert.ErrorContains(t, err, "parse broken.yaml")
	})
}

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := config.LoadSettings(config.New(nil))
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379", s.RedisURL)
	assert.Equal(t, config.BackendRedis, s.Backend)
	assert.Equal(t, "config_updates", s.Channel)
	assert.Equal(t, "route:", s.KeyPrefix)
	assert.Equal(t, ":4000", s.HTTPAddr)
	assert.Equal(t, 5*time.Second, s.HealthCheckInterval)
	assert.Equal(t, 30*time.Second, s.ResyncInterval)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "text", s.LogFormat)
}

func TestLoadSettings_Overrides(t *testing.T) {
	s, err := config.LoadSettings(config.New(map[string]any{
		config.KeyBackend:        "sqlite",
		config.KeySQLitePath:     "/tmp/routes.db",
		config.KeyChannel:        "routes",
		config.KeyResyncInterval: "1m",
		config.KeyLogFormat:      "json",
	}))
	require.NoError(t, err)

	assert.Equal(t, config.BackendSQLite, s.Backend)
	assert.Equal(t, "/tmp/routes.db", s.SQLitePath)
	assert.Equal(t, "routes", s.Channel)
	assert.Equal(t, time.Minute, s.ResyncInterval)
	assert.Equal(t, "json", s.LogFormat)
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		data  map[string]any
		field string
	}{
		{"unknown backend", map[string]any{config.KeyBackend: "etcd"}, config.KeyBackend},
		{"unknown log format", map[string]any{config.KeyLogFormat: "xml"}, config.KeyLogFormat},
		{"negative duration", map[string]any{config.KeyDialTimeout: "-1s"}, config.KeyDialTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadSettings(config.New(tt.data))
			require.Error(t, err)

			var valErr *nmerrors.ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, tt.field, valErr.Field)
		})
	}
}
