package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryString(t *testing.T) {
	tests := []struct {
		category Category
		expected string
	}{
		{CategoryTransient, "transient"},
		{CategoryPermanent, "permanent"},
		{Category(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.category.String())
		})
	}
}

func TestCategorize(t *testing.T) {
	conn := &ConnectivityError{Op: "set", Err: errors.New("connection refused")}

	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{"nil error", nil, CategoryPermanent},
		{"validation", &ValidationError{Field: "path", Message: "must not be empty"}, CategoryPermanent},
		{"connectivity", conn, CategoryTransient},
		{"operation wrapping connectivity", &OperationError{Op: "register", Path: "/a", Err: conn}, CategoryTransient},
		{"operation wrapping unknown", &OperationError{Op: "list", Err: errors.New("WRONGTYPE")}, CategoryPermanent},
		{"explicit category wins", Permanent(conn, "closed"), CategoryPermanent},
		{"unknown", errors.New("boom"), CategoryPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Categorize(tt.err))
		})
	}
}

func TestOperationError(t *testing.T) {
	cause := errors.New("i/o timeout")

	t.Run("store failed", func(t *testing.T) {
		err := &OperationError{Op: "register", Path: "/api", Err: cause}
		assert.Equal(t, "register /api: store failed: i/o timeout", err.Error())
		assert.False(t, err.PartiallyApplied())
	})

	t.Run("stored but publish failed", func(t *testing.T) {
		err := &OperationError{Op: "register", Path: "/api", Stored: true, Err: cause}
		assert.Equal(t, "register /api: stored, publish failed: i/o timeout", err.Error())
		assert.True(t, err.PartiallyApplied())
	})

	t.Run("list", func(t *testing.T) {
		err := &OperationError{Op: "list", Err: cause}
		assert.Equal(t, "list: i/o timeout", err.Error())
	})

	t.Run("unwrap", func(t *testing.T) {
		err := &OperationError{Op: "list", Err: &ConnectivityError{Op: "scan", Err: cause}}
		assert.ErrorIs(t, err, cause)
		assert.True(t, IsConnectivity(err))
		assert.False(t, IsValidation(err))
	})
}

func TestValidationError(t *testing.T) {
	assert.Equal(t, "validation error on backends: must not be empty",
		(&ValidationError{Field: "backends", Message: "must not be empty"}).Error())
	assert.Equal(t, "validation error: bad payload",
		(&ValidationError{Message: "bad payload"}).Error())

	wrapped := &OperationError{Op: "register", Err: &ValidationError{Message: "x"}}
	assert.True(t, IsValidation(wrapped))
}

func TestWithRetryContext(t *testing.T) {
	transient := &ConnectivityError{Op: "set", Err: errors.New("reset by peer")}

	t.Run("success on first try", func(t *testing.T) {
		calls := 0
		result := WithRetryContext(context.Background(), NewRetryConfig(), func(context.Context) (string, error) {
			calls++
			return "ok", nil
		})
		require.NoError(t, result.Err)
		assert.Equal(t, "ok", result.Value)
		assert.Equal(t, 1, result.Attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("success on retry", func(t *testing.T) {
		calls := 0
		cfg := NewRetryConfig(WithMaxAttempts(3), WithInitialBackoff(time.Millisecond))
		result := WithRetryContext(context.Background(), cfg, func(context.Context) (int, error) {
			calls++
			if calls < 2 {
				return 0, transient
			}
			return 7, nil
		})
		require.NoError(t, result.Err)
		assert.Equal(t, 7, result.Value)
		assert.Equal(t, 2, result.Attempts)
	})

	t.Run("max attempts exceeded", func(t *testing.T) {
		cfg := NewRetryConfig(WithMaxAttempts(3), WithInitialBackoff(time.Millisecond))
		result := WithRetryContext(context.Background(), cfg, func(context.Context) (int, error) {
			return 0, transient
		})
		require.Error(t, result.Err)
		assert.Equal(t, 3, result.Attempts)
		assert.ErrorIs(t, result.Err, transient)
	})

	t.Run("validation error is not retried", func(t *testing.T) {
		calls := 0
		cfg := NewRetryConfig(WithMaxAttempts(5), WithInitialBackoff(time.Millisecond))
		result := WithRetryContext(context.Background(), cfg, func(context.Context) (int, error) {
			calls++
			return 0, &ValidationError{Field: "path", Message: "must not be empty"}
		})
		require.Error(t, result.Err)
		assert.Equal(t, 1, calls)
		assert.True(t, IsValidation(result.Err))
	})

	t.Run("custom retryable func", func(t *testing.T) {
		calls := 0
		cfg := NewRetryConfig(
			WithMaxAttempts(3),
			WithInitialBackoff(time.Millisecond),
			WithRetryableFunc(func(error) bool { return true }),
		)
		WithRetryContext(context.Background(), cfg, func(context.Context) (int, error) {
			calls++
			return 0, errors.New("anything")
		})
		assert.Equal(t, 3, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result := WithRetryContext(ctx, NewRetryConfig(), func(context.Context) (int, error) {
			return 1, nil
		})
		require.Error(t, result.Err)
		assert.Equal(t, 0, result.Attempts)
	})

	t.Run("cancellation during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		cfg := NewRetryConfig(WithMaxAttempts(5), WithInitialBackoff(200*time.Millisecond), WithMaxBackoff(time.Second))

		go func() {
			time.Sleep(30 * time.Millisecond)
			cancel()
		}()

		result := WithRetryContext(ctx, cfg, func(context.Context) (int, error) {
			calls++
			return 0, transient
		})
		require.Error(t, result.Err)
		assert.LessOrEqual(t, calls, 2)
	})
}

func TestNewRetryConfig(t *testing.T) {
	cfg := NewRetryConfig(
		WithMaxAttempts(9),
		WithInitialBackoff(time.Second),
		WithMaxBackoff(time.Minute),
	)
	assert.Equal(t, 9, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.InitialBackoff)
	assert.Equal(t, time.Minute, cfg.MaxBackoff)
	assert.Equal(t, DefaultRetry.BackoffFactor, cfg.BackoffFactor)
}
