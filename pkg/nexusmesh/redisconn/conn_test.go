package redisconn_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/bus"
	nmerrors "github.com/randalmurphal/nexusmesh/pkg/nexusmesh/errors"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/redisconn"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/store"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/store/storetest"
)

// observed collects errors reported out-of-band.
type observed struct {
	mu   sync.Mutex
	errs []error
}

func (o *observed) observe(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *observed) connectivity(op string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, err := range o.errs {
		var connErr *nmerrors.ConnectivityError
		if errors.As(err, &connErr) && connErr.Op == op {
			return true
		}
	}
	return false
}

func newConn(t *testing.T, opts ...redisconn.Option) (*redisconn.Conn, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	opts = append([]redisconn.Option{redisconn.WithErrorObserver(nil)}, opts...)
	conn := redisconn.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), opts...)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, mr
}

func TestConn_StoreContract(t *testing.T) {
	storetest.Run(t, "RedisConn", func(t *testing.T) store.Store {
		conn, _ := newConn(t)
		return conn
	})
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)

	conn, err := redisconn.Dial(context.Background(), "redis://"+mr.Addr(),
		redisconn.WithTimeouts(time.Second, time.Second, time.Second))
	require.NoError(t, err)
	defer conn.Close()

	assert.True(t, conn.Healthy())
	require.NoError(t, conn.Ping(context.Background()))
}

func TestDial_InvalidURL(t *testing.T) {
	_, err := redisconn.Dial(context.Background(), "not-a-url://x")
	require.Error(t, err)
	assert.True(t, nmerrors.IsValidation(err))
}

func TestDial_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := redisconn.Dial(context.Background(), "redis://"+addr,
		redisconn.WithErrorObserver(nil),
		redisconn.WithTimeouts(100*time.Millisecond, 100*time.Millisecond, 100*time.Millisecond))
	require.Error(t, err)
	assert.True(t, nmerrors.IsConnectivity(err))
}

func TestConn_PutAndPublish(t *testing.T) {
	ctx := context.Background()
	conn, mr := newConn(t)

	received := make(chan bus.Message, 1)
	sub, err := conn.Subscribe(ctx, "config_updates", func(_ context.Context, msg bus.Message) error {
		received <- msg
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	payload := []byte(`{"path":"/api/v1","backends":["http://h1:3001","http://h2:3001"]}`)
	result, err := conn.PutAndPublish(ctx, "route:/api/v1", payload, "config_updates")
	require.NoError(t, err)
	assert.True(t, result.Stored)
	assert.True(t, result.Published)
	assert.Equal(t, int64(1), result.Receivers)

	stored, err := mr.Get("route:/api/v1")
	require.NoError(t, err)
	assert.Equal(t, string(payload), stored)

	select {
	case msg := <-received:
		assert.Equal(t, "config_updates", msg.Channel)
		assert.Equal(t, payload, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not received")
	}
}

func TestConn_PutAndPublish_NoSubscribers(t *testing.T) {
	conn, _ := newConn(t)

	result, err := conn.PutAndPublish(context.Background(), "route:/a", []byte("{}"), "config_updates")
	require.NoError(t, err)
	assert.True(t, result.Stored)
	assert.True(t, result.Published)
	assert.Equal(t, int64(0), result.Receivers)
}

func TestConn_ServerErrorIsNotConnectivity(t *testing.T) {
	ctx := context.Background()
	obs := &observed{}
	conn, mr := newConn(t, redisconn.WithErrorObserver(obs.observe))
	require.NoError(t, conn.Ping(ctx))

	mr.SetError("LOADING dataset in memory")
	defer mr.SetError("")

	err := conn.Put(ctx, "route:/a", []byte("{}"))
	require.Error(t, err)
	assert.False(t, nmerrors.IsConnectivity(err))

	result, err := conn.PutAndPublish(ctx, "route:/a", []byte("{}"), "config_updates")
	require.Error(t, err)
	assert.False(t, result.Stored)
	assert.False(t, result.Published)

	obs.mu.Lock()
	assert.Empty(t, obs.errs)
	obs.mu.Unlock()
}

func TestConn_ConnectivityErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	obs := &observed{}
	mr := miniredis.RunT(t)
	conn := redisconn.New(redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}), redisconn.WithErrorObserver(obs.observe))
	defer conn.Close()

	mr.Close()

	err := conn.Put(ctx, "route:/a", []byte("{}"))
	require.Error(t, err)
	assert.True(t, nmerrors.IsConnectivity(err))
	assert.True(t, nmerrors.IsRetryable(err))
	assert.True(t, obs.connectivity("set"))

	_, err = conn.ScanKeys(ctx, "route:")
	assert.True(t, nmerrors.IsConnectivity(err))

	result, err := conn.PutAndPublish(ctx, "route:/a", []byte("{}"), "config_updates")
	require.Error(t, err)
	assert.False(t, result.Stored)
	assert.False(t, result.Published)
	assert.True(t, nmerrors.IsConnectivity(err))
	assert.True(t, obs.connectivity("pipeline"))
}

func TestConn_HealthMonitor(t *testing.T) {
	obs := &observed{}
	mr := miniredis.RunT(t)
	conn := redisconn.New(redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	}),
		redisconn.WithErrorObserver(obs.observe),
		redisconn.WithHealthCheckInterval(20*time.Millisecond),
	)
	defer conn.Close()

	require.True(t, conn.Healthy())

	mr.Close()
	require.Eventually(t, func() bool { return !conn.Healthy() }, 3*time.Second, 10*time.Millisecond)
	assert.True(t, obs.connectivity("ping"))

	require.NoError(t, mr.Restart())
	require.Eventually(t, conn.Healthy, 3*time.Second, 10*time.Millisecond)
}

func TestConn_SubscribeOrderAndUnsubscribe(t *testing.T) {
	ctx := context.Background()
	conn, _ := newConn(t)

	var mu sync.Mutex
	var got []string
	sub, err := conn.Subscribe(ctx, "ch", func(_ context.Context, msg bus.Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(msg.Payload))
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID())

	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, conn.Publish(ctx, "ch", []byte(p)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"1", "2", "3"}, got)
	mu.Unlock()

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())

	require.NoError(t, conn.Publish(ctx, "ch", []byte("4")))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	assert.Len(t, got, 3)
	mu.Unlock()
}

func TestConn_Closed(t *testing.T) {
	ctx := context.Background()
	conn, _ := newConn(t)

	_, err := conn.Subscribe(ctx, "ch", func(context.Context, bus.Message) error { return nil })
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.ErrorIs(t, conn.Publish(ctx, "ch", []byte("x")), bus.ErrBusClosed)
	_, err = conn.Subscribe(ctx, "ch", func(context.Context, bus.Message) error { return nil })
	assert.ErrorIs(t, err, bus.ErrBusClosed)

	_, err = conn.PutAndPublish(ctx, "k", []byte("v"), "ch")
	assert.ErrorIs(t, err, store.ErrStoreClosed)
	assert.ErrorIs(t, conn.Ping(ctx), store.ErrStoreClosed)
}
