// Package redisconn provides a single Redis connection that serves as both
// the route store and the change bus.
//
// Sharing one client lets a route write and its announcement go out in one
// pipelined round trip (see PutAndPublish). The pipeline is not a MULTI/EXEC
// transaction, so the store half can succeed while the publish half fails.
package redisconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/bus"
	nmerrors "github.com/randalmurphal/nexusmesh/pkg/nexusmesh/errors"
	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/store"
)

// DefaultScanCount is the COUNT hint passed to SCAN.
const DefaultScanCount = 100

// Conn is a Redis-backed store.Store, store.PutPublisher and bus.Bus.
type Conn struct {
	client *redis.Client
	cfg    connConfig

	mu   sync.Mutex
	subs map[string]*subscription

	healthy atomic.Bool
	closed  atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Compile-time interface checks.
var (
	_ store.Store        = (*Conn)(nil)
	_ store.PutPublisher = (*Conn)(nil)
	_ bus.Bus            = (*Conn)(nil)
)

// Dial parses a redis:// URL, applies options and verifies the server is
// reachable. The returned Conn owns the client.
func Dial(ctx context.Context, url string, opts ...Option) (*Conn, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &nmerrors.ValidationError{Field: "redis_url", Message: err.Error()}
	}
	if cfg.dialTimeout > 0 {
		redisOpts.DialTimeout = cfg.dialTimeout
	}
	if cfg.readTimeout > 0 {
		redisOpts.ReadTimeout = cfg.readTimeout
	}
	if cfg.writeTimeout > 0 {
		redisOpts.WriteTimeout = cfg.writeTimeout
	}

	c := newConn(redis.NewClient(redisOpts), cfg)
	if err := c.Ping(ctx); err != nil {
		_ = c.client.Close()
		return nil, err
	}
	c.start()
	return c, nil
}

// New wraps an existing client. The Conn takes ownership and closes the
// client on Close.
func New(client *redis.Client, opts ...Option) *Conn {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	c := newConn(client, cfg)
	c.start()
	return c
}

func newConn(client *redis.Client, cfg connConfig) *Conn {
	c := &Conn{
		client: client,
		cfg:    cfg,
		subs:   make(map[string]*subscription),
		stop:   make(chan struct{}),
	}
	c.healthy.Store(true)
	return c
}

func (c *Conn) start() {
	if c.cfg.healthInterval > 0 {
		c.wg.Add(1)
		go c.monitor()
	}
}

// Client returns the underlying go-redis client.
func (c *Conn) Client() *redis.Client {
	return c.client
}

// Healthy reports the last observed link state.
func (c *Conn) Healthy() bool {
	return c.healthy.Load()
}

// Ping checks the link.
func (c *Conn) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return store.ErrStoreClosed
	}
	return c.wrap("ping", c.client.Ping(ctx).Err())
}

// Put implements store.Store.
func (c *Conn) Put(ctx context.Context, key string, value []byte) error {
	if c.closed.Load() {
		return store.ErrStoreClosed
	}
	return c.wrap("set", c.client.Set(ctx, key, value, 0).Err())
}

// ScanKeys implements store.Store using cursor-based SCAN rather than KEYS,
// so large keyspaces do not block the server. SCAN may return a key more
// than once; the result is deduplicated and sorted.
func (c *Conn) ScanKeys(ctx context.Context, prefix string) ([]string, error) {
	if c.closed.Load() {
		return nil, store.ErrStoreClosed
	}

	seen := make(map[string]struct{})
	keys := make([]string, 0)

	iter := c.client.Scan(ctx, 0, escapeGlob(prefix)+"*", c.cfg.scanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, c.wrap("scan", err)
	}

	sort.Strings(keys)
	return keys, nil
}

// GetMany implements store.Store with a single MGET.
func (c *Conn) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	if c.closed.Load() {
		return nil, store.ErrStoreClosed
	}
	if len(keys) == 0 {
		return [][]byte{}, nil
	}

	raw, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, c.wrap("mget", err)
	}

	values := make([][]byte, len(keys))
	for i, v := range raw {
		switch s := v.(type) {
		case string:
			values[i] = []byte(s)
		case nil:
			// Key vanished between scan and fetch
		default:
			return nil, fmt.Errorf("mget %s: unexpected reply type %T", keys[i], v)
		}
	}
	return values, nil
}

// PutAndPublish implements store.PutPublisher.
func (c *Conn) PutAndPublish(ctx context.Context, key string, value []byte, channel string) (store.PipelineResult, error) {
	var result store.PipelineResult
	if c.closed.Load() {
		return result, store.ErrStoreClosed
	}

	pipe := c.client.Pipeline()
	setCmd := pipe.Set(ctx, key, value, 0)
	pubCmd := pipe.Publish(ctx, channel, value)
	_, err := pipe.Exec(ctx)

	// Per-command results are only set once the server has replied. A
	// transport failure leaves them untouched, so neither half is known
	// to have applied.
	var replyErr redis.Error
	if err != nil && !errors.As(err, &replyErr) {
		return result, c.wrap("pipeline", err)
	}

	result.Stored = setCmd.Err() == nil
	result.Published = pubCmd.Err() == nil
	if result.Published {
		result.Receivers = pubCmd.Val()
	}

	switch {
	case err == nil:
		return result, nil
	case !result.Stored:
		return result, c.wrap("set", setCmd.Err())
	default:
		return result, c.wrap("publish", pubCmd.Err())
	}
}

// Publish implements bus.Bus.
func (c *Conn) Publish(ctx context.Context, channel string, payload []byte) error {
	if c.closed.Load() {
		return bus.ErrBusClosed
	}
	return c.wrap("publish", c.client.Publish(ctx, channel, payload).Err())
}

// Close stops the health monitor, ends every subscription and closes the
// client. Later calls return nil.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stop)

		c.mu.Lock()
		subs := make([]*subscription, 0, len(c.subs))
		for _, sub := range c.subs {
			subs = append(subs, sub)
		}
		c.mu.Unlock()

		var errs []error
		for _, sub := range subs {
			if err := sub.Unsubscribe(); err != nil {
				errs = append(errs, err)
			}
		}

		c.wg.Wait()

		if err := c.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// wrap classifies a go-redis error. Server replies (WRONGTYPE, OOM, ...)
// pass through; anything else is a transport fault, reported to the
// observer and returned as a ConnectivityError.
func (c *Conn) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, redis.ErrClosed) {
		return store.ErrStoreClosed
	}

	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	connErr := &nmerrors.ConnectivityError{Op: op, Err: err}
	c.report(connErr)
	return connErr
}

func (c *Conn) report(err error) {
	if c.cfg.observer != nil {
		c.cfg.observer(err)
	}
}

// escapeGlob escapes SCAN MATCH metacharacters so prefix matches literally.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// monitor pings on an interval and reports link state transitions.
func (c *Conn) monitor() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.checkHealth()
		case <-c.stop:
			return
		}
	}
}

func (c *Conn) checkHealth() {
	timeout := c.cfg.healthInterval
	if c.cfg.dialTimeout > 0 && c.cfg.dialTimeout < timeout {
		timeout = c.cfg.dialTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := c.client.Ping(ctx).Err()
	if c.closed.Load() {
		return
	}

	switch {
	case err != nil && c.healthy.CompareAndSwap(true, false):
		c.cfg.logger.Warn("redis link down", slog.String("error", err.Error()))
		c.report(&nmerrors.ConnectivityError{Op: "ping", Err: err})
	case err == nil && c.healthy.CompareAndSwap(false, true):
		c.cfg.logger.Info("redis link restored")
	}
}
