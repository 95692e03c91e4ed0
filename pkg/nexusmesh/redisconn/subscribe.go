package redisconn

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh/bus"
	nmerrors "github.com/randalmurphal/nexusmesh/pkg/nexusmesh/errors"
)

// receiveBackoff is the pause after a failed receive before trying again.
const receiveBackoff = 100 * time.Millisecond

type subscription struct {
	id      string
	channel string
	pubsub  *redis.PubSub
	handler bus.Handler
	conn    *Conn

	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
	err  error
}

// Subscribe implements bus.Bus. It returns once the server has confirmed
// the subscription, so any message published afterwards is delivered.
// go-redis re-establishes the subscription after a dropped link; messages
// published while the link was down are lost.
func (c *Conn) Subscribe(ctx context.Context, channel string, handler bus.Handler) (bus.Subscription, error) {
	if c.closed.Load() {
		return nil, bus.ErrBusClosed
	}

	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, c.wrap("subscribe", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:      uuid.NewString(),
		channel: channel,
		pubsub:  pubsub,
		handler: handler,
		conn:    c,
		ctx:     subCtx,
		cancel:  cancel,
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		cancel()
		_ = pubsub.Close()
		return nil, bus.ErrBusClosed
	}
	c.subs[sub.id] = sub
	c.mu.Unlock()

	go sub.receive()

	return sub, nil
}

func (s *subscription) receive() {
	logger := s.conn.cfg.logger
	for {
		msg, err := s.pubsub.ReceiveMessage(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.conn.report(&nmerrors.ConnectivityError{Op: "receive", Err: err})

			select {
			case <-time.After(receiveBackoff):
				continue
			case <-s.ctx.Done():
				return
			}
		}

		m := bus.Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}
		if err := s.handler(s.ctx, m); err != nil {
			logger.Warn("subscription handler failed",
				slog.String("channel", msg.Channel),
				slog.String("subscription_id", s.id),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ID implements bus.Subscription.
func (s *subscription) ID() string {
	return s.id
}

// Unsubscribe implements bus.Subscription. A handler already running
// finishes with a cancelled context.
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.conn.mu.Lock()
		delete(s.conn.subs, s.id)
		s.conn.mu.Unlock()

		s.cancel()
		if err := s.pubsub.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			s.err = err
		}
	})
	return s.err
}
