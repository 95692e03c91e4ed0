package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// BusConfig configures LocalBus behavior.
type BusConfig struct {
	// BufferSize is the channel buffer size per subscription.
	// Default: 256
	BufferSize int

	// Blocking makes Publish wait for buffer space instead of dropping.
	// Default: false (drop when a subscriber's buffer is full)
	Blocking bool

	// OnDrop is called when a message is dropped for a subscriber.
	OnDrop func(msg Message, subscriberID string)

	// OnError is called when a handler returns an error.
	OnError func(msg Message, subscriberID string, err error)
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	BufferSize: 256,
}

// LocalBus is an in-process Bus. It backs single-process deployments
// (SQLite or memory store) and tests.
type LocalBus struct {
	config BusConfig

	mu        sync.RWMutex
	byChannel map[string]map[string]*subscription // channel -> subscription ID -> subscription

	closed  atomic.Bool
	closeCh chan struct{}
}

// NewLocalBus creates a new in-process bus.
func NewLocalBus(config BusConfig) *LocalBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig.BufferSize
	}

	return &LocalBus{
		config:    config,
		byChannel: make(map[string]map[string]*subscription),
		closeCh:   make(chan struct{}),
	}
}

type subscription struct {
	id       string
	channel  string
	handler  Handler
	messages chan Message
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
	bus      *LocalBus
}

// Publish implements Bus.
func (b *LocalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.byChannel[channel]))
	for _, sub := range b.byChannel[channel] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		// Each subscriber gets its own copy
		msg := Message{Channel: channel, Payload: append([]byte(nil), payload...)}

		if !b.config.Blocking {
			select {
			case sub.messages <- msg:
			default:
				if b.config.OnDrop != nil {
					b.config.OnDrop(msg, sub.id)
				}
			}
			continue
		}

		select {
		case sub.messages <- msg:
		case <-sub.ctx.Done():
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closeCh:
			return ErrBusClosed
		}
	}

	return nil
}

// Subscribe implements Bus.
func (b *LocalBus) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.closed.Load() {
		return nil, ErrBusClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Close may have run between the check above and taking the lock.
	if b.closed.Load() {
		return nil, ErrBusClosed
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:       uuid.NewString(),
		channel:  channel,
		handler:  handler,
		messages: make(chan Message, b.config.BufferSize),
		ctx:      subCtx,
		cancel:   cancel,
		bus:      b,
	}

	if b.byChannel[channel] == nil {
		b.byChannel[channel] = make(map[string]*subscription)
	}
	b.byChannel[channel][sub.id] = sub

	go sub.process()

	return sub, nil
}

// Subscribers returns the number of subscriptions attached to channel.
func (b *LocalBus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byChannel[channel])
}

// Close implements Bus.
func (b *LocalBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(b.closeCh)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.byChannel {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	b.byChannel = make(map[string]map[string]*subscription)

	return nil
}

func (s *subscription) process() {
	for {
		select {
		case msg := <-s.messages:
			if err := s.handler(s.ctx, msg); err != nil && s.bus.config.OnError != nil {
				s.bus.config.OnError(msg, s.id, err)
			}

		case <-s.ctx.Done():
			return
		}
	}
}

// ID implements Subscription.
func (s *subscription) ID() string {
	return s.id
}

// Unsubscribe implements Subscription.
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if subs, ok := s.bus.byChannel[s.channel]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(s.bus.byChannel, s.channel)
			}
		}
		s.bus.mu.Unlock()

		s.cancel()
	})
	return nil
}
