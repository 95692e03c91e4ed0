// Package bus provides the publish/subscribe channel that announces route
// changes to data-plane consumers.
//
// Delivery is at-most-once and fire-and-forget: a subscriber that is not
// attached when a message is published never sees it. Consumers recover
// missed messages by reconciling against the store.
package bus

import (
	"context"
	"errors"
)

// Message is a payload received on a named channel.
type Message struct {
	Channel string
	Payload []byte
}

// Handler processes a message. Handlers for one subscription are called
// sequentially, in publish order.
type Handler func(ctx context.Context, msg Message) error

// Bus publishes messages to named channels and delivers them to
// subscribers.
type Bus interface {
	// Publish hands payload to the transport for delivery on channel.
	// Success does not imply that any subscriber received it.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe attaches handler to channel. ctx bounds the subscribe
	// handshake only; the subscription lives until Unsubscribe or Close.
	Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// ID identifies the subscription in logs and drop callbacks.
	ID() string

	// Unsubscribe detaches the subscription. Safe to call more than once.
	Unsubscribe() error
}

// ErrBusClosed indicates the bus has been closed.
var ErrBusClosed = errors.New("bus closed")
