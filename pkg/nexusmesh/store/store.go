// Package store provides the durable key-value storage the route registry
// writes to.
package store

import (
	"context"
	"errors"
)

// Store is a durable key-value store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores value under key, unconditionally overwriting.
	Put(ctx context.Context, key string, value []byte) error

	// ScanKeys returns the keys that currently start with prefix.
	// The result is not a snapshot: keys written concurrently may or may
	// not appear. Returns an empty slice (not error) if nothing matches.
	ScanKeys(ctx context.Context, prefix string) ([]string, error)

	// GetMany returns the values for keys, in the same order.
	// A key that is missing at fetch time yields a nil entry, not an error.
	GetMany(ctx context.Context, keys []string) ([][]byte, error)

	// Close releases any resources (connections, files).
	Close() error
}

// PutPublisher is implemented by stores that share a transport with the
// change bus and can write a value and announce it in one round trip.
type PutPublisher interface {
	// PutAndPublish stores value under key and publishes the same value on
	// channel as a single batch. The batch is not a transaction: the result
	// reports which half took effect even when err is non-nil.
	PutAndPublish(ctx context.Context, key string, value []byte, channel string) (PipelineResult, error)
}

// PipelineResult reports the per-command outcome of a PutAndPublish batch.
type PipelineResult struct {
	Stored    bool
	Published bool

	// Receivers is the subscriber count the transport reported, when known.
	Receivers int64
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("store closed")
