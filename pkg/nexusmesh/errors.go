package nexusmesh

import "errors"

// Sentinel errors for registry construction and lifecycle.
var (
	// ErrNilStore indicates New was called without a store.
	ErrNilStore = errors.New("store is required")

	// ErrNilBus indicates New was called without a bus.
	ErrNilBus = errors.New("bus is required")

	// ErrDisconnected indicates an operation on a registry after Disconnect.
	ErrDisconnected = errors.New("registry disconnected")
)
