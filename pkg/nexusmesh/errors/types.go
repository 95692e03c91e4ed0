package errors

import (
	"fmt"
)

// ValidationError indicates a route that may not be stored or published.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ConnectivityError indicates the store/bus transport link is disrupted.
type ConnectivityError struct {
	// Op names the transport operation that observed the fault ("ping", "set", "subscribe").
	Op  string
	Err error
}

// Error implements the error interface.
func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// OperationError wraps a store or bus failure of a registry operation.
//
// For register, Stored and Published record which half of the write-then-
// announce batch took effect. The registry never rolls back, so Stored=true
// with Published=false means the route is durable but consumers were not told.
type OperationError struct {
	Op        string
	Path      string
	Stored    bool
	Published bool
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	switch {
	case e.Op == "register" && e.Stored && !e.Published:
		return fmt.Sprintf("register %s: stored, publish failed: %v", e.Path, e.Err)
	case e.Op == "register":
		return fmt.Sprintf("register %s: store failed: %v", e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// PartiallyApplied reports whether the store write took effect but the
// announcement did not.
func (e *OperationError) PartiallyApplied() bool {
	return e.Stored && !e.Published
}

// ErrorObserver receives errors detected out-of-band, such as a dropped
// transport link noticed by a health check or a subscription receive loop.
// Observers must not block.
type ErrorObserver func(err error)
