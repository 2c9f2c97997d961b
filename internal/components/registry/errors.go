// Package registry turns AoR write requests into sponsored registry
// transactions and projects the on-chain GlobalRegistry for reads.
package registry

import "errors"

var (
	// ErrNotConfigured means the package or registry id is missing.
	ErrNotConfigured = errors.New("registry not configured")

	// ErrObjectNotFound means the registry object does not exist on chain.
	ErrObjectNotFound = errors.New("registry object not found")

	// ErrNotShared means the registry object is not in shared ownership mode.
	ErrNotShared = errors.New("registry object not shared")

	// ErrPrecondition covers a failed ownership lookup.
	ErrPrecondition = errors.New("registry precondition failed")

	// ErrEventMissing means the tx response lacks the expected event.
	ErrEventMissing = errors.New("event missing from tx response")
)

// PreconditionError carries the caller-facing message for a precondition
// failure. Error returns the message verbatim.
type PreconditionError struct {
	Kind    error
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }
func (e *PreconditionError) Unwrap() error { return e.Kind }
