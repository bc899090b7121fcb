package cartstatus

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEnvelope matches any MalformedEnvelopeError.
	ErrMalformedEnvelope = errors.New("malformed cart status envelope")

	// ErrStorageUnavailable matches any StorageUnavailableError.
	ErrStorageUnavailable = errors.New("storage area unavailable")

	// ErrUnbound is the cause reported when a store was built without a storage area.
	ErrUnbound = errors.New("store is not bound to a storage area")
)

// MalformedEnvelopeError is returned when committed text cannot be decoded
// into a cart status envelope.
type MalformedEnvelopeError struct {
	Reason string // Human-readable explanation of what is wrong with the text
	Err    error  // Underlying decoding error, if any
}

func (e *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("malformed cart status envelope: %s", e.Reason)
}

func (e *MalformedEnvelopeError) Unwrap() error {
	return e.Err
}

func (e *MalformedEnvelopeError) Is(target error) bool {
	return target == ErrMalformedEnvelope
}

// StorageUnavailableError wraps failures of the storage area backing a store,
// including stores that were built without one.
type StorageUnavailableError struct {
	Area      string // Name of the storage area, empty when the store is unbound
	Operation string // The store operation that failed (e.g., "save", "restore")
	Err       error  // Underlying error
}

func (e *StorageUnavailableError) Error() string {
	if e.Area == "" {
		return fmt.Sprintf("storage unavailable during %s: %v", e.Operation, e.Err)
	}

	return fmt.Sprintf("storage area %q unavailable during %s: %v", e.Area, e.Operation, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

func (e *StorageUnavailableError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// InvalidPercentageError is returned by mutations given a percentage outside [0,100].
type InvalidPercentageError struct {
	Key        string
	Percentage int
}

func (e *InvalidPercentageError) Error() string {
	return fmt.Sprintf("invalid download percentage %d for %s: must be between 0 and 100", e.Percentage, e.Key)
}
