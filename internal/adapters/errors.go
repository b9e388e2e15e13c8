package adapters

import (
	"errors"
	"fmt"
)

// Class partitions adapter failures into the closed set the orchestrator
// dispatches on.
type Class string

// Error classes.
const (
	// ClassNetwork covers timeouts, connection resets and other transport
	// failures. Retryable.
	ClassNetwork Class = "network"

	// ClassRateLimited means the vendor throttled the request. Retryable.
	ClassRateLimited Class = "rate_limited"

	// ClassAuthExpired means the vendor rejected the credential. Not
	// retryable by the backoff loop; the adapter refreshes and replays once.
	ClassAuthExpired Class = "auth_expired"

	// ClassNotFound means the vendor does not know the device ID. The
	// orchestrator tries the next adapter.
	ClassNotFound Class = "not_found"

	// ClassUnsupported means the adapter cannot perform the requested
	// operation on this device.
	ClassUnsupported Class = "unsupported"

	// ClassOperationFailed is a vendor-reported hard failure. Never retried.
	ClassOperationFailed Class = "operation_failed"
)

// Error is a classified adapter failure.
type Error struct {
	Vendor string
	Op     string
	Class  Class
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("adapter %s: %s: %s: %v", e.Vendor, e.Op, e.Class, e.Err)
	}
	return fmt.Sprintf("adapter %s: %s: %s", e.Vendor, e.Op, e.Class)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified adapter error. err may be nil.
func NewError(vendor, op string, class Class, err error) *Error {
	return &Error{Vendor: vendor, Op: op, Class: class, Err: err}
}

// ClassOf extracts the class of an adapter error, or "" for other errors.
func ClassOf(err error) Class {
	var adapterErr *Error
	if errors.As(err, &adapterErr) {
		return adapterErr.Class
	}
	return ""
}

// Retryable reports whether the backoff loop should retry after this error.
func Retryable(err error) bool {
	switch ClassOf(err) {
	case ClassNetwork, ClassRateLimited:
		return true
	}
	return false
}

// IsNotFound reports whether the error means the vendor does not know the
// device.
func IsNotFound(err error) bool {
	return ClassOf(err) == ClassNotFound
}

// IsUnsupported reports whether the error means the operation is not
// supported by this adapter.
func IsUnsupported(err error) bool {
	return ClassOf(err) == ClassUnsupported
}

// IsAuthExpired reports whether the error means the credential was rejected.
func IsAuthExpired(err error) bool {
	return ClassOf(err) == ClassAuthExpired
}
