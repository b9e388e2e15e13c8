package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no adapter claims a device ID.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidOperation is returned when an operation value is not recognised.
	ErrInvalidOperation = errors.New("device: invalid operation")

	// ErrInvalidCommand is returned when an operation cannot be issued as a command.
	ErrInvalidCommand = errors.New("device: operation is not commandable")
)
