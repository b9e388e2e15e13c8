package adapters

import (
	"context"

	"github.com/keyfold/keyfold-core/internal/device"
)

// Adapter is the contract a vendor lock integration implements. Every call
// may fail with a classified *Error; any other error is treated as
// unclassified and never retried.
type Adapter interface {
	// Name returns the configured vendor name, unique per deployment.
	Name() string

	// FetchDevices returns every device the vendor account can see.
	FetchDevices(ctx context.Context) ([]*device.Device, error)

	// DeviceState returns the current state of one device.
	DeviceState(ctx context.Context, id string) (*device.Device, error)

	// ExecuteCommand performs a state-changing operation and returns the
	// updated device as the vendor reports it.
	ExecuteCommand(ctx context.Context, id string, cmd device.Command) (*device.Device, error)

	// RefreshAuth renews the vendor credential.
	RefreshAuth(ctx context.Context) error

	// RevokeAuth invalidates the vendor credential, for teardown.
	RevokeAuth(ctx context.Context) error
}
