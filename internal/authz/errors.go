package authz

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound is returned when a user ID cannot be resolved.
	ErrUserNotFound = errors.New("authz: user not found")

	// ErrAssociationNotFound is returned when a role association ID does not exist.
	ErrAssociationNotFound = errors.New("authz: role association not found")

	// ErrGuestAccessNotFound is returned when a user holds no guest grant.
	ErrGuestAccessNotFound = errors.New("authz: guest access not found")

	// ErrTokenInvalid is returned when an access token fails validation.
	ErrTokenInvalid = errors.New("authz: invalid token")
)

// DenyReason classifies why an operation was denied.
type DenyReason string

// DenyReason constants.
const (
	DenyInsufficientPermissions DenyReason = "insufficient_permissions"
	DenyDeviceOffline           DenyReason = "device_offline"
	DenyRemoteDisabled          DenyReason = "remote_disabled"
	DenyGuestExpired            DenyReason = "guest_expired"
)

// UnauthorizedError is returned by Authorize when an operation is denied.
// It is a typed result, never silently downgraded to success.
type UnauthorizedError struct {
	UserID    string
	DeviceID  string
	Operation string
	Reason    DenyReason
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("authz: user %s denied %s on device %s: %s",
		e.UserID, e.Operation, e.DeviceID, e.Reason)
}

// IsUnauthorized reports whether err is an authorisation denial and, if so,
// returns it.
func IsUnauthorized(err error) (*UnauthorizedError, bool) {
	var unauthorized *UnauthorizedError
	if errors.As(err, &unauthorized) {
		return unauthorized, true
	}
	return nil, false
}
