package mqtt

import "errors"

// Sentinel errors, matched with errors.Is.
var (
	// ErrNotConnected means the client has no live broker connection.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed means the initial connection attempt failed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed means a publish was rejected or timed out.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidQoS means a QoS level outside 0..2 was requested.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic means an empty topic was given.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
