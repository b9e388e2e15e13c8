package device

import (
	"context"
	"time"
)

// AccessRecord is a single entry in a device's append-only access history.
// Exactly one record is appended for every state-changing operation
// attempted on a device, whether it succeeded or failed.
type AccessRecord struct {
	ID            int64     `json:"id"`
	DeviceID      string    `json:"device_id"`
	Operation     Operation `json:"operation"`
	UserID        string    `json:"user_id"`
	Success       bool      `json:"success"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// HistoryRepository persists device access history.
type HistoryRepository interface {
	// Append records one access attempt. Records are never updated or deleted
	// outside retention pruning.
	Append(ctx context.Context, record *AccessRecord) error

	// History returns recent records for a device, newest first.
	History(ctx context.Context, deviceID string, limit int) ([]AccessRecord, error)

	// Prune deletes records older than the given duration, returning the
	// number of rows removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
