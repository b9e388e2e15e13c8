package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteHistoryRepository implements HistoryRepository using SQLite.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite access history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Append inserts a new access history record for a device.
func (r *SQLiteHistoryRepository) Append(ctx context.Context, record *AccessRecord) error {
	if record.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if record.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	var failureReason any
	if record.FailureReason != nil {
		failureReason = *record.FailureReason
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO access_history (device_id, operation, user_id, success, failure_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.DeviceID,
		string(record.Operation),
		record.UserID,
		boolToInt(record.Success),
		failureReason,
		record.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting access record: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}

	return nil
}

// History returns recent access records for a device, ordered newest first.
// limit defaults to 50 and is capped at 200.
func (r *SQLiteHistoryRepository) History(ctx context.Context, deviceID string, limit int) ([]AccessRecord, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, operation, user_id, success, failure_reason, created_at
		 FROM access_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying access history: %w", err)
	}
	defer rows.Close()

	records := make([]AccessRecord, 0, limit)
	for rows.Next() {
		var record AccessRecord
		var operation string
		var success int
		var failureReason sql.NullString
		var createdAt string

		if err := rows.Scan(&record.ID, &record.DeviceID, &operation, &record.UserID,
			&success, &failureReason, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning access record: %w", err)
		}

		record.Operation = Operation(operation)
		record.Success = success != 0
		if failureReason.Valid {
			reason := failureReason.String
			record.FailureReason = &reason
		}

		timestamp, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		record.Timestamp = timestamp

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access history: %w", err)
	}

	return records, nil
}

// Prune deletes access records older than the given duration.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM access_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting access history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// boolToInt converts a bool to the 0/1 representation SQLite stores.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
