package hierarchy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrPlacementMismatch is returned when a placement names a unit that does
// not belong to the named property.
var ErrPlacementMismatch = errors.New("hierarchy: unit does not belong to property")

// PlacementRepository persists device placements.
type PlacementRepository interface {
	// Assign creates or replaces the placement for a device. The primary key
	// on device_id keeps each device in at most one position.
	Assign(ctx context.Context, placement *Placement) error
	Remove(ctx context.Context, deviceID string) error
	Get(ctx context.Context, deviceID string) (*Placement, error)

	// All returns every placement keyed by device ID, for decorating a full
	// device listing in one query.
	All(ctx context.Context) (map[string]Placement, error)

	ListByUnit(ctx context.Context, unitID string) ([]Placement, error)
	ListByProperty(ctx context.Context, propertyID string) ([]Placement, error)
}

// SQLitePlacementRepository implements PlacementRepository using SQLite.
type SQLitePlacementRepository struct {
	db *sql.DB
}

// NewSQLitePlacementRepository creates a new SQLite-backed placement repository.
func NewSQLitePlacementRepository(db *sql.DB) *SQLitePlacementRepository {
	return &SQLitePlacementRepository{db: db}
}

// Assign creates or replaces the placement for a device.
func (r *SQLitePlacementRepository) Assign(ctx context.Context, placement *Placement) error {
	if placement.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if placement.PropertyID == "" {
		return fmt.Errorf("property id is required")
	}

	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM properties WHERE id = ?", placement.PropertyID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrPropertyNotFound
		}
		return fmt.Errorf("checking property %s: %w", placement.PropertyID, err)
	}

	if placement.UnitID != nil {
		var propertyID string
		err := r.db.QueryRowContext(ctx,
			"SELECT property_id FROM units WHERE id = ?", *placement.UnitID).Scan(&propertyID)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrUnitNotFound
			}
			return fmt.Errorf("checking unit %s: %w", *placement.UnitID, err)
		}
		if propertyID != placement.PropertyID {
			return ErrPlacementMismatch
		}
	}

	const query = `INSERT INTO device_placements (device_id, property_id, unit_id)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET property_id = excluded.property_id,
			unit_id = excluded.unit_id`
	if _, err := r.db.ExecContext(ctx, query,
		placement.DeviceID, placement.PropertyID, nullStr(placement.UnitID)); err != nil {
		return fmt.Errorf("assigning placement for device %s: %w", placement.DeviceID, err)
	}
	return nil
}

// Remove deletes the placement for a device.
func (r *SQLitePlacementRepository) Remove(ctx context.Context, deviceID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM device_placements WHERE device_id = ?", deviceID)
	if err != nil {
		return fmt.Errorf("removing placement for device %s: %w", deviceID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrPlacementNotFound
	}
	return nil
}

// Get returns the placement for a device.
func (r *SQLitePlacementRepository) Get(ctx context.Context, deviceID string) (*Placement, error) {
	const query = `SELECT device_id, property_id, unit_id, created_at
		FROM device_placements WHERE device_id = ?`
	var p Placement
	var unitID sql.NullString
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&p.DeviceID, &p.PropertyID, &unitID, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPlacementNotFound
		}
		return nil, fmt.Errorf("scanning placement: %w", err)
	}
	if unitID.Valid {
		p.UnitID = &unitID.String
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// All returns every placement keyed by device ID.
func (r *SQLitePlacementRepository) All(ctx context.Context) (map[string]Placement, error) {
	const query = `SELECT device_id, property_id, unit_id, created_at FROM device_placements`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying placements: %w", err)
	}
	defer rows.Close()

	placements := make(map[string]Placement)
	for rows.Next() {
		p, err := scanPlacementRow(rows)
		if err != nil {
			return nil, err
		}
		placements[p.DeviceID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating placement rows: %w", err)
	}
	return placements, nil
}

// ListByUnit returns placements for devices inside a unit.
func (r *SQLitePlacementRepository) ListByUnit(ctx context.Context, unitID string) ([]Placement, error) {
	const query = `SELECT device_id, property_id, unit_id, created_at
		FROM device_placements WHERE unit_id = ? ORDER BY device_id`
	return r.queryPlacements(ctx, query, unitID)
}

// ListByProperty returns placements for a property, including devices placed
// in its units.
func (r *SQLitePlacementRepository) ListByProperty(ctx context.Context, propertyID string) ([]Placement, error) {
	const query = `SELECT device_id, property_id, unit_id, created_at
		FROM device_placements WHERE property_id = ? ORDER BY device_id`
	return r.queryPlacements(ctx, query, propertyID)
}

// queryPlacements executes a query and returns a slice of Placement.
func (r *SQLitePlacementRepository) queryPlacements(ctx context.Context, query string, args ...any) ([]Placement, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying placements: %w", err)
	}
	defer rows.Close()

	var placements []Placement
	for rows.Next() {
		p, err := scanPlacementRow(rows)
		if err != nil {
			return nil, err
		}
		placements = append(placements, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating placement rows: %w", err)
	}
	return placements, nil
}

// scanPlacementRow scans a placement from a Rows cursor.
func scanPlacementRow(rows *sql.Rows) (*Placement, error) {
	var p Placement
	var unitID sql.NullString
	var createdAt string
	if err := rows.Scan(&p.DeviceID, &p.PropertyID, &unitID, &createdAt); err != nil {
		return nil, fmt.Errorf("scanning placement row: %w", err)
	}
	if unitID.Valid {
		p.UnitID = &unitID.String
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// nullStr converts a *string to a sql.NullString for nullable columns.
func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
