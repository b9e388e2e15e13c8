package hierarchy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for hierarchy persistence operations.
type Repository interface {
	CreatePortfolio(ctx context.Context, portfolio *Portfolio) error
	ListPortfolios(ctx context.Context) ([]Portfolio, error)
	GetPortfolio(ctx context.Context, id string) (*Portfolio, error)
	UpdatePortfolio(ctx context.Context, portfolio *Portfolio) error
	DeletePortfolio(ctx context.Context, id string) error

	CreateProperty(ctx context.Context, property *Property) error
	ListProperties(ctx context.Context) ([]Property, error)
	ListPropertiesByPortfolio(ctx context.Context, portfolioID string) ([]Property, error)
	GetProperty(ctx context.Context, id string) (*Property, error)
	UpdateProperty(ctx context.Context, property *Property) error
	DeleteProperty(ctx context.Context, id string) error

	CreateUnit(ctx context.Context, unit *Unit) error
	ListUnitsByProperty(ctx context.Context, propertyID string) ([]Unit, error)
	GetUnit(ctx context.Context, id string) (*Unit, error)
	UpdateUnit(ctx context.Context, unit *Unit) error
	DeleteUnit(ctx context.Context, id string) error

	// PortfolioForProperty resolves the owning portfolio of a property.
	// Authorisation uses this to honour portfolio-level grants on devices
	// placed further down the tree.
	PortfolioForProperty(ctx context.Context, propertyID string) (string, error)

	AssignTenant(ctx context.Context, unitID, userID string) error
	RemoveTenant(ctx context.Context, unitID, userID string) error
	TenantsForUnit(ctx context.Context, unitID string) ([]string, error)
	UnitsForTenant(ctx context.Context, userID string) ([]string, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed hierarchy repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreatePortfolio inserts a new portfolio. Generates an ID if not provided.
func (r *SQLiteRepository) CreatePortfolio(ctx context.Context, portfolio *Portfolio) error {
	if portfolio.ID == "" {
		portfolio.ID = "pf-" + uuid.NewString()[:8]
	}
	const query = `INSERT INTO portfolios (id, name) VALUES (?, ?)`
	_, err := r.db.ExecContext(ctx, query, portfolio.ID, portfolio.Name)
	if err != nil {
		return fmt.Errorf("inserting portfolio %s: %w", portfolio.ID, err)
	}
	return nil
}

// ListPortfolios returns all portfolios ordered by name.
func (r *SQLiteRepository) ListPortfolios(ctx context.Context) ([]Portfolio, error) {
	const query = `SELECT id, name, created_at, updated_at FROM portfolios ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []Portfolio
	for rows.Next() {
		var p Portfolio
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning portfolio row: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating portfolio rows: %w", err)
	}
	return portfolios, nil
}

// GetPortfolio returns a single portfolio by ID.
func (r *SQLiteRepository) GetPortfolio(ctx context.Context, id string) (*Portfolio, error) {
	const query = `SELECT id, name, created_at, updated_at FROM portfolios WHERE id = ?`
	var p Portfolio
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("scanning portfolio: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// UpdatePortfolio updates an existing portfolio record.
func (r *SQLiteRepository) UpdatePortfolio(ctx context.Context, portfolio *Portfolio) error {
	const query = `UPDATE portfolios SET name = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, portfolio.Name, portfolio.ID)
	if err != nil {
		return fmt.Errorf("updating portfolio %s: %w", portfolio.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrPortfolioNotFound
	}
	return nil
}

// DeletePortfolio removes a portfolio by ID. Role grants attached to the
// portfolio are removed in the same transaction.
// Returns ErrPortfolioHasProperties if properties still reference it.
func (r *SQLiteRepository) DeletePortfolio(ctx context.Context, id string) error {
	var propertyCount int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM properties WHERE portfolio_id = ?", id).Scan(&propertyCount); err != nil {
		return fmt.Errorf("counting properties for portfolio %s: %w", id, err)
	}
	if propertyCount > 0 {
		return ErrPortfolioHasProperties
	}

	return r.deleteEntity(ctx, "portfolios", "portfolio", id, ErrPortfolioNotFound)
}

// CreateProperty inserts a new property. Generates an ID if not provided.
func (r *SQLiteRepository) CreateProperty(ctx context.Context, property *Property) error {
	if property.ID == "" {
		property.ID = "pr-" + uuid.NewString()[:8]
	}
	const query = `INSERT INTO properties (id, portfolio_id, name) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		property.ID, property.PortfolioID, property.Name)
	if err != nil {
		return fmt.Errorf("inserting property %s: %w", property.ID, err)
	}
	return nil
}

// ListProperties returns all properties ordered by name.
func (r *SQLiteRepository) ListProperties(ctx context.Context) ([]Property, error) {
	const query = `SELECT id, portfolio_id, name, created_at, updated_at
		FROM properties ORDER BY name`
	return r.queryProperties(ctx, query)
}

// ListPropertiesByPortfolio returns properties for a specific portfolio.
func (r *SQLiteRepository) ListPropertiesByPortfolio(ctx context.Context, portfolioID string) ([]Property, error) {
	const query = `SELECT id, portfolio_id, name, created_at, updated_at
		FROM properties WHERE portfolio_id = ? ORDER BY name`
	return r.queryProperties(ctx, query, portfolioID)
}

// GetProperty returns a single property by ID.
func (r *SQLiteRepository) GetProperty(ctx context.Context, id string) (*Property, error) {
	const query = `SELECT id, portfolio_id, name, created_at, updated_at
		FROM properties WHERE id = ?`
	var p Property
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.PortfolioID, &p.Name, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPropertyNotFound
		}
		return nil, fmt.Errorf("scanning property: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// UpdateProperty updates an existing property record.
func (r *SQLiteRepository) UpdateProperty(ctx context.Context, property *Property) error {
	const query = `UPDATE properties SET name = ?, portfolio_id = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		property.Name, property.PortfolioID, property.ID)
	if err != nil {
		return fmt.Errorf("updating property %s: %w", property.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrPropertyNotFound
	}
	return nil
}

// DeleteProperty removes a property by ID. Role grants attached to the
// property are removed in the same transaction.
// Returns ErrPropertyHasUnits if units still reference it.
func (r *SQLiteRepository) DeleteProperty(ctx context.Context, id string) error {
	var unitCount int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM units WHERE property_id = ?", id).Scan(&unitCount); err != nil {
		return fmt.Errorf("counting units for property %s: %w", id, err)
	}
	if unitCount > 0 {
		return ErrPropertyHasUnits
	}

	return r.deleteEntity(ctx, "properties", "property", id, ErrPropertyNotFound)
}

// CreateUnit inserts a new unit. Generates an ID if not provided.
func (r *SQLiteRepository) CreateUnit(ctx context.Context, unit *Unit) error {
	if unit.ID == "" {
		unit.ID = "un-" + uuid.NewString()[:8]
	}
	const query = `INSERT INTO units (id, property_id, name) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, unit.ID, unit.PropertyID, unit.Name)
	if err != nil {
		return fmt.Errorf("inserting unit %s: %w", unit.ID, err)
	}
	return nil
}

// ListUnitsByProperty returns units for a specific property.
func (r *SQLiteRepository) ListUnitsByProperty(ctx context.Context, propertyID string) ([]Unit, error) {
	const query = `SELECT id, property_id, name, created_at, updated_at
		FROM units WHERE property_id = ? ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying units: %w", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		var createdAt, updatedAt string
		if err := rows.Scan(&u.ID, &u.PropertyID, &u.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning unit row: %w", err)
		}
		u.CreatedAt = parseTime(createdAt)
		u.UpdatedAt = parseTime(updatedAt)
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unit rows: %w", err)
	}
	return units, nil
}

// GetUnit returns a single unit by ID.
func (r *SQLiteRepository) GetUnit(ctx context.Context, id string) (*Unit, error) {
	const query = `SELECT id, property_id, name, created_at, updated_at
		FROM units WHERE id = ?`
	var u Unit
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.PropertyID, &u.Name, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUnitNotFound
		}
		return nil, fmt.Errorf("scanning unit: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

// UpdateUnit updates an existing unit record.
func (r *SQLiteRepository) UpdateUnit(ctx context.Context, unit *Unit) error {
	const query = `UPDATE units SET name = ?, property_id = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, unit.Name, unit.PropertyID, unit.ID)
	if err != nil {
		return fmt.Errorf("updating unit %s: %w", unit.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrUnitNotFound
	}
	return nil
}

// DeleteUnit removes a unit by ID. Tenancy rows and placements referencing
// the unit are removed by FK cascade; role grants attached to the unit are
// removed in the same transaction.
func (r *SQLiteRepository) DeleteUnit(ctx context.Context, id string) error {
	return r.deleteEntity(ctx, "units", "unit", id, ErrUnitNotFound)
}

// deleteEntity removes one hierarchy row and every role grant attached to it
// in a single transaction. role_associations has no FK to the entity tables
// (entity_id is polymorphic), so the cascade is done here.
func (r *SQLiteRepository) deleteEntity(ctx context.Context, table, entityType, id string, notFound error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning %s delete: %w", entityType, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", entityType, id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return notFound
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM role_associations WHERE entity_type = ? AND entity_id = ?",
		entityType, id); err != nil {
		return fmt.Errorf("deleting role grants for %s %s: %w", entityType, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s delete: %w", entityType, err)
	}
	return nil
}

// PortfolioForProperty resolves the owning portfolio of a property.
func (r *SQLiteRepository) PortfolioForProperty(ctx context.Context, propertyID string) (string, error) {
	const query = `SELECT portfolio_id FROM properties WHERE id = ?`
	var portfolioID string
	err := r.db.QueryRowContext(ctx, query, propertyID).Scan(&portfolioID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrPropertyNotFound
		}
		return "", fmt.Errorf("resolving portfolio for property %s: %w", propertyID, err)
	}
	return portfolioID, nil
}

// AssignTenant records a tenancy. Assigning an existing tenancy is a no-op.
func (r *SQLiteRepository) AssignTenant(ctx context.Context, unitID, userID string) error {
	const query = `INSERT OR IGNORE INTO unit_tenants (unit_id, user_id) VALUES (?, ?)`
	_, err := r.db.ExecContext(ctx, query, unitID, userID)
	if err != nil {
		return fmt.Errorf("assigning tenant %s to unit %s: %w", userID, unitID, err)
	}
	return nil
}

// RemoveTenant ends a tenancy. Removing an absent tenancy is a no-op.
func (r *SQLiteRepository) RemoveTenant(ctx context.Context, unitID, userID string) error {
	const query = `DELETE FROM unit_tenants WHERE unit_id = ? AND user_id = ?`
	_, err := r.db.ExecContext(ctx, query, unitID, userID)
	if err != nil {
		return fmt.Errorf("removing tenant %s from unit %s: %w", userID, unitID, err)
	}
	return nil
}

// TenantsForUnit returns the user IDs of tenants assigned to a unit.
func (r *SQLiteRepository) TenantsForUnit(ctx context.Context, unitID string) ([]string, error) {
	const query = `SELECT user_id FROM unit_tenants WHERE unit_id = ? ORDER BY user_id`
	return r.queryStrings(ctx, query, unitID)
}

// UnitsForTenant returns the unit IDs a user is a tenant of.
func (r *SQLiteRepository) UnitsForTenant(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT unit_id FROM unit_tenants WHERE user_id = ? ORDER BY unit_id`
	return r.queryStrings(ctx, query, userID)
}

// queryProperties executes a query and returns a slice of Property.
func (r *SQLiteRepository) queryProperties(ctx context.Context, query string, args ...any) ([]Property, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying properties: %w", err)
	}
	defer rows.Close()

	var properties []Property
	for rows.Next() {
		var p Property
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.PortfolioID, &p.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning property row: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		properties = append(properties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating property rows: %w", err)
	}
	return properties, nil
}

// queryStrings executes a single-column query and returns the values.
func (r *SQLiteRepository) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rows: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return values, nil
}

// parseTime parses an ISO 8601 timestamp from SQLite.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Try the SQLite default format without timezone.
		t, err = time.Parse("2006-01-02T15:04:05Z", s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
