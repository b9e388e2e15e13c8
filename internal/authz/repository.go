package authz

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists users, role associations and guest grants.
type Repository interface {
	CreateUser(ctx context.Context, user *User) error
	// GetUser loads a user together with role associations (in grant order)
	// and guest grant, ready for the resolver.
	GetUser(ctx context.Context, id string) (*User, error)
	DeleteUser(ctx context.Context, id string) error

	// CreateAssociation grants a role. Grants attached to a hierarchy entity
	// are torn down with the entity itself, inside its delete transaction.
	CreateAssociation(ctx context.Context, assoc *RoleAssociation) error
	DeleteAssociation(ctx context.Context, id string) error
	ListAssociationsByUser(ctx context.Context, userID string) ([]RoleAssociation, error)

	// UpsertGuestAccess creates or replaces a user's guest grant. A user
	// holds at most one.
	UpsertGuestAccess(ctx context.Context, grant *GuestAccess) error
	GetGuestAccess(ctx context.Context, userID string) (*GuestAccess, error)
	RevokeGuestAccess(ctx context.Context, userID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed authz repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateUser inserts a new user. Generates an ID if not provided.
func (r *SQLiteRepository) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}
	if user.DisplayName == "" {
		return fmt.Errorf("display name is required")
	}

	const query = `INSERT INTO users (id, display_name, email) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.DisplayName, nullStr(user.Email))
	if err != nil {
		return fmt.Errorf("inserting user %s: %w", user.ID, err)
	}
	return nil
}

// GetUser loads a user with associations and guest grant.
func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (*User, error) {
	const query = `SELECT id, display_name, email, created_at, updated_at
		FROM users WHERE id = ?`
	var u User
	var email sql.NullString
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.DisplayName, &email, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	if email.Valid {
		u.Email = &email.String
	}
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)

	u.Associations, err = r.ListAssociationsByUser(ctx, id)
	if err != nil {
		return nil, err
	}

	guest, err := r.GetGuestAccess(ctx, id)
	if err != nil && err != ErrGuestAccessNotFound {
		return nil, err
	}
	u.Guest = guest

	return &u, nil
}

// DeleteUser removes a user. Associations, guest grants and tenancies are
// removed by FK cascade.
func (r *SQLiteRepository) DeleteUser(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateAssociation inserts a role grant. Generates an ID if not provided and
// appends it after the user's existing grants.
func (r *SQLiteRepository) CreateAssociation(ctx context.Context, assoc *RoleAssociation) error {
	if assoc.ID == "" {
		assoc.ID = "ra-" + uuid.NewString()[:8]
	}
	if !assoc.Role.IsValid() {
		return fmt.Errorf("invalid role %q", assoc.Role)
	}
	if !assoc.EntityType.IsValid() {
		return fmt.Errorf("invalid entity type %q", assoc.EntityType)
	}

	var maxPosition sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT MAX(position) FROM role_associations WHERE user_id = ?",
		assoc.UserID).Scan(&maxPosition)
	if err != nil {
		return fmt.Errorf("finding grant position for user %s: %w", assoc.UserID, err)
	}
	if maxPosition.Valid {
		assoc.Position = int(maxPosition.Int64) + 1
	} else {
		assoc.Position = 0
	}

	const query = `INSERT INTO role_associations
		(id, user_id, entity_type, entity_id, role, position, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		assoc.ID, assoc.UserID, string(assoc.EntityType), assoc.EntityID,
		string(assoc.Role), assoc.Position, nullStr(assoc.CreatedBy))
	if err != nil {
		return fmt.Errorf("inserting role association %s: %w", assoc.ID, err)
	}
	return nil
}

// DeleteAssociation removes a single role grant by ID.
func (r *SQLiteRepository) DeleteAssociation(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM role_associations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting role association %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrAssociationNotFound
	}
	return nil
}

// ListAssociationsByUser returns a user's role grants in grant order.
func (r *SQLiteRepository) ListAssociationsByUser(ctx context.Context, userID string) ([]RoleAssociation, error) {
	const query = `SELECT id, user_id, entity_type, entity_id, role, position, created_by, created_at
		FROM role_associations WHERE user_id = ? ORDER BY position`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying role associations: %w", err)
	}
	defer rows.Close()

	var associations []RoleAssociation
	for rows.Next() {
		var a RoleAssociation
		var entityType, role string
		var createdBy sql.NullString
		var createdAt string
		if err := rows.Scan(&a.ID, &a.UserID, &entityType, &a.EntityID,
			&role, &a.Position, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning role association row: %w", err)
		}
		a.EntityType = EntityType(entityType)
		a.Role = Role(role)
		if createdBy.Valid {
			a.CreatedBy = &createdBy.String
		}
		a.CreatedAt = parseTime(createdAt)
		associations = append(associations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating role association rows: %w", err)
	}
	return associations, nil
}

// UpsertGuestAccess creates or replaces a user's guest grant, including its
// device list, in one transaction.
func (r *SQLiteRepository) UpsertGuestAccess(ctx context.Context, grant *GuestAccess) error {
	if grant.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if len(grant.DeviceIDs) == 0 {
		return fmt.Errorf("at least one device id is required")
	}
	if grant.ValidUntil.Before(grant.ValidFrom) {
		return fmt.Errorf("valid_until precedes valid_from")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	const upsert = `INSERT INTO guest_access
		(user_id, valid_from, valid_until, property_id, unit_id, created_by)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			valid_from = excluded.valid_from,
			valid_until = excluded.valid_until,
			property_id = excluded.property_id,
			unit_id = excluded.unit_id,
			created_by = excluded.created_by`
	_, err = tx.ExecContext(ctx, upsert,
		grant.UserID,
		grant.ValidFrom.UTC().Format(time.RFC3339),
		grant.ValidUntil.UTC().Format(time.RFC3339),
		nullStr(grant.PropertyID), nullStr(grant.UnitID), nullStr(grant.CreatedBy))
	if err != nil {
		return fmt.Errorf("upserting guest access for user %s: %w", grant.UserID, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM guest_access_devices WHERE user_id = ?", grant.UserID); err != nil {
		return fmt.Errorf("clearing guest devices for user %s: %w", grant.UserID, err)
	}
	for _, deviceID := range grant.DeviceIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO guest_access_devices (user_id, device_id) VALUES (?, ?)",
			grant.UserID, deviceID); err != nil {
			return fmt.Errorf("inserting guest device %s: %w", deviceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing guest access: %w", err)
	}
	return nil
}

// GetGuestAccess returns a user's guest grant with its device list.
func (r *SQLiteRepository) GetGuestAccess(ctx context.Context, userID string) (*GuestAccess, error) {
	const query = `SELECT user_id, valid_from, valid_until, property_id, unit_id, created_by, created_at
		FROM guest_access WHERE user_id = ?`
	var g GuestAccess
	var validFrom, validUntil string
	var propertyID, unitID, createdBy sql.NullString
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&g.UserID, &validFrom, &validUntil, &propertyID, &unitID, &createdBy, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrGuestAccessNotFound
		}
		return nil, fmt.Errorf("scanning guest access: %w", err)
	}
	g.ValidFrom = parseTime(validFrom)
	g.ValidUntil = parseTime(validUntil)
	if propertyID.Valid {
		g.PropertyID = &propertyID.String
	}
	if unitID.Valid {
		g.UnitID = &unitID.String
	}
	if createdBy.Valid {
		g.CreatedBy = &createdBy.String
	}
	g.CreatedAt = parseTime(createdAt)

	rows, err := r.db.QueryContext(ctx,
		"SELECT device_id FROM guest_access_devices WHERE user_id = ? ORDER BY device_id", userID)
	if err != nil {
		return nil, fmt.Errorf("querying guest devices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var deviceID string
		if err := rows.Scan(&deviceID); err != nil {
			return nil, fmt.Errorf("scanning guest device row: %w", err)
		}
		g.DeviceIDs = append(g.DeviceIDs, deviceID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating guest device rows: %w", err)
	}

	return &g, nil
}

// RevokeGuestAccess removes a user's guest grant.
func (r *SQLiteRepository) RevokeGuestAccess(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM guest_access WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("revoking guest access for user %s: %w", userID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrGuestAccessNotFound
	}
	return nil
}

// nullStr converts a *string to a sql.NullString for nullable columns.
func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// parseTime parses an ISO 8601 timestamp from SQLite.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05Z", s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
