package hierarchy

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database seeded with a small
// portfolio -> property -> unit tree and a few placements.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE portfolios (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE properties (
			id TEXT PRIMARY KEY,
			portfolio_id TEXT NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE units (
			id TEXT PRIMARY KEY,
			property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE unit_tenants (
			unit_id TEXT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (unit_id, user_id)
		);

		CREATE TABLE device_placements (
			device_id TEXT PRIMARY KEY,
			property_id TEXT REFERENCES properties(id) ON DELETE CASCADE,
			unit_id TEXT REFERENCES units(id) ON DELETE CASCADE,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE role_associations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			role TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			created_by TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		INSERT INTO portfolios (id, name) VALUES
			('pf-1', 'Harbour Holdings'),
			('pf-2', 'Westgate Estates');

		INSERT INTO properties (id, portfolio_id, name) VALUES
			('pr-1', 'pf-1', 'Harbour House'),
			('pr-2', 'pf-1', 'Quay Court'),
			('pr-3', 'pf-2', 'Westgate Tower');

		INSERT INTO units (id, property_id, name) VALUES
			('un-1', 'pr-1', 'Flat 1'),
			('un-2', 'pr-1', 'Flat 2'),
			('un-3', 'pr-3', 'Suite 301');

		INSERT INTO unit_tenants (unit_id, user_id) VALUES
			('un-1', 'u-alice'),
			('un-1', 'u-bob'),
			('un-3', 'u-carol');

		INSERT INTO device_placements (device_id, property_id, unit_id) VALUES
			('dev-front', 'pr-1', 'un-1'),
			('dev-back', 'pr-1', 'un-2'),
			('dev-lobby', 'pr-1', NULL);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestListPortfolios(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	portfolios, err := repo.ListPortfolios(context.Background())
	if err != nil {
		t.Fatalf("ListPortfolios: %v", err)
	}
	if len(portfolios) != 2 {
		t.Fatalf("expected 2 portfolios, got %d", len(portfolios))
	}
	if portfolios[0].Name != "Harbour Holdings" {
		t.Errorf("first portfolio: got %q, want %q", portfolios[0].Name, "Harbour Holdings")
	}
}

func TestGetPortfolioNotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.GetPortfolio(context.Background(), "pf-nope")
	if err != ErrPortfolioNotFound {
		t.Errorf("expected ErrPortfolioNotFound, got %v", err)
	}
}

func TestDeletePortfolioWithProperties(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	err := repo.DeletePortfolio(context.Background(), "pf-1")
	if err != ErrPortfolioHasProperties {
		t.Errorf("expected ErrPortfolioHasProperties, got %v", err)
	}
}

func TestPropertyLifecycle(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	property := &Property{ID: "pr-new", PortfolioID: "pf-2", Name: "Northgate Mews"}
	if err := repo.CreateProperty(ctx, property); err != nil {
		t.Fatalf("CreateProperty: %v", err)
	}

	got, err := repo.GetProperty(ctx, "pr-new")
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if got.PortfolioID != "pf-2" {
		t.Errorf("portfolio_id: got %q, want %q", got.PortfolioID, "pf-2")
	}

	got.Name = "Northgate Mews East"
	if err := repo.UpdateProperty(ctx, got); err != nil {
		t.Fatalf("UpdateProperty: %v", err)
	}

	updated, err := repo.GetProperty(ctx, "pr-new")
	if err != nil {
		t.Fatalf("GetProperty after update: %v", err)
	}
	if updated.Name != "Northgate Mews East" {
		t.Errorf("name after update: got %q", updated.Name)
	}

	if err := repo.DeleteProperty(ctx, "pr-new"); err != nil {
		t.Fatalf("DeleteProperty: %v", err)
	}
	if _, err := repo.GetProperty(ctx, "pr-new"); err != ErrPropertyNotFound {
		t.Errorf("expected ErrPropertyNotFound after delete, got %v", err)
	}
}

func TestDeletePropertyWithUnits(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	err := repo.DeleteProperty(context.Background(), "pr-1")
	if err != ErrPropertyHasUnits {
		t.Errorf("expected ErrPropertyHasUnits, got %v", err)
	}
}

func TestListPropertiesByPortfolio(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	properties, err := repo.ListPropertiesByPortfolio(context.Background(), "pf-1")
	if err != nil {
		t.Fatalf("ListPropertiesByPortfolio: %v", err)
	}
	if len(properties) != 2 {
		t.Fatalf("expected 2 properties for pf-1, got %d", len(properties))
	}

	properties, err = repo.ListPropertiesByPortfolio(context.Background(), "pf-nope")
	if err != nil {
		t.Fatalf("ListPropertiesByPortfolio non-existent: %v", err)
	}
	if len(properties) != 0 {
		t.Errorf("expected 0 properties for pf-nope, got %d", len(properties))
	}
}

func TestListUnitsByProperty(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	units, err := repo.ListUnitsByProperty(context.Background(), "pr-1")
	if err != nil {
		t.Fatalf("ListUnitsByProperty: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units for pr-1, got %d", len(units))
	}
	if units[0].Name != "Flat 1" {
		t.Errorf("first unit: got %q, want %q", units[0].Name, "Flat 1")
	}
}

func TestPortfolioForProperty(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	portfolioID, err := repo.PortfolioForProperty(context.Background(), "pr-3")
	if err != nil {
		t.Fatalf("PortfolioForProperty: %v", err)
	}
	if portfolioID != "pf-2" {
		t.Errorf("portfolio: got %q, want %q", portfolioID, "pf-2")
	}

	_, err = repo.PortfolioForProperty(context.Background(), "pr-nope")
	if err != ErrPropertyNotFound {
		t.Errorf("expected ErrPropertyNotFound, got %v", err)
	}
}

func TestTenancy(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	tenants, err := repo.TenantsForUnit(ctx, "un-1")
	if err != nil {
		t.Fatalf("TenantsForUnit: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("expected 2 tenants for un-1, got %d", len(tenants))
	}

	// Assigning twice is a no-op.
	if err := repo.AssignTenant(ctx, "un-2", "u-alice"); err != nil {
		t.Fatalf("AssignTenant: %v", err)
	}
	if err := repo.AssignTenant(ctx, "un-2", "u-alice"); err != nil {
		t.Fatalf("AssignTenant repeat: %v", err)
	}

	units, err := repo.UnitsForTenant(ctx, "u-alice")
	if err != nil {
		t.Fatalf("UnitsForTenant: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected u-alice in 2 units, got %d", len(units))
	}

	if err := repo.RemoveTenant(ctx, "un-1", "u-alice"); err != nil {
		t.Fatalf("RemoveTenant: %v", err)
	}
	units, err = repo.UnitsForTenant(ctx, "u-alice")
	if err != nil {
		t.Fatalf("UnitsForTenant after removal: %v", err)
	}
	if len(units) != 1 || units[0] != "un-2" {
		t.Errorf("expected u-alice only in un-2, got %v", units)
	}
}

// grantCount returns the number of role grants attached to an entity.
func grantCount(t *testing.T, db *sql.DB, entityType, entityID string) int {
	t.Helper()
	var n int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM role_associations WHERE entity_type = ? AND entity_id = ?",
		entityType, entityID).Scan(&n)
	if err != nil {
		t.Fatalf("counting role grants: %v", err)
	}
	return n
}

func TestDeleteUnitRemovesRoleGrants(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	seed := `INSERT INTO role_associations (id, user_id, entity_type, entity_id, role) VALUES
		('ra-1', 'u-alice', 'unit', 'un-2', 'tenant'),
		('ra-2', 'u-bob', 'unit', 'un-2', 'tenant'),
		('ra-3', 'u-alice', 'unit', 'un-1', 'tenant')`
	if _, err := db.Exec(seed); err != nil {
		t.Fatalf("seeding role grants: %v", err)
	}

	if err := repo.DeleteUnit(ctx, "un-2"); err != nil {
		t.Fatalf("DeleteUnit: %v", err)
	}

	if n := grantCount(t, db, "unit", "un-2"); n != 0 {
		t.Errorf("expected no grants to survive the unit, got %d", n)
	}
	if n := grantCount(t, db, "unit", "un-1"); n != 1 {
		t.Errorf("grants on other units must be untouched, got %d", n)
	}
}

func TestDeletePropertyRemovesRoleGrants(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// pr-2 has no units, so the delete is permitted.
	seed := `INSERT INTO role_associations (id, user_id, entity_type, entity_id, role) VALUES
		('ra-1', 'u-carol', 'property', 'pr-2', 'property_manager'),
		('ra-2', 'u-carol', 'property', 'pr-1', 'property_manager')`
	if _, err := db.Exec(seed); err != nil {
		t.Fatalf("seeding role grants: %v", err)
	}

	if err := repo.DeleteProperty(ctx, "pr-2"); err != nil {
		t.Fatalf("DeleteProperty: %v", err)
	}

	if n := grantCount(t, db, "property", "pr-2"); n != 0 {
		t.Errorf("expected no grants to survive the property, got %d", n)
	}
	if n := grantCount(t, db, "property", "pr-1"); n != 1 {
		t.Errorf("grants on other properties must be untouched, got %d", n)
	}
}

func TestDeletePortfolioRemovesRoleGrants(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	portfolio := &Portfolio{Name: "Winding Down Ltd"}
	if err := repo.CreatePortfolio(ctx, portfolio); err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	if _, err := db.Exec(
		"INSERT INTO role_associations (id, user_id, entity_type, entity_id, role) VALUES (?, ?, ?, ?, ?)",
		"ra-1", "u-dana", "portfolio", portfolio.ID, "owner"); err != nil {
		t.Fatalf("seeding role grant: %v", err)
	}

	if err := repo.DeletePortfolio(ctx, portfolio.ID); err != nil {
		t.Fatalf("DeletePortfolio: %v", err)
	}

	if n := grantCount(t, db, "portfolio", portfolio.ID); n != 0 {
		t.Errorf("expected no grants to survive the portfolio, got %d", n)
	}
}

func TestPlacementAssignAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLitePlacementRepository(db)
	ctx := context.Background()

	placement, err := repo.Get(ctx, "dev-lobby")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if placement.UnitID != nil {
		t.Error("property-level placement should have nil unit")
	}

	// Re-assigning moves the device.
	unitID := "un-2"
	if err := repo.Assign(ctx, &Placement{DeviceID: "dev-front", PropertyID: "pr-1", UnitID: &unitID}); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	moved, err := repo.Get(ctx, "dev-front")
	if err != nil {
		t.Fatalf("Get after move: %v", err)
	}
	if moved.UnitID == nil || *moved.UnitID != "un-2" {
		t.Errorf("unit after move: got %v, want un-2", moved.UnitID)
	}

	// Still exactly one placement for the device.
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM device_placements WHERE device_id = 'dev-front'").Scan(&count); err != nil {
		t.Fatalf("counting placements: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 placement row, got %d", count)
	}
}

func TestPlacementUnitMustBelongToProperty(t *testing.T) {
	repo := NewSQLitePlacementRepository(setupTestDB(t))
	ctx := context.Background()

	unitID := "un-3" // belongs to pr-3
	err := repo.Assign(ctx, &Placement{DeviceID: "dev-x", PropertyID: "pr-1", UnitID: &unitID})
	if err != ErrPlacementMismatch {
		t.Errorf("expected ErrPlacementMismatch, got %v", err)
	}

	missing := "un-nope"
	err = repo.Assign(ctx, &Placement{DeviceID: "dev-x", PropertyID: "pr-1", UnitID: &missing})
	if err != ErrUnitNotFound {
		t.Errorf("expected ErrUnitNotFound, got %v", err)
	}
}

func TestPlacementAllAndList(t *testing.T) {
	repo := NewSQLitePlacementRepository(setupTestDB(t))
	ctx := context.Background()

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 placements, got %d", len(all))
	}
	if _, ok := all["dev-front"]; !ok {
		t.Error("dev-front missing from All()")
	}

	byProperty, err := repo.ListByProperty(ctx, "pr-1")
	if err != nil {
		t.Fatalf("ListByProperty: %v", err)
	}
	if len(byProperty) != 3 {
		t.Errorf("expected 3 placements for pr-1, got %d", len(byProperty))
	}

	byUnit, err := repo.ListByUnit(ctx, "un-1")
	if err != nil {
		t.Fatalf("ListByUnit: %v", err)
	}
	if len(byUnit) != 1 || byUnit[0].DeviceID != "dev-front" {
		t.Errorf("expected dev-front in un-1, got %v", byUnit)
	}
}

func TestPlacementRemove(t *testing.T) {
	repo := NewSQLitePlacementRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Remove(ctx, "dev-lobby"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := repo.Get(ctx, "dev-lobby"); err != ErrPlacementNotFound {
		t.Errorf("expected ErrPlacementNotFound after remove, got %v", err)
	}
	if err := repo.Remove(ctx, "dev-lobby"); err != ErrPlacementNotFound {
		t.Errorf("expected ErrPlacementNotFound for repeat remove, got %v", err)
	}
}
