package database_test

import (
	"context"
	"testing"

	_ "github.com/keyfold/keyfold-core/migrations"
)

// keyfoldTables is every table the initial schema creates.
var keyfoldTables = []string{
	"users",
	"portfolios",
	"properties",
	"units",
	"unit_tenants",
	"device_placements",
	"role_associations",
	"guest_access",
	"guest_access_devices",
	"access_history",
	"audit_logs",
	"schema_migrations",
}

func TestMigrateBuildsSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	for _, table := range keyfoldTables {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	var before int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&before); err != nil {
		t.Fatalf("counting applied migrations: %v", err)
	}
	if before == 0 {
		t.Fatal("no migrations were recorded")
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	var after int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&after); err != nil {
		t.Fatalf("counting applied migrations: %v", err)
	}
	if after != before {
		t.Errorf("re-running Migrate changed the version count: %d -> %d", before, after)
	}
}

func TestSchemaAcceptsHierarchyRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	statements := []string{
		"INSERT INTO users (id, display_name) VALUES ('u-1', 'Alice')",
		"INSERT INTO portfolios (id, name) VALUES ('pf-1', 'Harbour Holdings')",
		"INSERT INTO properties (id, portfolio_id, name) VALUES ('pr-1', 'pf-1', 'Harbour House')",
		"INSERT INTO units (id, property_id, name) VALUES ('un-1', 'pr-1', 'Flat 1')",
		"INSERT INTO role_associations (id, user_id, entity_type, entity_id, role) VALUES ('ra-1', 'u-1', 'unit', 'un-1', 'tenant')",
		"INSERT INTO device_placements (device_id, property_id, unit_id) VALUES ('dev-1', 'pr-1', 'un-1')",
		"INSERT INTO access_history (device_id, operation, user_id, success) VALUES ('dev-1', 'lock', 'u-1', 1)",
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
}

func TestSchemaEnforcesForeignKeys(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	if _, err := db.ExecContext(ctx,
		"INSERT INTO properties (id, portfolio_id, name) VALUES ('pr-x', 'pf-ghost', 'Orphan')",
	); err == nil {
		t.Error("property referencing a missing portfolio should be rejected")
	}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO role_associations (id, user_id, entity_type, entity_id, role) VALUES ('ra-x', 'u-ghost', 'unit', 'un-1', 'tenant')",
	); err == nil {
		t.Error("grant referencing a missing user should be rejected")
	}
}

func TestSchemaCascadesHierarchyDeletes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	seed := []string{
		"INSERT INTO portfolios (id, name) VALUES ('pf-1', 'Harbour Holdings')",
		"INSERT INTO properties (id, portfolio_id, name) VALUES ('pr-1', 'pf-1', 'Harbour House')",
		"INSERT INTO units (id, property_id, name) VALUES ('un-1', 'pr-1', 'Flat 1')",
		"INSERT INTO device_placements (device_id, property_id, unit_id) VALUES ('dev-1', 'pr-1', 'un-1')",
	}
	for _, stmt := range seed {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM portfolios WHERE id = 'pf-1'"); err != nil {
		t.Fatalf("deleting portfolio: %v", err)
	}

	for _, table := range []string{"properties", "units", "device_placements"} {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Fatalf("counting %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("%s rows survived the portfolio delete: %d", table, count)
		}
	}
}
