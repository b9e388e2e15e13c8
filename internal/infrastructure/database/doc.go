// Package database opens and migrates the Keyfold SQLite store.
//
// One file-backed SQLite database holds all platform-owned state: the
// ownership hierarchy, users and their role grants, device placements,
// access history and the audit trail. Devices themselves are never
// persisted here; they are a live projection fetched from vendor
// adapters.
//
// Schema migrations are embedded, forward-only SQL files applied in
// version order, each in its own transaction. The migrations package
// registers them through MigrationsFS at init time:
//
//	db, err := database.Open(database.Config{Path: "data/keyfold.db"})
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//		return err
//	}
package database
