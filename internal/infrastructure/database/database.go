package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// openTimeout bounds the connectivity check during Open.
	openTimeout = 5 * time.Second

	// dirMode restricts the database directory to the owning user and group.
	dirMode = 0750

	// fileMode restricts the database file to the owning user. The file
	// holds role grants and the audit trail.
	fileMode = 0600
)

// Config maps the database section of config.yaml.
type Config struct {
	// Path is the SQLite file. Its parent directory is created on open.
	Path string

	// WALMode switches the journal to write-ahead logging so reads do
	// not block behind the single writer.
	WALMode bool

	// BusyTimeout is how long a locked database is retried, in seconds.
	BusyTimeout int
}

// DB is the open Keyfold store. The embedded *sql.DB carries the usual
// query methods; migrations and health checks live on the wrapper.
type DB struct {
	*sql.DB
}

// Open opens (creating if absent) the SQLite database at cfg.Path,
// applies the connection pragmas and verifies connectivity.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirMode); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout*1000)
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows a single writer; funnel everything through one
	// connection rather than queueing on the file lock.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // best effort on the error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The file may not exist until the first write; tighten it when it does.
	_ = os.Chmod(cfg.Path, fileMode) //nolint:errcheck // created later on first run

	return &DB{DB: sqlDB}, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// HealthCheck verifies the store answers queries.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
