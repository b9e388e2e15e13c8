package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfig writes a temp config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
platform:
  id: "test-platform"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
vendors:
  - name: "lockwise"
    base_url: "https://api.lockwise.example"
    min_request_spacing: 250
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Platform.ID != "test-platform" {
		t.Errorf("Platform.ID = %q, want %q", cfg.Platform.ID, "test-platform")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if len(cfg.Vendors) != 1 {
		t.Fatalf("len(Vendors) = %d, want 1", len(cfg.Vendors))
	}
	if cfg.Vendors[0].Driver != "restlock" {
		t.Errorf("Vendors[0].Driver = %q, want default %q", cfg.Vendors[0].Driver, "restlock")
	}
	if cfg.Vendors[0].Retry.MaxAttempts != 3 {
		t.Errorf("Vendors[0].Retry.MaxAttempts = %d, want default 3", cfg.Vendors[0].Retry.MaxAttempts)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	content := `
platform:
  id: "test-platform"
database:
  path: "/tmp/test.db"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for missing JWT secret, got nil")
	}
}

func TestLoad_ShortJWTSecret(t *testing.T) {
	content := `
platform:
  id: "test-platform"
database:
  path: "/tmp/test.db"
security:
  jwt:
    secret: "too-short"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for short JWT secret, got nil")
	}
}

func TestLoad_DuplicateVendorNames(t *testing.T) {
	content := `
platform:
  id: "test-platform"
database:
  path: "/tmp/test.db"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
vendors:
  - name: "lockwise"
    base_url: "https://a.example"
  - name: "lockwise"
    base_url: "https://b.example"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for duplicate vendor names, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
platform:
  id: "test-platform"
database:
  path: "/tmp/test.db"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
vendors:
  - name: "lockwise"
    base_url: "https://api.lockwise.example"
    api_key: "from-file"
`
	t.Setenv("KEYFOLD_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("KEYFOLD_VENDOR_LOCKWISE_API_KEY", "from-env")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Vendors[0].APIKey != "from-env" {
		t.Errorf("Vendors[0].APIKey = %q, want env override", cfg.Vendors[0].APIKey)
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = "test-secret-key-at-least-32-chars!"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() on defaults error = %v", err)
	}

	if cfg.Audit.QueueSize != 1024 {
		t.Errorf("Audit.QueueSize = %d, want default 1024", cfg.Audit.QueueSize)
	}
	if cfg.History.RetentionDays != 90 {
		t.Errorf("History.RetentionDays = %d, want default 90", cfg.History.RetentionDays)
	}
	if cfg.History.SweepInterval != 24 {
		t.Errorf("History.SweepInterval = %d, want default 24", cfg.History.SweepInterval)
	}
}

func TestLoad_HistoryRetention(t *testing.T) {
	content := `
platform:
  id: "test-platform"
database:
  path: "/tmp/test.db"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
history:
  retention_days: 30
  sweep_interval: 6
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.History.Retention(); got != 30*24*time.Hour {
		t.Errorf("History.Retention() = %v, want 720h", got)
	}
	if got := cfg.History.SweepEvery(); got != 6*time.Hour {
		t.Errorf("History.SweepEvery() = %v, want 6h", got)
	}

	// retention_days: 0 is an explicit opt-out, not a missing value.
	disabled := `
platform:
  id: "test-platform"
database:
  path: "/tmp/test.db"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
history:
  retention_days: 0
`
	cfg, err = Load(writeConfig(t, disabled))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.History.RetentionDays != 0 {
		t.Errorf("History.RetentionDays = %d, want explicit 0", cfg.History.RetentionDays)
	}

	negative := `
platform:
  id: "test-platform"
database:
  path: "/tmp/test.db"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
history:
  retention_days: -1
`
	if _, err := Load(writeConfig(t, negative)); err == nil {
		t.Error("Load() expected validation error for negative retention, got nil")
	}
}
