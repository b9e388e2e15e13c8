package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Keyfold Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Platform PlatformConfig  `yaml:"platform"`
	Database DatabaseConfig  `yaml:"database"`
	API      APIConfig       `yaml:"api"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	InfluxDB InfluxDBConfig  `yaml:"influxdb"`
	Logging  LoggingConfig   `yaml:"logging"`
	Security SecurityConfig  `yaml:"security"`
	Vendors  []VendorConfig  `yaml:"vendors"`
	Audit    AuditConfig     `yaml:"audit"`
	History  HistoryConfig   `yaml:"history"`
}

// PlatformConfig contains deployment-specific information.
type PlatformConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// MQTTConfig contains MQTT broker connection settings for the event publisher.
type MQTTConfig struct {
	Enabled bool             `yaml:"enabled"`
	Broker  MQTTBrokerConfig `yaml:"broker"`
	Auth    MQTTAuthConfig   `yaml:"auth"`
	QoS     int              `yaml:"qos"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// AuditConfig contains audit logger settings.
type AuditConfig struct {
	// QueueSize is the bounded size of the async audit queue.
	// Events are dropped (with a warning) once the queue is full, so that
	// audit logging can never block an authorisation decision.
	QueueSize int `yaml:"queue_size"`
}

// HistoryConfig contains access history retention settings.
type HistoryConfig struct {
	// RetentionDays is how long access records are kept before the
	// background sweep deletes them. Zero disables pruning entirely.
	RetentionDays int `yaml:"retention_days"`

	// SweepInterval is how often the sweep runs, in hours.
	SweepInterval int `yaml:"sweep_interval"`
}

// Retention returns the configured retention window as a Duration.
func (h *HistoryConfig) Retention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

// SweepEvery returns the sweep interval as a Duration.
func (h *HistoryConfig) SweepEvery() time.Duration {
	return time.Duration(h.SweepInterval) * time.Hour
}

// VendorConfig describes one configured vendor cloud integration.
type VendorConfig struct {
	// Name identifies the adapter instance (e.g., "lockwise", "augustine").
	Name string `yaml:"name"`

	// Driver selects the adapter implementation. Currently "restlock".
	Driver string `yaml:"driver"`

	// BaseURL is the vendor API root (e.g., "https://api.lockwise.example").
	BaseURL string `yaml:"base_url"`

	// APIKey is the vendor credential. Prefer the KEYFOLD_VENDOR_<NAME>_API_KEY
	// environment variable over storing it in the file.
	APIKey string `yaml:"api_key"`

	// MinRequestSpacing is the minimum gap between requests to this vendor
	// (milliseconds). Enforced per adapter instance to respect vendor throttling.
	MinRequestSpacing int `yaml:"min_request_spacing"`

	// Retry tunes the shared exponential backoff wrapper for this vendor.
	Retry RetryConfig `yaml:"retry"`

	// Timeout is the per-request HTTP timeout (seconds).
	Timeout int `yaml:"timeout"`
}

// RetryConfig contains retry/backoff settings for vendor calls.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the first retry delay in milliseconds. Subsequent delays
	// double: base, 2*base, 4*base...
	BaseDelay int `yaml:"base_delay"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: KEYFOLD_SECTION_KEY
// For example: KEYFOLD_DATABASE_PATH, KEYFOLD_JWT_SECRET
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default retry settings applied to vendors that don't specify their own.
const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 2000 // milliseconds
	defaultVendorTimeout  = 15   // seconds
)

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			ID:       "keyfold-001",
			Name:     "Keyfold",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/keyfold.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "keyfold-core",
			},
			QoS: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
		Audit: AuditConfig{
			QueueSize: 1024,
		},
		History: HistoryConfig{
			RetentionDays: 90,
			SweepInterval: 24,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: KEYFOLD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("KEYFOLD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("KEYFOLD_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// MQTT
	if v := os.Getenv("KEYFOLD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("KEYFOLD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("KEYFOLD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("KEYFOLD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("KEYFOLD_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Vendor API keys: KEYFOLD_VENDOR_<NAME>_API_KEY
	for i := range cfg.Vendors {
		key := "KEYFOLD_VENDOR_" + strings.ToUpper(cfg.Vendors[i].Name) + "_API_KEY"
		if v := os.Getenv(key); v != "" {
			cfg.Vendors[i].APIKey = v
		}
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Platform validation
	if c.Platform.ID == "" {
		errs = append(errs, "platform.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Security validation - JWT secret is REQUIRED
	// Keyfold grants control of physical locks. Empty or weak secrets could
	// allow attackers to forge tokens and unlock doors.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set KEYFOLD_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	// Vendor validation
	seen := make(map[string]bool, len(c.Vendors))
	for i := range c.Vendors {
		v := &c.Vendors[i]
		if v.Name == "" {
			errs = append(errs, fmt.Sprintf("vendors[%d].name is required", i))
			continue
		}
		if seen[v.Name] {
			errs = append(errs, fmt.Sprintf("vendors[%d].name %q is duplicated", i, v.Name))
		}
		seen[v.Name] = true
		if v.Driver == "" {
			v.Driver = "restlock"
		}
		if v.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("vendors[%d].base_url is required", i))
		}
		if v.Retry.MaxAttempts <= 0 {
			v.Retry.MaxAttempts = defaultRetryAttempts
		}
		if v.Retry.BaseDelay <= 0 {
			v.Retry.BaseDelay = defaultRetryBaseDelay
		}
		if v.Timeout <= 0 {
			v.Timeout = defaultVendorTimeout
		}
	}

	if c.Audit.QueueSize <= 0 {
		c.Audit.QueueSize = 1024
	}

	if c.History.RetentionDays < 0 {
		errs = append(errs, "history.retention_days must not be negative")
	}
	if c.History.SweepInterval <= 0 {
		c.History.SweepInterval = 24
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// MinSpacing returns the vendor's minimum inter-request spacing as a Duration.
func (v *VendorConfig) MinSpacing() time.Duration {
	return time.Duration(v.MinRequestSpacing) * time.Millisecond
}

// RetryBaseDelay returns the vendor's retry base delay as a Duration.
func (v *VendorConfig) RetryBaseDelay() time.Duration {
	return time.Duration(v.Retry.BaseDelay) * time.Millisecond
}

// RequestTimeout returns the vendor's per-request timeout as a Duration.
func (v *VendorConfig) RequestTimeout() time.Duration {
	return time.Duration(v.Timeout) * time.Second
}
