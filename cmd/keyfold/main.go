// Keyfold Core - Property Access Platform
//
// This is the main entry point for the Keyfold Core application. Keyfold
// manages smart locks across property portfolios:
//   - Hierarchical access control (portfolio -> property -> unit -> device)
//   - Multi-vendor device orchestration behind one API
//   - Complete audit trail of every access decision
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/keyfold/keyfold-core/migrations"

	"github.com/keyfold/keyfold-core/internal/adapters"
	"github.com/keyfold/keyfold-core/internal/adapters/restlock"
	"github.com/keyfold/keyfold-core/internal/api"
	"github.com/keyfold/keyfold-core/internal/audit"
	"github.com/keyfold/keyfold-core/internal/authz"
	"github.com/keyfold/keyfold-core/internal/device"
	"github.com/keyfold/keyfold-core/internal/events"
	"github.com/keyfold/keyfold-core/internal/hierarchy"
	"github.com/keyfold/keyfold-core/internal/infrastructure/config"
	"github.com/keyfold/keyfold-core/internal/infrastructure/database"
	"github.com/keyfold/keyfold-core/internal/infrastructure/logging"
	"github.com/keyfold/keyfold-core/internal/infrastructure/mqtt"
	"github.com/keyfold/keyfold-core/internal/infrastructure/telemetry"
	"github.com/keyfold/keyfold-core/internal/orchestrator"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// revokeTimeout bounds credential revocation during shutdown.
const revokeTimeout = 10 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Keyfold Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	hierarchyRepo := hierarchy.NewSQLiteRepository(db.DB)
	placements := hierarchy.NewSQLitePlacementRepository(db.DB)
	users := authz.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	historyRepo := device.NewSQLiteHistoryRepository(db.DB)

	// Background access history retention sweep
	if cfg.History.RetentionDays > 0 {
		pruner := device.NewHistoryPruner(historyRepo, cfg.History.Retention(), cfg.History.SweepEvery(), log)
		go pruner.Run(ctx)
		log.Info("access history retention enabled",
			"retention_days", cfg.History.RetentionDays,
			"sweep_interval_hours", cfg.History.SweepInterval,
		)
	} else {
		log.Info("access history retention disabled")
	}

	// Async audit trail. Closing drains the queue.
	auditLogger := audit.NewLogger(auditRepo, cfg.Audit.QueueSize, log)
	defer func() {
		log.Info("draining audit queue")
		auditLogger.Close()
	}()

	// Vendor adapters
	adapterList, err := buildAdapters(cfg, log)
	if err != nil {
		return fmt.Errorf("building vendor adapters: %w", err)
	}
	log.Info("vendor adapters configured", "count", len(adapterList))

	// Orchestrator fans requests out across vendors
	orch := orchestrator.New(adapterList, placements, historyRepo, log)
	defer func() {
		revokeCtx, revokeCancel := context.WithTimeout(context.Background(), revokeTimeout)
		defer revokeCancel()
		log.Info("revoking vendor credentials")
		orch.RevokeAll(revokeCtx)
	}()

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		orch.SetEventPublisher(events.NewPublisher(mqttClient, byte(cfg.MQTT.QoS), log))
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB telemetry sink (optional)
	var influxClient *telemetry.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = telemetry.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		orch.SetTelemetry(influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Authorisation resolver; every decision lands in the audit trail
	resolver := authz.NewResolver(hierarchyRepo, auditLogger, log)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:       cfg.API,
		Security:     cfg.Security,
		Logger:       log,
		Orchestrator: orch,
		Resolver:     resolver,
		Users:        users,
		Hierarchy:    hierarchyRepo,
		Placements:   placements,
		AuditRepo:    auditRepo,
		AuditLog:     auditLogger,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Credential revocation
	// 5. Audit queue drain
	// 6. Database

	log.Info("Keyfold Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses KEYFOLD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("KEYFOLD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildAdapters constructs one vendor adapter per configured vendor.
//
// Parameters:
//   - cfg: Application configuration
//   - log: Logger instance
//
// Returns:
//   - []adapters.Adapter: One adapter per vendors[] entry
//   - error: If a vendor names an unknown driver or fails to initialise
func buildAdapters(cfg *config.Config, log *logging.Logger) ([]adapters.Adapter, error) {
	adapterList := make([]adapters.Adapter, 0, len(cfg.Vendors))
	for _, vendor := range cfg.Vendors {
		switch vendor.Driver {
		case "restlock":
			adapter, err := restlock.New(restlock.Config{
				Name:       vendor.Name,
				BaseURL:    vendor.BaseURL,
				APIKey:     vendor.APIKey,
				MinSpacing: time.Duration(vendor.MinRequestSpacing) * time.Millisecond,
				MaxRetries: vendor.Retry.MaxAttempts,
				BaseDelay:  time.Duration(vendor.Retry.BaseDelay) * time.Millisecond,
				Timeout:    time.Duration(vendor.Timeout) * time.Second,
			}, log)
			if err != nil {
				return nil, fmt.Errorf("vendor %s: %w", vendor.Name, err)
			}
			adapterList = append(adapterList, adapter)
			log.Info("vendor adapter created", "vendor", vendor.Name, "driver", vendor.Driver)

		default:
			return nil, fmt.Errorf("vendor %s: unrecognised driver %q", vendor.Name, vendor.Driver)
		}
	}
	return adapterList, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *telemetry.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT (if enabled)
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
