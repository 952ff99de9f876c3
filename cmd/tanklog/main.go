// Tanklog Core - Water Tank Telemetry History
//
// This is the main entry point for the Tanklog Core application.
// Tanklog collects distance readings from ultrasonic tank sensors,
// normalises their often-unreliable timestamps, derives water level
// and volume from configured tank geometry, and keeps an idempotent
// append-only history queryable over HTTP and exportable as CSV.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/dmcgarry/tanklog-core/migrations"

	"github.com/dmcgarry/tanklog-core/internal/api"
	"github.com/dmcgarry/tanklog-core/internal/history"
	"github.com/dmcgarry/tanklog-core/internal/infrastructure/config"
	"github.com/dmcgarry/tanklog-core/internal/infrastructure/database"
	"github.com/dmcgarry/tanklog-core/internal/infrastructure/influxdb"
	"github.com/dmcgarry/tanklog-core/internal/infrastructure/logging"
	"github.com/dmcgarry/tanklog-core/internal/infrastructure/mqtt"
	"github.com/dmcgarry/tanklog-core/internal/ingest"
	"github.com/dmcgarry/tanklog-core/internal/store"
	"github.com/dmcgarry/tanklog-core/internal/tank"
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

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
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
	log.Info("starting Tanklog Core",
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

	// History store and tank registry share the SQLite connection
	historyStore := store.NewSQLiteStore(db.DB)
	tankRepo := tank.NewSQLiteRepository(db.DB)

	// History engines
	syncEngine := history.NewSyncEngine(historyStore, cfg.RepairSpacing())
	syncEngine.SetLogger(log)
	queryEngine := history.NewQueryEngine(historyStore)
	queryEngine.SetLogger(log)
	log.Info("history engines initialised", "repair_spacing", cfg.RepairSpacing())

	// Connect to MQTT broker (optional - HTTP sync works without it)
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
	} else {
		log.Info("MQTT disabled, collectors must sync over HTTP")
	}

	// Connect to InfluxDB (optional telemetry mirror)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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

		// Mirror freshly synced entries for dashboarding. SQLite stays
		// authoritative; mirror failures never fail a sync.
		syncEngine.SetMirror(influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the MQTT ingest bridge (requires MQTT)
	var bridge *ingest.Bridge
	if mqttClient != nil {
		bridge = ingest.NewBridge(mqttClient, syncEngine, tankRepo, log)
		if startErr := bridge.Start(); startErr != nil {
			return fmt.Errorf("starting ingest bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping ingest bridge")
			if stopErr := bridge.Stop(); stopErr != nil {
				log.Error("error stopping ingest bridge", "error", stopErr)
			}
		}()
		log.Info("ingest bridge started")
	}

	// Start HTTP API server
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Sync:    syncEngine,
		Query:   queryEngine,
		Tanks:   tankRepo,
		DB:      db,
		MQTT:    mqttClient,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
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
	// 2. Ingest bridge (if MQTT enabled)
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("Tanklog Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TANKLOG_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TANKLOG_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
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
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
