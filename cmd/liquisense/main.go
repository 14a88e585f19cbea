// LiquiSense Core - Laboratory Instrument Automation
//
// This is the main entry point for the LiquiSense Core application.
// LiquiSense Core drives a liquid-handling and gas-sensing instrument:
//   - Experiment orchestration (scripted inject/drain/acquire programs)
//   - Weight-feedback control from a load cell under the vessel
//   - Calibration, consumable tracking and history recording
//
// The physical instrument is reached through a serial-to-MQTT firmware
// link; this process never touches the serial port itself.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/liquisense/liquisense-core/migrations"

	"github.com/liquisense/liquisense-core/internal/consumable"
	"github.com/liquisense/liquisense-core/internal/experiment"
	"github.com/liquisense/liquisense-core/internal/infrastructure/config"
	"github.com/liquisense/liquisense-core/internal/infrastructure/database"
	"github.com/liquisense/liquisense-core/internal/infrastructure/influxdb"
	"github.com/liquisense/liquisense-core/internal/infrastructure/logging"
	"github.com/liquisense/liquisense-core/internal/infrastructure/mqtt"
	"github.com/liquisense/liquisense-core/internal/instrument"
	"github.com/liquisense/liquisense-core/internal/weight"
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
	log.Info("starting LiquiSense Core",
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

	// Consumable ledger (pump runtime, liquid volumes)
	ledger := consumable.NewSQLiteLedger(db.DB)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
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

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional history store)
	var influxClient *influxdb.Client
	var history instrument.HistoryWriter
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
		history = influxClient
	} else {
		log.Info("InfluxDB disabled, history recording off")
	}

	qos := byte(cfg.MQTT.QoS)

	// Actuator link: the single path for command strings to firmware
	link := instrument.NewActuatorLink(mqttClient, qos, log)

	// Weight-feedback subsystem
	store := weight.NewStore(cfg.Calibration.Path)
	controller, err := weight.NewController(weight.Config{
		WindowSize:      cfg.Weight.WindowSize,
		StableThreshold: cfg.Weight.StableThreshold,
		TrendThreshold:  cfg.Weight.TrendThreshold,
		MaxCapacity:     cfg.Weight.MaxCapacity,
		OverflowMargin:  cfg.Weight.OverflowMargin,
		PollInterval:    cfg.PollInterval(),
	}, link, store, log)
	if err != nil {
		return fmt.Errorf("creating weight controller: %w", err)
	}
	log.Info("weight controller initialised",
		"window_size", cfg.Weight.WindowSize,
		"max_capacity_g", cfg.Weight.MaxCapacity,
	)

	// Experiment orchestration engine
	engine := experiment.NewEngine(controller, link, ledger, experiment.Config{
		CyclePeriod:  cfg.CyclePeriod(),
		PollInterval: cfg.PollInterval(),
		EventBuffer:  cfg.Experiment.EventBuffer,
	}, log)
	log.Info("experiment engine initialised", "cycle_period", cfg.CyclePeriod())

	// Event recorder: republish pipeline events, record history, raise alerts
	recorder := instrument.NewRecorder(mqttClient, engine.Pipeline(), history, cfg.Instrument.ID, qos, log)
	recorder.Start()
	defer func() {
		log.Info("stopping event recorder")
		recorder.Stop()
	}()
	controller.SetOnOverflow(recorder.HandleOverflow)

	// Load-cell sample feed
	feed := instrument.NewSampleFeed(mqttClient, controller, history, cfg.Instrument.ID, qos, log)
	if err := feed.Start(); err != nil {
		return fmt.Errorf("starting sample feed: %w", err)
	}
	defer func() {
		log.Info("stopping sample feed")
		if stopErr := feed.Stop(); stopErr != nil {
			log.Error("error stopping sample feed", "error", stopErr)
		}
	}()
	log.Info("load-cell sample feed started")

	// Control surface
	control := instrument.NewControlAdapter(mqttClient, engine, controller, qos, log)
	if err := control.Start(); err != nil {
		return fmt.Errorf("starting control adapter: %w", err)
	}
	defer func() {
		log.Info("stopping control adapter")
		if stopErr := control.Stop(); stopErr != nil {
			log.Error("error stopping control adapter", "error", stopErr)
		}
	}()
	log.Info("control adapter started")

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Abort any running experiment before tearing the stack down; the
	// engine restores the instrument to idle mode on the way out.
	if report := engine.Stop(); report.State != experiment.StateIdle {
		log.Info("experiment stopped for shutdown", "state", report.State)
	}

	log.Info("LiquiSense Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LIQUISENSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LIQUISENSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
