package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for LiquiSense Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Instrument  InstrumentConfig  `yaml:"instrument"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Weight      WeightConfig      `yaml:"weight"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Experiment  ExperimentConfig  `yaml:"experiment"`
}

// InstrumentConfig identifies the physical instrument this core drives.
type InstrumentConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for the
// weight-sample and experiment-event history recorder.
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

// WeightConfig contains thresholds for the load-cell filter and the
// weight-feedback waits. Zero values fall back to the documented defaults
// so a partially-filled config section stays operable.
type WeightConfig struct {
	// WindowSize is the sliding-window length of the moving-average filter.
	WindowSize int `yaml:"window_size"`

	// StableThreshold is the standard-deviation bound (grams) under which
	// the signal is reported stable.
	StableThreshold float64 `yaml:"stable_threshold"`

	// TrendThreshold is the half-window mean delta (grams) beyond which a
	// rising or falling trend is reported.
	TrendThreshold float64 `yaml:"trend_threshold"`

	// MaxCapacity is the vessel capacity in grams.
	MaxCapacity float64 `yaml:"max_capacity"`

	// OverflowMargin is subtracted from MaxCapacity to form the overflow
	// warning level.
	OverflowMargin float64 `yaml:"overflow_margin"`

	// PollIntervalMS is the cadence of the blocking weight waits.
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

// CalibrationConfig locates the persisted calibration document.
type CalibrationConfig struct {
	// Path is the YAML key/value document holding calibration coefficients.
	// A missing file is not an error; defaults apply until first save.
	Path string `yaml:"path"`
}

// ExperimentConfig contains orchestration engine settings.
type ExperimentConfig struct {
	// CycleSeconds is the assumed heater/sensor cycle period used to
	// resolve cycle-count wait conditions.
	CycleSeconds int `yaml:"cycle_seconds"`

	// EventBuffer is the per-observer event queue capacity.
	EventBuffer int `yaml:"event_buffer"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LIQUISENSE_SECTION_KEY
// For example: LIQUISENSE_DATABASE_PATH, LIQUISENSE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			ID:   "liquisense-001",
			Name: "LiquiSense",
		},
		Database: DatabaseConfig{
			Path:        "./data/liquisense.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "liquisense-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Weight: WeightConfig{
			WindowSize:      10,
			StableThreshold: 2.0,
			TrendThreshold:  5.0,
			MaxCapacity:     500.0,
			OverflowMargin:  20.0,
			PollIntervalMS:  500,
		},
		Calibration: CalibrationConfig{
			Path: "./data/calibration.yaml",
		},
		Experiment: ExperimentConfig{
			CycleSeconds: 30,
			EventBuffer:  256,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LIQUISENSE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("LIQUISENSE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LIQUISENSE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LIQUISENSE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LIQUISENSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("LIQUISENSE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Calibration
	if v := os.Getenv("LIQUISENSE_CALIBRATION_PATH"); v != "" {
		cfg.Calibration.Path = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Instrument.ID == "" {
		errs = append(errs, "instrument.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Weight.WindowSize < 0 {
		errs = append(errs, "weight.window_size must not be negative")
	}
	if c.Weight.StableThreshold < 0 {
		errs = append(errs, "weight.stable_threshold must not be negative")
	}
	if c.Weight.MaxCapacity < 0 {
		errs = append(errs, "weight.max_capacity must not be negative")
	}
	if c.Weight.OverflowMargin < 0 {
		errs = append(errs, "weight.overflow_margin must not be negative")
	}
	if c.Weight.OverflowMargin > c.Weight.MaxCapacity && c.Weight.MaxCapacity > 0 {
		errs = append(errs, "weight.overflow_margin must not exceed weight.max_capacity")
	}

	if c.Experiment.CycleSeconds < 0 {
		errs = append(errs, "experiment.cycle_seconds must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PollInterval returns the weight wait poll cadence as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Weight.PollIntervalMS) * time.Millisecond
}

// CyclePeriod returns the heater/sensor cycle period as a Duration.
func (c *Config) CyclePeriod() time.Duration {
	return time.Duration(c.Experiment.CycleSeconds) * time.Second
}
