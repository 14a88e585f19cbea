package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
instrument:
  id: "bench-07"
  name: "Bench 7"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
weight:
  window_size: 8
  stable_threshold: 1.5
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Instrument.ID != "bench-07" {
		t.Errorf("Instrument.ID = %q, want %q", cfg.Instrument.ID, "bench-07")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.Weight.WindowSize != 8 {
		t.Errorf("Weight.WindowSize = %d, want 8", cfg.Weight.WindowSize)
	}

	// Values absent from the file keep their defaults.
	if cfg.Weight.TrendThreshold != 5.0 {
		t.Errorf("Weight.TrendThreshold = %v, want default 5.0", cfg.Weight.TrendThreshold)
	}
	if cfg.Experiment.CycleSeconds != 30 {
		t.Errorf("Experiment.CycleSeconds = %d, want default 30", cfg.Experiment.CycleSeconds)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
instrument:
  id: ""
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty instrument.id, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
instrument:
  id: "bench-07"
database:
  path: "/tmp/from-file.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("LIQUISENSE_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("LIQUISENSE_MQTT_HOST", "broker.lab.local")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.lab.local" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
}

func TestValidate_WeightBounds(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(*Config) {}, false},
		{"negative window", func(c *Config) { c.Weight.WindowSize = -1 }, true},
		{"negative stable threshold", func(c *Config) { c.Weight.StableThreshold = -0.1 }, true},
		{"margin exceeds capacity", func(c *Config) {
			c.Weight.MaxCapacity = 100
			c.Weight.OverflowMargin = 150
		}, true},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"negative cycle period", func(c *Config) { c.Experiment.CycleSeconds = -5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.PollInterval(); got != 500*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 500ms", got)
	}
	if got := cfg.CyclePeriod(); got != 30*time.Second {
		t.Errorf("CyclePeriod() = %v, want 30s", got)
	}
}
