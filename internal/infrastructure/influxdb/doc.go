// Package influxdb provides InfluxDB connectivity for LiquiSense Core.
//
// It wraps the official influxdb-client-go v2 library with LiquiSense-specific
// patterns for connection management, sample writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Filtered load cell readings (weight history)
//   - Experiment lifecycle events (run and step history)
//   - Consumable usage metrics (pump runtime, dispensed volume)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "liquisense",
//	    Bucket: "instrument",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteWeightSample("liquisense-001", influxdb.WeightSample{Raw: 231.4})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency weight telemetry.
package influxdb
