package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WeightSample is a single load cell reading after filtering.
// Values are in grams unless noted otherwise.
type WeightSample struct {
	Raw      float64
	Filtered float64
	Tared    float64
	StdDev   float64
	Stable   bool
	Overflow bool
}

// WriteWeightSample writes a filtered load cell reading to InfluxDB.
//
// This is the primary method for recording weight telemetry.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - instrumentID: Unique identifier for the instrument (e.g., "liquisense-001")
//   - sample: The filtered reading to record
//
// Example:
//
//	client.WriteWeightSample("liquisense-001", influxdb.WeightSample{
//	    Raw: 231.4, Filtered: 231.1, Tared: 31.1, StdDev: 0.8, Stable: true,
//	})
func (c *Client) WriteWeightSample(instrumentID string, sample WeightSample) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"weight",
		map[string]string{
			"instrument_id": instrumentID,
		},
		map[string]interface{}{
			"raw_g":      sample.Raw,
			"filtered_g": sample.Filtered,
			"tared_g":    sample.Tared,
			"stddev_g":   sample.StdDev,
			"stable":     sample.Stable,
			"overflow":   sample.Overflow,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteExperimentEvent writes an experiment lifecycle event.
//
// Used for building a queryable history of runs: when each step
// started and finished, pauses, aborts, and errors.
//
// Parameters:
//   - instrumentID: Instrument identifier
//   - runID: Experiment run identifier
//   - eventType: Event type (e.g., "step_started", "run_completed")
//   - message: Human-readable event detail
func (c *Client) WriteExperimentEvent(instrumentID, runID, eventType, message string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"experiment_events",
		map[string]string{
			"instrument_id": instrumentID,
			"run_id":        runID,
			"event_type":    eventType,
		},
		map[string]interface{}{
			"message": message,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConsumableMetric writes an actuator channel usage measurement.
//
// Used for tracking cumulative pump runtime and dispensed volume
// alongside the authoritative SQLite ledger.
//
// Parameters:
//   - instrumentID: Instrument identifier
//   - channelID: Actuator channel identifier (e.g., "pump-3")
//   - metricName: Usage metric (e.g., "runtime_seconds", "volume_ml")
//   - value: The metric value
func (c *Client) WriteConsumableMetric(instrumentID, channelID, metricName string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"consumables",
		map[string]string{
			"instrument_id": instrumentID,
			"channel_id":    channelID,
			"metric":        metricName,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., replayed samples).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
