package instrument

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/liquisense/liquisense-core/internal/infrastructure/influxdb"
	"github.com/liquisense/liquisense-core/internal/infrastructure/mqtt"
	"github.com/liquisense/liquisense-core/internal/weight"
)

// historySampleEvery thins the load-cell stream before it reaches
// InfluxDB. At the firmware's 10 Hz sample rate this records roughly
// one point per second.
const historySampleEvery = 10

// WeightIngestor receives raw load-cell readings.
// Satisfied by *weight.Controller.
type WeightIngestor interface {
	Ingest(raw float64) weight.Status
}

// loadCellSample is the JSON payload published by the firmware link.
type loadCellSample struct {
	Raw float64 `json:"raw"`
}

// SampleFeed consumes raw load-cell samples from the firmware and
// drives the weight controller. Each sample produces a filtered
// status which is republished retained on the weight status topic;
// a thinned stream is recorded to InfluxDB when history is enabled.
//
// Thread Safety: the MQTT client invokes the handler from its own
// goroutines; internal state is mutex-guarded.
type SampleFeed struct {
	broker       Broker
	ingestor     WeightIngestor
	history      HistoryWriter
	instrumentID string
	qos          byte
	logger       Logger

	mu          sync.Mutex
	sampleCount uint64
	started     bool
}

// NewSampleFeed creates a feed for the load-cell sample topic.
//
// Parameters:
//   - broker: MQTT client for subscribe and status republish
//   - ingestor: Weight controller receiving raw samples
//   - history: Optional InfluxDB recorder (nil disables history)
//   - instrumentID: Tag applied to recorded history points
//   - qos: QoS for the subscription and status publishes
//   - logger: Logger instance (nil falls back to a no-op logger)
func NewSampleFeed(broker Broker, ingestor WeightIngestor, history HistoryWriter, instrumentID string, qos byte, logger Logger) *SampleFeed {
	if logger == nil {
		logger = noopLogger{}
	}
	return &SampleFeed{
		broker:       broker,
		ingestor:     ingestor,
		history:      history,
		instrumentID: instrumentID,
		qos:          qos,
		logger:       logger,
	}
}

// Start subscribes to the load-cell sample topic.
//
// Returns:
//   - error: If the subscription fails
func (f *SampleFeed) Start() error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return nil
	}
	f.started = true
	f.mu.Unlock()

	return f.broker.Subscribe(mqtt.Topics{}.LoadCellSample(), f.qos, f.handleSample)
}

// Stop removes the subscription. Samples in flight may still be
// delivered to the handler.
func (f *SampleFeed) Stop() error {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return nil
	}
	f.started = false
	f.mu.Unlock()

	return f.broker.Unsubscribe(mqtt.Topics{}.LoadCellSample())
}

// handleSample parses one raw sample, feeds the controller and
// republishes the resulting status.
func (f *SampleFeed) handleSample(_ string, payload []byte) error {
	raw, err := parseSample(payload)
	if err != nil {
		f.logger.Warn("Dropping malformed load-cell sample", "payload", string(payload), "error", err)
		return nil
	}

	status := f.ingestor.Ingest(raw)
	f.publishStatus(status)
	f.recordHistory(status)
	return nil
}

// parseSample accepts either the JSON sample document or a bare
// numeric payload, which older firmware builds still emit.
func parseSample(payload []byte) (float64, error) {
	var sample loadCellSample
	if err := json.Unmarshal(payload, &sample); err == nil {
		return sample.Raw, nil
	}

	raw, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return 0, err
	}
	return raw, nil
}

// publishStatus republishes the filtered status retained so late
// subscribers immediately see the current weight.
func (f *SampleFeed) publishStatus(status weight.Status) {
	payload, err := json.Marshal(status)
	if err != nil {
		f.logger.Error("Marshalling weight status", "error", err)
		return
	}
	if err := f.broker.Publish(mqtt.Topics{}.WeightStatus(), payload, f.qos, true); err != nil {
		f.logger.Warn("Publishing weight status", "error", err)
	}
}

// recordHistory writes a thinned sample stream to InfluxDB.
func (f *SampleFeed) recordHistory(status weight.Status) {
	if f.history == nil {
		return
	}

	f.mu.Lock()
	f.sampleCount++
	record := f.sampleCount%historySampleEvery == 0
	f.mu.Unlock()

	if !record {
		return
	}

	f.history.WriteWeightSample(f.instrumentID, influxdb.WeightSample{
		Raw:      status.Raw,
		Filtered: status.Filtered,
		Tared:    status.Tared,
		StdDev:   status.StdDev,
		Stable:   status.Stable,
		Overflow: status.Overflow,
	})
}
