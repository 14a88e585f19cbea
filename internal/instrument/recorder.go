package instrument

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/liquisense/liquisense-core/internal/experiment"
	"github.com/liquisense/liquisense-core/internal/infrastructure/influxdb"
	"github.com/liquisense/liquisense-core/internal/infrastructure/mqtt"
	"github.com/liquisense/liquisense-core/internal/weight"
)

// HistoryWriter records instrument history to the time-series store.
// Satisfied by *influxdb.Client. A nil HistoryWriter disables history.
type HistoryWriter interface {
	WriteWeightSample(instrumentID string, sample influxdb.WeightSample)
	WriteExperimentEvent(instrumentID, runID, eventType, message string)
}

// EventSource exposes the engine's event pipeline.
// Satisfied by *experiment.Pipeline.
type EventSource interface {
	Subscribe() (string, <-chan experiment.Event)
	Unsubscribe(id string)
}

// Recorder observes the engine event pipeline and fans events out to
// the broker and the history store. Each event is republished on
// liquisense/event/{type}; when history is enabled the event is also
// recorded tagged with a per-run ID minted at experiment start.
//
// Overflow alerts from the weight subsystem flow through HandleOverflow,
// which main wires into the controller's overflow callback.
type Recorder struct {
	broker       Publisher
	events       EventSource
	history      HistoryWriter
	instrumentID string
	qos          byte
	logger       Logger

	mu    sync.Mutex
	runID string
	subID string

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewRecorder creates a recorder. Call Start to begin observing.
//
// Parameters:
//   - broker: MQTT client for event republishing and alerts
//   - events: Engine event pipeline
//   - history: Optional InfluxDB recorder (nil disables history)
//   - instrumentID: Tag applied to recorded history points
//   - qos: QoS for republished events and alerts
//   - logger: Logger instance (nil falls back to a no-op logger)
func NewRecorder(broker Publisher, events EventSource, history HistoryWriter, instrumentID string, qos byte, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		broker:       broker,
		events:       events,
		history:      history,
		instrumentID: instrumentID,
		qos:          qos,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

// Start subscribes to the pipeline and launches the observer goroutine.
func (r *Recorder) Start() {
	id, ch := r.events.Subscribe()

	r.mu.Lock()
	r.subID = id
	r.mu.Unlock()

	r.wg.Add(1)
	go r.observe(ch)
}

// Stop unsubscribes and waits for the observer goroutine to drain.
// Safe to call more than once.
func (r *Recorder) Stop() {
	r.once.Do(func() {
		r.mu.Lock()
		id := r.subID
		r.mu.Unlock()

		if id != "" {
			r.events.Unsubscribe(id)
		}
		close(r.done)
		r.wg.Wait()
	})
}

// observe drains the event channel until it closes or Stop is called.
func (r *Recorder) observe(ch <-chan experiment.Event) {
	defer r.wg.Done()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			r.handleEvent(event)
		case <-r.done:
			return
		}
	}
}

// handleEvent republishes one event and records it to history.
func (r *Recorder) handleEvent(event experiment.Event) {
	r.trackRun(event.Type)

	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("Marshalling experiment event", "type", event.Type, "error", err)
		return
	}

	topic := mqtt.Topics{}.ExperimentEvent(string(event.Type))
	if err := r.broker.Publish(topic, payload, r.qos, false); err != nil {
		r.logger.Warn("Republishing experiment event", "type", event.Type, "error", err)
	}

	if r.history != nil {
		r.history.WriteExperimentEvent(r.instrumentID, r.currentRunID(), string(event.Type), event.Message)
	}
}

// trackRun mints a run ID at experiment start and drops it when the
// run reaches a terminal event. History points between the two carry
// the same ID so a run can be queried as a unit.
func (r *Recorder) trackRun(eventType experiment.EventType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch eventType {
	case experiment.EventExperimentStarted:
		r.runID = uuid.NewString()
	case experiment.EventExperimentCompleted,
		experiment.EventExperimentStopped,
		experiment.EventExperimentError:
		// Terminal events keep the ID for their own history point;
		// it is replaced on the next start.
	}
}

// currentRunID returns the active run ID, empty outside a run.
func (r *Recorder) currentRunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// overflowAlert is the JSON payload published on the overflow alert
// topic.
type overflowAlert struct {
	InstrumentID string  `json:"instrument_id"`
	Tared        float64 `json:"tared_g"`
	Raw          float64 `json:"raw"`
	Message      string  `json:"message"`
}

// HandleOverflow publishes an overflow alert. Wire it into the weight
// controller's overflow callback; the callback is edge-triggered so
// one alert is raised per overflow episode.
func (r *Recorder) HandleOverflow(status weight.Status) {
	r.logger.Warn("Vessel overflow warning", "tared_g", status.Tared, "raw", status.Raw)

	payload, err := json.Marshal(overflowAlert{
		InstrumentID: r.instrumentID,
		Tared:        status.Tared,
		Raw:          status.Raw,
		Message:      "vessel weight approaching capacity",
	})
	if err != nil {
		r.logger.Error("Marshalling overflow alert", "error", err)
		return
	}

	topic := mqtt.Topics{}.Alert("overflow")
	if err := r.broker.Publish(topic, payload, r.qos, false); err != nil {
		r.logger.Warn("Publishing overflow alert", "error", err)
	}
}
