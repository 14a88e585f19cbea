package instrument

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/liquisense/liquisense-core/internal/experiment"
	"github.com/liquisense/liquisense-core/internal/infrastructure/mqtt"
	"github.com/liquisense/liquisense-core/internal/weight"
)

func newTestRecorder(t *testing.T) (*Recorder, *experiment.Pipeline, *mockBroker, *mockHistory) {
	t.Helper()

	pipeline := experiment.NewPipeline(16)
	broker := newMockBroker()
	history := &mockHistory{}
	recorder := NewRecorder(broker, pipeline, history, "liquisense-test", 0, nil)
	recorder.Start()
	t.Cleanup(recorder.Stop)
	return recorder, pipeline, broker, history
}

// waitForEvents polls until the history store has seen n events.
func waitForEvents(t *testing.T, history *mockHistory, n int) []historyEvent {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events := history.eventList()
		if len(events) >= n {
			return events
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d history events, have %d", n, len(history.eventList()))
	return nil
}

func TestRecorder_RepublishesEvents(t *testing.T) {
	_, pipeline, broker, history := newTestRecorder(t)

	pipeline.Publish(experiment.EventStepStarted, "Step drain started", "drain", nil)
	waitForEvents(t, history, 1)

	topic := mqtt.Topics{}.ExperimentEvent(string(experiment.EventStepStarted))
	msgs := broker.messages(topic)
	if len(msgs) != 1 {
		t.Fatalf("published %d messages on %s, want 1", len(msgs), topic)
	}

	var event experiment.Event
	if err := json.Unmarshal(msgs[0].payload, &event); err != nil {
		t.Fatalf("unmarshalling event: %v", err)
	}
	if event.Type != experiment.EventStepStarted || event.StepName != "drain" {
		t.Errorf("event = %+v, want step_started on drain", event)
	}
}

func TestRecorder_RunIDSpansARun(t *testing.T) {
	_, pipeline, _, history := newTestRecorder(t)

	pipeline.Publish(experiment.EventProgramLoaded, "Program loaded", "", nil)
	pipeline.Publish(experiment.EventExperimentStarted, "Experiment started", "", nil)
	pipeline.Publish(experiment.EventStepStarted, "Step started", "inject", nil)
	pipeline.Publish(experiment.EventExperimentCompleted, "Experiment completed", "", nil)

	events := waitForEvents(t, history, 4)

	if events[0].runID != "" {
		t.Errorf("pre-run event carries run ID %q, want empty", events[0].runID)
	}

	runID := events[1].runID
	if runID == "" {
		t.Fatal("experiment_started did not mint a run ID")
	}
	for _, event := range events[2:] {
		if event.runID != runID {
			t.Errorf("event %s run ID = %q, want %q", event.eventType, event.runID, runID)
		}
	}

	// A new run gets a fresh ID.
	pipeline.Publish(experiment.EventExperimentStarted, "Experiment started", "", nil)
	events = waitForEvents(t, history, 5)
	if events[4].runID == runID {
		t.Error("second run reused the first run's ID")
	}
}

func TestRecorder_StopIsIdempotent(t *testing.T) {
	recorder, pipeline, _, history := newTestRecorder(t)

	pipeline.Publish(experiment.EventStepStarted, "Step started", "s", nil)
	waitForEvents(t, history, 1)

	recorder.Stop()
	recorder.Stop()

	pipeline.Publish(experiment.EventStepStarted, "After stop", "s", nil)
	time.Sleep(10 * time.Millisecond)
	if got := len(history.eventList()); got != 1 {
		t.Errorf("recorded %d events after stop, want 1", got)
	}
}

func TestRecorder_HandleOverflow(t *testing.T) {
	recorder, _, broker, _ := newTestRecorder(t)

	recorder.HandleOverflow(weight.Status{Tared: 485.0, Raw: 12000, Overflow: true})

	msgs := broker.messages(mqtt.Topics{}.Alert("overflow"))
	if len(msgs) != 1 {
		t.Fatalf("published %d alerts, want 1", len(msgs))
	}

	var alert overflowAlert
	if err := json.Unmarshal(msgs[0].payload, &alert); err != nil {
		t.Fatalf("unmarshalling alert: %v", err)
	}
	if alert.Tared != 485.0 || alert.InstrumentID != "liquisense-test" {
		t.Errorf("alert = %+v, want tared 485.0 on liquisense-test", alert)
	}
}
