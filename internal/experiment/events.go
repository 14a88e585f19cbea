package experiment

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType tags a pipeline event.
type EventType string

// Event types emitted by the engine and interpreter.
const (
	EventProgramLoaded       EventType = "program_loaded"
	EventExperimentStarted   EventType = "experiment_started"
	EventExperimentPaused    EventType = "experiment_paused"
	EventExperimentResumed   EventType = "experiment_resumed"
	EventExperimentStopped   EventType = "experiment_stopped"
	EventExperimentCompleted EventType = "experiment_completed"
	EventExperimentError     EventType = "experiment_error"
	EventStepStarted         EventType = "step_started"
	EventStepCompleted       EventType = "step_completed"
	EventLoopIteration       EventType = "loop_iteration"
	EventPhaseStarted        EventType = "phase_started"
	EventPhaseEnded          EventType = "phase_ended"
)

// Event is one discrete record of interpreter activity.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message"`
	StepName  string         `json:"step_name,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Pipeline capacity constants.
const (
	// defaultObserverBuffer is the per-observer event queue depth.
	defaultObserverBuffer = 256

	// logCapacity caps the rolling textual log, FIFO eviction.
	logCapacity = 100
)

// Pipeline converts interpreter activity into discrete events for
// zero or more live observers, plus a capped rolling textual log for
// synchronous status polling.
//
// Each observer owns a bounded queue; a slow observer loses its
// oldest events rather than blocking the producer. When no observers
// are attached, publishing skips the queues entirely and only the
// rolling log records the event. Observers should drain with a bounded wait
// (select with a timeout) so they can notice cancellation.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Pipeline struct {
	mu        sync.Mutex
	observers map[string]chan Event
	buffer    int
	log       []string
}

// NewPipeline creates a Pipeline with the given per-observer queue
// depth (zero falls back to the default).
func NewPipeline(buffer int) *Pipeline {
	if buffer <= 0 {
		buffer = defaultObserverBuffer
	}
	return &Pipeline{
		observers: make(map[string]chan Event),
		buffer:    buffer,
	}
}

// Subscribe attaches an observer and returns its identifier and
// event channel. The caller must Unsubscribe when done.
func (p *Pipeline) Subscribe() (string, <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, p.buffer)
	p.observers[id] = ch
	return id, ch
}

// Unsubscribe detaches an observer and closes its channel.
func (p *Pipeline) Unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ch, ok := p.observers[id]; ok {
		delete(p.observers, id)
		close(ch)
	}
}

// ObserverCount returns the number of attached observers.
func (p *Pipeline) ObserverCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.observers)
}

// Publish records the event in the rolling log and fans it out to
// every observer. A full observer queue drops its oldest event to
// make room.
func (p *Pipeline) Publish(eventType EventType, message, stepName string, details map[string]any) Event {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Message:   message,
		StepName:  stepName,
		Details:   details,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.appendLog(fmt.Sprintf("[%s] %s: %s",
		event.Timestamp.Format(time.RFC3339), eventType, message))

	if len(p.observers) == 0 {
		return event
	}

	for _, ch := range p.observers {
		select {
		case ch <- event:
		default:
			// Queue full: evict the oldest, then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
	return event
}

// Log appends a line to the rolling log without emitting an event.
func (p *Pipeline) Log(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appendLog(fmt.Sprintf("[%s] %s", time.Now().Format(time.RFC3339), message))
}

// LogLines returns a copy of the rolling log, oldest first.
func (p *Pipeline) LogLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.log))
	copy(out, p.log)
	return out
}

// ResetLog clears the rolling log. Called when a new run starts.
func (p *Pipeline) ResetLog() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = nil
}

// appendLog evicts the oldest line once the cap is reached. Caller
// holds p.mu.
func (p *Pipeline) appendLog(line string) {
	if len(p.log) == logCapacity {
		p.log = p.log[1:]
	}
	p.log = append(p.log, line)
}
