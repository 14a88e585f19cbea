package experiment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/liquisense/liquisense-core/internal/weight"
)

// State identifies the experiment lifecycle position.
type State string

// Lifecycle states. Completed, Error and Aborted are terminal: no
// further progress occurs without a new Load/Start.
const (
	StateIdle      State = "idle"
	StateLoaded    State = "loaded"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateAborting  State = "aborting"
	StateCompleted State = "completed"
	StateError     State = "error"
	StateAborted   State = "aborted"
)

// isTerminal reports whether s is a terminal state.
func (s State) isTerminal() bool {
	return s == StateCompleted || s == StateError || s == StateAborted
}

// Logger defines the logging interface used by the Engine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// WeightFeedback is the slice of the weight subsystem the interpreter
// blocks on.
type WeightFeedback interface {
	Status() weight.Status
	WaitForEmpty(ctx context.Context, params weight.EmptyWaitParams) (float64, error)
	DistanceForMass(realMass float64) float64
}

// CommandSender dispatches a raw command string to the actuator link.
type CommandSender interface {
	SendCommand(command string) error
}

// ConsumableLedger records actuator wear. Failures are logged, never
// fatal to the experiment.
type ConsumableLedger interface {
	AddRuntime(ctx context.Context, channelID string, seconds float64) error
	AddConsumption(ctx context.Context, channelIndex int, volumeML float64) error
}

// Config holds engine tuning.
type Config struct {
	// CyclePeriod renders heater/sensor cycle counts as wall-clock
	// time; the physical cycle clock lives in firmware this core
	// never sees.
	CyclePeriod time.Duration

	// PollInterval is the checkpoint cadence inside long waits.
	PollInterval time.Duration

	// EventBuffer is the per-observer event queue depth.
	EventBuffer int
}

// runState is the interpreter-owned mutable state of a run. Reset on
// StartExperiment, mutated only by the worker goroutine, read by any
// goroutine under the engine mutex.
type runState struct {
	stepIndex     int
	totalSteps    int
	stepName      string
	loopIteration int
	loopTotal     int
	startedAt     time.Time
	lastError     string
}

// StatusReport is a point-in-time snapshot of the engine for status
// polling.
type StatusReport struct {
	State         State     `json:"state"`
	ProgramID     string    `json:"program_id,omitempty"`
	ProgramName   string    `json:"program_name,omitempty"`
	StepIndex     int       `json:"step_index"`
	TotalSteps    int       `json:"total_steps"`
	StepName      string    `json:"step_name,omitempty"`
	LoopIteration int       `json:"loop_iteration,omitempty"`
	LoopTotal     int       `json:"loop_total,omitempty"`
	StartedAt     time.Time `json:"started_at,omitzero"`
	Progress      float64   `json:"progress"`
	LastError     string    `json:"last_error,omitempty"`
	Log           []string  `json:"log,omitempty"`
}

// Engine governs the lifecycle of a loaded program and the legality
// of control commands. At most one experiment runs at a time; the
// interpreter executes on one dedicated worker goroutine.
//
// Locking discipline (deadlock-critical):
//   - mu guards lifecycle state and run state. Held only for field
//     reads/writes, never across a blocking wait, physical I/O, or
//     event emission. All transitions release mu before emitting.
//   - pauseMu + pauseCond signal pause/resume, deliberately separate
//     so a pause check never contends with a status read.
//   - The pipeline has its own lock; see Pipeline.
type Engine struct {
	mu      sync.Mutex
	state   State
	program *Program
	run     runState

	// stopRequested is observed at interpreter checkpoints. The
	// worker, not the command path, commits the terminal state.
	stopRequested bool
	cancelRun     context.CancelFunc

	pauseMu   sync.Mutex
	pauseCond *sync.Cond
	paused    bool

	pipeline    *Pipeline
	feedback    WeightFeedback
	actuator    CommandSender
	consumables ConsumableLedger
	logger      Logger

	cyclePeriod  time.Duration
	pollInterval time.Duration
}

// NewEngine creates an idle engine.
//
// Parameters:
//   - feedback: Weight-feedback subsystem for injection/drain waits
//   - actuator: Actuator link (may be nil; commands are then dropped with a log)
//   - consumables: Consumable ledger (may be nil; usage is then not recorded)
//   - cfg: Engine tuning
//   - logger: Logger instance (nil falls back to a no-op logger)
func NewEngine(feedback WeightFeedback, actuator CommandSender, consumables ConsumableLedger, cfg Config, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.CyclePeriod <= 0 {
		cfg.CyclePeriod = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}

	e := &Engine{
		state:        StateIdle,
		pipeline:     NewPipeline(cfg.EventBuffer),
		feedback:     feedback,
		actuator:     actuator,
		consumables:  consumables,
		logger:       logger,
		cyclePeriod:  cfg.CyclePeriod,
		pollInterval: cfg.PollInterval,
	}
	e.pauseCond = sync.NewCond(&e.pauseMu)
	return e
}

// Pipeline exposes the event pipeline for observers.
func (e *Engine) Pipeline() *Pipeline {
	return e.pipeline
}

// ─── Control commands ───

// LoadProgram validates and installs a program.
//
// Legal from Idle and from terminal states (which implicitly unload
// first). Rejected from Running/Paused/Aborting with
// ErrExperimentActive. On validation failure the program is not
// retained and the engine returns to Idle.
func (e *Engine) LoadProgram(program *Program) error {
	e.mu.Lock()
	switch e.state {
	case StateRunning, StatePaused, StateAborting:
		e.mu.Unlock()
		return ErrExperimentActive
	default:
	}

	if err := program.Validate(); err != nil {
		e.program = nil
		e.state = StateIdle
		e.mu.Unlock()
		return err
	}

	e.program = program
	e.state = StateLoaded
	e.run = runState{totalSteps: len(program.Steps)}
	e.mu.Unlock()

	e.logger.Info("program loaded", "program_id", program.ID, "steps", len(program.Steps))
	e.pipeline.Publish(EventProgramLoaded,
		fmt.Sprintf("program %s loaded (%d steps)", program.Name, len(program.Steps)), "",
		map[string]any{"program_id": program.ID})
	return nil
}

// Start begins executing the loaded program on a worker goroutine.
//
// Legal only from Loaded. From any other state it is an idempotent
// no-op that returns the current status without starting a second
// worker.
func (e *Engine) Start() StatusReport {
	e.mu.Lock()
	if e.state != StateLoaded {
		report := e.statusLocked()
		e.mu.Unlock()
		return report
	}

	program := e.program
	e.state = StateRunning
	e.stopRequested = false
	e.run = runState{
		totalSteps: len(program.Steps),
		startedAt:  time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancelRun = cancel
	report := e.statusLocked()
	e.mu.Unlock()

	e.pauseMu.Lock()
	e.paused = false
	e.pauseMu.Unlock()

	e.pipeline.ResetLog()
	e.logger.Info("experiment started", "program_id", program.ID)
	e.pipeline.Publish(EventExperimentStarted,
		fmt.Sprintf("experiment %s started", program.Name), "",
		map[string]any{"program_id": program.ID})

	go e.runWorker(ctx, program)
	return report
}

// Pause suspends the run at the worker's next checkpoint.
//
// Legal only from Running; otherwise a pass-through status report.
// Nothing is woken: the worker observes the pause flag on its own.
func (e *Engine) Pause() StatusReport {
	e.mu.Lock()
	if e.state != StateRunning {
		report := e.statusLocked()
		e.mu.Unlock()
		return report
	}
	e.state = StatePaused
	report := e.statusLocked()
	e.mu.Unlock()

	e.pauseMu.Lock()
	e.paused = true
	e.pauseMu.Unlock()

	e.logger.Info("experiment paused")
	e.pipeline.Publish(EventExperimentPaused, "experiment paused", report.StepName, nil)
	return report
}

// Resume wakes a paused run.
//
// Legal only from Paused; otherwise a pass-through status report.
func (e *Engine) Resume() StatusReport {
	e.mu.Lock()
	if e.state != StatePaused {
		report := e.statusLocked()
		e.mu.Unlock()
		return report
	}
	e.state = StateRunning
	report := e.statusLocked()
	e.mu.Unlock()

	e.pauseMu.Lock()
	e.paused = false
	e.pauseCond.Broadcast()
	e.pauseMu.Unlock()

	e.logger.Info("experiment resumed")
	e.pipeline.Publish(EventExperimentResumed, "experiment resumed", report.StepName, nil)
	return report
}

// Stop ends a run or unloads an inactive program.
//
// From Loaded and terminal states it unloads the program and returns
// to Idle (pure cleanup, no worker involved). From Running/Paused it
// sets the stop flag, wakes any paused wait, and transitions to
// Aborting; the worker commits the terminal state once it unwinds.
// The worker always wins that race: Aborting is only ever written by
// this command path and is never a terminal value.
func (e *Engine) Stop() StatusReport {
	e.mu.Lock()
	switch e.state {
	case StateLoaded, StateCompleted, StateError, StateAborted:
		e.program = nil
		e.state = StateIdle
		e.run = runState{}
		report := e.statusLocked()
		e.mu.Unlock()

		e.logger.Info("program unloaded")
		e.pipeline.Publish(EventExperimentStopped, "program unloaded", "", nil)
		return report

	case StateRunning, StatePaused, StateAborting:
		e.stopRequested = true
		e.state = StateAborting
		cancel := e.cancelRun
		report := e.statusLocked()
		e.mu.Unlock()

		e.pauseMu.Lock()
		e.paused = false
		e.pauseCond.Broadcast()
		e.pauseMu.Unlock()

		if cancel != nil {
			cancel()
		}
		e.logger.Info("stop requested")
		return report

	default: // Idle: pass-through status report.
		report := e.statusLocked()
		e.mu.Unlock()
		return report
	}
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() StatusReport {
	e.mu.Lock()
	report := e.statusLocked()
	e.mu.Unlock()

	report.Log = e.pipeline.LogLines()
	return report
}

// statusLocked builds a report. Caller holds e.mu. The rolling log is
// attached outside the lock; see the locking discipline note.
func (e *Engine) statusLocked() StatusReport {
	report := StatusReport{
		State:         e.state,
		StepIndex:     e.run.stepIndex,
		TotalSteps:    e.run.totalSteps,
		StepName:      e.run.stepName,
		LoopIteration: e.run.loopIteration,
		LoopTotal:     e.run.loopTotal,
		StartedAt:     e.run.startedAt,
		LastError:     e.run.lastError,
	}
	if e.program != nil {
		report.ProgramID = e.program.ID
		report.ProgramName = e.program.Name
	}
	if e.run.totalSteps > 0 {
		report.Progress = float64(e.run.stepIndex) / float64(e.run.totalSteps) * 100
	} else if e.state == StateCompleted {
		report.Progress = 100
	}
	return report
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
