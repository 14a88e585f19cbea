// Package experiment implements the Experiment Orchestration Engine:
// a stateful interpreter that executes a tree of sequencing actions
// (injection, timed and conditional waits, loops, phase markers)
// under external pause/resume/abort control while streaming progress
// events to observers.
//
// # Lifecycle
//
// The Engine owns an eight-state lifecycle:
//
//	Idle → Loaded → Running ⇄ Paused
//	Running/Paused → Aborting → Aborted
//	Running → Completed | Error
//
// Completed, Error and Aborted are terminal. The interpreter runs on
// one dedicated worker goroutine per run; at most one experiment runs
// at a time. The command path marks Aborting; the worker alone
// commits the terminal state, so the worker always wins that race.
//
// # Checkpoints
//
// Before every step and at bounded intervals inside long waits, the
// interpreter tests a combined stop-or-pause checkpoint: stop
// abandons immediately, pause blocks on a condition variable until
// resumed or stopped. Blocking weight waits accept the checkpoint as
// a hook, so a paused experiment suspends mid-wait.
//
// Physical-wait timeouts are soft: they end the wait, not the
// experiment. Retries are a property of the program (the author
// writes a Loop), never of the interpreter. On every exit path the
// worker restores the physical system to idle mode, so a failed run
// never leaves actuators mid-motion.
//
// # Collaborators
//
// The actuator link, the weight-feedback subsystem and the consumable
// ledger are injected as interfaces at construction, so the
// interpreter is testable against fakes without physical transport.
// Ledger failures are logged, never fatal.
//
// # Events
//
// See Pipeline for the bounded event fan-out and the capped rolling
// log. The deadlock-critical rule throughout: events and log lines
// are never emitted while the run-state mutex is held.
package experiment
