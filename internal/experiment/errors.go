package experiment

import "errors"

// Sentinel errors for engine operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, experiment.ErrExperimentActive) {
//	    // Reject the load; a run is in progress
//	}
var (
	// ErrInvalidProgram indicates the program failed structural
	// validation. The program is not retained and the engine returns
	// to Idle.
	ErrInvalidProgram = errors.New("experiment: invalid program")

	// ErrExperimentActive indicates a load was attempted while a run
	// is in progress (Running or Paused).
	ErrExperimentActive = errors.New("experiment: experiment active")

	// errStopRequested unwinds the interpreter when a stop arrives.
	// It never escapes the worker; the terminal state becomes Aborted.
	errStopRequested = errors.New("experiment: stop requested")
)
