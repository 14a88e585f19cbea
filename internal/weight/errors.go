package weight

import "errors"

// Sentinel errors for weight-feedback operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, weight.ErrWaitTimeout) {
//	    // Non-fatal: log and continue with the next step
//	}
var (
	// ErrWaitTimeout indicates a blocking wait ended before its
	// condition was met. The learned baseline is left unchanged.
	ErrWaitTimeout = errors.New("weight: wait timed out")

	// ErrInvalidReference indicates the operator supplied a
	// non-positive reference mass during calibration.
	ErrInvalidReference = errors.New("weight: reference weight must be positive")

	// ErrNoActuator indicates a calibration step needed the actuator
	// link but none was attached.
	ErrNoActuator = errors.New("weight: actuator link not available")
)
