// Package weight implements the Weight-Feedback Control Subsystem.
//
// It turns noisy load cell samples into calibrated, debounced signals
// the experiment interpreter uses to decide when physical operations
// (injection-complete, drain-complete, empty-vessel baseline) have
// actually finished.
//
// # Components
//
//   - Detector: sliding-window filter with a variance-derived
//     stability flag, half-window trend classification, and
//     edge-triggered overflow signalling.
//   - Session: the four-step calibration wizard (zero point →
//     reference weight → verify → save) plus the two independent
//     linear models (weight and pump-distance) and the two-stage
//     inverse conversion from target mass to actuator travel.
//   - Tracker: the dynamic empty-vessel baseline, learned by a
//     stability-window convergence algorithm rather than hardcoded,
//     because the empty reading drifts with residue and tubing
//     changes between runs.
//   - Controller: composes the three into the operations the
//     interpreter blocks on: Tare, WaitForEmpty, WaitForStable.
//
// # Concurrency
//
// Blocking waits poll at a fixed cadence on the caller's goroutine
// (the interpreter worker). Only one physical operation is ever in
// flight, so nothing else needs that goroutine. Waits accept an
// optional checkpoint hook so a paused experiment suspends mid-wait.
//
// # Persistence
//
// Calibration coefficients round-trip through a YAML document (see
// Store). Absence of the file is not an error; documented defaults
// apply so the system stays operable pre-calibration.
package weight
