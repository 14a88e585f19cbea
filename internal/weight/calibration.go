package weight

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default calibration coefficients, used when no saved calibration
// exists. The system stays operable pre-calibration at reduced
// accuracy rather than failing.
const (
	DefaultWeightScale  = 1.0
	DefaultWeightOffset = 0.0
	DefaultPumpSlope    = 1.0
	DefaultPumpOffset   = 0.0
)

// Calibration holds the two independent linear models:
//
//   - weight calibration (scale + offset): measured reading to real mass
//   - pump-distance calibration (slope + offset, g/mm): measured mass
//     to actuator travel
//
// Both round-trip through a YAML document via Store.
type Calibration struct {
	// WeightScale and WeightOffset map a measured reading to a real
	// mass: real = measured*scale + offset.
	WeightScale  float64 `yaml:"weight_scale"`
	WeightOffset float64 `yaml:"weight_offset"`

	// PumpSlope and PumpOffset map a measured mass to pump travel in
	// millimetres: measured = distance*slope + offset.
	PumpSlope  float64 `yaml:"pump_slope"`
	PumpOffset float64 `yaml:"pump_offset"`
}

// DefaultCalibration returns the documented default coefficients.
func DefaultCalibration() Calibration {
	return Calibration{
		WeightScale:  DefaultWeightScale,
		WeightOffset: DefaultWeightOffset,
		PumpSlope:    DefaultPumpSlope,
		PumpOffset:   DefaultPumpOffset,
	}
}

// DistanceForMass converts a target real-world mass into an actuator
// travel distance using the two-stage inverse conversion:
//
//	measured = (real − weight_offset) / weight_scale
//	distance = (measured − pump_offset) / pump_slope
//
// Both stages use the currently loaded coefficients.
func (c Calibration) DistanceForMass(realMass float64) float64 {
	scale := c.WeightScale
	if scale == 0 {
		scale = DefaultWeightScale
	}
	slope := c.PumpSlope
	if slope == 0 {
		slope = DefaultPumpSlope
	}

	measured := (realMass - c.WeightOffset) / scale
	return (measured - c.PumpOffset) / slope
}

// ─── Document store ───

// Store persists calibration coefficients as a YAML document.
// Absence of the file is not an error; defaults apply.
type Store struct {
	path string
}

// NewStore creates a Store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the calibration document.
//
// Returns:
//   - Calibration: Saved coefficients, or defaults when the file is absent
//   - bool: Whether a saved document was found
//   - error: If the file exists but cannot be read or parsed
func (s *Store) Load() (Calibration, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return DefaultCalibration(), false, nil
	}
	if err != nil {
		return DefaultCalibration(), false, fmt.Errorf("reading calibration document: %w", err)
	}

	cal := DefaultCalibration()
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return DefaultCalibration(), false, fmt.Errorf("parsing calibration document: %w", err)
	}
	return cal, true, nil
}

// Save writes the calibration document, creating the directory if
// needed.
func (s *Store) Save(cal Calibration) error {
	data, err := yaml.Marshal(cal)
	if err != nil {
		return fmt.Errorf("encoding calibration document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("creating calibration directory: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("writing calibration document: %w", err)
	}
	return nil
}

// ─── Calibration wizard ───

// SessionState identifies the wizard's position.
type SessionState string

// Wizard states. Transitions are strictly linear with no skipping;
// Cancel returns to Idle from any non-Idle state.
const (
	StateIdle            SessionState = "idle"
	StateZeroPoint       SessionState = "zero_point"
	StateReferenceWeight SessionState = "reference_weight"
	StateVerify          SessionState = "verify"
	StateComplete        SessionState = "complete"
)

// Actuator command strings issued by the wizard.
const (
	cmdCalibrateZero = "CAL:ZERO"
	cmdCalibrateRef  = "CAL:REF:%.3f"
	cmdCalibrateSave = "CAL:SAVE"
)

// Session is the four-step calibration wizard:
//
//	Idle → Start → ZeroPoint → SetZeroPoint → ReferenceWeight
//	     → SetReferenceWeight → Verify → Save → Complete → Idle
//
// Each transition dispatches a physical calibration command to the
// actuator link as a side effect. Dispatch is fire-and-forget; the
// wizard does not wait for hardware acknowledgement.
//
// Calling a step method from the wrong state logs a warning and is a
// no-op, not an error. Operators double-click; the wizard forgives
// repeats but never reorders.
//
// Thread Safety:
//   - Not safe for concurrent use. The Controller serialises access.
type Session struct {
	state         SessionState
	referenceMass float64

	// zeroReading and refReading capture the filtered weight at the
	// zero-point and reference-weight steps; Save derives the linear
	// model from them.
	zeroReading float64
	refReading  float64

	actuator   CommandSender
	reading    func() float64
	logger     Logger
	onComplete func(cal Calibration)
}

// NewSession creates an idle calibration wizard.
//
// Parameters:
//   - actuator: Command dispatch to the hardware (may be nil for tests)
//   - reading: Source of the current filtered weight
//   - logger: Logger instance (nil falls back to a no-op logger)
func NewSession(actuator CommandSender, reading func() float64, logger Logger) *Session {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Session{
		state:    StateIdle,
		actuator: actuator,
		reading:  reading,
		logger:   logger,
	}
}

// State returns the wizard's current state.
func (s *Session) State() SessionState {
	return s.state
}

// SetOnComplete registers a callback fired exactly once when a
// calibration run completes (at Save, before the return to Idle).
func (s *Session) SetOnComplete(callback func(cal Calibration)) {
	s.onComplete = callback
}

// Start begins a calibration run. Legal only from Idle.
func (s *Session) Start() {
	if s.state != StateIdle {
		s.logger.Warn("calibration start ignored", "state", s.state)
		return
	}
	s.state = StateZeroPoint
	s.logger.Info("calibration started")
}

// SetZeroPoint captures the empty-vessel reading and tares the
// hardware. Legal only from ZeroPoint.
func (s *Session) SetZeroPoint() {
	if s.state != StateZeroPoint {
		s.logger.Warn("set zero point ignored", "state", s.state)
		return
	}

	s.zeroReading = s.reading()
	s.dispatch(cmdCalibrateZero)
	s.state = StateReferenceWeight
	s.logger.Info("calibration zero point set", "reading", s.zeroReading)
}

// SetReferenceWeight captures the reading under a known mass. Legal
// only from ReferenceWeight; a non-positive mass is rejected inline
// with the state unchanged.
func (s *Session) SetReferenceWeight(mass float64) error {
	if s.state != StateReferenceWeight {
		s.logger.Warn("set reference weight ignored", "state", s.state)
		return nil
	}
	if mass <= 0 {
		return ErrInvalidReference
	}

	s.referenceMass = mass
	s.refReading = s.reading()
	s.dispatch(fmt.Sprintf(cmdCalibrateRef, mass))
	s.state = StateVerify
	s.logger.Info("calibration reference weight set", "mass", mass, "reading", s.refReading)
	return nil
}

// Save derives the linear model from the captured readings, commits
// it to hardware, emits the completion notification, and returns to
// Idle. Legal only from Verify.
func (s *Session) Save() {
	if s.state != StateVerify {
		s.logger.Warn("save calibration ignored", "state", s.state)
		return
	}

	s.dispatch(cmdCalibrateSave)
	s.state = StateComplete

	cal := s.derive()
	if s.onComplete != nil {
		s.onComplete(cal)
	}

	s.state = StateIdle
	s.logger.Info("calibration complete",
		"scale", cal.WeightScale, "offset", cal.WeightOffset)
}

// Cancel abandons the run from any non-Idle state.
func (s *Session) Cancel() {
	if s.state == StateIdle {
		return
	}
	s.state = StateIdle
	s.referenceMass = 0
	s.logger.Info("calibration cancelled")
}

// derive computes the weight linear model from the two captured
// readings. A degenerate span (reference reading equal to zero
// reading) falls back to the default scale.
func (s *Session) derive() Calibration {
	cal := DefaultCalibration()

	span := s.refReading - s.zeroReading
	if span != 0 && s.referenceMass > 0 {
		cal.WeightScale = s.referenceMass / span
		cal.WeightOffset = -s.zeroReading * cal.WeightScale
	}
	return cal
}

// dispatch sends a calibration command, logging failures. The wizard
// advances regardless; it only guarantees the request was issued.
func (s *Session) dispatch(command string) {
	if s.actuator == nil {
		s.logger.Warn("calibration command dropped, no actuator link", "command", command)
		return
	}
	if err := s.actuator.SendCommand(command); err != nil {
		s.logger.Error("calibration command dispatch failed", "command", command, "error", err)
	}
}
