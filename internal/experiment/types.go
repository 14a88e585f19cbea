package experiment

import (
	"fmt"
	"time"
)

// Program is the in-memory representation of a loaded experiment: an
// ordered sequence of steps plus the hardware liquid-to-channel map.
// It is owned exclusively by the engine once loaded, replaced
// wholesale on a new LoadProgram, never mutated in place.
//
// Programs are parsed externally; this core never parses the source
// text format itself.
type Program struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Steps []Step `json:"steps"`

	// Channels maps liquid identifiers to actuator channel indexes.
	Channels map[string]int `json:"channels,omitempty"`
}

// Step is one program action. Exactly one action field must be
// non-nil; LoadProgram validates this. A program with zero steps is
// valid and completes immediately.
type Step struct {
	Name string `json:"name"`

	Inject  *InjectAction   `json:"inject,omitempty"`
	Wait    *WaitAction     `json:"wait,omitempty"`
	Drain   *DrainAction    `json:"drain,omitempty"`
	Acquire *AcquireAction  `json:"acquire,omitempty"`
	Mode    *SetModeAction  `json:"set_mode,omitempty"`
	GasPump *GasPumpAction  `json:"gas_pump,omitempty"`
	Loop    *LoopAction     `json:"loop,omitempty"`
	Phase   *PhaseMarker    `json:"phase,omitempty"`
}

// Component is one liquid of an injection mixture. Ratios are
// expected to sum to 1; enforcement belongs to the external program
// validator, not this core.
type Component struct {
	LiquidID string  `json:"liquid_id"`
	Ratio    float64 `json:"ratio"`
}

// InjectAction dispenses a liquid mixture until a target amount is
// reached, confirmed by weight feedback.
type InjectAction struct {
	// TargetVolumeML is the requested volume. When TargetMassG is
	// zero, mass is derived at 1 g/ml.
	TargetVolumeML float64 `json:"target_volume_ml"`

	// TargetMassG, when set, overrides the volume-derived target.
	TargetMassG float64 `json:"target_mass_g,omitempty"`

	Components []Component `json:"components"`

	// ToleranceG ends the feedback wait once the measured mass is
	// within this band of the target.
	ToleranceG float64 `json:"tolerance_g"`

	// FlowRate is passed through to the actuator command.
	FlowRate float64 `json:"flow_rate"`

	// StabilizationTimeout bounds the feedback wait. Expiry is soft:
	// logged, and execution proceeds to the next step.
	StabilizationTimeout time.Duration `json:"stabilization_timeout"`
}

// EmptyWait parameterises empty-vessel detection.
type EmptyWait struct {
	ToleranceG      float64       `json:"tolerance_g"`
	Timeout         time.Duration `json:"timeout"`
	StabilityWindow time.Duration `json:"stability_window"`
}

// WaitAction blocks until exactly one of: a fixed duration elapses, a
// number of heater/sensor cycles completes, or the vessel reads
// empty.
type WaitAction struct {
	Duration time.Duration `json:"duration,omitempty"`
	Cycles   int           `json:"cycles,omitempty"`
	Empty    *EmptyWait    `json:"empty,omitempty"`
}

// DrainAction empties the vessel. Termination is a fixed duration, a
// cycle count, or convergence to the learned empty baseline.
type DrainAction struct {
	Duration time.Duration `json:"duration,omitempty"`
	Cycles   int           `json:"cycles,omitempty"`
	Empty    *EmptyWait    `json:"empty,omitempty"`
}

// AcquireAction drives the sensor acquisition phase. The gathered
// data is opaque to this core; only the termination condition
// matters. MaxDuration is a safety bound that always wins if the
// primary condition never fires.
type AcquireAction struct {
	Duration    time.Duration `json:"duration,omitempty"`
	Cycles      int           `json:"cycles,omitempty"`
	MaxDuration time.Duration `json:"max_duration,omitempty"`
}

// SetModeAction switches the physical system's operating mode.
type SetModeAction struct {
	Mode string `json:"mode"`
}

// GasPumpAction switches the gas pump. Pump-off attributes the
// elapsed wall-clock runtime to consumable wear.
type GasPumpAction struct {
	On bool `json:"on"`
}

// LoopAction repeats its body steps Count times. Bodies nest
// recursively; the model is a tree, never a graph.
type LoopAction struct {
	Count int    `json:"count"`
	Steps []Step `json:"steps"`
}

// PhaseMarker delimits a named phase for observers. It performs no
// physical action.
type PhaseMarker struct {
	Label string `json:"label"`
	End   bool   `json:"end,omitempty"`
}

// Validate checks structural soundness: every step carries exactly
// one action, loop bodies validate recursively, and loop counts are
// positive.
func (p *Program) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing program id", ErrInvalidProgram)
	}
	return validateSteps(p.Steps, p.Channels)
}

func validateSteps(steps []Step, channels map[string]int) error {
	for i, step := range steps {
		if err := step.validate(channels); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Name, err)
		}
	}
	return nil
}

func (s *Step) validate(channels map[string]int) error {
	actions := 0
	if s.Inject != nil {
		actions++
		for _, comp := range s.Inject.Components {
			if _, ok := channels[comp.LiquidID]; !ok {
				return fmt.Errorf("%w: liquid %q has no channel mapping", ErrInvalidProgram, comp.LiquidID)
			}
		}
	}
	if s.Wait != nil {
		actions++
		if err := exactlyOneCondition(s.Wait.Duration, s.Wait.Cycles, s.Wait.Empty != nil); err != nil {
			return err
		}
	}
	if s.Drain != nil {
		actions++
	}
	if s.Acquire != nil {
		actions++
	}
	if s.Mode != nil {
		actions++
	}
	if s.GasPump != nil {
		actions++
	}
	if s.Loop != nil {
		actions++
		if s.Loop.Count <= 0 {
			return fmt.Errorf("%w: loop count must be positive", ErrInvalidProgram)
		}
		if err := validateSteps(s.Loop.Steps, channels); err != nil {
			return err
		}
	}
	if s.Phase != nil {
		actions++
	}

	if actions != 1 {
		return fmt.Errorf("%w: step must carry exactly one action, has %d", ErrInvalidProgram, actions)
	}
	return nil
}

func exactlyOneCondition(duration time.Duration, cycles int, empty bool) error {
	set := 0
	if duration > 0 {
		set++
	}
	if cycles > 0 {
		set++
	}
	if empty {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: wait must carry exactly one termination condition, has %d", ErrInvalidProgram, set)
	}
	return nil
}
