package experiment

import (
	"errors"
	"testing"
	"time"
)

func TestProgramValidate(t *testing.T) {
	channels := map[string]int{"water": 0}

	tests := []struct {
		name    string
		program Program
		wantErr bool
	}{
		{
			name:    "zero steps is valid",
			program: Program{ID: "p", Steps: nil},
			wantErr: false,
		},
		{
			name:    "missing id",
			program: Program{Steps: nil},
			wantErr: true,
		},
		{
			name: "step with no action",
			program: Program{ID: "p", Steps: []Step{
				{Name: "bare"},
			}},
			wantErr: true,
		},
		{
			name: "step with two actions",
			program: Program{ID: "p", Steps: []Step{
				{Name: "both", Wait: &WaitAction{Duration: time.Second}, Phase: &PhaseMarker{Label: "x"}},
			}},
			wantErr: true,
		},
		{
			name: "wait with no condition",
			program: Program{ID: "p", Steps: []Step{
				{Name: "w", Wait: &WaitAction{}},
			}},
			wantErr: true,
		},
		{
			name: "wait with two conditions",
			program: Program{ID: "p", Steps: []Step{
				{Name: "w", Wait: &WaitAction{Duration: time.Second, Cycles: 2}},
			}},
			wantErr: true,
		},
		{
			name: "inject with unmapped liquid",
			program: Program{ID: "p", Channels: channels, Steps: []Step{
				{Name: "i", Inject: &InjectAction{
					Components: []Component{{LiquidID: "acetone", Ratio: 1}},
				}},
			}},
			wantErr: true,
		},
		{
			name: "loop count zero",
			program: Program{ID: "p", Steps: []Step{
				{Name: "l", Loop: &LoopAction{Count: 0}},
			}},
			wantErr: true,
		},
		{
			name: "invalid step nested in loop",
			program: Program{ID: "p", Steps: []Step{
				{Name: "l", Loop: &LoopAction{Count: 2, Steps: []Step{
					{Name: "bare"},
				}}},
			}},
			wantErr: true,
		},
		{
			name: "valid nested program",
			program: Program{ID: "p", Channels: channels, Steps: []Step{
				{Name: "i", Inject: &InjectAction{
					TargetVolumeML: 5,
					Components:     []Component{{LiquidID: "water", Ratio: 1}},
				}},
				{Name: "l", Loop: &LoopAction{Count: 2, Steps: []Step{
					{Name: "w", Wait: &WaitAction{Cycles: 3}},
				}}},
			}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.program.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProgram) {
					t.Errorf("Validate() error = %v, want ErrInvalidProgram", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}
