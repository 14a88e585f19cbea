package weight

import (
	"math"
	"testing"
)

func newTestDetector() *Detector {
	return NewDetector(DetectorConfig{
		WindowSize:      10,
		StableThreshold: 2.0,
		TrendThreshold:  5.0,
		MaxCapacity:     500.0,
		OverflowMargin:  20.0,
	})
}

// ─── Filter Tests ───

func TestUpdate_ConstantSignal(t *testing.T) {
	d := newTestDetector()

	var status Status
	for i := 0; i < 10; i++ {
		status = d.Update(100.0)
	}

	if status.Filtered != 100.0 {
		t.Errorf("Filtered = %v, want 100.0", status.Filtered)
	}
	if status.StdDev > 0.0001 {
		t.Errorf("StdDev = %v, want ~0", status.StdDev)
	}
	if !status.Stable {
		t.Error("Stable = false for constant signal")
	}
	if status.Trend != TrendStable {
		t.Errorf("Trend = %v, want stable", status.Trend)
	}
}

func TestUpdate_AlternatingNeverStable(t *testing.T) {
	d := newTestDetector()

	for i := 0; i < 20; i++ {
		value := 100.0
		if i%2 == 0 {
			value = 200.0
		}
		if status := d.Update(value); i >= 2 && status.Stable {
			t.Fatalf("Stable = true at sample %d for alternating signal", i)
		}
	}
}

func TestUpdate_StabilityNeedsThreeSamples(t *testing.T) {
	d := newTestDetector()

	if status := d.Update(100.0); status.Stable {
		t.Error("Stable = true after 1 sample")
	}
	if status := d.Update(100.0); status.Stable {
		t.Error("Stable = true after 2 samples")
	}
	if status := d.Update(100.0); !status.Stable {
		t.Error("Stable = false after 3 constant samples")
	}
}

func TestUpdate_WindowEviction(t *testing.T) {
	d := newTestDetector()

	// Fill the window with 0, then push it out with 50s.
	for i := 0; i < 10; i++ {
		d.Update(0.0)
	}
	var status Status
	for i := 0; i < 10; i++ {
		status = d.Update(50.0)
	}

	if status.Filtered != 50.0 {
		t.Errorf("Filtered = %v after eviction, want 50.0", status.Filtered)
	}
}

// ─── Trend Tests ───

func TestTrend(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    Trend
	}{
		{
			name:    "increasing ramp",
			samples: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			want:    TrendIncreasing,
		},
		{
			name:    "decreasing ramp",
			samples: []float64{100, 90, 80, 70, 60, 50, 40, 30, 20, 10},
			want:    TrendDecreasing,
		},
		{
			name:    "flat signal",
			samples: []float64{50, 50, 50, 50, 50, 50, 50, 50, 50, 50},
			want:    TrendStable,
		},
		{
			name:    "drift below threshold",
			samples: []float64{50, 50.5, 50, 50.5, 50, 50.5, 50, 50.5, 50, 50.5},
			want:    TrendStable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDetector()
			var status Status
			for _, s := range tt.samples {
				status = d.Update(s)
			}
			if status.Trend != tt.want {
				t.Errorf("Trend = %v, want %v", status.Trend, tt.want)
			}
		})
	}
}

func TestTrend_PartialWindowIsStable(t *testing.T) {
	d := newTestDetector()

	// Steep ramp, but only half the window filled.
	var status Status
	for _, s := range []float64{10, 30, 50, 70, 90} {
		status = d.Update(s)
	}
	if status.Trend != TrendStable {
		t.Errorf("Trend = %v on partial window, want stable", status.Trend)
	}
}

// ─── Tare Tests ───

func TestTare(t *testing.T) {
	d := newTestDetector()

	for i := 0; i < 10; i++ {
		d.Update(120.0)
	}
	d.Tare()

	status := d.Update(120.0)
	if math.Abs(status.Tared) > 0.0001 {
		t.Errorf("Tared = %v after tare, want 0", status.Tared)
	}

	status = d.Update(170.0)
	if status.Tared <= 0 {
		t.Errorf("Tared = %v after adding mass, want > 0", status.Tared)
	}
}

func TestTare_EmptyWindow(t *testing.T) {
	d := newTestDetector()
	d.Tare()

	if offset := d.TareOffset(); offset != 0 {
		t.Errorf("TareOffset() = %v on empty window, want 0", offset)
	}
}

// ─── Overflow Tests ───

func TestOverflow_EdgeTriggered(t *testing.T) {
	d := newTestDetector()

	var fired int
	d.SetOnOverflow(func(Status) { fired++ })

	// Capacity 500, margin 20: warning band above 480 tared.
	for i := 0; i < 10; i++ {
		d.Update(490.0)
	}
	if fired != 1 {
		t.Fatalf("overflow fired %d times inside the band, want 1", fired)
	}

	// Drop below the band, then re-enter: fires once more.
	for i := 0; i < 10; i++ {
		d.Update(100.0)
	}
	for i := 0; i < 10; i++ {
		d.Update(495.0)
	}
	if fired != 2 {
		t.Errorf("overflow fired %d times after re-entry, want 2", fired)
	}
}

func TestOverflow_StatusFlag(t *testing.T) {
	d := newTestDetector()

	var status Status
	for i := 0; i < 10; i++ {
		status = d.Update(490.0)
	}
	if !status.Overflow {
		t.Error("Overflow = false inside the warning band")
	}

	for i := 0; i < 10; i++ {
		status = d.Update(100.0)
	}
	if status.Overflow {
		t.Error("Overflow = true below the warning band")
	}
}

// ─── Misc ───

func TestRawPercent(t *testing.T) {
	d := newTestDetector()
	status := d.Update(250.0)
	if status.RawPercent != 50.0 {
		t.Errorf("RawPercent = %v, want 50.0", status.RawPercent)
	}
}

func TestReset(t *testing.T) {
	d := newTestDetector()
	for i := 0; i < 10; i++ {
		d.Update(100.0)
	}
	d.Tare()
	d.Reset()

	status := d.Update(30.0)
	if status.Filtered != 30.0 {
		t.Errorf("Filtered = %v after reset, want 30.0", status.Filtered)
	}
	if d.TareOffset() != 100.0 {
		t.Errorf("TareOffset() = %v, reset should retain tare", d.TareOffset())
	}
}
