package weight

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()

	c, err := NewController(Config{
		WindowSize:      10,
		StableThreshold: 2.0,
		TrendThreshold:  5.0,
		MaxCapacity:     500.0,
		OverflowMargin:  20.0,
		PollInterval:    time.Millisecond,
	}, &mockActuator{}, nil, nil)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c
}

// ─── Ingest and Status ───

func TestController_IngestAndStatus(t *testing.T) {
	c := newTestController(t)

	for i := 0; i < 10; i++ {
		c.Ingest(200.0)
	}

	status := c.Status()
	if status.Filtered != 200.0 {
		t.Errorf("Filtered = %v, want 200.0", status.Filtered)
	}
	if !status.Stable {
		t.Error("Stable = false after constant feed")
	}
	if status.Calibrated {
		t.Error("Calibrated = true without a saved calibration")
	}
	if c.FilteredWeight() != 200.0 {
		t.Errorf("FilteredWeight() = %v, want 200.0", c.FilteredWeight())
	}
}

func TestController_Tare(t *testing.T) {
	c := newTestController(t)

	for i := 0; i < 10; i++ {
		c.Ingest(150.0)
	}
	c.Tare()

	status := c.Ingest(150.0)
	if math.Abs(status.Tared) > 0.0001 {
		t.Errorf("Tared = %v after tare, want 0", status.Tared)
	}
}

func TestController_OverflowCallback(t *testing.T) {
	c := newTestController(t)

	fired := make(chan Status, 4)
	c.SetOnOverflow(func(s Status) { fired <- s })

	for i := 0; i < 10; i++ {
		c.Ingest(495.0)
	}

	select {
	case status := <-fired:
		if !status.Overflow {
			t.Error("overflow callback received Overflow = false")
		}
	default:
		t.Fatal("overflow callback did not fire")
	}

	// Still inside the band: edge-triggered, no second fire.
	c.Ingest(496.0)
	select {
	case <-fired:
		t.Error("overflow callback fired again without leaving the band")
	default:
	}
}

// The overflow callback must be able to read status without
// deadlocking against the ingest path.
func TestController_OverflowCallbackReentry(t *testing.T) {
	c := newTestController(t)

	done := make(chan struct{})
	c.SetOnOverflow(func(Status) {
		_ = c.Status()
		close(done)
	})

	go func() {
		for i := 0; i < 10; i++ {
			c.Ingest(495.0)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("overflow callback deadlocked against Status()")
	}
}

// ─── Calibration through the controller ───

func TestController_CalibrationPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	store := NewStore(path)

	c, err := NewController(Config{
		WindowSize:      10,
		StableThreshold: 2.0,
		MaxCapacity:     500.0,
		OverflowMargin:  20.0,
	}, &mockActuator{}, store, nil)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	// Empty vessel reads 5, 100 g reference reads 55.
	for i := 0; i < 10; i++ {
		c.Ingest(5.0)
	}
	c.StartCalibration()
	c.SetZeroPoint()

	for i := 0; i < 10; i++ {
		c.Ingest(55.0)
	}
	if err := c.SetReferenceWeight(100.0); err != nil {
		t.Fatalf("SetReferenceWeight() error = %v", err)
	}
	c.SaveCalibration()

	if c.CalibrationState() != StateIdle {
		t.Errorf("CalibrationState() = %v after save, want idle", c.CalibrationState())
	}
	if status := c.Ingest(55.0); !status.Calibrated {
		t.Error("Calibrated = false after saving calibration")
	}

	// A fresh controller on the same store loads the saved model.
	c2, err := NewController(Config{
		WindowSize:     10,
		MaxCapacity:    500.0,
		OverflowMargin: 20.0,
	}, &mockActuator{}, store, nil)
	if err != nil {
		t.Fatalf("NewController() reload error = %v", err)
	}
	cal := c2.Calibration()
	if math.Abs(cal.WeightScale-2.0) > 0.0001 {
		t.Errorf("reloaded WeightScale = %v, want 2.0", cal.WeightScale)
	}
	if status := c2.Ingest(1.0); !status.Calibrated {
		t.Error("Calibrated = false on controller with saved document")
	}
}

func TestController_SetPumpCalibration(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "calibration.yaml"))
	c, err := NewController(Config{WindowSize: 10}, nil, store, nil)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	if err := c.SetPumpCalibration(0.5, 1.0); err != nil {
		t.Fatalf("SetPumpCalibration() error = %v", err)
	}

	cal := c.Calibration()
	if cal.PumpSlope != 0.5 || cal.PumpOffset != 1.0 {
		t.Errorf("Calibration() = %+v, want pump 0.5/1.0", cal)
	}

	// distance = ((15-0)/1 - 1.0) / 0.5 = 28
	if got := c.DistanceForMass(15.0); math.Abs(got-28.0) > 0.0001 {
		t.Errorf("DistanceForMass(15) = %v, want 28.0", got)
	}
}

// ─── Blocking waits ───

func TestController_WaitForStable(t *testing.T) {
	c := newTestController(t)

	go func() {
		for i := 0; i < 10; i++ {
			c.Ingest(42.0)
			time.Sleep(2 * time.Millisecond)
		}
	}()

	status, err := c.WaitForStable(context.Background(), time.Second, nil)
	if err != nil {
		t.Fatalf("WaitForStable() error = %v", err)
	}
	if !status.Stable {
		t.Error("WaitForStable() returned an unstable status")
	}
}

func TestController_WaitForStableTimeout(t *testing.T) {
	c := newTestController(t)

	// Alternating feed never stabilises.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				c.Ingest(10.0)
			} else {
				c.Ingest(200.0)
			}
			time.Sleep(time.Millisecond)
		}
	}()

	_, err := c.WaitForStable(context.Background(), 50*time.Millisecond, nil)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("WaitForStable() error = %v, want ErrWaitTimeout", err)
	}
	<-done
}

func TestController_WaitForEmptyDelegates(t *testing.T) {
	c := newTestController(t)

	go func() {
		for i := 0; i < 50; i++ {
			c.Ingest(3.0)
			time.Sleep(time.Millisecond)
		}
	}()

	got, err := c.WaitForEmpty(context.Background(), EmptyWaitParams{
		Tolerance: 5.0,
		Timeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("WaitForEmpty() error = %v", err)
	}

	baseline, learned := c.Baseline()
	if !learned || baseline != got {
		t.Errorf("Baseline() = %v/%v, want learned %v", baseline, learned, got)
	}

	c.ClearBaseline()
	if _, learned := c.Baseline(); learned {
		t.Error("baseline still learned after ClearBaseline()")
	}
}
