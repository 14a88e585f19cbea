package weight

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

// simSource serves a scripted sequence of statuses, holding the last
// one once the script is exhausted.
type simSource struct {
	mu     sync.Mutex
	script []Status
	index  int
}

func (s *simSource) next() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < len(s.script) {
		st := s.script[s.index]
		s.index++
		return st
	}
	if len(s.script) == 0 {
		return Status{}
	}
	return s.script[len(s.script)-1]
}

func stable(filtered float64) Status {
	return Status{Filtered: filtered, Stable: true}
}

func unstable(filtered float64) Status {
	return Status{Filtered: filtered, Stable: false}
}

func newTestTracker(script []Status) *Tracker {
	src := &simSource{script: script}
	return NewTracker(src.next, time.Millisecond, nil)
}

// ─── Wait-for-empty Tests ───

func TestWaitForEmpty_ConvergesAndAnchorsBaseline(t *testing.T) {
	// Decay from 50 above baseline down to a held stable value.
	script := []Status{
		unstable(55.0), unstable(40.0), unstable(25.0), unstable(12.0),
		stable(5.2), stable(5.1), stable(5.0), stable(5.0), stable(5.0),
	}
	tracker := newTestTracker(script)

	got, err := tracker.WaitForEmpty(context.Background(), EmptyWaitParams{
		Tolerance:       5.0,
		Timeout:         2 * time.Second,
		StabilityWindow: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("WaitForEmpty() error = %v", err)
	}
	if math.Abs(got-5.0) > 0.5 {
		t.Errorf("converged weight = %v, want ~5.0", got)
	}

	baseline, learned := tracker.Baseline()
	if !learned {
		t.Fatal("baseline not learned after convergence")
	}
	if baseline != got {
		t.Errorf("baseline = %v, want converged weight %v", baseline, got)
	}
}

func TestWaitForEmpty_TimeoutLeavesBaselineUntouched(t *testing.T) {
	// Never stabilises.
	script := []Status{unstable(50), unstable(30), unstable(60)}
	tracker := newTestTracker(script)

	_, err := tracker.WaitForEmpty(context.Background(), EmptyWaitParams{
		Tolerance: 5.0,
		Timeout:   30 * time.Millisecond,
	})
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("WaitForEmpty() error = %v, want ErrWaitTimeout", err)
	}

	if _, learned := tracker.Baseline(); learned {
		t.Error("baseline learned despite timeout")
	}
}

func TestWaitForEmpty_ToleranceEnforcedAgainstLearnedBaseline(t *testing.T) {
	// First convergence learns ~5.0.
	tracker := newTestTracker([]Status{
		stable(5.0), stable(5.0), stable(5.0), stable(5.0),
	})
	if _, err := tracker.WaitForEmpty(context.Background(), EmptyWaitParams{
		Tolerance: 5.0,
		Timeout:   time.Second,
	}); err != nil {
		t.Fatalf("first WaitForEmpty() error = %v", err)
	}

	// A stable hold far outside tolerance must not converge.
	src := &simSource{script: []Status{stable(40), stable(40), stable(40), stable(40)}}
	tracker.status = src.next

	_, err := tracker.WaitForEmpty(context.Background(), EmptyWaitParams{
		Tolerance: 5.0,
		Timeout:   30 * time.Millisecond,
	})
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("WaitForEmpty() error = %v, stable-but-off-baseline should time out", err)
	}

	if baseline, _ := tracker.Baseline(); baseline != 5.0 {
		t.Errorf("baseline = %v after failed wait, want 5.0", baseline)
	}
}

func TestWaitForEmpty_FirstUseAcceptsAnyStablePoint(t *testing.T) {
	// No baseline yet: tolerance check is skipped entirely.
	tracker := newTestTracker([]Status{
		stable(123.0), stable(123.0), stable(123.0), stable(123.0),
	})

	got, err := tracker.WaitForEmpty(context.Background(), EmptyWaitParams{
		Tolerance: 1.0,
		Timeout:   time.Second,
	})
	if err != nil {
		t.Fatalf("WaitForEmpty() error = %v", err)
	}
	if got != 123.0 {
		t.Errorf("converged weight = %v, want 123.0", got)
	}
}

func TestWaitForEmpty_ZeroWindowAcceptsAfterShortHorizon(t *testing.T) {
	tracker := newTestTracker([]Status{
		stable(2.0), stable(2.0), stable(2.0),
	})

	start := time.Now()
	_, err := tracker.WaitForEmpty(context.Background(), EmptyWaitParams{
		Tolerance:       5.0,
		Timeout:         time.Second,
		StabilityWindow: 0,
	})
	if err != nil {
		t.Fatalf("WaitForEmpty() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("zero-window accept took %v, want immediate after short horizon", elapsed)
	}
}

func TestWaitForEmpty_InstabilityResetsProgress(t *testing.T) {
	// Two good polls, an instability, then a clean streak. The first
	// partial streak must not carry across the break.
	script := []Status{
		stable(3.0), stable(3.0),
		unstable(30.0),
		stable(3.0), stable(3.0), stable(3.0), stable(3.0), stable(3.0),
	}
	tracker := newTestTracker(script)

	got, err := tracker.WaitForEmpty(context.Background(), EmptyWaitParams{
		Tolerance:       5.0,
		Timeout:         2 * time.Second,
		StabilityWindow: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("WaitForEmpty() error = %v", err)
	}
	if got != 3.0 {
		t.Errorf("converged weight = %v, want 3.0", got)
	}
}

func TestWaitForEmpty_Cancellation(t *testing.T) {
	tracker := newTestTracker([]Status{unstable(50)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tracker.WaitForEmpty(ctx, EmptyWaitParams{
		Tolerance: 5.0,
		Timeout:   time.Minute,
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForEmpty() error = %v, want context.Canceled", err)
	}
}

func TestWaitForEmpty_CheckpointAborts(t *testing.T) {
	tracker := newTestTracker([]Status{stable(1.0)})

	abort := errors.New("stop requested")
	_, err := tracker.WaitForEmpty(context.Background(), EmptyWaitParams{
		Tolerance:  5.0,
		Timeout:    time.Minute,
		Checkpoint: func(context.Context) error { return abort },
	})
	if !errors.Is(err, abort) {
		t.Errorf("WaitForEmpty() error = %v, want checkpoint error", err)
	}

	if _, learned := tracker.Baseline(); learned {
		t.Error("baseline learned despite aborted wait")
	}
}

func TestClear(t *testing.T) {
	tracker := newTestTracker([]Status{
		stable(7.0), stable(7.0), stable(7.0), stable(7.0),
	})
	if _, err := tracker.WaitForEmpty(context.Background(), EmptyWaitParams{
		Timeout: time.Second,
	}); err != nil {
		t.Fatalf("WaitForEmpty() error = %v", err)
	}

	tracker.Clear()
	if _, learned := tracker.Baseline(); learned {
		t.Error("baseline still learned after Clear()")
	}
}
