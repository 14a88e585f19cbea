package weight

import (
	"context"
	"math"
	"sync"
	"time"
)

// Short-horizon stability constants for the wait-for-empty algorithm.
const (
	// pollDeltaLimit is the per-poll filtered-weight delta below which
	// consecutive candidate polls count toward short-horizon stability.
	pollDeltaLimit = 1.0

	// shortHorizonPolls is the number of consecutive qualifying polls
	// required before the stability window opens.
	shortHorizonPolls = 3

	// windowDriftLimit is the drift from the window anchor that
	// restarts the stability window.
	windowDriftLimit = 0.5

	// defaultPollInterval is the cadence of the blocking polls.
	defaultPollInterval = 500 * time.Millisecond
)

// EmptyWaitParams parameterise one wait-for-empty call.
type EmptyWaitParams struct {
	// Tolerance is the band around the learned baseline within which a
	// stable sample is a convergence candidate. Skipped when no
	// baseline has been learned yet.
	Tolerance float64

	// Timeout bounds the whole wait. On expiry the wait fails and the
	// baseline is left unchanged.
	Timeout time.Duration

	// StabilityWindow is the minimum unbroken duration the signal must
	// hold near the anchor before it is trusted. Zero or negative
	// accepts as soon as short-horizon stability holds.
	StabilityWindow time.Duration

	// Checkpoint, when set, is consulted once per poll. Blocking in it
	// pauses the wait; returning an error abandons it.
	Checkpoint func(ctx context.Context) error
}

// Tracker maintains the learned empty-vessel weight.
//
// The baseline is learned, not hardcoded, because the empty reading
// drifts with vessel residue and tubing changes between runs. It is
// absent until the first successful convergence, overwritten by each
// subsequent convergence, and explicitly clearable.
//
// Thread Safety:
//   - Baseline, Clear and WaitForEmpty are safe for concurrent use.
//   - At most one WaitForEmpty runs at a time by construction of the
//     experiment engine (single worker).
type Tracker struct {
	mu       sync.Mutex
	baseline float64
	learned  bool

	status func() Status
	poll   time.Duration
	logger Logger
}

// NewTracker creates a Tracker reading the latest filtered status
// from the given source.
func NewTracker(status func() Status, poll time.Duration, logger Logger) *Tracker {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Tracker{
		status: status,
		poll:   poll,
		logger: logger,
	}
}

// Baseline returns the learned empty-vessel weight and whether one
// has been learned.
func (t *Tracker) Baseline() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseline, t.learned
}

// Clear forgets the learned baseline. The next successful wait
// re-anchors from scratch.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseline = 0
	t.learned = false
}

// WaitForEmpty blocks until the vessel weight converges to the
// learned empty baseline, then overwrites the baseline with the
// converged weight.
//
// A sample is a candidate when it is within Tolerance of the baseline
// (skipped until a baseline exists) and the filter reports stability.
// Candidates must then hold short-horizon stability: three consecutive
// polls with per-poll deltas below 1.0 g. Once that holds, a window
// anchored at the qualifying weight must survive StabilityWindow
// without drifting more than 0.5 g; drift restarts the window, and
// any non-candidate sample resets everything. No partial credit
// carries across an instability.
//
// Parameters:
//   - ctx: Context for cancellation
//   - params: Tolerance, timeout, stability window, optional checkpoint
//
// Returns:
//   - float64: The converged weight (the new baseline)
//   - error: ErrWaitTimeout on expiry, ctx.Err() on cancellation, or
//     the checkpoint's error. The baseline is unchanged on failure.
func (t *Tracker) WaitForEmpty(ctx context.Context, params EmptyWaitParams) (float64, error) {
	reference, haveReference := t.Baseline()
	deadline := time.Now().Add(params.Timeout)

	var (
		lastFiltered float64
		streak       int

		windowOpen   bool
		windowAnchor float64
		windowStart  time.Time
	)

	reset := func() {
		streak = 0
		windowOpen = false
	}

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if params.Checkpoint != nil {
			if err := params.Checkpoint(ctx); err != nil {
				return 0, err
			}
		}
		if time.Now().After(deadline) {
			t.logger.Debug("wait for empty timed out",
				"reference", reference, "timeout", params.Timeout)
			return 0, ErrWaitTimeout
		}

		status := t.status()

		candidate := status.Stable
		if candidate && haveReference && reference != 0 {
			candidate = math.Abs(status.Filtered-reference) <= params.Tolerance
		}

		if !candidate {
			reset()
			lastFiltered = status.Filtered
			if err := t.sleep(ctx); err != nil {
				return 0, err
			}
			continue
		}

		if streak == 0 || math.Abs(status.Filtered-lastFiltered) < pollDeltaLimit {
			streak++
		} else {
			streak = 1
			windowOpen = false
		}
		lastFiltered = status.Filtered

		if streak >= shortHorizonPolls {
			if params.StabilityWindow <= 0 {
				return t.converge(status.Filtered), nil
			}

			switch {
			case !windowOpen:
				windowOpen = true
				windowAnchor = status.Filtered
				windowStart = time.Now()
			case math.Abs(status.Filtered-windowAnchor) > windowDriftLimit:
				// Anti-premature-lock: drift restarts the window.
				windowAnchor = status.Filtered
				windowStart = time.Now()
			case time.Since(windowStart) >= params.StabilityWindow:
				return t.converge(status.Filtered), nil
			}
		}

		if err := t.sleep(ctx); err != nil {
			return 0, err
		}
	}
}

// converge commits the new baseline and returns it.
func (t *Tracker) converge(value float64) float64 {
	t.mu.Lock()
	t.baseline = value
	t.learned = true
	t.mu.Unlock()

	t.logger.Info("empty baseline re-anchored", "baseline", value)
	return value
}

// sleep waits one poll interval or until cancellation.
func (t *Tracker) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.poll):
		return nil
	}
}
