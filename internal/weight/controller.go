package weight

import (
	"context"
	"sync"
	"time"
)

// Config configures the weight-feedback controller. Thresholds map to
// the weight section of config.yaml.
type Config struct {
	WindowSize      int
	StableThreshold float64
	TrendThreshold  float64
	MaxCapacity     float64
	OverflowMargin  float64
	PollInterval    time.Duration
}

// Controller is the Weight-Feedback Control Subsystem. It composes
// the filter, the calibration wizard and models, and the dynamic
// baseline tracker into the operations the experiment interpreter
// blocks on: tare, wait-for-empty, wait-for-stable, and overflow
// signalling.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Sample ingest, status
//     reads and calibration steps share one mutex; blocking waits poll
//     without holding it.
type Controller struct {
	mu       sync.Mutex
	detector *Detector
	session  *Session
	cal      Calibration
	latest   Status

	tracker *Tracker
	store   *Store

	actuator CommandSender
	logger   Logger
	poll     time.Duration

	// onOverflow fires once per transition into the overflow band,
	// outside the controller mutex.
	onOverflow func(status Status)
}

// NewController creates the subsystem.
//
// Parameters:
//   - cfg: Filter thresholds and poll cadence
//   - actuator: Actuator link for calibration commands (may be nil)
//   - store: Calibration document store (nil disables persistence)
//   - logger: Logger instance (nil falls back to a no-op logger)
//
// A saved calibration is loaded if the store has one; otherwise the
// documented defaults apply and the status reports Calibrated=false.
func NewController(cfg Config, actuator CommandSender, store *Store, logger Logger) (*Controller, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	c := &Controller{
		detector: NewDetector(DetectorConfig{
			WindowSize:      cfg.WindowSize,
			StableThreshold: cfg.StableThreshold,
			TrendThreshold:  cfg.TrendThreshold,
			MaxCapacity:     cfg.MaxCapacity,
			OverflowMargin:  cfg.OverflowMargin,
		}),
		cal:      DefaultCalibration(),
		store:    store,
		actuator: actuator,
		logger:   logger,
		poll:     cfg.PollInterval,
	}

	if store != nil {
		cal, found, err := store.Load()
		if err != nil {
			return nil, err
		}
		c.cal = cal
		c.detector.SetCalibrated(found)
		if found {
			logger.Info("calibration loaded",
				"scale", cal.WeightScale, "offset", cal.WeightOffset)
		}
	}

	// Wizard methods run under c.mu, so the reading source must not
	// re-acquire it.
	c.session = NewSession(actuator, func() float64 { return c.latest.Filtered }, logger)
	c.session.SetOnComplete(c.commitCalibration)
	c.tracker = NewTracker(c.Status, cfg.PollInterval, logger)

	return c, nil
}

// ─── Sample ingest and status ───

// Ingest feeds one raw load cell reading through the filter and
// refreshes the latest status. The overflow callback, if any, fires
// after the controller mutex is released.
func (c *Controller) Ingest(raw float64) Status {
	var overflowed *Status

	c.mu.Lock()
	prevOverflow := c.latest.Overflow
	status := c.detector.Update(raw)
	c.latest = status
	if status.Overflow && !prevOverflow {
		overflowed = &status
	}
	callback := c.onOverflow
	c.mu.Unlock()

	if overflowed != nil && callback != nil {
		callback(*overflowed)
	}
	return status
}

// Status returns the latest filtered status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// FilteredWeight returns the latest filtered weight.
func (c *Controller) FilteredWeight() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest.Filtered
}

// Tare zeroes the tared weight at the current filtered reading.
func (c *Controller) Tare() {
	c.mu.Lock()
	c.detector.Tare()
	c.mu.Unlock()
	c.logger.Info("tare set")
}

// SetOnOverflow registers a callback fired once per transition into
// the overflow warning band. Called outside the controller mutex.
func (c *Controller) SetOnOverflow(callback func(status Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOverflow = callback
}

// ─── Calibration ───

// StartCalibration begins the calibration wizard.
func (c *Controller) StartCalibration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Start()
}

// SetZeroPoint captures the empty-vessel zero point.
func (c *Controller) SetZeroPoint() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.SetZeroPoint()
}

// SetReferenceWeight captures the reading under a known mass.
func (c *Controller) SetReferenceWeight(mass float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.SetReferenceWeight(mass)
}

// SaveCalibration commits the wizard's derived model.
func (c *Controller) SaveCalibration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Save()
}

// CancelCalibration abandons an in-progress wizard run.
func (c *Controller) CancelCalibration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Cancel()
}

// CalibrationState returns the wizard's current state.
func (c *Controller) CalibrationState() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State()
}

// Calibration returns the currently loaded coefficients.
func (c *Controller) Calibration() Calibration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cal
}

// SetPumpCalibration replaces the pump-distance linear model and
// persists the combined document.
func (c *Controller) SetPumpCalibration(slope, offset float64) error {
	c.mu.Lock()
	c.cal.PumpSlope = slope
	c.cal.PumpOffset = offset
	cal := c.cal
	store := c.store
	c.mu.Unlock()

	if store == nil {
		return nil
	}
	return store.Save(cal)
}

// DistanceForMass converts a target real mass to actuator travel
// using the currently loaded calibration.
func (c *Controller) DistanceForMass(realMass float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cal.DistanceForMass(realMass)
}

// commitCalibration is the wizard's completion hook. It runs with the
// controller mutex already held (wizard methods are called under it).
func (c *Controller) commitCalibration(cal Calibration) {
	cal.PumpSlope = c.cal.PumpSlope
	cal.PumpOffset = c.cal.PumpOffset
	c.cal = cal
	c.detector.SetCalibrated(true)

	if c.store != nil {
		if err := c.store.Save(cal); err != nil {
			c.logger.Error("saving calibration document failed", "error", err)
		}
	}
}

// ─── Blocking waits ───

// WaitForEmpty blocks until the vessel converges to the learned empty
// baseline. See Tracker.WaitForEmpty for the full contract.
func (c *Controller) WaitForEmpty(ctx context.Context, params EmptyWaitParams) (float64, error) {
	return c.tracker.WaitForEmpty(ctx, params)
}

// WaitForStable blocks until the filter reports a stable signal or
// the timeout elapses.
//
// Parameters:
//   - ctx: Context for cancellation
//   - timeout: Maximum time to wait
//   - checkpoint: Optional pause/stop hook consulted once per poll
//
// Returns:
//   - Status: The first stable status observed
//   - error: ErrWaitTimeout, ctx.Err(), or the checkpoint's error
func (c *Controller) WaitForStable(ctx context.Context, timeout time.Duration, checkpoint func(ctx context.Context) error) (Status, error) {
	deadline := time.Now().Add(timeout)
	poll := c.poll
	if poll <= 0 {
		poll = defaultPollInterval
	}

	for {
		if err := ctx.Err(); err != nil {
			return Status{}, err
		}
		if checkpoint != nil {
			if err := checkpoint(ctx); err != nil {
				return Status{}, err
			}
		}

		status := c.Status()
		if status.Stable {
			return status, nil
		}
		if time.Now().After(deadline) {
			return Status{}, ErrWaitTimeout
		}

		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Baseline returns the learned empty-vessel weight.
func (c *Controller) Baseline() (float64, bool) {
	return c.tracker.Baseline()
}

// ClearBaseline forgets the learned empty-vessel weight.
func (c *Controller) ClearBaseline() {
	c.tracker.Clear()
}
