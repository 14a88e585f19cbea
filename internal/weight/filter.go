package weight

import "math"

// Filter parameter defaults.
const (
	// DefaultWindowSize is the sliding window capacity in samples.
	DefaultWindowSize = 10

	// DefaultStableThreshold is the stddev below which the signal is
	// considered stable, in grams.
	DefaultStableThreshold = 2.0

	// DefaultTrendThreshold is the half-window mean delta beyond which
	// a trend is reported, in grams.
	DefaultTrendThreshold = 5.0

	// minStableSamples is the minimum window fill before stability
	// can be reported.
	minStableSamples = 3
)

// Detector turns a stream of raw load cell readings into a filtered
// weight, a variance-derived stability flag, and a rise/fall trend
// classification.
//
// Thread Safety:
//   - Not safe for concurrent use. The Controller serialises access.
type Detector struct {
	windowSize      int
	stableThreshold float64
	trendThreshold  float64
	maxCapacity     float64
	overflowMargin  float64

	samples    []float64
	tareOffset float64
	calibrated bool

	// inOverflow tracks the warning state so the overflow callback
	// fires once per transition, not once per sample.
	inOverflow bool
	onOverflow func(status Status)
}

// DetectorConfig configures a Detector. Zero values fall back to the
// package defaults; MaxCapacity and OverflowMargin have no defaults
// because they describe the physical vessel.
type DetectorConfig struct {
	WindowSize      int
	StableThreshold float64
	TrendThreshold  float64
	MaxCapacity     float64
	OverflowMargin  float64
}

// NewDetector creates a Detector with the given thresholds.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = DefaultStableThreshold
	}
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = DefaultTrendThreshold
	}
	return &Detector{
		windowSize:      cfg.WindowSize,
		stableThreshold: cfg.StableThreshold,
		trendThreshold:  cfg.TrendThreshold,
		maxCapacity:     cfg.MaxCapacity,
		overflowMargin:  cfg.OverflowMargin,
		samples:         make([]float64, 0, cfg.WindowSize),
	}
}

// Update ingests one raw reading and recomputes the full status.
//
// Filtered weight is the arithmetic mean of the window. Stability is
// stddev below the threshold with at least three samples. Trend is
// computed only on a full window by comparing the means of its two
// halves. The overflow callback fires on the transition into the
// warning band, once per transition.
func (d *Detector) Update(raw float64) Status {
	if len(d.samples) == d.windowSize {
		d.samples = d.samples[1:]
	}
	d.samples = append(d.samples, raw)

	filtered := mean(d.samples)
	stddev := stdDev(d.samples, filtered)
	tared := filtered - d.tareOffset

	status := Status{
		Raw:        raw,
		Filtered:   filtered,
		Tared:      tared,
		StdDev:     stddev,
		Trend:      d.trend(),
		Stable:     len(d.samples) >= minStableSamples && stddev < d.stableThreshold,
		Calibrated: d.calibrated,
	}

	if d.maxCapacity > 0 {
		status.RawPercent = raw / d.maxCapacity * 100
		status.Overflow = tared > d.maxCapacity-d.overflowMargin
	}

	edge := status.Overflow && !d.inOverflow
	d.inOverflow = status.Overflow
	if edge && d.onOverflow != nil {
		d.onOverflow(status)
	}

	return status
}

// trend compares the means of the two window halves. Reported only
// once the window is full.
func (d *Detector) trend() Trend {
	if len(d.samples) < d.windowSize {
		return TrendStable
	}

	half := len(d.samples) / 2
	delta := mean(d.samples[half:]) - mean(d.samples[:half])

	switch {
	case delta > d.trendThreshold:
		return TrendIncreasing
	case delta < -d.trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// Tare sets the tare offset to the current filtered weight, so the
// tared weight reads zero until the signal moves.
func (d *Detector) Tare() {
	if len(d.samples) == 0 {
		d.tareOffset = 0
		return
	}
	d.tareOffset = mean(d.samples)
}

// TareOffset returns the current tare offset.
func (d *Detector) TareOffset() float64 {
	return d.tareOffset
}

// SetCalibrated records whether a saved calibration is loaded. The
// flag is carried through on every Status.
func (d *Detector) SetCalibrated(calibrated bool) {
	d.calibrated = calibrated
}

// SetOnOverflow registers a callback fired once per transition into
// the overflow warning band.
func (d *Detector) SetOnOverflow(callback func(status Status)) {
	d.onOverflow = callback
}

// Reset clears the sample window. Tare offset and calibration flag
// are retained.
func (d *Detector) Reset() {
	d.samples = d.samples[:0]
	d.inOverflow = false
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

func stdDev(samples []float64, mean float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		diff := s - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}
