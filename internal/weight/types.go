package weight

// Trend classifies the direction of the filtered weight signal.
type Trend string

// Trend values.
const (
	TrendStable     Trend = "stable"
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
)

// Status is the derived view of the load cell signal after filtering.
//
// It is recomputed on every ingested sample and has no identity beyond
// "latest status". All weights are in grams.
type Status struct {
	// Raw is the most recent unfiltered reading.
	Raw float64 `json:"raw"`

	// RawPercent is Raw expressed as a percentage of vessel capacity.
	RawPercent float64 `json:"raw_percent"`

	// Filtered is the moving average over the sample window.
	Filtered float64 `json:"filtered"`

	// Tared is Filtered minus the current tare offset.
	Tared float64 `json:"tared"`

	// StdDev is the standard deviation over the sample window.
	StdDev float64 `json:"std_dev"`

	// Trend is the rise/fall classification, computed on a full window.
	Trend Trend `json:"trend"`

	// Stable reports whether StdDev is below the stability threshold.
	// Requires at least three samples; false otherwise.
	Stable bool `json:"stable"`

	// Calibrated reports whether a saved calibration is loaded.
	Calibrated bool `json:"calibrated"`

	// Overflow reports whether the tared weight is inside the
	// overflow warning band (capacity minus margin).
	Overflow bool `json:"overflow"`
}

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CommandSender dispatches a raw command string to the actuator link.
// Dispatch is fire-and-forget; no acknowledgement is observed here.
type CommandSender interface {
	SendCommand(command string) error
}
