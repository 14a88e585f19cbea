// Package consumable persists actuator wear: cumulative pump runtime
// per named channel and cumulative dispensed volume per channel
// index. The experiment interpreter records usage here as a side
// effect of injection and gas-pump steps; failures are logged by the
// caller and are never fatal to an experiment.
package consumable

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Usage is the accumulated wear of one actuator channel.
type Usage struct {
	ChannelID      string    `json:"channel_id,omitempty"`
	ChannelIndex   int       `json:"channel_index,omitempty"`
	RuntimeSeconds float64   `json:"runtime_seconds,omitempty"`
	VolumeML       float64   `json:"volume_ml,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Ledger defines the consumable-tracking interface the interpreter
// depends on.
type Ledger interface {
	AddRuntime(ctx context.Context, channelID string, seconds float64) error
	AddConsumption(ctx context.Context, channelIndex int, volumeML float64) error
}

// SQLiteLedger accumulates usage counters in SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger creates a ledger on an open database. The
// channel_runtime and channel_consumption tables come from the
// embedded migrations.
func NewSQLiteLedger(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db}
}

// AddRuntime adds elapsed runtime to a named channel's counter.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - channelID: Channel identifier (e.g., "gas-pump")
//   - seconds: Elapsed wall-clock runtime to add
func (l *SQLiteLedger) AddRuntime(ctx context.Context, channelID string, seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("%w: negative runtime %v", ErrInvalidUsage, seconds)
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO channel_runtime (channel_id, seconds, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET
		   seconds = seconds + excluded.seconds,
		   updated_at = excluded.updated_at`,
		channelID, seconds, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording channel runtime: %w", err)
	}
	return nil
}

// AddConsumption adds dispensed volume to a channel index's counter.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - channelIndex: Actuator channel index from the program's liquid map
//   - volumeML: Dispensed volume to add, in millilitres
func (l *SQLiteLedger) AddConsumption(ctx context.Context, channelIndex int, volumeML float64) error {
	if volumeML < 0 {
		return fmt.Errorf("%w: negative volume %v", ErrInvalidUsage, volumeML)
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO channel_consumption (channel_index, volume_ml, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(channel_index) DO UPDATE SET
		   volume_ml = volume_ml + excluded.volume_ml,
		   updated_at = excluded.updated_at`,
		channelIndex, volumeML, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording channel consumption: %w", err)
	}
	return nil
}

// Runtime returns the accumulated runtime for one channel. A channel
// with no recorded usage reads zero.
func (l *SQLiteLedger) Runtime(ctx context.Context, channelID string) (float64, error) {
	var seconds float64
	err := l.db.QueryRowContext(ctx,
		"SELECT seconds FROM channel_runtime WHERE channel_id = ?", channelID,
	).Scan(&seconds)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying channel runtime: %w", err)
	}
	return seconds, nil
}

// Consumption returns the accumulated volume for one channel index.
func (l *SQLiteLedger) Consumption(ctx context.Context, channelIndex int) (float64, error) {
	var volume float64
	err := l.db.QueryRowContext(ctx,
		"SELECT volume_ml FROM channel_consumption WHERE channel_index = ?", channelIndex,
	).Scan(&volume)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying channel consumption: %w", err)
	}
	return volume, nil
}

// ListUsage returns all recorded channel usage, runtime channels
// first, for status and maintenance reporting.
func (l *SQLiteLedger) ListUsage(ctx context.Context) ([]Usage, error) {
	var usage []Usage

	rows, err := l.db.QueryContext(ctx,
		"SELECT channel_id, seconds, updated_at FROM channel_runtime ORDER BY channel_id")
	if err != nil {
		return nil, fmt.Errorf("querying runtime usage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u Usage
		var updatedAt string
		if err := rows.Scan(&u.ChannelID, &u.RuntimeSeconds, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning runtime row: %w", err)
		}
		u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runtime rows: %w", err)
	}

	volRows, err := l.db.QueryContext(ctx,
		"SELECT channel_index, volume_ml, updated_at FROM channel_consumption ORDER BY channel_index")
	if err != nil {
		return nil, fmt.Errorf("querying consumption usage: %w", err)
	}
	defer volRows.Close()

	for volRows.Next() {
		var u Usage
		var updatedAt string
		if err := volRows.Scan(&u.ChannelIndex, &u.VolumeML, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning consumption row: %w", err)
		}
		u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
		usage = append(usage, u)
	}
	if err := volRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating consumption rows: %w", err)
	}

	return usage, nil
}

// Reset zeroes one named channel's runtime counter, for when the
// physical part is replaced.
func (l *SQLiteLedger) Reset(ctx context.Context, channelID string) error {
	_, err := l.db.ExecContext(ctx,
		"UPDATE channel_runtime SET seconds = 0, updated_at = ? WHERE channel_id = ?",
		time.Now().UTC().Format(time.RFC3339), channelID,
	)
	if err != nil {
		return fmt.Errorf("resetting channel runtime: %w", err)
	}
	return nil
}
