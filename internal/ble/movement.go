package ble

import (
	"fmt"
	"math"
	"time"
)

const (
	// DefaultMovementWindow is five minutes at the typical ~12 packets/min.
	DefaultMovementWindow      = 60
	DefaultMovementThresholdDB = 3.0
)

// MovementParams tunes movement event detection.
type MovementParams struct {
	Window      int     `json:"window"`
	ThresholdDB float64 `json:"threshold_db"`
}

// DefaultMovementParams returns the default window and threshold.
func DefaultMovementParams() MovementParams {
	return MovementParams{Window: DefaultMovementWindow, ThresholdDB: DefaultMovementThresholdDB}
}

// Validate checks the window and threshold.
func (p MovementParams) Validate() error {
	if p.Window < 1 {
		return fmt.Errorf("movement window %d must be at least 1: %w", p.Window, ErrInvalidParameter)
	}
	if p.ThresholdDB < 0 || math.IsNaN(p.ThresholdDB) {
		return fmt.Errorf("movement threshold %v must be non-negative: %w", p.ThresholdDB, ErrInvalidParameter)
	}
	return nil
}

// MovementEvent is a packet whose RSSI departs from the local rolling
// median by more than the threshold: someone walking past, a door, new
// interference.
type MovementEvent struct {
	Address   string    `json:"address"`
	Timestamp time.Time `json:"timestamp"`
	RSSI      int       `json:"rssi"`
	Baseline  float64   `json:"baseline"`
	Deviation float64   `json:"deviation"`
}

// DetectMovement compares every packet to the median of the Window packets
// centred on it (indices i-Window/2 up to i-Window/2+Window-1). Packets
// without a full window have no baseline and never produce events.
func DetectMovement(tl Timeline, params MovementParams) ([]MovementEvent, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	n := tl.Len()
	if n < params.Window {
		return nil, nil
	}

	tl = tl.sorted()
	xs := tl.RSSIs()

	var events []MovementEvent
	for i := range xs {
		start := i - params.Window/2
		end := start + params.Window
		if start < 0 || end > n {
			continue
		}
		baseline := median(xs[start:end])
		dev := math.Abs(xs[i] - baseline)
		if dev <= params.ThresholdDB {
			continue
		}
		o := tl.Observations[i]
		events = append(events, MovementEvent{
			Address:   tl.Address,
			Timestamp: o.Timestamp,
			RSSI:      o.RSSI,
			Baseline:  baseline,
			Deviation: dev,
		})
	}
	return events, nil
}
