package ble

import (
	"fmt"
	"time"
)

// DefaultRotationThreshold is the silence after which an address is assumed
// to have rotated.
const DefaultRotationThreshold = 15 * time.Minute

// RotationEvent marks a gap in one address's timeline longer than the
// rotation threshold. Boundary is the timestamp of the first observation
// after the gap.
type RotationEvent struct {
	Address       string        `json:"address"`
	Boundary      time.Time     `json:"boundary"`
	Gap           time.Duration `json:"gap_ns"`
	PacketsBefore int           `json:"packets_before"`
	PacketsAfter  int           `json:"packets_after"`
}

// DetectRotations returns one event per consecutive delta strictly greater
// than threshold, in timeline order. Timelines with fewer than two
// observations have no events. PacketsBefore counts observations strictly
// earlier than the boundary and PacketsAfter the remainder, so their sum is
// always the timeline length.
func DetectRotations(tl Timeline, threshold time.Duration) ([]RotationEvent, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("rotation threshold %s must be non-negative: %w", threshold, ErrInvalidParameter)
	}
	if tl.Len() < 2 {
		return nil, nil
	}

	tl = tl.sorted()
	obs := tl.Observations

	var events []RotationEvent
	for i := 1; i < len(obs); i++ {
		gap := obs[i].Timestamp.Sub(obs[i-1].Timestamp)
		if gap <= threshold {
			continue
		}
		// gap > threshold >= 0, so every earlier observation is strictly
		// before the boundary.
		events = append(events, RotationEvent{
			Address:       tl.Address,
			Boundary:      obs[i].Timestamp,
			Gap:           gap,
			PacketsBefore: i,
			PacketsAfter:  len(obs) - i,
		})
	}
	return events, nil
}

// DetectAllRotations runs DetectRotations over every timeline, returning
// the events keyed by address and the flat list in address order.
func DetectAllRotations(timelines []Timeline, threshold time.Duration) (map[string][]RotationEvent, []RotationEvent, error) {
	if threshold < 0 {
		return nil, nil, fmt.Errorf("rotation threshold %s must be non-negative: %w", threshold, ErrInvalidParameter)
	}

	byAddr := make(map[string][]RotationEvent)
	var all []RotationEvent
	for _, tl := range timelines {
		events, err := DetectRotations(tl, threshold)
		if err != nil {
			return nil, nil, err
		}
		if len(events) == 0 {
			continue
		}
		byAddr[tl.Address] = events
		all = append(all, events...)
	}
	return byAddr, all, nil
}
