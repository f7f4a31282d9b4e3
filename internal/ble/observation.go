package ble

import (
	"fmt"
	"sort"
	"time"
)

// Observation is one received advertisement. It is never mutated after
// ingestion.
type Observation struct {
	Address    string    `json:"address"`
	Timestamp  time.Time `json:"timestamp"`
	RSSI       int       `json:"rssi"` // dBm
	DeviceType string    `json:"device_type"`
	IsTarget   bool      `json:"is_target_device"`
	StatusByte string    `json:"status_byte,omitempty"` // hex, e.g. "0x12"

	// Capture metadata; empty for CSV inputs that do not carry it.
	LocalName      string `json:"local_name,omitempty"`
	ManufacturerID int    `json:"manufacturer_id,omitempty"`
}

// Timeline is the ordered sequence of observations sharing one address.
type Timeline struct {
	Address      string
	Observations []Observation
}

// Len returns the number of observations.
func (t Timeline) Len() int { return len(t.Observations) }

// RSSIs returns the signal strengths in timeline order.
func (t Timeline) RSSIs() []float64 {
	out := make([]float64, len(t.Observations))
	for i, o := range t.Observations {
		out[i] = float64(o.RSSI)
	}
	return out
}

// First returns the earliest timestamp, or the zero time for an empty timeline.
func (t Timeline) First() time.Time {
	if len(t.Observations) == 0 {
		return time.Time{}
	}
	return t.Observations[0].Timestamp
}

// Last returns the latest timestamp, or the zero time for an empty timeline.
func (t Timeline) Last() time.Time {
	if len(t.Observations) == 0 {
		return time.Time{}
	}
	return t.Observations[len(t.Observations)-1].Timestamp
}

// sorted returns t with observations in timestamp order. The receiver is
// returned unchanged when it is already ordered.
func (t Timeline) sorted() Timeline {
	if sort.SliceIsSorted(t.Observations, func(i, j int) bool {
		return t.Observations[i].Timestamp.Before(t.Observations[j].Timestamp)
	}) {
		return t
	}
	obs := make([]Observation, len(t.Observations))
	copy(obs, t.Observations)
	sortObservations(obs)
	return Timeline{Address: t.Address, Observations: obs}
}

// sortObservations orders by timestamp, breaking ties by address so pooled
// device timelines are reproducible.
func sortObservations(obs []Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		if !obs[i].Timestamp.Equal(obs[j].Timestamp) {
			return obs[i].Timestamp.Before(obs[j].Timestamp)
		}
		return obs[i].Address < obs[j].Address
	})
}

// GroupByAddress partitions observations into per-address timelines,
// sorted by address, each ordered by timestamp. The input is not modified.
func GroupByAddress(obs []Observation) []Timeline {
	if len(obs) == 0 {
		return nil
	}

	byAddr := make(map[string][]Observation)
	for _, o := range obs {
		byAddr[o.Address] = append(byAddr[o.Address], o)
	}

	addrs := make([]string, 0, len(byAddr))
	for a := range byAddr {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)

	timelines := make([]Timeline, 0, len(addrs))
	for _, a := range addrs {
		group := byAddr[a]
		sortObservations(group)
		timelines = append(timelines, Timeline{Address: a, Observations: group})
	}
	return timelines
}

// FilterTargets returns only observations flagged as target devices.
func FilterTargets(obs []Observation) []Observation {
	out := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if o.IsTarget {
			out = append(out, o)
		}
	}
	return out
}

// CheckObservations validates a batch before analysis. An empty batch
// yields ErrEmptyInput; a record without an address or timestamp is
// malformed and yields ErrInvalidParameter.
func CheckObservations(obs []Observation) error {
	if len(obs) == 0 {
		return ErrEmptyInput
	}
	for i, o := range obs {
		if o.Address == "" {
			return fmt.Errorf("observation %d: missing address: %w", i, ErrInvalidParameter)
		}
		if o.Timestamp.IsZero() {
			return fmt.Errorf("observation %d (%s): missing timestamp: %w", i, o.Address, ErrInvalidParameter)
		}
	}
	return nil
}

// CaptureSummary describes the extent of a capture.
type CaptureSummary struct {
	Packets   int           `json:"packets"`
	Addresses int           `json:"addresses"`
	Targets   int           `json:"target_addresses"`
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Duration  time.Duration `json:"duration_ns"`
}

// Summarize computes the capture extent.
func Summarize(obs []Observation) CaptureSummary {
	if len(obs) == 0 {
		return CaptureSummary{}
	}
	s := CaptureSummary{Packets: len(obs), Start: obs[0].Timestamp, End: obs[0].Timestamp}
	addrs := make(map[string]bool)
	for _, o := range obs {
		if o.Timestamp.Before(s.Start) {
			s.Start = o.Timestamp
		}
		if o.Timestamp.After(s.End) {
			s.End = o.Timestamp
		}
		if _, ok := addrs[o.Address]; !ok {
			addrs[o.Address] = o.IsTarget
		} else if o.IsTarget {
			addrs[o.Address] = true
		}
	}
	s.Addresses = len(addrs)
	for _, target := range addrs {
		if target {
			s.Targets++
		}
	}
	s.Duration = s.End.Sub(s.Start)
	return s
}
