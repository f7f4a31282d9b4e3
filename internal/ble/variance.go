package ble

import (
	"fmt"
	"math"
	"time"
)

const (
	DefaultRollingWindow       = 50
	DefaultShortTermGap        = time.Minute
	DefaultShortTermMinPackets = 10
)

// VarianceParams sets the window granularities of the variance breakdown.
type VarianceParams struct {
	RollingWindow       int           `json:"rolling_window"`
	ShortTermGap        time.Duration `json:"short_term_gap_ns"`
	ShortTermMinPackets int           `json:"short_term_min_packets"`
}

// DefaultVarianceParams returns the default window granularities.
func DefaultVarianceParams() VarianceParams {
	return VarianceParams{
		RollingWindow:       DefaultRollingWindow,
		ShortTermGap:        DefaultShortTermGap,
		ShortTermMinPackets: DefaultShortTermMinPackets,
	}
}

// Validate checks the window parameters.
func (p VarianceParams) Validate() error {
	if p.RollingWindow < 2 {
		return fmt.Errorf("rolling window %d must be at least 2: %w", p.RollingWindow, ErrInvalidParameter)
	}
	if p.ShortTermGap <= 0 {
		return fmt.Errorf("short-term gap %s must be positive: %w", p.ShortTermGap, ErrInvalidParameter)
	}
	if p.ShortTermMinPackets < 0 {
		return fmt.Errorf("short-term min packets %d must be non-negative: %w", p.ShortTermMinPackets, ErrInvalidParameter)
	}
	return nil
}

// VarianceBreakdown is three independent RSSI spread summaries over one
// timeline at different granularities:
//
//   - Overall: sample std of every packet.
//   - Rolling: mean sample std over every full window of RollingWindow
//     consecutive packets (environmental drift is excluded by the window).
//   - ShortTerm: sample std of packets that arrived within ShortTermGap of
//     their predecessor (back-to-back measurement noise).
//
// This is a descriptive heuristic, not a decomposition: the components
// overlap and do not sum to the overall variance.
type VarianceBreakdown struct {
	DeviceID     int     `json:"device_id"`
	OverallStd   float64 `json:"overall_std"`
	RollingStd   float64 `json:"rolling_std"`
	ShortTermStd float64 `json:"short_term_std"`
	Packets      int     `json:"packets"`
	Addresses    int     `json:"addresses"`
}

// BreakdownVariance summarises the spread of a timeline. Components whose
// sample is too small are NaN.
func BreakdownVariance(tl Timeline, params VarianceParams) (VarianceBreakdown, error) {
	if err := params.Validate(); err != nil {
		return VarianceBreakdown{}, err
	}

	tl = tl.sorted()
	xs := tl.RSSIs()

	addrs := make(map[string]struct{})
	for _, o := range tl.Observations {
		addrs[o.Address] = struct{}{}
	}

	return VarianceBreakdown{
		OverallStd:   sampleStd(xs),
		RollingStd:   rollingStd(xs, params.RollingWindow),
		ShortTermStd: shortTermStd(tl.Observations, params.ShortTermGap, params.ShortTermMinPackets),
		Packets:      len(xs),
		Addresses:    len(addrs),
	}, nil
}

// BreakdownDeviceVariance runs BreakdownVariance over a device's pooled
// timeline.
func BreakdownDeviceVariance(dev LogicalDevice, params VarianceParams) (VarianceBreakdown, error) {
	v, err := BreakdownVariance(dev.Timeline(), params)
	if err != nil {
		return VarianceBreakdown{}, err
	}
	v.DeviceID = dev.ID
	return v, nil
}

func rollingStd(xs []float64, window int) float64 {
	if len(xs) < window {
		return math.NaN()
	}
	stds := make([]float64, 0, len(xs)-window+1)
	for i := 0; i+window <= len(xs); i++ {
		stds = append(stds, sampleStd(xs[i:i+window]))
	}
	return FiniteMean(stds)
}

func shortTermStd(obs []Observation, gap time.Duration, minPackets int) float64 {
	var xs []float64
	for i := 1; i < len(obs); i++ {
		if obs[i].Timestamp.Sub(obs[i-1].Timestamp) < gap {
			xs = append(xs, float64(obs[i].RSSI))
		}
	}
	if len(xs) <= minPackets {
		return math.NaN()
	}
	return sampleStd(xs)
}
