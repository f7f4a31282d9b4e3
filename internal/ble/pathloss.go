package ble

import (
	"fmt"
	"math"
)

const (
	// DefaultReferenceRSSI is the calibrated BLE RSSI at one metre, in dBm.
	DefaultReferenceRSSI = -59.0
	// DefaultPathLossExponent is a typical indoor environment factor
	// (2.0 is free space).
	DefaultPathLossExponent = 2.5
)

// PathLossModel is the log-distance path-loss model
//
//	d = 10^((ref - rssi) / (10 * n))
//
// with ref the RSSI at one metre and n the path-loss exponent.
type PathLossModel struct {
	ReferenceRSSI float64 `json:"rssi_at_1m"`
	Exponent      float64 `json:"path_loss_exponent"`
}

// DefaultPathLossModel returns the indoor BLE defaults.
func DefaultPathLossModel() PathLossModel {
	return PathLossModel{ReferenceRSSI: DefaultReferenceRSSI, Exponent: DefaultPathLossExponent}
}

// Validate rejects a non-positive exponent.
func (m PathLossModel) Validate() error {
	if !(m.Exponent > 0) {
		return fmt.Errorf("path-loss exponent %v must be positive: %w", m.Exponent, ErrInvalidParameter)
	}
	return nil
}

// Distance converts an RSSI in dBm to metres. It is strictly decreasing in
// rssi. The model must be valid.
func (m PathLossModel) Distance(rssi float64) float64 {
	return math.Pow(10, (m.ReferenceRSSI-rssi)/(10*m.Exponent))
}

// DistanceEstimate is a distance with asymmetric ±1σ bounds. Lower is the
// distance at mean+σ, Upper at mean-σ; because the transform is convex the
// upper error is the larger one. Bounds are NaN when σ is undefined.
type DistanceEstimate struct {
	DeviceID     int     `json:"device_id"`
	Distance     float64 `json:"estimated_distance_m"`
	Lower        float64 `json:"lower_bound_m"`
	Upper        float64 `json:"upper_bound_m"`
	ErrorLower   float64 `json:"error_lower_m"`
	ErrorUpper   float64 `json:"error_upper_m"`
	ErrorPercent float64 `json:"error_percent"`
}

// Estimate evaluates the model at mean and at mean ∓ |std|.
func (m PathLossModel) Estimate(meanRSSI, stdRSSI float64) (DistanceEstimate, error) {
	if err := m.Validate(); err != nil {
		return DistanceEstimate{}, err
	}

	d := m.Distance(meanRSSI)
	if math.IsNaN(stdRSSI) {
		nan := math.NaN()
		return DistanceEstimate{Distance: d, Lower: nan, Upper: nan, ErrorLower: nan, ErrorUpper: nan, ErrorPercent: nan}, nil
	}

	sigma := math.Abs(stdRSSI)
	upper := m.Distance(meanRSSI - sigma)
	lower := m.Distance(meanRSSI + sigma)
	e := DistanceEstimate{
		Distance:   d,
		Lower:      lower,
		Upper:      upper,
		ErrorLower: d - lower,
		ErrorUpper: upper - d,
	}
	e.ErrorPercent = e.ErrorUpper / d * 100
	return e, nil
}

// EstimateDevice estimates the distance of a logical device from its pooled
// signal statistics.
func (m PathLossModel) EstimateDevice(dev LogicalDevice) (DistanceEstimate, error) {
	e, err := m.Estimate(dev.Stats.Mean, dev.Stats.Std)
	if err != nil {
		return DistanceEstimate{}, err
	}
	e.DeviceID = dev.ID
	return e, nil
}
