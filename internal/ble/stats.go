package ble

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SignalStats are aggregate RSSI statistics in dBm.
type SignalStats struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func computeSignalStats(xs []float64) SignalStats {
	s := SignalStats{
		Mean:   mean(xs),
		Std:    sampleStd(xs),
		Median: median(xs),
		Min:    math.NaN(),
		Max:    math.NaN(),
	}
	if len(xs) > 0 {
		s.Min, s.Max = floats.Min(xs), floats.Max(xs)
	}
	return s
}

// mean returns NaN for an empty sample.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}

// sampleStd is the unbiased (n-1) standard deviation; NaN below two samples.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	return stat.StdDev(xs, nil)
}

// median averages the two middle values of an even-length sample. gonum's
// quantile estimators do not interpolate that way, so it is computed here.
func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	s := make([]float64, n)
	copy(s, xs)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// FiniteMean averages the finite values of xs; NaN if there are none.
func FiniteMean(xs []float64) float64 {
	var sum float64
	var n int
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
