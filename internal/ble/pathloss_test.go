package ble

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathLoss_ReferenceIsOneMetre(t *testing.T) {
	t.Parallel()

	m := DefaultPathLossModel()
	e, err := m.Estimate(-59, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, e.Distance)
	assert.Equal(t, 1.0, e.Lower)
	assert.Equal(t, 1.0, e.Upper)
	assert.Equal(t, 0.0, e.ErrorPercent)
}

func TestPathLoss_IndoorExample(t *testing.T) {
	t.Parallel()

	m := PathLossModel{ReferenceRSSI: -59, Exponent: 2.5}
	e, err := m.Estimate(-65, 3)
	require.NoError(t, err)

	assert.InDelta(t, math.Pow(10, 6.0/25.0), e.Distance, 1e-12)
	assert.InDelta(t, 1.738, e.Distance, 1e-3)
	assert.InDelta(t, math.Pow(10, 9.0/25.0), e.Upper, 1e-12)
	assert.InDelta(t, math.Pow(10, 3.0/25.0), e.Lower, 1e-12)

	assert.Greater(t, e.Upper, e.Distance)
	assert.Greater(t, e.Distance, e.Lower)
	// Convexity: the upper error exceeds the lower one.
	assert.Greater(t, e.ErrorUpper, e.ErrorLower)
	assert.InDelta(t, (e.Upper-e.Distance)/e.Distance*100, e.ErrorPercent, 1e-9)
}

func TestPathLoss_BoundsOrderedForAnyPositiveExponent(t *testing.T) {
	t.Parallel()

	for _, n := range []float64{0.5, 1, 2, 2.5, 3.3, 4, 6} {
		for _, mean := range []float64{-100, -80, -65, -59, -40} {
			for _, std := range []float64{0, 0.5, 3, 8, -4} {
				m := PathLossModel{ReferenceRSSI: -59, Exponent: n}
				e, err := m.Estimate(mean, std)
				require.NoError(t, err)
				assert.LessOrEqual(t, e.Lower, e.Distance, "n=%v mean=%v std=%v", n, mean, std)
				assert.LessOrEqual(t, e.Distance, e.Upper, "n=%v mean=%v std=%v", n, mean, std)
			}
		}
	}
}

func TestPathLoss_MonotoneDecreasing(t *testing.T) {
	t.Parallel()

	m := DefaultPathLossModel()
	prev := math.Inf(1)
	for rssi := -100.0; rssi <= -30; rssi++ {
		d := m.Distance(rssi)
		assert.Less(t, d, prev)
		prev = d
	}
}

func TestPathLoss_InvalidExponent(t *testing.T) {
	t.Parallel()

	for _, n := range []float64{0, -2.5, math.NaN()} {
		m := PathLossModel{ReferenceRSSI: -59, Exponent: n}
		assert.ErrorIs(t, m.Validate(), ErrInvalidParameter)
		_, err := m.Estimate(-65, 3)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	}
}

func TestPathLoss_UndefinedStd(t *testing.T) {
	t.Parallel()

	e, err := DefaultPathLossModel().Estimate(-65, math.NaN())
	require.NoError(t, err)
	assert.False(t, math.IsNaN(e.Distance))
	assert.True(t, math.IsNaN(e.Lower))
	assert.True(t, math.IsNaN(e.Upper))
	assert.True(t, math.IsNaN(e.ErrorPercent))
}

func TestPathLoss_EstimateDevice(t *testing.T) {
	t.Parallel()

	dev := LogicalDevice{ID: 3, Stats: SignalStats{Mean: -65, Std: 3}}
	e, err := DefaultPathLossModel().EstimateDevice(dev)
	require.NoError(t, err)
	assert.Equal(t, 3, e.DeviceID)

	_, err = PathLossModel{ReferenceRSSI: -59}.EstimateDevice(dev)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
