// Package testutil provides shared capture fixtures for tests.
package testutil

import (
	"fmt"
	"time"

	"github.com/banshee-data/beacon.report/internal/ble"
)

// Epoch is the start time of every generated capture.
var Epoch = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

// PacketInterval is the spacing of generated packets.
const PacketInterval = 30 * time.Second

// Series returns n target packets from addr, PacketInterval apart from
// Epoch, alternating between base-swing and base+swing dBm.
func Series(addr string, base, swing, n int) []ble.Observation {
	out := make([]ble.Observation, n)
	for i := range out {
		rssi := base - swing
		if i%2 == 1 {
			rssi = base + swing
		}
		out[i] = ble.Observation{
			Address:    addr,
			Timestamp:  Epoch.Add(time.Duration(i) * PacketInterval),
			RSSI:       rssi,
			DeviceType: "AirTag",
			IsTarget:   true,
			StatusByte: "0x10",
		}
	}
	return out
}

// Shift delays every observation from index `from` onwards by d, opening a
// silent gap in the series.
func Shift(obs []ble.Observation, from int, d time.Duration) []ble.Observation {
	for i := from; i < len(obs); i++ {
		obs[i].Timestamp = obs[i].Timestamp.Add(d)
	}
	return obs
}

// Group returns one Series per base, with addresses prefix1, prefix2, ...
func Group(prefix string, bases []int, swing, n int) []ble.Observation {
	var out []ble.Observation
	for i, base := range bases {
		out = append(out, Series(fmt.Sprintf("%s%d", prefix, i+1), base, swing, n)...)
	}
	return out
}

// TwoDeviceCapture is a capture of two fingerprint groups of five
// addresses, ten packets each: a* around -60 dBm and b* around -80 dBm.
// Address a1 goes silent for twenty minutes after its fifth packet.
func TwoDeviceCapture() []ble.Observation {
	a := Group("a", []int{-60, -61, -60, -59, -60}, 2, 10)
	Shift(a[:10], 5, 20*time.Minute)
	b := Group("b", []int{-80, -81, -80, -79, -80}, 1, 10)
	return append(a, b...)
}
