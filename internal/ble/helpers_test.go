package ble

import "time"

var testEpoch = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

// timelineAt builds a timeline for addr with one packet at each offset from
// testEpoch, all at the given RSSI.
func timelineAt(addr string, rssi int, offsets ...time.Duration) Timeline {
	obs := make([]Observation, len(offsets))
	for i, off := range offsets {
		obs[i] = Observation{Address: addr, Timestamp: testEpoch.Add(off), RSSI: rssi, DeviceType: "AirTag", IsTarget: true}
	}
	return Timeline{Address: addr, Observations: obs}
}

// timelineRSSI builds a timeline for addr with packets every step carrying
// the given RSSI values in order.
func timelineRSSI(addr string, step time.Duration, rssi ...int) Timeline {
	obs := make([]Observation, len(rssi))
	for i, r := range rssi {
		obs[i] = Observation{Address: addr, Timestamp: testEpoch.Add(time.Duration(i) * step), RSSI: r, DeviceType: "AirTag", IsTarget: true}
	}
	return Timeline{Address: addr, Observations: obs}
}

// alternating returns n values alternating between base-d and base+d.
func alternating(base, d, n int) []int {
	out := make([]int, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = base - d
		} else {
			out[i] = base + d
		}
	}
	return out
}
