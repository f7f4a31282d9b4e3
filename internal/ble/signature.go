package ble

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Signature is one row of the per-address signature table.
type Signature struct {
	Address     string         `json:"address"`
	DeviceType  string         `json:"device_type"`
	IsTarget    bool           `json:"is_target_device"`
	Packets     int            `json:"packets"`
	RSSI        SignalStats    `json:"rssi"`
	IntervalAvg float64        `json:"interval_mean_s"`
	IntervalMax float64        `json:"interval_max_s"`
	Duration    time.Duration  `json:"duration_ns"`
	StatusBytes map[string]int `json:"status_bytes,omitempty"`
}

// Signatures builds the signature table, ordered by packet count
// descending and then by address. Device type and target flag are taken
// from an address's first packet.
func Signatures(timelines []Timeline) []Signature {
	out := make([]Signature, 0, len(timelines))
	for _, tl := range timelines {
		if tl.Len() == 0 {
			continue
		}
		tl = tl.sorted()
		first := tl.Observations[0]

		intervals := packetIntervals(tl.Observations)
		sig := Signature{
			Address:     tl.Address,
			DeviceType:  first.DeviceType,
			IsTarget:    first.IsTarget,
			Packets:     tl.Len(),
			RSSI:        computeSignalStats(tl.RSSIs()),
			IntervalAvg: mean(intervals),
			IntervalMax: math.NaN(),
			Duration:    tl.Last().Sub(tl.First()),
		}
		if len(intervals) > 0 {
			sig.IntervalMax = floats.Max(intervals)
		}
		for _, o := range tl.Observations {
			if o.StatusByte == "" {
				continue
			}
			if sig.StatusBytes == nil {
				sig.StatusBytes = make(map[string]int)
			}
			sig.StatusBytes[o.StatusByte]++
		}
		out = append(out, sig)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Packets != out[j].Packets {
			return out[i].Packets > out[j].Packets
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// packetIntervals returns inter-arrival times in seconds.
func packetIntervals(obs []Observation) []float64 {
	if len(obs) < 2 {
		return nil
	}
	out := make([]float64, len(obs)-1)
	for i := 1; i < len(obs); i++ {
		out[i-1] = obs[i].Timestamp.Sub(obs[i-1].Timestamp).Seconds()
	}
	return out
}

// DeviceTypeStats summarises the traffic of one device type.
type DeviceTypeStats struct {
	DeviceType string      `json:"device_type"`
	Addresses  int         `json:"addresses"`
	Packets    int         `json:"packets"`
	RSSI       SignalStats `json:"rssi"`
}

// Environment describes signal pollution: how much of the capture comes
// from target devices versus everything else.
type Environment struct {
	Types         []DeviceTypeStats `json:"device_types"`
	TargetPackets int               `json:"target_packets"`
	NoisePackets  int               `json:"noise_packets"`
	// SNR is target packets over non-target packets; +Inf with no noise.
	SNR float64 `json:"snr"`
}

// Pollution computes per device-type statistics over every observation,
// ordered by packet count descending.
func Pollution(obs []Observation) Environment {
	var env Environment
	if len(obs) == 0 {
		env.SNR = math.NaN()
		return env
	}

	type acc struct {
		addrs map[string]struct{}
		rssi  []float64
	}
	byType := make(map[string]*acc)
	for _, o := range obs {
		a, ok := byType[o.DeviceType]
		if !ok {
			a = &acc{addrs: make(map[string]struct{})}
			byType[o.DeviceType] = a
		}
		a.addrs[o.Address] = struct{}{}
		a.rssi = append(a.rssi, float64(o.RSSI))

		if o.IsTarget {
			env.TargetPackets++
		} else {
			env.NoisePackets++
		}
	}

	for t, a := range byType {
		env.Types = append(env.Types, DeviceTypeStats{
			DeviceType: t,
			Addresses:  len(a.addrs),
			Packets:    len(a.rssi),
			RSSI:       computeSignalStats(a.rssi),
		})
	}
	sort.Slice(env.Types, func(i, j int) bool {
		if env.Types[i].Packets != env.Types[j].Packets {
			return env.Types[i].Packets > env.Types[j].Packets
		}
		return env.Types[i].DeviceType < env.Types[j].DeviceType
	})

	if env.NoisePackets == 0 {
		env.SNR = math.Inf(1)
	} else {
		env.SNR = float64(env.TargetPackets) / float64(env.NoisePackets)
	}
	return env
}
