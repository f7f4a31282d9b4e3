package ble

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/banshee-data/beacon.report/internal/cluster"
)

const (
	// DefaultFingerprintEps is the neighbourhood radius in the
	// (mean RSSI, std RSSI) plane, in dB.
	DefaultFingerprintEps = 3.0
	// DefaultFingerprintMinPts is the minimum number of addresses for a
	// dense neighbourhood.
	DefaultFingerprintMinPts = 5

	// NoiseDevice is the device id of addresses assigned to no device.
	NoiseDevice = -1
)

// AddressFeatures is the per-address fingerprint used for clustering.
type AddressFeatures struct {
	Address   string      `json:"address"`
	Stats     SignalStats `json:"rssi"`
	Packets   int         `json:"packets"`
	FirstSeen time.Time   `json:"first_seen"`
	LastSeen  time.Time   `json:"last_seen"`
}

// Clusterable reports whether the fingerprint is fully defined. A single
// packet has no standard deviation and cannot be placed in feature space.
func (f AddressFeatures) Clusterable() error {
	if f.Packets < 2 || math.IsNaN(f.Stats.Std) {
		return fmt.Errorf("address %s has %d packet(s): %w", f.Address, f.Packets, ErrInsufficientData)
	}
	return nil
}

// ExtractFeatures computes one fingerprint per timeline, preserving order.
func ExtractFeatures(timelines []Timeline) []AddressFeatures {
	out := make([]AddressFeatures, 0, len(timelines))
	for _, tl := range timelines {
		out = append(out, AddressFeatures{
			Address:   tl.Address,
			Stats:     computeSignalStats(tl.RSSIs()),
			Packets:   tl.Len(),
			FirstSeen: tl.First(),
			LastSeen:  tl.Last(),
		})
	}
	return out
}

// FingerprintParams tunes fingerprint clustering.
type FingerprintParams struct {
	Eps    float64 `json:"eps"`
	MinPts int     `json:"min_pts"`
}

// DefaultFingerprintParams returns the default clustering parameters.
func DefaultFingerprintParams() FingerprintParams {
	return FingerprintParams{Eps: DefaultFingerprintEps, MinPts: DefaultFingerprintMinPts}
}

// Validate rejects a non-positive radius or a minimum size below one.
func (p FingerprintParams) Validate() error {
	if !(p.Eps > 0) {
		return fmt.Errorf("fingerprint eps %v must be positive: %w", p.Eps, ErrInvalidParameter)
	}
	if p.MinPts < 1 {
		return fmt.Errorf("fingerprint min_pts %d must be at least 1: %w", p.MinPts, ErrInvalidParameter)
	}
	return nil
}

// Clustering is the partition of addresses into logical devices.
// Device ids are 0..Devices-1 ordered by fingerprint centroid; the
// numbering itself carries no meaning beyond reproducibility.
type Clustering struct {
	Assignments map[string]int // address → device id or NoiseDevice
	Devices     int
	// Insufficient lists addresses excluded from the feature space because
	// their fingerprint is undefined. They are also in Assignments as noise.
	Insufficient []string
}

// Members returns the addresses assigned to device id, sorted.
func (c Clustering) Members(id int) []string {
	var out []string
	for addr, d := range c.Assignments {
		if d == id {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out
}

// Noise returns the addresses assigned to no device, sorted.
func (c Clustering) Noise() []string {
	return c.Members(NoiseDevice)
}

// ClusterFingerprints groups addresses into logical devices by density in
// the (mean RSSI, std RSSI) plane. Too few addresses degenerate to an
// all-noise result without error.
func ClusterFingerprints(features []AddressFeatures, params FingerprintParams) (Clustering, error) {
	if err := params.Validate(); err != nil {
		return Clustering{}, err
	}

	result := Clustering{Assignments: make(map[string]int, len(features))}
	if len(features) == 0 {
		return result, nil
	}

	usable := make([]AddressFeatures, 0, len(features))
	for _, f := range features {
		if err := f.Clusterable(); err != nil {
			result.Assignments[f.Address] = NoiseDevice
			result.Insufficient = append(result.Insufficient, f.Address)
			continue
		}
		usable = append(usable, f)
	}
	sort.Strings(result.Insufficient)

	// Scan order affects border point assignment, so fix it by address.
	sort.Slice(usable, func(i, j int) bool { return usable[i].Address < usable[j].Address })

	points := make([]cluster.Point, len(usable))
	for i, f := range usable {
		points[i] = cluster.Point{X: f.Stats.Mean, Y: f.Stats.Std}
	}

	labels, n := cluster.DBSCAN(points, cluster.Params{Eps: params.Eps, MinPts: params.MinPts})
	labels = cluster.Relabel(points, labels, n)

	for i, f := range usable {
		result.Assignments[f.Address] = labels[i]
	}
	result.Devices = n
	return result, nil
}

// LogicalDevice is an inferred persistent transmitter behind one or more
// addresses. Stats are computed over the pooled packets of every member.
type LogicalDevice struct {
	ID        int         `json:"device_id"`
	Addresses []string    `json:"addresses"`
	Stats     SignalStats `json:"rssi"`
	Packets   int         `json:"packets"`

	// Observations is the pooled member timeline ordered by timestamp.
	Observations []Observation `json:"-"`
}

// Timeline returns the pooled observations as a timeline keyed by device.
func (d LogicalDevice) Timeline() Timeline {
	return Timeline{Address: fmt.Sprintf("device-%d", d.ID), Observations: d.Observations}
}

// BuildDevices materialises the logical devices of a clustering from the
// address timelines. Devices are returned in id order.
func BuildDevices(c Clustering, timelines []Timeline) []LogicalDevice {
	if c.Devices == 0 {
		return nil
	}

	byAddr := make(map[string]Timeline, len(timelines))
	for _, tl := range timelines {
		byAddr[tl.Address] = tl
	}

	devices := make([]LogicalDevice, 0, c.Devices)
	for id := 0; id < c.Devices; id++ {
		members := c.Members(id)
		var pooled []Observation
		for _, addr := range members {
			pooled = append(pooled, byAddr[addr].Observations...)
		}
		sortObservations(pooled)

		d := LogicalDevice{
			ID:           id,
			Addresses:    members,
			Packets:      len(pooled),
			Observations: pooled,
		}
		d.Stats = computeSignalStats(d.Timeline().RSSIs())
		devices = append(devices, d)
	}
	return devices
}
