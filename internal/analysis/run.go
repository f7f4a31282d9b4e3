package analysis

import (
	"errors"
	"fmt"

	"github.com/banshee-data/beacon.report/internal/ble"
	"github.com/banshee-data/beacon.report/internal/monitoring"
)

// DeviceSummary is the per-device result consumed by the reporting layer.
// RotationEvents collects the gap events of every member address.
type DeviceSummary struct {
	Device         ble.LogicalDevice     `json:"device"`
	RotationEvents []ble.RotationEvent   `json:"rotation_events"`
	Estimate       ble.DistanceEstimate  `json:"distance"`
	Variance       ble.VarianceBreakdown `json:"variance_breakdown"`
}

// Summary is the immutable result of one run over a capture.
type Summary struct {
	Capture     ble.CaptureSummary `json:"capture"`
	Environment ble.Environment    `json:"environment"`
	Signatures  []ble.Signature    `json:"signatures"`

	// Reconciliation results, over target observations when
	// Params.TargetOnly is set.
	Rotations      []ble.RotationEvent   `json:"rotations"`
	Features       []ble.AddressFeatures `json:"features"`
	Devices        []DeviceSummary       `json:"devices"`
	NoiseAddresses []string              `json:"noise_addresses"`
	// Insufficient is the subset of NoiseAddresses with too few packets to
	// fingerprint.
	Insufficient []string            `json:"insufficient_addresses"`
	Movement     []ble.MovementEvent `json:"movement_events"`
	// Timelines are the per-address observations reconciliation ran over.
	Timelines []ble.Timeline `json:"-"`
	// Positions are known positions when supplied, otherwise relative
	// positions scaled from the reconciled addresses' median RSSI.
	Positions []ble.Position `json:"positions"`

	Params Params `json:"params"`
}

// Empty reports whether the run saw no observations.
func (s *Summary) Empty() bool {
	return s.Capture.Packets == 0
}

// Run executes the reconciliation pipeline: rotation detection, fingerprint
// clustering, then distance and variance estimation per logical device.
//
// Parameters are validated before anything else. An empty capture yields an
// empty summary and no error; a malformed observation is an error.
func Run(obs []ble.Observation, params Params) (*Summary, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	s := &Summary{Params: params, Environment: ble.Pollution(nil)}
	if err := ble.CheckObservations(obs); err != nil {
		if errors.Is(err, ble.ErrEmptyInput) {
			monitoring.Stagef("ingest", "no observations; returning empty summary")
			return s, nil
		}
		return nil, err
	}

	all := ble.GroupByAddress(obs)
	s.Capture = ble.Summarize(obs)
	s.Environment = ble.Pollution(obs)
	s.Signatures = ble.Signatures(all)
	monitoring.Stagef("ingest", "%d packets from %d addresses (%d target) over %s",
		s.Capture.Packets, s.Capture.Addresses, s.Capture.Targets, s.Capture.Duration)

	timelines := all
	if params.TargetOnly {
		timelines = ble.GroupByAddress(ble.FilterTargets(obs))
		if len(timelines) == 0 {
			monitoring.Stagef("ingest", "no target observations; skipping reconciliation")
			return s, nil
		}
	}

	s.Timelines = timelines

	byAddr, rotations, err := ble.DetectAllRotations(timelines, params.RotationThreshold)
	if err != nil {
		return nil, fmt.Errorf("rotation detection: %w", err)
	}
	s.Rotations = rotations
	monitoring.Stagef("rotation", "%d events across %d addresses (threshold %s)",
		len(rotations), len(byAddr), params.RotationThreshold)

	s.Features = ble.ExtractFeatures(timelines)
	clustering, err := ble.ClusterFingerprints(s.Features, params.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("fingerprint clustering: %w", err)
	}
	s.NoiseAddresses = clustering.Noise()
	s.Insufficient = clustering.Insufficient
	monitoring.Stagef("cluster", "%d logical devices, %d noise addresses (%d with too few packets)",
		clustering.Devices, len(s.NoiseAddresses), len(s.Insufficient))

	for _, dev := range ble.BuildDevices(clustering, timelines) {
		ds, err := summariseDevice(dev, byAddr, params)
		if err != nil {
			return nil, err
		}
		s.Devices = append(s.Devices, ds)
	}

	s.Positions, err = ble.ResolvePositions(timelines, params.Model, params.KnownPositions)
	if err != nil {
		return nil, fmt.Errorf("position estimation: %w", err)
	}
	known := len(params.KnownPositions) > 0
	monitoring.Stagef("positions", "%d positions (known: %t)", len(s.Positions), known)

	for _, tl := range timelines {
		events, err := ble.DetectMovement(tl, params.Movement)
		if err != nil {
			return nil, fmt.Errorf("movement detection: %w", err)
		}
		s.Movement = append(s.Movement, events...)
	}
	monitoring.Stagef("movement", "%d events", len(s.Movement))

	return s, nil
}

func summariseDevice(dev ble.LogicalDevice, rotations map[string][]ble.RotationEvent, params Params) (DeviceSummary, error) {
	ds := DeviceSummary{Device: dev}
	for _, addr := range dev.Addresses {
		ds.RotationEvents = append(ds.RotationEvents, rotations[addr]...)
	}

	est, err := params.Model.EstimateDevice(dev)
	if err != nil {
		return DeviceSummary{}, fmt.Errorf("device %d distance: %w", dev.ID, err)
	}
	ds.Estimate = est

	v, err := ble.BreakdownDeviceVariance(dev, params.Variance)
	if err != nil {
		return DeviceSummary{}, fmt.Errorf("device %d variance: %w", dev.ID, err)
	}
	ds.Variance = v

	monitoring.Stagef("estimate", "device %d: %d addresses, mean %.1f dBm, %.2f m (%.2f-%.2f m)",
		dev.ID, len(dev.Addresses), dev.Stats.Mean, est.Distance, est.Lower, est.Upper)
	return ds, nil
}
