// Package metrics exposes the outcome of an analysis run as Prometheus
// gauges, for scraping or for a node_exporter textfile.
package metrics

import (
	"fmt"
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/beacon.report/internal/analysis"
)

// Recorder holds the run gauges. Each Record call replaces the previous
// run's values.
type Recorder struct {
	gatherer prometheus.Gatherer

	Runs            prometheus.Counter
	Packets         prometheus.Gauge
	Addresses       prometheus.Gauge
	Devices         prometheus.Gauge
	NoiseAddresses  prometheus.Gauge
	RotationEvents  prometheus.Gauge
	MovementEvents  prometheus.Gauge
	CaptureDuration prometheus.Gauge
	SNR             prometheus.Gauge

	DeviceDistance   *prometheus.GaugeVec
	DeviceRSSIStd    *prometheus.GaugeVec
	DeviceErrorRatio *prometheus.GaugeVec
}

// NewRecorder registers the run metrics against reg, defaulting to the
// global registry when nil.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	r := &Recorder{gatherer: gatherer}
	var err error

	r.Runs, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_runs_total",
		Help: "Number of analysis runs recorded.",
	}), "beacon_runs_total")
	if err != nil {
		return nil, err
	}

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&r.Packets, "beacon_capture_packets", "Packets in the analysed capture."},
		{&r.Addresses, "beacon_capture_addresses", "Distinct addresses in the analysed capture."},
		{&r.Devices, "beacon_logical_devices", "Logical devices after fingerprint reconciliation."},
		{&r.NoiseAddresses, "beacon_noise_addresses", "Addresses not assigned to any logical device."},
		{&r.RotationEvents, "beacon_rotation_events", "Address rotation events detected."},
		{&r.MovementEvents, "beacon_movement_events", "Packets departing from the rolling RSSI baseline."},
		{&r.CaptureDuration, "beacon_capture_duration_seconds", "Time between the first and last packet."},
		{&r.SNR, "beacon_target_snr", "Target packets per non-target packet; NaN when undefined."},
	}
	for _, g := range gauges {
		if *g.dst, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help}), g.name); err != nil {
			return nil, err
		}
	}

	vecs := []struct {
		dst  **prometheus.GaugeVec
		name string
		help string
	}{
		{&r.DeviceDistance, "beacon_device_distance_meters", "Estimated distance per logical device."},
		{&r.DeviceRSSIStd, "beacon_device_rssi_std_dbm", "RSSI standard deviation per logical device."},
		{&r.DeviceErrorRatio, "beacon_device_distance_error_ratio", "Upper distance error as a fraction of the estimate."},
	}
	for _, v := range vecs {
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: v.name, Help: v.help}, []string{"device"})
		if *v.dst, err = registerGaugeVec(reg, vec, v.name); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Record sets the gauges from a summary. Per-device series from a previous
// run are dropped first.
func (r *Recorder) Record(sum *analysis.Summary) {
	r.Runs.Inc()
	r.Packets.Set(float64(sum.Capture.Packets))
	r.Addresses.Set(float64(sum.Capture.Addresses))
	r.Devices.Set(float64(len(sum.Devices)))
	r.NoiseAddresses.Set(float64(len(sum.NoiseAddresses)))
	r.RotationEvents.Set(float64(len(sum.Rotations)))
	r.MovementEvents.Set(float64(len(sum.Movement)))
	r.CaptureDuration.Set(sum.Capture.Duration.Seconds())
	r.SNR.Set(sum.Environment.SNR)

	r.DeviceDistance.Reset()
	r.DeviceRSSIStd.Reset()
	r.DeviceErrorRatio.Reset()
	for _, d := range sum.Devices {
		id := strconv.Itoa(d.Device.ID)
		setFinite(r.DeviceDistance, id, d.Estimate.Distance)
		setFinite(r.DeviceRSSIStd, id, d.Device.Stats.Std)
		setFinite(r.DeviceErrorRatio, id, d.Estimate.ErrorPercent/100)
	}
}

// WriteTextfile writes the gathered metrics in the text exposition format,
// atomically replacing path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// setFinite skips undefined values so per-device series only exist when
// there is something to report.
func setFinite(vec *prometheus.GaugeVec, device string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	vec.WithLabelValues(device).Set(v)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
