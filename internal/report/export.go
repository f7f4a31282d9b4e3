package report

import (
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/banshee-data/beacon.report/internal/analysis"
	"github.com/banshee-data/beacon.report/internal/ble"
)

// Export is the summary.json document. Float fields are pointers so NaN
// and infinities serialise as null.
type Export struct {
	Capture               CaptureExport       `json:"capture"`
	Params                analysis.Params     `json:"params"`
	Devices               []DeviceExport      `json:"devices"`
	NoiseAddresses        []string            `json:"noise_addresses"`
	InsufficientAddresses []string            `json:"insufficient_addresses"`
	Rotations             []ble.RotationEvent `json:"rotations"`
	Signatures            []SignatureExport   `json:"signatures"`
	Environment           EnvironmentExport   `json:"environment"`
	Movement              []ble.MovementEvent `json:"movement_events"`
	Positions             []ble.Position      `json:"positions"`
}

type CaptureExport struct {
	Packets         int        `json:"packets"`
	Addresses       int        `json:"addresses"`
	TargetAddresses int        `json:"target_addresses"`
	Start           *time.Time `json:"start"`
	End             *time.Time `json:"end"`
	DurationSeconds float64    `json:"duration_s"`
}

type StatsExport struct {
	Mean   *float64 `json:"mean"`
	Std    *float64 `json:"std"`
	Median *float64 `json:"median"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
}

type ErrorBoundsExport struct {
	Lower        *float64 `json:"lower_m"`
	Upper        *float64 `json:"upper_m"`
	ErrorLower   *float64 `json:"error_lower_m"`
	ErrorUpper   *float64 `json:"error_upper_m"`
	ErrorPercent *float64 `json:"error_percent"`
}

type VarianceExport struct {
	OverallStd   *float64 `json:"overall_std"`
	RollingStd   *float64 `json:"rolling_std"`
	ShortTermStd *float64 `json:"short_term_std"`
	Packets      int      `json:"packets"`
	Addresses    int      `json:"addresses"`
}

type DeviceExport struct {
	DeviceID          int                 `json:"device_id"`
	Addresses         []string            `json:"addresses"`
	Packets           int                 `json:"packets"`
	RSSI              StatsExport         `json:"rssi"`
	RotationEvents    []ble.RotationEvent `json:"rotation_events"`
	EstimatedDistance *float64            `json:"estimated_distance_m"`
	ErrorBounds       ErrorBoundsExport   `json:"error_bounds"`
	VarianceBreakdown VarianceExport      `json:"variance_breakdown"`
}

type SignatureExport struct {
	Address         string         `json:"address"`
	DeviceType      string         `json:"device_type"`
	IsTarget        bool           `json:"is_target_device"`
	Packets         int            `json:"packets"`
	RSSI            StatsExport    `json:"rssi"`
	IntervalMean    *float64       `json:"interval_mean_s"`
	IntervalMax     *float64       `json:"interval_max_s"`
	DurationSeconds float64        `json:"duration_s"`
	StatusBytes     map[string]int `json:"status_bytes,omitempty"`
}

type DeviceTypeExport struct {
	DeviceType string      `json:"device_type"`
	Addresses  int         `json:"addresses"`
	Packets    int         `json:"packets"`
	RSSI       StatsExport `json:"rssi"`
}

type EnvironmentExport struct {
	DeviceTypes   []DeviceTypeExport `json:"device_types"`
	TargetPackets int                `json:"target_packets"`
	NoisePackets  int                `json:"noise_packets"`
	SNR           *float64           `json:"snr"`
}

// num maps a float to a JSON-safe pointer; NaN and ±Inf become nil.
func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func stats(s ble.SignalStats) StatsExport {
	return StatsExport{
		Mean:   num(s.Mean),
		Std:    num(s.Std),
		Median: num(s.Median),
		Min:    num(s.Min),
		Max:    num(s.Max),
	}
}

// timestamp maps the zero time to nil so an empty capture has no bounds.
func timestamp(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// NewExport converts a summary into its export form. Slices are never nil
// so empty results serialise as [] rather than null.
func NewExport(sum *analysis.Summary) *Export {
	e := &Export{
		Capture: CaptureExport{
			Packets:         sum.Capture.Packets,
			Addresses:       sum.Capture.Addresses,
			TargetAddresses: sum.Capture.Targets,
			Start:           timestamp(sum.Capture.Start),
			End:             timestamp(sum.Capture.End),
			DurationSeconds: sum.Capture.Duration.Seconds(),
		},
		Params:                sum.Params,
		Devices:               make([]DeviceExport, 0, len(sum.Devices)),
		NoiseAddresses:        nonNil(sum.NoiseAddresses),
		InsufficientAddresses: nonNil(sum.Insufficient),
		Rotations:             nonNil(sum.Rotations),
		Signatures:            make([]SignatureExport, 0, len(sum.Signatures)),
		Movement:              nonNil(sum.Movement),
		Positions:             nonNil(sum.Positions),
		Environment: EnvironmentExport{
			DeviceTypes:   make([]DeviceTypeExport, 0, len(sum.Environment.Types)),
			TargetPackets: sum.Environment.TargetPackets,
			NoisePackets:  sum.Environment.NoisePackets,
			SNR:           num(sum.Environment.SNR),
		},
	}

	for _, d := range sum.Devices {
		est := d.Estimate
		e.Devices = append(e.Devices, DeviceExport{
			DeviceID:          d.Device.ID,
			Addresses:         nonNil(d.Device.Addresses),
			Packets:           d.Device.Packets,
			RSSI:              stats(d.Device.Stats),
			RotationEvents:    nonNil(d.RotationEvents),
			EstimatedDistance: num(est.Distance),
			ErrorBounds: ErrorBoundsExport{
				Lower:        num(est.Lower),
				Upper:        num(est.Upper),
				ErrorLower:   num(est.ErrorLower),
				ErrorUpper:   num(est.ErrorUpper),
				ErrorPercent: num(est.ErrorPercent),
			},
			VarianceBreakdown: VarianceExport{
				OverallStd:   num(d.Variance.OverallStd),
				RollingStd:   num(d.Variance.RollingStd),
				ShortTermStd: num(d.Variance.ShortTermStd),
				Packets:      d.Variance.Packets,
				Addresses:    d.Variance.Addresses,
			},
		})
	}

	for _, s := range sum.Signatures {
		e.Signatures = append(e.Signatures, SignatureExport{
			Address:         s.Address,
			DeviceType:      s.DeviceType,
			IsTarget:        s.IsTarget,
			Packets:         s.Packets,
			RSSI:            stats(s.RSSI),
			IntervalMean:    num(s.IntervalAvg),
			IntervalMax:     num(s.IntervalMax),
			DurationSeconds: s.Duration.Seconds(),
			StatusBytes:     s.StatusBytes,
		})
	}

	for _, t := range sum.Environment.Types {
		e.Environment.DeviceTypes = append(e.Environment.DeviceTypes, DeviceTypeExport{
			DeviceType: t.DeviceType,
			Addresses:  t.Addresses,
			Packets:    t.Packets,
			RSSI:       stats(t.RSSI),
		})
	}
	return e
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// WriteJSON writes the indented summary.json document.
func WriteJSON(w io.Writer, sum *analysis.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewExport(sum))
}
