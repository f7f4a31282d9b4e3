package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/banshee-data/beacon.report/internal/analysis"
	"github.com/banshee-data/beacon.report/internal/ble"
)

// narrativeFuncs are shared by the text report templates.
var narrativeFuncs = template.FuncMap{
	"f0": func(v float64) string { return fixed(v, 0) },
	"f1": func(v float64) string { return fixed(v, 1) },
	"f3": func(v float64) string { return fixed(v, 3) },
	"plural": func(n int, one, many string) string {
		if n == 1 {
			return one
		}
		return many
	},
}

var limitationsTmpl = template.Must(template.New("limitations").Funcs(narrativeFuncs).Parse(strings.TrimLeft(`
Methodological limitations

This run covers {{.Packets}} packets from {{.Addresses}} addresses over {{.Duration}}.

1. RSSI measurement variance. The mean per-device standard deviation is {{f1 .MeanStd}} dBm.
   Indoor BLE commonly varies by 3-8 dBm from multipath, obstacles, 2.4 GHz crowding
   and antenna orientation. The rolling and short-term figures describe the same
   spread at different time scales and do not add up to the overall figure.

2. Distance accuracy. Distances assume a log-distance path-loss model with
   {{f1 .ReferenceRSSI}} dBm at 1 m and exponent {{f1 .Exponent}}. One standard deviation of RSSI
   gives a mean upper error of {{f0 .MeanErrorPercent}}%. These are room-scale zone
   estimates, not positions.

3. Address rotation. {{.RotationEvents}} {{plural .RotationEvents "gap" "gaps"}} longer than {{.Threshold}} {{plural .RotationEvents "was" "were"}} treated
   as {{plural .RotationEvents "a rotation" "rotations"}}. Fingerprint clustering grouped {{.Reconciled}} of {{.Considered}} addresses
   into {{.Devices}} logical {{plural .Devices "device" "devices"}}; {{.Noise}} {{plural .Noise "address stays" "addresses stay"}} unassigned{{if .Insufficient}}, {{.Insufficient}} of them
   with too few packets to fingerprint{{end}}. Devices with similar signal statistics
   at similar range can merge.

4. Controlled environment. A single capture location does not reflect moving
   obstacles, changing interference or larger device populations.
`, "\n")))

type limitationsData struct {
	Packets          int
	Addresses        int
	Duration         time.Duration
	MeanStd          float64
	ReferenceRSSI    float64
	Exponent         float64
	MeanErrorPercent float64
	RotationEvents   int
	Threshold        time.Duration
	// Reconciled addresses belong to a device; Considered adds the noise.
	Reconciled   int
	Considered   int
	Devices      int
	Noise        int
	Insufficient int
}

// WriteLimitations renders the limitations narrative for a summary.
// Figures without data print as n/a.
func WriteLimitations(w io.Writer, sum *analysis.Summary) error {
	data := limitationsData{
		Packets:          sum.Capture.Packets,
		Addresses:        sum.Capture.Addresses,
		Duration:         sum.Capture.Duration.Round(time.Second),
		ReferenceRSSI:    sum.Params.Model.ReferenceRSSI,
		Exponent:         sum.Params.Model.Exponent,
		RotationEvents:   len(sum.Rotations),
		Threshold:        sum.Params.RotationThreshold,
		Devices:          len(sum.Devices),
		Noise:            len(sum.NoiseAddresses),
		Insufficient:     len(sum.Insufficient),
		MeanStd:          math.NaN(),
		MeanErrorPercent: math.NaN(),
	}

	var stds, errs []float64
	for _, d := range sum.Devices {
		data.Reconciled += len(d.Device.Addresses)
		stds = append(stds, d.Variance.OverallStd)
		errs = append(errs, d.Estimate.ErrorPercent)
	}
	data.Considered = data.Reconciled + data.Noise
	data.MeanStd = ble.FiniteMean(stds)
	data.MeanErrorPercent = ble.FiniteMean(errs)

	return limitationsTmpl.Execute(w, data)
}

func fixed(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", prec, v)
}
