package report

import (
	"io"
	"math"
	"strings"
	"text/template"

	"github.com/banshee-data/beacon.report/internal/analysis"
)

var methodsTmpl = template.Must(template.New("methods").Funcs(narrativeFuncs).Parse(strings.TrimLeft(`
Methods

Passive BLE monitoring and device classification

A passive receiver recorded BLE advertising packets over a {{f1 .Hours}}-hour
observation period. It captured {{.Packets}} packets from {{.Addresses}} unique
{{plural .Addresses "address" "addresses"}}. Devices were classified from the manufacturer
company identifier and the advertised status byte, which marked {{.Targets}} target
{{plural .Targets "address" "addresses"}} carrying {{.TargetPackets}} packets ({{f1 .TargetPercent}}% of traffic). The
remaining {{.NoisePackets}} packets from {{.NoiseAddresses}} other {{plural .NoiseAddresses "address" "addresses"}} are treated as
environmental signal pollution{{if .TopType}}, led by {{.TopType}} ({{.TopTypePackets}} packets){{end}}.

Each packet carries the advertiser address, received signal strength, a
timestamp, the manufacturer data and, when present, the local name. Address
rotation was detected as a silence longer than {{.Threshold}} within one address.
Addresses were then grouped into logical devices by DBSCAN over their mean and
standard deviation of RSSI (eps {{f1 .Eps}} dBm, {{.MinPts}} minimum points), and each
device's distance was estimated from a log-distance path-loss model.

Collection was passive: devices were never scanned actively, modified or connected to.

Key metrics
  Observation period:    {{f1 .Hours}} h
  Target addresses:      {{.Targets}}
  Packets captured:      {{.Packets}}
  Target packets:        {{.TargetPackets}} ({{f1 .TargetPercent}}%)
  Other addresses:       {{.NoiseAddresses}}
  Signal-to-noise ratio: {{f3 .SNR}}
`, "\n")))

type methodsData struct {
	Hours          float64
	Packets        int
	Addresses      int
	Targets        int
	TargetPackets  int
	TargetPercent  float64
	NoisePackets   int
	NoiseAddresses int
	TopType        string
	TopTypePackets int
	Threshold      string
	Eps            float64
	MinPts         int
	SNR            float64
}

// WriteMethods renders the data-collection methods narrative and its key
// metrics. Ratios without data print as n/a.
func WriteMethods(w io.Writer, sum *analysis.Summary) error {
	c, env := sum.Capture, sum.Environment
	data := methodsData{
		Hours:          c.Duration.Hours(),
		Packets:        c.Packets,
		Addresses:      c.Addresses,
		Targets:        c.Targets,
		TargetPackets:  env.TargetPackets,
		TargetPercent:  math.NaN(),
		NoisePackets:   env.NoisePackets,
		NoiseAddresses: c.Addresses - c.Targets,
		Threshold:      sum.Params.RotationThreshold.String(),
		Eps:            sum.Params.Fingerprint.Eps,
		MinPts:         sum.Params.Fingerprint.MinPts,
		SNR:            env.SNR,
	}
	if c.Packets > 0 {
		data.TargetPercent = 100 * float64(env.TargetPackets) / float64(c.Packets)
	}
	// Types are ordered by packet count; the first non-target type is the
	// loudest source of pollution.
	for _, t := range sum.Environment.Types {
		if t.DeviceType != "" && !isTargetType(sum, t.DeviceType) {
			data.TopType, data.TopTypePackets = t.DeviceType, t.Packets
			break
		}
	}
	return methodsTmpl.Execute(w, data)
}

// isTargetType reports whether any target signature has the device type.
func isTargetType(sum *analysis.Summary, deviceType string) bool {
	for _, s := range sum.Signatures {
		if s.IsTarget && s.DeviceType == deviceType {
			return true
		}
	}
	return false
}
