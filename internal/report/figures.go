package report

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/beacon.report/internal/analysis"
	"github.com/banshee-data/beacon.report/internal/ble"
)

var (
	rotationColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	packetColor   = color.RGBA{R: 31, G: 119, B: 180, A: 255}
)

// addressRows orders the addresses reconciliation ran over: device
// members by device then address, followed by the unassigned addresses.
func addressRows(sum *analysis.Summary) ([]string, map[string]int) {
	var addrs []string
	rows := make(map[string]int, len(sum.Timelines))
	add := func(a string) {
		if _, ok := rows[a]; !ok {
			rows[a] = len(addrs)
			addrs = append(addrs, a)
		}
	}
	for _, d := range sum.Devices {
		members := append([]string(nil), d.Device.Addresses...)
		sort.Strings(members)
		for _, a := range members {
			add(a)
		}
	}
	for _, tl := range sum.Timelines {
		add(tl.Address)
	}
	return addrs, rows
}

// RotationTimeline plots every packet as a point on its address's row
// against capture time, with rotation boundaries marked. Unassigned
// addresses are drawn below the device members.
func RotationTimeline(sum *analysis.Summary) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Address timeline and rotation boundaries"
	p.X.Label.Text = "Time (UTC)"
	p.Y.Label.Text = "Address"
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04"}

	addrs, rows := addressRows(sum)
	if len(addrs) == 0 {
		return p, nil
	}

	var pkts plotter.XYs
	for _, tl := range sum.Timelines {
		row := rows[tl.Address]
		for _, o := range tl.Observations {
			pkts = append(pkts, plotter.XY{X: unixSeconds(o), Y: float64(row)})
		}
	}
	if len(pkts) > 0 {
		sc, err := plotter.NewScatter(pkts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = packetColor
		sc.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(sc)
		p.Legend.Add("packet", sc)
	}

	var bounds plotter.XYs
	for _, ev := range sum.Rotations {
		if row, ok := rows[ev.Address]; ok {
			bounds = append(bounds, plotter.XY{X: float64(ev.Boundary.UnixNano()) / 1e9, Y: float64(row)})
		}
	}
	if len(bounds) > 0 {
		sc, err := plotter.NewScatter(bounds)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = rotationColor
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add("rotation boundary", sc)
	}

	ticks := make([]plot.Tick, len(addrs))
	for i, a := range addrs {
		ticks[i] = plot.Tick{Value: float64(i), Label: a}
	}
	p.Y.Tick.Marker = plot.ConstantTicks(ticks)
	p.Y.Min, p.Y.Max = -0.5, float64(len(addrs))-0.5
	p.Legend.Top = true
	return p, nil
}

func unixSeconds(o ble.Observation) float64 {
	return float64(o.Timestamp.UnixNano()) / 1e9
}

// distanceBars adapts device estimates to plotter.XYer and YErrorer.
type distanceBars []ble.DistanceEstimate

func (b distanceBars) Len() int { return len(b) }

func (b distanceBars) XY(i int) (float64, float64) {
	return float64(b[i].DeviceID), b[i].Distance
}

func (b distanceBars) YError(i int) (float64, float64) {
	return b[i].ErrorLower, b[i].ErrorUpper
}

// ErrorBounds plots each device's estimated distance with its asymmetric
// one-standard-deviation bounds. Devices without finite bounds are drawn
// without error bars.
func ErrorBounds(sum *analysis.Summary) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Estimated distance per logical device"
	p.X.Label.Text = "Device"
	p.Y.Label.Text = "Distance (m)"

	var bounded distanceBars
	var pts plotter.XYs
	ticks := make([]plot.Tick, 0, len(sum.Devices))
	for _, d := range sum.Devices {
		est := d.Estimate
		est.DeviceID = d.Device.ID
		if !finite(est.Distance) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(est.DeviceID), Y: est.Distance})
		ticks = append(ticks, plot.Tick{Value: float64(est.DeviceID), Label: fmt.Sprintf("%d", est.DeviceID)})
		if finite(est.ErrorLower) && finite(est.ErrorUpper) {
			bounded = append(bounded, est)
		}
	}
	if len(pts) == 0 {
		return p, nil
	}

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyle.Color = packetColor
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	sc.GlyphStyle.Radius = vg.Points(3)
	p.Add(sc)

	if len(bounded) > 0 {
		bars, err := plotter.NewYErrorBars(bounded)
		if err != nil {
			return nil, err
		}
		bars.LineStyle.Color = rotationColor
		bars.LineStyle.Width = vg.Points(1)
		p.Add(bars)
	}

	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	xmin, xmax, _, _ := plotter.XYRange(pts)
	p.X.Min, p.X.Max = xmin-0.5, xmax+0.5
	p.Y.Min = 0
	return p, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// WritePNG renders p at the given size as PNG.
func WritePNG(w io.Writer, p *plot.Plot, width, height vg.Length) error {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

func renderPNG(p *plot.Plot, width, height vg.Length) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, p, width, height); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
