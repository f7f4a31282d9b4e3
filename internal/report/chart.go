package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/beacon.report/internal/analysis"
)

// echartsAssetsHost serves the echarts script; the HTML is otherwise
// self-contained.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderRSSIChart writes an interactive scatter of RSSI against time since
// capture start, one series per logical device, with each device's
// estimated distance in the series name.
func RenderRSSIChart(w io.Writer, sum *analysis.Summary) error {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "BLE RSSI by logical device", Width: "1100px", Height: "640px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "RSSI by logical device", Subtitle: fmt.Sprintf("packets=%d devices=%d noise=%d", sum.Capture.Packets, len(sum.Devices), len(sum.NoiseAddresses))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time since start (min)", NameLocation: "middle", NameGap: 25, Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "RSSI (dBm)", NameLocation: "middle", NameGap: 40, Type: "value", Scale: opts.Bool(true)}),
	)

	start := sum.Capture.Start
	for _, d := range sum.Devices {
		data := make([]opts.ScatterData, 0, len(d.Device.Observations))
		for _, o := range d.Device.Observations {
			mins := o.Timestamp.Sub(start).Minutes()
			data = append(data, opts.ScatterData{Value: []interface{}{round2(mins), o.RSSI}, Name: o.Address})
		}
		name := fmt.Sprintf("device %d (%s m)", d.Device.ID, fixed(d.Estimate.Distance, 2))
		scatter.AddSeries(name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render rssi chart: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
