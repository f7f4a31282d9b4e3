package report

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/beacon.report/internal/analysis"
	"github.com/banshee-data/beacon.report/internal/fsutil"
	"github.com/banshee-data/beacon.report/internal/monitoring"
	"github.com/banshee-data/beacon.report/internal/testutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// runSummary analyses two five-address groups plus an outlier and a
// single-packet address. Address a1 pauses for twenty minutes.
func runSummary(t *testing.T) *analysis.Summary {
	t.Helper()
	obs := testutil.TwoDeviceCapture()
	obs = append(obs, testutil.Series("n1", -40, 3, 10)...)
	obs = append(obs, testutil.Series("s1", -70, 0, 1)...)

	sum, err := analysis.Run(obs, analysis.DefaultParams())
	require.NoError(t, err)
	require.Len(t, sum.Devices, 2)
	return sum
}

func emptySummary(t *testing.T) *analysis.Summary {
	t.Helper()
	sum, err := analysis.Run(nil, analysis.DefaultParams())
	require.NoError(t, err)
	return sum
}

func decode(t *testing.T, sum *analysis.Summary) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sum))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	return doc
}

func TestWriteJSON_Run(t *testing.T) {
	doc := decode(t, runSummary(t))

	devices := doc["devices"].([]any)
	require.Len(t, devices, 2)

	quiet := devices[0].(map[string]any)
	assert.EqualValues(t, 0, quiet["device_id"])
	assert.Len(t, quiet["addresses"], 5)
	assert.Empty(t, quiet["rotation_events"])

	loud := devices[1].(map[string]any)
	assert.Len(t, loud["rotation_events"], 1)
	assert.Greater(t, loud["estimated_distance_m"].(float64), 0.0)

	bounds := loud["error_bounds"].(map[string]any)
	assert.Less(t, bounds["lower_m"].(float64), loud["estimated_distance_m"].(float64))
	assert.Greater(t, bounds["upper_m"].(float64), loud["estimated_distance_m"].(float64))

	// Ten packets cannot fill a 50-packet rolling window.
	variance := loud["variance_breakdown"].(map[string]any)
	assert.Nil(t, variance["rolling_std"])
	assert.NotNil(t, variance["overall_std"])

	assert.ElementsMatch(t, []any{"n1", "s1"}, doc["noise_addresses"])
	assert.Equal(t, []any{"s1"}, doc["insufficient_addresses"])

	env := doc["environment"].(map[string]any)
	assert.Nil(t, env["snr"], "no non-target packets gives +Inf, exported as null")

	rssi := quiet["rssi"].(map[string]any)
	assert.EqualValues(t, -82, rssi["min"])
	assert.EqualValues(t, -78, rssi["max"])

	assert.Len(t, doc["positions"], 12)
	capture := doc["capture"].(map[string]any)
	assert.Equal(t, "2025-10-01T09:00:00Z", capture["start"])
}

func TestWriteJSON_EmptySummary(t *testing.T) {
	doc := decode(t, emptySummary(t))

	assert.Equal(t, []any{}, doc["devices"])
	assert.Equal(t, []any{}, doc["noise_addresses"])
	assert.Equal(t, []any{}, doc["rotations"])
	assert.Equal(t, []any{}, doc["signatures"])
	assert.EqualValues(t, 0, doc["capture"].(map[string]any)["packets"])
	assert.Nil(t, doc["environment"].(map[string]any)["snr"])
	assert.Equal(t, []any{}, doc["positions"])

	capture := doc["capture"].(map[string]any)
	assert.Nil(t, capture["start"], "an empty capture has no start")
	assert.Nil(t, capture["end"])
}

func TestNum(t *testing.T) {
	assert.Nil(t, num(math.NaN()))
	assert.Nil(t, num(math.Inf(1)))
	assert.Nil(t, num(math.Inf(-1)))
	require.NotNil(t, num(-59))
	assert.Equal(t, -59.0, *num(-59))
}

func TestWriteLimitations(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLimitations(&buf, runSummary(t)))
	text := buf.String()

	assert.Contains(t, text, "This run covers 111 packets from 12 addresses")
	assert.Contains(t, text, "-59.0 dBm at 1 m and exponent 2.5")
	assert.Contains(t, text, "1 gap longer than 15m0s was treated\n   as a rotation.")
	// Ten addresses form the two devices; n1 and s1 stay unassigned.
	assert.Contains(t, text, "grouped 10 of 12 addresses\n   into 2 logical devices; 2 addresses stay unassigned, 1 of them")
	assert.NotContains(t, text, "n/a")
}

func TestWriteLimitations_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLimitations(&buf, emptySummary(t)))
	text := buf.String()

	assert.Contains(t, text, "This run covers 0 packets")
	assert.Contains(t, text, "standard deviation is n/a dBm")
	assert.Contains(t, text, "0 gaps longer than 15m0s were treated\n   as rotations.")
	assert.Contains(t, text, "grouped 0 of 0 addresses\n   into 0 logical devices; 0 addresses stay unassigned.")
}

func TestWriteMethods(t *testing.T) {
	obs := testutil.TwoDeviceCapture()
	noise := testutil.Series("x1", -90, 1, 25)
	for i := range noise {
		noise[i].IsTarget = false
		noise[i].DeviceType = "Microsoft"
	}
	sum, err := analysis.Run(append(obs, noise...), analysis.DefaultParams())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteMethods(&buf, sum))
	text := buf.String()

	assert.Contains(t, text, "It captured 125 packets from 11 unique\naddresses.")
	assert.Contains(t, text, "which marked 10 target\naddresses carrying 100 packets (80.0% of traffic).")
	assert.Contains(t, text, "remaining 25 packets from 1 other address are treated as")
	assert.Contains(t, text, "led by Microsoft (25 packets)")
	assert.Contains(t, text, "longer than 15m0s within one address")
	assert.Contains(t, text, "Signal-to-noise ratio: 4.000")
}

func TestWriteMethods_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMethods(&buf, emptySummary(t)))
	text := buf.String()

	assert.Contains(t, text, "over a 0.0-hour")
	assert.Contains(t, text, "Target packets:        0 (n/a%)")
	assert.Contains(t, text, "Signal-to-noise ratio: n/a")
	assert.NotContains(t, text, "led by")
}

func TestRotationTimelineIncludesUnassignedAddresses(t *testing.T) {
	sum := runSummary(t)

	addrs, rows := addressRows(sum)
	require.Len(t, addrs, 12)
	assert.Equal(t, []string{"n1", "s1"}, addrs[10:], "unassigned addresses follow the device members")
	assert.Equal(t, 11, rows["s1"])

	p, err := RotationTimeline(sum)
	require.NoError(t, err)
	assert.Equal(t, 11.5, p.Y.Max)
}

func TestFiguresRender(t *testing.T) {
	for name, sum := range map[string]*analysis.Summary{
		"run":   runSummary(t),
		"empty": emptySummary(t),
	} {
		t.Run(name, func(t *testing.T) {
			timeline, err := RotationTimeline(sum)
			require.NoError(t, err)
			bounds, err := ErrorBounds(sum)
			require.NoError(t, err)

			for _, p := range []struct {
				name string
				png  func() ([]byte, error)
			}{
				{"timeline", func() ([]byte, error) { return renderPNG(timeline, 6*vg.Inch, 4*vg.Inch) }},
				{"bounds", func() ([]byte, error) { return renderPNG(bounds, 6*vg.Inch, 4*vg.Inch) }},
			} {
				data, err := p.png()
				require.NoError(t, err, p.name)
				assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "%s is not a PNG", p.name)
			}
		})
	}
}

func TestErrorBoundsSkipsUndefinedBounds(t *testing.T) {
	sum := runSummary(t)
	sum.Devices[0].Estimate.ErrorLower = math.NaN()
	sum.Devices[0].Estimate.ErrorUpper = math.NaN()

	p, err := ErrorBounds(sum)
	require.NoError(t, err)
	assert.Equal(t, -0.5, p.X.Min)
	assert.Equal(t, 1.5, p.X.Max)
	assert.Equal(t, 0.0, p.Y.Min)

	data, err := renderPNG(p, 4*vg.Inch, 3*vg.Inch)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestRenderRSSIChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderRSSIChart(&buf, runSummary(t)))
	html := buf.String()

	assert.Contains(t, html, "RSSI by logical device")
	assert.Contains(t, html, "device 0")
	assert.Contains(t, html, "device 1")
	assert.Contains(t, html, "echarts")
}

func TestWriter(t *testing.T) {
	sum := runSummary(t)

	t.Run("all files", func(t *testing.T) {
		mfs := fsutil.NewMemoryFileSystem()
		w := &Writer{FS: mfs, Dir: "out", Prefix: "lab run #1", Figures: true}
		written, err := w.Write(sum)
		require.NoError(t, err)

		want := []string{
			filepath.Join("out", "lab_run_1_error_bounds.png"),
			filepath.Join("out", "lab_run_1_limitations.txt"),
			filepath.Join("out", "lab_run_1_methods.txt"),
			filepath.Join("out", "lab_run_1_rotation_timeline.png"),
			filepath.Join("out", "lab_run_1_rssi.html"),
			filepath.Join("out", "lab_run_1_summary.json"),
		}
		assert.Equal(t, want, mfs.Files("out"))
		assert.ElementsMatch(t, want, written)

		data, err := mfs.ReadFile(filepath.Join("out", "lab_run_1_summary.json"))
		require.NoError(t, err)
		assert.True(t, json.Valid(data))
	})

	t.Run("without figures", func(t *testing.T) {
		mfs := fsutil.NewMemoryFileSystem()
		w := &Writer{FS: mfs, Dir: "out"}
		_, err := w.Write(sum)
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join("out", LimitationsFile),
			filepath.Join("out", MethodsFile),
			filepath.Join("out", RSSIChartFile),
			filepath.Join("out", SummaryFile),
		}, mfs.Files("out"))
	})
}
