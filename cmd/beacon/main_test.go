package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/beacon.report/internal/capture"
	"github.com/banshee-data/beacon.report/internal/db"
	"github.com/banshee-data/beacon.report/internal/fsutil"
	"github.com/banshee-data/beacon.report/internal/monitoring"
	"github.com/banshee-data/beacon.report/internal/report"
	"github.com/banshee-data/beacon.report/internal/testutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// writeCapture writes a CSV capture of two five-address fingerprint groups.
func writeCapture(t *testing.T, dir string) string {
	t.Helper()
	obs := testutil.TwoDeviceCapture()

	path := filepath.Join(dir, "scan.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, capture.WriteCSV(f, obs))
	require.NoError(t, f.Close())
	return path
}

func TestParseFlags(t *testing.T) {
	cfg, showVersion := parseFlags([]string{"-input", "scan.pcap", "-out", "r", "-figures=false", "-all-addresses", "-version"})
	assert.True(t, showVersion)
	assert.Equal(t, "scan.pcap", cfg.Input)
	assert.Equal(t, "r", cfg.OutputDir)
	assert.False(t, cfg.Figures)
	assert.True(t, cfg.AllAddresses)

	cfg, _ = parseFlags([]string{"-db", "b.db", "-list-runs", "-limit", "5", "-positions", "pos.json"})
	assert.True(t, cfg.ListRuns)
	assert.Equal(t, 5, cfg.RunLimit)
	assert.Equal(t, "pos.json", cfg.PositionsPath)
	assert.True(t, cfg.storeCommand())

	cfg, _ = parseFlags(nil)
	assert.False(t, cfg.storeCommand())
	assert.Equal(t, 20, cfg.RunLimit)
	assert.Equal(t, "report", cfg.OutputDir)
	assert.True(t, cfg.Figures)
	assert.Equal(t, capture.FormatAuto, cfg.Format)
}

func TestRunRequiresInput(t *testing.T) {
	err := run(context.Background(), Config{})
	assert.ErrorContains(t, err, "-input or -capture-id")

	err = run(context.Background(), Config{CaptureID: "abc"})
	assert.ErrorContains(t, err, "needs -db")

	err = run(context.Background(), Config{ListCaptures: true})
	assert.ErrorContains(t, err, "need -db")
}

func TestRunWritesReport(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	dbPath := filepath.Join(dir, "beacon.db")
	metricsPath := filepath.Join(dir, "beacon.prom")

	cfg := Config{
		Input:       writeCapture(t, dir),
		OutputDir:   out,
		DBPath:      dbPath,
		MetricsFile: metricsPath,
		ExportCSV:   "observations.csv",
		Quiet:       true,
	}
	require.NoError(t, run(context.Background(), cfg))

	for _, name := range []string{report.SummaryFile, report.LimitationsFile, report.MethodsFile, report.RSSIChartFile, "observations.csv"} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	assert.NoFileExists(t, filepath.Join(out, report.RotationTimelineFile), "figures are off unless requested")

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "beacon_logical_devices 2")

	store, err := db.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	captures, err := db.NewCaptureStore(store, nil).List(ctx)
	require.NoError(t, err)
	require.Len(t, captures, 1)
	assert.Equal(t, 100, captures[0].Packets)

	runs, err := db.NewRunStore(store, nil).List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, captures[0].CaptureID, runs[0].CaptureID)
	assert.Equal(t, 2, runs[0].Devices)

	// Re-run from the stored capture.
	cfg = Config{DBPath: dbPath, CaptureID: captures[0].CaptureID, OutputDir: filepath.Join(dir, "again"), Quiet: true}
	require.NoError(t, run(ctx, cfg))
	runs, err = db.NewRunStore(store, nil).List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	// Read the stored results back.
	var listing bytes.Buffer
	require.NoError(t, runStore(ctx, Config{DBPath: dbPath, ListCaptures: true}, &listing))
	assert.Contains(t, listing.String(), captures[0].CaptureID)

	listing.Reset()
	require.NoError(t, runStore(ctx, Config{DBPath: dbPath, ListRuns: true, RunLimit: 1}, &listing))
	assert.Contains(t, listing.String(), "Runs (1)")
	assert.Contains(t, listing.String(), runs[0].RunID)

	listing.Reset()
	require.NoError(t, runStore(ctx, Config{DBPath: dbPath, ShowRun: runs[1].RunID}, &listing))
	assert.Contains(t, listing.String(), "Run "+runs[1].RunID)
	assert.Contains(t, listing.String(), "a1,a2,a3,a4,a5")

	listing.Reset()
	require.NoError(t, runStore(ctx, Config{DBPath: dbPath, DeleteCapture: captures[0].CaptureID}, &listing))
	assert.Contains(t, listing.String(), "Deleted capture")
	err = runStore(ctx, Config{DBPath: dbPath, DeleteCapture: captures[0].CaptureID}, &listing)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestRunConfigAndOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "analysis.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"dbscan_eps": 1.5, "target_only": true}`), 0o644))

	fsys := fsutil.OSFileSystem{}
	params, err := loadParams(fsys, Config{ConfigPath: cfgPath, AllAddresses: true})
	require.NoError(t, err)
	assert.Equal(t, 1.5, params.Fingerprint.Eps)
	assert.False(t, params.TargetOnly)
	assert.Empty(t, params.KnownPositions)

	_, err = loadParams(fsys, Config{ConfigPath: filepath.Join(dir, "missing.json")})
	assert.Error(t, err)
}

func TestLoadParamsKnownPositions(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("pos.json", []byte(`{"a1": [0, 0], "b1": [3, 4]}`), 0o644))
	require.NoError(t, mfs.WriteFile("bad.json", []byte(`{"a1": [0, 0], "": [1, 1]}`), 0o644))

	params, err := loadParams(mfs, Config{PositionsPath: "pos.json"})
	require.NoError(t, err)
	assert.Equal(t, [2]float64{3, 4}, params.KnownPositions["b1"])

	_, err = loadParams(mfs, Config{PositionsPath: "bad.json"})
	assert.Error(t, err)
	_, err = loadParams(mfs, Config{PositionsPath: "missing.json"})
	assert.ErrorContains(t, err, "read positions")
}

func TestRunWithKnownPositions(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	posPath := filepath.Join(dir, "positions.json")
	require.NoError(t, os.WriteFile(posPath, []byte(`{"a1": [1, 2]}`), 0o644))

	cfg := Config{Input: writeCapture(t, dir), OutputDir: out, PositionsPath: posPath, Quiet: true}
	require.NoError(t, run(context.Background(), cfg))

	data, err := os.ReadFile(filepath.Join(out, report.SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"known": true`)
}

func TestExportCSVRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	err := exportCSV(fsutil.OSFileSystem{}, dir, filepath.Join("..", "escape.csv"), nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "path traversal"), err.Error())
}
