// Command beacon reconciles rotating BLE addresses in a capture into
// logical devices and writes a distance and variance report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/beacon.report/internal/analysis"
	"github.com/banshee-data/beacon.report/internal/ble"
	"github.com/banshee-data/beacon.report/internal/capture"
	"github.com/banshee-data/beacon.report/internal/config"
	"github.com/banshee-data/beacon.report/internal/db"
	"github.com/banshee-data/beacon.report/internal/fsutil"
	"github.com/banshee-data/beacon.report/internal/metrics"
	"github.com/banshee-data/beacon.report/internal/monitoring"
	"github.com/banshee-data/beacon.report/internal/report"
	"github.com/banshee-data/beacon.report/internal/security"
	"github.com/banshee-data/beacon.report/internal/timeutil"
	"github.com/banshee-data/beacon.report/internal/version"
)

// Config holds the command-line options.
type Config struct {
	Input         string
	Format        string
	ConfigPath    string
	PositionsPath string
	OutputDir     string
	Prefix        string
	DBPath        string
	CaptureID     string
	MetricsFile   string
	ExportCSV     string
	Figures       bool
	AllAddresses  bool
	Quiet         bool

	// Database read-back; each needs -db and skips analysis.
	ListCaptures  bool
	ListRuns      bool
	RunLimit      int
	ShowRun       string
	DeleteCapture string
}

// storeCommand reports whether cfg asks for a database operation instead
// of an analysis.
func (c Config) storeCommand() bool {
	return c.ListCaptures || c.ListRuns || c.ShowRun != "" || c.DeleteCapture != ""
}

func main() {
	cfg, showVersion := parseFlags(os.Args[1:])
	if showVersion {
		fmt.Println(version.String())
		return
	}

	if cfg.Quiet {
		monitoring.SetLogger(nil)
	}

	if err := run(context.Background(), cfg); err != nil {
		log.Fatalf("beacon: %v", err)
	}
}

func parseFlags(args []string) (Config, bool) {
	var cfg Config
	var showVersion bool

	fs := flag.NewFlagSet("beacon", flag.ExitOnError)
	fs.StringVar(&cfg.Input, "input", "", "Capture file (.csv, .pcap or .pcapng)")
	fs.StringVar(&cfg.Format, "format", capture.FormatAuto, "Capture format: csv or pcap (default: from extension)")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Analysis config JSON (default: built-in defaults)")
	fs.StringVar(&cfg.PositionsPath, "positions", "", `Known positions JSON {"ADDRESS": [x, y], ...} in metres (default: estimate relative positions)`)
	fs.StringVar(&cfg.OutputDir, "out", "report", "Output directory for the report")
	fs.StringVar(&cfg.Prefix, "prefix", "", "Optional prefix for report file names")
	fs.StringVar(&cfg.DBPath, "db", "", "SQLite database for captures and runs (optional)")
	fs.StringVar(&cfg.CaptureID, "capture-id", "", "Analyse a capture already stored in -db instead of -input")
	fs.StringVar(&cfg.MetricsFile, "metrics-textfile", "", "Write run metrics in Prometheus text format to this file")
	fs.StringVar(&cfg.ExportCSV, "export-csv", "", "Also write the loaded observations as CSV (file name inside -out)")
	fs.BoolVar(&cfg.Figures, "figures", true, "Render PNG figures")
	fs.BoolVar(&cfg.AllAddresses, "all-addresses", false, "Reconcile every address, not only target devices")
	fs.BoolVar(&cfg.Quiet, "q", false, "Suppress progress logging")
	fs.BoolVar(&cfg.ListCaptures, "list-captures", false, "List captures stored in -db and exit")
	fs.BoolVar(&cfg.ListRuns, "list-runs", false, "List analysis runs stored in -db and exit")
	fs.IntVar(&cfg.RunLimit, "limit", 20, "Maximum runs for -list-runs (0 for all)")
	fs.StringVar(&cfg.ShowRun, "show-run", "", "Print a stored run and its devices, then exit")
	fs.StringVar(&cfg.DeleteCapture, "delete-capture", "", "Delete a stored capture and its observations, then exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.Parse(args)

	return cfg, showVersion
}

func run(ctx context.Context, cfg Config) error {
	if cfg.storeCommand() {
		return runStore(ctx, cfg, os.Stdout)
	}
	if cfg.Input == "" && cfg.CaptureID == "" {
		return errors.New("one of -input or -capture-id is required")
	}
	if cfg.CaptureID != "" && cfg.DBPath == "" {
		return errors.New("-capture-id needs -db")
	}

	fsys := fsutil.OSFileSystem{}
	params, err := loadParams(fsys, cfg)
	if err != nil {
		return err
	}

	var store *db.DB
	if cfg.DBPath != "" {
		if store, err = db.Open(cfg.DBPath); err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()
	}
	clock := timeutil.RealClock{}

	var obs []ble.Observation
	captureID := cfg.CaptureID
	if captureID != "" {
		if obs, err = db.NewCaptureStore(store, clock).Observations(ctx, captureID); err != nil {
			return fmt.Errorf("load capture: %w", err)
		}
	} else {
		if obs, err = capture.Load(ctx, cfg.Input, cfg.Format); err != nil {
			return err
		}
		if store != nil {
			c, err := db.NewCaptureStore(store, clock).Import(ctx, cfg.Input, obs)
			if err != nil {
				return fmt.Errorf("import capture: %w", err)
			}
			captureID = c.CaptureID
			log.Printf("Imported %d observations as capture %s", c.Packets, captureID)
		}
	}

	start := clock.Now()
	sum, err := analysis.Run(obs, params)
	if err != nil {
		return err
	}
	if !cfg.Quiet {
		log.Printf("Analysed %d observations in %s", len(obs), clock.Since(start).Round(time.Millisecond))
		printSummary(sum)
	}

	w := report.NewWriter(cfg.OutputDir)
	w.Prefix = cfg.Prefix
	w.Figures = cfg.Figures
	if _, err := w.Write(sum); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if cfg.ExportCSV != "" {
		if err := exportCSV(fsys, cfg.OutputDir, cfg.ExportCSV, obs); err != nil {
			return err
		}
	}

	if store != nil {
		r, err := db.NewRunStore(store, clock).Record(ctx, captureID, sum)
		if err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		log.Printf("Recorded run %s", r.RunID)
	}

	if cfg.MetricsFile != "" {
		rec, err := metrics.NewRecorder(prometheus.NewRegistry())
		if err != nil {
			return err
		}
		rec.Record(sum)
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
	}
	return nil
}

// runStore performs the database read-back and housekeeping flags.
func runStore(ctx context.Context, cfg Config, out io.Writer) error {
	if cfg.DBPath == "" {
		return errors.New("-list-captures, -list-runs, -show-run and -delete-capture need -db")
	}
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	cli := db.NewStoreCLI(store, timeutil.RealClock{}, out)
	switch {
	case cfg.DeleteCapture != "":
		return cli.DeleteCapture(ctx, cfg.DeleteCapture)
	case cfg.ShowRun != "":
		_, _, err = cli.ShowRun(ctx, cfg.ShowRun)
	case cfg.ListRuns:
		_, err = cli.ListRuns(ctx, cfg.RunLimit)
	default:
		_, err = cli.ListCaptures(ctx)
	}
	return err
}

func loadParams(fsys fsutil.FileSystem, cfg Config) (analysis.Params, error) {
	var ac *config.AnalysisConfig
	if cfg.ConfigPath != "" {
		var err error
		if ac, err = config.LoadAnalysisConfig(cfg.ConfigPath); err != nil {
			return analysis.Params{}, err
		}
	}
	params := analysis.ParamsFromConfig(ac)
	if cfg.AllAddresses {
		params.TargetOnly = false
	}
	if cfg.PositionsPath != "" {
		data, err := fsys.ReadFile(cfg.PositionsPath)
		if err != nil {
			return analysis.Params{}, fmt.Errorf("read positions: %w", err)
		}
		if params.KnownPositions, err = config.ParseKnownPositions(data); err != nil {
			return analysis.Params{}, err
		}
	}
	return params, nil
}

func exportCSV(fsys fsutil.FileSystem, dir, name string, obs []ble.Observation) error {
	path := filepath.Join(dir, name)
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	if err := capture.WriteCSV(f, obs); err != nil {
		f.Close()
		return fmt.Errorf("export csv: %w", err)
	}
	return f.Close()
}

func printSummary(sum *analysis.Summary) {
	log.Printf("Capture: %d packets, %d addresses, %s", sum.Capture.Packets, sum.Capture.Addresses, sum.Capture.Duration)
	log.Printf("Rotations: %d  Logical devices: %d  Noise addresses: %d",
		len(sum.Rotations), len(sum.Devices), len(sum.NoiseAddresses))
	for _, d := range sum.Devices {
		log.Printf("  device %d: %d addresses, %d packets, mean %.1f dBm, %.2f m [%.2f, %.2f]",
			d.Device.ID, len(d.Device.Addresses), d.Device.Packets, d.Device.Stats.Mean,
			d.Estimate.Distance, d.Estimate.Lower, d.Estimate.Upper)
	}
}
