package db

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/banshee-data/beacon.report/internal/timeutil"
)

// StoreCLI provides the read-back and housekeeping operations behind the
// beacon command's -list-captures, -list-runs, -show-run and
// -delete-capture flags.
type StoreCLI struct {
	Captures *CaptureStore
	Runs     *RunStore
	Output   io.Writer
}

// NewStoreCLI creates a StoreCLI over db writing to output.
func NewStoreCLI(db *DB, clock timeutil.Clock, output io.Writer) *StoreCLI {
	return &StoreCLI{
		Captures: NewCaptureStore(db, clock),
		Runs:     NewRunStore(db, clock),
		Output:   output,
	}
}

// ListCaptures prints every stored capture, newest import first.
func (c *StoreCLI) ListCaptures(ctx context.Context) ([]*Capture, error) {
	captures, err := c.Captures.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}

	fmt.Fprintf(c.Output, "Captures (%d)\n", len(captures))
	fmt.Fprintf(c.Output, "============\n")
	for _, cp := range captures {
		fmt.Fprintf(c.Output, "  %s  %6d packets  %s  %s\n",
			cp.CaptureID, cp.Packets, span(cp.Start, cp.End), cp.Source)
	}
	return captures, nil
}

// ListRuns prints the most recent runs. A non-positive limit lists all.
func (c *StoreCLI) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	runs, err := c.Runs.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	fmt.Fprintf(c.Output, "Runs (%d)\n", len(runs))
	fmt.Fprintf(c.Output, "========\n")
	for _, r := range runs {
		captureID := r.CaptureID
		if captureID == "" {
			captureID = "-"
		}
		fmt.Fprintf(c.Output, "  %s  %s  capture %s  %d devices  %d rotations  %d noise\n",
			r.RunID, r.CreatedAt.UTC().Format(time.RFC3339), captureID,
			r.Devices, r.RotationEvents, len(r.NoiseAddresses))
	}
	return runs, nil
}

// ShowRun prints one run with its logical devices.
func (c *StoreCLI) ShowRun(ctx context.Context, runID string) (*Run, []DeviceRecord, error) {
	run, err := c.Runs.Get(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	devices, err := c.Runs.Devices(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load devices for run %s: %w", runID, err)
	}

	fmt.Fprintf(c.Output, "Run %s\n", run.RunID)
	fmt.Fprintf(c.Output, "  created:   %s\n", run.CreatedAt.UTC().Format(time.RFC3339))
	if run.CaptureID != "" {
		fmt.Fprintf(c.Output, "  capture:   %s\n", run.CaptureID)
	}
	fmt.Fprintf(c.Output, "  packets:   %d from %d addresses\n", run.Packets, run.Addresses)
	fmt.Fprintf(c.Output, "  rotations: %d\n", run.RotationEvents)
	if len(run.NoiseAddresses) > 0 {
		fmt.Fprintf(c.Output, "  noise:     %s\n", strings.Join(run.NoiseAddresses, ", "))
	}
	fmt.Fprintf(c.Output, "\n  %-6s %-8s %-10s %-10s %s\n", "device", "packets", "mean dBm", "distance", "bounds")
	for _, d := range devices {
		fmt.Fprintf(c.Output, "  %-6d %-8d %-10s %-10s [%s, %s] m  %s\n",
			d.DeviceID, d.Packets, orNA(d.MeanRSSI, 1), orNA(d.DistanceM, 2),
			orNA(d.LowerM, 2), orNA(d.UpperM, 2), strings.Join(d.Addresses, ","))
	}
	return run, devices, nil
}

// DeleteCapture removes a capture and its observations. Runs that referred
// to it are kept with no capture.
func (c *StoreCLI) DeleteCapture(ctx context.Context, captureID string) error {
	if err := c.Captures.Delete(ctx, captureID); err != nil {
		return fmt.Errorf("failed to delete capture %s: %w", captureID, err)
	}
	fmt.Fprintf(c.Output, "Deleted capture %s\n", captureID)
	return nil
}

func span(start, end time.Time) string {
	if start.IsZero() {
		return "(empty)"
	}
	return fmt.Sprintf("%s +%s", start.UTC().Format(time.RFC3339), end.Sub(start).Round(time.Second))
}

func orNA(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", prec, v)
}
