package report

import (
	"bytes"
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/beacon.report/internal/analysis"
	"github.com/banshee-data/beacon.report/internal/fsutil"
	"github.com/banshee-data/beacon.report/internal/monitoring"
	"github.com/banshee-data/beacon.report/internal/security"
)

const (
	SummaryFile          = "summary.json"
	LimitationsFile      = "limitations.txt"
	MethodsFile          = "methods.txt"
	RSSIChartFile        = "rssi.html"
	RotationTimelineFile = "rotation_timeline.png"
	ErrorBoundsFile      = "error_bounds.png"
)

// Writer writes the report files for a summary into Dir.
type Writer struct {
	FS  fsutil.FileSystem
	Dir string
	// Prefix, when set, is sanitised and prepended to every file name.
	Prefix string
	// Figures enables the PNG figures, the slowest part of a report.
	Figures bool
}

// NewWriter returns a Writer on the real filesystem.
func NewWriter(dir string) *Writer {
	return &Writer{FS: fsutil.OSFileSystem{}, Dir: dir, Figures: true}
}

func (w *Writer) path(name string) string {
	if w.Prefix != "" {
		name = security.SanitizeFilename(w.Prefix) + "_" + name
	}
	return filepath.Join(w.Dir, name)
}

// Write renders every report file and returns the paths written.
func (w *Writer) Write(sum *analysis.Summary) ([]string, error) {
	if err := w.FS.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	var written []string
	emit := func(name string, data []byte) error {
		p := w.path(name)
		if err := w.FS.WriteFile(p, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
		written = append(written, p)
		return nil
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, sum); err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	if err := emit(SummaryFile, buf.Bytes()); err != nil {
		return nil, err
	}

	buf.Reset()
	if err := WriteLimitations(&buf, sum); err != nil {
		return nil, fmt.Errorf("render limitations: %w", err)
	}
	if err := emit(LimitationsFile, buf.Bytes()); err != nil {
		return nil, err
	}

	buf.Reset()
	if err := WriteMethods(&buf, sum); err != nil {
		return nil, fmt.Errorf("render methods: %w", err)
	}
	if err := emit(MethodsFile, buf.Bytes()); err != nil {
		return nil, err
	}

	buf.Reset()
	if err := RenderRSSIChart(&buf, sum); err != nil {
		return nil, err
	}
	if err := emit(RSSIChartFile, buf.Bytes()); err != nil {
		return nil, err
	}

	if w.Figures {
		timeline, err := RotationTimeline(sum)
		if err != nil {
			return nil, fmt.Errorf("rotation timeline: %w", err)
		}
		png, err := renderPNG(timeline, 10*vg.Inch, 6*vg.Inch)
		if err != nil {
			return nil, err
		}
		if err := emit(RotationTimelineFile, png); err != nil {
			return nil, err
		}

		bounds, err := ErrorBounds(sum)
		if err != nil {
			return nil, fmt.Errorf("error bounds: %w", err)
		}
		if png, err = renderPNG(bounds, 8*vg.Inch, 5*vg.Inch); err != nil {
			return nil, err
		}
		if err := emit(ErrorBoundsFile, png); err != nil {
			return nil, err
		}
	}

	monitoring.Stagef("report", "wrote %d files to %s", len(written), w.Dir)
	return written, nil
}
