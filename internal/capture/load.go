package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/beacon.report/internal/ble"
	"github.com/banshee-data/beacon.report/internal/monitoring"
)

// Formats accepted by Load.
const (
	FormatAuto = ""
	FormatCSV  = "csv"
	FormatPCAP = "pcap"
)

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".pcap", ".pcapng", ".cap":
		return FormatPCAP, nil
	}
	return "", fmt.Errorf("cannot infer capture format from %q; pass -format", path)
}

// Load reads every observation from the capture file at path.
func Load(ctx context.Context, path, format string) ([]ble.Observation, error) {
	if format == FormatAuto {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatCSV:
		obs, err := ReadCSV(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		monitoring.Stagef("ingest", "csv: %d rows from %s", len(obs), path)
		return obs, nil
	case FormatPCAP:
		obs, _, err := ReadPCAP(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return obs, nil
	}
	return nil, fmt.Errorf("unknown capture format %q", format)
}
