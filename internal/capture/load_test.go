package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]string{
		"capture.csv":   FormatCSV,
		"CAPTURE.CSV":   FormatCSV,
		"sniff.pcap":    FormatPCAP,
		"sniff.pcapng":  FormatPCAP,
		"dir/trace.cap": FormatPCAP,
	} {
		got, err := DetectFormat(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := DetectFormat("capture.txt")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "capture.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("timestamp,address,signal_strength\n2025-10-01T09:00:00Z,a,-60\n"), 0o644))

	obs, err := Load(context.Background(), csvPath, FormatAuto)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "a", obs[0].Address)

	f := testFrame{pduType: pduAdvInd, addr: [6]byte{1, 2, 3, 4, 5, 6}, rssi: -60}
	pcapPath := filepath.Join(dir, "sniff.pcap")
	require.NoError(t, os.WriteFile(pcapPath, writePCAP(t, LinkTypeBLELLWithPHDR, f.encode()).Bytes(), 0o644))

	obs, err = Load(context.Background(), pcapPath, FormatAuto)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "01:02:03:04:05:06", obs[0].Address)

	_, err = Load(context.Background(), filepath.Join(dir, "missing.csv"), FormatAuto)
	assert.Error(t, err)

	_, err = Load(context.Background(), csvPath, "xml")
	assert.Error(t, err)
}
