package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/beacon.report/internal/ble"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// AnalysisConfig holds the tunable parameters of the reconciliation
// pipeline. Every field is optional: a nil pointer falls back to the
// built-in default through the matching Get* method, so partial files are
// safe.
type AnalysisConfig struct {
	// Rotation detection
	RotationThreshold *string `json:"rotation_threshold,omitempty"` // duration string like "15m"

	// Fingerprint clustering
	DBSCANEps    *float64 `json:"dbscan_eps,omitempty"`
	DBSCANMinPts *int     `json:"dbscan_min_pts,omitempty"`

	// Path-loss model
	RSSIAt1m         *float64 `json:"rssi_at_1m,omitempty"`
	PathLossExponent *float64 `json:"path_loss_exponent,omitempty"`

	// Variance breakdown
	RollingWindow       *int    `json:"rolling_window,omitempty"`
	ShortTermGap        *string `json:"short_term_gap,omitempty"` // duration string like "1m"
	ShortTermMinPackets *int    `json:"short_term_min_packets,omitempty"`

	// Movement events
	MovementWindow      *int     `json:"movement_window,omitempty"`
	MovementThresholdDB *float64 `json:"movement_threshold_db,omitempty"`

	TargetOnly *bool `json:"target_only,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAnalysisConfig returns a config with every field unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns a config with every field set explicitly to
// its default, matching config/analysis.defaults.json.
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		RotationThreshold:   ptrString("15m"),
		DBSCANEps:           ptrFloat64(3),
		DBSCANMinPts:        ptrInt(5),
		RSSIAt1m:            ptrFloat64(-59),
		PathLossExponent:    ptrFloat64(2.5),
		RollingWindow:       ptrInt(50),
		ShortTermGap:        ptrString("1m"),
		ShortTermMinPackets: ptrInt(10),
		MovementWindow:      ptrInt(60),
		MovementThresholdDB: ptrFloat64(3),
		TargetOnly:          ptrBool(true),
	}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upward from the
// current directory. Panics if the file cannot be loaded; intended for
// test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *AnalysisConfig) Validate() error {
	if c.RotationThreshold != nil && *c.RotationThreshold != "" {
		d, err := time.ParseDuration(*c.RotationThreshold)
		if err != nil {
			return fmt.Errorf("invalid rotation_threshold '%s': %v: %w", *c.RotationThreshold, err, ble.ErrInvalidParameter)
		}
		if d < 0 {
			return fmt.Errorf("rotation_threshold must be non-negative, got %s: %w", d, ble.ErrInvalidParameter)
		}
	}

	if c.DBSCANEps != nil && !(*c.DBSCANEps > 0) {
		return fmt.Errorf("dbscan_eps must be positive, got %f: %w", *c.DBSCANEps, ble.ErrInvalidParameter)
	}
	if c.DBSCANMinPts != nil && *c.DBSCANMinPts < 1 {
		return fmt.Errorf("dbscan_min_pts must be at least 1, got %d: %w", *c.DBSCANMinPts, ble.ErrInvalidParameter)
	}

	if c.RSSIAt1m != nil && (math.IsNaN(*c.RSSIAt1m) || math.IsInf(*c.RSSIAt1m, 0)) {
		return fmt.Errorf("rssi_at_1m must be finite, got %f: %w", *c.RSSIAt1m, ble.ErrInvalidParameter)
	}
	if c.PathLossExponent != nil && !(*c.PathLossExponent > 0) {
		return fmt.Errorf("path_loss_exponent must be positive, got %f: %w", *c.PathLossExponent, ble.ErrInvalidParameter)
	}

	if c.RollingWindow != nil && *c.RollingWindow < 2 {
		return fmt.Errorf("rolling_window must be at least 2, got %d: %w", *c.RollingWindow, ble.ErrInvalidParameter)
	}
	if c.ShortTermGap != nil && *c.ShortTermGap != "" {
		d, err := time.ParseDuration(*c.ShortTermGap)
		if err != nil {
			return fmt.Errorf("invalid short_term_gap '%s': %v: %w", *c.ShortTermGap, err, ble.ErrInvalidParameter)
		}
		if d <= 0 {
			return fmt.Errorf("short_term_gap must be positive, got %s: %w", d, ble.ErrInvalidParameter)
		}
	}
	if c.ShortTermMinPackets != nil && *c.ShortTermMinPackets < 0 {
		return fmt.Errorf("short_term_min_packets must be non-negative, got %d: %w", *c.ShortTermMinPackets, ble.ErrInvalidParameter)
	}

	if c.MovementWindow != nil && *c.MovementWindow < 1 {
		return fmt.Errorf("movement_window must be at least 1, got %d: %w", *c.MovementWindow, ble.ErrInvalidParameter)
	}
	if c.MovementThresholdDB != nil && !(*c.MovementThresholdDB >= 0) {
		return fmt.Errorf("movement_threshold_db must be non-negative, got %f: %w", *c.MovementThresholdDB, ble.ErrInvalidParameter)
	}
	return nil
}

// GetRotationThreshold parses rotation_threshold, defaulting to 15 minutes.
func (c *AnalysisConfig) GetRotationThreshold() time.Duration {
	if c.RotationThreshold == nil || *c.RotationThreshold == "" {
		return 15 * time.Minute
	}
	d, err := time.ParseDuration(*c.RotationThreshold)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// GetDBSCANEps returns the dbscan_eps value or the default.
func (c *AnalysisConfig) GetDBSCANEps() float64 {
	if c.DBSCANEps == nil {
		return 3.0
	}
	return *c.DBSCANEps
}

// GetDBSCANMinPts returns the dbscan_min_pts value or the default.
func (c *AnalysisConfig) GetDBSCANMinPts() int {
	if c.DBSCANMinPts == nil {
		return 5
	}
	return *c.DBSCANMinPts
}

// GetRSSIAt1m returns the rssi_at_1m value or the default.
func (c *AnalysisConfig) GetRSSIAt1m() float64 {
	if c.RSSIAt1m == nil {
		return -59
	}
	return *c.RSSIAt1m
}

// GetPathLossExponent returns the path_loss_exponent value or the default.
func (c *AnalysisConfig) GetPathLossExponent() float64 {
	if c.PathLossExponent == nil {
		return 2.5 // indoor
	}
	return *c.PathLossExponent
}

// GetRollingWindow returns the rolling_window value or the default.
func (c *AnalysisConfig) GetRollingWindow() int {
	if c.RollingWindow == nil {
		return 50
	}
	return *c.RollingWindow
}

// GetShortTermGap parses short_term_gap, defaulting to one minute.
func (c *AnalysisConfig) GetShortTermGap() time.Duration {
	if c.ShortTermGap == nil || *c.ShortTermGap == "" {
		return time.Minute
	}
	d, err := time.ParseDuration(*c.ShortTermGap)
	if err != nil {
		return time.Minute
	}
	return d
}

// GetShortTermMinPackets returns the short_term_min_packets value or the default.
func (c *AnalysisConfig) GetShortTermMinPackets() int {
	if c.ShortTermMinPackets == nil {
		return 10
	}
	return *c.ShortTermMinPackets
}

// GetMovementWindow returns the movement_window value or the default.
func (c *AnalysisConfig) GetMovementWindow() int {
	if c.MovementWindow == nil {
		return 60
	}
	return *c.MovementWindow
}

// GetMovementThresholdDB returns the movement_threshold_db value or the default.
func (c *AnalysisConfig) GetMovementThresholdDB() float64 {
	if c.MovementThresholdDB == nil {
		return 3.0
	}
	return *c.MovementThresholdDB
}

// GetTargetOnly returns the target_only value or the default.
func (c *AnalysisConfig) GetTargetOnly() bool {
	if c.TargetOnly == nil {
		return true
	}
	return *c.TargetOnly
}
