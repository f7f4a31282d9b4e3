package analysis

import (
	"fmt"
	"time"

	"github.com/banshee-data/beacon.report/internal/ble"
	"github.com/banshee-data/beacon.report/internal/config"
)

// Params captures every tunable of a run so results are reproducible.
type Params struct {
	RotationThreshold time.Duration         `json:"rotation_threshold_ns"`
	Fingerprint       ble.FingerprintParams `json:"fingerprint"`
	Model             ble.PathLossModel     `json:"path_loss"`
	Variance          ble.VarianceParams    `json:"variance"`
	Movement          ble.MovementParams    `json:"movement"`
	// TargetOnly restricts reconciliation to target-device observations.
	// Environment statistics always cover the whole capture.
	TargetOnly bool `json:"target_only"`
	// KnownPositions, when set, replaces the estimated relative positions.
	KnownPositions ble.KnownPositions `json:"known_positions,omitempty"`
}

// DefaultParams returns the built-in defaults.
func DefaultParams() Params {
	return Params{
		RotationThreshold: ble.DefaultRotationThreshold,
		Fingerprint:       ble.DefaultFingerprintParams(),
		Model:             ble.DefaultPathLossModel(),
		Variance:          ble.DefaultVarianceParams(),
		Movement:          ble.DefaultMovementParams(),
		TargetOnly:        true,
	}
}

// ParamsFromConfig builds Params from a loaded AnalysisConfig. Unset fields
// take their defaults.
func ParamsFromConfig(cfg *config.AnalysisConfig) Params {
	if cfg == nil {
		return DefaultParams()
	}
	return Params{
		RotationThreshold: cfg.GetRotationThreshold(),
		Fingerprint: ble.FingerprintParams{
			Eps:    cfg.GetDBSCANEps(),
			MinPts: cfg.GetDBSCANMinPts(),
		},
		Model: ble.PathLossModel{
			ReferenceRSSI: cfg.GetRSSIAt1m(),
			Exponent:      cfg.GetPathLossExponent(),
		},
		Variance: ble.VarianceParams{
			RollingWindow:       cfg.GetRollingWindow(),
			ShortTermGap:        cfg.GetShortTermGap(),
			ShortTermMinPackets: cfg.GetShortTermMinPackets(),
		},
		Movement: ble.MovementParams{
			Window:      cfg.GetMovementWindow(),
			ThresholdDB: cfg.GetMovementThresholdDB(),
		},
		TargetOnly: cfg.GetTargetOnly(),
	}
}

// Validate checks every stage's parameters before any computation.
func (p Params) Validate() error {
	if p.RotationThreshold < 0 {
		return fmt.Errorf("rotation threshold %s must be non-negative: %w", p.RotationThreshold, ble.ErrInvalidParameter)
	}
	if err := p.Fingerprint.Validate(); err != nil {
		return err
	}
	if err := p.Model.Validate(); err != nil {
		return err
	}
	if err := p.Variance.Validate(); err != nil {
		return err
	}
	if err := p.Movement.Validate(); err != nil {
		return err
	}
	return p.KnownPositions.Validate()
}
