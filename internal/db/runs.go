package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/beacon.report/internal/analysis"
	"github.com/banshee-data/beacon.report/internal/timeutil"
)

// Run is a stored analysis run. ParamsJSON holds the exact parameters so
// the run can be reproduced.
type Run struct {
	RunID          string          `json:"run_id"`
	CaptureID      string          `json:"capture_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ParamsJSON     json.RawMessage `json:"params"`
	Packets        int             `json:"packets"`
	Addresses      int             `json:"addresses"`
	Devices        int             `json:"devices"`
	RotationEvents int             `json:"rotation_events"`
	NoiseAddresses []string        `json:"noise_addresses"`
}

// Params decodes the stored run parameters.
func (r *Run) Params() (analysis.Params, error) {
	var p analysis.Params
	if err := json.Unmarshal(r.ParamsJSON, &p); err != nil {
		return p, fmt.Errorf("decode params for run %s: %w", r.RunID, err)
	}
	return p, nil
}

// DeviceRecord is one logical device row of a run. Undefined statistics
// read back as NaN.
type DeviceRecord struct {
	RunID          string   `json:"run_id"`
	DeviceID       int      `json:"device_id"`
	Addresses      []string `json:"addresses"`
	Packets        int      `json:"packets"`
	RotationEvents int      `json:"rotation_events"`
	MeanRSSI       float64  `json:"mean_rssi"`
	StdRSSI        float64  `json:"std_rssi"`
	MedianRSSI     float64  `json:"median_rssi"`
	DistanceM      float64  `json:"distance_m"`
	LowerM         float64  `json:"lower_m"`
	UpperM         float64  `json:"upper_m"`
	ErrorPercent   float64  `json:"error_percent"`
	OverallStd     float64  `json:"overall_std"`
	RollingStd     float64  `json:"rolling_std"`
	ShortTermStd   float64  `json:"short_term_std"`
}

// RunStore records analysis summaries.
type RunStore struct {
	db    *DB
	clock timeutil.Clock
}

func NewRunStore(db *DB, clock timeutil.Clock) *RunStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RunStore{db: db, clock: clock}
}

// Record stores a summary and its devices. captureID may be empty when the
// run was made over a file that was not imported.
func (s *RunStore) Record(ctx context.Context, captureID string, sum *analysis.Summary) (*Run, error) {
	if sum == nil {
		return nil, errors.New("nil summary")
	}
	paramsJSON, err := json.Marshal(sum.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	noise := sum.NoiseAddresses
	if noise == nil {
		noise = []string{}
	}
	noiseJSON, err := json.Marshal(noise)
	if err != nil {
		return nil, fmt.Errorf("marshal noise addresses: %w", err)
	}

	run := &Run{
		RunID:          uuid.NewString(),
		CaptureID:      captureID,
		CreatedAt:      s.clock.Now(),
		ParamsJSON:     paramsJSON,
		Packets:        sum.Capture.Packets,
		Addresses:      sum.Capture.Addresses,
		Devices:        len(sum.Devices),
		RotationEvents: len(sum.Rotations),
		NoiseAddresses: noise,
	}

	var capture sql.NullString
	if captureID != "" {
		capture = sql.NullString{String: captureID, Valid: true}
	}

	err = retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO analysis_runs (run_id, capture_id, created_at, params_json, packets, addresses, devices, rotation_events, noise_addresses)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, capture, run.CreatedAt.UnixNano(), string(paramsJSON),
			run.Packets, run.Addresses, run.Devices, run.RotationEvents, string(noiseJSON),
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, d := range sum.Devices {
			addrs, err := json.Marshal(d.Device.Addresses)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO run_devices (run_id, device_id, addresses_json, packets, rotation_events,
					mean_rssi, std_rssi, median_rssi, distance_m, lower_m, upper_m, error_percent,
					overall_std, rolling_std, short_term_std)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.RunID, d.Device.ID, string(addrs), d.Device.Packets, len(d.RotationEvents),
				nullFloat(d.Device.Stats.Mean), nullFloat(d.Device.Stats.Std), nullFloat(d.Device.Stats.Median),
				nullFloat(d.Estimate.Distance), nullFloat(d.Estimate.Lower), nullFloat(d.Estimate.Upper),
				nullFloat(d.Estimate.ErrorPercent),
				nullFloat(d.Variance.OverallStd), nullFloat(d.Variance.RollingStd), nullFloat(d.Variance.ShortTermStd),
			); err != nil {
				return fmt.Errorf("insert device %d: %w", d.Device.ID, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

const runColumns = `run_id, capture_id, created_at, params_json, packets, addresses, devices, rotation_events, noise_addresses`

// Get returns the run with the given id.
func (s *RunStore) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM analysis_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return r, err
}

// List returns up to limit runs, newest first. A non-positive limit returns
// all runs.
func (s *RunStore) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM analysis_runs ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Devices returns a run's devices ordered by id.
func (s *RunStore) Devices(ctx context.Context, runID string) ([]DeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, addresses_json, packets, rotation_events,
			mean_rssi, std_rssi, median_rssi, distance_m, lower_m, upper_m, error_percent,
			overall_std, rolling_std, short_term_std
		FROM run_devices WHERE run_id = ? ORDER BY device_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeviceRecord
	for rows.Next() {
		d := DeviceRecord{RunID: runID}
		var addrs string
		var f [10]sql.NullFloat64
		if err := rows.Scan(&d.DeviceID, &addrs, &d.Packets, &d.RotationEvents,
			&f[0], &f[1], &f[2], &f[3], &f[4], &f[5], &f[6], &f[7], &f[8], &f[9]); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(addrs), &d.Addresses); err != nil {
			return nil, fmt.Errorf("decode addresses for device %d: %w", d.DeviceID, err)
		}
		d.MeanRSSI, d.StdRSSI, d.MedianRSSI = fromNullFloat(f[0]), fromNullFloat(f[1]), fromNullFloat(f[2])
		d.DistanceM, d.LowerM, d.UpperM = fromNullFloat(f[3]), fromNullFloat(f[4]), fromNullFloat(f[5])
		d.ErrorPercent = fromNullFloat(f[6])
		d.OverallStd, d.RollingStd, d.ShortTermStd = fromNullFloat(f[7]), fromNullFloat(f[8]), fromNullFloat(f[9])
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var capture sql.NullString
	var created int64
	var params, noise string
	if err := row.Scan(&r.RunID, &capture, &created, &params, &r.Packets, &r.Addresses,
		&r.Devices, &r.RotationEvents, &noise); err != nil {
		return nil, err
	}
	r.CaptureID = capture.String
	r.CreatedAt = time.Unix(0, created).UTC()
	r.ParamsJSON = json.RawMessage(params)
	if err := json.Unmarshal([]byte(noise), &r.NoiseAddresses); err != nil {
		return nil, fmt.Errorf("decode noise addresses for run %s: %w", r.RunID, err)
	}
	return &r, nil
}

// nullFloat stores NaN and infinities as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullFloat(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
