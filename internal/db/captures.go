package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/beacon.report/internal/ble"
	"github.com/banshee-data/beacon.report/internal/timeutil"
)

// ErrNotFound is returned when a capture or run id does not exist.
var ErrNotFound = errors.New("not found")

// Capture is an imported observation set.
type Capture struct {
	CaptureID  string    `json:"capture_id"`
	Source     string    `json:"source"`
	Packets    int       `json:"packets"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	ImportedAt time.Time `json:"imported_at"`
}

// CaptureStore imports and reads back observation captures.
type CaptureStore struct {
	db    *DB
	clock timeutil.Clock
}

func NewCaptureStore(db *DB, clock timeutil.Clock) *CaptureStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &CaptureStore{db: db, clock: clock}
}

// Import stores obs as a new capture in a single transaction and returns
// its record. source is a free-form label, usually the input path.
func (s *CaptureStore) Import(ctx context.Context, source string, obs []ble.Observation) (*Capture, error) {
	sum := ble.Summarize(obs)
	c := &Capture{
		CaptureID:  uuid.NewString(),
		Source:     source,
		Packets:    sum.Packets,
		Start:      sum.Start,
		End:        sum.End,
		ImportedAt: s.clock.Now(),
	}

	err := retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO captures (capture_id, source, packets, start_unix_nanos, end_unix_nanos, imported_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			c.CaptureID, c.Source, c.Packets, nullTime(c.Start), nullTime(c.End), c.ImportedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert capture: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO observations (capture_id, address, ts_unix_nanos, rssi, device_type, is_target, status_byte, local_name, manufacturer_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare observation insert: %w", err)
		}
		defer stmt.Close()

		for i, o := range obs {
			if _, err := stmt.ExecContext(ctx,
				c.CaptureID, o.Address, o.Timestamp.UnixNano(), o.RSSI, o.DeviceType,
				o.IsTarget, o.StatusByte, o.LocalName, o.ManufacturerID,
			); err != nil {
				return fmt.Errorf("insert observation %d: %w", i, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the capture with the given id.
func (s *CaptureStore) Get(ctx context.Context, captureID string) (*Capture, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT capture_id, source, packets, start_unix_nanos, end_unix_nanos, imported_at
		FROM captures WHERE capture_id = ?`, captureID)
	c, err := scanCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("capture %s: %w", captureID, ErrNotFound)
	}
	return c, err
}

// List returns all captures, most recently imported first.
func (s *CaptureStore) List(ctx context.Context) ([]*Capture, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT capture_id, source, packets, start_unix_nanos, end_unix_nanos, imported_at
		FROM captures ORDER BY imported_at DESC, capture_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Observations returns a capture's observations in time order, ties broken
// by address then insertion order.
func (s *CaptureStore) Observations(ctx context.Context, captureID string) ([]ble.Observation, error) {
	if _, err := s.Get(ctx, captureID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT address, ts_unix_nanos, rssi, device_type, is_target, status_byte, local_name, manufacturer_id
		FROM observations
		WHERE capture_id = ?
		ORDER BY ts_unix_nanos, address, observation_id`, captureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ble.Observation
	for rows.Next() {
		var o ble.Observation
		var ts int64
		if err := rows.Scan(&o.Address, &ts, &o.RSSI, &o.DeviceType, &o.IsTarget,
			&o.StatusByte, &o.LocalName, &o.ManufacturerID); err != nil {
			return nil, err
		}
		o.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

// Delete removes a capture and its observations. Runs over it are kept with
// their capture reference cleared.
func (s *CaptureStore) Delete(ctx context.Context, captureID string) error {
	return retryOnBusy(func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM captures WHERE capture_id = ?`, captureID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("capture %s: %w", captureID, ErrNotFound)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapture(row rowScanner) (*Capture, error) {
	var c Capture
	var start, end sql.NullInt64
	var imported int64
	if err := row.Scan(&c.CaptureID, &c.Source, &c.Packets, &start, &end, &imported); err != nil {
		return nil, err
	}
	c.Start = fromNullTime(start)
	c.End = fromNullTime(end)
	c.ImportedAt = time.Unix(0, imported).UTC()
	return &c, nil
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullTime(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(0, v.Int64).UTC()
}
