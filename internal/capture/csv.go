package capture

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/beacon.report/internal/ble"
)

// Header is the canonical CSV column order written by WriteCSV.
var Header = []string{
	"timestamp", "address", "signal_strength", "device_type",
	"is_target_device", "status_byte", "local_name", "manufacturer_id",
}

// columnAliases maps the scanner's original column names onto the
// canonical ones.
var columnAliases = map[string]string{
	"mac_address":        "address",
	"rssi":               "signal_strength",
	"is_airtag":          "is_target_device",
	"airtag_status_byte": "status_byte",
}

var requiredColumns = []string{"timestamp", "address", "signal_strength"}

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp with or without a zone.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ReadCSV reads observations from a CSV stream with a header row. Unknown
// columns are ignored. A row that cannot be parsed aborts the read with an
// error wrapping ErrMalformedRow and naming the line.
func ReadCSV(r io.Reader) ([]ble.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if canonical, ok := columnAliases[name]; ok {
			name = canonical
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("header missing column %q: %w", c, ErrMalformedRow)
		}
	}

	var obs []ble.Observation
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, fmt.Errorf("line %d: %v: %w", pe.Line, pe.Err, ErrMalformedRow)
			}
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}

		o, err := parseRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %v: %w", line, err, ErrMalformedRow)
		}
		obs = append(obs, o)
	}
	return obs, nil
}

func parseRecord(record []string, cols map[string]int) (ble.Observation, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var o ble.Observation
	var err error

	if o.Timestamp, err = ParseTimestamp(field("timestamp")); err != nil {
		return o, err
	}
	if o.Address = field("address"); o.Address == "" {
		return o, errors.New("empty address")
	}
	if o.RSSI, err = strconv.Atoi(field("signal_strength")); err != nil {
		return o, fmt.Errorf("signal_strength: %w", err)
	}
	o.DeviceType = field("device_type")

	if v := field("is_target_device"); v != "" {
		if o.IsTarget, err = strconv.ParseBool(v); err != nil {
			return o, fmt.Errorf("is_target_device: %w", err)
		}
	}
	o.StatusByte = strings.ToLower(field("status_byte"))
	o.LocalName = field("local_name")
	if v := field("manufacturer_id"); v != "" {
		if o.ManufacturerID, err = strconv.Atoi(v); err != nil {
			return o, fmt.Errorf("manufacturer_id: %w", err)
		}
	}
	return o, nil
}

// WriteCSV writes observations with the canonical Header. Timestamps are
// written as RFC 3339 with nanoseconds.
func WriteCSV(w io.Writer, obs []ble.Observation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, o := range obs {
		mfr := ""
		if o.ManufacturerID != 0 {
			mfr = strconv.Itoa(o.ManufacturerID)
		}
		if err := cw.Write([]string{
			o.Timestamp.Format(time.RFC3339Nano),
			o.Address,
			strconv.Itoa(o.RSSI),
			o.DeviceType,
			strconv.FormatBool(o.IsTarget),
			o.StatusByte,
			o.LocalName,
			mfr,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
