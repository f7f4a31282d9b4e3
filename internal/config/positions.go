package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/banshee-data/beacon.report/internal/ble"
)

// ParseKnownPositions decodes a known-positions document of the form
// {"AA:BB:CC:DD:EE:FF": [x, y], ...} with coordinates in metres.
func ParseKnownPositions(data []byte) (ble.KnownPositions, error) {
	var raw map[string][2]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse positions JSON: %w", err)
	}
	known := make(ble.KnownPositions, len(raw))
	for addr, p := range raw {
		known[strings.TrimSpace(addr)] = p
	}
	if err := known.Validate(); err != nil {
		return nil, fmt.Errorf("invalid positions: %w", err)
	}
	return known, nil
}
