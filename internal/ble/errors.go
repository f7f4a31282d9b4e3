package ble

import "errors"

var (
	// ErrEmptyInput reports that a stage received no observations. Stages
	// return empty results alongside it only where a caller asked for it;
	// the pipeline itself treats empty input as a successful empty run.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidParameter is returned before any computation when a tuning
	// parameter is out of range.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInsufficientData marks an address or device with too few packets to
	// compute the requested statistic.
	ErrInsufficientData = errors.New("insufficient data")
)
