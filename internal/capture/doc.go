// Package capture turns capture files into ble.Observation records.
//
// Two formats are supported: the CSV written by the passive scanner, and
// pcap/pcapng files recorded with a BLE link-layer sniffer
// (LINKTYPE_BLUETOOTH_LE_LL_WITH_PHDR). Both classify devices the same way,
// see Classify.
package capture

import "errors"

var (
	// ErrMalformedRow is returned for a CSV row that cannot be parsed. The
	// wrapping error names the line.
	ErrMalformedRow = errors.New("malformed row")
	// ErrUnsupportedLinkType is returned for a packet capture that does not
	// carry BLE link-layer frames with a radio header.
	ErrUnsupportedLinkType = errors.New("unsupported link type")
)
