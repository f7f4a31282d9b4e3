// Package ble reconciles passively captured BLE advertisements into logical
// devices.
//
// Responsibilities: grouping observations into per-address timelines,
// detecting address rotation gaps, fingerprint clustering of addresses on
// aggregate RSSI statistics, log-distance path-loss estimation with error
// bounds, and descriptive variance summaries.
// Key types: Observation, Timeline, RotationEvent, LogicalDevice,
// DistanceEstimate.
//
// Every function here is a pure transform over immutable input. Statistics
// over samples that are too small yield NaN instead of an error so a batch
// over many devices is never aborted by one sparse address.
package ble
