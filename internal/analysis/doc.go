// Package analysis wires the BLE reconciliation stages into a single batch
// run over a capture.
//
// Run is a pure function: observations and Params in, an immutable Summary
// out. Storage, metrics and reporting consume the Summary afterwards.
package analysis
