// Package cluster owns the density-based clustering primitive used to
// reconcile rotating BLE addresses into logical devices.
//
// The implementation is a plain DBSCAN over 2D points with a regular grid
// spatial index. It has no knowledge of signals or addresses; callers map
// their feature vectors onto Point and interpret the returned labels.
package cluster
