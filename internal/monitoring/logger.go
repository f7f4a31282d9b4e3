// Package monitoring holds the package-level diagnostic logger shared by the
// analysis stages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Stagef logs a message tagged with a pipeline stage, e.g. "[rotation] ...".
func Stagef(stage, format string, v ...interface{}) {
	Logf("["+stage+"] "+format, v...)
}
