// Package monitoring provides the diagnostic logging indirection shared by
// the capture pipeline. The packet-path packages log through Logf so tests
// (and quiet deployments) can redirect or mute the receive-loop chatter
// without touching the global log package.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf
// but may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
