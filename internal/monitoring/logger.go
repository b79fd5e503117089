// Package monitoring holds the pipeline's diagnostic logging hook.
package monitoring

import "log"

// Logf is the package-level diagnostic logger used by the pipeline stages.
// It defaults to log.Printf; hosts embedding the pipeline can redirect it
// with SetLogger, and tests can mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
