// Package monitoring holds the diagnostic logger shared by the refit and
// trajectory packages. Refit code never fails loudly: dropped mixture
// components and misbehaving release hooks are reported here instead.
package monitoring

import (
	"log"
	"sync/atomic"
)

// LogFunc is the signature of a printf-style diagnostic sink.
type LogFunc func(format string, v ...interface{})

var logger atomic.Pointer[LogFunc]

func init() {
	SetLogger(log.Printf)
}

// Logf writes a diagnostic message through the current logger. It defaults
// to log.Printf and is safe to call from concurrent goroutines.
func Logf(format string, v ...interface{}) {
	(*logger.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f LogFunc) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	logger.Store(&f)
}

// Swap installs f and returns a func that restores the previous logger.
// Tests use it to capture or mute diagnostics.
func Swap(f LogFunc) (restore func()) {
	prev := logger.Load()
	SetLogger(f)
	return func() { logger.Store(prev) }
}
