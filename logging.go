// logging.go wires teefan's diagnostics through github.com/joeycumines/logiface,
// using github.com/joeycumines/stumpy as the concrete zero-allocation JSON
// backend. This replaces the teacher's hand-rolled Logger interface with the
// actual third-party logging stack the teacher module ships alongside.
package teefan

import (
	"os"
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger type used throughout teefan. It is a type
// alias so callers can pass in any *logiface.Logger[*stumpy.Event] they
// already have configured (e.g. with a different writer or level).
type Logger = logiface.Logger[*stumpy.Event]

var (
	defaultLoggerOnce sync.Once
	defaultLoggerVal  *Logger
)

// defaultLogger returns the package default: JSON lines to stderr at info
// level and above. Built lazily so importing teefan never touches stderr.
func defaultLogger() *Logger {
	defaultLoggerOnce.Do(func() {
		defaultLoggerVal = stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
			stumpy.L.WithLevel(logiface.LevelInformational),
		)
	})
	return defaultLoggerVal
}

// logSinkDeactivated records that a sink was isolated after a broken-pipe
// write (spec.md §4.5) — expected, not an error, hence Notice rather than
// Err.
func logSinkDeactivated(l *Logger, sink string, posWritten int64) {
	if l == nil {
		return
	}
	l.Notice().Str("sink", sink).Int64("pos_written", posWritten).Log("sink closed early, isolating")
}

// logFatal records the diagnostic spec.md §6 requires naming the offending
// resource before the engine aborts.
func logFatal(l *Logger, resource string, err error) {
	if l == nil {
		return
	}
	l.Err().Str("resource", resource).Err(err).Log("fatal error, aborting")
}

// logAllSinksInactive records the terminal condition where every sink has
// gone inactive; spec.md §7 treats this as equivalent to end-of-input.
func logAllSinksInactive(l *Logger, posRead int64) {
	if l == nil {
		return
	}
	l.Notice().Int64("source_pos_read", posRead).Log("no active sinks remain, stopping")
}
