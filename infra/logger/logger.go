package logger

import corelogger "github.com/kilianp07/consolidation/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger discards everything.
type NopLogger = corelogger.Nop

// New returns a Logger for the given component. The output format follows
// APP_ENV and the level follows LOG_LEVEL or SetLevel.
func New(component string) Logger {
	return NewZerologLogger(component)
}
