package observability

import (
	"log/slog"
	"sync/atomic"
)

// levelVar backs the level of every logger created by this package, so the
// log level can be changed at runtime through the settings and config APIs.
var levelVar = new(slog.LevelVar)

// requestLogging controls whether the HTTP middleware logs successful
// requests. Errors (status >= 400) are always logged.
var requestLogging atomic.Bool

// GetLogLevel returns the current runtime log level name.
func GetLogLevel() string {
	switch levelVar.Level() {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// SetLogLevel changes the runtime log level for all loggers created by this
// package. Unknown level names fall back to info.
func SetLogLevel(level string) {
	levelVar.Set(parseLevel(level))
}

// IsRequestLoggingEnabled reports whether per-request HTTP logging is on.
func IsRequestLoggingEnabled() bool {
	return requestLogging.Load()
}

// SetRequestLogging enables or disables per-request HTTP logging at runtime.
func SetRequestLogging(enabled bool) {
	requestLogging.Store(enabled)
}
