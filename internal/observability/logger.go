// Package observability provides logging helpers for chanarr.
package observability

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/chanarr/chanarr/internal/config"
	"github.com/m-mizutani/masq"
)

// contextKey keeps this package's context keys from colliding with others.
type contextKey string

const (
	// RequestIDKey carries the request ID through a context.
	RequestIDKey contextKey = "request_id"
	// CorrelationIDKey carries the correlation ID through a context.
	CorrelationIDKey contextKey = "correlation_id"
)

// NewLogger creates a slog.Logger on stdout per the logging configuration.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter creates a slog.Logger writing to w, in the configured
// format and level.
//
// The logger's level is backed by the package level var, so later calls to
// SetLogLevel take effect on loggers already handed out.
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	levelVar.Set(parseLevel(cfg.Level))

	// Source URLs can embed basic-auth credentials; passwords and tokens
	// must never reach the log stream.
	redact := masq.New(
		masq.WithFieldName("Password"),
		masq.WithFieldName("Token"),
		masq.WithFieldPrefix("secret"),
	)

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			if a.Value.Kind() == slog.KindString {
				if v := a.Value.String(); looksLikeCredentialURL(v) {
					return slog.String(a.Key, RedactURL(v))
				}
			}
			return redact(groups, a)
		},
	}

	// JSON is the default for unknown formats
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// looksLikeCredentialURL reports whether s is an HTTP URL carrying userinfo.
func looksLikeCredentialURL(s string) bool {
	if len(s) < 8 {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.User != nil && (u.Scheme == "http" || u.Scheme == "https")
}

// RedactURL strips embedded basic-auth credentials from a URL for logging.
func RedactURL(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// parseLevel maps a level name to slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	if l, ok := levelNames[level]; ok {
		return l
	}
	return slog.LevelInfo
}

func withAttr(l *slog.Logger, key, value string) *slog.Logger {
	return l.With(slog.String(key, value))
}

// WithRequestID returns l enriched with a request ID.
func WithRequestID(l *slog.Logger, requestID string) *slog.Logger {
	return withAttr(l, "request_id", requestID)
}

// WithCorrelationID returns l enriched with a correlation ID.
func WithCorrelationID(l *slog.Logger, correlationID string) *slog.Logger {
	return withAttr(l, "correlation_id", correlationID)
}

// WithComponent returns l enriched with the emitting component's name.
func WithComponent(l *slog.Logger, component string) *slog.Logger {
	return withAttr(l, "component", component)
}

// WithOperation returns l enriched with an operation name.
func WithOperation(l *slog.Logger, operation string) *slog.Logger {
	return withAttr(l, "operation", operation)
}

// WithError returns l enriched with an error attribute, or l when err is nil.
func WithError(l *slog.Logger, err error) *slog.Logger {
	if err == nil {
		return l
	}
	return withAttr(l, "error", err.Error())
}

// loggerKey is the context key for the logger.
const loggerKey contextKey = "logger"

// LoggerFromContext returns the logger stored in ctx, or the default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// ContextWithLogger stores a logger in the context.
func ContextWithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// RequestIDFromContext returns the request ID stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// ContextWithRequestID stores a request ID in the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// CorrelationIDFromContext returns the correlation ID stored in ctx, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(CorrelationIDKey).(string)
	return id
}

// ContextWithCorrelationID stores a correlation ID in the context.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// SetDefault installs l as the process-wide default slog logger.
func SetDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// TimedOperation logs the start of an operation and returns a function to
// defer, which logs its completion with the elapsed duration.
//
//	done := observability.TimedOperation(ctx, logger, "assemble_lineup")
//	defer done()
func TimedOperation(ctx context.Context, l *slog.Logger, operation string) func() {
	return TimedOperationWithError(ctx, l, operation, nil)
}

// TimedOperationWithError is TimedOperation with an outcome: when the pointed
// to error ends up non-nil the completion log becomes a failure log. A pointer
// is taken because the error value is usually assigned after this call:
//
//	var err error
//	done := observability.TimedOperationWithError(ctx, logger, "assemble_lineup", &err)
//	defer done()
//	err = doSomething()
func TimedOperationWithError(ctx context.Context, l *slog.Logger, operation string, errPtr *error) func() {
	start := time.Now()
	l.InfoContext(ctx, "operation started", slog.String("operation", operation))

	return func() {
		elapsed := time.Since(start)
		if errPtr != nil && *errPtr != nil {
			l.ErrorContext(ctx, "operation failed",
				slog.String("operation", operation),
				slog.Duration("duration", elapsed),
				slog.String("error", (*errPtr).Error()))
			return
		}
		l.InfoContext(ctx, "operation completed",
			slog.String("operation", operation),
			slog.Duration("duration", elapsed))
	}
}
