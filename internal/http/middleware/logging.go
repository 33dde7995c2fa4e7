package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/chanarr/chanarr/internal/observability"
)

// statusRecorder wraps http.ResponseWriter to capture status and size for
// the request log line.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func recordStatus(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.wroteHeader {
		return
	}
	rec.status = code
	rec.wroteHeader = true
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.size += n
	return n, err
}

// Unwrap exposes the underlying ResponseWriter so http.ResponseController
// and flush-dependent handlers keep working.
func (rec *statusRecorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }

// NewLoggingMiddleware logs one line per request. When the runtime
// enable_request_logging setting is off, only error responses are logged.
func NewLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := recordStatus(w)
			next.ServeHTTP(rec, r)

			if !observability.IsRequestLoggingEnabled() && rec.status < 400 {
				return
			}

			var level slog.Level
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			default:
				level = slog.LevelInfo
			}

			logger.Log(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int("size", rec.size),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("request_id", GetRequestID(r.Context())))
		})
	}
}
