package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig controls the cross-origin headers emitted by the CORS
// middleware.
type CORSConfig struct {
	AllowedOrigins   []string // origins allowed to call the API; "*" allows all
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string // headers the browser may expose to scripts
	AllowCredentials bool
	MaxAge           int // preflight cache lifetime in seconds
}

// DefaultCORSConfig returns a permissive configuration suitable for a
// single-binary deployment serving its own frontend.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400,
	}
}

// CORS returns the middleware with its default configuration.
func CORS() func(http.Handler) http.Handler {
	return CORSWithConfig(DefaultCORSConfig())
}

// CORSWithConfig returns the CORS middleware for the given configuration.
func CORSWithConfig(cfg CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")
	wildcard := len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && originAllowed(cfg.AllowedOrigins, origin) {
				if wildcard {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if exposed != "" {
					w.Header().Set("Access-Control-Expose-Headers", exposed)
				}
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			// Preflight: answer directly without invoking the handler chain.
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			if cfg.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	return slices.ContainsFunc(allowed, func(o string) bool {
		return o == "*" || o == origin
	})
}
