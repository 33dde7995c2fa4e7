package middleware

import (
	"net/http"
	"strings"
)

// SkipCompressionForSSE routes event-stream requests around the given
// compression middleware. Compressed SSE defeats per-event flushing, so
// those responses go out unbuffered.
func SkipCompressionForSSE(compress func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressed := compress(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSSERequest(r) {
				next.ServeHTTP(w, r)
				return
			}
			compressed.ServeHTTP(w, r)
		})
	}
}

// isSSERequest detects event-stream requests by Accept header, falling back
// to the progress SSE path for clients that do not send one.
func isSSERequest(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return true
	}
	return strings.HasSuffix(r.URL.Path, "/events") && strings.Contains(r.URL.Path, "/progress/")
}
