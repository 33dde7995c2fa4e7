package handlers

import "net/http"

// streamCORS is the header set applied to playlist and guide downloads so
// external players and web UIs can fetch them cross-origin.
type streamCORS struct {
	origin  string
	methods string
	headers string
	expose  string
}

var defaultStreamCORS = streamCORS{
	origin:  "*",
	methods: "GET, OPTIONS",
	headers: "Content-Type, Accept, Range",
	expose:  "Content-Length, Content-Range",
}

func (c streamCORS) apply(h http.Header) {
	h.Set("Access-Control-Allow-Origin", c.origin)
	h.Set("Access-Control-Allow-Methods", c.methods)
	h.Set("Access-Control-Allow-Headers", c.headers)
	if c.expose != "" {
		h.Set("Access-Control-Expose-Headers", c.expose)
	}
}
