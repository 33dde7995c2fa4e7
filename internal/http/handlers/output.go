package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/storage"
)

// outputKind describes one generated artifact type a proxy publishes.
type outputKind struct {
	label    string // name used in errors and logs
	ext      string // extension on disk
	download string // extension offered in Content-Disposition
	mime     string
}

var (
	m3uKind   = outputKind{label: "M3U", ext: ".m3u", download: "m3u", mime: "audio/x-mpegurl"}
	xmltvKind = outputKind{label: "XMLTV", ext: ".xml", download: "xmltv", mime: "application/xml"}
)

// OutputHandler serves generated M3U and XMLTV output files.
type OutputHandler struct {
	sandbox *storage.Sandbox
	log     *slog.Logger
}

// NewOutputHandler creates a new output handler.
func NewOutputHandler(sandbox *storage.Sandbox) *OutputHandler {
	return &OutputHandler{sandbox: sandbox, log: slog.Default()}
}

// WithLogger sets the logger for the handler.
func (h *OutputHandler) WithLogger(l *slog.Logger) *OutputHandler {
	if l != nil {
		h.log = l
	}
	return h
}

// RegisterFileServer mounts the plain file routes:
//
//	GET /proxy/{id}.m3u   served playlist
//	GET /proxy/{id}.xmltv served guide
func (h *OutputHandler) RegisterFileServer(router *chi.Mux) {
	router.Get("/proxy/{proxyID}.m3u", h.serve(m3uKind))
	router.Get("/proxy/{proxyID}.xmltv", h.serve(xmltvKind))
}

// Register adds the output endpoints to the API so they appear in the
// OpenAPI document.
func (h *OutputHandler) Register(api huma.API) {
	const tag = "Proxy Output"

	huma.Register(api, operation("getProxyM3U", http.MethodGet, "/proxy/{proxyID}.m3u",
		"Get proxy M3U playlist",
		"Returns the generated M3U playlist for a proxy", tag), h.GetM3U)
	huma.Register(api, operation("getProxyXMLTV", http.MethodGet, "/proxy/{proxyID}.xmltv",
		"Get proxy XMLTV guide",
		"Returns the generated XMLTV program guide for a proxy", tag), h.GetXMLTV)
}

// fetch validates the proxy ID and reads the requested artifact, mapping
// failures to API errors.
func (h *OutputHandler) fetch(kind outputKind, rawID string) ([]byte, error) {
	if _, err := models.ParseULID(rawID); err != nil {
		return nil, huma.Error400BadRequest("invalid proxy ID format", err)
	}
	data, err := h.readOutputFile(rawID, kind.ext)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, huma.Error404NotFound(fmt.Sprintf("%s not found for proxy %s. Generate the proxy first.", kind.label, rawID))
	case err != nil:
		return nil, huma.Error500InternalServerError("failed to read "+kind.label+" file", err)
	}
	return data, nil
}

// GetM3UInput identifies the proxy whose playlist is requested.
type GetM3UInput struct {
	ProxyID string `path:"proxyID" doc:"Stream proxy ID (ULID)"`
}

// GetM3UOutput carries the playlist bytes.
type GetM3UOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// GetM3U returns the M3U file for a proxy.
func (h *OutputHandler) GetM3U(ctx context.Context, input *GetM3UInput) (*GetM3UOutput, error) {
	data, err := h.fetch(m3uKind, input.ProxyID)
	if err != nil {
		return nil, err
	}
	return &GetM3UOutput{ContentType: m3uKind.mime, Body: data}, nil
}

// GetXMLTVInput identifies the proxy whose guide is requested.
type GetXMLTVInput struct {
	ProxyID string `path:"proxyID" doc:"Stream proxy ID (ULID)"`
}

// GetXMLTVOutput carries the guide bytes.
type GetXMLTVOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// GetXMLTV returns the XMLTV file for a proxy.
func (h *OutputHandler) GetXMLTV(ctx context.Context, input *GetXMLTVInput) (*GetXMLTVOutput, error) {
	data, err := h.fetch(xmltvKind, input.ProxyID)
	if err != nil {
		return nil, err
	}
	return &GetXMLTVOutput{ContentType: xmltvKind.mime, Body: data}, nil
}

// serve returns a plain HTTP handler for one artifact kind. Unlike the API
// endpoints it offers the file as a download.
func (h *OutputHandler) serve(kind outputKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		proxyID := chi.URLParam(r, "proxyID")
		if _, err := models.ParseULID(proxyID); err != nil {
			http.Error(w, "invalid proxy ID format", http.StatusBadRequest)
			return
		}

		data, err := h.readOutputFile(proxyID, kind.ext)
		switch {
		case errors.Is(err, os.ErrNotExist):
			http.Error(w, fmt.Sprintf("%s not found for proxy %s", kind.label, proxyID), http.StatusNotFound)
			return
		case err != nil:
			h.log.Error("failed to read "+kind.label+" file",
				slog.String("proxy_id", proxyID), slog.String("error", err.Error()))
			http.Error(w, "failed to read "+kind.label+" file", http.StatusInternalServerError)
			return
		}

		defaultStreamCORS.apply(w.Header())
		w.Header().Set("Content-Type", kind.mime)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", proxyID+"."+kind.download))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// readOutputFile reads a generated file from the sandbox. The proxy ID is
// checked against path traversal before it is used as a file name.
func (h *OutputHandler) readOutputFile(proxyID, ext string) ([]byte, error) {
	if filepath.Clean(proxyID) != proxyID || strings.ContainsAny(proxyID, `/\`) {
		return nil, fmt.Errorf("invalid proxy ID")
	}
	return h.sandbox.ReadFile(filepath.Join("output", proxyID+ext))
}
