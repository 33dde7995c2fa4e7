// Package http provides the HTTP server and API handlers for chanarr.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/chanarr/chanarr/internal/http/middleware"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string // bind address, default "0.0.0.0"
	Port int    // listen port, default 8080

	ReadTimeout  time.Duration // limit on reading a whole request
	WriteTimeout time.Duration // limit on writing a response
	IdleTimeout  time.Duration // how long to hold an idle keep-alive connection

	// ShutdownTimeout bounds how long Shutdown waits for in-flight
	// requests before giving up.
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns the defaults serve starts from before
// applying user configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host: "0.0.0.0", Port: 8080,
		ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second, ShutdownTimeout: 30 * time.Second,
	}
}

// Server wraps the chi router, the huma API mounted on it and the
// underlying net/http server.
type Server struct {
	cfg    ServerConfig
	router *chi.Mux
	api    huma.API
	srv    *http.Server
	log    *slog.Logger
}

// NewServer builds the router, middleware chain and huma API. version
// lands in the OpenAPI document and should match the build version.
func NewServer(cfg ServerConfig, logger *slog.Logger, version string) *Server {
	if version == "" {
		version = "dev"
	}
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP, middleware.RequestID)
	router.Use(middleware.NewLoggingMiddleware(logger), middleware.Recovery(logger))
	router.Use(middleware.CORS())

	// SSE (text/event-stream) requires unbuffered streaming; compression
	// interferes with flushing.
	router.Use(middleware.SkipCompressionForSSE(chimiddleware.Compress(5)))

	humaConfig := huma.DefaultConfig("chanarr API", version)
	humaConfig.Info.Description = "M3U/XMLTV proxy and EPG management API"
	// The built-in docs page is disabled; DocsHandler serves its own with
	// dark theme support.
	humaConfig.DocsPath = ""

	return &Server{
		cfg:    cfg,
		router: router,
		api:    humachi.New(router, humaConfig),
		log:    logger,
	}
}

// API returns the Huma API instance for registering operations.
func (s *Server) API() huma.API { return s.api }

// Router returns the Chi router for registering additional routes.
func (s *Server) Router() *chi.Mux { return s.router }

// Start blocks serving requests until the listener fails or the server
// is shut down.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.log.Info("starting HTTP server", slog.String("address", addr))

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests,
// up to ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}

	s.log.Info("shutting down HTTP server", slog.Duration("timeout", s.cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// ListenAndServe runs the server until ctx is cancelled, then shuts it
// down gracefully. It blocks until the server has stopped.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() { errChan <- s.Start() }()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}
	return s.Shutdown(context.Background())
}
