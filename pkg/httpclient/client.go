// Package httpclient wraps net/http with the resilience features chanarr's
// ingest paths need when pulling playlists and guide data from upstream
// providers: retry with exponential backoff, shared circuit breakers,
// transparent response decompression, and a post-decompression size cap.
package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

var (
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrMaxRetries       = errors.New("max retries exceeded")
	ErrResponseTooLarge = errors.New("response body exceeds maximum size limit")
)

// Request defaults.
const (
	DefaultTimeout           = 30 * time.Second
	DefaultRetryAttempts     = 3
	DefaultRetryDelay        = 1 * time.Second
	DefaultRetryMaxDelay     = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultUserAgent         = "chanarr/1.0"
)

// Config holds the client settings. The zero value is not usable; start
// from DefaultConfig and override.
type Config struct {
	// Timeout bounds the whole request, including body read.
	Timeout time.Duration

	// RetryAttempts is how many times a failed request is retried.
	RetryAttempts int

	// RetryDelay is the delay before the first retry; each further retry
	// multiplies it by BackoffMultiplier up to RetryMaxDelay.
	RetryDelay        time.Duration
	RetryMaxDelay     time.Duration
	BackoffMultiplier float64

	// Circuit breaker settings, used only when the client builds its own
	// breaker rather than sharing one via NewWithBreaker.
	CircuitThreshold   int
	CircuitTimeout     time.Duration
	CircuitHalfOpenMax int

	// UserAgent is sent when the request carries no User-Agent of its own.
	UserAgent string

	Logger *slog.Logger

	// EnableDecompression makes the client advertise and transparently
	// decode gzip, deflate, and brotli response bodies.
	EnableDecompression bool

	// MaxResponseSize caps the body size in bytes, measured after
	// decompression so a small compressed payload cannot balloon past it.
	// Zero means no cap.
	MaxResponseSize int64

	// AcceptableStatusCodes defines which responses count as success for
	// the circuit breaker. Nil means any 2xx. Retryable codes (429, 502,
	// 503, 504) are retried regardless.
	AcceptableStatusCodes *StatusCodeSet

	// BaseClient, when set, replaces the internally built http.Client.
	BaseClient *http.Client
}

// DefaultConfig returns the settings used for upstream fetches unless a
// source overrides them.
func DefaultConfig() Config {
	return Config{
		Timeout:       DefaultTimeout,
		RetryAttempts: DefaultRetryAttempts,
		RetryDelay:    DefaultRetryDelay, RetryMaxDelay: DefaultRetryMaxDelay,
		BackoffMultiplier:  DefaultBackoffMultiplier,
		CircuitThreshold:   DefaultCircuitThreshold,
		CircuitTimeout:     DefaultCircuitTimeout,
		CircuitHalfOpenMax: DefaultCircuitHalfOpenMax,
		UserAgent:          DefaultUserAgent,
		Logger:             slog.Default(), EnableDecompression: true,
	}
}

// Client is an HTTP client with retries, a circuit breaker, and transparent
// decompression.
type Client struct {
	cfg     Config
	httpc   *http.Client
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// New creates a client with its own circuit breaker.
func New(cfg Config) *Client {
	return NewWithBreaker(cfg, nil)
}

// NewWithBreaker creates a client using the given breaker, typically one
// shared through a CircuitBreakerManager. A nil breaker gets a private one
// built from the config.
func NewWithBreaker(cfg Config, breaker *CircuitBreaker) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if breaker == nil {
		breaker = NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitTimeout, cfg.CircuitHalfOpenMax)
	}
	httpc := cfg.BaseClient
	if httpc == nil {
		httpc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, httpc: httpc, breaker: breaker, logger: cfg.Logger}
}

// Get fetches url with the client's retry and breaker policy.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.Do(req)
}

// Do executes the request, retrying transport errors and retryable status
// codes with exponential backoff. The circuit breaker is consulted before
// each attempt and updated with the outcome.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if req.Header.Get("User-Agent") == "" && c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.EnableDecompression && req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			c.logger.Debug("retrying request",
				slog.Int("attempt", attempt),
				slog.Duration("delay", wait),
				slog.String("url", req.URL.String()),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		if !c.breaker.Allow() {
			lastErr = ErrCircuitOpen
			c.logger.Warn("circuit breaker open, skipping request",
				slog.String("url", req.URL.String()),
				slog.String("state", c.breaker.State().String()))
			continue
		}

		resp, err := c.attempt(ctx, req, attempt)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
	}

	if lastErr == nil {
		return nil, ErrMaxRetries
	}
	return nil, fmt.Errorf("%w: %v", ErrMaxRetries, lastErr)
}

// attempt performs a single exchange, recording the outcome on the breaker.
func (c *Client) attempt(ctx context.Context, req *http.Request, n int) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpc.Do(req.WithContext(ctx))
	elapsed := time.Since(start)
	if err != nil {
		c.breaker.RecordFailure()
		c.logger.Warn("request failed",
			slog.String("url", req.URL.String()),
			slog.String("method", req.Method),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
			slog.Int("attempt", n),
		)
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		c.breaker.RecordFailure()
		resp.Body.Close()
		c.logger.Warn("retryable status code",
			slog.String("url", req.URL.String()),
			slog.Int("status", resp.StatusCode),
			slog.Int("attempt", n),
		)
		return nil, fmt.Errorf("retryable status code: %d", resp.StatusCode)
	}

	if c.acceptable(resp.StatusCode) {
		c.breaker.RecordSuccess()
	} else {
		// Not retried, but the breaker still counts it against the upstream.
		c.breaker.RecordFailure()
	}

	c.logger.Debug("request completed",
		slog.String("url", req.URL.String()),
		slog.String("method", req.Method),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", elapsed),
		slog.Int64("content_length", resp.ContentLength),
	)

	if c.cfg.EnableDecompression {
		resp.Body = c.decodeBody(resp)
	}
	if c.cfg.MaxResponseSize > 0 {
		resp.Body = &cappedBody{body: resp.Body, remaining: c.cfg.MaxResponseSize}
	}
	return resp, nil
}

// backoff returns the delay before retry attempt n (n >= 1).
func (c *Client) backoff(n int) time.Duration {
	d := time.Duration(float64(c.cfg.RetryDelay) * math.Pow(c.cfg.BackoffMultiplier, float64(n-1)))
	if d > c.cfg.RetryMaxDelay || d <= 0 {
		d = c.cfg.RetryMaxDelay
	}
	return d
}

// acceptable reports whether a status code counts as success for the
// breaker. An explicit AcceptableStatusCodes set takes full control,
// otherwise any 2xx passes.
func (c *Client) acceptable(code int) bool {
	if !c.cfg.AcceptableStatusCodes.IsEmpty() {
		return c.cfg.AcceptableStatusCodes.Contains(code)
	}
	return code >= 200 && code < 300
}

// decodeBody wraps the response body in a decoder matching its
// Content-Encoding. Unknown encodings pass through untouched.
func (c *Client) decodeBody(resp *http.Response) io.ReadCloser {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			c.logger.Warn("failed to create gzip reader, returning raw body",
				slog.String("error", err.Error()))
			return resp.Body
		}
		return &decodedBody{r: gz, raw: resp.Body}
	case "deflate":
		return &decodedBody{r: flate.NewReader(resp.Body), raw: resp.Body}
	case "br":
		return &decodedBody{r: brotli.NewReader(resp.Body), raw: resp.Body}
	}
	return resp.Body
}

// decodedBody reads through a decoder while closing both the decoder and
// the underlying network body.
type decodedBody struct {
	r   io.Reader
	raw io.Closer
}

func (d *decodedBody) Read(p []byte) (int, error) { return d.r.Read(p) }

func (d *decodedBody) Close() error {
	if closer, ok := d.r.(io.Closer); ok {
		closer.Close()
	}
	return d.raw.Close()
}

// cappedBody enforces MaxResponseSize on the decompressed stream, failing
// with ErrResponseTooLarge once the cap is crossed.
type cappedBody struct {
	body      io.ReadCloser
	remaining int64
	tripped   bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.tripped {
		return 0, ErrResponseTooLarge
	}
	n, err := b.body.Read(p)
	b.remaining -= int64(n)
	if b.remaining < 0 {
		b.tripped = true
		return n, ErrResponseTooLarge
	}
	return n, err
}

func (b *cappedBody) Close() error { return b.body.Close() }
