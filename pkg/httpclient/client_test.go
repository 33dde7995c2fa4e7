package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.RetryMaxDelay = 5 * time.Millisecond
	return cfg
}

func TestGetRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "#EXTM3U\n")
	}))
	defer srv.Close()

	client := New(fastConfig())
	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.RetryAttempts = 2
	client := New(cfg)

	_, err := client.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMaxRetries))
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.RetryAttempts = 0
	cfg.CircuitThreshold = 2
	client := New(cfg)

	// 500 is not retryable; each call returns the response and counts one failure.
	for i := 0; i < 2; i++ {
		resp, err := client.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	_, err := client.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestAcceptableStatusCodesKeepCircuitClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.RetryAttempts = 0
	cfg.CircuitThreshold = 1
	cfg.AcceptableStatusCodes = MustParseStatusCodes("200-299,404")
	client := New(cfg)

	for i := 0; i < 3; i++ {
		resp, err := client.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, CircuitClosed, client.breaker.State())
}

func TestGzipDecompression(t *testing.T) {
	const payload = "#EXTM3U\n#EXTINF:-1,BBC One\nhttp://example.com/1\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		io.WriteString(gz, payload)
		gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	client := New(fastConfig())
	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
}

func TestBrotliDecompression(t *testing.T) {
	const payload = "<?xml version=\"1.0\"?><tv></tv>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		br := brotli.NewWriter(&buf)
		io.WriteString(br, payload)
		br.Close()
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	client := New(fastConfig())
	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
}

func TestResponseSizeCapAppliesAfterDecompression(t *testing.T) {
	// A small compressed payload that expands past the cap must still trip it.
	expanded := strings.Repeat("A", 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		io.WriteString(gz, expanded)
		gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxResponseSize = 1024
	client := New(cfg)

	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	_, err = io.ReadAll(resp.Body)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResponseTooLarge))
}

func TestDefaultUserAgentApplied(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := New(fastConfig())
	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, DefaultUserAgent, got)
}

func TestSharedBreakerAcrossClients(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.RetryAttempts = 0
	shared := NewCircuitBreaker(2, time.Minute, 1)

	a := NewWithBreaker(cfg, shared)
	b := NewWithBreaker(cfg, shared)

	resp, err := a.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	resp, err = b.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, CircuitOpen, shared.State())
}

func TestContextCancellationNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	client := New(fastConfig())
	_, err := client.Get(ctx, srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
