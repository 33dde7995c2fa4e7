// Package urlutil provides URL manipulation utilities.
package urlutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/chanarr/chanarr/pkg/httpclient"
)

// Supported URL schemes.
const (
	SchemeHTTP, SchemeHTTPS, SchemeFile = "http", "https", "file"
)

// NormalizeBaseURL prepares a base URL for path joining: whitespace is
// trimmed, a missing scheme defaults to http://, and any trailing slash
// is removed.
//
//	"www.mysite.com"         -> "http://www.mysite.com"
//	"https://mysite.com/"    -> "https://mysite.com"
//	"http://localhost:8080/" -> "http://localhost:8080"
//	"mysite.com:8080"        -> "http://mysite.com:8080"
func NormalizeBaseURL(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	u := strings.TrimSpace(baseURL)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "http://" + u
	}
	return strings.TrimSuffix(u, "/")
}

// remotePrefixes are the URL prefixes fetchable over the network.
var remotePrefixes = []string{"http://", "https://", "//"}

// JoinPath concatenates a base URL and a path with exactly one slash
// between them.
func JoinPath(baseURL, path string) string {
	if baseURL == "" {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(baseURL, "/") + path
}

// IsRemoteURL reports whether u is fetchable over the network: an
// http:// or https:// URL, or a protocol-relative //host URL. Relative
// paths, local paths, and empty strings are not remote.
func IsRemoteURL(u string) bool {
	return slices.ContainsFunc(remotePrefixes, func(prefix string) bool {
		return strings.HasPrefix(u, prefix)
	})
}

// IsFileURL reports whether u uses the file:// scheme.
func IsFileURL(u string) bool {
	return strings.HasPrefix(u, "file://")
}

// IsSupportedURL reports whether u uses one of the schemes this package
// can fetch (http, https, or file).
func IsSupportedURL(u string) bool {
	return IsRemoteURL(u) || IsFileURL(u)
}

// GetScheme returns the lowercased scheme of u, or "" when u does not
// parse or carries no scheme.
func GetScheme(u string) string {
	if parsed, err := url.Parse(u); err == nil {
		return strings.ToLower(parsed.Scheme)
	}
	return ""
}

// FilePathFromURL extracts the filesystem path from a file:// URL.
// Both file:///path and file://localhost/path forms are accepted.
// Windows drive paths (file:///C:/...) keep their leading slash; the
// caller strips it when needed.
func FilePathFromURL(u string) (string, error) {
	if !IsFileURL(u) {
		return "", fmt.Errorf("not a file:// URL: %s", u)
	}
	parsed, err := url.Parse(u)
	switch {
	case err != nil:
		return "", fmt.Errorf("invalid URL: %w", err)
	case parsed.Path == "":
		return "", fmt.Errorf("empty path in file URL: %s", u)
	}
	return parsed.Path, nil
}

// ResourceFetcher retrieves content from http://, https://, and file://
// URLs through a single interface.
type ResourceFetcher struct {
	httpClient *httpclient.Client
}

// NewResourceFetcher builds a ResourceFetcher from the given HTTP client
// config, attached to the shared per-host circuit breaker.
func NewResourceFetcher(cfg httpclient.Config) *ResourceFetcher {
	return NewResourceFetcherWithBreaker(cfg, httpclient.DefaultManager.GetOrCreate("resource-fetcher"))
}

// NewResourceFetcherWithBreaker builds a ResourceFetcher bound to a
// specific circuit breaker.
func NewResourceFetcherWithBreaker(cfg httpclient.Config, breaker *httpclient.CircuitBreaker) *ResourceFetcher {
	return &ResourceFetcher{httpClient: httpclient.NewWithBreaker(cfg, breaker)}
}

// NewDefaultResourceFetcher builds a ResourceFetcher with default
// client settings.
func NewDefaultResourceFetcher() *ResourceFetcher {
	return NewResourceFetcher(httpclient.DefaultConfig())
}

// Fetch opens a URL for reading. The caller owns the returned
// io.ReadCloser and must close it.
func (f *ResourceFetcher) Fetch(ctx context.Context, u string) (io.ReadCloser, error) {
	switch scheme := GetScheme(u); scheme {
	case SchemeFile:
		return f.fetchFile(u)
	case SchemeHTTP, SchemeHTTPS:
		return f.fetchHTTP(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (URL: %s)", scheme, u)
	}
}

func (f *ResourceFetcher) fetchHTTP(ctx context.Context, u string) (io.ReadCloser, error) {
	res, err := f.httpClient.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	if res.StatusCode == http.StatusOK {
		return res.Body, nil
	}
	_ = res.Body.Close()
	return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
}

func (f *ResourceFetcher) fetchFile(u string) (io.ReadCloser, error) {
	path, err := FilePathFromURL(u)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err == nil {
		return file, nil
	}
	return nil, fmt.Errorf("failed to open file: %w", err)
}

// ValidateURL checks that u parses and uses a supported scheme. For
// file:// URLs the referenced path must also exist.
func ValidateURL(u string) error {
	if u == "" {
		return errors.New("URL is required")
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	switch scheme := strings.ToLower(parsed.Scheme); scheme {
	case SchemeHTTP, SchemeHTTPS:
		return nil
	case SchemeFile:
		path, err := FilePathFromURL(u)
		if err != nil {
			return err
		}
		_, err = os.Stat(path)
		switch {
		case os.IsNotExist(err):
			return fmt.Errorf("file not found: %s", path)
		case err != nil:
			return fmt.Errorf("cannot access file: %w", err)
		}
		return nil
	case "":
		return errors.New("URL must include a scheme (http://, https://, or file://)")
	default:
		return fmt.Errorf("unsupported URL scheme: %s (supported: http, https, file)", scheme)
	}
}
