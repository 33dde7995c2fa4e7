package ingestor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/urlutil"
	"github.com/chanarr/chanarr/pkg/httpclient"
	"github.com/chanarr/chanarr/pkg/m3u"
)

// Playlists can be large; give fetches more room than the client default.
const defaultM3UTimeout = 5 * time.Minute

// M3UHandler ingests channels from M3U playlist sources.
type M3UHandler struct {
	// fetcher handles both HTTP/HTTPS and file:// URLs.
	fetcher *urlutil.ResourceFetcher
}

// NewM3UHandler creates a handler with the default fetch timeout.
func NewM3UHandler() *M3UHandler {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = defaultM3UTimeout
	return &M3UHandler{fetcher: urlutil.NewResourceFetcher(cfg)}
}

// WithHTTPClientConfig sets a custom HTTP client configuration.
func (h *M3UHandler) WithHTTPClientConfig(cfg httpclient.Config) *M3UHandler {
	h.fetcher = urlutil.NewResourceFetcher(cfg)
	return h
}

// Type returns the source type this handler supports.
func (h *M3UHandler) Type() models.SourceType { return models.SourceTypeM3U }

// Validate checks the source is a fetchable M3U source.
func (h *M3UHandler) Validate(source *models.StreamSource) error {
	switch {
	case source == nil:
		return fmt.Errorf("source is nil")
	case source.Type != models.SourceTypeM3U:
		return fmt.Errorf("source type must be m3u, got %s", source.Type)
	case source.URL == "":
		return fmt.Errorf("source URL is required")
	case !urlutil.IsSupportedURL(source.URL):
		return fmt.Errorf("source URL must be HTTP, HTTPS, or file:// URL")
	}
	return nil
}

// Ingest fetches the playlist and hands each parsed channel to callback.
func (h *M3UHandler) Ingest(ctx context.Context, source *models.StreamSource, callback ChannelCallback) error {
	if err := h.Validate(source); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	body, err := h.fetcher.Fetch(ctx, source.URL)
	if err != nil {
		return fmt.Errorf("fetching M3U: %w", err)
	}
	defer body.Close()

	return h.parse(ctx, body, source.ID, callback)
}

// IngestFromReader ingests from an io.Reader instead of fetching from URL.
// This is useful for testing or processing local files.
func (h *M3UHandler) IngestFromReader(ctx context.Context, r io.Reader, sourceID models.ULID, callback ChannelCallback) error {
	return h.parse(ctx, r, sourceID, callback)
}

// parse runs the streaming M3U parser over r, converting entries to channels.
// Malformed entries are skipped, not fatal.
func (h *M3UHandler) parse(ctx context.Context, r io.Reader, sourceID models.ULID, callback ChannelCallback) error {
	parser := &m3u.Parser{
		OnEntry: func(entry *m3u.Entry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return callback(h.entryToChannel(entry, sourceID))
		},
		OnError: func(lineNum int, err error) {},
	}

	// ParseCompressed sniffs and unwraps gzip/bzip2/xz transparently.
	if err := parser.ParseCompressed(r); err != nil {
		return fmt.Errorf("parsing M3U: %w", err)
	}
	return nil
}

// entryToChannel converts an M3U entry to a Channel model.
func (h *M3UHandler) entryToChannel(entry *m3u.Entry, sourceID models.ULID) *models.Channel {
	channel := &models.Channel{
		SourceID: sourceID,
		TvgID:    entry.TvgID, TvgName: entry.TvgName, TvgLogo: entry.TvgLogo,
		GroupTitle:    entry.GroupTitle,
		ChannelName:   channelName(entry),
		ChannelNumber: entry.ChannelNumber,
		StreamURL:     entry.URL,
		ExtID:         extID(entry),
	}

	if len(entry.Extra) > 0 {
		if extraJSON, err := json.Marshal(entry.Extra); err == nil {
			channel.Extra = string(extraJSON)
		}
	}
	return channel
}

// channelName picks the display name: title, then tvg-name, then a name
// derived from the stream URL.
func channelName(entry *m3u.Entry) string {
	switch {
	case entry.Title != "":
		return entry.Title
	case entry.TvgName != "":
		return entry.TvgName
	}
	return extractNameFromURL(entry.URL)
}

// extID picks the dedup identifier: tvg-id when present, else the URL,
// which is unique within a source.
func extID(entry *m3u.Entry) string {
	if entry.TvgID != "" {
		return entry.TvgID
	}
	return entry.URL
}

// extractNameFromURL derives a channel name from the last URL path
// segment, with the query string and extension stripped.
func extractNameFromURL(url string) string {
	lastSlash := strings.LastIndex(url, "/")
	if lastSlash < 0 || lastSlash >= len(url)-1 {
		return "Unknown"
	}

	name := url[lastSlash+1:]
	if qMark := strings.Index(name, "?"); qMark > 0 {
		name = name[:qMark]
	}
	if dot := strings.LastIndex(name, "."); dot > 0 {
		name = name[:dot]
	}
	if name == "" {
		return "Unknown"
	}
	return name
}

var _ SourceHandler = (*M3UHandler)(nil)
