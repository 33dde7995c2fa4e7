package ingestor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanarr/chanarr/internal/models"
)

func m3uSource(url string) *models.StreamSource {
	return &models.StreamSource{
		BaseModel: models.BaseModel{ID: models.NewULID()},
		Name:      "Test Source",
		Type:      models.SourceTypeM3U,
		URL:       url,
	}
}

func servePlaylist(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-mpegurl")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func readChannels(t *testing.T, playlist string) []*models.Channel {
	t.Helper()
	var channels []*models.Channel
	err := NewM3UHandler().IngestFromReader(context.Background(), strings.NewReader(playlist), models.NewULID(),
		func(ch *models.Channel) error {
			channels = append(channels, ch)
			return nil
		})
	require.NoError(t, err)
	return channels
}

func TestM3UHandlerType(t *testing.T) {
	assert.Equal(t, models.SourceTypeM3U, NewM3UHandler().Type())
}

func TestM3UHandlerValidate(t *testing.T) {
	h := NewM3UHandler()

	cases := []struct {
		name   string
		source *models.StreamSource
		errMsg string
	}{
		{name: "nil source", source: nil, errMsg: "source is nil"},
		{
			name:   "wrong source type",
			source: &models.StreamSource{Name: "Test", Type: models.SourceType("json"), URL: "http://example.com/playlist.m3u"},
			errMsg: "source type must be m3u",
		},
		{
			name:   "empty URL",
			source: &models.StreamSource{Name: "Test", Type: models.SourceTypeM3U},
			errMsg: "URL is required",
		},
		{
			name:   "unsupported scheme",
			source: &models.StreamSource{Name: "Test", Type: models.SourceTypeM3U, URL: "ftp://example.com/playlist.m3u"},
			errMsg: "HTTP, HTTPS, or file://",
		},
		{name: "http", source: &models.StreamSource{Name: "Test", Type: models.SourceTypeM3U, URL: "http://example.com/playlist.m3u"}},
		{name: "https", source: &models.StreamSource{Name: "Test", Type: models.SourceTypeM3U, URL: "https://example.com/playlist.m3u"}},
		{name: "file", source: &models.StreamSource{Name: "Test", Type: models.SourceTypeM3U, URL: "file:///path/to/playlist.m3u"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.Validate(tc.source)
			if tc.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestM3UHandlerIngest(t *testing.T) {
	server := servePlaylist(t, `#EXTM3U
#EXTINF:-1 tvg-id="ch1" tvg-name="Channel One" tvg-logo="http://logo.com/1.png" group-title="News",News Channel 1 HD
http://stream.example.com/news1.m3u8
#EXTINF:-1 tvg-id="ch2" tvg-name="Channel Two" group-title="Sports" tvg-chno="42",Sports Channel 2
http://stream.example.com/sports2.m3u8
`)

	source := m3uSource(server.URL)
	var channels []*models.Channel
	err := NewM3UHandler().Ingest(context.Background(), source, func(ch *models.Channel) error {
		channels = append(channels, ch)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, channels, 2)

	first := channels[0]
	assert.Equal(t, source.ID, first.SourceID)
	assert.Equal(t, "ch1", first.TvgID)
	assert.Equal(t, "Channel One", first.TvgName)
	assert.Equal(t, "http://logo.com/1.png", first.TvgLogo)
	assert.Equal(t, "News", first.GroupTitle)
	assert.Equal(t, "News Channel 1 HD", first.ChannelName)
	assert.Equal(t, "http://stream.example.com/news1.m3u8", first.StreamURL)
	assert.Equal(t, "ch1", first.ExtID)

	assert.Equal(t, 42, channels[1].ChannelNumber)
	assert.Equal(t, "Sports", channels[1].GroupTitle)
}

func TestM3UHandlerIngestCallbackError(t *testing.T) {
	server := servePlaylist(t, `#EXTM3U
#EXTINF:-1,Channel 1
http://example.com/1.m3u8
#EXTINF:-1,Channel 2
http://example.com/2.m3u8
`)

	callbackErr := errors.New("callback error")
	calls := 0
	err := NewM3UHandler().Ingest(context.Background(), m3uSource(server.URL), func(ch *models.Channel) error {
		calls++
		return callbackErr
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "callback error")
	assert.Equal(t, 1, calls)
}

func TestM3UHandlerIngestContextCancellation(t *testing.T) {
	server := servePlaylist(t, `#EXTM3U
#EXTINF:-1,First Feed
http://streams.test/first.m3u8
#EXTINF:-1,Second Feed
http://streams.test/second.m3u8
#EXTINF:-1,Third Feed
http://streams.test/third.m3u8
`)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewM3UHandler().Ingest(ctx, m3uSource(server.URL), func(ch *models.Channel) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return nil
	})
	require.Error(t, err)
	if !errors.Is(err, context.Canceled) {
		assert.Contains(t, err.Error(), "context canceled")
	}
}

func TestM3UHandlerIngestHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := NewM3UHandler().Ingest(context.Background(), m3uSource(server.URL), func(ch *models.Channel) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestM3UHandlerIngestFromReader(t *testing.T) {
	sourceID := models.NewULID()
	var channels []*models.Channel
	err := NewM3UHandler().IngestFromReader(context.Background(), strings.NewReader(`#EXTM3U
#EXTINF:-1 tvg-id="test",Test Channel
http://example.com/test.m3u8
`), sourceID, func(ch *models.Channel) error {
		channels = append(channels, ch)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, sourceID, channels[0].SourceID)
	assert.Equal(t, "test", channels[0].TvgID)
}

func TestM3UHandlerChannelNameFallback(t *testing.T) {
	cases := []struct {
		name     string
		playlist string
		want     string
	}{
		{
			name: "extinf title wins",
			playlist: `#EXTM3U
#EXTINF:-1 tvg-name="TVG Name",EXTINF Title
http://example.com/stream.m3u8
`,
			want: "EXTINF Title",
		},
		{
			name: "tvg-name when title empty",
			playlist: `#EXTM3U
#EXTINF:-1 tvg-name="TVG Name",
http://example.com/stream.m3u8
`,
			want: "TVG Name",
		},
		{
			name: "url basename as last resort",
			playlist: `#EXTM3U
http://example.com/my-stream.m3u8
`,
			want: "my-stream",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			channels := readChannels(t, tc.playlist)
			require.Len(t, channels, 1)
			assert.Equal(t, tc.want, channels[0].ChannelName)
		})
	}
}

func TestM3UHandlerExtIDGeneration(t *testing.T) {
	withTvgID := readChannels(t, `#EXTM3U
#EXTINF:-1 tvg-id="unique-id",Channel
http://example.com/stream.m3u8
`)
	require.Len(t, withTvgID, 1)
	assert.Equal(t, "unique-id", withTvgID[0].ExtID)

	withoutTvgID := readChannels(t, `#EXTM3U
#EXTINF:-1,Channel
http://example.com/stream.m3u8
`)
	require.Len(t, withoutTvgID, 1)
	assert.Equal(t, "http://example.com/stream.m3u8", withoutTvgID[0].ExtID)
}

func TestM3UHandlerExtraAttributes(t *testing.T) {
	channels := readChannels(t, `#EXTM3U
#EXTINF:-1 tvg-id="ch1" custom-attr="custom-value" another="test",Channel
http://example.com/stream.m3u8
`)
	require.Len(t, channels, 1)
	require.NotEmpty(t, channels[0].Extra)
	assert.Contains(t, channels[0].Extra, "custom-attr")
}

func TestExtractNameFromURL(t *testing.T) {
	cases := map[string]string{
		"http://example.com/stream.m3u8":                  "stream",
		"http://example.com/path/to/channel.ts":           "channel",
		"http://example.com/live?token=abc":               "live",
		"http://example.com/":                             "Unknown",
		"http://example.com":                              "example",
		"http://example.com/my-cool-stream.m3u8?auth=xyz": "my-cool-stream",
	}
	for url, want := range cases {
		assert.Equal(t, want, extractNameFromURL(url), "url %s", url)
	}
}
