package urlutil

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBaseURL(t *testing.T) {
	cases := map[string]string{
		"":                        "",
		"iptv.example.net":        "http://iptv.example.net",
		"http://iptv.example.net": "http://iptv.example.net",
		"https://iptv.example.net/": "https://iptv.example.net",
		"localhost:9192":            "http://localhost:9192",
		"  http://iptv.example.net  ": "http://iptv.example.net",
	}

	for in, want := range cases {
		assert.Equal(t, want, NormalizeBaseURL(in), "input %q", in)
	}
}

func TestJoinPath(t *testing.T) {
	cases := []struct {
		base, path, want string
	}{
		{"", "/lineup", "/lineup"},
		{"http://host.example", "/api/v1", "http://host.example/api/v1"},
		{"http://host.example", "api/v1", "http://host.example/api/v1"},
		{"http://host.example/", "/api", "http://host.example/api"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, JoinPath(c.base, c.path))
	}
}

func TestSchemePredicates(t *testing.T) {
	cases := []struct {
		url                   string
		remote, file, support bool
	}{
		{"http://host.example/list.m3u", true, false, true},
		{"https://host.example/list.m3u", true, false, true},
		{"//host.example/list.m3u", true, false, true},
		{"file:///var/lib/lists/list.m3u", false, true, true},
		{"file:///C:/lists/list.m3u", false, true, true},
		{"ftp://host.example/list.m3u", false, false, false},
		{"/var/lib/lists/list.m3u", false, false, false},
		{"", false, false, false},
	}

	for _, c := range cases {
		t.Run(c.url, func(t *testing.T) {
			assert.Equal(t, c.remote, IsRemoteURL(c.url))
			assert.Equal(t, c.file, IsFileURL(c.url))
			assert.Equal(t, c.support, IsSupportedURL(c.url))
		})
	}
}

func TestGetScheme(t *testing.T) {
	cases := map[string]string{
		"http://host.example":  "http",
		"https://host.example": "https",
		"file:///guide.xml":    "file",
		"FTP://host.example":   "ftp",
		"not a url\x7f":        "",
		"plain-text":           "",
		"":                     "",
	}

	for in, want := range cases {
		assert.Equal(t, want, GetScheme(in), "input %q", in)
	}
}

func TestFilePathFromURL(t *testing.T) {
	t.Run("unix path", func(t *testing.T) {
		path, err := FilePathFromURL("file:///srv/guides/epg.xml")
		require.NoError(t, err)
		assert.Equal(t, "/srv/guides/epg.xml", path)
	})

	t.Run("escaped spaces decode", func(t *testing.T) {
		path, err := FilePathFromURL("file:///srv/guides/my%20guide.xml")
		require.NoError(t, err)
		assert.Equal(t, "/srv/guides/my guide.xml", path)
	})

	t.Run("rejects non-file URL", func(t *testing.T) {
		_, err := FilePathFromURL("http://host.example/epg.xml")
		assert.Error(t, err)
	})

	t.Run("rejects empty string", func(t *testing.T) {
		_, err := FilePathFromURL("")
		assert.Error(t, err)
	})
}

func TestResourceFetcher_Fetch(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:-1,News One\nhttp://host.example/news.m3u8\n"
	playlist := filepath.Join(t.TempDir(), "lineup.m3u")
	require.NoError(t, os.WriteFile(playlist, []byte(body), 0644))

	fetcher := NewDefaultResourceFetcher()

	t.Run("reads local playlist", func(t *testing.T) {
		reader, err := fetcher.Fetch(context.Background(), "file://"+playlist)
		require.NoError(t, err)
		defer reader.Close()

		got, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, body, string(got))
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), "file:///no/such/lineup.m3u")
		assert.Error(t, err)
	})

	t.Run("unknown scheme errors", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), "gopher://host.example/lineup.m3u")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported URL scheme")
	})
}

func TestValidateURL(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "lineup.m3u")
	require.NoError(t, os.WriteFile(existing, []byte("#EXTM3U\n"), 0644))

	t.Run("accepts http, https, and existing file", func(t *testing.T) {
		for _, u := range []string{
			"http://host.example/lineup.m3u",
			"https://host.example/lineup.m3u",
			"file://" + existing,
		} {
			assert.NoError(t, ValidateURL(u), u)
		}
	})

	rejects := map[string]string{
		"":                                 "URL is required",
		"host.example/lineup.m3u":          "URL must include a scheme",
		"ftp://host.example/lineup.m3u":    "unsupported URL scheme",
		"file:///no/such/lineup.m3u":       "file not found",
	}
	for u, msg := range rejects {
		err := ValidateURL(u)
		require.Error(t, err, u)
		assert.Contains(t, err.Error(), msg)
	}
}

func TestNewResourceFetcher(t *testing.T) {
	fetcher := NewDefaultResourceFetcher()
	require.NotNil(t, fetcher)
	assert.NotNil(t, fetcher.httpClient)
}
