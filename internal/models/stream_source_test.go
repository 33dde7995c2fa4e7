package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validStreamSource() *StreamSource {
	return &StreamSource{
		Name: "provider",
		Type: SourceTypeM3U,
		URL:  "http://example.com/playlist.m3u",
	}
}

func TestStreamSource_Validate(t *testing.T) {
	s := validStreamSource()
	assert.NoError(t, s.Validate())

	s = validStreamSource()
	s.Name = ""
	assert.ErrorIs(t, s.Validate(), ErrNameRequired)

	s = validStreamSource()
	s.URL = ""
	assert.ErrorIs(t, s.Validate(), ErrURLRequired)

	s = validStreamSource()
	s.Type = "rtsp"
	assert.ErrorIs(t, s.Validate(), ErrInvalidSourceType)

	// Empty type defaults to m3u
	s = validStreamSource()
	s.Type = ""
	require.NoError(t, s.Validate())
	assert.Equal(t, SourceTypeM3U, s.Type)
}

func TestStreamSource_Sanitize(t *testing.T) {
	s := &StreamSource{
		Name: "  provider  ",
		Type: SourceTypeM3U,
		URL:  " http://example.com/playlist.m3u ",
	}
	require.NoError(t, s.Validate())
	assert.Equal(t, "provider", s.Name)
	assert.Equal(t, "http://example.com/playlist.m3u", s.URL)
}

func TestStreamSource_StatusTransitions(t *testing.T) {
	s := validStreamSource()

	s.MarkIngesting()
	assert.Equal(t, SourceStatusIngesting, s.Status)

	s.MarkSuccess(42)
	assert.Equal(t, SourceStatusSuccess, s.Status)
	assert.Equal(t, 42, s.ChannelCount)
	assert.NotNil(t, s.LastIngestionAt)
	assert.Empty(t, s.LastError)

	s.MarkFailed(errors.New("fetch failed"))
	assert.Equal(t, SourceStatusFailed, s.Status)
	assert.Equal(t, "fetch failed", s.LastError)
}

func validEpgSource() *EpgSource {
	return &EpgSource{
		Name: "guide",
		Type: EpgSourceTypeXMLTV,
		URL:  "http://example.com/guide.xml",
	}
}

func TestEpgSource_Validate(t *testing.T) {
	s := validEpgSource()
	assert.NoError(t, s.Validate())

	s = validEpgSource()
	s.Name = ""
	assert.ErrorIs(t, s.Validate(), ErrNameRequired)

	s = validEpgSource()
	s.URL = ""
	assert.ErrorIs(t, s.Validate(), ErrURLRequired)

	s = validEpgSource()
	s.Type = "json"
	assert.ErrorIs(t, s.Validate(), ErrInvalidEpgSourceType)
}

func TestEpgSource_StatusTransitions(t *testing.T) {
	s := validEpgSource()

	s.MarkIngesting()
	assert.Equal(t, EpgSourceStatusIngesting, s.Status)

	s.MarkSuccess(12, 340)
	assert.Equal(t, EpgSourceStatusSuccess, s.Status)
	assert.Equal(t, 12, s.ChannelCount)
	assert.Equal(t, 340, s.ProgramCount)

	s.MarkFailed(errors.New("bad xml"))
	assert.Equal(t, EpgSourceStatusFailed, s.Status)
	assert.Equal(t, "bad xml", s.LastError)
}
