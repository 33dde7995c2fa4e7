// Package ingestor provides source ingestion handlers for stream and EPG sources.
package ingestor

import (
	"context"
	"io"

	"github.com/chanarr/chanarr/internal/models"
)

// ChannelCallback receives each channel as it is parsed. Returning an
// error stops the ingestion.
type ChannelCallback func(channel *models.Channel) error

// EpgChannelCallback receives each guide channel during EPG ingestion.
// Returning an error stops the ingestion.
type EpgChannelCallback func(channel *models.EpgChannel) error

// ProgramCallback receives each programme during EPG ingestion.
// Returning an error stops the ingestion.
type ProgramCallback func(program *models.EpgProgram) error

// SourceHandler ingests one stream source format.
type SourceHandler interface {
	// Type names the source format this handler covers, e.g. "m3u".
	Type() models.SourceType

	// Ingest streams the source's channels through the callback, one at
	// a time, so large playlists never need to be fully buffered.
	Ingest(ctx context.Context, source *models.StreamSource, callback ChannelCallback) error

	// Validate checks that the source configuration suits this handler.
	Validate(source *models.StreamSource) error
}

// EpgHandler ingests one EPG source format.
type EpgHandler interface {
	// Type names the guide format this handler covers, e.g. "xmltv".
	Type() models.EpgSourceType

	// Ingest streams guide channels and programmes through the
	// callbacks. Either callback may be nil to skip that record kind.
	Ingest(ctx context.Context, source *models.EpgSource, onChannel EpgChannelCallback, onProgram ProgramCallback) error

	// Validate checks that the source configuration suits this handler.
	Validate(source *models.EpgSource) error
}

// Fetcher retrieves raw source content. The caller closes the reader.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}
