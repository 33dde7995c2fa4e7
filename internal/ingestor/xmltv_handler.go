package ingestor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/urlutil"
	"github.com/chanarr/chanarr/pkg/httpclient"
	"github.com/chanarr/chanarr/pkg/xmltv"
)

const defaultXMLTVTimeout = 5 * time.Minute

// XMLTVHandler ingests XMLTV guide sources over HTTP(S) or file:// URLs.
type XMLTVHandler struct {
	fetcher *urlutil.ResourceFetcher
}

var _ EpgHandler = (*XMLTVHandler)(nil)

// NewXMLTVHandler returns a handler with the default fetch settings.
// Guide files can be large, so the timeout is generous.
func NewXMLTVHandler() *XMLTVHandler {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = defaultXMLTVTimeout
	return &XMLTVHandler{fetcher: urlutil.NewResourceFetcher(cfg)}
}

// WithHTTPClientConfig replaces the fetcher with one using cfg.
func (h *XMLTVHandler) WithHTTPClientConfig(cfg httpclient.Config) *XMLTVHandler {
	h.fetcher = urlutil.NewResourceFetcher(cfg)
	return h
}

func (h *XMLTVHandler) Type() models.EpgSourceType {
	return models.EpgSourceTypeXMLTV
}

// Validate checks that the source is an XMLTV source with a usable URL.
func (h *XMLTVHandler) Validate(source *models.EpgSource) error {
	switch {
	case source == nil:
		return errors.New("source is nil")
	case source.Type != models.EpgSourceTypeXMLTV:
		return fmt.Errorf("invalid source type: expected %s, got %s", models.EpgSourceTypeXMLTV, source.Type)
	case source.URL == "":
		return errors.New("URL is required for XMLTV sources")
	case !urlutil.IsSupportedURL(source.URL):
		return errors.New("URL must be HTTP, HTTPS, or file:// URL")
	}
	return nil
}

// Ingest fetches and parses the guide, streaming valid channels and
// programmes through the callbacks. Records that fail model validation
// (missing IDs, inverted time ranges) are dropped silently, as are
// malformed XML entries.
func (h *XMLTVHandler) Ingest(ctx context.Context, source *models.EpgSource, onChannel EpgChannelCallback, onProgram ProgramCallback) error {
	if err := h.Validate(source); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	body, err := h.fetcher.Fetch(ctx, source.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch XMLTV: %w", err)
	}
	defer body.Close()

	parser := &xmltv.Parser{
		OnChannel: func(channel *xmltv.Channel) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if onChannel == nil {
				return nil
			}
			guide := h.convertChannel(channel, source)
			if guide.Validate() != nil {
				return nil
			}
			return onChannel(guide)
		},
		OnProgramme: func(programme *xmltv.Programme) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if onProgram == nil {
				return nil
			}
			program := h.convertProgramme(programme, source)
			if program.Validate() != nil {
				return nil
			}
			return onProgram(program)
		},
		OnError: func(err error) {},
	}

	if err := parser.ParseCompressed(body); err != nil {
		return fmt.Errorf("failed to parse XMLTV: %w", err)
	}
	return nil
}

func (h *XMLTVHandler) convertChannel(c *xmltv.Channel, source *models.EpgSource) *models.EpgChannel {
	name := c.DisplayName
	if name == "" {
		name = c.ID
	}
	return &models.EpgChannel{
		SourceID:    source.ID,
		ChannelID:   c.ID,
		ChannelName: name,
		ChannelLogo: c.Icon,
	}
}

func (h *XMLTVHandler) convertProgramme(p *xmltv.Programme, source *models.EpgSource) *models.EpgProgram {
	return &models.EpgProgram{
		SourceID:    source.ID,
		ChannelID:   p.Channel,
		Start:       h.shiftTime(p.Start, source),
		Stop:        h.shiftTime(p.Stop, source),
		Title: p.Title, SubTitle: p.SubTitle, Description: p.Description,
		Category: p.Category, Icon: p.Icon, EpisodeNum: p.EpisodeNum,
		Rating: p.Rating, Language: p.Language,
	}
}

// shiftTime normalizes a guide time to UTC and applies the source's
// EpgShift, a whole-hour offset.
func (h *XMLTVHandler) shiftTime(t time.Time, source *models.EpgSource) time.Time {
	if source == nil {
		return t
	}
	t = t.UTC()
	if source.EpgShift != 0 {
		t = t.Add(time.Duration(source.EpgShift) * time.Hour)
	}
	return t
}
