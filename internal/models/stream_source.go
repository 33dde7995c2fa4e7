package models

import (
	"net/url"
	"strings"

	"gorm.io/gorm"
)

// SourceType is the playlist format of a stream source.
type SourceType string

// SourceTypeM3U is the only supported playlist format.
const SourceTypeM3U SourceType = "m3u"

// SourceStatus tracks where a source is in its ingestion lifecycle.
type SourceStatus string

const (
	SourceStatusPending   SourceStatus = "pending"   // never ingested
	SourceStatusIngesting SourceStatus = "ingesting" // ingestion in progress
	SourceStatusSuccess   SourceStatus = "success"   // last ingestion succeeded
	SourceStatusFailed    SourceStatus = "failed"    // last ingestion failed
)

// StreamSource is an upstream channel source, an M3U playlist URL plus
// the credentials and schedule used to fetch it. Name is unique across
// all stream sources.
type StreamSource struct {
	BaseModel

	Name      string     `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Type      SourceType `gorm:"not null;size:20" json:"type"`
	URL       string     `gorm:"not null;size:2048" json:"url"`
	Username  string     `gorm:"size:255" json:"username,omitempty"`  // HTTP basic auth
	Password  string     `gorm:"size:255" json:"password,omitempty"`  // HTTP basic auth
	UserAgent string     `gorm:"size:512" json:"user_agent,omitempty"`

	// Enabled is a pointer so "not set" (nil, defaults true) and
	// "explicitly false" stay distinguishable.
	Enabled *bool `gorm:"default:true" json:"enabled"`

	Status          SourceStatus `gorm:"not null;default:'pending';size:20" json:"status"`
	LastIngestionAt *Time        `json:"last_ingestion_at,omitempty"`
	LastError       string       `gorm:"size:4096" json:"last_error,omitempty"`
	ChannelCount    int          `gorm:"default:0" json:"channel_count"`

	// CronSchedule enables automatic ingestion, standard cron format
	// ("0 */6 * * *" for every 6 hours).
	CronSchedule string `gorm:"size:100" json:"cron_schedule,omitempty"`

	Channels []Channel `gorm:"foreignKey:SourceID;constraint:OnDelete:CASCADE" json:"channels,omitempty"`
}

func (StreamSource) TableName() string {
	return "stream_sources"
}

// MarkIngesting flags an ingestion run as started.
func (s *StreamSource) MarkIngesting() {
	s.Status = SourceStatusIngesting
	s.LastError = ""
}

// MarkSuccess records a completed ingestion and its channel count.
func (s *StreamSource) MarkSuccess(channelCount int) {
	now := Now()
	s.Status = SourceStatusSuccess
	s.LastIngestionAt = &now
	s.ChannelCount = channelCount
	s.LastError = ""
}

// MarkFailed records a failed ingestion with its error message.
func (s *StreamSource) MarkFailed(err error) {
	s.Status = SourceStatusFailed
	if err == nil {
		return
	}
	s.LastError = err.Error()
}

// Sanitize trims whitespace from user-provided fields.
func (s *StreamSource) Sanitize() {
	for _, f := range []*string{&s.Name, &s.URL, &s.Username, &s.Password, &s.UserAgent} {
		*f = strings.TrimSpace(*f)
	}
}

// Validate sanitizes the source, defaults the type, and checks the
// required fields.
func (s *StreamSource) Validate() error {
	s.Sanitize()

	if s.Name == "" {
		return ErrNameRequired
	}
	if s.Type == "" {
		s.Type = SourceTypeM3U
	}
	if s.Type != SourceTypeM3U {
		return ErrInvalidSourceType
	}
	switch _, err := url.Parse(s.URL); {
	case s.URL == "":
		return ErrURLRequired
	case err != nil:
		return ErrInvalidURL
	}
	return nil
}

func (s *StreamSource) BeforeCreate(tx *gorm.DB) error {
	err := s.BaseModel.BeforeCreate(tx)
	if err != nil {
		return err
	}
	return s.Validate()
}

func (s *StreamSource) BeforeUpdate(*gorm.DB) error { return s.Validate() }
