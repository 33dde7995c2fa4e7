package models

import (
	"net/url"
	"strings"

	"gorm.io/gorm"
)

// EpgSourceType is the guide format of an EPG source.
type EpgSourceType string

// EpgSourceTypeXMLTV is the only supported guide format.
const EpgSourceTypeXMLTV EpgSourceType = "xmltv"

// EpgSourceStatus tracks where an EPG source is in its ingestion
// lifecycle.
type EpgSourceStatus string

const (
	EpgSourceStatusPending   EpgSourceStatus = "pending"
	EpgSourceStatusIngesting EpgSourceStatus = "ingesting"
	EpgSourceStatusSuccess   EpgSourceStatus = "success"
	EpgSourceStatusFailed    EpgSourceStatus = "failed"
)

// EpgSource is an upstream Electronic Program Guide source, an XMLTV
// file URL plus fetch credentials and schedule. Name is unique across
// all EPG sources.
type EpgSource struct {
	BaseModel

	Name      string        `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Type      EpgSourceType `gorm:"not null;size:20" json:"type"`
	URL       string        `gorm:"not null;size:2048" json:"url"`
	Username  string        `gorm:"size:255" json:"username,omitempty"` // HTTP basic auth
	Password  string        `gorm:"size:255" json:"password,omitempty"` // HTTP basic auth
	UserAgent string        `gorm:"size:512" json:"user_agent,omitempty"`

	// EpgShift shifts guide times by whole hours, positive forward and
	// negative back.
	EpgShift int `gorm:"default:0" json:"epg_shift"`

	Enabled *bool `gorm:"default:true" json:"enabled"`

	Status          EpgSourceStatus `gorm:"not null;default:'pending';size:20" json:"status"`
	LastIngestionAt *Time           `json:"last_ingestion_at,omitempty"`
	LastError       string          `gorm:"size:4096" json:"last_error,omitempty"`
	ChannelCount    int             `gorm:"default:0" json:"channel_count"`
	ProgramCount    int             `gorm:"default:0" json:"program_count"`
	CronSchedule    string          `gorm:"size:100" json:"cron_schedule,omitempty"`

	// RetentionDays is how long expired guide data is kept around.
	RetentionDays int `gorm:"default:1" json:"retention_days"`
}

func (EpgSource) TableName() string {
	return "epg_sources"
}

// MarkIngesting flags an ingestion run as started.
func (s *EpgSource) MarkIngesting() {
	s.Status = EpgSourceStatusIngesting
	s.LastError = ""
}

// MarkSuccess records a completed ingestion and its counts.
func (s *EpgSource) MarkSuccess(channelCount, programCount int) {
	now := Now()
	s.Status = EpgSourceStatusSuccess
	s.LastIngestionAt = &now
	s.ChannelCount = channelCount
	s.ProgramCount = programCount
	s.LastError = ""
}

// MarkFailed records a failed ingestion with its error message.
func (s *EpgSource) MarkFailed(err error) {
	s.Status = EpgSourceStatusFailed
	if err == nil {
		return
	}
	s.LastError = err.Error()
}

// Sanitize trims whitespace from user-provided fields.
func (s *EpgSource) Sanitize() {
	for _, f := range []*string{&s.Name, &s.URL, &s.Username, &s.Password, &s.UserAgent} {
		*f = strings.TrimSpace(*f)
	}
}

// Validate sanitizes the source, defaults the type, and checks the
// required fields.
func (s *EpgSource) Validate() error {
	s.Sanitize()

	if s.Name == "" {
		return ErrNameRequired
	}
	if s.Type == "" {
		s.Type = EpgSourceTypeXMLTV
	}
	if s.Type != EpgSourceTypeXMLTV {
		return ErrInvalidEpgSourceType
	}
	switch _, err := url.Parse(s.URL); {
	case s.URL == "":
		return ErrURLRequired
	case err != nil:
		return ErrInvalidURL
	}
	return nil
}

func (s *EpgSource) BeforeCreate(tx *gorm.DB) error {
	err := s.BaseModel.BeforeCreate(tx)
	if err != nil {
		return err
	}
	return s.Validate()
}

func (s *EpgSource) BeforeUpdate(*gorm.DB) error { return s.Validate() }
