package models

import (
	"time"

	"gorm.io/gorm"
)

// EpgProgram is one programme entry from an EPG source. The composite
// unique index on (SourceID, ChannelID, Start) keeps re-ingestion of the
// same guide idempotent.
type EpgProgram struct {
	BaseModel

	SourceID  ULID      `gorm:"type:varchar(26);not null;uniqueIndex:idx_program_unique" json:"source_id"`
	ChannelID string    `gorm:"not null;size:255;uniqueIndex:idx_program_unique;index:idx_channel_time" json:"channel_id"` // matches Channel.TvgID
	Start     time.Time `gorm:"not null;uniqueIndex:idx_program_unique;index:idx_channel_time" json:"start"`
	Stop      time.Time `gorm:"not null;index" json:"stop"`

	Title       string `gorm:"not null;size:512" json:"title"`
	SubTitle    string `gorm:"size:512" json:"sub_title,omitempty"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Category    string `gorm:"size:255;index" json:"category,omitempty"`
	Icon        string `gorm:"size:2048" json:"icon,omitempty"`
	EpisodeNum  string `gorm:"size:100" json:"episode_num,omitempty"` // e.g. "S01E05"
	Rating      string `gorm:"size:50" json:"rating,omitempty"`      // e.g. "TV-14"
	Language    string `gorm:"size:50" json:"language,omitempty"`

	Source *EpgSource `gorm:"foreignKey:SourceID" json:"source,omitempty"`
}

func (EpgProgram) TableName() string {
	return "epg_programs"
}

// Duration is the programme's running time.
func (p *EpgProgram) Duration() time.Duration {
	return p.Stop.Sub(p.Start)
}

// HasEnded reports whether the programme's stop time has passed.
func (p *EpgProgram) HasEnded() bool {
	return time.Now().After(p.Stop)
}

// Validate checks the required fields and that the time range is sane.
func (p *EpgProgram) Validate() error {
	switch {
	case p.SourceID.IsZero():
		return ErrSourceIDRequired
	case p.ChannelID == "":
		return ErrChannelIDRequired
	case p.Start.IsZero():
		return ErrStartTimeRequired
	case p.Stop.IsZero():
		return ErrEndTimeRequired
	case p.Title == "":
		return ErrTitleRequired
	case !p.Stop.After(p.Start):
		return ErrInvalidTimeRange
	}
	return nil
}

func (p *EpgProgram) BeforeCreate(tx *gorm.DB) error {
	err := p.BaseModel.BeforeCreate(tx)
	if err != nil {
		return err
	}
	return p.Validate()
}

func (p *EpgProgram) BeforeUpdate(tx *gorm.DB) error {
	return p.Validate()
}
