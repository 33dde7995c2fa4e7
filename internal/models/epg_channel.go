package models

import (
	"gorm.io/gorm"
)

// EpgChannel represents a channel entry parsed from an XMLTV guide.
type EpgChannel struct {
	BaseModel

	// SourceID is the foreign key to the parent EpgSource.
	SourceID ULID `gorm:"type:varchar(26);not null;uniqueIndex:idx_epg_channel_unique" json:"source_id"`

	// ChannelID is the XMLTV channel identifier.
	ChannelID string `gorm:"not null;size:255;uniqueIndex:idx_epg_channel_unique" json:"channel_id"`

	// ChannelName is the display name of the guide channel.
	ChannelName string `gorm:"not null;size:512" json:"channel_name"`

	// ChannelLogo is the URL or logo asset reference for the channel icon.
	ChannelLogo string `gorm:"size:2048" json:"channel_logo,omitempty"`

	// ChannelGroup is the category of the guide channel, when provided.
	ChannelGroup string `gorm:"size:255" json:"channel_group,omitempty"`

	// Language is the language of the guide channel.
	Language string `gorm:"size:50" json:"language,omitempty"`

	// Labels stores rule-assigned labels as JSON.
	Labels string `gorm:"type:text" json:"labels,omitempty"`

	// Source is the relationship back to the parent EpgSource.
	Source *EpgSource `gorm:"foreignKey:SourceID" json:"source,omitempty"`
}

// TableName returns the table name for EpgChannel.
func (EpgChannel) TableName() string {
	return "epg_channels"
}

// Validate performs basic validation on the EPG channel.
func (c *EpgChannel) Validate() error {
	if c.SourceID.IsZero() {
		return ErrSourceIDRequired
	}
	if c.ChannelID == "" {
		return ErrChannelIDRequired
	}
	if c.ChannelName == "" {
		return ErrNameRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the channel and generates ULID.
func (c *EpgChannel) BeforeCreate(tx *gorm.DB) error {
	if err := c.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return c.Validate()
}

// BeforeUpdate is a GORM hook that validates the channel before update.
func (c *EpgChannel) BeforeUpdate(tx *gorm.DB) error {
	return c.Validate()
}

// FieldMap flattens the guide channel into expression engine field names.
func (c *EpgChannel) FieldMap() map[string]string {
	return map[string]string{
		"channel_id":    c.ChannelID,
		"channel_name":  c.ChannelName,
		"channel_logo":  c.ChannelLogo,
		"channel_group": c.ChannelGroup,
		"language":      c.Language,
	}
}

// ApplyFieldMap writes mutated expression fields back onto the channel.
func (c *EpgChannel) ApplyFieldMap(fields map[string]string) {
	c.ChannelID = fields["channel_id"]
	c.ChannelName = fields["channel_name"]
	c.ChannelLogo = fields["channel_logo"]
	c.ChannelGroup = fields["channel_group"]
	c.Language = fields["language"]
}
