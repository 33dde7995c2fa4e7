package models

import (
	"fmt"
	"hash/fnv"
	"strconv"

	"gorm.io/gorm"
)

// Channel is one channel parsed out of a stream source playlist.
type Channel struct {
	BaseModel

	SourceID      ULID          `gorm:"type:varchar(26);not null;index:idx_source_ext_id,unique" json:"source_id"` // parent StreamSource
	ExtID         string        `gorm:"size:255;index:idx_source_ext_id,unique" json:"ext_id"`           // within-source dedup key, tvg-id or URL hash
	TvgID         string        `gorm:"size:255;index" json:"tvg_id,omitempty"`                          // EPG channel identifier
	TvgName       string        `gorm:"size:512" json:"tvg_name,omitempty"`                              // display name from tvg-name
	TvgLogo       string        `gorm:"size:2048" json:"tvg_logo,omitempty"`                             // logo URL or asset reference
	TvgShift      float64       `gorm:"default:0" json:"tvg_shift,omitempty"`                            // EPG time shift in hours
	GroupTitle    string        `gorm:"size:255;index" json:"group_title,omitempty"`                     // category from group-title
	ChannelName   string        `gorm:"not null;size:512" json:"channel_name"`                           // EXTINF title or computed name
	ChannelNumber int           `gorm:"default:0" json:"channel_number,omitempty"`                       // tvg-chno when specified
	StreamURL     string        `gorm:"not null;size:4096" json:"stream_url"`
	Language      string        `gorm:"size:50" json:"language,omitempty"`
	Labels        string        `gorm:"type:text" json:"labels,omitempty"`                               // rule-assigned labels as JSON
	Extra         string        `gorm:"type:text" json:"extra,omitempty"`                                // unmapped M3U attributes as JSON
	Source        *StreamSource `gorm:"foreignKey:SourceID" json:"source,omitempty"`
}

// TableName names the backing table.
func (Channel) TableName() string { return "channels" }

// Validate performs basic validation on the channel.
func (c *Channel) Validate() error {
	switch {
	case c.SourceID.IsZero():
		return ErrSourceIDRequired
	case c.ChannelName == "":
		return ErrNameRequired
	case c.StreamURL == "":
		return ErrStreamURLRequired
	}
	return nil
}

// BeforeCreate assigns the ULID and validates before insert.
func (c *Channel) BeforeCreate(tx *gorm.DB) error {
	err := c.BaseModel.BeforeCreate(tx)
	if err != nil {
		return err
	}
	return c.Validate()
}

// BeforeUpdate validates the channel before update.
func (c *Channel) BeforeUpdate(tx *gorm.DB) error {
	return c.Validate()
}

// DedupKey returns the key used for cross-source deduplication:
// tvg_id when set, stream URL otherwise.
func (c *Channel) DedupKey() string {
	if c.TvgID != "" {
		return c.TvgID
	}
	return c.StreamURL
}

// GenerateExtID derives the within-source external ID for upserts.
func (c *Channel) GenerateExtID() string {
	switch {
	case c.ExtID != "":
		return c.ExtID
	case c.TvgID != "":
		return c.TvgID
	}
	return hashString(c.StreamURL)
}

// FieldMap flattens the channel into the field names the expression
// engine understands. Source metadata is attached by the caller.
func (c *Channel) FieldMap() map[string]string {
	fields := map[string]string{
		"channel_name": c.ChannelName,
		"tvg_id":       c.TvgID,
		"tvg_name":     c.TvgName,
		"tvg_logo":     c.TvgLogo,
		"group_title":  c.GroupTitle,
		"stream_url":   c.StreamURL,
		"language":     c.Language,
	}
	if c.TvgShift != 0 {
		fields["tvg_shift"] = strconv.FormatFloat(c.TvgShift, 'f', -1, 64)
	} else {
		fields["tvg_shift"] = ""
	}
	if c.ChannelNumber != 0 {
		fields["channel_number"] = strconv.Itoa(c.ChannelNumber)
	} else {
		fields["channel_number"] = ""
	}
	return fields
}

// ApplyFieldMap writes mutated expression fields back onto the channel.
func (c *Channel) ApplyFieldMap(fields map[string]string) {
	c.ChannelName = fields["channel_name"]
	c.TvgID = fields["tvg_id"]
	c.TvgName = fields["tvg_name"]
	c.TvgLogo = fields["tvg_logo"]
	c.GroupTitle = fields["group_title"]
	c.StreamURL = fields["stream_url"]
	c.Language = fields["language"]
	if v := fields["tvg_shift"]; v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.TvgShift = f
		}
	}
	if v := fields["channel_number"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ChannelNumber = n
		}
	}
}

// hashString creates a stable short hash of a string for ID generation.
func hashString(s string) string {
	h := fnv.New64a()
	h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}
