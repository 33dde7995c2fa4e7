package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validChannel() *Channel {
	return &Channel{
		SourceID:    NewULID(),
		ChannelName: "BBC One",
		StreamURL:   "http://example.com/stream/1",
		TvgID:       "bbc1.uk",
		GroupTitle:  "UK",
	}
}

func TestChannel_Validate(t *testing.T) {
	c := validChannel()
	assert.NoError(t, c.Validate())

	c = validChannel()
	c.SourceID = ULID{}
	assert.ErrorIs(t, c.Validate(), ErrSourceIDRequired)

	c = validChannel()
	c.ChannelName = ""
	assert.ErrorIs(t, c.Validate(), ErrNameRequired)

	c = validChannel()
	c.StreamURL = ""
	assert.ErrorIs(t, c.Validate(), ErrStreamURLRequired)
}

func TestChannel_DedupKey(t *testing.T) {
	c := validChannel()
	assert.Equal(t, "bbc1.uk", c.DedupKey())

	c.TvgID = ""
	assert.Equal(t, "http://example.com/stream/1", c.DedupKey())
}

func TestChannel_GenerateExtID(t *testing.T) {
	c := validChannel()
	assert.Equal(t, "bbc1.uk", c.GenerateExtID())

	c.TvgID = ""
	hashed := c.GenerateExtID()
	assert.NotEmpty(t, hashed)
	assert.Len(t, hashed, 16)

	// Stable for the same URL
	assert.Equal(t, hashed, c.GenerateExtID())

	c.ExtID = "explicit"
	assert.Equal(t, "explicit", c.GenerateExtID())
}

func TestChannel_FieldMapRoundTrip(t *testing.T) {
	c := validChannel()
	c.TvgShift = 1.5
	c.ChannelNumber = 101

	fields := c.FieldMap()
	assert.Equal(t, "BBC One", fields["channel_name"])
	assert.Equal(t, "1.5", fields["tvg_shift"])
	assert.Equal(t, "101", fields["channel_number"])

	fields["channel_name"] = "BBC One HD"
	fields["group_title"] = "UK | HD"

	c.ApplyFieldMap(fields)
	assert.Equal(t, "BBC One HD", c.ChannelName)
	assert.Equal(t, "UK | HD", c.GroupTitle)
	assert.Equal(t, 1.5, c.TvgShift)
	assert.Equal(t, 101, c.ChannelNumber)
}

func TestEpgChannel_Validate(t *testing.T) {
	c := &EpgChannel{
		SourceID:    NewULID(),
		ChannelID:   "bbc1.uk",
		ChannelName: "BBC One",
	}
	require.NoError(t, c.Validate())

	c.ChannelID = ""
	assert.ErrorIs(t, c.Validate(), ErrChannelIDRequired)

	c.ChannelID = "bbc1.uk"
	c.ChannelName = ""
	assert.ErrorIs(t, c.Validate(), ErrNameRequired)
}

func TestEpgChannel_FieldMapRoundTrip(t *testing.T) {
	c := &EpgChannel{
		SourceID:    NewULID(),
		ChannelID:   "bbc1.uk",
		ChannelName: "BBC One",
		Language:    "en",
	}

	fields := c.FieldMap()
	assert.Equal(t, "bbc1.uk", fields["channel_id"])
	assert.Equal(t, "en", fields["language"])

	fields["channel_group"] = "UK"
	c.ApplyFieldMap(fields)
	assert.Equal(t, "UK", c.ChannelGroup)
}
