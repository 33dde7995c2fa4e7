// Package shared provides utilities shared between pipeline stages.
package shared

import (
	"cmp"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/pkg/m3u"
	"github.com/chanarr/chanarr/pkg/xmltv"
)

// ChannelToM3UEntry builds the playlist entry for a channel. A positive
// channelNum overrides the channel's own number.
func ChannelToM3UEntry(ch *models.Channel, channelNum int) *m3u.Entry {
	if channelNum <= 0 {
		channelNum = ch.ChannelNumber
	}
	return &m3u.Entry{
		Duration: -1,
		TvgID:    ch.TvgID, TvgName: ch.TvgName, TvgLogo: ch.TvgLogo,
		GroupTitle: ch.GroupTitle, Title: ch.ChannelName,
		ChannelNumber: channelNum, URL: ch.StreamURL,
		Extra: make(map[string]string),
	}
}

// ChannelToXMLTVChannel builds the guide channel element for a channel.
// When a matched guide channel is given, its name and logo fill any gaps
// the stream source left empty.
func ChannelToXMLTVChannel(ch *models.Channel, guide *models.EpgChannel) *xmltv.Channel {
	displayName := cmp.Or(ch.TvgName, ch.ChannelName)
	icon := ch.TvgLogo

	if guide != nil {
		if displayName == "" {
			displayName = guide.ChannelName
		}
		if icon == "" {
			icon = guide.ChannelLogo
		}
	}
	return &xmltv.Channel{ID: ch.TvgID, DisplayName: displayName, Icon: icon}
}

// ProgramToXMLTVProgramme builds the programme element for a programme.
func ProgramToXMLTVProgramme(prog *models.EpgProgram) *xmltv.Programme {
	return &xmltv.Programme{
		Start: prog.Start, Stop: prog.Stop, Channel: prog.ChannelID,
		Title: prog.Title, SubTitle: prog.SubTitle, Description: prog.Description,
		Category: prog.Category, Icon: prog.Icon, EpisodeNum: prog.EpisodeNum,
		Rating: prog.Rating, Language: prog.Language,
	}
}
