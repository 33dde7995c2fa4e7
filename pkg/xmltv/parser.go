// Package xmltv provides streaming XMLTV parsing and writing for
// electronic program guide data.
package xmltv

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"golang.org/x/net/html/charset"
)

// Programme is one program entry from an XMLTV document.
type Programme struct {
	Start   time.Time
	Stop    time.Time
	Channel string // channel attribute, matches Channel.ID

	Title       string
	SubTitle    string
	Description string
	Category    string
	Icon        string
	EpisodeNum  string
	Rating      string
	Language    string
}

// Channel is a channel definition from an XMLTV document.
type Channel struct {
	ID          string
	DisplayName string // first display-name element
	Icon        string
	URL         string
}

// Parser streams channels and programmes out of an XMLTV document
// through callbacks.
type Parser struct {
	// OnChannel receives each channel definition.
	OnChannel func(channel *Channel) error

	// OnProgramme receives each parsed programme.
	OnProgramme func(programme *Programme) error

	// OnError receives recoverable parsing errors.
	OnError func(err error)
}

// xmltvTimeFormats are tried in order. Guides in the wild omit the zone
// or the seconds.
var xmltvTimeFormats = []string{
	"20060102150405 -0700",
	"20060102150405 +0000",
	"20060102150405",
	"200601021504",
}

// parseXMLTVTime parses the XMLTV timestamp format "20240101120000 +0000".
func parseXMLTVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}
	for _, format := range xmltvTimeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time: %s", s)
}

// channelElem and programmeElem mirror the XMLTV schema for decoding.
// Repeated elements decode into slices where the first occurrence wins.
type iconElem struct {
	Src string `xml:"src,attr"`
}

type channelElem struct {
	ID           string   `xml:"id,attr"`
	DisplayNames []string `xml:"display-name"`
	Icon         iconElem `xml:"icon"`
	URL          string   `xml:"url"`
}

type programmeElem struct {
	Start      string   `xml:"start,attr"`
	Stop       string   `xml:"stop,attr"`
	Channel    string   `xml:"channel,attr"`
	Titles     []string `xml:"title"`
	SubTitle   string   `xml:"sub-title"`
	Desc       string   `xml:"desc"`
	Categories []string `xml:"category"`
	Icon       iconElem `xml:"icon"`
	EpisodeNum string   `xml:"episode-num"`
	Rating     struct {
		Value string `xml:"value"`
	} `xml:"rating"`
	Language string `xml:"language"`
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (c *channelElem) toChannel() *Channel {
	return &Channel{
		ID:          c.ID,
		DisplayName: firstOf(c.DisplayNames),
		Icon:        c.Icon.Src,
		URL:         c.URL,
	}
}

func (p *programmeElem) toProgramme() *Programme {
	prog := &Programme{
		Channel:     p.Channel,
		Title:       strings.TrimSpace(firstOf(p.Titles)),
		SubTitle:    strings.TrimSpace(p.SubTitle),
		Description: strings.TrimSpace(p.Desc),
		Category:    strings.TrimSpace(firstOf(p.Categories)),
		Icon:        p.Icon.Src,
		EpisodeNum:  strings.TrimSpace(p.EpisodeNum),
		Rating:      strings.TrimSpace(p.Rating.Value),
		Language:    strings.TrimSpace(p.Language),
	}
	if t, err := parseXMLTVTime(p.Start); err == nil {
		prog.Start = t
	}
	if t, err := parseXMLTVTime(p.Stop); err == nil {
		prog.Stop = t
	}
	return prog
}

// Parse parses an XMLTV document from r. Non-UTF-8 documents are decoded
// according to their declared encoding. Malformed channel and programme
// entries are reported through OnError and skipped.
func (p *Parser) Parse(r io.Reader) error {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	decoder.CharsetReader = charset.NewReaderLabel
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity

	for {
		token, err := decoder.Token()
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return fmt.Errorf("reading XML token: %w", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "channel":
			if p.OnChannel == nil {
				_ = decoder.Skip()
				continue
			}
			var elem channelElem
			if err := decoder.DecodeElement(&elem, &start); err != nil {
				p.handleError(err)
				continue
			}
			if err := p.OnChannel(elem.toChannel()); err != nil {
				return fmt.Errorf("channel callback: %w", err)
			}

		case "programme":
			if p.OnProgramme == nil {
				_ = decoder.Skip()
				continue
			}
			var elem programmeElem
			if err := decoder.DecodeElement(&elem, &start); err != nil {
				p.handleError(err)
				continue
			}
			if err := p.OnProgramme(elem.toProgramme()); err != nil {
				return fmt.Errorf("programme callback: %w", err)
			}
		}
	}
}

// Magic bytes for supported compression formats.
var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

func hasMagic(header, magic []byte) bool {
	if len(header) < len(magic) {
		return false
	}
	for i, b := range magic {
		if header[i] != b {
			return false
		}
	}
	return true
}

// ParseCompressed parses a potentially compressed XMLTV document,
// detecting gzip, bzip2, and xz by their magic bytes. Plain XML passes
// through unchanged.
func (p *Parser) ParseCompressed(r io.Reader) error {
	br := bufio.NewReader(r)

	header, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF {
		return fmt.Errorf("peeking header: %w", err)
	}

	switch {
	case hasMagic(header, gzipMagic):
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("gzip reader: %w", err)
		}
		defer gzr.Close()
		return p.Parse(gzr)

	case hasMagic(header, bzip2Magic):
		return p.Parse(bzip2.NewReader(br))

	case hasMagic(header, xzMagic):
		xzr, err := xz.NewReader(br)
		if err != nil {
			return fmt.Errorf("xz reader: %w", err)
		}
		return p.Parse(xzr)
	}

	return p.Parse(br)
}

func (p *Parser) handleError(err error) {
	if p.OnError == nil {
		return
	}
	p.OnError(err)
}

// ParseAll collects every programme in an XMLTV document. It holds the
// whole result in memory; large guides should stream through Parse.
func ParseAll(r io.Reader) ([]*Programme, error) {
	var programmes []*Programme
	p := &Parser{OnProgramme: func(prog *Programme) error {
		programmes = append(programmes, prog)
		return nil
	}}
	err := p.Parse(r)
	if err != nil {
		return nil, err
	}
	return programmes, nil
}

// ParseString runs onProgramme over every entry of an in-memory document.
func ParseString(content string, onProgramme func(*Programme) error) error {
	p := &Parser{OnProgramme: onProgramme}
	return p.Parse(strings.NewReader(content))
}
