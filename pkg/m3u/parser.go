// Package m3u reads and writes M3U playlists, including extended M3U with
// EXTINF attribute metadata as used by IPTV providers.
package m3u

import (
	"bufio"
	"bytes"
	"cmp"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz"
)

// Entry is one channel in a playlist.
type Entry struct {
	// Duration in seconds, -1 for live streams.
	Duration int

	// TvgID links the channel to its EPG data.
	TvgID string

	TvgName    string
	TvgLogo    string
	GroupTitle string

	// ChannelNumber comes from the tvg-chno attribute.
	ChannelNumber int

	// Title is the display name after the comma on the EXTINF line.
	Title string

	// URL is the stream URL.
	URL string

	// Extra holds attributes the parser does not map to a field.
	Extra map[string]string
}

// Parser streams entries out of a playlist through callbacks, so arbitrarily
// large provider playlists never need to be held in memory.
type Parser struct {
	// OnEntry receives each parsed entry. Returning an error aborts the parse.
	OnEntry func(entry *Entry) error

	// OnError receives recoverable per-line errors. Nil means skip silently.
	OnError func(lineNum int, err error)
}

var (
	// #EXTINF:-1 tvg-id="x" tvg-name="y",Title
	extinfLine = regexp.MustCompile(`^#EXTINF:\s*(-?\d+)\s*(.*)$`)

	// key="quoted value" or key=bare
	extinfAttr = regexp.MustCompile(`([a-zA-Z0-9_-]+)=(?:"([^"]*)"|([^\s,]+))`)
)

// Some provider playlists carry URLs several hundred KB long.
const maxLineSize = 1024 * 1024

// Parse reads a plain-text playlist from r.
func (p *Parser) Parse(r io.Reader) error {
	if p.OnEntry == nil {
		return errors.New("OnEntry callback is required")
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)

	var pending *Entry
	extended := false
	lineNum := 0

	emit := func(e *Entry) error {
		if err := p.OnEntry(e); err != nil {
			return fmt.Errorf("callback error at line %d: %w", lineNum, err)
		}
		return nil
	}

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue

		case strings.HasPrefix(line, "#EXTM3U"):
			extended = true

		case strings.HasPrefix(line, "#EXTINF:"):
			entry, err := parseExtinf(line)
			if err != nil {
				if p.OnError != nil {
					p.OnError(lineNum, err)
				}
				continue
			}
			pending = entry

		case strings.HasPrefix(line, "#"):
			// Other directives and comments are ignored.

		case pending != nil:
			pending.URL = line
			if err := emit(pending); err != nil {
				return err
			}
			pending = nil

		case extended:
			// A bare URL inside an extended playlist still counts as a channel.
			if err := emit(&Entry{Duration: -1, URL: line, Title: nameFromURL(line)}); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading playlist: %w", err)
	}

	return nil
}

// ParseCompressed parses a playlist that may be gzip, bzip2, or xz
// compressed, sniffing the format from magic bytes.
func (p *Parser) ParseCompressed(r io.Reader) error {
	br := bufio.NewReader(r)
	magic, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return fmt.Errorf("peeking header: %w", err)
	}

	reader, err := decompress(br, magic)
	if err != nil {
		return err
	}
	return p.Parse(reader)
}

// decompress wraps br in the decompressor matching the sniffed magic bytes,
// or returns br unchanged for plain text.
func decompress(br *bufio.Reader, magic []byte) (io.Reader, error) {
	switch {
	case bytes.HasPrefix(magic, []byte{0x1f, 0x8b}):
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return gzr, nil

	case bytes.HasPrefix(magic, []byte("BZh")):
		return bzip2.NewReader(br), nil

	case bytes.HasPrefix(magic, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating xz reader: %w", err)
		}
		return xzr, nil
	}
	return br, nil
}

// ParseString parses a playlist held in memory and returns all entries.
// Intended for small playlists and tests; large inputs should stream
// through Parser.
func ParseString(s string) ([]Entry, error) {
	var entries []Entry
	p := &Parser{OnEntry: func(e *Entry) error {
		entries = append(entries, *e)
		return nil
	}}
	if err := p.Parse(strings.NewReader(s)); err != nil {
		return nil, err
	}
	return entries, nil
}

// setters maps known EXTINF attributes onto Entry fields. Anything not
// listed here lands in Extra.
var setters = map[string]func(*Entry, string){
	"tvg-id":      func(e *Entry, v string) { e.TvgID = v },
	"tvg-name":    func(e *Entry, v string) { e.TvgName = v },
	"tvg-logo":    func(e *Entry, v string) { e.TvgLogo = v },
	"group-title": func(e *Entry, v string) { e.GroupTitle = v },
	"tvg-chno":    func(e *Entry, v string) { e.ChannelNumber, _ = strconv.Atoi(v) },
}

// parseExtinf decodes one EXTINF line into an entry without its URL.
func parseExtinf(line string) (*Entry, error) {
	m := extinfLine.FindStringSubmatch(line)
	if m == nil {
		return nil, errors.New("invalid EXTINF format")
	}

	entry := &Entry{Extra: make(map[string]string)}
	entry.Duration, _ = strconv.Atoi(m[1])

	attrs, title := splitAttrsTitle(m[2])
	entry.Title = title

	for _, match := range extinfAttr.FindAllStringSubmatch(attrs, -1) {
		key := strings.ToLower(match[1])
		value := cmp.Or(match[2], match[3])
		if set, ok := setters[key]; ok {
			set(entry, value)
			continue
		}
		entry.Extra[key] = value
	}

	return entry, nil
}

// splitAttrsTitle splits the EXTINF remainder at the last comma outside
// quotes. Everything before it is attributes, everything after is the title.
func splitAttrsTitle(s string) (attrs, title string) {
	inQuotes := false
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				return s[:i], strings.TrimSpace(s[i+1:])
			}
		}
	}
	return s, ""
}

// nameFromURL derives a display title from a bare URL: the last path
// segment, stripped of query string and extension.
func nameFromURL(url string) string {
	name := url
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.IndexByte(name, '?'); idx > 0 {
		name = name[:idx]
	}
	if idx := strings.LastIndexByte(name, '.'); idx > 0 {
		name = name[:idx]
	}
	if name == "" {
		return "Unknown"
	}
	return name
}
