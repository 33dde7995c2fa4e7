package xmltv

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Writer provides streaming XMLTV output. Write errors latch: after the
// first failure every subsequent call returns the same error.
type Writer struct {
	w             io.Writer
	err           error
	headerWritten bool
	channelsDone  bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// line writes a single formatted line, latching the first error.
func (w *Writer) line(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, format+"\n", args...)
}

// lineIf writes the line only when cond holds.
func (w *Writer) lineIf(cond bool, format string, args ...any) {
	if cond {
		w.line(format, args...)
	}
}

// WriteHeader writes the XML declaration and opens the tv element.
// Subsequent calls are no-ops.
func (w *Writer) WriteHeader() error {
	if w.headerWritten {
		return w.err
	}
	w.headerWritten = true
	w.line(`<?xml version="1.0" encoding="UTF-8"?>`)
	w.line(`<tv generator-info-name="chanarr" generator-info-url="https://github.com/chanarr/chanarr">`)
	if w.err != nil {
		return fmt.Errorf("writing XMLTV header: %w", w.err)
	}
	return nil
}

// WriteChannel writes a channel definition. All channels must be written
// before any programmes.
func (w *Writer) WriteChannel(ch *Channel) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	if w.channelsDone {
		return errors.New("channels must be written before programmes")
	}

	w.line(`  <channel id="%s">`, xmlEscape(ch.ID))
	w.line(`    <display-name>%s</display-name>`, xmlEscape(ch.DisplayName))
	w.lineIf(ch.Icon != "", `    <icon src="%s"/>`, xmlEscape(ch.Icon))
	w.lineIf(ch.URL != "", `    <url>%s</url>`, xmlEscape(ch.URL))
	w.line(`  </channel>`)
	return w.err
}

// WriteProgramme writes a programme entry. The first programme closes the
// channel section; channels written after it are rejected.
func (w *Writer) WriteProgramme(prog *Programme) error {
	err := w.WriteHeader()
	if err != nil {
		return err
	}
	w.channelsDone = true

	lang := prog.Language
	if lang == "" {
		lang = "en"
	}

	w.line(`  <programme start="%s" stop="%s" channel="%s">`,
		formatXMLTVTime(prog.Start), formatXMLTVTime(prog.Stop), xmlEscape(prog.Channel))
	w.line(`    <title lang="%s">%s</title>`, lang, xmlEscape(prog.Title))
	w.lineIf(prog.SubTitle != "", `    <sub-title lang="%s">%s</sub-title>`, lang, xmlEscape(prog.SubTitle))
	w.lineIf(prog.Description != "", `    <desc lang="%s">%s</desc>`, lang, xmlEscape(prog.Description))
	w.lineIf(prog.Category != "", `    <category lang="%s">%s</category>`, lang, xmlEscape(prog.Category))
	w.lineIf(prog.Icon != "", `    <icon src="%s"/>`, xmlEscape(prog.Icon))
	w.lineIf(prog.EpisodeNum != "", `    <episode-num system="onscreen">%s</episode-num>`, xmlEscape(prog.EpisodeNum))
	w.lineIf(prog.Rating != "", `    <rating><value>%s</value></rating>`, xmlEscape(prog.Rating))
	w.line(`  </programme>`)
	return w.err
}

// WriteFooter closes the tv element.
func (w *Writer) WriteFooter() error {
	w.line(`</tv>`)
	return w.err
}

func formatXMLTVTime(t time.Time) string {
	return t.UTC().Format("20060102150405 +0000")
}

func xmlEscape(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}
