package m3u

import (
	"fmt"
	"io"
	"strings"
)

// Writer streams entries into an M3U playlist.
type Writer struct {
	w           io.Writer
	wroteHeader bool
}

// NewWriter creates a writer targeting w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader emits the #EXTM3U header once. WriteEntry calls it implicitly.
func (w *Writer) WriteHeader() error {
	if w.wroteHeader {
		return nil
	}
	if _, err := fmt.Fprintln(w.w, "#EXTM3U"); err != nil {
		return fmt.Errorf("writing M3U header: %w", err)
	}
	w.wroteHeader = true
	return nil
}

// WriteEntry emits one channel as an EXTINF line followed by its URL.
func (w *Writer) WriteEntry(entry *Entry) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}

	duration := entry.Duration
	if duration == 0 {
		duration = -1
	}

	var line strings.Builder
	fmt.Fprintf(&line, "#EXTINF:%d", duration)

	writeAttr := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&line, ` %s="%s"`, key, strings.ReplaceAll(value, `"`, `\"`))
		}
	}
	writeAttr("tvg-id", entry.TvgID)
	writeAttr("tvg-name", entry.TvgName)
	writeAttr("tvg-logo", entry.TvgLogo)
	writeAttr("group-title", entry.GroupTitle)
	if entry.ChannelNumber > 0 {
		fmt.Fprintf(&line, ` tvg-chno="%d"`, entry.ChannelNumber)
	}
	for k, v := range entry.Extra {
		writeAttr(k, v)
	}

	fmt.Fprintf(&line, ",%s", entry.Title)

	if _, err := fmt.Fprintln(w.w, line.String()); err != nil {
		return fmt.Errorf("writing EXTINF: %w", err)
	}
	if _, err := fmt.Fprintln(w.w, entry.URL); err != nil {
		return fmt.Errorf("writing URL: %w", err)
	}
	return nil
}
