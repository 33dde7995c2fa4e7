// Package config provides configuration loading and validation for chanarr.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chanarr/chanarr/pkg/duration"
)

// Duration is a time.Duration that parses the extended duration grammar:
// Go's standard units plus 'd' (days) and 'w' (weeks), so retention-style
// settings can be written as "30d" or "1w2d12h". It implements
// encoding.TextUnmarshaler so Viper and YAML decode it directly, plus
// json.Marshaler/Unmarshaler for JSON config files.
type Duration time.Duration

// ParseDuration parses a duration in the extended grammar.
func ParseDuration(s string) (Duration, error) {
	d, err := duration.Parse(s)
	return Duration(d), err
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err == nil {
		*d = parsed
	}
	return err
}

// UnmarshalJSON accepts either a duration string or raw nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if json.Unmarshal(data, &s) == nil {
		return d.UnmarshalText([]byte(s))
	}
	var ns int64
	if err := json.Unmarshal(data, &ns); err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}

// MarshalJSON emits the human-readable form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Duration unwraps to the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// String renders the duration with the largest units first, using weeks
// and days where they divide evenly and Go's standard form for the rest.
func (d Duration) String() string {
	dur := time.Duration(d)
	if dur == 0 {
		return "0s"
	}

	var sb strings.Builder
	if dur < 0 {
		sb.WriteByte('-')
		dur = -dur
	}

	const week = 7 * 24 * time.Hour
	if weeks := dur / week; weeks > 0 {
		fmt.Fprintf(&sb, "%dw", weeks)
		dur -= weeks * week
	}
	if days := dur / (24 * time.Hour); days > 0 {
		fmt.Fprintf(&sb, "%dd", days)
		dur -= days * 24 * time.Hour
	}
	if dur > 0 {
		sb.WriteString(dur.String())
	}

	out := sb.String()
	if out == "" || out == "-" {
		return time.Duration(d).String()
	}
	return out
}
