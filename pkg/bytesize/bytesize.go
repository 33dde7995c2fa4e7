// Package bytesize parses and formats human-readable byte sizes.
// All units use the binary (1024) base: "5MB" is 5*1024*1024 bytes,
// "1.5 GB" is 1.5*1024^3. Unit names are case-insensitive and accept
// short (K, M), conventional (KB, MB), and explicit binary (KiB, MiB)
// spellings up through petabytes. A bare number is a byte count.
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Size is a byte count.
type Size int64

// Binary size constants.
const (
	B Size = 1 << (10 * iota)
	KB
	MB
	GB
	TB
	PB
)

// formatUnits is ordered largest-first for Format's unit selection.
var formatUnits = []struct {
	size  Size
	label string
}{
	{PB, "PB"},
	{TB, "TB"},
	{GB, "GB"},
	{MB, "MB"},
	{KB, "KB"},
}

// multipliers maps every accepted unit spelling to its byte count.
var multipliers = func() map[string]Size {
	aliases := []struct {
		size  Size
		names []string
	}{
		{B, []string{"b", "byte", "bytes"}},
		{KB, []string{"k", "kb", "kib"}},
		{MB, []string{"m", "mb", "mib"}},
		{GB, []string{"g", "gb", "gib"}},
		{TB, []string{"t", "tb", "tib"}},
		{PB, []string{"p", "pb", "pib"}},
	}
	m := make(map[string]Size)
	for _, a := range aliases {
		for _, name := range a.names {
			m[name] = a.size
		}
	}
	return m
}()

var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// Parse converts a human-readable size string to a Size. The value may
// be integer or floating point, with an optional unit; no unit means
// bytes.
//
//	"5MB"    → 5242880
//	"1.5 GB" → 1610612736
//	"500 KB" → 512000
//	"1024"   → 1024
func Parse(s string) (Size, error) {
	if s == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}
	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", matches[1], err)
	}

	multiplier := B
	if unit := strings.ToLower(matches[2]); unit != "" {
		var ok bool
		if multiplier, ok = multipliers[unit]; !ok {
			return 0, fmt.Errorf("bytesize: unknown unit %q", unit)
		}
	}
	return Size(value * float64(multiplier)), nil
}

// MustParse is Parse that panics on error, for package-level defaults.
func MustParse(s string) Size {
	size, err := Parse(s)
	if err != nil {
		panic("bytesize: " + err.Error())
	}
	return size
}

// Format renders s with the largest unit that keeps the value >= 1.
// Fractional values get up to two decimal places with trailing zeros
// trimmed.
func Format(s Size) string {
	if s == 0 {
		return "0B"
	}

	sign := ""
	if s < 0 {
		sign, s = "-", -s
	}
	for _, u := range formatUnits {
		if s >= u.size {
			return sign + formatFloat(float64(s)/float64(u.size), u.label)
		}
	}
	return fmt.Sprintf("%s%dB", sign, s)
}

func formatFloat(value float64, unit string) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d%s", int64(value), unit)
	}
	formatted := strings.TrimRight(fmt.Sprintf("%.2f", value), "0")
	return strings.TrimRight(formatted, ".") + unit
}

// Bytes returns the size as int64.
func (s Size) Bytes() int64 { return int64(s) }

// Int64 is an alias for Bytes.
func (s Size) Int64() int64 { return int64(s) }

// String renders the size via Format.
func (s Size) String() string { return Format(s) }
