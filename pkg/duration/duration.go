// Package duration parses and formats human-readable durations. It accepts
// everything time.ParseDuration does, plus days, weeks, months, and years,
// and spelled-out unit names with optional whitespace:
//
//	"30 days", "2 weeks", "1 month", "1w2d12h", "720h", "3 hours"
//
// Days are 24 hours; weeks 7 days; months 30 days; years 365 days.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// Day is 24 hours.
	Day = 24 * time.Hour
	// Week is 7 days.
	Week = 7 * Day
	// Month is 30 days (approximate).
	Month = 30 * Day
	// Year is 365 days (approximate).
	Year = 365 * Day
)

// hoursPerUnit maps extended unit spellings to hours, the largest unit
// time.ParseDuration understands natively.
var hoursPerUnit = func() map[string]int64 {
	table := []struct {
		hours   int64
		aliases []string
	}{
		{365 * 24, []string{"y", "yr", "yrs", "year", "years"}},
		{30 * 24, []string{"mo", "mos", "month", "months"}},
		{7 * 24, []string{"w", "wk", "wks", "week", "weeks"}},
		{24, []string{"d", "day", "days"}},
	}
	m := map[string]int64{}
	for _, u := range table {
		for _, alias := range u.aliases {
			m[alias] = u.hours
		}
	}
	return m
}()

// shortForms maps spelled-out standard units to the suffixes
// time.ParseDuration accepts.
var shortForms = func() map[string]string {
	table := map[string][]string{
		"h":  {"hour", "hours", "hr", "hrs"},
		"m":  {"minute", "minutes", "min", "mins"},
		"s":  {"second", "seconds", "sec", "secs"},
		"ms": {"millisecond", "milliseconds", "milli", "millis"},
		"us": {"microsecond", "microseconds", "micro", "micros"},
		"ns": {"nanosecond", "nanoseconds", "nano", "nanos"},
	}
	m := map[string]string{}
	for short, words := range table {
		for _, w := range words {
			m[w] = short
		}
	}
	return m
}()

// extendedUnitPattern matches a number followed by an extended unit, with
// optional whitespace between them: "30d", "30 days", "2weeks", "1 month".
var extendedUnitPattern = regexp.MustCompile(`(?i)(\d+)\s*(years?|yrs?|y|months?|mos?|mo|weeks?|wks?|w|days?|d)`)

// standardUnitPattern matches a number followed by a spelled-out standard
// unit: "3 hours", "30 minutes", "5 seconds".
var standardUnitPattern = regexp.MustCompile(`(?i)(\d+)\s*(hours?|hrs?|minutes?|mins?|seconds?|secs?|milliseconds?|millis?|microseconds?|micros?|nanoseconds?|nanos?)`)

// Parse parses a human-readable duration string. Extended units are folded
// into hours and the rest is handed to time.ParseDuration, so any mix of
// the two forms works.
func Parse(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	s = strings.TrimSpace(s)

	negative := strings.HasPrefix(s, "-")
	if negative {
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}

	// Fold years/months/weeks/days into an hour total.
	var hours int64
	rest := extendedUnitPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := extendedUnitPattern.FindStringSubmatch(match)
		if len(parts) == 3 {
			n, _ := strconv.ParseInt(parts[1], 10, 64)
			if perUnit, ok := hoursPerUnit[strings.ToLower(parts[2])]; ok {
				hours += n * perUnit
			}
		}
		return ""
	})

	// Rewrite spelled-out standard units to their short suffixes.
	rest = standardUnitPattern.ReplaceAllStringFunc(rest, func(match string) string {
		parts := standardUnitPattern.FindStringSubmatch(match)
		if len(parts) == 3 {
			if short, ok := shortForms[strings.ToLower(parts[2])]; ok {
				return parts[1] + short
			}
		}
		return match
	})

	// time.ParseDuration rejects spaces between components.
	rest = strings.Join(strings.Fields(strings.TrimSpace(rest)), "")

	normalized := ""
	if hours > 0 {
		normalized = fmt.Sprintf("%dh", hours)
	}
	normalized += rest
	if normalized == "" {
		normalized = "0s"
	}

	d, err := time.ParseDuration(normalized)
	if err != nil {
		return 0, fmt.Errorf("duration: %w", err)
	}
	if negative {
		d = -d
	}
	return d, nil
}

// MustParse is like Parse but panics on error. Use only for constants.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic("duration: " + err.Error())
	}
	return d
}

// formatUnits is ordered largest to smallest; Format walks it and emits
// each non-zero component.
var formatUnits = []struct {
	span   time.Duration
	suffix string
}{
	{Year, "y"},
	{Month, "mo"},
	{Week, "w"},
	{Day, "d"},
	{time.Hour, "h"},
	{time.Minute, "m"},
	{time.Second, "s"},
	{time.Millisecond, "ms"},
	{time.Microsecond, "µs"},
}

// Format renders a duration using the largest fitting units and omits zero
// components: 1h0m10s becomes 1h10s.
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	negative := d < 0
	if negative {
		d = -d
	}

	var out strings.Builder
	for _, u := range formatUnits {
		if n := d / u.span; n > 0 {
			fmt.Fprintf(&out, "%d%s", n, u.suffix)
			d -= n * u.span
		}
	}
	if d > 0 {
		fmt.Fprintf(&out, "%dns", d)
	}

	if out.Len() == 0 {
		return "0s"
	}
	if negative {
		return "-" + out.String()
	}
	return out.String()
}
