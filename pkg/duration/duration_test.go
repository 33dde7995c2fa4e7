package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	day := 24 * time.Hour
	week := 7 * day

	cases := map[string]time.Duration{
		// plain time.ParseDuration forms pass through
		"720h":   720 * time.Hour,
		"30m":    30 * time.Minute,
		"45s":    45 * time.Second,
		"100ms":  100 * time.Millisecond,
		"1h30m":  90 * time.Minute,

		// days
		"30d":     30 * day,
		"1d":      day,
		"1d12h":   36 * time.Hour,
		"1 day":   day,
		"30 days": 30 * day,
		"30days":  30 * day,

		// weeks
		"2w":      2 * week,
		"1w":      week,
		"2wk":     2 * week,
		"2wks":    2 * week,
		"1 week":  week,
		"2 weeks": 2 * week,
		"2weeks":  2 * week,

		// months and years
		"1mo":      30 * day,
		"2mos":     60 * day,
		"1 month":  30 * day,
		"2 months": 60 * day,
		"1y":       365 * day,
		"1yr":      365 * day,
		"2yrs":     2 * 365 * day,
		"1 year":   365 * day,
		"2 years":  2 * 365 * day,

		// combinations
		"1w2d":           9 * day,
		"1w2d12h":        9*day + 12*time.Hour,
		"1w2d3h4m5s":     9*day + 3*time.Hour + 4*time.Minute + 5*time.Second,
		"1 week 2 days 3h": 9*day + 3*time.Hour,
		"1y1mo1w1d":      (365 + 30 + 7 + 1) * day,

		// unit casing is ignored
		"30DAYS": 30 * day,
		"30Days": 30 * day,
		"2WEEKS": 2 * week,

		// zero and negative
		"0s":       0,
		"0h":       0,
		"-30d":     -30 * day,
		"-30 days": -30 * day,
		"-12h":     -12 * time.Hour,

		// large values
		"365d": 365 * day,
		"52w":  52 * week,

		// spelled-out standard units
		"3 hours":            3 * time.Hour,
		"1 hour":             time.Hour,
		"30 minutes":         30 * time.Minute,
		"1 minute":           time.Minute,
		"45 seconds":         45 * time.Second,
		"1 second":           time.Second,
		"2 hrs":              2 * time.Hour,
		"15 mins":            15 * time.Minute,
		"30 secs":            30 * time.Second,
		"2 hours 30 minutes": 2*time.Hour + 30*time.Minute,
		"2hours30minutes":    2*time.Hour + 30*time.Minute,
	}

	for input, want := range cases {
		t.Run(input, func(t *testing.T) {
			got, err := Parse(input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := Parse("invalid")
		assert.Error(t, err)
	})
	t.Run("rejects empty", func(t *testing.T) {
		_, err := Parse("")
		assert.Error(t, err)
	})
}

func TestMustParse(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Equal(t, 30*24*time.Hour, MustParse("30d"))
	})
	assert.Panics(t, func() { MustParse("three fortnights") })
}

func TestFormat(t *testing.T) {
	day := 24 * time.Hour

	cases := map[string]struct {
		in   time.Duration
		want string
	}{
		"zero":             {0, "0s"},
		"seconds":          {45 * time.Second, "45s"},
		"minutes":          {30 * time.Minute, "30m"},
		"hours":            {12 * time.Hour, "12h"},
		"one day":          {day, "1d"},
		"days":             {3 * day, "3d"},
		"one week":         {7 * day, "1w"},
		"weeks":            {14 * day, "2w"},
		"weeks and days":   {9 * day, "1w2d"},
		"weeks days hours": {9*day + 12*time.Hour, "1w2d12h"},
		"negative days":    {-3 * day, "-3d"},
		"one month":        {30 * day, "1mo"},
		"two months":       {60 * day, "2mo"},
		"month and week":   {37 * day, "1mo1w"},
		"one year":         {365 * day, "1y"},
		"year and month":   {395 * day, "1y1mo"},
		"sub-second":       {1500 * time.Microsecond, "1ms500µs"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, Format(tc.in))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{
		0,
		90 * time.Second,
		45 * time.Minute,
		36 * time.Hour,
		10 * 24 * time.Hour,
		100 * 24 * time.Hour,
		400 * 24 * time.Hour,
	} {
		formatted := Format(d)
		parsed, err := Parse(formatted)
		require.NoError(t, err, "Parse(Format(%v))", d)
		assert.Equal(t, d, parsed, "round trip of %v via %q", d, formatted)
	}
}

func TestParseEquivalence(t *testing.T) {
	groups := [][]string{
		{"24h", "1d", "1 day"},
		{"168h", "1w", "1 week", "7d", "7 days"},
		{"336h", "2w", "2 weeks", "2wks", "14d"},
		{"36h", "1d12h"},
		{"192h", "1w1d", "1 week 1 day", "8d"},
		{"30d", "1mo", "1 month", "30 days"},
		{"365d", "1y", "1 year", "1yr", "365 days"},
		{"60d", "2mo", "2 months"},
	}

	for _, group := range groups {
		reference, err := Parse(group[0])
		require.NoError(t, err)
		for _, spelling := range group[1:] {
			d, err := Parse(spelling)
			require.NoError(t, err)
			assert.Equal(t, reference, d, "%q should equal %q", spelling, group[0])
		}
	}
}
