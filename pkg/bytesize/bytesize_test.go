package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := map[string]Size{
		"2048":      2048,
		"2048B":     2048,
		"64 byte":   64,
		"64 bytes":  64,
		"3K":        3 * KB,
		"3KB":       3 * KB,
		"3KiB":      3 * KB,
		"3 KB":      3 * KB,
		"3kb":       3 * KB,
		"12M":       12 * MB,
		"12MB":      12 * MB,
		"12MiB":     12 * MB,
		"4G":        4 * GB,
		"4GB":       4 * GB,
		"4GiB":      4 * GB,
		"2T":        2 * TB,
		"2TB":       2 * TB,
		"2TiB":      2 * TB,
		"1P":        PB,
		"1PB":       PB,
		"1PiB":      PB,
		"1.5MB":     Size(1.5 * float64(MB)),
		"2.5 GB":    Size(2.5 * float64(GB)),
		"7Mb":       7 * MB,
		"  8MB":     8 * MB,
		"8MB  ":     8 * MB,
		"0":         0,
		"0MB":       0,
		"5242880":   5242880,
		"64 bytes ": 64,
	}

	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}

	t.Run("rejects malformed input", func(t *testing.T) {
		for _, in := range []string{"", "garbage", "5XB", "-5MB", "MB5"} {
			_, err := Parse(in)
			assert.Error(t, err, "input %q", in)
		}
	})
}

func TestMustParse(t *testing.T) {
	assert.Equal(t, 12*MB, MustParse("12MB"))
	assert.Panics(t, func() { MustParse("garbage") })
}

func TestFormat(t *testing.T) {
	cases := map[string]struct {
		size Size
		want string
	}{
		"zero":          {0, "0B"},
		"plain bytes":   {640, "640B"},
		"kilobytes":     {3 * KB, "3KB"},
		"megabytes":     {12 * MB, "12MB"},
		"gigabytes":     {4 * GB, "4GB"},
		"terabytes":     {2 * TB, "2TB"},
		"petabytes":     {PB, "1PB"},
		"fractional MB": {Size(1.5 * float64(MB)), "1.5MB"},
		"fractional GB": {Size(2.25 * float64(GB)), "2.25GB"},
		"just under KB": {1023, "1023B"},
		"exactly KB":    {1024, "1KB"},
		"just over KB":  {1025, "1KB"},
		"negative":      {-3 * MB, "-3MB"},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, c.want, Format(c.size))
		})
	}
}

func TestSizeMethods(t *testing.T) {
	size := 12 * MB
	assert.Equal(t, "12MB", size.String())
	assert.Equal(t, int64(12582912), size.Bytes())
	assert.Equal(t, int64(12582912), size.Int64())
}

func TestConstants(t *testing.T) {
	assert.Equal(t, Size(1), B)
	assert.Equal(t, 1024*B, KB)
	assert.Equal(t, 1024*KB, MB)
	assert.Equal(t, 1024*MB, GB)
	assert.Equal(t, 1024*GB, TB)
	assert.Equal(t, 1024*TB, PB)
}

func TestParseEquivalence(t *testing.T) {
	groups := map[string][]string{
		"3KB":  {"3 KB", "3kb", "3kib", "3072", "3072B"},
		"12MB": {"12 MB", "12mb", "12mib", "12M"},
		"4GB":  {"4 GB", "4gb", "4gib", "4G"},
	}

	for canonical, variants := range groups {
		want, err := Parse(canonical)
		require.NoError(t, err)
		for _, v := range variants {
			got, err := Parse(v)
			require.NoError(t, err, "input %q", v)
			assert.Equal(t, want, got, "%q should equal %q", v, canonical)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []Size{0, B, KB, MB, GB, TB, 12 * MB, 4 * GB} {
		formatted := Format(s)
		parsed, err := Parse(formatted)
		require.NoError(t, err, "Format(%v) = %q", s, formatted)
		assert.Equal(t, s, parsed, "round trip through %q", formatted)
	}
}
