package httpclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantErr  bool
		contains []int
		excludes []int
	}{
		{
			name:     "single code",
			input:    "404",
			contains: []int{404},
			excludes: []int{403, 405},
		},
		{
			name:     "range",
			input:    "200-299",
			contains: []int{200, 250, 299},
			excludes: []int{199, 300},
		},
		{
			name:     "mixed",
			input:    "200-299, 404 ,500-503",
			contains: []int{204, 404, 502},
			excludes: []int{400, 504},
		},
		{name: "bad code", input: "abc", wantErr: true},
		{name: "bad range end", input: "200-xyz", wantErr: true},
		{name: "inverted range", input: "300-200", wantErr: true},
		{name: "below 100", input: "99", wantErr: true},
		{name: "above 599", input: "200-600", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseStatusCodes(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, code := range tt.contains {
				assert.True(t, set.Contains(code), "expected %d in set", code)
			}
			for _, code := range tt.excludes {
				assert.False(t, set.Contains(code), "expected %d not in set", code)
			}
		})
	}
}

func TestParseStatusCodesEmpty(t *testing.T) {
	for _, input := range []string{"", "  ", ","} {
		set, err := ParseStatusCodes(input)
		require.NoError(t, err)
		assert.Nil(t, set)
	}
}

func TestStatusCodeSetNilSafety(t *testing.T) {
	var set *StatusCodeSet
	assert.True(t, set.IsEmpty())
	assert.False(t, set.Contains(200))
	assert.Equal(t, "", set.String())
	assert.Nil(t, set.Clone())
}

func TestStatusCodeSetStringRoundTrip(t *testing.T) {
	set := MustParseStatusCodes("200-299,404,500-503")
	assert.Equal(t, "200-299,404,500-503", set.String())

	again, err := ParseStatusCodes(set.String())
	require.NoError(t, err)
	assert.Equal(t, set.String(), again.String())
}

func TestStatusCodeSetClone(t *testing.T) {
	set := MustParseStatusCodes("200-299")
	clone := set.Clone()

	clone.ranges = append(clone.ranges, codeRange{lo: 404, hi: 404})
	assert.False(t, set.Contains(404))
	assert.True(t, clone.Contains(404))
}

func TestStatusCodeSetJSON(t *testing.T) {
	set := MustParseStatusCodes("200-299,404")

	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.Equal(t, `"200-299,404"`, string(data))

	var decoded StatusCodeSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Contains(404))
	assert.False(t, decoded.Contains(500))
}
