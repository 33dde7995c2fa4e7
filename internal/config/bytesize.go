package config

import (
	"encoding/json"

	"github.com/chanarr/chanarr/pkg/bytesize"
)

// ByteSize is a byte count that parses human-readable unit suffixes
// ("5MB", "1.5 GB", "500KB") as well as plain numbers. It implements
// encoding.TextUnmarshaler so Viper and YAML decode it directly, plus
// json.Marshaler/Unmarshaler for JSON config files.
type ByteSize int64

// ParseByteSize parses a human-readable size string.
func ParseByteSize(s string) (ByteSize, error) {
	size, err := bytesize.Parse(s)
	return ByteSize(size), err
}

func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err == nil {
		*b = parsed
	}
	return err
}

// UnmarshalJSON accepts either a size string or a raw byte count.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if json.Unmarshal(data, &s) == nil {
		return b.UnmarshalText([]byte(s))
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

// MarshalJSON emits the human-readable form.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Bytes returns the raw byte count.
func (b ByteSize) Bytes() int64 { return int64(b) }

// Int64 is an alias for Bytes.
func (b ByteSize) Int64() int64 { return int64(b) }

func (b ByteSize) String() string {
	return bytesize.Format(bytesize.Size(b))
}
