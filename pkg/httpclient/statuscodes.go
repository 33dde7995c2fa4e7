package httpclient

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StatusCodeSet is a set of HTTP status codes stored as inclusive ranges.
// A single code is a degenerate range. The textual form, used in config
// files and the API, looks like "200-299,404".
type StatusCodeSet struct {
	ranges []codeRange
}

type codeRange struct {
	lo, hi int
}

// ParseStatusCodes parses a comma-separated list of codes and ranges into a
// StatusCodeSet. Empty input yields nil, which callers treat as "default".
func ParseStatusCodes(s string) (*StatusCodeSet, error) {
	set := &StatusCodeSet{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var r codeRange
		if lo, hi, found := strings.Cut(part, "-"); found {
			var err error
			if r.lo, err = strconv.Atoi(strings.TrimSpace(lo)); err != nil {
				return nil, fmt.Errorf("invalid range start %q: %w", lo, err)
			}
			if r.hi, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid range end %q: %w", hi, err)
			}
			if r.lo > r.hi {
				return nil, fmt.Errorf("invalid range %s: start exceeds end", part)
			}
		} else {
			code, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid status code %q: %w", part, err)
			}
			r = codeRange{lo: code, hi: code}
		}

		if r.lo < 100 || r.hi > 599 {
			return nil, fmt.Errorf("status codes in %q out of bounds: must be 100-599", part)
		}
		set.ranges = append(set.ranges, r)
	}

	if len(set.ranges) == 0 {
		return nil, nil
	}
	return set, nil
}

// MustParseStatusCodes is ParseStatusCodes for hard-coded inputs; it panics
// on a parse error.
func MustParseStatusCodes(s string) *StatusCodeSet {
	set, err := ParseStatusCodes(s)
	if err != nil {
		panic(err)
	}
	return set
}

// Contains reports whether code is in the set. A nil set contains nothing.
func (s *StatusCodeSet) Contains(code int) bool {
	if s == nil {
		return false
	}
	for _, r := range s.ranges {
		if code >= r.lo && code <= r.hi {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the set is nil or has no entries.
func (s *StatusCodeSet) IsEmpty() bool {
	return s == nil || len(s.ranges) == 0
}

// String renders the set back into the textual form ParseStatusCodes accepts.
func (s *StatusCodeSet) String() string {
	if s.IsEmpty() {
		return ""
	}
	parts := make([]string, 0, len(s.ranges))
	for _, r := range s.ranges {
		if r.lo == r.hi {
			parts = append(parts, strconv.Itoa(r.lo))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", r.lo, r.hi))
		}
	}
	return strings.Join(parts, ",")
}

// Clone returns a deep copy of the set.
func (s *StatusCodeSet) Clone() *StatusCodeSet {
	if s == nil {
		return nil
	}
	clone := &StatusCodeSet{ranges: make([]codeRange, len(s.ranges))}
	copy(clone.ranges, s.ranges)
	return clone
}

// MarshalJSON encodes the set as its textual form.
func (s *StatusCodeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the textual form produced by MarshalJSON.
func (s *StatusCodeSet) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	parsed, err := ParseStatusCodes(text)
	if err != nil {
		return err
	}
	if parsed == nil {
		s.ranges = nil
	} else {
		s.ranges = parsed.ranges
	}
	return nil
}
