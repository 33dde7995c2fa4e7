// Package models defines the GORM database models for chanarr entities.
package models

import (
	"crypto/rand"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// BoolPtr returns a pointer to b, for filling *bool struct fields.
func BoolPtr(b bool) *bool { return &b }

// BoolVal dereferences b, treating nil as true. This mirrors the
// default:true GORM tag on optional bool columns.
func BoolVal(b *bool) bool { return b == nil || *b }

// ULID wraps ulid.ULID so it can serve as a primary key column.
type ULID ulid.ULID

// NewULID generates a fresh ULID from the current time and crypto/rand.
func NewULID() ULID {
	return ULID(ulid.MustNew(ulid.Now(), rand.Reader))
}

// ParseULID parses the canonical 26-character form.
func ParseULID(s string) (ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		err = fmt.Errorf("invalid ULID: %w", err)
	}
	return ULID(id), err
}

// MustParseULID is ParseULID for literals; it panics on error.
func MustParseULID(s string) ULID {
	u, err := ParseULID(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (u ULID) String() string { return ulid.ULID(u).String() }

// IsZero reports whether u is the zero ULID.
func (u ULID) IsZero() bool { return ulid.ULID(u).Compare(ulid.ULID{}) == 0 }

// Value implements driver.Valuer. The zero ULID stores as NULL.
func (u ULID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.String(), nil
}

// scanText assigns the textual form to u; empty text means the zero ULID.
func (u *ULID) scanText(s string) error {
	if s == "" {
		*u = ULID{}
		return nil
	}
	id, err := ulid.Parse(s)
	if err != nil {
		return fmt.Errorf("scanning ULID: %w", err)
	}
	*u = ULID(id)
	return nil
}

// Scan implements sql.Scanner. NULL scans to the zero ULID.
func (u *ULID) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*u = ULID{}
		return nil
	case string:
		return u.scanText(v)
	case []byte:
		return u.scanText(string(v))
	}
	return fmt.Errorf("unsupported type for ULID: %T", value)
}

// MarshalJSON implements json.Marshaler. The zero ULID marshals as null.
func (u ULID) MarshalJSON() ([]byte, error) {
	if u.IsZero() {
		return []byte("null"), nil
	}
	return fmt.Appendf(nil, "%q", u.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler. null and "" both decode to
// the zero ULID.
func (u *ULID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*u = ULID{}
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid ULID JSON: %s", string(data))
	}
	if s := string(data[1 : len(data)-1]); s != "" {
		id, err := ulid.Parse(s)
		if err != nil {
			return fmt.Errorf("parsing ULID JSON: %w", err)
		}
		*u = ULID(id)
		return nil
	}
	*u = ULID{}
	return nil
}

// GormDataType tells GORM how to type the column.
func (ULID) GormDataType() string { return "varchar(26)" }

// BaseModel carries the fields shared by every persisted entity.
type BaseModel struct {
	ID ULID `gorm:"primarykey;type:varchar(26)" json:"id"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// BeforeCreate fills in the ID when the caller left it zero.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if !b.ID.IsZero() {
		return nil
	}
	b.ID = NewULID()
	return nil
}

// GetID returns the ULID identifier.
func (b *BaseModel) GetID() ULID { return b.ID }

// Time is an alias for time.Time used in models.
type Time = time.Time

// Now returns the current time.
func Now() Time { return time.Now() }
