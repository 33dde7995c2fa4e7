package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULID(t *testing.T) {
	id1 := NewULID()
	id2 := NewULID()

	assert.False(t, id1.IsZero())
	assert.NotEqual(t, id1, id2)
	assert.Len(t, id1.String(), 26)
}

func TestParseULID(t *testing.T) {
	original := NewULID()

	parsed, err := ParseULID(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)

	_, err = ParseULID("not-a-ulid")
	assert.Error(t, err)
}

func TestMustParseULID_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustParseULID("invalid")
	})
}

func TestULID_ValueAndScan(t *testing.T) {
	id := NewULID()

	v, err := id.Value()
	require.NoError(t, err)
	assert.Equal(t, id.String(), v)

	var scanned ULID
	require.NoError(t, scanned.Scan(id.String()))
	assert.Equal(t, id, scanned)

	require.NoError(t, scanned.Scan([]byte(id.String())))
	assert.Equal(t, id, scanned)

	var zero ULID
	v, err = zero.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsZero())

	assert.Error(t, scanned.Scan(42))
}

func TestULID_JSON(t *testing.T) {
	id := NewULID()

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"`+id.String()+`"`, string(data))

	var decoded ULID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)

	var zero ULID
	data, err = json.Marshal(zero)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	require.NoError(t, json.Unmarshal([]byte("null"), &decoded))
	assert.True(t, decoded.IsZero())

	assert.Error(t, json.Unmarshal([]byte("42"), &decoded))
}

func TestBaseModel_BeforeCreate(t *testing.T) {
	m := &BaseModel{}
	require.NoError(t, m.BeforeCreate(nil))
	assert.False(t, m.ID.IsZero())

	// Existing IDs are preserved
	id := m.ID
	require.NoError(t, m.BeforeCreate(nil))
	assert.Equal(t, id, m.ID)
}

func TestBoolHelpers(t *testing.T) {
	assert.True(t, BoolVal(nil))
	assert.True(t, BoolVal(BoolPtr(true)))
	assert.False(t, BoolVal(BoolPtr(false)))
}
