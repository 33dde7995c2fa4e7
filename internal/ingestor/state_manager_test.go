package ingestor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanarr/chanarr/internal/models"
)

// startTracked starts tracking a fresh source and returns its ID.
func startTracked(t *testing.T, m *StateManager, name string) models.ULID {
	t.Helper()
	id := models.NewULID()
	src := &models.StreamSource{BaseModel: models.BaseModel{ID: id}, Name: name}
	require.NoError(t, m.Start(src))
	return id
}

func TestStateManager_Start(t *testing.T) {
	m := NewStateManager()
	id := startTracked(t, m, "Test Source")

	st, exists := m.GetState(id)
	require.True(t, exists)
	assert.Equal(t, "ingesting", st.Status)
	assert.Equal(t, "Test Source", st.SourceName)

	// A second start for the same source must be rejected
	src := &models.StreamSource{BaseModel: models.BaseModel{ID: id}, Name: "Test Source"}
	assert.ErrorContains(t, m.Start(src), "already in progress")
}

func TestStateManager_UpdateProgress(t *testing.T) {
	m := NewStateManager()
	id := startTracked(t, m, "Test")

	m.UpdateProgress(id, 100, 5)

	st, exists := m.GetState(id)
	require.True(t, exists)
	assert.Equal(t, 100, st.Processed)
	assert.Equal(t, 5, st.Errors)
}

func TestStateManager_Complete(t *testing.T) {
	m := NewStateManager()
	id := startTracked(t, m, "Test")

	m.Complete(id, 500)

	// The state lingers briefly so status checks still see it
	st, exists := m.GetState(id)
	require.True(t, exists)
	assert.Equal(t, "completed", st.Status)
	assert.Equal(t, 500, st.Processed)
}

func TestStateManager_Fail(t *testing.T) {
	m := NewStateManager()
	id := startTracked(t, m, "Test")

	ingestErr := errors.New("upstream unreachable")
	m.Fail(id, ingestErr)

	st, exists := m.GetState(id)
	require.True(t, exists)
	assert.Equal(t, "failed", st.Status)
	assert.ErrorIs(t, st.Error, ingestErr)
}

func TestStateManager_Cancel(t *testing.T) {
	m := NewStateManager()
	id := startTracked(t, m, "Test")

	m.Cancel(id)

	_, exists := m.GetState(id)
	assert.False(t, exists, "cancel should remove the state immediately")
}

func TestStateManager_IsIngesting(t *testing.T) {
	m := NewStateManager()

	unknown := models.NewULID()
	assert.False(t, m.IsIngesting(unknown))

	id := startTracked(t, m, "Test")
	assert.True(t, m.IsIngesting(id))

	m.Complete(id, 100)
	assert.False(t, m.IsIngesting(id))
}

func TestStateManager_GetAllStates(t *testing.T) {
	m := NewStateManager()
	for range 3 {
		startTracked(t, m, "Source")
	}
	assert.Len(t, m.GetAllStates(), 3)
}

func TestStateManager_ActiveIngestions(t *testing.T) {
	m := NewStateManager()

	assert.False(t, m.IsAnyIngesting())
	assert.Zero(t, m.ActiveIngestionCount())
	assert.Empty(t, m.ActiveSourceNames())

	alpha := startTracked(t, m, "Alpha")
	startTracked(t, m, "Beta")

	assert.True(t, m.IsAnyIngesting())
	assert.Equal(t, 2, m.ActiveIngestionCount())
	assert.ElementsMatch(t, []string{"Alpha", "Beta"}, m.ActiveSourceNames())

	// A completed source no longer counts as active
	m.Complete(alpha, 10)
	assert.Equal(t, 1, m.ActiveIngestionCount())
	assert.Equal(t, []string{"Beta"}, m.ActiveSourceNames())
}

func TestStateManager_WaitForCompletion(t *testing.T) {
	m := NewStateManager()
	id := startTracked(t, m, "Test")

	go func() {
		time.Sleep(50 * time.Millisecond)
		m.Complete(id, 100)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, m.WaitForCompletion(ctx, id))
}

func TestStateManager_WaitForCompletion_ContextCancelled(t *testing.T) {
	m := NewStateManager()
	id := startTracked(t, m, "Test")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.WaitForCompletion(ctx, id), context.DeadlineExceeded)
}

func TestStateManager_WaitForCompletion_NotExists(t *testing.T) {
	m := NewStateManager()

	// An untracked source counts as already finished
	assert.NoError(t, m.WaitForCompletion(context.Background(), models.NewULID()))
}

func TestStateManager_WaitForCompletion_Failed(t *testing.T) {
	m := NewStateManager()
	id := startTracked(t, m, "Test")

	ingestErr := errors.New("ingestion failed")
	go func() {
		time.Sleep(50 * time.Millisecond)
		m.Fail(id, ingestErr)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorIs(t, m.WaitForCompletion(ctx, id), ingestErr)
}
