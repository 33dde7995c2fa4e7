package ingestionguard

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStateChecker struct {
	ingesting atomic.Bool
	names     []string
}

func (f *fakeStateChecker) IsAnyIngesting() bool {
	return f.ingesting.Load()
}

func (f *fakeStateChecker) ActiveIngestionCount() int {
	if f.ingesting.Load() {
		return len(f.names)
	}
	return 0
}

func (f *fakeStateChecker) ActiveSourceNames() []string {
	if f.ingesting.Load() {
		return f.names
	}
	return nil
}

func newTestState(t *testing.T) *core.State {
	t.Helper()

	proxy := &models.Proxy{
		BaseModel: models.BaseModel{ID: models.NewULID()},
		Name:      "Test Proxy",
	}
	return core.NewState(proxy)
}

func TestExecute_NoActiveIngestionsProceeds(t *testing.T) {
	checker := &fakeStateChecker{}

	stage := New(checker)
	result, err := stage.Execute(context.Background(), newTestState(t))

	require.NoError(t, err)
	assert.Equal(t, "No active ingestions, proceeding", result.Message)
}

func TestExecute_WaitsForIngestionToFinish(t *testing.T) {
	checker := &fakeStateChecker{names: []string{"provider-a"}}
	checker.ingesting.Store(true)

	stage := New(checker).WithPollInterval(10 * time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		checker.ingesting.Store(false)
	}()

	result, err := stage.Execute(context.Background(), newTestState(t))

	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordsProcessed)
	assert.Contains(t, result.Message, "to complete")
}

func TestExecute_TimesOutWhenIngestionNeverFinishes(t *testing.T) {
	checker := &fakeStateChecker{names: []string{"provider-a", "provider-b"}}
	checker.ingesting.Store(true)

	stage := New(checker).
		WithPollInterval(10 * time.Millisecond).
		WithMaxWaitTime(50 * time.Millisecond)

	_, err := stage.Execute(context.Background(), newTestState(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout waiting for ingestions")
	assert.Contains(t, err.Error(), "provider-a")
}

func TestExecute_ParentContextCancellation(t *testing.T) {
	checker := &fakeStateChecker{names: []string{"provider-a"}}
	checker.ingesting.Store(true)

	stage := New(checker).WithPollInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := stage.Execute(ctx, newTestState(t))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_DisabledSkips(t *testing.T) {
	checker := &fakeStateChecker{names: []string{"provider-a"}}
	checker.ingesting.Store(true)

	stage := New(checker).WithEnabled(false)
	result, err := stage.Execute(context.Background(), newTestState(t))

	require.NoError(t, err)
	assert.Contains(t, result.Message, "disabled")
}

func TestExecute_NilStateCheckerSkips(t *testing.T) {
	stage := New(nil)
	result, err := stage.Execute(context.Background(), newTestState(t))

	require.NoError(t, err)
	assert.Contains(t, result.Message, "No state checker")
}

func TestStage_Interface(t *testing.T) {
	stage := New(nil)
	assert.Equal(t, StageID, stage.ID())
	assert.Equal(t, StageName, stage.Name())
}
