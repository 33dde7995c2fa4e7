package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/chanarr/chanarr/internal/pipeline/stages/generatem3u"
	"github.com/chanarr/chanarr/internal/pipeline/stages/generatexmltv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *core.State {
	t.Helper()

	proxy := &models.Proxy{
		BaseModel: models.BaseModel{ID: models.NewULID()},
		Name:      "Test Proxy",
	}
	state := core.NewState(proxy)
	state.TempDir = t.TempDir()
	state.OutputDir = filepath.Join(t.TempDir(), "output")
	return state
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestExecute_PublishesGeneratedFiles(t *testing.T) {
	state := newTestState(t)
	m3uTemp := writeTempFile(t, state.TempDir, state.ProxyID.String()+".m3u", "#EXTM3U\n")
	xmltvTemp := writeTempFile(t, state.TempDir, state.ProxyID.String()+".xml", "<tv></tv>\n")
	state.SetMetadata(generatem3u.MetadataKeyTempPath, m3uTemp)
	state.SetMetadata(generatexmltv.MetadataKeyTempPath, xmltvTemp)

	stage := New(nil)
	result, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordsProcessed)
	assert.Len(t, result.Artifacts, 2)

	m3uData, err := os.ReadFile(filepath.Join(state.OutputDir, state.ProxyID.String()+".m3u"))
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", string(m3uData))

	xmltvData, err := os.ReadFile(filepath.Join(state.OutputDir, state.ProxyID.String()+".xml"))
	require.NoError(t, err)
	assert.Equal(t, "<tv></tv>\n", string(xmltvData))
}

func TestExecute_CreatesOutputDirectory(t *testing.T) {
	state := newTestState(t)
	state.OutputDir = filepath.Join(t.TempDir(), "nested", "output")
	m3uTemp := writeTempFile(t, state.TempDir, "lineup.m3u", "#EXTM3U\n")
	state.SetMetadata(generatem3u.MetadataKeyTempPath, m3uTemp)

	stage := New(nil)
	_, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(state.OutputDir, state.ProxyID.String()+".m3u"))
	assert.NoError(t, err)
}

func TestExecute_ReplacesPreviousGeneration(t *testing.T) {
	state := newTestState(t)
	require.NoError(t, os.MkdirAll(state.OutputDir, 0755))

	destPath := filepath.Join(state.OutputDir, state.ProxyID.String()+".m3u")
	require.NoError(t, os.WriteFile(destPath, []byte("old generation\n"), 0644))

	m3uTemp := writeTempFile(t, state.TempDir, "next.m3u", "#EXTM3U\nnew generation\n")
	state.SetMetadata(generatem3u.MetadataKeyTempPath, m3uTemp)

	stage := New(nil)
	_, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	data, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\nnew generation\n", string(data))
}

func TestExecute_NothingToPublish(t *testing.T) {
	state := newTestState(t)

	stage := New(nil)
	result, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, 0, result.RecordsProcessed)
	assert.Empty(t, result.Artifacts)
}

func TestExecute_MissingTempFileFails(t *testing.T) {
	state := newTestState(t)
	state.SetMetadata(generatem3u.MetadataKeyTempPath, filepath.Join(state.TempDir, "does-not-exist.m3u"))

	stage := New(nil)
	_, err := stage.Execute(context.Background(), state)

	require.Error(t, err)
}

func TestStage_Interface(t *testing.T) {
	stage := New(nil)
	assert.Equal(t, StageID, stage.ID())
	assert.Equal(t, StageName, stage.Name())
}

func TestNewConstructor(t *testing.T) {
	constructor := NewConstructor()
	stage := constructor(&core.Dependencies{})
	assert.NotNil(t, stage)
	assert.Equal(t, StageID, stage.ID())
}
