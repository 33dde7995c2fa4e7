package generatem3u

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/pipeline/core"
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
	return state
}

func TestExecute_WritesPlaylist(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{
		{
			ChannelName:   "BBC One",
			TvgID:         "bbc1.uk",
			GroupTitle:    "UK",
			StreamURL:     "http://stream/bbc1",
			ChannelNumber: 1,
		},
		{
			ChannelName:   "ITV",
			TvgID:         "itv.uk",
			GroupTitle:    "UK",
			StreamURL:     "http://stream/itv",
			ChannelNumber: 2,
		},
	}

	stage := New()
	result, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordsProcessed)
	assert.Equal(t, 2, state.ChannelCount)

	tempPath, ok := state.GetMetadata(MetadataKeyTempPath)
	require.True(t, ok)
	expectedPath := filepath.Join(state.TempDir, state.ProxyID.String()+".m3u")
	assert.Equal(t, expectedPath, tempPath)

	data, err := os.ReadFile(expectedPath)
	require.NoError(t, err)
	content := string(data)

	assert.True(t, strings.HasPrefix(content, "#EXTM3U"))
	assert.Contains(t, content, `tvg-id="bbc1.uk"`)
	assert.Contains(t, content, `tvg-chno="1"`)
	assert.Contains(t, content, ",BBC One\n")
	assert.Contains(t, content, "http://stream/bbc1")
	assert.Contains(t, content, `tvg-chno="2"`)
	assert.Contains(t, content, "http://stream/itv")

	// Lineup order is preserved in the file.
	assert.Less(t, strings.Index(content, "BBC One"), strings.Index(content, "ITV"))
}

func TestExecute_SkipsChannelsWithoutStreamURL(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{
		{ChannelName: "Good", StreamURL: "http://stream/good", ChannelNumber: 1},
		{ChannelName: "Broken", ChannelNumber: 2},
	}

	stage := New()
	result, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordsProcessed)
	assert.True(t, state.HasErrors())

	tempPath, _ := state.GetMetadata(MetadataKeyTempPath)
	data, err := os.ReadFile(tempPath.(string))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Broken")
}

func TestExecute_EmptyLineupSkipsGeneration(t *testing.T) {
	state := newTestState(t)

	stage := New()
	result, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, "No channels to write", result.Message)

	_, ok := state.GetMetadata(MetadataKeyTempPath)
	assert.False(t, ok)
}

func TestExecute_RegistersArtifact(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{
		{ChannelName: "BBC One", StreamURL: "http://stream/bbc1", ChannelNumber: 1},
	}

	stage := New()
	result, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	require.Len(t, result.Artifacts, 1)
	artifact := result.Artifacts[0]
	assert.Equal(t, core.ArtifactTypeM3U, artifact.Type)
	assert.Equal(t, 1, artifact.RecordCount)
	assert.NotEmpty(t, artifact.FilePath)
	assert.Greater(t, artifact.FileSize, int64(0))
}

func TestStage_Interface(t *testing.T) {
	stage := New()
	assert.Equal(t, StageID, stage.ID())
	assert.Equal(t, StageName, stage.Name())
}

func TestNewConstructor(t *testing.T) {
	constructor := NewConstructor()
	stage := constructor(&core.Dependencies{})
	assert.NotNil(t, stage)
	assert.Equal(t, StageID, stage.ID())
}
