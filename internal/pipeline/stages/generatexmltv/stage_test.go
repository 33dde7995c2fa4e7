package generatexmltv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

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

func generate(t *testing.T, state *core.State) string {
	t.Helper()

	stage := New()
	_, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)

	tempPath, ok := state.GetMetadata(MetadataKeyTempPath)
	require.True(t, ok)

	data, err := os.ReadFile(tempPath.(string))
	require.NoError(t, err)
	return string(data)
}

func TestExecute_WritesChannelsAndProgrammes(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{
		{ChannelName: "BBC One", TvgID: "bbc1.uk", StreamURL: "http://stream/bbc1"},
		{ChannelName: "No Guide", StreamURL: "http://stream/noguide"},
	}
	state.EpgChannels = []*models.EpgChannel{
		{ChannelID: "bbc1.uk", ChannelName: "BBC One HD", ChannelLogo: "http://logo/bbc1.png"},
	}
	state.RebuildEpgChannelMap()
	now := time.Now()
	state.Programs = []*models.EpgProgram{
		{ChannelID: "bbc1.uk", Title: "News at Ten", Start: now, Stop: now.Add(time.Hour)},
	}

	content := generate(t, state)

	assert.Contains(t, content, `<tv`)
	assert.Contains(t, content, `id="bbc1.uk"`)
	assert.Contains(t, content, "News at Ten")
	assert.Contains(t, content, "</tv>")
	// Channels without a tvg_id have no guide identity to publish.
	assert.NotContains(t, content, "No Guide")
	assert.Equal(t, 1, state.ProgramCount)
}

func TestExecute_GuideMetadataEnrichesChannel(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{
		{TvgID: "bbc1.uk", StreamURL: "http://stream/bbc1"},
	}
	state.EpgChannels = []*models.EpgChannel{
		{ChannelID: "bbc1.uk", ChannelName: "BBC One HD", ChannelLogo: "http://logo/bbc1.png"},
	}
	state.RebuildEpgChannelMap()

	content := generate(t, state)

	assert.Contains(t, content, "BBC One HD")
	assert.Contains(t, content, "http://logo/bbc1.png")
}

func TestExecute_DuplicateTvgIDWrittenOnce(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{
		{ChannelName: "BBC One", TvgID: "bbc1.uk", StreamURL: "http://a"},
		{ChannelName: "BBC One Backup", TvgID: "bbc1.uk", StreamURL: "http://b"},
	}

	content := generate(t, state)

	assert.Equal(t, 1, strings.Count(content, `id="bbc1.uk"`))
}

func TestExecute_ProgrammesForUnwrittenChannelsDropped(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{
		{ChannelName: "BBC One", TvgID: "bbc1.uk", StreamURL: "http://stream/bbc1"},
	}
	now := time.Now()
	state.Programs = []*models.EpgProgram{
		{ChannelID: "bbc1.uk", Title: "Kept Show", Start: now, Stop: now.Add(time.Hour)},
		{ChannelID: "ghost.uk", Title: "Orphan Show", Start: now, Stop: now.Add(time.Hour)},
	}

	content := generate(t, state)

	assert.Contains(t, content, "Kept Show")
	assert.NotContains(t, content, "Orphan Show")
	assert.Equal(t, 1, state.ProgramCount)
}

func TestExecute_ProgrammeWithEmptyTitleSkipped(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{
		{ChannelName: "BBC One", TvgID: "bbc1.uk", StreamURL: "http://stream/bbc1"},
	}
	now := time.Now()
	state.Programs = []*models.EpgProgram{
		{ChannelID: "bbc1.uk", Start: now, Stop: now.Add(time.Hour)},
	}

	content := generate(t, state)

	assert.NotContains(t, content, "<programme")
	assert.True(t, state.HasErrors())
}

func TestExecute_OutputPathUsesProxyID(t *testing.T) {
	state := newTestState(t)

	stage := New()
	_, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)

	tempPath, ok := state.GetMetadata(MetadataKeyTempPath)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(state.TempDir, state.ProxyID.String()+".xml"), tempPath)
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
