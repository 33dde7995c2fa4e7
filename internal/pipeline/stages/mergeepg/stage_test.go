package mergeepg

import (
	"context"
	"testing"
	"time"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/chanarr/chanarr/internal/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.EpgSource{}, &models.EpgChannel{}, &models.EpgProgram{})
	require.NoError(t, err)

	return db
}

func createEpgSource(t *testing.T, db *gorm.DB, name string) *models.EpgSource {
	t.Helper()

	source := &models.EpgSource{
		Name: name,
		Type: models.EpgSourceTypeXMLTV,
		URL:  "http://example.com/" + name + ".xml",
	}
	require.NoError(t, db.Create(source).Error)
	return source
}

func createGuideChannel(t *testing.T, db *gorm.DB, sourceID models.ULID, channelID, name string) *models.EpgChannel {
	t.Helper()

	gc := &models.EpgChannel{
		SourceID:    sourceID,
		ChannelID:   channelID,
		ChannelName: name,
	}
	require.NoError(t, db.Create(gc).Error)
	return gc
}

func createProgram(t *testing.T, db *gorm.DB, sourceID models.ULID, channelID, title string, start, stop time.Time) *models.EpgProgram {
	t.Helper()

	prog := &models.EpgProgram{
		SourceID:  sourceID,
		ChannelID: channelID,
		Title:     title,
		Start:     start,
		Stop:      stop,
	}
	require.NoError(t, db.Create(prog).Error)
	return prog
}

func newTestState(t *testing.T, epgSources ...*models.ProxyEpgSource) *core.State {
	t.Helper()

	proxy := &models.Proxy{
		BaseModel: models.BaseModel{ID: models.NewULID()},
		Name:      "Test Proxy",
	}
	state := core.NewState(proxy)
	state.EpgSources = epgSources
	return state
}

func attach(source *models.EpgSource, priority int) *models.ProxyEpgSource {
	return &models.ProxyEpgSource{
		EpgSourceID:   source.ID,
		PriorityOrder: priority,
		EpgSource:     source,
	}
}

func withLineup(state *core.State, tvgIDs ...string) {
	for _, id := range tvgIDs {
		ch := &models.Channel{TvgID: id, ChannelName: id, StreamURL: "http://stream/" + id}
		state.Channels = append(state.Channels, ch)
	}
	state.RebuildChannelMap()
}

func newStage(t *testing.T, db *gorm.DB) *Stage {
	t.Helper()
	return New(repository.NewEpgChannelRepository(db), repository.NewEpgProgramRepository(db))
}

func TestExecute_SkipsWhenNoEpgSources(t *testing.T) {
	state := newTestState(t)
	withLineup(state, "bbc1.uk")

	stage := New(nil, nil)
	result, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.Empty(t, state.EpgChannels)
	assert.Contains(t, result.Message, "No EPG sources")
}

func TestExecute_SkipsWhenNoLineupChannelsHaveTvgID(t *testing.T) {
	db := setupTestDB(t)
	source := createEpgSource(t, db, "guide")

	state := newTestState(t, attach(source, 1))

	stage := newStage(t, db)
	_, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.Empty(t, state.EpgChannels)
	assert.Empty(t, state.Programs)
}

func TestExecute_MatchesGuideChannelsToLineup(t *testing.T) {
	db := setupTestDB(t)
	source := createEpgSource(t, db, "guide")

	createGuideChannel(t, db, source.ID, "bbc1.uk", "BBC One")
	createGuideChannel(t, db, source.ID, "unrelated.fr", "Unrelated")

	state := newTestState(t, attach(source, 1))
	withLineup(state, "bbc1.uk")

	stage := newStage(t, db)
	_, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	require.Len(t, state.EpgChannels, 1)
	assert.Equal(t, "BBC One", state.EpgChannels[0].ChannelName)
	assert.Contains(t, state.EpgChannelMap, "bbc1.uk")
	assert.NotContains(t, state.EpgChannelMap, "unrelated.fr")
}

func TestExecute_HighestPrioritySourceWinsPerChannelID(t *testing.T) {
	db := setupTestDB(t)
	primary := createEpgSource(t, db, "primary")
	backup := createEpgSource(t, db, "backup")

	createGuideChannel(t, db, primary.ID, "bbc1.uk", "BBC One Primary")
	createGuideChannel(t, db, backup.ID, "bbc1.uk", "BBC One Backup")
	createGuideChannel(t, db, backup.ID, "itv.uk", "ITV Backup")

	now := time.Now()
	createProgram(t, db, primary.ID, "bbc1.uk", "From Primary", now, now.Add(time.Hour))
	createProgram(t, db, backup.ID, "bbc1.uk", "From Backup", now, now.Add(time.Hour))
	createProgram(t, db, backup.ID, "itv.uk", "ITV Show", now, now.Add(time.Hour))

	state := newTestState(t, attach(primary, 1), attach(backup, 2))
	withLineup(state, "bbc1.uk", "itv.uk")

	stage := newStage(t, db)
	result, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	require.Len(t, state.EpgChannels, 2)
	assert.Equal(t, "BBC One Primary", state.EpgChannelMap["bbc1.uk"].ChannelName)
	assert.Equal(t, "ITV Backup", state.EpgChannelMap["itv.uk"].ChannelName)
	assert.Equal(t, 1, result.RecordsModified)

	// Programmes for bbc1.uk come only from the winning source.
	require.Len(t, state.Programs, 2)
	titles := []string{state.Programs[0].Title, state.Programs[1].Title}
	assert.Contains(t, titles, "From Primary")
	assert.Contains(t, titles, "ITV Show")
	assert.NotContains(t, titles, "From Backup")
}

func TestExecute_ProgramWindow(t *testing.T) {
	db := setupTestDB(t)
	source := createEpgSource(t, db, "guide")
	createGuideChannel(t, db, source.ID, "bbc1.uk", "BBC One")

	now := time.Now()
	createProgram(t, db, source.ID, "bbc1.uk", "Already Ended", now.Add(-2*time.Hour), now.Add(-time.Hour))
	createProgram(t, db, source.ID, "bbc1.uk", "Airing Now", now.Add(-time.Hour), now.Add(time.Hour))
	createProgram(t, db, source.ID, "bbc1.uk", "Within Window", now.Add(24*time.Hour), now.Add(25*time.Hour))
	createProgram(t, db, source.ID, "bbc1.uk", "Beyond Window", now.Add(10*24*time.Hour), now.Add(10*24*time.Hour+time.Hour))

	state := newTestState(t, attach(source, 1))
	withLineup(state, "bbc1.uk")

	stage := newStage(t, db)
	_, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	require.Len(t, state.Programs, 2)
	titles := []string{state.Programs[0].Title, state.Programs[1].Title}
	assert.Contains(t, titles, "Airing Now")
	assert.Contains(t, titles, "Within Window")
}

func TestExecute_DisabledEpgSourceSkipped(t *testing.T) {
	db := setupTestDB(t)
	source := createEpgSource(t, db, "guide")
	require.NoError(t, db.Model(source).UpdateColumn("enabled", false).Error)
	source.Enabled = models.BoolPtr(false)

	createGuideChannel(t, db, source.ID, "bbc1.uk", "BBC One")

	state := newTestState(t, attach(source, 1))
	withLineup(state, "bbc1.uk")

	stage := newStage(t, db)
	_, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.Empty(t, state.EpgChannels)
}

func TestWithEPGDays(t *testing.T) {
	stage := New(nil, nil)
	assert.Equal(t, DefaultEPGDays, stage.epgDays)

	stage.WithEPGDays(3)
	assert.Equal(t, 3, stage.epgDays)

	stage.WithEPGDays(0)
	assert.Equal(t, 3, stage.epgDays)
}

func TestStage_Interface(t *testing.T) {
	stage := New(nil, nil)
	assert.Equal(t, StageID, stage.ID())
	assert.Equal(t, StageName, stage.Name())
}

func TestNewConstructor(t *testing.T) {
	constructor := NewConstructor()
	stage := constructor(&core.Dependencies{})
	assert.NotNil(t, stage)
	assert.Equal(t, StageID, stage.ID())
}
