package loadchannels

import (
	"context"
	"testing"

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

	err = db.AutoMigrate(&models.StreamSource{}, &models.Channel{})
	require.NoError(t, err)

	return db
}

func createSource(t *testing.T, db *gorm.DB, name string) *models.StreamSource {
	t.Helper()

	source := &models.StreamSource{
		Name: name,
		Type: models.SourceTypeM3U,
		URL:  "http://example.com/" + name + ".m3u",
	}
	require.NoError(t, db.Create(source).Error)
	return source
}

func createChannel(t *testing.T, db *gorm.DB, sourceID models.ULID, tvgID, name, url string) *models.Channel {
	t.Helper()

	ch := &models.Channel{
		SourceID:    sourceID,
		TvgID:       tvgID,
		ChannelName: name,
		StreamURL:   url,
	}
	ch.ExtID = ch.GenerateExtID()
	require.NoError(t, db.Create(ch).Error)
	return ch
}

func newTestState(t *testing.T, sources ...*models.ProxySource) *core.State {
	t.Helper()

	proxy := &models.Proxy{
		BaseModel: models.BaseModel{ID: models.NewULID()},
		Name:      "Test Proxy",
	}
	state := core.NewState(proxy)
	state.Sources = sources
	return state
}

func attach(source *models.StreamSource, priority int) *models.ProxySource {
	return &models.ProxySource{
		SourceID:      source.ID,
		PriorityOrder: priority,
		Source:        source,
	}
}

func TestExecute_NoSourcesError(t *testing.T) {
	state := newTestState(t)

	stage := New(nil)
	_, err := stage.Execute(context.Background(), state)

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNoSources)
}

func TestExecute_MergesSourcesInPriorityOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewChannelRepository(db)
	ctx := context.Background()

	primary := createSource(t, db, "primary")
	backup := createSource(t, db, "backup")

	createChannel(t, db, primary.ID, "bbc1.uk", "BBC One", "http://primary/bbc1")
	createChannel(t, db, primary.ID, "", "No Guide Channel", "http://primary/noguide")
	createChannel(t, db, backup.ID, "itv.uk", "ITV", "http://backup/itv")

	state := newTestState(t, attach(primary, 1), attach(backup, 2))

	stage := New(repo)
	result, err := stage.Execute(ctx, state)

	require.NoError(t, err)
	require.Len(t, state.Channels, 3)

	// Primary source channels come before backup source channels.
	assert.Equal(t, "BBC One", state.Channels[0].ChannelName)
	assert.Equal(t, "No Guide Channel", state.Channels[1].ChannelName)
	assert.Equal(t, "ITV", state.Channels[2].ChannelName)

	assert.Equal(t, 3, result.RecordsProcessed)
	assert.Len(t, state.ChannelMap, 2)
	assert.Contains(t, state.ChannelMap, "bbc1.uk")
	assert.Contains(t, state.ChannelMap, "itv.uk")
}

func TestExecute_DuplicateTvgID_HighestPrioritySourceWins(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewChannelRepository(db)
	ctx := context.Background()

	primary := createSource(t, db, "primary")
	backup := createSource(t, db, "backup")

	createChannel(t, db, primary.ID, "bbc1.uk", "BBC One HD", "http://primary/bbc1")
	createChannel(t, db, backup.ID, "bbc1.uk", "BBC One SD", "http://backup/bbc1")

	state := newTestState(t, attach(primary, 1), attach(backup, 2))

	stage := New(repo)
	result, err := stage.Execute(ctx, state)

	require.NoError(t, err)
	require.Len(t, state.Channels, 1)
	assert.Equal(t, "BBC One HD", state.Channels[0].ChannelName)
	assert.Equal(t, 1, result.RecordsModified)
}

func TestExecute_DuplicateStreamURL_DedupedWhenTvgIDEmpty(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewChannelRepository(db)
	ctx := context.Background()

	primary := createSource(t, db, "primary")
	backup := createSource(t, db, "backup")

	createChannel(t, db, primary.ID, "", "Same Stream", "http://cdn/stream")
	createChannel(t, db, backup.ID, "", "Same Stream Again", "http://cdn/stream")

	state := newTestState(t, attach(primary, 1), attach(backup, 2))

	stage := New(repo)
	_, err := stage.Execute(ctx, state)

	require.NoError(t, err)
	require.Len(t, state.Channels, 1)
	assert.Equal(t, "Same Stream", state.Channels[0].ChannelName)
}

func TestExecute_DisabledSourceSkipped(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewChannelRepository(db)
	ctx := context.Background()

	enabled := createSource(t, db, "enabled")
	disabled := createSource(t, db, "disabled")
	require.NoError(t, db.Model(disabled).UpdateColumn("enabled", false).Error)
	disabled.Enabled = models.BoolPtr(false)

	createChannel(t, db, enabled.ID, "a.uk", "Kept", "http://a")
	createChannel(t, db, disabled.ID, "b.uk", "Skipped", "http://b")

	state := newTestState(t, attach(enabled, 1), attach(disabled, 2))

	stage := New(repo)
	_, err := stage.Execute(ctx, state)

	require.NoError(t, err)
	require.Len(t, state.Channels, 1)
	assert.Equal(t, "Kept", state.Channels[0].ChannelName)
}

func TestExecute_AttachmentWithoutSourceRecordsError(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewChannelRepository(db)

	state := newTestState(t, &models.ProxySource{SourceID: models.NewULID(), PriorityOrder: 1})

	stage := New(repo)
	_, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.True(t, state.HasErrors())
	assert.Empty(t, state.Channels)
}

func TestStage_Interface(t *testing.T) {
	stage := New(nil)

	assert.Equal(t, StageID, stage.ID())
	assert.Equal(t, StageName, stage.Name())
}

func TestNewConstructor(t *testing.T) {
	stage := NewConstructor()(&core.Dependencies{})

	require.NotNil(t, stage)
	assert.Equal(t, StageID, stage.ID())
}
