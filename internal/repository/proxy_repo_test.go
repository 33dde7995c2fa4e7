package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupProxyTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.StreamSource{},
		&models.EpgSource{},
		&models.Filter{},
		&models.DataMappingRule{},
		&models.Proxy{},
		&models.ProxySource{},
		&models.ProxyEpgSource{},
		&models.ProxyFilter{},
		&models.ProxyMappingRule{},
	)
	require.NoError(t, err)

	return db
}

func createTestProxy(t *testing.T, db *gorm.DB, name string) *models.Proxy {
	t.Helper()

	proxy := &models.Proxy{Name: name, IsActive: true}
	require.NoError(t, db.Create(proxy).Error)
	return proxy
}

func createProxyTestSources(t *testing.T, db *gorm.DB, count int) []models.ULID {
	t.Helper()

	ids := make([]models.ULID, 0, count)
	for i := 0; i < count; i++ {
		source := &models.StreamSource{
			Name: fmt.Sprintf("source-%d", i),
			Type: models.SourceTypeM3U,
			URL:  fmt.Sprintf("http://example.com/%d.m3u", i),
		}
		require.NoError(t, db.Create(source).Error)
		ids = append(ids, source.ID)
	}
	return ids
}

func TestProxyRepo_CreateAndGet(t *testing.T) {
	db := setupProxyTestDB(t)
	repo := NewProxyRepository(db)
	ctx := context.Background()

	proxy := &models.Proxy{Name: "Living Room", IsActive: true}
	require.NoError(t, repo.Create(ctx, proxy))
	assert.False(t, proxy.ID.IsZero())
	assert.Equal(t, models.ProxyStatusPending, proxy.Status)
	assert.Equal(t, 1, proxy.StartingChannelNumber)

	found, err := repo.GetByName(ctx, "Living Room")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, proxy.ID, found.ID)
}

func TestProxyRepo_SetSources_SliceOrderBecomesPriority(t *testing.T) {
	db := setupProxyTestDB(t)
	repo := NewProxyRepository(db)
	ctx := context.Background()

	proxy := createTestProxy(t, db, "ordered")
	sourceIDs := createProxyTestSources(t, db, 3)

	require.NoError(t, repo.SetSources(ctx, proxy.ID, []models.ULID{sourceIDs[2], sourceIDs[0], sourceIDs[1]}))

	attachments, err := repo.GetSources(ctx, proxy.ID)
	require.NoError(t, err)
	require.Len(t, attachments, 3)
	assert.Equal(t, sourceIDs[2], attachments[0].SourceID)
	assert.Equal(t, 1, attachments[0].PriorityOrder)
	assert.Equal(t, sourceIDs[0], attachments[1].SourceID)
	assert.Equal(t, 2, attachments[1].PriorityOrder)
	assert.Equal(t, sourceIDs[1], attachments[2].SourceID)
	assert.Equal(t, 3, attachments[2].PriorityOrder)
	require.NotNil(t, attachments[0].Source)
	assert.Equal(t, "source-2", attachments[0].Source.Name)
}

func TestProxyRepo_SetSources_ReplacesExisting(t *testing.T) {
	db := setupProxyTestDB(t)
	repo := NewProxyRepository(db)
	ctx := context.Background()

	proxy := createTestProxy(t, db, "replaced")
	sourceIDs := createProxyTestSources(t, db, 3)

	require.NoError(t, repo.SetSources(ctx, proxy.ID, sourceIDs))
	require.NoError(t, repo.SetSources(ctx, proxy.ID, []models.ULID{sourceIDs[1]}))

	attachments, err := repo.GetSources(ctx, proxy.ID)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, sourceIDs[1], attachments[0].SourceID)
	assert.Equal(t, 1, attachments[0].PriorityOrder)
}

func TestProxyRepo_SetFilters_IsActiveToggle(t *testing.T) {
	db := setupProxyTestDB(t)
	repo := NewProxyRepository(db)
	ctx := context.Background()

	proxy := createTestProxy(t, db, "filtered")

	keep := &models.Filter{Name: "keep", SourceType: models.FilterSourceTypeStream}
	drop := &models.Filter{Name: "drop", SourceType: models.FilterSourceTypeStream, IsInverse: true}
	require.NoError(t, db.Create(keep).Error)
	require.NoError(t, db.Create(drop).Error)

	require.NoError(t, repo.SetFilters(ctx, proxy.ID, []models.ULID{keep.ID, drop.ID}, map[models.ULID]bool{
		drop.ID: false,
	}))

	attachments, err := repo.GetFilters(ctx, proxy.ID)
	require.NoError(t, err)
	require.Len(t, attachments, 2)

	// Absent from the map defaults to active.
	assert.Equal(t, keep.ID, attachments[0].FilterID)
	assert.True(t, models.BoolVal(attachments[0].IsActive))
	assert.Equal(t, drop.ID, attachments[1].FilterID)
	assert.False(t, models.BoolVal(attachments[1].IsActive))
	require.NotNil(t, attachments[1].Filter)
	assert.True(t, attachments[1].Filter.IsInverse)
}

func TestProxyRepo_SetMappingRules_PreloadsRule(t *testing.T) {
	db := setupProxyTestDB(t)
	repo := NewProxyRepository(db)
	ctx := context.Background()

	proxy := createTestProxy(t, db, "mapped")

	rule := &models.DataMappingRule{
		Name:       "normalise groups",
		SourceType: models.DataMappingRuleSourceTypeStream,
		Expression: `group_title contains "news" SET group_title = "News"`,
		SortOrder:  1,
	}
	require.NoError(t, db.Create(rule).Error)

	require.NoError(t, repo.SetMappingRules(ctx, proxy.ID, []models.ULID{rule.ID}))

	attachments, err := repo.GetMappingRules(ctx, proxy.ID)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, 1, attachments[0].PriorityOrder)
	require.NotNil(t, attachments[0].Rule)
	assert.Equal(t, "normalise groups", attachments[0].Rule.Name)
}

func TestProxyRepo_ReorderSources_Densifies(t *testing.T) {
	db := setupProxyTestDB(t)
	repo := NewProxyRepository(db)
	ctx := context.Background()

	proxy := createTestProxy(t, db, "reordered")
	sourceIDs := createProxyTestSources(t, db, 3)
	require.NoError(t, repo.SetSources(ctx, proxy.ID, sourceIDs))

	require.NoError(t, repo.ReorderSources(ctx, proxy.ID, []ReorderRequest{
		{ID: sourceIDs[0], Priority: 30},
		{ID: sourceIDs[1], Priority: 10},
		{ID: sourceIDs[2], Priority: 20},
	}))

	attachments, err := repo.GetSources(ctx, proxy.ID)
	require.NoError(t, err)
	require.Len(t, attachments, 3)
	assert.Equal(t, sourceIDs[1], attachments[0].SourceID)
	assert.Equal(t, 1, attachments[0].PriorityOrder)
	assert.Equal(t, sourceIDs[2], attachments[1].SourceID)
	assert.Equal(t, 2, attachments[1].PriorityOrder)
	assert.Equal(t, sourceIDs[0], attachments[2].SourceID)
	assert.Equal(t, 3, attachments[2].PriorityOrder)
}

func TestProxyRepo_ReorderSources_UnknownAttachment(t *testing.T) {
	db := setupProxyTestDB(t)
	repo := NewProxyRepository(db)
	ctx := context.Background()

	proxy := createTestProxy(t, db, "bad-reorder")

	err := repo.ReorderSources(ctx, proxy.ID, []ReorderRequest{
		{ID: models.NewULID(), Priority: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestProxyRepo_GetByIDWithRelations(t *testing.T) {
	db := setupProxyTestDB(t)
	repo := NewProxyRepository(db)
	ctx := context.Background()

	proxy := createTestProxy(t, db, "full")
	sourceIDs := createProxyTestSources(t, db, 2)
	require.NoError(t, repo.SetSources(ctx, proxy.ID, []models.ULID{sourceIDs[1], sourceIDs[0]}))

	found, err := repo.GetByIDWithRelations(ctx, proxy.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, found.Sources, 2)
	assert.Equal(t, sourceIDs[1], found.Sources[0].SourceID)
	require.NotNil(t, found.Sources[0].Source)
}

func TestProxyRepo_Delete_RemovesAttachments(t *testing.T) {
	db := setupProxyTestDB(t)
	repo := NewProxyRepository(db)
	ctx := context.Background()

	proxy := createTestProxy(t, db, "doomed")
	sourceIDs := createProxyTestSources(t, db, 1)
	require.NoError(t, repo.SetSources(ctx, proxy.ID, sourceIDs))

	require.NoError(t, repo.Delete(ctx, proxy.ID))

	found, err := repo.GetByID(ctx, proxy.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	var count int64
	require.NoError(t, db.Model(&models.ProxySource{}).Where("proxy_id = ?", proxy.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestProxyRepo_UpdateStatusAndLastGeneration(t *testing.T) {
	db := setupProxyTestDB(t)
	repo := NewProxyRepository(db)
	ctx := context.Background()

	proxy := createTestProxy(t, db, "status")

	require.NoError(t, repo.UpdateStatus(ctx, proxy.ID, models.ProxyStatusGenerating, ""))

	found, err := repo.GetByID(ctx, proxy.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.ProxyStatusGenerating, found.Status)

	require.NoError(t, repo.UpdateLastGeneration(ctx, proxy.ID, 120, 4800))

	found, err = repo.GetByID(ctx, proxy.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.ProxyStatusSuccess, found.Status)
	assert.Equal(t, 120, found.ChannelCount)
	assert.Equal(t, 4800, found.ProgramCount)
	assert.NotNil(t, found.LastGeneratedAt)
}

func TestProxyRepo_GetBySourceID_ActiveOnly(t *testing.T) {
	db := setupProxyTestDB(t)
	repo := NewProxyRepository(db)
	ctx := context.Background()

	sourceIDs := createProxyTestSources(t, db, 1)

	active := createTestProxy(t, db, "active")
	inactive := createTestProxy(t, db, "inactive")
	// is_active carries a DB default of true, so an explicit column update
	// is needed to flip it off.
	require.NoError(t, db.Model(inactive).UpdateColumn("is_active", false).Error)

	require.NoError(t, repo.SetSources(ctx, active.ID, sourceIDs))
	require.NoError(t, repo.SetSources(ctx, inactive.ID, sourceIDs))

	proxies, err := repo.GetBySourceID(ctx, sourceIDs[0])
	require.NoError(t, err)
	require.Len(t, proxies, 1)
	assert.Equal(t, "active", proxies[0].Name)
}

func TestProxyRepo_CountByFilterID(t *testing.T) {
	db := setupProxyTestDB(t)
	repo := NewProxyRepository(db)
	ctx := context.Background()

	filter := &models.Filter{Name: "shared", SourceType: models.FilterSourceTypeStream}
	require.NoError(t, db.Create(filter).Error)

	for i := 0; i < 2; i++ {
		proxy := createTestProxy(t, db, fmt.Sprintf("user-%d", i))
		require.NoError(t, repo.SetFilters(ctx, proxy.ID, []models.ULID{filter.ID}, nil))
	}

	count, err := repo.CountByFilterID(ctx, filter.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
