package repository

import (
	"context"
	"testing"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newFilterRepo(t *testing.T) FilterRepository {
	t.Helper()
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	db, err := gorm.Open(sqlite.Open(":memory:"), cfg)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Filter{}))
	return NewFilterRepository(db)
}

func TestFilterRepo_CreateAndGet(t *testing.T) {
	repo := newFilterRepo(t)
	ctx := context.Background()

	filter := &models.Filter{
		Name:       "Keep Sports",
		SourceType: models.FilterSourceTypeStream,
		Expression: `group_title equals "Sports"`,
	}
	require.NoError(t, repo.Create(ctx, filter))
	assert.False(t, filter.ID.IsZero())

	found, err := repo.GetByID(ctx, filter.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Keep Sports", found.Name)
	assert.Equal(t, models.FilterSourceTypeStream, found.SourceType)
	assert.False(t, found.IsInverse)
}

func TestFilterRepo_Create_Validation(t *testing.T) {
	repo := newFilterRepo(t)
	ctx := context.Background()

	err := repo.Create(ctx, &models.Filter{
		SourceType: models.FilterSourceTypeStream,
	})
	require.Error(t, err)

	err = repo.Create(ctx, &models.Filter{
		Name:       "No Source Type",
		SourceType: "playlist",
	})
	require.Error(t, err)
}

func TestFilterRepo_GetByIDs(t *testing.T) {
	repo := newFilterRepo(t)
	ctx := context.Background()

	a := &models.Filter{Name: "A", SourceType: models.FilterSourceTypeStream}
	b := &models.Filter{Name: "B", SourceType: models.FilterSourceTypeStream}
	c := &models.Filter{Name: "C", SourceType: models.FilterSourceTypeEPG}
	for _, f := range []*models.Filter{a, b, c} {
		require.NoError(t, repo.Create(ctx, f))
	}

	found, err := repo.GetByIDs(ctx, []models.ULID{a.ID, c.ID})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = repo.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFilterRepo_GetBySourceType(t *testing.T) {
	repo := newFilterRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Filter{Name: "Stream", SourceType: models.FilterSourceTypeStream}))
	require.NoError(t, repo.Create(ctx, &models.Filter{Name: "EPG", SourceType: models.FilterSourceTypeEPG}))

	filters, err := repo.GetBySourceType(ctx, models.FilterSourceTypeEPG)
	require.NoError(t, err)
	require.Len(t, filters, 1)
	assert.Equal(t, "EPG", filters[0].Name)
}

func TestFilterRepo_UpdateAndDelete(t *testing.T) {
	repo := newFilterRepo(t)
	ctx := context.Background()

	filter := &models.Filter{
		Name:       "Inverse",
		SourceType: models.FilterSourceTypeStream,
		Expression: `group_title contains "Shopping"`,
	}
	require.NoError(t, repo.Create(ctx, filter))

	filter.IsInverse = true
	require.NoError(t, repo.Update(ctx, filter))

	found, err := repo.GetByID(ctx, filter.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.IsInverse)

	require.NoError(t, repo.Delete(ctx, filter.ID))

	found, err = repo.GetByID(ctx, filter.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
