package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/chanarr/chanarr/internal/models"
	"gorm.io/gorm"
)

type epgSourceRepo struct {
	db *gorm.DB
}

var _ EpgSourceRepository = (*epgSourceRepo)(nil)

// NewEpgSourceRepository returns a GORM-backed EpgSourceRepository.
func NewEpgSourceRepository(db *gorm.DB) *epgSourceRepo {
	return &epgSourceRepo{db: db}
}

func (r *epgSourceRepo) Create(ctx context.Context, source *models.EpgSource) error {
	err := r.db.WithContext(ctx).Create(source).Error
	if err != nil {
		return fmt.Errorf("creating EPG source: %w", err)
	}
	return nil
}

// first runs the query and returns (nil, nil) when no row matches.
func (r *epgSourceRepo) first(ctx context.Context, what, query string, arg any) (*models.EpgSource, error) {
	var source models.EpgSource
	err := r.db.WithContext(ctx).Where(query, arg).First(&source).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("getting EPG source by %s: %w", what, err)
	}
	return &source, nil
}

func (r *epgSourceRepo) GetByID(ctx context.Context, id models.ULID) (*models.EpgSource, error) {
	return r.first(ctx, "ID", "id = ?", id)
}

func (r *epgSourceRepo) GetByName(ctx context.Context, name string) (*models.EpgSource, error) {
	return r.first(ctx, "name", "name = ?", name)
}

func (r *epgSourceRepo) GetAll(ctx context.Context) ([]*models.EpgSource, error) {
	var sources []*models.EpgSource
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("getting all EPG sources: %w", err)
	}
	return sources, nil
}

func (r *epgSourceRepo) GetEnabled(ctx context.Context) ([]*models.EpgSource, error) {
	var sources []*models.EpgSource
	err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("name ASC").Find(&sources).Error
	if err != nil {
		return nil, fmt.Errorf("getting enabled EPG sources: %w", err)
	}
	return sources, nil
}

func (r *epgSourceRepo) Update(ctx context.Context, source *models.EpgSource) error {
	err := r.db.WithContext(ctx).Save(source).Error
	if err != nil {
		return fmt.Errorf("updating EPG source: %w", err)
	}
	return nil
}

// Delete removes the row permanently. The name column carries a unique
// index, so a soft-deleted row would block re-creating a source with
// the same name.
func (r *epgSourceRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&models.EpgSource{}).Error; err != nil {
		return fmt.Errorf("deleting EPG source: %w", err)
	}
	return nil
}
