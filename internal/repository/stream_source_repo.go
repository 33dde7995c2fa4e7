package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/chanarr/chanarr/internal/models"
	"gorm.io/gorm"
)

type streamSourceRepo struct {
	db *gorm.DB
}

var _ StreamSourceRepository = (*streamSourceRepo)(nil)

// NewStreamSourceRepository returns a GORM-backed StreamSourceRepository.
func NewStreamSourceRepository(db *gorm.DB) *streamSourceRepo {
	return &streamSourceRepo{db: db}
}

func (r *streamSourceRepo) Create(ctx context.Context, source *models.StreamSource) error {
	err := r.db.WithContext(ctx).Create(source).Error
	if err != nil {
		return fmt.Errorf("creating stream source: %w", err)
	}
	return nil
}

// first runs the query and returns (nil, nil) when no row matches.
func (r *streamSourceRepo) first(ctx context.Context, what, query string, arg any) (*models.StreamSource, error) {
	var source models.StreamSource
	err := r.db.WithContext(ctx).Where(query, arg).First(&source).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("getting stream source by %s: %w", what, err)
	}
	return &source, nil
}

func (r *streamSourceRepo) GetByID(ctx context.Context, id models.ULID) (*models.StreamSource, error) {
	return r.first(ctx, "ID", "id = ?", id)
}

func (r *streamSourceRepo) GetByName(ctx context.Context, name string) (*models.StreamSource, error) {
	return r.first(ctx, "name", "name = ?", name)
}

func (r *streamSourceRepo) GetAll(ctx context.Context) ([]*models.StreamSource, error) {
	var sources []*models.StreamSource
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("getting all stream sources: %w", err)
	}
	return sources, nil
}

func (r *streamSourceRepo) GetEnabled(ctx context.Context) ([]*models.StreamSource, error) {
	var sources []*models.StreamSource
	err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("name ASC").Find(&sources).Error
	if err != nil {
		return nil, fmt.Errorf("getting enabled stream sources: %w", err)
	}
	return sources, nil
}

func (r *streamSourceRepo) Update(ctx context.Context, source *models.StreamSource) error {
	err := r.db.WithContext(ctx).Save(source).Error
	if err != nil {
		return fmt.Errorf("updating stream source: %w", err)
	}
	return nil
}

// Delete removes the row permanently. Unscoped keeps the unique name
// index free for a re-created source with the same name.
func (r *streamSourceRepo) Delete(ctx context.Context, id models.ULID) error {
	err := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&models.StreamSource{}).Error
	if err != nil {
		return fmt.Errorf("deleting stream source: %w", err)
	}
	return nil
}
