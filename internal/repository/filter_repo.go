package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/chanarr/chanarr/internal/models"
	"gorm.io/gorm"
)

type filterRepository struct {
	db *gorm.DB
}

var _ FilterRepository = (*filterRepository)(nil)

// NewFilterRepository returns a GORM-backed FilterRepository.
func NewFilterRepository(db *gorm.DB) FilterRepository {
	return &filterRepository{db: db}
}

func (r *filterRepository) Create(ctx context.Context, filter *models.Filter) error {
	err := filter.Validate()
	if err != nil {
		return fmt.Errorf("validating filter: %w", err)
	}
	return r.db.WithContext(ctx).Create(filter).Error
}

// first runs the query and returns (nil, nil) when no row matches.
func (r *filterRepository) first(ctx context.Context, query string, arg any) (*models.Filter, error) {
	var filter models.Filter
	err := r.db.WithContext(ctx).First(&filter, query, arg).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &filter, nil
}

func (r *filterRepository) GetByID(ctx context.Context, id models.ULID) (*models.Filter, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *filterRepository) GetByName(ctx context.Context, name string) (*models.Filter, error) {
	return r.first(ctx, "name = ?", name)
}

// GetByIDs returns the filters matching ids. Missing IDs are skipped,
// not errors.
func (r *filterRepository) GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.Filter, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var filters []*models.Filter
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&filters).Error; err != nil {
		return nil, err
	}
	return filters, nil
}

func (r *filterRepository) GetAll(ctx context.Context) ([]*models.Filter, error) {
	var filters []*models.Filter
	if err := r.db.WithContext(ctx).Order("name ASC, created_at ASC").Find(&filters).Error; err != nil {
		return nil, err
	}
	return filters, nil
}

func (r *filterRepository) GetBySourceType(ctx context.Context, sourceType models.FilterSourceType) ([]*models.Filter, error) {
	var filters []*models.Filter
	err := r.db.WithContext(ctx).
		Where("source_type = ?", sourceType).
		Order("name ASC, created_at ASC").
		Find(&filters).Error
	if err != nil {
		return nil, err
	}
	return filters, nil
}

func (r *filterRepository) Update(ctx context.Context, filter *models.Filter) error {
	err := filter.Validate()
	if err != nil {
		return fmt.Errorf("validating filter: %w", err)
	}
	return r.db.WithContext(ctx).Save(filter).Error
}

func (r *filterRepository) Delete(ctx context.Context, id models.ULID) error {
	return r.db.WithContext(ctx).Delete(&models.Filter{}, "id = ?", id).Error
}

func (r *filterRepository) Count(ctx context.Context) (count int64, err error) {
	err = r.db.WithContext(ctx).Model(&models.Filter{}).Count(&count).Error
	return count, err
}
