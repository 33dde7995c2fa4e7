package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/chanarr/chanarr/internal/models"
	"gorm.io/gorm"
)

type dataMappingRuleRepository struct {
	db *gorm.DB
}

var _ DataMappingRuleRepository = (*dataMappingRuleRepository)(nil)

// NewDataMappingRuleRepository returns a GORM-backed DataMappingRuleRepository.
func NewDataMappingRuleRepository(db *gorm.DB) DataMappingRuleRepository {
	return &dataMappingRuleRepository{db: db}
}

// ruleOrder is the canonical ordering for rule listings.
const ruleOrder = "sort_order ASC, created_at ASC"

// Create inserts a validated rule. A zero sort order is assigned the
// next free position so new rules land at the end of the chain.
func (r *dataMappingRuleRepository) Create(ctx context.Context, rule *models.DataMappingRule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("validating rule: %w", err)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rule.SortOrder <= 0 {
			var maxOrder int
			err := tx.Model(&models.DataMappingRule{}).
				Select("COALESCE(MAX(sort_order), 0)").
				Scan(&maxOrder).Error
			if err != nil {
				return fmt.Errorf("finding max sort order: %w", err)
			}
			rule.SortOrder = maxOrder + 1
		}
		return tx.Create(rule).Error
	})
}

// first runs the query and returns (nil, nil) when no row matches.
func (r *dataMappingRuleRepository) first(ctx context.Context, query string, arg any) (*models.DataMappingRule, error) {
	var rule models.DataMappingRule
	err := r.db.WithContext(ctx).First(&rule, query, arg).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &rule, nil
}

func (r *dataMappingRuleRepository) GetByID(ctx context.Context, id models.ULID) (*models.DataMappingRule, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *dataMappingRuleRepository) GetByName(ctx context.Context, name string) (*models.DataMappingRule, error) {
	return r.first(ctx, "name = ?", name)
}

func (r *dataMappingRuleRepository) GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.DataMappingRule, error) {
	if len(ids) == 0 {
		return []*models.DataMappingRule{}, nil
	}
	return r.list(ctx, r.db.WithContext(ctx).Where("id IN ?", ids))
}

func (r *dataMappingRuleRepository) GetAll(ctx context.Context) ([]*models.DataMappingRule, error) {
	return r.list(ctx, r.db.WithContext(ctx))
}

func (r *dataMappingRuleRepository) GetActive(ctx context.Context) ([]*models.DataMappingRule, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("is_active = ?", true))
}

func (r *dataMappingRuleRepository) GetActiveForSourceType(ctx context.Context, sourceType models.DataMappingRuleSourceType) ([]*models.DataMappingRule, error) {
	return r.list(ctx, r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("source_type = ?", sourceType))
}

func (r *dataMappingRuleRepository) list(ctx context.Context, tx *gorm.DB) ([]*models.DataMappingRule, error) {
	var rules []*models.DataMappingRule
	if err := tx.Order(ruleOrder).Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *dataMappingRuleRepository) Update(ctx context.Context, rule *models.DataMappingRule) error {
	err := rule.Validate()
	if err != nil {
		return fmt.Errorf("validating rule: %w", err)
	}
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *dataMappingRuleRepository) Delete(ctx context.Context, id models.ULID) error {
	return r.db.WithContext(ctx).Delete(&models.DataMappingRule{}, "id = ?", id).Error
}

func (r *dataMappingRuleRepository) Count(ctx context.Context) (count int64, err error) {
	err = r.db.WithContext(ctx).Model(&models.DataMappingRule{}).Count(&count).Error
	return count, err
}

// Reorder rewrites rule sort orders as a dense 1-based sequence. The
// requested positions only define relative order; gaps and duplicates
// are collapsed before writing.
func (r *dataMappingRuleRepository) Reorder(ctx context.Context, reorders []ReorderRequest) error {
	if len(reorders) == 0 {
		return nil
	}
	normalized := normalizeReorders(reorders)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, req := range normalized {
			result := tx.Model(&models.DataMappingRule{}).
				Where("id = ?", req.ID).
				Update("sort_order", req.Priority)
			switch {
			case result.Error != nil:
				return fmt.Errorf("updating sort order for rule %s: %w", req.ID, result.Error)
			case result.RowsAffected == 0:
				return fmt.Errorf("rule %s not found", req.ID)
			}
		}
		return nil
	})
}
