package repository

import (
	"context"
	"fmt"

	"github.com/chanarr/chanarr/internal/models"
	"gorm.io/gorm"
)

// proxyRepo implements ProxyRepository using GORM.
type proxyRepo struct {
	db *gorm.DB
}

// NewProxyRepository creates a new ProxyRepository.
func NewProxyRepository(db *gorm.DB) *proxyRepo {
	return &proxyRepo{db: db}
}

// Create creates a new proxy.
func (r *proxyRepo) Create(ctx context.Context, proxy *models.Proxy) error {
	if err := r.db.WithContext(ctx).Create(proxy).Error; err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	return nil
}

// GetByID retrieves a proxy by ID.
func (r *proxyRepo) GetByID(ctx context.Context, id models.ULID) (*models.Proxy, error) {
	var proxy models.Proxy
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&proxy).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting proxy by ID: %w", err)
	}
	return &proxy, nil
}

// GetByIDWithRelations retrieves a proxy with its sources, EPG sources,
// filters and mapping rules preloaded, each ordered by priority.
func (r *proxyRepo) GetByIDWithRelations(ctx context.Context, id models.ULID) (*models.Proxy, error) {
	var proxy models.Proxy
	if err := r.db.WithContext(ctx).
		Preload("Sources", func(db *gorm.DB) *gorm.DB {
			return db.Order("proxy_sources.priority_order ASC")
		}).
		Preload("Sources.Source").
		Preload("EpgSources", func(db *gorm.DB) *gorm.DB {
			return db.Order("proxy_epg_sources.priority_order ASC")
		}).
		Preload("EpgSources.EpgSource").
		Preload("Filters", func(db *gorm.DB) *gorm.DB {
			return db.Order("proxy_filters.priority_order ASC")
		}).
		Preload("Filters.Filter").
		Preload("MappingRules", func(db *gorm.DB) *gorm.DB {
			return db.Order("proxy_mapping_rules.priority_order ASC")
		}).
		Preload("MappingRules.Rule").
		Where("id = ?", id).
		First(&proxy).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting proxy with relations: %w", err)
	}
	return &proxy, nil
}

// GetAll retrieves all proxies.
func (r *proxyRepo) GetAll(ctx context.Context) ([]*models.Proxy, error) {
	var proxies []*models.Proxy
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&proxies).Error; err != nil {
		return nil, fmt.Errorf("getting all proxies: %w", err)
	}
	return proxies, nil
}

// GetActive retrieves all active proxies.
func (r *proxyRepo) GetActive(ctx context.Context) ([]*models.Proxy, error) {
	var proxies []*models.Proxy
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("name ASC").Find(&proxies).Error; err != nil {
		return nil, fmt.Errorf("getting active proxies: %w", err)
	}
	return proxies, nil
}

// GetByName retrieves a proxy by name.
func (r *proxyRepo) GetByName(ctx context.Context, name string) (*models.Proxy, error) {
	var proxy models.Proxy
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&proxy).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting proxy by name: %w", err)
	}
	return &proxy, nil
}

// Update updates an existing proxy.
func (r *proxyRepo) Update(ctx context.Context, proxy *models.Proxy) error {
	if err := r.db.WithContext(ctx).Save(proxy).Error; err != nil {
		return fmt.Errorf("updating proxy: %w", err)
	}
	return nil
}

// Delete deletes a proxy and its attachment rows.
func (r *proxyRepo) Delete(ctx context.Context, id models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("proxy_id = ?", id).Delete(&models.ProxySource{}).Error; err != nil {
			return fmt.Errorf("deleting proxy sources: %w", err)
		}
		if err := tx.Unscoped().Where("proxy_id = ?", id).Delete(&models.ProxyEpgSource{}).Error; err != nil {
			return fmt.Errorf("deleting proxy EPG sources: %w", err)
		}
		if err := tx.Unscoped().Where("proxy_id = ?", id).Delete(&models.ProxyFilter{}).Error; err != nil {
			return fmt.Errorf("deleting proxy filters: %w", err)
		}
		if err := tx.Unscoped().Where("proxy_id = ?", id).Delete(&models.ProxyMappingRule{}).Error; err != nil {
			return fmt.Errorf("deleting proxy mapping rules: %w", err)
		}
		if err := tx.Unscoped().Where("id = ?", id).Delete(&models.Proxy{}).Error; err != nil {
			return fmt.Errorf("deleting proxy: %w", err)
		}
		return nil
	})
}

// UpdateStatus updates the generation status.
func (r *proxyRepo) UpdateStatus(ctx context.Context, id models.ULID, status models.ProxyStatus, lastError string) error {
	// UpdateColumns skips hooks; updated_at must be set explicitly.
	if err := r.db.WithContext(ctx).Model(&models.Proxy{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"status":     status,
		"last_error": lastError,
		"updated_at": models.Now(),
	}).Error; err != nil {
		return fmt.Errorf("updating proxy status: %w", err)
	}
	return nil
}

// UpdateLastGeneration updates the last generation timestamp and counts.
func (r *proxyRepo) UpdateLastGeneration(ctx context.Context, id models.ULID, channelCount, programCount int) error {
	now := models.Now()
	if err := r.db.WithContext(ctx).Model(&models.Proxy{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"status":            models.ProxyStatusSuccess,
		"last_generated_at": now,
		"channel_count":     channelCount,
		"program_count":     programCount,
		"last_error":        "",
		"updated_at":        now,
	}).Error; err != nil {
		return fmt.Errorf("updating last generation: %w", err)
	}
	return nil
}

// SetSources replaces the proxy's stream sources. The slice order becomes
// the dense 1-based priority order.
func (r *proxyRepo) SetSources(ctx context.Context, proxyID models.ULID, sourceIDs []models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("proxy_id = ?", proxyID).Delete(&models.ProxySource{}).Error; err != nil {
			return fmt.Errorf("clearing existing sources: %w", err)
		}
		for i, sourceID := range sourceIDs {
			ps := &models.ProxySource{
				ProxyID:       proxyID,
				SourceID:      sourceID,
				PriorityOrder: i + 1,
			}
			if err := tx.Create(ps).Error; err != nil {
				return fmt.Errorf("adding source %s: %w", sourceID, err)
			}
		}
		return nil
	})
}

// GetSources retrieves the proxy's stream source attachments in priority
// order with the Source relation preloaded.
func (r *proxyRepo) GetSources(ctx context.Context, proxyID models.ULID) ([]*models.ProxySource, error) {
	var attachments []*models.ProxySource
	if err := r.db.WithContext(ctx).
		Preload("Source").
		Where("proxy_id = ?", proxyID).
		Order("priority_order ASC").
		Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("getting proxy sources: %w", err)
	}
	return attachments, nil
}

// SetEpgSources replaces the proxy's EPG sources, slice order becoming the
// dense 1-based priority order.
func (r *proxyRepo) SetEpgSources(ctx context.Context, proxyID models.ULID, sourceIDs []models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("proxy_id = ?", proxyID).Delete(&models.ProxyEpgSource{}).Error; err != nil {
			return fmt.Errorf("clearing existing EPG sources: %w", err)
		}
		for i, sourceID := range sourceIDs {
			pes := &models.ProxyEpgSource{
				ProxyID:       proxyID,
				EpgSourceID:   sourceID,
				PriorityOrder: i + 1,
			}
			if err := tx.Create(pes).Error; err != nil {
				return fmt.Errorf("adding EPG source %s: %w", sourceID, err)
			}
		}
		return nil
	})
}

// GetEpgSources retrieves the proxy's EPG source attachments in priority
// order with the EpgSource relation preloaded.
func (r *proxyRepo) GetEpgSources(ctx context.Context, proxyID models.ULID) ([]*models.ProxyEpgSource, error) {
	var attachments []*models.ProxyEpgSource
	if err := r.db.WithContext(ctx).
		Preload("EpgSource").
		Where("proxy_id = ?", proxyID).
		Order("priority_order ASC").
		Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("getting proxy EPG sources: %w", err)
	}
	return attachments, nil
}

// SetFilters replaces the proxy's filters. Slice order becomes the dense
// 1-based priority order; isActive toggles each attachment and defaults
// to active when a filter is absent from the map.
func (r *proxyRepo) SetFilters(ctx context.Context, proxyID models.ULID, filterIDs []models.ULID, isActive map[models.ULID]bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("proxy_id = ?", proxyID).Delete(&models.ProxyFilter{}).Error; err != nil {
			return fmt.Errorf("clearing existing filters: %w", err)
		}
		for i, filterID := range filterIDs {
			active := true
			if isActive != nil {
				if a, ok := isActive[filterID]; ok {
					active = a
				}
			}
			pf := &models.ProxyFilter{
				ProxyID:       proxyID,
				FilterID:      filterID,
				PriorityOrder: i + 1,
				IsActive:      &active,
			}
			if err := tx.Create(pf).Error; err != nil {
				return fmt.Errorf("adding filter %s: %w", filterID, err)
			}
		}
		return nil
	})
}

// GetFilters retrieves the proxy's filter attachments in priority order
// with the Filter relation preloaded.
func (r *proxyRepo) GetFilters(ctx context.Context, proxyID models.ULID) ([]*models.ProxyFilter, error) {
	var attachments []*models.ProxyFilter
	if err := r.db.WithContext(ctx).
		Preload("Filter").
		Where("proxy_id = ?", proxyID).
		Order("priority_order ASC").
		Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("getting proxy filters: %w", err)
	}
	return attachments, nil
}

// SetMappingRules replaces the proxy's mapping rules, slice order becoming
// the dense 1-based priority order.
func (r *proxyRepo) SetMappingRules(ctx context.Context, proxyID models.ULID, ruleIDs []models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("proxy_id = ?", proxyID).Delete(&models.ProxyMappingRule{}).Error; err != nil {
			return fmt.Errorf("clearing existing mapping rules: %w", err)
		}
		for i, ruleID := range ruleIDs {
			pmr := &models.ProxyMappingRule{
				ProxyID:       proxyID,
				RuleID:        ruleID,
				PriorityOrder: i + 1,
			}
			if err := tx.Create(pmr).Error; err != nil {
				return fmt.Errorf("adding mapping rule %s: %w", ruleID, err)
			}
		}
		return nil
	})
}

// GetMappingRules retrieves the proxy's rule attachments in priority order
// with the Rule relation preloaded.
func (r *proxyRepo) GetMappingRules(ctx context.Context, proxyID models.ULID) ([]*models.ProxyMappingRule, error) {
	var attachments []*models.ProxyMappingRule
	if err := r.db.WithContext(ctx).
		Preload("Rule").
		Where("proxy_id = ?", proxyID).
		Order("priority_order ASC").
		Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("getting proxy mapping rules: %w", err)
	}
	return attachments, nil
}

// ReorderSources rewrites stream source priorities densely. Request IDs
// are stream source IDs, not join row IDs.
func (r *proxyRepo) ReorderSources(ctx context.Context, proxyID models.ULID, reorders []ReorderRequest) error {
	return r.reorderAttachments(ctx, proxyID, reorders, &models.ProxySource{}, "source_id")
}

// ReorderEpgSources rewrites EPG source priorities densely.
func (r *proxyRepo) ReorderEpgSources(ctx context.Context, proxyID models.ULID, reorders []ReorderRequest) error {
	return r.reorderAttachments(ctx, proxyID, reorders, &models.ProxyEpgSource{}, "epg_source_id")
}

// ReorderFilters rewrites filter priorities densely.
func (r *proxyRepo) ReorderFilters(ctx context.Context, proxyID models.ULID, reorders []ReorderRequest) error {
	return r.reorderAttachments(ctx, proxyID, reorders, &models.ProxyFilter{}, "filter_id")
}

// ReorderMappingRules rewrites mapping rule priorities densely.
func (r *proxyRepo) ReorderMappingRules(ctx context.Context, proxyID models.ULID, reorders []ReorderRequest) error {
	return r.reorderAttachments(ctx, proxyID, reorders, &models.ProxyMappingRule{}, "rule_id")
}

// reorderAttachments normalizes the requested positions into a dense
// 1-based sequence and rewrites the join table in one transaction.
func (r *proxyRepo) reorderAttachments(ctx context.Context, proxyID models.ULID, reorders []ReorderRequest, model interface{}, idColumn string) error {
	if len(reorders) == 0 {
		return nil
	}
	normalized := normalizeReorders(reorders)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, req := range normalized {
			result := tx.Model(model).
				Where("proxy_id = ? AND "+idColumn+" = ?", proxyID, req.ID).
				Update("priority_order", req.Priority)
			if result.Error != nil {
				return fmt.Errorf("updating priority for %s: %w", req.ID, result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("attachment %s not found on proxy %s", req.ID, proxyID)
			}
		}
		return nil
	})
}

// GetBySourceID retrieves all active proxies that use a stream source.
// Used for auto-regeneration when a source finishes ingesting.
func (r *proxyRepo) GetBySourceID(ctx context.Context, sourceID models.ULID) ([]*models.Proxy, error) {
	var proxies []*models.Proxy
	if err := r.db.WithContext(ctx).
		Joins("JOIN proxy_sources ON proxy_sources.proxy_id = proxies.id AND proxy_sources.deleted_at IS NULL").
		Where("proxy_sources.source_id = ?", sourceID).
		Where("proxies.is_active = ?", true).
		Order("proxies.name ASC").
		Find(&proxies).Error; err != nil {
		return nil, fmt.Errorf("getting proxies by source ID: %w", err)
	}
	return proxies, nil
}

// GetByEpgSourceID retrieves all active proxies that use an EPG source.
func (r *proxyRepo) GetByEpgSourceID(ctx context.Context, epgSourceID models.ULID) ([]*models.Proxy, error) {
	var proxies []*models.Proxy
	if err := r.db.WithContext(ctx).
		Joins("JOIN proxy_epg_sources ON proxy_epg_sources.proxy_id = proxies.id AND proxy_epg_sources.deleted_at IS NULL").
		Where("proxy_epg_sources.epg_source_id = ?", epgSourceID).
		Where("proxies.is_active = ?", true).
		Order("proxies.name ASC").
		Find(&proxies).Error; err != nil {
		return nil, fmt.Errorf("getting proxies by EPG source ID: %w", err)
	}
	return proxies, nil
}

// CountByFilterID returns the count of proxies using a filter.
func (r *proxyRepo) CountByFilterID(ctx context.Context, filterID models.ULID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ProxyFilter{}).
		Where("filter_id = ?", filterID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting proxies by filter ID: %w", err)
	}
	return count, nil
}

// CountByRuleID returns the count of proxies using a mapping rule.
func (r *proxyRepo) CountByRuleID(ctx context.Context, ruleID models.ULID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ProxyMappingRule{}).
		Where("rule_id = ?", ruleID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting proxies by rule ID: %w", err)
	}
	return count, nil
}

// Ensure proxyRepo implements ProxyRepository at compile time.
var _ ProxyRepository = (*proxyRepo)(nil)
