// Package repository holds the data access interfaces for chanarr
// entities. Every database touch goes through one of these interfaces,
// which keeps handlers testable and the backend swappable.
package repository

import (
	"context"
	"time"

	"github.com/chanarr/chanarr/internal/models"
)

// FieldValueResult is one distinct field value and how often it occurs.
type FieldValueResult struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// ReorderRequest assigns a new priority position to an entity. Repositories
// normalize the requested positions into a dense 1-based sequence before
// writing, so callers may pass any ordering-preserving integers.
type ReorderRequest struct {
	ID       models.ULID `json:"id"`
	Priority int         `json:"priority"`
}

// StreamSourceRepository defines operations for stream source persistence.
type StreamSourceRepository interface {
	// Create inserts a stream source.
	Create(ctx context.Context, source *models.StreamSource) error
	// GetByID returns the stream source with the given ID.
	GetByID(ctx context.Context, id models.ULID) (*models.StreamSource, error)
	// GetAll lists every stream sources.
	GetAll(ctx context.Context) ([]*models.StreamSource, error)
	// GetEnabled lists the enabled stream sources.
	GetEnabled(ctx context.Context) ([]*models.StreamSource, error)
	// GetByName looks a stream source up by its unique name.
	GetByName(ctx context.Context, name string) (*models.StreamSource, error)
	// Update saves changes to a stream source.
	Update(ctx context.Context, source *models.StreamSource) error
	// Delete removes the stream source with the given ID.
	Delete(ctx context.Context, id models.ULID) error
}

// ChannelRepository defines operations for channel persistence.
type ChannelRepository interface {
	// Create inserts a channel.
	Create(ctx context.Context, channel *models.Channel) error
	// UpsertBatch creates or updates multiple channels, handling duplicates
	// via ON CONFLICT on (source_id, ext_id).
	UpsertBatch(ctx context.Context, channels []*models.Channel) error
	// GetByID returns the channel with the given ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Channel, error)
	// GetBySourceID retrieves all channels for a source ordered by insertion.
	GetBySourceID(ctx context.Context, sourceID models.ULID) ([]*models.Channel, error)
	// GetBySourceIDPaginated retrieves channels for a source with pagination.
	GetBySourceIDPaginated(ctx context.Context, sourceID models.ULID, offset, limit int) ([]*models.Channel, int64, error)
	// Update saves changes to a channel.
	Update(ctx context.Context, channel *models.Channel) error
	// Delete removes the channel with the given ID.
	Delete(ctx context.Context, id models.ULID) error
	// DeleteBySourceID removes every channels of a source.
	DeleteBySourceID(ctx context.Context, sourceID models.ULID) error
	// DeleteStaleBySourceID deletes channels for a source not updated since
	// the given time. Used for mark-and-sweep cleanup after upsert.
	DeleteStaleBySourceID(ctx context.Context, sourceID models.ULID, olderThan time.Time) (int64, error)
	// CountBySourceID counts a source\'s channels.
	CountBySourceID(ctx context.Context, sourceID models.ULID) (int64, error)
	// GetDistinctFieldValues returns distinct values for a channel field with
	// occurrence counts, filtered by a case-insensitive contains query.
	GetDistinctFieldValues(ctx context.Context, field string, query string, limit int) ([]FieldValueResult, error)
	// Transaction executes fn inside a database transaction; fn receives a
	// transactional repository and an error rolls the transaction back.
	Transaction(ctx context.Context, fn func(ChannelRepository) error) error
}

// EpgSourceRepository defines operations for EPG source persistence.
type EpgSourceRepository interface {
	// Create inserts a EPG source.
	Create(ctx context.Context, source *models.EpgSource) error
	// GetByID returns the EPG source with the given ID.
	GetByID(ctx context.Context, id models.ULID) (*models.EpgSource, error)
	// GetAll lists every EPG sources.
	GetAll(ctx context.Context) ([]*models.EpgSource, error)
	// GetEnabled lists the enabled EPG sources.
	GetEnabled(ctx context.Context) ([]*models.EpgSource, error)
	// GetByName looks a EPG source up by its unique name.
	GetByName(ctx context.Context, name string) (*models.EpgSource, error)
	// Update saves changes to a EPG source.
	Update(ctx context.Context, source *models.EpgSource) error
	// Delete removes the EPG source with the given ID.
	Delete(ctx context.Context, id models.ULID) error
}

// EpgChannelRepository defines operations for EPG channel persistence.
type EpgChannelRepository interface {
	// Create inserts a EPG channel.
	Create(ctx context.Context, channel *models.EpgChannel) error
	// UpsertBatch creates or updates multiple EPG channels via ON CONFLICT
	// on (source_id, channel_id).
	UpsertBatch(ctx context.Context, channels []*models.EpgChannel) error
	// GetByID returns the EPG channel with the given ID.
	GetByID(ctx context.Context, id models.ULID) (*models.EpgChannel, error)
	// GetBySourceID lists a source\'s EPG channels.
	GetBySourceID(ctx context.Context, sourceID models.ULID) ([]*models.EpgChannel, error)
	// GetByChannelID retrieves EPG channels matching an XMLTV channel id.
	GetByChannelID(ctx context.Context, channelID string) ([]*models.EpgChannel, error)
	// Update saves changes to a EPG channel.
	Update(ctx context.Context, channel *models.EpgChannel) error
	// Delete removes the EPG channel with the given ID.
	Delete(ctx context.Context, id models.ULID) error
	// DeleteBySourceID removes every EPG channels of a source.
	DeleteBySourceID(ctx context.Context, sourceID models.ULID) error
	// DeleteStaleBySourceID deletes EPG channels for a source not updated
	// since the given time.
	DeleteStaleBySourceID(ctx context.Context, sourceID models.ULID, olderThan time.Time) (int64, error)
	// CountBySourceID counts a source\'s EPG channels.
	CountBySourceID(ctx context.Context, sourceID models.ULID) (int64, error)
}

// EpgProgramRepository defines operations for EPG programme persistence.
type EpgProgramRepository interface {
	// Create inserts a EPG programme.
	Create(ctx context.Context, program *models.EpgProgram) error
	// UpsertBatch creates or updates multiple programmes via ON CONFLICT
	// on (source_id, channel_id, start).
	UpsertBatch(ctx context.Context, programs []*models.EpgProgram) error
	// GetByID returns the EPG programme with the given ID.
	GetByID(ctx context.Context, id models.ULID) (*models.EpgProgram, error)
	// GetByChannelID retrieves programmes for a channel within a time range.
	GetByChannelID(ctx context.Context, channelID string, start, end time.Time) ([]*models.EpgProgram, error)
	// GetBySourceID lists a source\'s programmes.
	GetBySourceID(ctx context.Context, sourceID models.ULID) ([]*models.EpgProgram, error)
	// Delete removes the EPG programme with the given ID.
	Delete(ctx context.Context, id models.ULID) error
	// DeleteBySourceID removes every programmes of a source.
	DeleteBySourceID(ctx context.Context, sourceID models.ULID) error
	// DeleteExpired deletes programmes that ended before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	// CountBySourceID counts a source\'s programmes.
	CountBySourceID(ctx context.Context, sourceID models.ULID) (int64, error)
}

// FilterRepository defines operations for filter persistence.
// Filters do not carry a per-proxy enabled state; that lives on the
// proxy-filter relationship (ProxyFilter.IsActive).
type FilterRepository interface {
	// Create inserts a filter.
	Create(ctx context.Context, filter *models.Filter) error
	// GetByID returns the filter with the given ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Filter, error)
	// GetByIDs returns the filters matching any of ids.
	GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.Filter, error)
	// GetByName looks a filter up by its unique name.
	GetByName(ctx context.Context, name string) (*models.Filter, error)
	// GetAll lists every filters.
	GetAll(ctx context.Context) ([]*models.Filter, error)
	// GetBySourceType retrieves filters by source type (stream/epg).
	GetBySourceType(ctx context.Context, sourceType models.FilterSourceType) ([]*models.Filter, error)
	// Update saves changes to a filter.
	Update(ctx context.Context, filter *models.Filter) error
	// Delete removes the filter with the given ID.
	Delete(ctx context.Context, id models.ULID) error
	// Count reports how many filters exist.
	Count(ctx context.Context) (int64, error)
}

// DataMappingRuleRepository defines operations for data mapping rule persistence.
type DataMappingRuleRepository interface {
	// Create inserts a data mapping rule.
	Create(ctx context.Context, rule *models.DataMappingRule) error
	// GetByID returns the data mapping rule with the given ID.
	GetByID(ctx context.Context, id models.ULID) (*models.DataMappingRule, error)
	// GetByIDs returns the data mapping rules matching any of ids.
	GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.DataMappingRule, error)
	// GetByName looks a data mapping rule up by its unique name.
	GetByName(ctx context.Context, name string) (*models.DataMappingRule, error)
	// GetAll lists every data mapping rules ordered by sort order.
	GetAll(ctx context.Context) ([]*models.DataMappingRule, error)
	// GetActive lists the active data mapping rules ordered by sort order.
	GetActive(ctx context.Context) ([]*models.DataMappingRule, error)
	// GetActiveForSourceType retrieves active rules for a source type,
	// ordered by sort order.
	GetActiveForSourceType(ctx context.Context, sourceType models.DataMappingRuleSourceType) ([]*models.DataMappingRule, error)
	// Update saves changes to a data mapping rule.
	Update(ctx context.Context, rule *models.DataMappingRule) error
	// Delete removes the data mapping rule with the given ID.
	Delete(ctx context.Context, id models.ULID) error
	// Count reports how many rules exist.
	Count(ctx context.Context) (int64, error)
	// Reorder rewrites rule sort orders as a dense 1-based sequence in a
	// single transaction.
	Reorder(ctx context.Context, reorders []ReorderRequest) error
}

// ProxyRepository defines operations for proxy persistence, including the
// priority-ordered source/filter/rule attachments.
type ProxyRepository interface {
	// Create inserts a proxy.
	Create(ctx context.Context, proxy *models.Proxy) error
	// GetByID returns the proxy with the given ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Proxy, error)
	// GetByIDWithRelations retrieves a proxy with its attachments preloaded,
	// each ordered by priority.
	GetByIDWithRelations(ctx context.Context, id models.ULID) (*models.Proxy, error)
	// GetAll lists every proxies.
	GetAll(ctx context.Context) ([]*models.Proxy, error)
	// GetActive lists the active proxies.
	GetActive(ctx context.Context) ([]*models.Proxy, error)
	// GetByName looks a proxy up by its unique name.
	GetByName(ctx context.Context, name string) (*models.Proxy, error)
	// Update saves changes to a proxy.
	Update(ctx context.Context, proxy *models.Proxy) error
	// Delete removes the proxy with the given ID.
	Delete(ctx context.Context, id models.ULID) error
	// UpdateStatus updates the generation status.
	UpdateStatus(ctx context.Context, id models.ULID, status models.ProxyStatus, lastError string) error
	// UpdateLastGeneration updates the last generation timestamp and counts.
	UpdateLastGeneration(ctx context.Context, id models.ULID, channelCount, programCount int) error

	// SetSources replaces the proxy's stream sources. The slice order
	// becomes the dense 1-based priority order.
	SetSources(ctx context.Context, proxyID models.ULID, sourceIDs []models.ULID) error
	// GetSources retrieves the proxy's stream source attachments in
	// priority order.
	GetSources(ctx context.Context, proxyID models.ULID) ([]*models.ProxySource, error)
	// SetEpgSources replaces the proxy's EPG sources, slice order becoming
	// the dense 1-based priority order.
	SetEpgSources(ctx context.Context, proxyID models.ULID, sourceIDs []models.ULID) error
	// GetEpgSources retrieves the proxy's EPG source attachments in
	// priority order.
	GetEpgSources(ctx context.Context, proxyID models.ULID) ([]*models.ProxyEpgSource, error)
	// SetFilters replaces the proxy's filters. Slice order becomes the
	// dense 1-based priority order; isActive toggles each attachment.
	SetFilters(ctx context.Context, proxyID models.ULID, filterIDs []models.ULID, isActive map[models.ULID]bool) error
	// GetFilters retrieves the proxy's filter attachments in priority order
	// with the Filter relation preloaded.
	GetFilters(ctx context.Context, proxyID models.ULID) ([]*models.ProxyFilter, error)
	// SetMappingRules replaces the proxy's mapping rules, slice order
	// becoming the dense 1-based priority order.
	SetMappingRules(ctx context.Context, proxyID models.ULID, ruleIDs []models.ULID) error
	// GetMappingRules retrieves the proxy's rule attachments in priority
	// order with the Rule relation preloaded.
	GetMappingRules(ctx context.Context, proxyID models.ULID) ([]*models.ProxyMappingRule, error)

	// ReorderSources rewrites stream source priorities densely.
	ReorderSources(ctx context.Context, proxyID models.ULID, reorders []ReorderRequest) error
	// ReorderEpgSources rewrites EPG source priorities densely.
	ReorderEpgSources(ctx context.Context, proxyID models.ULID, reorders []ReorderRequest) error
	// ReorderFilters rewrites filter priorities densely.
	ReorderFilters(ctx context.Context, proxyID models.ULID, reorders []ReorderRequest) error
	// ReorderMappingRules rewrites mapping rule priorities densely.
	ReorderMappingRules(ctx context.Context, proxyID models.ULID, reorders []ReorderRequest) error

	// GetBySourceID retrieves all proxies that use a specific stream source.
	GetBySourceID(ctx context.Context, sourceID models.ULID) ([]*models.Proxy, error)
	// GetByEpgSourceID retrieves all proxies that use a specific EPG source.
	GetByEpgSourceID(ctx context.Context, epgSourceID models.ULID) ([]*models.Proxy, error)
	// CountByFilterID returns the count of proxies using a filter.
	CountByFilterID(ctx context.Context, filterID models.ULID) (int64, error)
	// CountByRuleID returns the count of proxies using a mapping rule.
	CountByRuleID(ctx context.Context, ruleID models.ULID) (int64, error)
}
