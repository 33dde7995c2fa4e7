package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chanarr/chanarr/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// channelFieldColumns whitelists the fields GetDistinctFieldValues accepts.
var channelFieldColumns = map[string]string{
	"group_title":  "group_title",
	"channel_name": "channel_name",
	"tvg_id":       "tvg_id",
	"tvg_name":     "tvg_name",
	"language":     "language",
}

type channelRepo struct {
	db *gorm.DB
}

var _ ChannelRepository = (*channelRepo)(nil)

// NewChannelRepository returns a GORM-backed ChannelRepository.
func NewChannelRepository(db *gorm.DB) *channelRepo {
	return &channelRepo{db: db}
}

func (r *channelRepo) Create(ctx context.Context, channel *models.Channel) error {
	err := r.db.WithContext(ctx).Create(channel).Error
	if err != nil {
		return fmt.Errorf("creating channel: %w", err)
	}
	return nil
}

// UpsertBatch inserts channels in batches, updating rows that collide on
// (source_id, ext_id). ExtID is regenerated first so the conflict key
// reflects the current channel identity.
func (r *channelRepo) UpsertBatch(ctx context.Context, channels []*models.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	for _, c := range channels {
		c.ExtID = c.GenerateExtID()
	}

	const batchSize = 500
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_id"}, {Name: "ext_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tvg_id", "tvg_name", "tvg_logo", "tvg_shift", "group_title",
			"channel_name", "channel_number", "stream_url", "language",
			"labels", "extra", "updated_at",
		}),
	}).CreateInBatches(channels, batchSize).Error
	if err != nil {
		return fmt.Errorf("upserting channels: %w", err)
	}
	return nil
}

func (r *channelRepo) GetByID(ctx context.Context, id models.ULID) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&channel).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("getting channel by ID: %w", err)
	}
	return &channel, nil
}

// GetBySourceID returns the source's channels in insertion order.
func (r *channelRepo) GetBySourceID(ctx context.Context, sourceID models.ULID) ([]*models.Channel, error) {
	var channels []*models.Channel
	err := r.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Order("id ASC").
		Find(&channels).Error
	if err != nil {
		return nil, fmt.Errorf("getting channels by source ID: %w", err)
	}
	return channels, nil
}

// GetBySourceIDPaginated returns one page of a source's channels plus
// the total count, ordered by channel name.
func (r *channelRepo) GetBySourceIDPaginated(ctx context.Context, sourceID models.ULID, offset, limit int) ([]*models.Channel, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Channel{}).Where("source_id = ?", sourceID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting channels: %w", err)
	}

	var channels []*models.Channel
	err := r.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Order("channel_name ASC").
		Offset(offset).
		Limit(limit).
		Find(&channels).Error
	if err != nil {
		return nil, 0, fmt.Errorf("getting paginated channels: %w", err)
	}
	return channels, total, nil
}

func (r *channelRepo) Update(ctx context.Context, channel *models.Channel) error {
	err := r.db.WithContext(ctx).Save(channel).Error
	if err != nil {
		return fmt.Errorf("updating channel: %w", err)
	}
	return nil
}

func (r *channelRepo) Delete(ctx context.Context, id models.ULID) error {
	err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Channel{}).Error
	if err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}
	return nil
}

func (r *channelRepo) DeleteBySourceID(ctx context.Context, sourceID models.ULID) error {
	err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).Delete(&models.Channel{}).Error
	if err != nil {
		return fmt.Errorf("deleting channels by source ID: %w", err)
	}
	return nil
}

// DeleteStaleBySourceID drops the source's channels not touched since
// olderThan. Run after an upsert pass to sweep channels that disappeared
// from the upstream playlist.
func (r *channelRepo) DeleteStaleBySourceID(ctx context.Context, sourceID models.ULID, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("source_id = ? AND updated_at < ?", sourceID, olderThan).
		Delete(&models.Channel{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting stale channels: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *channelRepo) CountBySourceID(ctx context.Context, sourceID models.ULID) (count int64, err error) {
	err = r.db.WithContext(ctx).Model(&models.Channel{}).Where("source_id = ?", sourceID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting channels: %w", err)
	}
	return count, nil
}

// GetDistinctFieldValues returns distinct values for a whitelisted channel
// field with occurrence counts, filtered case-insensitively by query.
func (r *channelRepo) GetDistinctFieldValues(ctx context.Context, field string, query string, limit int) ([]FieldValueResult, error) {
	column, ok := channelFieldColumns[field]
	if !ok {
		return nil, fmt.Errorf("field %q does not support value listing", field)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	q := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Select(column+" AS value, COUNT(*) AS count").
		Where(column + " != ''").
		Group(column).
		Order("count DESC, value ASC").
		Limit(limit)
	if query != "" {
		q = q.Where("LOWER("+column+") LIKE ?", "%"+strings.ToLower(query)+"%")
	}

	var results []FieldValueResult
	if err := q.Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("getting distinct %s values: %w", field, err)
	}
	return results, nil
}

// Transaction runs fn against a repository bound to one transaction.
func (r *channelRepo) Transaction(ctx context.Context, fn func(ChannelRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&channelRepo{db: tx})
	})
}
