package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/chanarr/chanarr/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// epgChannelRepo implements EpgChannelRepository using GORM.
type epgChannelRepo struct {
	db *gorm.DB
}

// NewEpgChannelRepository creates a new EpgChannelRepository.
func NewEpgChannelRepository(db *gorm.DB) *epgChannelRepo {
	return &epgChannelRepo{db: db}
}

// Create creates a new EPG channel.
func (r *epgChannelRepo) Create(ctx context.Context, channel *models.EpgChannel) error {
	if err := r.db.WithContext(ctx).Create(channel).Error; err != nil {
		return fmt.Errorf("creating EPG channel: %w", err)
	}
	return nil
}

// UpsertBatch creates or updates multiple EPG channels based on
// (source_id, channel_id).
func (r *epgChannelRepo) UpsertBatch(ctx context.Context, channels []*models.EpgChannel) error {
	if len(channels) == 0 {
		return nil
	}

	const batchSize = 500
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_id"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"channel_name", "channel_logo", "channel_group", "language",
			"labels", "updated_at",
		}),
	}).CreateInBatches(channels, batchSize).Error; err != nil {
		return fmt.Errorf("upserting EPG channels: %w", err)
	}
	return nil
}

// GetByID retrieves an EPG channel by ID.
func (r *epgChannelRepo) GetByID(ctx context.Context, id models.ULID) (*models.EpgChannel, error) {
	var channel models.EpgChannel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&channel).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting EPG channel by ID: %w", err)
	}
	return &channel, nil
}

// GetBySourceID retrieves all EPG channels for a source.
func (r *epgChannelRepo) GetBySourceID(ctx context.Context, sourceID models.ULID) ([]*models.EpgChannel, error) {
	var channels []*models.EpgChannel
	if err := r.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Order("channel_id ASC").
		Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("getting EPG channels by source ID: %w", err)
	}
	return channels, nil
}

// GetByChannelID retrieves all EPG channels matching an XMLTV channel id,
// across every source carrying it.
func (r *epgChannelRepo) GetByChannelID(ctx context.Context, channelID string) ([]*models.EpgChannel, error) {
	var channels []*models.EpgChannel
	if err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("getting EPG channels by channel ID: %w", err)
	}
	return channels, nil
}

// Update updates an existing EPG channel.
func (r *epgChannelRepo) Update(ctx context.Context, channel *models.EpgChannel) error {
	if err := r.db.WithContext(ctx).Save(channel).Error; err != nil {
		return fmt.Errorf("updating EPG channel: %w", err)
	}
	return nil
}

// Delete deletes an EPG channel by ID.
func (r *epgChannelRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.EpgChannel{}).Error; err != nil {
		return fmt.Errorf("deleting EPG channel: %w", err)
	}
	return nil
}

// DeleteBySourceID deletes all EPG channels for a source.
func (r *epgChannelRepo) DeleteBySourceID(ctx context.Context, sourceID models.ULID) error {
	if err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).Delete(&models.EpgChannel{}).Error; err != nil {
		return fmt.Errorf("deleting EPG channels by source ID: %w", err)
	}
	return nil
}

// DeleteStaleBySourceID deletes EPG channels for a source not touched since
// olderThan.
func (r *epgChannelRepo) DeleteStaleBySourceID(ctx context.Context, sourceID models.ULID, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("source_id = ? AND updated_at < ?", sourceID, olderThan).
		Delete(&models.EpgChannel{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting stale EPG channels: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountBySourceID returns the number of EPG channels for a source.
func (r *epgChannelRepo) CountBySourceID(ctx context.Context, sourceID models.ULID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.EpgChannel{}).Where("source_id = ?", sourceID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting EPG channels: %w", err)
	}
	return count, nil
}

// Ensure epgChannelRepo implements EpgChannelRepository at compile time.
var _ EpgChannelRepository = (*epgChannelRepo)(nil)
