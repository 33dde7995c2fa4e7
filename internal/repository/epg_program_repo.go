package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chanarr/chanarr/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type epgProgramRepo struct {
	db *gorm.DB
}

var _ EpgProgramRepository = (*epgProgramRepo)(nil)

// NewEpgProgramRepository returns a GORM-backed EpgProgramRepository.
func NewEpgProgramRepository(db *gorm.DB) *epgProgramRepo {
	return &epgProgramRepo{db: db}
}

func (r *epgProgramRepo) Create(ctx context.Context, program *models.EpgProgram) error {
	if err := r.db.WithContext(ctx).Create(program).Error; err != nil {
		return fmt.Errorf("creating EPG programme: %w", err)
	}
	return nil
}

// UpsertBatch inserts programmes in batches, updating rows that collide
// on (source_id, channel_id, start) so repeated guide ingestion stays
// idempotent.
func (r *epgProgramRepo) UpsertBatch(ctx context.Context, programs []*models.EpgProgram) error {
	if len(programs) == 0 {
		return nil
	}

	const batchSize = 1000
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_id"}, {Name: "channel_id"}, {Name: "start"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stop", "title", "sub_title", "description", "category",
			"episode_num", "icon", "rating", "language", "updated_at",
		}),
	}).CreateInBatches(programs, batchSize).Error
	if err != nil {
		return fmt.Errorf("upserting EPG programmes: %w", err)
	}
	return nil
}

func (r *epgProgramRepo) GetByID(ctx context.Context, id models.ULID) (*models.EpgProgram, error) {
	var program models.EpgProgram
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&program).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("getting EPG programme by ID: %w", err)
	}
	return &program, nil
}

// GetByChannelID returns the channel's programmes overlapping the
// [start, end) window, ordered by start time.
func (r *epgProgramRepo) GetByChannelID(ctx context.Context, channelID string, start, end time.Time) ([]*models.EpgProgram, error) {
	var programs []*models.EpgProgram
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND stop > ? AND start < ?", channelID, start, end).
		Order("start ASC").
		Find(&programs).Error
	if err != nil {
		return nil, fmt.Errorf("getting EPG programmes by channel ID: %w", err)
	}
	return programs, nil
}

// GetBySourceID returns every programme for a source, ordered by channel
// then start time.
func (r *epgProgramRepo) GetBySourceID(ctx context.Context, sourceID models.ULID) ([]*models.EpgProgram, error) {
	var programs []*models.EpgProgram
	err := r.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Order("channel_id ASC, start ASC").
		Find(&programs).Error
	if err != nil {
		return nil, fmt.Errorf("getting EPG programmes by source ID: %w", err)
	}
	return programs, nil
}

func (r *epgProgramRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.EpgProgram{}).Error; err != nil {
		return fmt.Errorf("deleting EPG programme: %w", err)
	}
	return nil
}

func (r *epgProgramRepo) DeleteBySourceID(ctx context.Context, sourceID models.ULID) error {
	if err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).Delete(&models.EpgProgram{}).Error; err != nil {
		return fmt.Errorf("deleting EPG programmes by source ID: %w", err)
	}
	return nil
}

// DeleteExpired drops programmes that ended before the given time.
// Retention enforcement runs this on a schedule per source.
func (r *epgProgramRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("stop < ?", before).Delete(&models.EpgProgram{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting expired EPG programmes: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *epgProgramRepo) CountBySourceID(ctx context.Context, sourceID models.ULID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.EpgProgram{}).Where("source_id = ?", sourceID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting EPG programmes: %w", err)
	}
	return count, nil
}
