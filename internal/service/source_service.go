// Package service provides the business logic layer for chanarr operations.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chanarr/chanarr/internal/ingestor"
	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/repository"
)

// Channels are upserted in batches of this size during ingestion.
const ingestBatchSize = 1000

// SourceService provides business logic for stream source management.
type SourceService struct {
	sources  repository.StreamSourceRepository
	channels repository.ChannelRepository
	handlers *ingestor.HandlerFactory
	state    *ingestor.StateManager
	log      *slog.Logger
}

// NewSourceService creates a new source service.
func NewSourceService(sources repository.StreamSourceRepository, channels repository.ChannelRepository, handlers *ingestor.HandlerFactory, state *ingestor.StateManager) *SourceService {
	return &SourceService{
		sources:  sources,
		channels: channels,
		handlers: handlers,
		state:    state,
		log:      slog.Default(),
	}
}

// WithLogger sets the service logger.
func (s *SourceService) WithLogger(l *slog.Logger) *SourceService {
	s.log = l
	return s
}

// Create validates and persists a new stream source.
func (s *SourceService) Create(ctx context.Context, source *models.StreamSource) error {
	err := source.Validate()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := s.sources.Create(ctx, source); err != nil {
		return fmt.Errorf("creating source: %w", err)
	}

	s.log.Info("created stream source",
		"id", source.ID.String(), "name", source.Name, "type", source.Type)
	return nil
}

// Update validates and persists changes to a stream source.
func (s *SourceService) Update(ctx context.Context, source *models.StreamSource) error {
	err := source.Validate()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := s.sources.Update(ctx, source); err != nil {
		return fmt.Errorf("updating source: %w", err)
	}

	s.log.Info("updated stream source", "id", source.ID.String(), "name", source.Name)
	return nil
}

// Delete deletes a stream source and all its channels.
func (s *SourceService) Delete(ctx context.Context, id models.ULID) error {
	// Channels go first so a failed source delete leaves no orphans.
	if err := s.channels.DeleteBySourceID(ctx, id); err != nil {
		return fmt.Errorf("deleting channels: %w", err)
	}
	if err := s.sources.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}

	s.log.Info("deleted stream source", "id", id.String())
	return nil
}

// GetByID retrieves a stream source by ID.
func (s *SourceService) GetByID(ctx context.Context, id models.ULID) (*models.StreamSource, error) {
	source, err := s.sources.GetByID(ctx, id)
	return annotate(source, err, "getting source")
}

// GetByName retrieves a stream source by name.
func (s *SourceService) GetByName(ctx context.Context, name string) (*models.StreamSource, error) {
	source, err := s.sources.GetByName(ctx, name)
	return annotate(source, err, "getting source by name")
}

// List returns all stream sources.
func (s *SourceService) List(ctx context.Context) ([]*models.StreamSource, error) {
	sources, err := s.sources.GetAll(ctx)
	return annotate(sources, err, "listing sources")
}

// ListEnabled returns all enabled stream sources.
func (s *SourceService) ListEnabled(ctx context.Context) ([]*models.StreamSource, error) {
	sources, err := s.sources.GetEnabled(ctx)
	return annotate(sources, err, "listing enabled sources")
}

// beginIngestion loads the source and claims the ingestion slot for it.
// On success the caller owns the state entry and must resolve it through
// performIngestion.
func (s *SourceService) beginIngestion(ctx context.Context, id models.ULID) (*models.StreamSource, error) {
	source, err := s.sources.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting source: %w", err)
	}
	if s.state.IsIngesting(id) {
		return nil, fmt.Errorf("ingestion already in progress for source %s", id)
	}
	if err := s.state.Start(source); err != nil {
		return nil, fmt.Errorf("starting state tracking: %w", err)
	}
	return source, nil
}

// Ingest triggers ingestion for a stream source and waits for it to finish.
func (s *SourceService) Ingest(ctx context.Context, id models.ULID) error {
	source, err := s.beginIngestion(ctx, id)
	if err != nil {
		return err
	}
	return s.performIngestion(ctx, source)
}

// IngestAsync triggers ingestion in the background. State tracking starts
// before returning so callers immediately observe the running state.
func (s *SourceService) IngestAsync(ctx context.Context, id models.ULID) error {
	source, err := s.beginIngestion(ctx, id)
	if err != nil {
		return err
	}

	go func() {
		// Detached from the request context
		_ = s.performIngestion(context.Background(), source)
	}()
	return nil
}

// performIngestion runs the ingestion for a source. Channels are upserted in
// batches keyed on (source_id, ext_id); channels the source no longer carries
// are swept afterwards. State tracking must already be started.
func (s *SourceService) performIngestion(ctx context.Context, source *models.StreamSource) error {
	id := source.ID

	handler, err := s.handlers.GetForSource(source)
	if err != nil {
		s.state.Fail(id, err)
		return fmt.Errorf("getting handler: %w", err)
	}

	source.MarkIngesting()
	if err := s.sources.Update(ctx, source); err != nil {
		s.state.Fail(id, err)
		return fmt.Errorf("updating source status: %w", err)
	}

	s.log.Info("starting ingestion",
		"source_id", id.String(), "source_name", source.Name, "type", source.Type)

	// Everything upserted after this point counts as fresh; older rows are
	// swept once ingestion succeeds.
	ingestStart := time.Now()

	var (
		ingested int
		batch    []*models.Channel
	)
	err = handler.Ingest(ctx, source, func(channel *models.Channel) error {
		batch = append(batch, channel)
		if ingested++; ingested%100 == 0 {
			s.state.UpdateProgress(id, ingested, 0)
		}
		if len(batch) >= ingestBatchSize {
			if err := s.channels.UpsertBatch(ctx, batch); err != nil {
				return fmt.Errorf("batch upsert: %w", err)
			}
			batch = batch[:0]
		}
		return nil
	})

	// Flush the partial tail batch
	if len(batch) > 0 {
		if batchErr := s.channels.UpsertBatch(ctx, batch); batchErr != nil && err == nil {
			err = fmt.Errorf("final batch upsert: %w", batchErr)
		}
	}

	if err != nil {
		s.state.Fail(id, err)
		source.MarkFailed(err)
		_ = s.sources.Update(ctx, source)
		s.log.Error("ingestion failed", "source_id", id.String(), "error", err)
		return fmt.Errorf("ingestion failed: %w", err)
	}

	// Sweep channels the source stopped carrying
	switch swept, err := s.channels.DeleteStaleBySourceID(ctx, id, ingestStart); {
	case err != nil:
		s.log.Error("failed to sweep stale channels", "source_id", id.String(), "error", err)
	case swept > 0:
		s.log.Info("swept stale channels", "source_id", id.String(), "swept", swept)
	}

	source.MarkSuccess(ingested)
	if err := s.sources.Update(ctx, source); err != nil {
		s.log.Error("failed to update source status", "source_id", id.String(), "error", err)
	}

	s.state.Complete(id, ingested)
	s.log.Info("ingestion completed",
		"source_id", id.String(), "source_name", source.Name, "channel_count", ingested)
	return nil
}

// GetIngestionState returns the current ingestion state for a source.
func (s *SourceService) GetIngestionState(id models.ULID) (*ingestor.IngestionState, bool) {
	return s.state.GetState(id)
}

// IsIngesting returns true if an ingestion is in progress for the source.
func (s *SourceService) IsIngesting(id models.ULID) bool {
	return s.state.IsIngesting(id)
}

// GetAllIngestionStates returns all current ingestion states.
func (s *SourceService) GetAllIngestionStates() []*ingestor.IngestionState {
	return s.state.GetAllStates()
}

// GetChannelCount returns the number of channels for a source.
func (s *SourceService) GetChannelCount(ctx context.Context, id models.ULID) (int64, error) {
	return s.channels.CountBySourceID(ctx, id)
}
