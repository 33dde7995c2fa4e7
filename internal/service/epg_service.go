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

// Guide data is upserted in batches of these sizes during ingestion.
const (
	epgChannelBatchSize = 500
	epgProgramBatchSize = 1000
)

// EpgService provides business logic for EPG source management.
type EpgService struct {
	sources  repository.EpgSourceRepository
	channels repository.EpgChannelRepository
	programs repository.EpgProgramRepository
	handlers *ingestor.EpgHandlerFactory
	state    *ingestor.StateManager
	log      *slog.Logger
}

// NewEpgService creates a new EPG service.
func NewEpgService(sources repository.EpgSourceRepository, channels repository.EpgChannelRepository, programs repository.EpgProgramRepository, handlers *ingestor.EpgHandlerFactory, state *ingestor.StateManager) *EpgService {
	return &EpgService{
		sources:  sources,
		channels: channels,
		programs: programs,
		handlers: handlers,
		state:    state,
		log:      slog.Default(),
	}
}

// WithLogger sets the service logger.
func (s *EpgService) WithLogger(l *slog.Logger) *EpgService {
	s.log = l
	return s
}

// Create validates and persists a new EPG source.
func (s *EpgService) Create(ctx context.Context, source *models.EpgSource) error {
	err := source.Validate()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := s.sources.Create(ctx, source); err != nil {
		return fmt.Errorf("creating EPG source: %w", err)
	}

	s.log.Info("created EPG source",
		"id", source.ID.String(), "name", source.Name, "type", source.Type)
	return nil
}

// Update validates and persists changes to an EPG source.
func (s *EpgService) Update(ctx context.Context, source *models.EpgSource) error {
	err := source.Validate()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := s.sources.Update(ctx, source); err != nil {
		return fmt.Errorf("updating EPG source: %w", err)
	}

	s.log.Info("updated EPG source", "id", source.ID.String(), "name", source.Name)
	return nil
}

// Delete deletes an EPG source along with its channels and programmes.
// Guide data goes first so a failed source delete leaves no orphans.
func (s *EpgService) Delete(ctx context.Context, id models.ULID) error {
	if err := s.programs.DeleteBySourceID(ctx, id); err != nil {
		return fmt.Errorf("deleting programmes: %w", err)
	}
	if err := s.channels.DeleteBySourceID(ctx, id); err != nil {
		return fmt.Errorf("deleting EPG channels: %w", err)
	}
	if err := s.sources.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting EPG source: %w", err)
	}

	s.log.Info("deleted EPG source", "id", id.String())
	return nil
}

// GetByID retrieves an EPG source by ID.
func (s *EpgService) GetByID(ctx context.Context, id models.ULID) (*models.EpgSource, error) {
	source, err := s.sources.GetByID(ctx, id)
	return annotate(source, err, "getting EPG source")
}

// GetByName retrieves an EPG source by name.
func (s *EpgService) GetByName(ctx context.Context, name string) (*models.EpgSource, error) {
	source, err := s.sources.GetByName(ctx, name)
	return annotate(source, err, "getting EPG source by name")
}

// List returns all EPG sources.
func (s *EpgService) List(ctx context.Context) ([]*models.EpgSource, error) {
	sources, err := s.sources.GetAll(ctx)
	return annotate(sources, err, "listing EPG sources")
}

// ListEnabled returns all enabled EPG sources.
func (s *EpgService) ListEnabled(ctx context.Context) ([]*models.EpgSource, error) {
	sources, err := s.sources.GetEnabled(ctx)
	return annotate(sources, err, "listing enabled EPG sources")
}

// beginIngestion loads the EPG source and claims the ingestion slot for it.
func (s *EpgService) beginIngestion(ctx context.Context, id models.ULID) (*models.EpgSource, error) {
	source, err := s.sources.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting EPG source: %w", err)
	}
	if s.state.IsIngesting(id) {
		return nil, fmt.Errorf("ingestion already in progress for EPG source %s", id)
	}
	if err := s.state.StartWithID(id, source.Name); err != nil {
		return nil, fmt.Errorf("starting state tracking: %w", err)
	}
	return source, nil
}

// Ingest triggers ingestion for an EPG source and waits for it to finish.
func (s *EpgService) Ingest(ctx context.Context, id models.ULID) error {
	source, err := s.beginIngestion(ctx, id)
	if err != nil {
		return err
	}
	return s.performIngestion(ctx, source)
}

// IngestAsync triggers EPG ingestion in the background. State tracking starts
// before returning so callers immediately observe the running state.
func (s *EpgService) IngestAsync(ctx context.Context, id models.ULID) error {
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

// performIngestion runs the handler and persists guide data. Channels and
// programmes are upserted in batches; channels missing from the feed are
// swept afterwards using the ingestion start time as the cutoff.
func (s *EpgService) performIngestion(ctx context.Context, source *models.EpgSource) error {
	id := source.ID

	handler, err := s.handlers.GetForSource(source)
	if err != nil {
		s.state.Fail(id, err)
		return fmt.Errorf("getting EPG handler: %w", err)
	}

	source.MarkIngesting()
	if err := s.sources.Update(ctx, source); err != nil {
		s.state.Fail(id, err)
		return fmt.Errorf("updating EPG source status: %w", err)
	}

	s.log.Info("starting EPG ingestion",
		"source_id", id.String(), "source_name", source.Name, "type", source.Type)

	ingestStart := time.Now()

	var (
		nChannels, nPrograms int
		channelBatch         []*models.EpgChannel
		programBatch         []*models.EpgProgram
	)
	ingestErr := handler.Ingest(ctx, source,
		func(channel *models.EpgChannel) error {
			channelBatch = append(channelBatch, channel)
			nChannels++
			if len(channelBatch) >= epgChannelBatchSize {
				if err := s.channels.UpsertBatch(ctx, channelBatch); err != nil {
					return fmt.Errorf("channel batch upsert: %w", err)
				}
				channelBatch = channelBatch[:0]
			}
			return nil
		},
		func(program *models.EpgProgram) error {
			programBatch = append(programBatch, program)
			if nPrograms++; nPrograms%500 == 0 {
				s.state.UpdateProgress(id, nPrograms, 0)
			}
			if len(programBatch) >= epgProgramBatchSize {
				if err := s.programs.UpsertBatch(ctx, programBatch); err != nil {
					return fmt.Errorf("programme batch upsert: %w", err)
				}
				programBatch = programBatch[:0]
			}
			return nil
		},
	)

	// Flush the partial tail batches
	if ingestErr == nil && len(channelBatch) > 0 {
		if err := s.channels.UpsertBatch(ctx, channelBatch); err != nil {
			ingestErr = fmt.Errorf("final channel batch upsert: %w", err)
		}
	}
	if ingestErr == nil && len(programBatch) > 0 {
		if err := s.programs.UpsertBatch(ctx, programBatch); err != nil {
			ingestErr = fmt.Errorf("final programme batch upsert: %w", err)
		}
	}

	if ingestErr != nil {
		s.state.Fail(id, ingestErr)
		source.MarkFailed(ingestErr)
		_ = s.sources.Update(ctx, source)
		s.log.Error("EPG ingestion failed", "source_id", id.String(), "error", ingestErr)
		return fmt.Errorf("EPG ingestion failed: %w", ingestErr)
	}

	// Sweep guide channels the feed stopped carrying
	switch swept, err := s.channels.DeleteStaleBySourceID(ctx, id, ingestStart); {
	case err != nil:
		s.log.Warn("failed to sweep stale EPG channels", "source_id", id.String(), "error", err)
	case swept > 0:
		s.log.Info("swept stale EPG channels", "source_id", id.String(), "count", swept)
	}

	source.MarkSuccess(nChannels, nPrograms)
	if err := s.sources.Update(ctx, source); err != nil {
		s.log.Error("failed to update EPG source status", "source_id", id.String(), "error", err)
	}

	s.state.Complete(id, nPrograms)
	s.log.Info("EPG ingestion completed",
		"source_id", id.String(), "source_name", source.Name,
		"channel_count", nChannels, "program_count", nPrograms)
	return nil
}

// GetIngestionState returns the current ingestion state for an EPG source.
func (s *EpgService) GetIngestionState(id models.ULID) (*ingestor.IngestionState, bool) {
	return s.state.GetState(id)
}

// IsIngesting returns true if an ingestion is in progress for the EPG source.
func (s *EpgService) IsIngesting(id models.ULID) bool {
	return s.state.IsIngesting(id)
}

// GetChannelCount returns the number of guide channels for an EPG source.
func (s *EpgService) GetChannelCount(ctx context.Context, id models.ULID) (int64, error) {
	return s.channels.CountBySourceID(ctx, id)
}

// GetProgramCount returns the number of programmes for an EPG source.
func (s *EpgService) GetProgramCount(ctx context.Context, id models.ULID) (int64, error) {
	return s.programs.CountBySourceID(ctx, id)
}

// GetProgramsForChannel retrieves programmes for an XMLTV channel id within
// the given time range.
func (s *EpgService) GetProgramsForChannel(ctx context.Context, channelID string, start, end time.Time) ([]*models.EpgProgram, error) {
	return s.programs.GetByChannelID(ctx, channelID, start, end)
}

// DeleteExpiredPrograms removes programmes that ended before the given time.
func (s *EpgService) DeleteExpiredPrograms(ctx context.Context, before time.Time) (int64, error) {
	count, err := s.programs.DeleteExpired(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("deleting expired programmes: %w", err)
	}
	if count > 0 {
		s.log.Info("deleted expired EPG programmes", "count", count)
	}
	return count, nil
}
