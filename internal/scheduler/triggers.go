package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/repository"
)

// SourceIngestService defines the service interface for stream ingestion.
type SourceIngestService interface {
	Ingest(ctx context.Context, sourceID models.ULID) error
}

// EpgIngestService defines the service interface for EPG ingestion.
type EpgIngestService interface {
	Ingest(ctx context.Context, sourceID models.ULID) error
}

// ProxyGenerateResult holds the result of a proxy generation operation.
type ProxyGenerateResult struct {
	ChannelCount int
	ProgramCount int
}

// ProxyGenerateFunc is a function type for proxy generation. This allows
// different implementations to be used without interface constraints.
type ProxyGenerateFunc func(ctx context.Context, proxyID models.ULID) (*ProxyGenerateResult, error)

// AutoRegenerationTrigger is called after successful source ingestion to
// regenerate proxies that depend on the source.
type AutoRegenerationTrigger interface {
	// TriggerAutoRegeneration triggers regeneration for proxies that use
	// the given source. sourceType is "stream" or "epg".
	TriggerAutoRegeneration(ctx context.Context, sourceID models.ULID, sourceType string) error
}

// AutoRegenService regenerates dependent proxies when a source is refreshed.
// It implements the AutoRegenerationTrigger interface.
type AutoRegenService struct {
	proxyRepo repository.ProxyRepository
	scheduler *Scheduler
	logger    *slog.Logger
}

// NewAutoRegenService creates a new auto-regeneration service.
func NewAutoRegenService(proxyRepo repository.ProxyRepository, scheduler *Scheduler) *AutoRegenService {
	return &AutoRegenService{
		proxyRepo: proxyRepo,
		scheduler: scheduler,
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *AutoRegenService) WithLogger(logger *slog.Logger) *AutoRegenService {
	s.logger = logger
	return s
}

// TriggerAutoRegeneration triggers proxy regeneration for proxies that use
// the given source. Only proxies with AutoRegenerate enabled are considered.
func (s *AutoRegenService) TriggerAutoRegeneration(ctx context.Context, sourceID models.ULID, sourceType string) error {
	var proxies []*models.Proxy
	var err error

	switch sourceType {
	case "stream":
		proxies, err = s.proxyRepo.GetBySourceID(ctx, sourceID)
	case "epg":
		proxies, err = s.proxyRepo.GetByEpgSourceID(ctx, sourceID)
	default:
		return fmt.Errorf("unknown source type: %s", sourceType)
	}

	if err != nil {
		return fmt.Errorf("getting proxies for source %s: %w", sourceID, err)
	}

	if len(proxies) == 0 {
		s.logger.Debug("no proxies use this source",
			slog.String("source_id", sourceID.String()),
			slog.String("source_type", sourceType))
		return nil
	}

	var triggered int
	var skipped int

	for _, proxy := range proxies {
		if !proxy.AutoRegenerate {
			s.logger.Debug("skipping proxy without auto-regenerate",
				slog.String("proxy_id", proxy.ID.String()),
				slog.String("proxy_name", proxy.Name))
			skipped++
			continue
		}

		// Deduplication is handled by the scheduler's trigger bookkeeping.
		if s.scheduler.Trigger(TaskProxyGeneration, proxy.ID, proxy.Name) {
			triggered++
		} else {
			skipped++
		}
	}

	s.logger.Info("auto-regeneration trigger completed",
		slog.String("source_id", sourceID.String()),
		slog.String("source_type", sourceType),
		slog.Int("proxies_found", len(proxies)),
		slog.Int("triggered", triggered),
		slog.Int("skipped", skipped))

	return nil
}

// Ensure AutoRegenService implements AutoRegenerationTrigger at compile time.
var _ AutoRegenerationTrigger = (*AutoRegenService)(nil)
