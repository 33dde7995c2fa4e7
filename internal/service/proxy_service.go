package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/pipeline"
	"github.com/chanarr/chanarr/internal/repository"
	"github.com/chanarr/chanarr/internal/service/progress"
)

// annotate wraps err with a short operation label, zeroing the value on
// failure.
func annotate[T any](v T, err error, what string) (T, error) {
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", what, err)
	}
	return v, nil
}

// ProxyService provides business logic for proxy management and generation.
type ProxyService struct {
	repo      repository.ProxyRepository
	pipelines pipeline.OrchestratorFactory
	tracker   *progress.Service
	log       *slog.Logger
}

// NewProxyService creates a new proxy service.
func NewProxyService(repo repository.ProxyRepository, pipelines pipeline.OrchestratorFactory) *ProxyService {
	return &ProxyService{repo: repo, pipelines: pipelines, log: slog.Default()}
}

// WithProgressService enables progress reporting for Generate runs.
func (s *ProxyService) WithProgressService(svc *progress.Service) *ProxyService {
	s.tracker = svc
	return s
}

// WithLogger sets the service logger.
func (s *ProxyService) WithLogger(logger *slog.Logger) *ProxyService {
	s.log = logger
	return s
}

// Create validates and persists a new proxy.
func (s *ProxyService) Create(ctx context.Context, proxy *models.Proxy) error {
	if err := proxy.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := s.repo.Create(ctx, proxy); err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}

	s.log.InfoContext(ctx, "created proxy",
		slog.String("id", proxy.ID.String()),
		slog.String("name", proxy.Name),
		slog.Bool("is_active", proxy.IsActive))
	return nil
}

// Update validates and persists changes to a proxy.
func (s *ProxyService) Update(ctx context.Context, proxy *models.Proxy) error {
	if err := proxy.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := s.repo.Update(ctx, proxy); err != nil {
		return fmt.Errorf("updating proxy: %w", err)
	}

	s.log.InfoContext(ctx, "updated proxy",
		slog.String("id", proxy.ID.String()),
		slog.String("name", proxy.Name))
	return nil
}

// Delete removes a proxy by ID.
func (s *ProxyService) Delete(ctx context.Context, id models.ULID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting proxy: %w", err)
	}
	s.log.InfoContext(ctx, "deleted proxy", slog.String("id", id.String()))
	return nil
}

// GetByID retrieves a proxy by ID.
func (s *ProxyService) GetByID(ctx context.Context, id models.ULID) (*models.Proxy, error) {
	proxy, err := s.repo.GetByID(ctx, id)
	return annotate(proxy, err, "getting proxy")
}

// GetByIDWithRelations retrieves a proxy with its attachments preloaded in
// priority order.
func (s *ProxyService) GetByIDWithRelations(ctx context.Context, id models.ULID) (*models.Proxy, error) {
	proxy, err := s.repo.GetByIDWithRelations(ctx, id)
	return annotate(proxy, err, "getting proxy with relations")
}

// GetAll retrieves all proxies.
func (s *ProxyService) GetAll(ctx context.Context) ([]*models.Proxy, error) {
	proxies, err := s.repo.GetAll(ctx)
	return annotate(proxies, err, "getting all proxies")
}

// GetActive retrieves all active proxies.
func (s *ProxyService) GetActive(ctx context.Context) ([]*models.Proxy, error) {
	proxies, err := s.repo.GetActive(ctx)
	return annotate(proxies, err, "getting active proxies")
}

// GetByName retrieves a proxy by name.
func (s *ProxyService) GetByName(ctx context.Context, name string) (*models.Proxy, error) {
	proxy, err := s.repo.GetByName(ctx, name)
	return annotate(proxy, err, "getting proxy by name")
}

// replaceAttachments wraps one of the Set* repository calls with uniform
// error wrapping and logging.
func (s *ProxyService) replaceAttachments(ctx context.Context, label, countKey string, proxyID models.ULID, count int, err error) error {
	if err != nil {
		return fmt.Errorf("setting %s: %w", label, err)
	}
	s.log.InfoContext(ctx, "set proxy "+label,
		slog.String("proxy_id", proxyID.String()),
		slog.Int(countKey, count))
	return nil
}

// SetSources replaces the proxy's stream sources. The slice order becomes
// the priority order.
func (s *ProxyService) SetSources(ctx context.Context, proxyID models.ULID, sourceIDs []models.ULID) error {
	err := s.repo.SetSources(ctx, proxyID, sourceIDs)
	return s.replaceAttachments(ctx, "sources", "source_count", proxyID, len(sourceIDs), err)
}

// SetEpgSources replaces the proxy's EPG sources. The slice order becomes
// the priority order.
func (s *ProxyService) SetEpgSources(ctx context.Context, proxyID models.ULID, sourceIDs []models.ULID) error {
	err := s.repo.SetEpgSources(ctx, proxyID, sourceIDs)
	return s.replaceAttachments(ctx, "EPG sources", "source_count", proxyID, len(sourceIDs), err)
}

// SetFilters replaces the proxy's filters. The slice order becomes the
// priority order; isActive toggles each attachment without detaching it.
func (s *ProxyService) SetFilters(ctx context.Context, proxyID models.ULID, filterIDs []models.ULID, isActive map[models.ULID]bool) error {
	err := s.repo.SetFilters(ctx, proxyID, filterIDs, isActive)
	return s.replaceAttachments(ctx, "filters", "filter_count", proxyID, len(filterIDs), err)
}

// SetMappingRules replaces the proxy's mapping rules. The slice order
// becomes the priority order.
func (s *ProxyService) SetMappingRules(ctx context.Context, proxyID models.ULID, ruleIDs []models.ULID) error {
	err := s.repo.SetMappingRules(ctx, proxyID, ruleIDs)
	return s.replaceAttachments(ctx, "mapping rules", "rule_count", proxyID, len(ruleIDs), err)
}

// reorderErr wraps a Reorder* repository error with its attachment label.
func reorderErr(label string, err error) error {
	if err != nil {
		return fmt.Errorf("reordering %s: %w", label, err)
	}
	return nil
}

// ReorderSources rewrites stream source priorities for a proxy.
func (s *ProxyService) ReorderSources(ctx context.Context, proxyID models.ULID, reorders []repository.ReorderRequest) error {
	return reorderErr("sources", s.repo.ReorderSources(ctx, proxyID, reorders))
}

// ReorderEpgSources rewrites EPG source priorities for a proxy.
func (s *ProxyService) ReorderEpgSources(ctx context.Context, proxyID models.ULID, reorders []repository.ReorderRequest) error {
	return reorderErr("EPG sources", s.repo.ReorderEpgSources(ctx, proxyID, reorders))
}

// ReorderFilters rewrites filter priorities for a proxy.
func (s *ProxyService) ReorderFilters(ctx context.Context, proxyID models.ULID, reorders []repository.ReorderRequest) error {
	return reorderErr("filters", s.repo.ReorderFilters(ctx, proxyID, reorders))
}

// ReorderMappingRules rewrites mapping rule priorities for a proxy.
func (s *ProxyService) ReorderMappingRules(ctx context.Context, proxyID models.ULID, reorders []repository.ReorderRequest) error {
	return reorderErr("mapping rules", s.repo.ReorderMappingRules(ctx, proxyID, reorders))
}

// Generate runs the generation pipeline for a proxy. The proxy's attachments
// are loaded in priority order and flow through the orchestrator stages.
func (s *ProxyService) Generate(ctx context.Context, proxyID models.ULID) (*pipeline.Result, error) {
	proxy, err := s.repo.GetByIDWithRelations(ctx, proxyID)
	switch {
	case err != nil:
		return nil, fmt.Errorf("getting proxy: %w", err)
	case proxy == nil:
		return nil, fmt.Errorf("proxy not found: %s", proxyID)
	case !proxy.IsActive:
		return nil, fmt.Errorf("proxy is not active: %s", proxy.Name)
	}

	if err := s.repo.UpdateStatus(ctx, proxyID, models.ProxyStatusGenerating, ""); err != nil {
		s.log.WarnContext(ctx, "failed to update proxy status to generating",
			slog.String("error", err.Error()))
	}

	s.log.InfoContext(ctx, "starting proxy generation",
		slog.String("proxy_id", proxyID.String()),
		slog.String("proxy_name", proxy.Name))

	orchestrator, err := s.pipelines.Create(proxy)
	if err != nil {
		_ = s.repo.UpdateStatus(ctx, proxyID, models.ProxyStatusFailed, err.Error())
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	op := s.startProgress(ctx, proxyID, proxy.Name, orchestrator)

	result, err := orchestrator.Execute(ctx)
	if err != nil {
		if op != nil {
			op.Fail(err)
		}
		_ = s.repo.UpdateStatus(ctx, proxyID, models.ProxyStatusFailed, err.Error())
		return result, fmt.Errorf("executing pipeline: %w", err)
	}

	if err := s.repo.UpdateLastGeneration(ctx, proxyID, result.ChannelCount, result.ProgramCount); err != nil {
		s.log.WarnContext(ctx, "failed to update proxy generation stats",
			slog.String("error", err.Error()))
	}
	if op != nil {
		op.Complete(fmt.Sprintf("Generated %d channels, %d programmes", result.ChannelCount, result.ProgramCount))
	}

	s.log.InfoContext(ctx, "proxy generation completed",
		slog.String("proxy_id", proxyID.String()),
		slog.String("proxy_name", proxy.Name),
		slog.Int("channel_count", result.ChannelCount),
		slog.Int("program_count", result.ProgramCount),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// startProgress wires a progress operation onto the orchestrator when a
// progress service is configured. Progress tracking is non-essential, so
// failures only log.
func (s *ProxyService) startProgress(ctx context.Context, proxyID models.ULID, name string, orchestrator *pipeline.Orchestrator) *progress.OperationManager {
	if s.tracker == nil {
		return nil
	}
	mgr, err := progress.StartPipelineOperation(s.tracker, "proxy", proxyID, name, orchestrator.Stages())
	if err != nil {
		s.log.WarnContext(ctx, "failed to start progress tracking",
			slog.String("proxy_id", proxyID.String()),
			slog.String("error", err.Error()))
		return nil
	}
	orchestrator.SetProgressReporter(mgr)
	return mgr
}

// GenerateAll runs the generation pipeline for all active proxies.
func (s *ProxyService) GenerateAll(ctx context.Context) (map[models.ULID]*pipeline.Result, error) {
	proxies, err := s.repo.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting active proxies: %w", err)
	}

	generated := make(map[models.ULID]*pipeline.Result, len(proxies))
	for _, proxy := range proxies {
		if ctx.Err() != nil {
			return generated, ctx.Err()
		}

		result, err := s.Generate(ctx, proxy.ID)
		if err != nil {
			// One failed proxy does not stop the batch.
			s.log.ErrorContext(ctx, "failed to generate proxy",
				slog.String("proxy_id", proxy.ID.String()),
				slog.String("proxy_name", proxy.Name),
				slog.String("error", err.Error()))
			continue
		}
		generated[proxy.ID] = result
	}
	return generated, nil
}

// GetByFilterUsage returns the count of proxies that reference a filter.
func (s *ProxyService) GetByFilterUsage(ctx context.Context, filterID models.ULID) (int64, error) {
	count, err := s.repo.CountByFilterID(ctx, filterID)
	return annotate(count, err, "counting proxies by filter ID")
}

// GetByRuleUsage returns the count of proxies that reference a mapping rule.
func (s *ProxyService) GetByRuleUsage(ctx context.Context, ruleID models.ULID) (int64, error) {
	count, err := s.repo.CountByRuleID(ctx, ruleID)
	return annotate(count, err, "counting proxies by rule ID")
}

// proxyNames projects a proxy list to its names.
func proxyNames(proxies []*models.Proxy) []string {
	names := make([]string, len(proxies))
	for i, p := range proxies {
		names[i] = p.Name
	}
	return names
}

// GetProxyNamesBySourceID returns the names of proxies that use a stream source.
func (s *ProxyService) GetProxyNamesBySourceID(ctx context.Context, sourceID models.ULID) ([]string, error) {
	proxies, err := s.repo.GetBySourceID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("getting proxies by source ID: %w", err)
	}
	return proxyNames(proxies), nil
}

// GetProxyNamesByEpgSourceID returns the names of proxies that use an EPG source.
func (s *ProxyService) GetProxyNamesByEpgSourceID(ctx context.Context, epgSourceID models.ULID) ([]string, error) {
	proxies, err := s.repo.GetByEpgSourceID(ctx, epgSourceID)
	if err != nil {
		return nil, fmt.Errorf("getting proxies by EPG source ID: %w", err)
	}
	return proxyNames(proxies), nil
}
