// Package scheduler provides cron-based refresh scheduling for chanarr.
// It periodically checks source and proxy cron schedules and triggers
// ingestion or generation when a schedule is due.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/repository"
)

// TaskType identifies the kind of scheduled work.
type TaskType string

const (
	// TaskStreamIngestion refreshes a stream source.
	TaskStreamIngestion TaskType = "stream_ingestion"
	// TaskEpgIngestion refreshes an EPG source.
	TaskEpgIngestion TaskType = "epg_ingestion"
	// TaskProxyGeneration regenerates a proxy's published output.
	TaskProxyGeneration TaskType = "proxy_generation"
)

// Scheduler watches cron schedules on sources and proxies and triggers the
// corresponding service when a schedule comes due. Triggers are deduplicated:
// a task already running, or run within the grace period, is skipped.
type Scheduler struct {
	mu sync.Mutex

	streamSourceRepo repository.StreamSourceRepository
	epgSourceRepo    repository.EpgSourceRepository
	proxyRepo        repository.ProxyRepository

	streamIngest  SourceIngestService
	epgIngest     EpgIngestService
	generateProxy ProxyGenerateFunc
	autoRegen     AutoRegenerationTrigger

	logger *slog.Logger
	parser cron.Parser

	syncInterval      time.Duration
	dedupeGracePeriod time.Duration
	catchupMissedRuns bool
	maxCatchupAge     time.Duration

	// Trigger bookkeeping, keyed by "<type>:<id>".
	running map[string]bool
	lastRun map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds scheduler configuration.
type Config struct {
	// SyncInterval is how often schedules are checked.
	// Default: 1 minute
	SyncInterval time.Duration

	// DedupeGracePeriod suppresses re-triggering a task that ran within
	// this window. Default: 5 minutes
	DedupeGracePeriod time.Duration

	// CatchupMissedRuns triggers tasks whose schedule fired while the
	// process was down. Default: false
	CatchupMissedRuns bool

	// MaxCatchupAge bounds how old a missed run may be and still be
	// caught up. Default: 24 hours
	MaxCatchupAge time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		SyncInterval:      time.Minute,
		DedupeGracePeriod: 5 * time.Minute,
		CatchupMissedRuns: false,
		MaxCatchupAge:     24 * time.Hour,
	}
}

// New creates a new scheduler.
func New(
	streamSourceRepo repository.StreamSourceRepository,
	epgSourceRepo repository.EpgSourceRepository,
	proxyRepo repository.ProxyRepository,
) *Scheduler {
	cfg := DefaultConfig()
	return &Scheduler{
		streamSourceRepo: streamSourceRepo, epgSourceRepo: epgSourceRepo, proxyRepo: proxyRepo,
		logger: slog.Default(),
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		syncInterval: cfg.SyncInterval, dedupeGracePeriod: cfg.DedupeGracePeriod,
		catchupMissedRuns: cfg.CatchupMissedRuns, maxCatchupAge: cfg.MaxCatchupAge,
		running: make(map[string]bool), lastRun: make(map[string]time.Time),
	}
}

// WithLogger overrides the default logger.
func (s *Scheduler) WithLogger(l *slog.Logger) *Scheduler {
	s.logger = l
	return s
}

// WithConfig applies configuration, ignoring non-positive values.
func (s *Scheduler) WithConfig(cfg Config) *Scheduler {
	if cfg.SyncInterval > 0 {
		s.syncInterval = cfg.SyncInterval
	}
	if cfg.DedupeGracePeriod > 0 {
		s.dedupeGracePeriod = cfg.DedupeGracePeriod
	}
	s.catchupMissedRuns = cfg.CatchupMissedRuns
	if cfg.MaxCatchupAge > 0 {
		s.maxCatchupAge = cfg.MaxCatchupAge
	}
	return s
}

// WithStreamIngestService sets the stream source ingestion service.
func (s *Scheduler) WithStreamIngestService(svc SourceIngestService) *Scheduler {
	s.streamIngest = svc
	return s
}

// WithEpgIngestService sets the EPG source ingestion service.
func (s *Scheduler) WithEpgIngestService(svc EpgIngestService) *Scheduler {
	s.epgIngest = svc
	return s
}

// WithProxyGenerateFunc sets the proxy generation function.
func (s *Scheduler) WithProxyGenerateFunc(fn ProxyGenerateFunc) *Scheduler {
	s.generateProxy = fn
	return s
}

// WithAutoRegeneration sets the trigger invoked after successful ingestion.
func (s *Scheduler) WithAutoRegeneration(trigger AutoRegenerationTrigger) *Scheduler {
	s.autoRegen = trigger
	return s
}

// Start begins the scheduler's background sync loop. If catchup is enabled,
// missed runs are triggered before the first sync.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if s.catchupMissedRuns {
		s.catchupPass(s.ctx)
	}

	s.logger.Info("scheduler started",
		slog.Duration("sync_interval", s.syncInterval),
		slog.Duration("dedupe_grace_period", s.dedupeGracePeriod),
		slog.Bool("catchup_missed_runs", s.catchupMissedRuns))

	s.wg.Add(1)
	go s.syncLoop()
	return nil
}

// Stop cancels the scheduler and waits for in-flight tasks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
}

// syncLoop fires due tasks once per sync interval until cancelled.
func (s *Scheduler) syncLoop() {
	defer s.wg.Done()
	s.syncSchedules(s.ctx)

	tick := time.NewTicker(s.syncInterval)
	defer tick.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-tick.C:
		}
		s.syncSchedules(s.ctx)
	}
}

// ForceSync runs a schedule pass immediately, outside the sync ticker.
// Handlers call this after a source is created or its cron changes.
func (s *Scheduler) ForceSync(ctx context.Context) error {
	s.syncSchedules(ctx)
	return nil
}

// syncSchedules walks all sources and proxies and fires whatever is due.
func (s *Scheduler) syncSchedules(ctx context.Context) {
	if s.streamIngest != nil {
		s.syncStreamSources(ctx)
	}
	if s.epgIngest != nil {
		s.syncEpgSources(ctx)
	}
	if s.generateProxy != nil {
		s.syncProxies(ctx)
	}
}

// triggerDue fires a task when its cron schedule is due. Entries without a
// schedule are left to manual triggering.
func (s *Scheduler) triggerDue(task TaskType, cronExpr string, id models.ULID, name string) {
	if cronExpr != "" && s.isDue(cronExpr) {
		s.Trigger(task, id, name)
	}
}

func (s *Scheduler) syncStreamSources(ctx context.Context) {
	srcs, err := s.streamSourceRepo.GetEnabled(ctx)
	if err != nil {
		s.logger.Error("failed to get stream sources for scheduling", slog.Any("error", err))
		return
	}
	for _, src := range srcs {
		s.triggerDue(TaskStreamIngestion, src.CronSchedule, src.ID, src.Name)
	}
}

func (s *Scheduler) syncEpgSources(ctx context.Context) {
	srcs, err := s.epgSourceRepo.GetEnabled(ctx)
	if err != nil {
		s.logger.Error("failed to get EPG sources for scheduling", slog.Any("error", err))
		return
	}
	for _, src := range srcs {
		s.triggerDue(TaskEpgIngestion, src.CronSchedule, src.ID, src.Name)
	}
}

func (s *Scheduler) syncProxies(ctx context.Context) {
	active, err := s.proxyRepo.GetActive(ctx)
	if err != nil {
		s.logger.Error("failed to get proxies for scheduling", slog.Any("error", err))
		return
	}
	for _, p := range active {
		s.triggerDue(TaskProxyGeneration, p.CronSchedule, p.ID, p.Name)
	}
}

// isDue reports whether a schedule's next fire, measured from one sync
// interval ago, lands inside the current sync window.
func (s *Scheduler) isDue(cronExpr string) bool {
	sched, err := s.parser.Parse(cronExpr)
	if err != nil {
		s.logger.Warn("invalid cron expression", slog.String("cron", cronExpr), slog.Any("error", err))
		return false
	}
	now := time.Now()
	return sched.Next(now.Add(-s.syncInterval)).Before(now.Add(s.syncInterval))
}

// catchupPass triggers tasks whose schedule fired while the process was
// down, bounded by MaxCatchupAge.
func (s *Scheduler) catchupPass(ctx context.Context) {
	now := time.Now()

	if s.streamIngest != nil {
		sources, err := s.streamSourceRepo.GetEnabled(ctx)
		if err != nil {
			s.logger.Error("failed to get stream sources for catchup", slog.Any("error", err))
		} else {
			for _, source := range sources {
				if s.missedRun(source.CronSchedule, source.LastIngestionAt, now) {
					s.logger.Info("catching up missed stream ingestion",
						slog.String("source", source.Name))
					s.Trigger(TaskStreamIngestion, source.ID, source.Name)
				}
			}
		}
	}

	if s.epgIngest != nil {
		sources, err := s.epgSourceRepo.GetEnabled(ctx)
		if err != nil {
			s.logger.Error("failed to get EPG sources for catchup", slog.Any("error", err))
		} else {
			for _, source := range sources {
				if s.missedRun(source.CronSchedule, source.LastIngestionAt, now) {
					s.logger.Info("catching up missed EPG ingestion",
						slog.String("source", source.Name))
					s.Trigger(TaskEpgIngestion, source.ID, source.Name)
				}
			}
		}
	}

	if s.generateProxy != nil {
		proxies, err := s.proxyRepo.GetActive(ctx)
		if err != nil {
			s.logger.Error("failed to get proxies for catchup", slog.Any("error", err))
		} else {
			for _, proxy := range proxies {
				if s.missedRun(proxy.CronSchedule, proxy.LastGeneratedAt, now) {
					s.logger.Info("catching up missed proxy generation",
						slog.String("proxy", proxy.Name))
					s.Trigger(TaskProxyGeneration, proxy.ID, proxy.Name)
				}
			}
		}
	}
}

// missedRun reports whether a schedule fired between the last successful
// run and now, and the missed fire is not older than MaxCatchupAge.
func (s *Scheduler) missedRun(cronExpr string, lastRun *models.Time, now time.Time) bool {
	if cronExpr == "" || lastRun == nil {
		return false
	}

	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return false
	}

	missed := schedule.Next(*lastRun)
	if !missed.Before(now) {
		return false
	}
	return now.Sub(missed) <= s.maxCatchupAge
}

// Trigger dispatches a task asynchronously. It returns false when the task
// is already running or ran within the dedupe grace period.
func (s *Scheduler) Trigger(taskType TaskType, targetID models.ULID, targetName string) bool {
	key := string(taskType) + ":" + targetID.String()

	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return false
	}
	if s.running[key] {
		s.mu.Unlock()
		s.logger.Debug("skipping task already in flight",
			slog.String("type", string(taskType)),
			slog.String("target", targetName))
		return false
	}
	if last, ok := s.lastRun[key]; ok && time.Since(last) < s.dedupeGracePeriod {
		s.mu.Unlock()
		s.logger.Debug("skipping task within grace period",
			slog.String("type", string(taskType)),
			slog.String("target", targetName))
		return false
	}
	s.running[key] = true
	ctx := s.ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, taskType, targetID, targetName)

		s.mu.Lock()
		delete(s.running, key)
		s.lastRun[key] = time.Now()
		s.mu.Unlock()
	}()

	return true
}

// run executes a single task.
func (s *Scheduler) run(ctx context.Context, taskType TaskType, targetID models.ULID, targetName string) {
	s.logger.Info("executing scheduled task",
		slog.String("type", string(taskType)),
		slog.String("target", targetName))

	start := time.Now()
	var err error

	switch taskType {
	case TaskStreamIngestion:
		err = s.streamIngest.Ingest(ctx, targetID)
		if err == nil && s.autoRegen != nil {
			if regenErr := s.autoRegen.TriggerAutoRegeneration(ctx, targetID, "stream"); regenErr != nil {
				s.logger.Warn("failed to trigger auto-regeneration after stream ingestion",
					slog.String("source_id", targetID.String()),
					slog.Any("error", regenErr))
			}
		}
	case TaskEpgIngestion:
		err = s.epgIngest.Ingest(ctx, targetID)
		if err == nil && s.autoRegen != nil {
			if regenErr := s.autoRegen.TriggerAutoRegeneration(ctx, targetID, "epg"); regenErr != nil {
				s.logger.Warn("failed to trigger auto-regeneration after EPG ingestion",
					slog.String("source_id", targetID.String()),
					slog.Any("error", regenErr))
			}
		}
	case TaskProxyGeneration:
		var result *ProxyGenerateResult
		result, err = s.generateProxy(ctx, targetID)
		if err == nil && result != nil {
			s.logger.Info("proxy generation completed",
				slog.String("proxy", targetName),
				slog.Int("channels", result.ChannelCount),
				slog.Int("programs", result.ProgramCount))
		}
	default:
		err = fmt.Errorf("unknown task type: %s", taskType)
	}

	if err != nil {
		s.logger.Error("scheduled task failed",
			slog.String("type", string(taskType)),
			slog.String("target", targetName),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err))
		return
	}

	s.logger.Info("scheduled task completed",
		slog.String("type", string(taskType)),
		slog.String("target", targetName),
		slog.Duration("duration", time.Since(start)))
}

// NextRun returns the next fire time for a cron expression.
func (s *Scheduler) NextRun(expr string) (time.Time, error) {
	sched, err := s.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return sched.Next(time.Now()), nil
}

// ValidateCron checks that expr parses as a cron expression.
func (s *Scheduler) ValidateCron(expr string) error {
	_, err := s.parser.Parse(expr)
	return err
}
