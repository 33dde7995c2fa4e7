// Package ingestionguard implements the ingestion guard pipeline stage.
// The guard holds the pipeline until every active source ingestion has
// finished, so the merge sees consistent data.
package ingestionguard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/chanarr/chanarr/internal/pipeline/shared"
)

const (
	// StageID uniquely identifies this stage.
	StageID = "ingestion_guard"
	// StageName is what operators see in progress output.
	StageName = "Ingestion Guard"

	// DefaultPollInterval is how often the guard re-checks by default.
	DefaultPollInterval = 1 * time.Second
	// DefaultMaxWaitTime caps the wait before the guard gives up.
	DefaultMaxWaitTime = 5 * time.Minute
)

// Stage blocks until the state checker reports no active ingestions.
type Stage struct {
	shared.BaseStage
	checker  core.StateChecker
	poll     time.Duration
	maxWait  time.Duration
	disabled bool
	logger   *slog.Logger
}

// New creates a guard polling at the default cadence.
func New(checker core.StateChecker) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		checker:   checker,
		poll:      DefaultPollInterval,
		maxWait:   DefaultMaxWaitTime,
	}
}

// NewConstructor returns a factory constructor that wires in the stage logger.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New(deps.StateChecker)
		if deps.Logger == nil {
			return s
		}
		s.logger = deps.Logger.With("stage", StageID)
		return s
	}
}

// WithPollInterval sets the polling cadence; non-positive values are ignored.
func (s *Stage) WithPollInterval(d time.Duration) *Stage {
	if d > 0 {
		s.poll = d
	}
	return s
}

// WithMaxWaitTime caps the wait; non-positive values are ignored.
func (s *Stage) WithMaxWaitTime(d time.Duration) *Stage {
	if d > 0 {
		s.maxWait = d
	}
	return s
}

// WithEnabled turns the guard on or off.
func (s *Stage) WithEnabled(enabled bool) *Stage {
	s.disabled = !enabled
	return s
}

// WithLogger attaches a logger scoped to this stage.
func (s *Stage) WithLogger(logger *slog.Logger) *Stage {
	s.logger = logger.With("stage", StageID)
	return s
}

// Execute polls the state checker until every ingestion finishes, the
// maximum wait elapses or ctx is cancelled.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	switch {
	case s.disabled:
		result.Message = "Ingestion guard disabled, skipping"
		s.log(slog.LevelDebug, "ingestion guard disabled")
		return result, nil
	case s.checker == nil:
		result.Message = "No state checker configured, skipping"
		s.log(slog.LevelWarn, "ingestion guard has no state checker")
		return result, nil
	case !s.checker.IsAnyIngesting():
		result.Message = "No active ingestions, proceeding"
		s.log(slog.LevelDebug, "no active ingestions")
		return result, nil
	}

	active := s.checker.ActiveIngestionCount()
	s.log(slog.LevelInfo, "waiting for active ingestions to complete",
		slog.Int("active_count", active))

	waitCtx, cancel := context.WithTimeout(ctx, s.maxWait)
	defer cancel()

	started := time.Now()
	checks := 0

	tick := time.NewTicker(s.poll)
	defer tick.Stop()

	for {
		select {
		case <-waitCtx.Done():
			// Distinguish parent cancellation from our own timeout.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			names := s.checker.ActiveSourceNames()
			return nil, fmt.Errorf("timeout waiting for ingestions after %v: %d still active (%v)",
				time.Since(started), len(names), names)
		case <-tick.C:
		}

		checks++
		if s.checker.IsAnyIngesting() {
			if checks%10 == 0 {
				s.log(slog.LevelDebug, "still waiting for ingestions",
					slog.Int("active_count", s.checker.ActiveIngestionCount()),
					slog.Int("attempts", checks))
			}
			continue
		}

		elapsed := time.Since(started)
		result.Message = fmt.Sprintf("Waited %v for %d ingestion(s) to complete (%d checks)",
			elapsed.Round(time.Millisecond), active, checks)
		result.RecordsProcessed = active

		s.log(slog.LevelInfo, "ingestions complete, proceeding",
			slog.Duration("wait_time", elapsed), slog.Int("attempts", checks))

		artifact := core.NewArtifact(core.ArtifactTypeChannels, core.ProcessingStageRaw, StageID).
			WithMetadata("wait_time_ms", elapsed.Milliseconds()).
			WithMetadata("poll_attempts", checks).
			WithMetadata("ingestions_waited", active)
		result.Artifacts = append(result.Artifacts, artifact)

		return result, nil
	}
}

// log emits through the stage logger, or drops the record when no logger
// was wired in.
func (s *Stage) log(level slog.Level, msg string, attrs ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Log(context.Background(), level, msg, attrs...)
}

var _ core.Stage = (*Stage)(nil)
