// Package loadchannels implements the channel merge pipeline stage.
// Channels from every attached stream source are gathered in ascending
// priority order and deduplicated so the highest-priority source wins.
package loadchannels

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/chanarr/chanarr/internal/pipeline/shared"
	"github.com/chanarr/chanarr/internal/repository"
)

// Stage identifier and display name.
const (
	StageID   = "load_channels"
	StageName = "Load Channels"
)

// Stage merges channels from all attached stream sources.
type Stage struct {
	shared.BaseStage
	logger      *slog.Logger
	channelRepo repository.ChannelRepository
}

var _ core.Stage = (*Stage)(nil)

// New creates a new load channels stage.
func New(channelRepo repository.ChannelRepository) *Stage {
	s := &Stage{channelRepo: channelRepo}
	s.BaseStage = shared.NewBaseStage(StageID, StageName)
	return s
}

// NewConstructor returns the factory constructor for this stage.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New(deps.ChannelRepo)
		if l := deps.Logger; l != nil {
			s.logger = l.With("stage", StageID)
		}
		return s
	}
}

// Execute merges channels from the attached sources in priority order.
// Within one priority tier the source's own channel order is kept, so the
// resulting lineup is deterministic: source priority first, then ingest
// order. Duplicates (same tvg_id, or same stream URL when tvg_id is
// empty) keep the copy from the highest-priority source.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if len(state.Sources) == 0 {
		return result, core.ErrNoSources
	}

	s.log(ctx, slog.LevelInfo, "starting channel merge",
		slog.Int("source_count", len(state.Sources)))

	seen := make(map[string]bool)
	channelMap := make(map[string]*models.Channel)
	totalLoaded := 0
	duplicates := 0

	for _, att := range state.Sources {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		source := att.Source
		if source == nil {
			state.AddError(fmt.Errorf("source attachment %s has no source loaded", att.SourceID))
			continue
		}
		if !models.BoolVal(source.Enabled) {
			s.log(ctx, slog.LevelDebug, "skipping disabled source",
				slog.String("source_id", source.ID.String()), slog.String("source_name", source.Name))
			continue
		}

		channels, err := s.channelRepo.GetBySourceID(ctx, source.ID)
		if err != nil {
			s.log(ctx, slog.LevelError, "failed to load channels from source",
				slog.String("source_id", source.ID.String()), slog.String("source_name", source.Name),
				slog.String("error", err.Error()))
			return result, fmt.Errorf("loading channels from source %s (%s): %w", source.ID, source.Name, err)
		}

		kept := 0
		for _, ch := range channels {
			totalLoaded++

			key := ch.DedupKey()
			if key != "" && seen[key] {
				duplicates++
				continue
			}
			if key != "" {
				seen[key] = true
			}

			state.Channels = append(state.Channels, ch)
			kept++

			if ch.TvgID != "" && channelMap[ch.TvgID] == nil {
				channelMap[ch.TvgID] = ch
			}
		}

		s.log(ctx, slog.LevelInfo, "merged channels from source",
			slog.String("source_id", source.ID.String()),
			slog.String("source_name", source.Name),
			slog.Int("priority_order", att.PriorityOrder),
			slog.Int("loaded", len(channels)),
			slog.Int("kept", kept))
	}

	state.ChannelMap = channelMap

	result.RecordsProcessed = totalLoaded
	result.RecordsModified = duplicates
	result.Message = fmt.Sprintf("Merged %d channels from %d sources (%d duplicates dropped)",
		len(state.Channels), len(state.Sources), duplicates)

	s.log(ctx, slog.LevelInfo, "channel merge complete",
		slog.Int("total_loaded", totalLoaded),
		slog.Int("kept", len(state.Channels)),
		slog.Int("duplicates_dropped", duplicates),
		slog.Int("unique_tvg_ids", len(channelMap)))

	artifact := core.NewArtifact(core.ArtifactTypeChannels, core.ProcessingStageMerged, StageID).
		WithRecordCount(len(state.Channels)).
		WithMetadata("duplicates_dropped", duplicates)
	result.Artifacts = append(result.Artifacts, artifact)

	return result, nil
}

// log emits through the stage logger, or drops the record when no
// logger was wired in.
func (s *Stage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Log(ctx, level, msg, attrs...)
}
