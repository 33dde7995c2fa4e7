// Package mergeepg implements the guide merge pipeline stage. Guide
// channels and programmes from every attached EPG source are matched to
// the lineup by XMLTV channel id; the highest-priority EPG source wins
// per channel id.
package mergeepg

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/chanarr/chanarr/internal/pipeline/shared"
	"github.com/chanarr/chanarr/internal/repository"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "merge_epg"
	// StageName is the human-readable name for this stage.
	StageName = "Merge EPG"
	// DefaultEPGDays is the default number of days of guide data to carry.
	DefaultEPGDays = 7
)

// Stage merges guide channels and programmes for the current lineup.
type Stage struct {
	shared.BaseStage
	epgChannelRepo repository.EpgChannelRepository
	programRepo    repository.EpgProgramRepository
	epgDays        int
	logger         *slog.Logger
}

// New creates a new merge EPG stage.
func New(epgChannelRepo repository.EpgChannelRepository, programRepo repository.EpgProgramRepository) *Stage {
	return &Stage{
		BaseStage:      shared.NewBaseStage(StageID, StageName),
		epgChannelRepo: epgChannelRepo,
		programRepo:    programRepo,
		epgDays:        DefaultEPGDays,
	}
}

// NewConstructor returns a stage constructor for use with the factory.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New(deps.EpgChannelRepo, deps.EpgProgramRepo)
		if deps.Logger != nil {
			s.logger = deps.Logger.With("stage", StageID)
		}
		return s
	}
}

// WithEPGDays sets the number of days of guide data to carry.
func (s *Stage) WithEPGDays(days int) *Stage {
	if days > 0 {
		s.epgDays = days
	}
	return s
}

// Execute merges guide data from the attached EPG sources in priority
// order. For each XMLTV channel id the first source that provides it
// wins, and that source also supplies the programmes for the id.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if len(state.EpgSources) == 0 || len(state.ChannelMap) == 0 {
		s.log(ctx, slog.LevelInfo, "skipping guide merge",
			slog.Int("epg_source_count", len(state.EpgSources)),
			slog.Int("channel_map_size", len(state.ChannelMap)))
		result.Message = "No EPG sources or no channels with tvg_id"
		return result, nil
	}

	s.log(ctx, slog.LevelInfo, "starting guide merge",
		slog.Int("epg_source_count", len(state.EpgSources)),
		slog.Int("channel_count", len(state.ChannelMap)),
		slog.Int("epg_days", s.epgDays))

	// winners records which EPG source claimed each channel id.
	winners := make(map[string]models.ULID)
	epgChannelMap := make(map[string]*models.EpgChannel)
	duplicates := 0

	for _, att := range state.EpgSources {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		source := att.EpgSource
		if source == nil {
			state.AddError(fmt.Errorf("EPG source attachment %s has no source loaded", att.EpgSourceID))
			continue
		}
		if !models.BoolVal(source.Enabled) {
			s.log(ctx, slog.LevelDebug, "skipping disabled EPG source",
				slog.String("source_id", source.ID.String()),
				slog.String("source_name", source.Name))
			continue
		}

		guideChannels, err := s.epgChannelRepo.GetBySourceID(ctx, source.ID)
		if err != nil {
			s.log(ctx, slog.LevelError, "failed to load guide channels from source",
				slog.String("source_id", source.ID.String()),
				slog.String("source_name", source.Name),
				slog.String("error", err.Error()))
			state.AddError(fmt.Errorf("loading guide channels from source %s (%s): %w", source.ID, source.Name, err))
			continue
		}

		matched := 0
		for _, gc := range guideChannels {
			if _, wanted := state.ChannelMap[gc.ChannelID]; !wanted {
				continue
			}
			if _, taken := winners[gc.ChannelID]; taken {
				duplicates++
				continue
			}
			winners[gc.ChannelID] = source.ID
			epgChannelMap[gc.ChannelID] = gc
			state.EpgChannels = append(state.EpgChannels, gc)
			matched++
		}

		s.log(ctx, slog.LevelInfo, "merged guide channels from source",
			slog.String("source_id", source.ID.String()),
			slog.String("source_name", source.Name),
			slog.Int("priority_order", att.PriorityOrder),
			slog.Int("matched", matched))
	}

	state.EpgChannelMap = epgChannelMap

	// Programmes come from the winning source for each channel id,
	// limited to the carry window.
	now := time.Now()
	endTime := now.Add(time.Duration(s.epgDays) * 24 * time.Hour)
	programs := make([]*models.EpgProgram, 0)

	for _, att := range state.EpgSources {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		source := att.EpgSource
		if source == nil || !models.BoolVal(source.Enabled) {
			continue
		}

		sourcePrograms, err := s.programRepo.GetBySourceID(ctx, source.ID)
		if err != nil {
			s.log(ctx, slog.LevelError, "failed to load programmes from source",
				slog.String("source_id", source.ID.String()),
				slog.String("source_name", source.Name),
				slog.String("error", err.Error()))
			state.AddError(fmt.Errorf("loading programmes from source %s (%s): %w", source.ID, source.Name, err))
			continue
		}

		kept := 0
		for _, prog := range sourcePrograms {
			if winners[prog.ChannelID] != source.ID {
				continue
			}
			if !prog.Stop.After(now) || !prog.Start.Before(endTime) {
				continue
			}
			programs = append(programs, prog)
			kept++
		}

		s.log(ctx, slog.LevelInfo, "merged programmes from EPG source",
			slog.String("source_id", source.ID.String()),
			slog.String("source_name", source.Name),
			slog.Int("program_count", kept))
	}

	state.Programs = programs

	result.RecordsProcessed = len(state.EpgChannels) + len(programs)
	result.RecordsModified = duplicates
	result.Message = fmt.Sprintf("Merged %d guide channels and %d programmes from %d EPG sources",
		len(state.EpgChannels), len(programs), len(state.EpgSources))

	s.log(ctx, slog.LevelInfo, "guide merge complete",
		slog.Int("guide_channels", len(state.EpgChannels)),
		slog.Int("programs", len(programs)),
		slog.Int("duplicates_dropped", duplicates))

	channelArtifact := core.NewArtifact(core.ArtifactTypeEpgChannels, core.ProcessingStageMerged, StageID).
		WithRecordCount(len(state.EpgChannels)).
		WithMetadata("duplicates_dropped", duplicates)
	programArtifact := core.NewArtifact(core.ArtifactTypePrograms, core.ProcessingStageMerged, StageID).
		WithRecordCount(len(programs))
	result.Artifacts = append(result.Artifacts, channelArtifact, programArtifact)

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

// Ensure Stage implements core.Stage.
var _ core.Stage = (*Stage)(nil)
