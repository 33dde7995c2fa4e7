// Package numbering implements the channel numbering pipeline stage.
// Channels are numbered sequentially from the proxy's starting channel
// number, preserving the lineup order established by the merge.
package numbering

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/chanarr/chanarr/internal/pipeline/shared"
)

const (
	StageID   = "numbering"
	StageName = "Channel Numbering"
)

// Stage assigns sequential channel numbers to the lineup.
type Stage struct {
	shared.BaseStage
	logger *slog.Logger
}

var _ core.Stage = (*Stage)(nil)

func New() *Stage {
	return &Stage{BaseStage: shared.NewBaseStage(StageID, StageName)}
}

// NewConstructor returns the factory constructor for this stage.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New()
		if l := deps.Logger; l != nil {
			s.logger = l.With("stage", StageID)
		}
		return s
	}
}

// Execute renumbers every channel in lineup order, overwriting any
// numbers carried over from the source playlists.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	count := len(state.Channels)
	if count == 0 {
		s.log(ctx, slog.LevelInfo, "no channels to number, skipping")
		result.Message = "No channels to number"
		return result, nil
	}

	start := max(state.Proxy.StartingChannelNumber, 1)
	s.log(ctx, slog.LevelInfo, "starting channel numbering",
		slog.Int("channel_count", count), slog.Int("starting_number", start))

	for i, ch := range state.Channels {
		ch.ChannelNumber = start + i
	}

	result.RecordsProcessed = count
	result.RecordsModified = count
	result.Message = fmt.Sprintf("Numbered %d channels starting from %d", count, start)
	result.Artifacts = append(result.Artifacts,
		core.NewArtifact(core.ArtifactTypeChannels, core.ProcessingStageNumbered, StageID).
			WithRecordCount(count).
			WithMetadata("starting_number", start))

	s.log(ctx, slog.LevelInfo, "channel numbering complete",
		slog.Int("channels_numbered", count),
		slog.Int("first_number", start),
		slog.Int("last_number", start+count-1))

	return result, nil
}

func (s *Stage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}
