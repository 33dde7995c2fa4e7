// Package filtering implements the lineup filtering pipeline stage.
// Every active filter attached to the proxy must accept a record for it
// to survive; is_inverse flips an individual filter's verdict.
package filtering

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chanarr/chanarr/internal/expression"
	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/chanarr/chanarr/internal/pipeline/shared"
)

// Stage identifier and display name.
const (
	StageID   = "filtering"
	StageName = "Filtering"
)

// compiledFilter holds a filter compiled once for the whole run.
type compiledFilter struct {
	id        string
	name      string
	isInverse bool
	parsed    *expression.ParsedExpression
}

// Stage applies the proxy's filters to channels and guide channels.
type Stage struct {
	shared.BaseStage
	streamFilters []*compiledFilter
	epgFilters    []*compiledFilter
	evaluator     *expression.Evaluator
	logger        *slog.Logger
}

// New creates a new filtering stage.
func New() *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		evaluator: expression.NewEvaluator(),
	}
}

// NewConstructor returns a stage constructor for use with the factory.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New()
		if deps.Logger != nil {
			s.logger = deps.Logger.With("stage", StageID)
		}
		return s
	}
}

// Execute applies the proxy's active filters in priority order.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if len(state.Filters) == 0 {
		result.Message = "No filters attached"
		return result, nil
	}

	if err := s.compileFilters(state.Filters); err != nil {
		s.log(ctx, slog.LevelError, "failed to compile filters",
			slog.Int("filter_count", len(state.Filters)),
			slog.String("error", err.Error()))
		return result, err
	}

	if len(s.streamFilters) == 0 && len(s.epgFilters) == 0 {
		result.Message = "No active filters"
		return result, nil
	}

	s.log(ctx, slog.LevelInfo, "starting filtering",
		slog.Int("stream_filters", len(s.streamFilters)),
		slog.Int("epg_filters", len(s.epgFilters)),
		slog.Int("input_channels", len(state.Channels)),
		slog.Int("input_guide_channels", len(state.EpgChannels)))

	originalChannelCount := len(state.Channels)
	originalGuideCount := len(state.EpgChannels)
	originalProgramCount := len(state.Programs)

	// Filter the channel lineup.
	filteredChannels := make([]*models.Channel, 0, len(state.Channels))
	for _, ch := range state.Channels {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if s.accepts(s.streamFilters, ch.FieldMap(), state) {
			filteredChannels = append(filteredChannels, ch)
		}
	}
	state.Channels = filteredChannels
	state.RebuildChannelMap()

	// Guide channels survive only when their lineup channel survived and
	// every EPG filter accepts them.
	keptGuideIDs := make(map[string]bool)
	filteredGuide := make([]*models.EpgChannel, 0, len(state.EpgChannels))
	for _, gc := range state.EpgChannels {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if _, ok := state.ChannelMap[gc.ChannelID]; !ok {
			continue
		}
		if !s.accepts(s.epgFilters, gc.FieldMap(), state) {
			continue
		}
		filteredGuide = append(filteredGuide, gc)
		keptGuideIDs[gc.ChannelID] = true
	}
	state.EpgChannels = filteredGuide
	state.RebuildEpgChannelMap()

	// Programmes cascade from their guide channel.
	filteredPrograms := make([]*models.EpgProgram, 0, len(state.Programs))
	for _, prog := range state.Programs {
		if keptGuideIDs[prog.ChannelID] {
			filteredPrograms = append(filteredPrograms, prog)
		}
	}
	state.Programs = filteredPrograms

	channelsRemoved := originalChannelCount - len(state.Channels)
	guideRemoved := originalGuideCount - len(state.EpgChannels)
	programsRemoved := originalProgramCount - len(state.Programs)

	result.RecordsProcessed = originalChannelCount + originalGuideCount
	result.RecordsModified = channelsRemoved + guideRemoved
	result.Message = fmt.Sprintf("Filtered: %d/%d channels, %d/%d guide channels, %d/%d programmes removed",
		channelsRemoved, originalChannelCount,
		guideRemoved, originalGuideCount,
		programsRemoved, originalProgramCount)

	s.log(ctx, slog.LevelInfo, "filtering complete",
		slog.Int("channels_removed", channelsRemoved),
		slog.Int("guide_channels_removed", guideRemoved),
		slog.Int("programs_removed", programsRemoved))

	artifact := core.NewArtifact(core.ArtifactTypeChannels, core.ProcessingStageFiltered, StageID).
		WithRecordCount(len(state.Channels)).
		WithMetadata("channels_removed", channelsRemoved).
		WithMetadata("guide_channels_removed", guideRemoved).
		WithMetadata("programs_removed", programsRemoved)
	result.Artifacts = append(result.Artifacts, artifact)
	return result, nil
}

// compileFilters parses every active filter attachment once. Attachment
// order is priority order, which compile preserves.
func (s *Stage) compileFilters(attachments []*models.ProxyFilter) error {
	s.streamFilters = s.streamFilters[:0]
	s.epgFilters = s.epgFilters[:0]

	for _, att := range attachments {
		if !models.BoolVal(att.IsActive) {
			continue
		}
		filter := att.Filter
		if filter == nil || strings.TrimSpace(filter.Expression) == "" {
			continue
		}

		parsed, err := expression.PreprocessAndParse(filter.Expression)
		if err != nil {
			return fmt.Errorf("parsing filter %s (%s): %w", filter.ID, filter.Name, err)
		}
		if parsed == nil {
			continue
		}

		cf := &compiledFilter{
			id:        filter.ID.String(),
			name:      filter.Name,
			isInverse: filter.IsInverse,
			parsed:    parsed,
		}

		switch filter.SourceType {
		case models.FilterSourceTypeStream:
			s.streamFilters = append(s.streamFilters, cf)
		case models.FilterSourceTypeEPG:
			s.epgFilters = append(s.epgFilters, cf)
		}
	}

	return nil
}

// accepts reports whether every filter keeps the record. A normal filter
// keeps records its conditions match; an inverse filter keeps records
// they do not. Evaluation errors count as a non-match and are recorded
// as non-fatal.
func (s *Stage) accepts(filters []*compiledFilter, fields map[string]string, state *core.State) bool {
	if len(filters) == 0 {
		return true
	}

	record := expression.NewRecord(fields)
	for _, cf := range filters {
		evalResult, err := s.evaluator.Evaluate(cf.parsed, record)
		matches := false
		if err != nil {
			state.AddError(fmt.Errorf("evaluating filter %q: %w", cf.name, err))
		} else {
			matches = evalResult.Matches
		}

		if matches == cf.isInverse {
			return false
		}
	}
	return true
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
