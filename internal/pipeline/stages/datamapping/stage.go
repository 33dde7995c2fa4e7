// Package datamapping implements the data mapping pipeline stage. The
// proxy's active rules run as an ordered chain over every record; each
// rule sees the working copy left by the rules before it.
package datamapping

import (
	"context"
	"encoding/json"
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
	StageID   = "datamapping"
	StageName = "Data Mapping"
)

// Stage applies the proxy's mapping rule chain to channels and guide
// channels.
type Stage struct {
	shared.BaseStage
	engine *expression.Engine
	logger *slog.Logger
}

// New creates a new data mapping stage.
func New() *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		engine:    expression.NewEngine(),
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

// Execute compiles the attached rules and runs the chain.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if len(state.MappingRules) == 0 {
		result.Message = "No mapping rules attached"
		return result, nil
	}

	streamRules, epgRules, err := compileRules(state.MappingRules)
	if err != nil {
		s.log(ctx, slog.LevelError, "failed to compile mapping rules",
			slog.Int("rule_count", len(state.MappingRules)),
			slog.String("error", err.Error()))
		return result, err
	}

	if len(streamRules) == 0 && len(epgRules) == 0 {
		result.Message = "No active mapping rules"
		return result, nil
	}

	s.log(ctx, slog.LevelInfo, "starting data mapping",
		slog.Int("stream_rules", len(streamRules)),
		slog.Int("epg_rules", len(epgRules)),
		slog.Int("input_channels", len(state.Channels)),
		slog.Int("input_guide_channels", len(state.EpgChannels)))

	channelsModified := 0
	guideModified := 0
	dropped := 0

	if len(streamRules) > 0 && len(state.Channels) > 0 {
		records := make([]*expression.Record, len(state.Channels))
		for i, ch := range state.Channels {
			records[i] = expression.NewRecord(ch.FieldMap())
		}

		chain, err := s.engine.ApplyChain(ctx, streamRules, records)
		if err != nil {
			return result, fmt.Errorf("applying stream rule chain: %w", err)
		}

		// A record whose chain errored is excluded from the lineup; a
		// half-mapped channel must not reach the published output.
		kept := state.Channels[:0]
		for i, rr := range chain.Records {
			ch := state.Channels[i]
			if rr.Err != nil {
				state.AddError(fmt.Errorf("mapping channel %q: %w", ch.ChannelName, rr.Err))
				dropped++
				continue
			}
			if len(rr.AppliedRules) > 0 {
				ch.ApplyFieldMap(rr.Record.Fields)
				mergeLabels(&ch.Labels, rr.Record.Labels)
				channelsModified++
			}
			kept = append(kept, ch)
		}
		state.Channels = kept
	}

	if len(epgRules) > 0 && len(state.EpgChannels) > 0 {
		records := make([]*expression.Record, len(state.EpgChannels))
		for i, gc := range state.EpgChannels {
			records[i] = expression.NewRecord(gc.FieldMap())
		}

		chain, err := s.engine.ApplyChain(ctx, epgRules, records)
		if err != nil {
			return result, fmt.Errorf("applying EPG rule chain: %w", err)
		}

		kept := state.EpgChannels[:0]
		for i, rr := range chain.Records {
			gc := state.EpgChannels[i]
			if rr.Err != nil {
				state.AddError(fmt.Errorf("mapping guide channel %q: %w", gc.ChannelID, rr.Err))
				dropped++
				continue
			}
			if len(rr.AppliedRules) > 0 {
				gc.ApplyFieldMap(rr.Record.Fields)
				mergeLabels(&gc.Labels, rr.Record.Labels)
				guideModified++
			}
			kept = append(kept, gc)
		}
		state.EpgChannels = kept
	}

	// tvg_id and channel_id are mutable fields, so the match indexes may
	// be stale after the chain.
	state.RebuildChannelMap()
	state.RebuildEpgChannelMap()

	result.RecordsProcessed = len(state.Channels) + len(state.EpgChannels) + dropped
	result.RecordsModified = channelsModified + guideModified
	result.Message = fmt.Sprintf("Data mapping: %d channels, %d guide channels modified, %d dropped on error",
		channelsModified, guideModified, dropped)

	s.log(ctx, slog.LevelInfo, "data mapping complete",
		slog.Int("channels_modified", channelsModified),
		slog.Int("guide_channels_modified", guideModified),
		slog.Int("records_dropped", dropped))

	artifact := core.NewArtifact(core.ArtifactTypeChannels, core.ProcessingStageTransformed, StageID).
		WithRecordCount(len(state.Channels)).
		WithMetadata("channels_modified", channelsModified).
		WithMetadata("guide_channels_modified", guideModified)
	result.Artifacts = append(result.Artifacts, artifact)

	return result, nil
}

// compileRules parses every active rule attachment once, split by the
// record kind the rule targets. Attachment order is priority order.
func compileRules(attachments []*models.ProxyMappingRule) (stream, epg []*expression.CompiledRule, err error) {
	for _, att := range attachments {
		rule := att.Rule
		if rule == nil || !rule.IsActive || strings.TrimSpace(rule.Expression) == "" {
			continue
		}

		compiled, err := expression.CompileRule(rule.ID.String(), rule.Name, rule.Expression)
		if err != nil {
			return nil, nil, err
		}

		switch rule.SourceType {
		case models.DataMappingRuleSourceTypeStream:
			stream = append(stream, compiled)
		case models.DataMappingRuleSourceTypeEPG:
			epg = append(epg, compiled)
		}
	}
	return stream, epg, nil
}

// mergeLabels appends chain-assigned labels onto the record's stored
// label JSON.
func mergeLabels(stored *string, labels []expression.Label) {
	if len(labels) == 0 {
		return
	}

	var existing []expression.Label
	if *stored != "" {
		// Unreadable stored labels are replaced rather than lost silently.
		_ = json.Unmarshal([]byte(*stored), &existing)
	}
	existing = append(existing, labels...)

	if data, err := json.Marshal(existing); err == nil {
		*stored = string(data)
	}
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
