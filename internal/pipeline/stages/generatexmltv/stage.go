// Package generatexmltv implements the XMLTV generation pipeline stage.
package generatexmltv

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/chanarr/chanarr/internal/pipeline/shared"
	"github.com/chanarr/chanarr/pkg/xmltv"
)

const (
	// StageID uniquely identifies this stage.
	StageID = "generate_xmltv"
	// StageName is what operators see in progress output.
	StageName = "Generate XMLTV"
	// MetadataKeyTempPath is where the temp file path lands in state metadata.
	MetadataKeyTempPath = "xmltv_temp_path"
)

// Stage writes the assembled lineup's guide data out as an XMLTV document.
type Stage struct {
	shared.BaseStage
	logger *slog.Logger
}

// New creates the stage with no logger attached.
func New() *Stage {
	return &Stage{BaseStage: shared.NewBaseStage(StageID, StageName)}
}

// NewConstructor returns a factory constructor that wires in the stage logger.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New()
		if deps == nil || deps.Logger == nil {
			return s
		}
		s.logger = deps.Logger.With("stage", StageID)
		return s
	}
}

// Execute renders the guide as an XMLTV document under the temp directory.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()
	s.log(ctx, slog.LevelInfo, "starting XMLTV generation",
		slog.Int("input_channels", len(state.Channels)),
		slog.Int("input_programs", len(state.Programs)))

	outPath := filepath.Join(state.TempDir, state.ProxyID.String()+".xml")
	f, err := os.Create(outPath)
	if err != nil {
		s.log(ctx, slog.LevelError, "failed to create XMLTV file",
			slog.String("output_path", outPath), slog.String("error", err.Error()))
		return result, fmt.Errorf("creating XMLTV file: %w", err)
	}
	defer f.Close()

	w := xmltv.NewWriter(f)
	if err := w.WriteHeader(); err != nil {
		s.log(ctx, slog.LevelError, "failed to write XMLTV header",
			slog.String("output_path", outPath), slog.String("error", err.Error()))
		return result, fmt.Errorf("writing XMLTV header: %w", err)
	}

	written, err := writeChannels(ctx, w, state)
	if err != nil {
		return result, err
	}
	programCount, err := s.writeProgrammes(ctx, w, state, written)
	if err != nil {
		return result, err
	}

	if err := w.WriteFooter(); err != nil {
		s.log(ctx, slog.LevelError, "failed to write XMLTV footer",
			slog.String("output_path", outPath), slog.String("error", err.Error()))
		return result, fmt.Errorf("writing XMLTV footer: %w", err)
	}

	state.ProgramCount = programCount
	state.SetMetadata(MetadataKeyTempPath, outPath)

	var size int64
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}

	result.RecordsProcessed = programCount
	result.Message = fmt.Sprintf("Generated XMLTV with %d channels and %d programmes", len(written), programCount)

	s.log(ctx, slog.LevelInfo, "XMLTV generation complete",
		slog.Int("channel_count", len(written)),
		slog.Int("program_count", programCount),
		slog.Int64("file_size_bytes", size),
		slog.String("output_path", outPath))

	artifact := core.NewArtifact(core.ArtifactTypeXMLTV, core.ProcessingStageGenerated, StageID).
		WithFilePath(outPath).WithRecordCount(programCount).WithFileSize(size).
		WithMetadata("channel_count", len(written))
	result.Artifacts = append(result.Artifacts, artifact)

	return result, nil
}

// writeChannels writes one channel element per distinct tvg_id, enriched
// with matched guide metadata, and returns the set of IDs written.
func writeChannels(ctx context.Context, w *xmltv.Writer, state *core.State) (map[string]bool, error) {
	written := make(map[string]bool)
	for _, ch := range state.Channels {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if ch.TvgID == "" || written[ch.TvgID] {
			continue
		}
		xmlCh := shared.ChannelToXMLTVChannel(ch, state.EpgChannelMap[ch.TvgID])
		if err := w.WriteChannel(xmlCh); err != nil {
			state.AddError(fmt.Errorf("writing channel %s: %w", ch.TvgID, err))
			continue
		}
		written[ch.TvgID] = true
	}
	return written, nil
}

// writeProgrammes writes programmes for the written channels, sorted by
// channel then start time so output is deterministic.
func (s *Stage) writeProgrammes(ctx context.Context, w *xmltv.Writer, state *core.State, written map[string]bool) (int, error) {
	progs := make([]*models.EpgProgram, len(state.Programs))
	copy(progs, state.Programs)
	sort.Slice(progs, func(i, j int) bool {
		if progs[i].ChannelID != progs[j].ChannelID {
			return progs[i].ChannelID < progs[j].ChannelID
		}
		return progs[i].Start.Before(progs[j].Start)
	})

	const batchSize = 1000
	count := 0
	for i, prog := range progs {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if prog.Title == "" {
			state.AddError(fmt.Errorf("programme skipped: empty title for channel %q", prog.ChannelID))
			continue
		}
		if !written[prog.ChannelID] {
			continue
		}
		if err := w.WriteProgramme(shared.ProgramToXMLTVProgramme(prog)); err != nil {
			state.AddError(fmt.Errorf("writing programme %s: %w", prog.Title, err))
			continue
		}
		count++

		if (i+1)%batchSize == 0 {
			s.log(ctx, slog.LevelDebug, "XMLTV generation batch progress",
				slog.Int("batch_num", (i+1)/batchSize),
				slog.Int("total_batches", (len(progs)+batchSize-1)/batchSize),
				slog.Int("items_processed", i+1),
				slog.Int("total_items", len(progs)))
		}
	}
	return count, nil
}

// log emits through the stage logger, or drops the record when no logger
// was wired in.
func (s *Stage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Log(ctx, level, msg, attrs...)
}

var _ core.Stage = (*Stage)(nil)
