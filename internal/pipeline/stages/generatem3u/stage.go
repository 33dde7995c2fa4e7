// Package generatem3u implements the M3U generation pipeline stage.
package generatem3u

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/chanarr/chanarr/internal/pipeline/shared"
	"github.com/chanarr/chanarr/pkg/m3u"
)

const (
	// StageID uniquely identifies this stage.
	StageID = "generate_m3u"
	// StageName is what operators see in progress output.
	StageName = "Generate M3U"
	// MetadataKeyTempPath is where the temp file path lands in state metadata.
	MetadataKeyTempPath = "m3u_temp_path"
)

// Stage writes the assembled lineup out as an M3U playlist.
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

// Execute renders the lineup as a playlist under the temp directory.
// Channel numbers come from the numbering stage; entries keep lineup order.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if len(state.Channels) == 0 {
		result.Message = "No channels to write"
		s.log(ctx, slog.LevelInfo, "no channels to write, skipping M3U generation")
		return result, nil
	}

	s.log(ctx, slog.LevelInfo, "starting M3U generation",
		slog.Int("input_channels", len(state.Channels)))

	outPath := filepath.Join(state.TempDir, state.ProxyID.String()+".m3u")
	f, err := os.Create(outPath)
	if err != nil {
		s.log(ctx, slog.LevelError, "failed to create M3U file",
			slog.String("output_path", outPath), slog.String("error", err.Error()))
		return result, fmt.Errorf("creating M3U file: %w", err)
	}
	defer f.Close()

	w := m3u.NewWriter(f)
	if err := w.WriteHeader(); err != nil {
		s.log(ctx, slog.LevelError, "failed to write M3U header",
			slog.String("output_path", outPath), slog.String("error", err.Error()))
		return result, fmt.Errorf("writing M3U header: %w", err)
	}

	var written, skipped int
	for _, ch := range state.Channels {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if ch.StreamURL == "" {
			state.AddError(fmt.Errorf("channel %q skipped: empty stream URL", ch.ChannelName))
			skipped++
			continue
		}
		if err := w.WriteEntry(shared.ChannelToM3UEntry(ch, ch.ChannelNumber)); err != nil {
			state.AddError(fmt.Errorf("writing channel %s: %w", ch.ChannelName, err))
			continue
		}
		written++
	}

	state.ChannelCount = written
	state.SetMetadata(MetadataKeyTempPath, outPath)

	var size int64
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}

	result.RecordsProcessed = written
	result.Message = fmt.Sprintf("Generated M3U with %d channels", written)

	s.log(ctx, slog.LevelInfo, "M3U generation complete",
		slog.Int("channel_count", written),
		slog.Int("skipped_count", skipped),
		slog.Int64("file_size_bytes", size),
		slog.String("output_path", outPath))

	artifact := core.NewArtifact(core.ArtifactTypeM3U, core.ProcessingStageGenerated, StageID).
		WithFilePath(outPath).WithRecordCount(written).WithFileSize(size)
	result.Artifacts = append(result.Artifacts, artifact)

	return result, nil
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
