// Package publish implements the file publishing pipeline stage.
package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/chanarr/chanarr/internal/pipeline/shared"
	"github.com/chanarr/chanarr/internal/pipeline/stages/generatem3u"
	"github.com/chanarr/chanarr/internal/pipeline/stages/generatexmltv"
	"github.com/chanarr/chanarr/internal/storage"
)

const (
	// StageID uniquely identifies this stage.
	StageID = "publish"
	// StageName is what operators see in progress output.
	StageName = "Publish"
)

// output pairs a generator's temp-path metadata key with the published
// file's extension and artifact type.
type output struct {
	metaKey  string
	ext      string
	label    string
	artifact core.ArtifactType
}

var outputs = []output{
	{generatem3u.MetadataKeyTempPath, ".m3u", "M3U", core.ArtifactTypeM3U},
	{generatexmltv.MetadataKeyTempPath, ".xml", "XMLTV", core.ArtifactTypeXMLTV},
}

// Stage moves generated files into the output directory without readers
// ever observing a partial file.
type Stage struct {
	shared.BaseStage
	logger  *slog.Logger
	sandbox *storage.Sandbox
}

// New creates a publish stage writing through the given sandbox.
func New(sandbox *storage.Sandbox) *Stage {
	return &Stage{BaseStage: shared.NewBaseStage(StageID, StageName), sandbox: sandbox}
}

// NewConstructor returns a factory constructor that wires in the stage logger.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New(deps.Sandbox)
		if deps.Logger == nil {
			return s
		}
		s.logger = deps.Logger.With("stage", StageID)
		return s
	}
}

// Execute moves generated files from temp to the output directory. The
// previous generation stays readable until the rename lands.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if err := os.MkdirAll(state.OutputDir, 0755); err != nil {
		return result, fmt.Errorf("creating output directory: %w", err)
	}

	published := 0
	for _, out := range outputs {
		src, ok := state.GetMetadata(out.metaKey)
		if !ok {
			continue
		}
		destName := state.ProxyID.String() + out.ext
		if err := s.publishFile(ctx, src.(string), state.OutputDir, destName); err != nil {
			return result, fmt.Errorf("publishing %s: %w", out.label, err)
		}
		published++

		artifact := core.NewArtifact(out.artifact, core.ProcessingStagePublished, StageID).
			WithFilePath(filepath.Join(state.OutputDir, destName))
		result.Artifacts = append(result.Artifacts, artifact)
	}

	result.RecordsProcessed = published
	result.Message = fmt.Sprintf("Published %d files to %s", published, state.OutputDir)
	return result, nil
}

// publishFile atomically moves a file from temp to the output directory.
// os.Rename is atomic on the same filesystem; when temp and output live
// on different filesystems it falls back to copy-then-rename.
func (s *Stage) publishFile(ctx context.Context, src, destDir, destName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest := filepath.Join(destDir, destName)
	if err := os.Rename(src, dest); err == nil {
		s.log(slog.LevelDebug, "published file via direct rename",
			slog.String("src", src), slog.String("dest", dest))
		return nil
	}

	s.log(slog.LevelDebug, "falling back to copy-then-rename",
		slog.String("src", src), slog.String("dest", dest))
	return s.copyThenRename(ctx, src, dest)
}

// copyThenRename copies a file to a temp location in the destination
// directory, then renames it into place. The final rename is on the
// destination filesystem, so readers never see a partial file.
func (s *Stage) copyThenRename(ctx context.Context, src, dest string) error {
	tmp := dest + ".tmp"

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if err := copyChunks(ctx, out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming to final path: %w", err)
	}
	return nil
}

// copyChunks copies in 32KiB chunks, checking for cancellation between
// chunks.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("writing to temp file: %w", werr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading source file: %w", err)
		}
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
