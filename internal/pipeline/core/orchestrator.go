package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/chanarr/chanarr/internal/models"
)

// running tracks which proxies have pipelines in flight. A proxy may have at
// most one execution at a time.
var running = struct {
	sync.Mutex
	proxies map[models.ULID]bool
}{proxies: make(map[models.ULID]bool)}

// Orchestrator executes a sequence of pipeline stages.
type Orchestrator struct {
	stages   []Stage
	state    *State
	log      *slog.Logger
	outDir   string
	progress ProgressReporter
}

// NewOrchestrator creates a new Orchestrator with the given stages.
func NewOrchestrator(proxy *models.Proxy, stages []Stage, outputDir string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	state := NewState(proxy)
	state.OutputDir = outputDir
	return &Orchestrator{stages: stages, state: state, log: logger, outDir: outputDir}
}

// SetProgressReporter sets an optional progress reporter.
func (o *Orchestrator) SetProgressReporter(reporter ProgressReporter) {
	o.progress = reporter
}

// SetSources overrides the stream source attachments for the pipeline.
func (o *Orchestrator) SetSources(sources []*models.ProxySource) { o.state.Sources = sources }

// SetEpgSources overrides the EPG source attachments for the pipeline.
func (o *Orchestrator) SetEpgSources(sources []*models.ProxyEpgSource) { o.state.EpgSources = sources }

// SetFilters overrides the filter attachments for the pipeline.
func (o *Orchestrator) SetFilters(filters []*models.ProxyFilter) { o.state.Filters = filters }

// SetMappingRules overrides the rule attachments for the pipeline.
func (o *Orchestrator) SetMappingRules(rules []*models.ProxyMappingRule) { o.state.MappingRules = rules }

// Execute runs all stages in sequence.
// Returns a Result with execution details and any errors.
func (o *Orchestrator) Execute(ctx context.Context) (*Result, error) {
	result := &Result{StageResults: make(map[string]*StageResult)}

	if !o.claim() {
		return result, ErrPipelineAlreadyRunning
	}
	defer o.release()

	// Intermediate files live in a per-run temp directory
	tempDir, err := os.MkdirTemp("", fmt.Sprintf("chanarr-proxy-%s-*", o.state.ProxyID))
	if err != nil {
		return result, fmt.Errorf("creating temp directory: %w", err)
	}
	defer o.removeTempDir(tempDir)

	o.state.TempDir = tempDir
	o.state.OutputDir = o.outDir
	o.state.ProgressReporter = o.progress

	o.log.InfoContext(ctx, "starting pipeline execution",
		slog.String("proxy_id", o.state.ProxyID.String()),
		slog.String("proxy_name", o.state.Proxy.Name),
		slog.Int("stage_count", len(o.stages)))

	started := time.Now()

	for i, stage := range o.stages {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err())
			result.Duration = time.Since(started)
			o.cleanup(ctx, o.stages[:i+1])
			return result, ctx.Err()
		}

		stageResult, err := o.runStage(ctx, i, stage)
		result.StageResults[stage.ID()] = stageResult
		if err != nil {
			result.Errors = append(result.Errors, NewStageError(stage.ID(), stage.Name(), err))
			result.Duration = time.Since(started)
			o.cleanup(ctx, o.stages[:i+1])
			return result, err
		}

		// Stage working sets can be large; reclaim memory before the next one
		runtime.GC()
	}

	result.Success = true
	result.ChannelCount = o.state.ChannelCount
	result.ProgramCount = o.state.ProgramCount
	result.Duration = time.Since(started)
	result.Errors = o.state.Errors
	result.M3UPath = o.generatedFile("m3u")
	result.XMLTVPath = o.generatedFile("xml")

	o.log.InfoContext(ctx, "pipeline execution completed",
		slog.String("proxy_id", o.state.ProxyID.String()),
		slog.Int("channel_count", result.ChannelCount),
		slog.Int("program_count", result.ProgramCount),
		slog.Duration("duration", result.Duration),
		slog.Bool("success", result.Success))

	o.cleanup(ctx, o.stages)
	return result, nil
}

// generatedFile returns the output path for the given extension, or "" when
// no such file was produced.
func (o *Orchestrator) generatedFile(ext string) string {
	path := filepath.Join(o.state.OutputDir, fmt.Sprintf("%s.%s", o.state.ProxyID, ext))
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func (o *Orchestrator) removeTempDir(tempDir string) {
	if err := os.RemoveAll(tempDir); err != nil {
		o.log.Warn("failed to remove temp directory",
			slog.String("path", tempDir),
			slog.String("error", err.Error()))
		return
	}
	o.log.Debug("removed temp directory", slog.String("path", tempDir))
}

// runStage runs a single stage and handles logging/progress.
func (o *Orchestrator) runStage(ctx context.Context, index int, stage Stage) (*StageResult, error) {
	started := time.Now()

	o.log.InfoContext(ctx, "executing stage",
		slog.Int("stage_num", index+1),
		slog.Int("total_stages", len(o.stages)),
		slog.String("stage_id", stage.ID()),
		slog.String("stage_name", stage.Name()))

	if o.progress != nil {
		o.progress.ReportProgress(ctx, stage.ID(), 0.0, "Starting")
	}

	res, err := stage.Execute(ctx, o.state)
	if res == nil {
		res = &StageResult{}
	}
	res.Duration = time.Since(started)

	if err != nil {
		o.log.ErrorContext(ctx, "stage failed",
			slog.String("stage_id", stage.ID()),
			slog.String("stage_name", stage.Name()),
			slog.String("error", err.Error()),
			slog.Duration("duration", res.Duration))
		return res, err
	}

	for _, artifact := range res.Artifacts {
		o.state.AddArtifact(stage.ID(), artifact)
	}

	o.log.InfoContext(ctx, "stage completed",
		slog.String("stage_id", stage.ID()),
		slog.String("stage_name", stage.Name()),
		slog.Duration("duration", res.Duration),
		slog.Int("records_processed", res.RecordsProcessed),
		slog.Int("artifacts_produced", len(res.Artifacts)))

	if o.progress != nil {
		o.progress.ReportProgress(ctx, stage.ID(), 1.0, "Complete")
	}
	return res, nil
}

// cleanup calls Cleanup on all given stages.
func (o *Orchestrator) cleanup(ctx context.Context, stages []Stage) {
	for _, stage := range stages {
		if err := stage.Cleanup(ctx); err != nil {
			o.log.Warn("stage cleanup failed",
				slog.String("stage_id", stage.ID()),
				slog.String("error", err.Error()))
		}
	}
}

// claim marks this orchestrator's proxy as running. It reports false when an
// execution for the proxy is already in flight.
func (o *Orchestrator) claim() bool {
	running.Lock()
	defer running.Unlock()

	if running.proxies[o.state.ProxyID] {
		return false
	}
	running.proxies[o.state.ProxyID] = true
	return true
}

func (o *Orchestrator) release() {
	running.Lock()
	defer running.Unlock()
	delete(running.proxies, o.state.ProxyID)
}

// State exposes the pipeline state for tests.
func (o *Orchestrator) State() *State { return o.state }

// Stages exposes the configured stages for tests.
func (o *Orchestrator) Stages() []Stage { return o.stages }
