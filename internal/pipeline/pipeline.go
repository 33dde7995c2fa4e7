// Package pipeline provides a composable pipeline architecture for proxy
// assembly. Each stage implements the Stage interface and operates on
// shared State.
//
// Sub-packages:
//   - core holds the orchestrator, interfaces, and base types
//   - shared holds utilities used by more than one stage
//   - stages/* hold the individual stage implementations
package pipeline

import (
	"log/slog"

	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/chanarr/chanarr/internal/pipeline/stages/datamapping"
	"github.com/chanarr/chanarr/internal/pipeline/stages/filtering"
	"github.com/chanarr/chanarr/internal/pipeline/stages/generatem3u"
	"github.com/chanarr/chanarr/internal/pipeline/stages/generatexmltv"
	"github.com/chanarr/chanarr/internal/pipeline/stages/ingestionguard"
	"github.com/chanarr/chanarr/internal/pipeline/stages/loadchannels"
	"github.com/chanarr/chanarr/internal/pipeline/stages/mergeepg"
	"github.com/chanarr/chanarr/internal/pipeline/stages/numbering"
	"github.com/chanarr/chanarr/internal/pipeline/stages/publish"
	"github.com/chanarr/chanarr/internal/repository"
	"github.com/chanarr/chanarr/internal/storage"
)

// Aliases re-exported from core so callers only import this package.
type (
	Stage               = core.Stage               // single step in the pipeline
	State               = core.State               // shared data between stages
	Result              = core.Result              // outcome of pipeline execution
	StageResult         = core.StageResult         // outcome of a single stage
	Orchestrator        = core.Orchestrator        // executes stages in sequence
	OrchestratorFactory = core.OrchestratorFactory // creates orchestrators
	Factory             = core.Factory
	Dependencies        = core.Dependencies // bundles stage dependencies
	Config              = core.Config
	Builder             = core.Builder          // fluent factory construction
	Artifact            = core.Artifact         // stage output
	ArtifactType        = core.ArtifactType     // identifies artifact content
	ProcessingStage     = core.ProcessingStage  // processing state marker
	ProgressReporter    = core.ProgressReporter // progress tracking
	StageConstructor    = core.StageConstructor // creates stages from dependencies
	StateChecker        = core.StateChecker     // reports in-flight source ingestion
)

// Artifact types.
const (
	ArtifactTypeChannels    = core.ArtifactTypeChannels
	ArtifactTypeEpgChannels = core.ArtifactTypeEpgChannels
	ArtifactTypePrograms    = core.ArtifactTypePrograms
	ArtifactTypeM3U         = core.ArtifactTypeM3U
	ArtifactTypeXMLTV       = core.ArtifactTypeXMLTV
)

// Processing stages.
const (
	ProcessingStageRaw         = core.ProcessingStageRaw
	ProcessingStageMerged      = core.ProcessingStageMerged
	ProcessingStageFiltered    = core.ProcessingStageFiltered
	ProcessingStageTransformed = core.ProcessingStageTransformed
	ProcessingStageNumbered    = core.ProcessingStageNumbered
	ProcessingStageGenerated   = core.ProcessingStageGenerated
	ProcessingStagePublished   = core.ProcessingStagePublished
)

// Sentinel errors.
var (
	ErrInvalidConfiguration   = core.ErrInvalidConfiguration
	ErrNoChannels             = core.ErrNoChannels
	ErrNoSources              = core.ErrNoSources
	ErrPipelineAlreadyRunning = core.ErrPipelineAlreadyRunning
	ErrStageNotFound          = core.ErrStageNotFound
)

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder { return core.NewBuilder() }

// NewState creates a new pipeline state.
var NewState = core.NewState

// NewFactory creates a new pipeline factory with the given dependencies.
func NewFactory(deps *Dependencies) *Factory { return core.NewFactory(deps) }

// defaultStages lists the standard stage constructors in execution order.
// The ingestion guard runs before everything else and is prepended only
// when a state checker is available.
var defaultStages = []func() core.StageConstructor{
	loadchannels.NewConstructor,
	mergeepg.NewConstructor,
	filtering.NewConstructor,
	datamapping.NewConstructor,
	numbering.NewConstructor,
	generatem3u.NewConstructor,
	generatexmltv.NewConstructor,
	publish.NewConstructor,
}

// NewDefaultFactory creates a factory with the standard stage configuration.
// If stateChecker is nil, the ingestion guard stage is skipped.
// baseURL is used to construct fully qualified URLs in published output.
func NewDefaultFactory(
	channelRepo repository.ChannelRepository,
	epgChannelRepo repository.EpgChannelRepository,
	epgProgramRepo repository.EpgProgramRepository,
	sandbox *storage.Sandbox,
	logger *slog.Logger,
	stateChecker core.StateChecker,
	baseURL string,
) *Factory {
	factory := NewFactory(&Dependencies{
		ChannelRepo:    channelRepo,
		EpgChannelRepo: epgChannelRepo,
		EpgProgramRepo: epgProgramRepo,
		Sandbox:        sandbox,
		Logger:         logger,
		StateChecker:   stateChecker,
		BaseURL:        baseURL,
	})

	if stateChecker != nil {
		factory.RegisterStage(ingestionguard.NewConstructor())
	}
	for _, newConstructor := range defaultStages {
		factory.RegisterStage(newConstructor())
	}

	return factory
}

// Stage IDs for reference.
const (
	StageIDDataMapping    = datamapping.StageID
	StageIDFiltering      = filtering.StageID
	StageIDGenerateM3U    = generatem3u.StageID
	StageIDGenerateXMLTV  = generatexmltv.StageID
	StageIDIngestionGuard = ingestionguard.StageID
	StageIDLoadChannels   = loadchannels.StageID
	StageIDMergeEPG       = mergeepg.StageID
	StageIDNumbering      = numbering.StageID
	StageIDPublish        = publish.StageID
)
