package core

import (
	"log/slog"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/repository"
	"github.com/chanarr/chanarr/internal/storage"
)

// StateChecker reports in-flight source ingestion. The ingestion guard
// stage polls it before letting a generation run proceed.
type StateChecker interface {
	IsAnyIngesting() bool
	ActiveIngestionCount() int
	ActiveSourceNames() []string
}

// Dependencies is the bundle handed to every stage constructor.
type Dependencies struct {
	ChannelRepo    repository.ChannelRepository
	EpgChannelRepo repository.EpgChannelRepository
	EpgProgramRepo repository.EpgProgramRepository
	Sandbox        *storage.Sandbox
	Logger         *slog.Logger
	StateChecker   StateChecker // nil skips the ingestion guard
	// BaseURL qualifies stream URLs in published playlists,
	// e.g. "http://localhost:8080".
	BaseURL string
}

// StageConstructor builds one stage from the shared dependencies.
type StageConstructor func(deps *Dependencies) Stage

// OrchestratorFactory creates orchestrators for proxies.
type OrchestratorFactory interface {
	Create(proxy *models.Proxy) (*Orchestrator, error)
}

// Factory assembles Orchestrators from registered stage constructors,
// in registration order.
type Factory struct {
	deps              *Dependencies
	stageConstructors []StageConstructor
}

var _ OrchestratorFactory = (*Factory)(nil)

func NewFactory(deps *Dependencies) *Factory {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Factory{deps: deps}
}

// RegisterStage appends a stage constructor. Stages run in the order
// they were registered.
func (f *Factory) RegisterStage(constructor StageConstructor) {
	f.stageConstructors = append(f.stageConstructors, constructor)
}

// Create builds an Orchestrator for the proxy. The proxy should carry
// its attachments preloaded in priority order.
func (f *Factory) Create(proxy *models.Proxy) (*Orchestrator, error) {
	outputDir := proxy.OutputPath
	if outputDir == "" {
		outputDir = "output"
	}
	resolvedOutput, err := f.deps.Sandbox.ResolvePath(outputDir)
	if err != nil {
		return nil, err
	}

	stages := make([]Stage, len(f.stageConstructors))
	for i, constructor := range f.stageConstructors {
		stages[i] = constructor(f.deps)
	}
	return NewOrchestrator(proxy, stages, resolvedOutput, f.deps.Logger), nil
}
