package core

import (
	"log/slog"

	"github.com/chanarr/chanarr/internal/repository"
	"github.com/chanarr/chanarr/internal/storage"
)

// Config toggles the optional processing stages.
type Config struct {
	EnableFiltering   bool
	EnableDataMapping bool
	EnableNumbering   bool
}

// DefaultConfig enables every optional stage.
func DefaultConfig() Config {
	return Config{EnableFiltering: true, EnableDataMapping: true, EnableNumbering: true}
}

// Builder assembles a Factory fluently, validating that the required
// repositories and sandbox are present before building.
type Builder struct {
	channelRepo    repository.ChannelRepository
	epgChannelRepo repository.EpgChannelRepository
	epgProgramRepo repository.EpgProgramRepository

	sandbox *storage.Sandbox
	logger  *slog.Logger
	config  Config
}

func NewBuilder() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithChannelRepository(repo repository.ChannelRepository) *Builder {
	b.channelRepo = repo
	return b
}

func (b *Builder) WithEpgChannelRepository(repo repository.EpgChannelRepository) *Builder {
	b.epgChannelRepo = repo
	return b
}

func (b *Builder) WithEpgProgramRepository(repo repository.EpgProgramRepository) *Builder {
	b.epgProgramRepo = repo
	return b
}

func (b *Builder) WithSandbox(sandbox *storage.Sandbox) *Builder {
	b.sandbox = sandbox
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithConfig(config Config) *Builder {
	b.config = config
	return b
}

func (b *Builder) EnableFiltering(enabled bool) *Builder {
	b.config.EnableFiltering = enabled
	return b
}

func (b *Builder) EnableDataMapping(enabled bool) *Builder {
	b.config.EnableDataMapping = enabled
	return b
}

func (b *Builder) EnableNumbering(enabled bool) *Builder {
	b.config.EnableNumbering = enabled
	return b
}

// Config returns the current stage configuration.
func (b *Builder) Config() Config {
	return b.config
}

// Build validates the dependencies and returns a Factory. Stages are
// not registered here; use the factory's RegisterStage.
func (b *Builder) Build() (*Factory, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	return NewFactory(&Dependencies{
		ChannelRepo:    b.channelRepo,
		EpgChannelRepo: b.epgChannelRepo,
		EpgProgramRepo: b.epgProgramRepo,
		Sandbox:        b.sandbox,
		Logger:         b.logger,
	}), nil
}

func (b *Builder) validate() error {
	switch {
	case b.channelRepo == nil:
		return NewConfigurationError("channelRepo", "channel repository is required")
	case b.epgChannelRepo == nil:
		return NewConfigurationError("epgChannelRepo", "EPG channel repository is required")
	case b.epgProgramRepo == nil:
		return NewConfigurationError("epgProgramRepo", "EPG programme repository is required")
	case b.sandbox == nil:
		return NewConfigurationError("sandbox", "storage sandbox is required")
	}
	return nil
}
