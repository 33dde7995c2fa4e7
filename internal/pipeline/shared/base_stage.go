package shared

import (
	"context"

	"github.com/chanarr/chanarr/internal/pipeline/core"
)

// BaseStage carries the identity every stage shares. Embed it to satisfy
// the ID, Name and Cleanup parts of core.Stage.
type BaseStage struct {
	id, name string
}

// NewBaseStage creates a BaseStage with the given identity.
func NewBaseStage(id, name string) BaseStage {
	return BaseStage{id: id, name: name}
}

// ID returns the stage identifier.
func (b *BaseStage) ID() string { return b.id }

// Name returns the human-readable stage name.
func (b *BaseStage) Name() string { return b.name }

// Cleanup is a no-op; stages holding resources override it.
func (b *BaseStage) Cleanup(ctx context.Context) error { return nil }

// NewResult creates an empty StageResult ready for stages to fill in.
func NewResult() *core.StageResult {
	return &core.StageResult{Artifacts: make([]core.Artifact, 0)}
}
