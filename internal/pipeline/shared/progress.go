package shared

import (
	"context"
	"maps"
	"sync"

	"github.com/chanarr/chanarr/internal/pipeline/core"
)

// StageProgress is the tracked state for one stage of a run.
type StageProgress struct {
	StageID     string
	StageName   string
	Progress    float64 // 0..1
	Message string

	Current     int
	Total       int
	CurrentItem string
}

// ProgressCallback observes every progress update as it lands.
type ProgressCallback func(stageID string, progress *StageProgress)

// ProgressManager collects per-stage progress and fans updates out to an
// optional callback. It satisfies core.ProgressReporter.
type ProgressManager struct {
	mu       sync.RWMutex
	stages   map[string]*StageProgress
	callback ProgressCallback
}

var _ core.ProgressReporter = (*ProgressManager)(nil)

func NewProgressManager(callback ProgressCallback) *ProgressManager {
	return &ProgressManager{stages: make(map[string]*StageProgress), callback: callback}
}

// stage returns the tracked entry for stageID, creating it on first use.
// Caller must hold pm.mu.
func (pm *ProgressManager) stage(stageID string) *StageProgress {
	sp := pm.stages[stageID]
	if sp == nil {
		sp = &StageProgress{StageID: stageID}
		pm.stages[stageID] = sp
	}
	return sp
}

// ReportProgress records a fractional progress update for a stage.
func (pm *ProgressManager) ReportProgress(ctx context.Context, stageID string, progress float64, message string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	sp := pm.stage(stageID)
	sp.Progress, sp.Message = progress, message
	if pm.callback != nil {
		pm.callback(stageID, sp)
	}
}

// ReportItemProgress records item-counted progress for a stage.
func (pm *ProgressManager) ReportItemProgress(ctx context.Context, stageID string, current, total int, item string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	sp := pm.stage(stageID)
	sp.Current, sp.Total, sp.CurrentItem = current, total, item
	if total > 0 {
		sp.Progress = float64(current) / float64(total)
	}
	if pm.callback != nil {
		pm.callback(stageID, sp)
	}
}

// GetProgress returns the tracked state for one stage, or nil.
func (pm *ProgressManager) GetProgress(stageID string) *StageProgress {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.stages[stageID]
}

// GetAllProgress returns a snapshot of every tracked stage.
func (pm *ProgressManager) GetAllProgress() map[string]*StageProgress {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return maps.Clone(pm.stages)
}

// Reset drops all tracked stages.
func (pm *ProgressManager) Reset() {
	pm.mu.Lock()
	pm.stages = make(map[string]*StageProgress)
	pm.mu.Unlock()
}
