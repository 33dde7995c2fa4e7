// Package progress tracks long-running operations and broadcasts updates to
// SSE subscribers.
package progress

import (
	"time"

	"github.com/chanarr/chanarr/internal/models"
)

// UniversalState describes where an operation is in its lifecycle. The same
// vocabulary is used for whole operations and for individual stages.
type UniversalState string

const (
	StateIdle        UniversalState = "idle"
	StatePreparing   UniversalState = "preparing"
	StateConnecting  UniversalState = "connecting"
	StateDownloading UniversalState = "downloading"
	StateProcessing  UniversalState = "processing"
	StateSaving      UniversalState = "saving"
	StateCleanup     UniversalState = "cleanup"
	StateCompleted   UniversalState = "completed"
	StateError       UniversalState = "error"
	StateCancelled   UniversalState = "cancelled"
)

// IsTerminal reports whether the state is final and the operation will
// receive no further updates.
func (s UniversalState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateError, StateCancelled:
		return true
	}
	return false
}

// IsActive reports whether the operation is doing work (neither idle nor
// terminal).
func (s UniversalState) IsActive() bool {
	return s != StateIdle && !s.IsTerminal()
}

// OperationType categorizes the kind of work an operation tracks.
type OperationType string

const (
	OpStreamIngestion   OperationType = "stream_ingestion"
	OpEpgIngestion      OperationType = "epg_ingestion"
	OpProxyRegeneration OperationType = "proxy_regeneration"
	OpPipeline          OperationType = "pipeline"
	OpMaintenance       OperationType = "maintenance"
)

// StageInfo tracks one stage within a multi-stage operation. Weight is the
// stage's share of overall progress; weights across an operation should sum
// to 1.0.
type StageInfo struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Weight      float64        `json:"weight"`
	State       UniversalState `json:"state"`
	Progress    float64        `json:"progress"`
	Message     string         `json:"message,omitempty"`
	Current     int            `json:"current,omitempty"`
	Total       int            `json:"total,omitempty"`
	CurrentItem string         `json:"current_item,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// UniversalProgress is the full snapshot of one tracked operation. Snapshots
// handed to subscribers are deep copies; mutating one never affects the
// service's state.
type UniversalProgress struct {
	OperationID   string         `json:"operation_id"`
	OperationType OperationType  `json:"operation_type"`
	OwnerID       models.ULID    `json:"owner_id"`
	OwnerType     string         `json:"owner_type"`
	State         UniversalState `json:"state"`
	Progress      float64        `json:"progress"`
	Message       string         `json:"message,omitempty"`
	Error         string         `json:"error,omitempty"`

	Stages            []StageInfo `json:"stages,omitempty"`
	CurrentStageIndex int         `json:"current_stage_index"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand outside the service's lock.
func (p *UniversalProgress) Clone() *UniversalProgress {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Stages != nil {
		cp.Stages = make([]StageInfo, len(p.Stages))
		copy(cp.Stages, p.Stages)
	}
	if p.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// CurrentStage returns the stage at CurrentStageIndex, or nil when no stage
// is active.
func (p *UniversalProgress) CurrentStage() *StageInfo {
	if p.CurrentStageIndex < 0 || p.CurrentStageIndex >= len(p.Stages) {
		return nil
	}
	return &p.Stages[p.CurrentStageIndex]
}

// EventType labels progress events sent to subscribers.
type EventType string

const (
	EventTypeProgress  EventType = "progress"
	EventTypeCompleted EventType = "completed"
	EventTypeError     EventType = "error"
	EventTypeCancelled EventType = "cancelled"
	EventTypeHeartbeat EventType = "heartbeat"
)

// ProgressEvent is what subscribers receive on every operation update.
type ProgressEvent struct {
	EventType EventType          `json:"event_type"`
	Progress  *UniversalProgress `json:"progress"`
	Timestamp time.Time          `json:"timestamp"`
}

// OperationFilter selects which operations a caller is interested in. A nil
// filter, or one with all fields unset, matches everything.
type OperationFilter struct {
	OperationType *OperationType
	OwnerID       *models.ULID
	ResourceID    *models.ULID
	State         *UniversalState
	ActiveOnly    bool
}

// Matches reports whether the given progress snapshot passes the filter.
func (f *OperationFilter) Matches(p *UniversalProgress) bool {
	if f == nil {
		return true
	}
	if f.OperationType != nil && p.OperationType != *f.OperationType {
		return false
	}
	if f.OwnerID != nil && p.OwnerID != *f.OwnerID {
		return false
	}
	if f.ResourceID != nil && p.OwnerID != *f.ResourceID {
		return false
	}
	if f.State != nil && p.State != *f.State {
		return false
	}
	return !f.ActiveOnly || p.State.IsActive()
}
