package ingestor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chanarr/chanarr/internal/models"
)

// Ingestion status values.
const (
	statusIngesting = "ingesting"
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusCancelled = "cancelled"
)

// Finished states linger this long so status checks can still observe them.
const stateRetention = 5 * time.Second

// IngestionState is a point-in-time snapshot of one ingestion.
type IngestionState struct {
	SourceID               models.ULID
	SourceName, Status     string
	StartedAt, LastUpdated time.Time
	Processed, Errors      int
	Error                  error
}

// StateManager tracks in-flight ingestions keyed by source ID.
type StateManager struct {
	mu   sync.RWMutex
	byID map[models.ULID]*IngestionState
}

// NewStateManager returns an empty state manager.
func NewStateManager() *StateManager {
	return &StateManager{byID: make(map[models.ULID]*IngestionState)}
}

// Start begins tracking an ingestion for a stream source.
func (m *StateManager) Start(source *models.StreamSource) error {
	return m.StartWithID(source.ID, source.Name)
}

// StartWithID begins tracking with just an ID and name, for EPG sources
// and other entities without a StreamSource record.
func (m *StateManager) StartWithID(id models.ULID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[id]; exists {
		return fmt.Errorf("ingestion already in progress for source %s", id)
	}
	now := time.Now()
	m.byID[id] = &IngestionState{
		SourceID: id, SourceName: name,
		StartedAt: now, LastUpdated: now,
		Status: statusIngesting,
	}
	return nil
}

// apply mutates the tracked state for id, if any, and bumps LastUpdated.
func (m *StateManager) apply(id models.ULID, fn func(*IngestionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, exists := m.byID[id]; exists {
		fn(st)
		st.LastUpdated = time.Now()
	}
}

// expire drops the state entry after the retention window.
func (m *StateManager) expire(id models.ULID) {
	go func() {
		time.Sleep(stateRetention)
		m.mu.Lock()
		delete(m.byID, id)
		m.mu.Unlock()
	}()
}

// UpdateProgress updates the progress of an ingestion.
func (m *StateManager) UpdateProgress(sourceID models.ULID, processed, errors int) {
	m.apply(sourceID, func(st *IngestionState) {
		st.Processed = processed
		st.Errors = errors
	})
}

// Complete marks an ingestion as completed successfully.
func (m *StateManager) Complete(sourceID models.ULID, processed int) {
	m.apply(sourceID, func(st *IngestionState) {
		st.Status = statusCompleted
		st.Processed = processed
	})
	m.expire(sourceID)
}

// Fail marks an ingestion as failed.
func (m *StateManager) Fail(sourceID models.ULID, err error) {
	m.apply(sourceID, func(st *IngestionState) {
		st.Status = statusFailed
		st.Error = err
	})
	m.expire(sourceID)
}

// Cancel marks an ingestion as cancelled and drops it immediately.
func (m *StateManager) Cancel(sourceID models.ULID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, exists := m.byID[sourceID]; exists {
		st.Status = statusCancelled
		st.LastUpdated = time.Now()
	}
	delete(m.byID, sourceID)
}

// GetState returns a copy of the state of an ingestion.
func (m *StateManager) GetState(sourceID models.ULID) (*IngestionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, exists := m.byID[sourceID]
	if !exists {
		return nil, false
	}
	snapshot := *st
	return &snapshot, true
}

// IsIngesting reports whether an ingestion is in progress for the source.
func (m *StateManager) IsIngesting(sourceID models.ULID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, exists := m.byID[sourceID]
	return exists && st.Status == statusIngesting
}

// IsAnyIngesting returns true if any ingestion is currently in progress.
func (m *StateManager) IsAnyIngesting() bool {
	return m.ActiveIngestionCount() > 0
}

// ActiveIngestionCount returns the number of active ingestions.
func (m *StateManager) ActiveIngestionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, st := range m.byID {
		if st.Status == statusIngesting {
			n++
		}
	}
	return n
}

// ActiveSourceNames returns the names of sources currently ingesting.
func (m *StateManager) ActiveSourceNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for _, st := range m.byID {
		if st.Status == statusIngesting {
			names = append(names, st.SourceName)
		}
	}
	return names
}

// GetAllStates returns copies of all current ingestion states.
func (m *StateManager) GetAllStates() []*IngestionState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*IngestionState, 0, len(m.byID))
	for _, st := range m.byID {
		snapshot := *st
		all = append(all, &snapshot)
	}
	return all
}

// WaitForCompletion polls until an ingestion finishes or ctx is cancelled.
func (m *StateManager) WaitForCompletion(ctx context.Context, sourceID models.ULID) error {
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
		st, exists := m.GetState(sourceID)
		switch {
		case !exists:
			// Finished and already swept away
			return nil
		case st.Status != statusIngesting:
			return st.Error
		}
	}
}
