package progress

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chanarr/chanarr/internal/models"
)

var (
	// ErrOperationExists is returned when the owner already has an active
	// operation; a new one may not start until it finishes.
	ErrOperationExists = errors.New("operation already exists for owner")
	// ErrOperationNotFound is returned for lookups of unknown operation IDs.
	ErrOperationNotFound = errors.New("operation not found")
)

const (
	subscriberBuffer = 100
	staleAfter       = 5 * time.Minute
	sweepEvery       = time.Minute
)

// Subscriber receives progress events matching its filter. Events is
// buffered; a subscriber that stops draining it misses events rather than
// blocking the service.
type Subscriber struct {
	ID     string
	Filter *OperationFilter

	Events chan *ProgressEvent // buffered
}

// Service tracks every in-flight operation and fans updates out to
// subscribers. Terminal operations are kept around briefly so late readers
// can still observe the outcome, then swept.
type Service struct {
	mu      sync.RWMutex
	ops     map[string]*UniversalProgress
	byOwner map[string]string
	subs    map[string]*Subscriber

	logger    *slog.Logger
	sweeper   *time.Ticker
	stopSweep chan struct{}
}

// NewService creates a progress service. Call Start to begin sweeping
// finished operations.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		ops:       make(map[string]*UniversalProgress),
		byOwner:   make(map[string]string),
		subs:      make(map[string]*Subscriber),
		logger:    logger.With("component", "progress_service"),
		stopSweep: make(chan struct{}),
	}
}

// Start launches the background sweep of stale terminal operations.
func (s *Service) Start() {
	s.sweeper = time.NewTicker(sweepEvery)
	go func() {
		for {
			select {
			case <-s.sweeper.C:
				s.sweepStale()
			case <-s.stopSweep:
				return
			}
		}
	}()
	s.logger.Info("progress service started")
}

// Stop halts the sweeper goroutine.
func (s *Service) Stop() {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	close(s.stopSweep)
	s.logger.Info("progress service stopped")
}

func ownerKey(ownerType string, ownerID models.ULID) string {
	return ownerType + ":" + ownerID.String()
}

// StartOperation registers a new operation for the given owner. Only one
// active operation per owner is allowed; a second attempt returns
// ErrOperationExists. The provided stages start idle with zero progress.
func (s *Service) StartOperation(opType OperationType, ownerID models.ULID, ownerType string, stages []StageInfo) (*OperationManager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey(ownerType, ownerID)
	if existingID, ok := s.byOwner[key]; ok {
		if existing, ok := s.ops[existingID]; ok && !existing.State.IsTerminal() {
			return nil, ErrOperationExists
		}
		// The previous operation finished; replace its owner mapping.
		delete(s.byOwner, key)
	}

	now := time.Now()
	opID := ulid.Make().String()

	initStages := make([]StageInfo, len(stages))
	copy(initStages, stages)
	for i := range initStages {
		initStages[i].State = StateIdle
		initStages[i].Progress = 0
	}

	prog := &UniversalProgress{
		OperationID:       opID,
		OperationType:     opType,
		OwnerID:           ownerID,
		OwnerType:         ownerType,
		State:             StatePreparing,
		Message:           "Starting operation",
		Stages:            initStages,
		CurrentStageIndex: -1,
		Metadata:          make(map[string]interface{}),
		StartedAt:         now,
		UpdatedAt:         now,
	}

	s.ops[opID] = prog
	s.byOwner[key] = opID
	s.broadcastLocked(prog)

	s.logger.Info("operation started",
		"operation_id", opID,
		"operation_type", opType,
		"owner_type", ownerType,
		"owner_id", ownerID.String())

	return &OperationManager{svc: s, opID: opID}, nil
}

// GetOperation returns a snapshot of the operation with the given ID.
func (s *Service) GetOperation(operationID string) (*UniversalProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prog, ok := s.ops[operationID]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return prog.Clone(), nil
}

// GetOperationByOwner returns a snapshot of the owner's current operation.
func (s *Service) GetOperationByOwner(ownerType string, ownerID models.ULID) (*UniversalProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opID, ok := s.byOwner[ownerKey(ownerType, ownerID)]
	if !ok {
		return nil, ErrOperationNotFound
	}
	prog, ok := s.ops[opID]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return prog.Clone(), nil
}

// ListOperations returns snapshots of all operations matching the filter,
// which may be nil to list everything.
func (s *Service) ListOperations(filter *OperationFilter) []*UniversalProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*UniversalProgress
	for _, prog := range s.ops {
		if filter.Matches(prog) {
			out = append(out, prog.Clone())
		}
	}
	return out
}

// Subscribe registers a new subscriber for progress events. The returned
// Subscriber's Events channel stays open until Unsubscribe is called with
// its ID.
func (s *Service) Subscribe(filter *OperationFilter) *Subscriber {
	sub := &Subscriber{
		ID:     ulid.Make().String(),
		Filter: filter,
		Events: make(chan *ProgressEvent, subscriberBuffer),
	}
	s.mu.Lock()
	s.subs[sub.ID] = sub
	s.mu.Unlock()
	s.logger.Debug("subscriber added", "subscriber_id", sub.ID)
	return sub
}

// Unsubscribe removes the subscriber and closes its event channel.
func (s *Service) Unsubscribe(subscriberID string) {
	s.mu.Lock()
	sub, ok := s.subs[subscriberID]
	if ok {
		delete(s.subs, subscriberID)
	}
	s.mu.Unlock()
	if ok {
		close(sub.Events)
		s.logger.Debug("subscriber removed", "subscriber_id", subscriberID)
	}
}

// updateOperation applies fn to the identified operation under the lock,
// refreshes UpdatedAt and broadcasts the new snapshot.
func (s *Service) updateOperation(operationID string, fn func(*UniversalProgress)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prog, ok := s.ops[operationID]
	if !ok {
		return ErrOperationNotFound
	}
	fn(prog)
	prog.UpdatedAt = time.Now()
	s.broadcastLocked(prog)
	return nil
}

func eventTypeForState(state UniversalState) EventType {
	switch state {
	case StateCompleted:
		return EventTypeCompleted
	case StateError:
		return EventTypeError
	case StateCancelled:
		return EventTypeCancelled
	}
	return EventTypeProgress
}

// broadcastLocked sends the current snapshot to every matching subscriber.
// Callers must hold s.mu. Sends never block; a full subscriber drops the
// event.
func (s *Service) broadcastLocked(prog *UniversalProgress) {
	event := &ProgressEvent{
		EventType: eventTypeForState(prog.State),
		Progress:  prog.Clone(),
		Timestamp: time.Now(),
	}
	for _, sub := range s.subs {
		if !sub.Filter.Matches(prog) {
			continue
		}
		select {
		case sub.Events <- event:
		default:
			s.logger.Warn("subscriber channel full, dropping event",
				"subscriber_id", sub.ID,
				"operation_id", prog.OperationID)
		}
	}
}

// sweepStale removes terminal operations whose completion is older than
// staleAfter.
func (s *Service) sweepStale() {
	cutoff := time.Now().Add(-staleAfter)
	s.mu.Lock()
	defer s.mu.Unlock()
	for opID, prog := range s.ops {
		if !prog.State.IsTerminal() || prog.CompletedAt == nil || prog.CompletedAt.After(cutoff) {
			continue
		}
		delete(s.ops, opID)
		key := ownerKey(prog.OwnerType, prog.OwnerID)
		if s.byOwner[key] == opID {
			delete(s.byOwner, key)
		}
		s.logger.Debug("stale operation removed", "operation_id", opID)
	}
}

// OperationManager mutates a single operation. It is handed to the code
// performing the work; all methods are safe for concurrent use.
type OperationManager struct {
	svc  *Service
	opID string
}

// OperationID returns the ID of the managed operation.
func (m *OperationManager) OperationID() string {
	return m.opID
}

// SetMessage updates the operation's status message.
func (m *OperationManager) SetMessage(message string) {
	m.update(func(p *UniversalProgress) {
		p.Message = message
	})
}

// SetState moves the operation to the given state.
func (m *OperationManager) SetState(state UniversalState) {
	m.update(func(p *UniversalProgress) {
		p.State = state
	})
}

// SetMetadata stores an arbitrary key/value on the operation.
func (m *OperationManager) SetMetadata(key string, value interface{}) {
	m.update(func(p *UniversalProgress) {
		if p.Metadata == nil {
			p.Metadata = make(map[string]interface{})
		}
		p.Metadata[key] = value
	})
}

// Complete marks the operation finished. Any stage still running is
// completed as well and overall progress snaps to 1.
func (m *OperationManager) Complete(message string) {
	now := time.Now()
	m.update(func(p *UniversalProgress) {
		p.State = StateCompleted
		p.Progress = 1
		p.Message = message
		p.CompletedAt = &now
		for i := range p.Stages {
			if !p.Stages[i].State.IsTerminal() {
				p.Stages[i].State = StateCompleted
				p.Stages[i].Progress = 1
				if p.Stages[i].CompletedAt == nil {
					p.Stages[i].CompletedAt = &now
				}
			}
		}
	})
}

// Fail marks the operation failed with the given error.
func (m *OperationManager) Fail(err error) {
	now := time.Now()
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	m.update(func(p *UniversalProgress) {
		p.State = StateError
		p.Error = errMsg
		p.CompletedAt = &now
		if stage := p.CurrentStage(); stage != nil && !stage.State.IsTerminal() {
			stage.State = StateError
			stage.Message = errMsg
			stage.CompletedAt = &now
		}
	})
}

// Cancel marks the operation cancelled.
func (m *OperationManager) Cancel() {
	now := time.Now()
	m.update(func(p *UniversalProgress) {
		p.State = StateCancelled
		p.CompletedAt = &now
		if stage := p.CurrentStage(); stage != nil && !stage.State.IsTerminal() {
			stage.State = StateCancelled
			stage.CompletedAt = &now
		}
	})
}

// StartStage activates the stage with the given ID and returns an updater
// scoped to it. Returns nil if the operation or stage no longer exists.
func (m *OperationManager) StartStage(stageID string) *StageUpdater {
	found := false
	err := m.update(func(p *UniversalProgress) {
		if i := stageIndex(p.Stages, stageID); i >= 0 {
			found = true
			activateStage(p, i)
		}
	})
	if err != nil || !found {
		return nil
	}
	return &StageUpdater{manager: m, stageID: stageID}
}

// ReportProgress implements core.ProgressReporter. Unknown stage IDs are
// ignored; a stage reported on for the first time becomes the current stage.
func (m *OperationManager) ReportProgress(ctx context.Context, stageID string, progress float64, message string) {
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}
	m.update(func(p *UniversalProgress) {
		i := stageIndex(p.Stages, stageID)
		if i < 0 {
			return
		}
		activateStage(p, i)
		p.Stages[i].Progress = progress
		if message != "" {
			p.Stages[i].Message = message
			p.Message = message
		}
		p.Progress = weightedProgress(p.Stages)
	})
}

// ReportItemProgress implements core.ProgressReporter item counting.
func (m *OperationManager) ReportItemProgress(ctx context.Context, stageID string, current, total int, item string) {
	m.update(func(p *UniversalProgress) {
		i := stageIndex(p.Stages, stageID)
		if i < 0 {
			return
		}
		activateStage(p, i)
		stage := &p.Stages[i]
		stage.Current = current
		stage.Total = total
		stage.CurrentItem = item
		if total > 0 {
			stage.Progress = float64(current) / float64(total)
		}
		p.Progress = weightedProgress(p.Stages)
	})
}

func stageIndex(stages []StageInfo, stageID string) int {
	for i := range stages {
		if stages[i].ID == stageID {
			return i
		}
	}
	return -1
}

// activateStage makes the stage at index i current, starting it if it is
// still idle. Terminal operation states are left alone.
func activateStage(p *UniversalProgress, i int) {
	if p.Stages[i].State == StateIdle {
		now := time.Now()
		p.Stages[i].State = StateProcessing
		p.Stages[i].StartedAt = &now
	}
	p.CurrentStageIndex = i
	if !p.State.IsTerminal() {
		p.State = StateProcessing
	}
}

func (m *OperationManager) update(fn func(*UniversalProgress)) error {
	return m.svc.updateOperation(m.opID, fn)
}

// updateStage applies fn to the named stage and recomputes overall
// progress, all inside one update (and one broadcast).
func (m *OperationManager) updateStage(stageID string, fn func(*StageInfo)) {
	m.update(func(p *UniversalProgress) {
		for i := range p.Stages {
			if p.Stages[i].ID != stageID {
				continue
			}
			fn(&p.Stages[i])
			p.Progress = weightedProgress(p.Stages)
			return
		}
	})
}

// weightedProgress sums stage progress by weight. Stages without explicit
// weights share the remainder evenly.
func weightedProgress(stages []StageInfo) float64 {
	if len(stages) == 0 {
		return 0
	}
	var sum, totalWeight float64
	for i := range stages {
		w := stages[i].Weight
		if w <= 0 {
			w = 1.0 / float64(len(stages))
		}
		sum += w * stages[i].Progress
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return sum / totalWeight
}

// StageUpdater mutates one stage of an operation.
type StageUpdater struct {
	manager *OperationManager
	stageID string
}

// SetProgress updates the stage's fractional progress (clamped to [0, 1])
// and optional message.
func (u *StageUpdater) SetProgress(progress float64, message string) {
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}
	u.manager.updateStage(u.stageID, func(stage *StageInfo) {
		stage.Progress = progress
		if message != "" {
			stage.Message = message
		}
	})
}

// SetItemProgress updates the stage's item counters; progress is derived
// from current/total when total is positive.
func (u *StageUpdater) SetItemProgress(current, total int, itemName string) {
	u.manager.updateStage(u.stageID, func(stage *StageInfo) {
		stage.Current = current
		stage.Total = total
		stage.CurrentItem = itemName
		if total > 0 {
			stage.Progress = float64(current) / float64(total)
		}
	})
}

// Complete marks the stage finished with full progress.
func (u *StageUpdater) Complete() {
	now := time.Now()
	u.manager.updateStage(u.stageID, func(stage *StageInfo) {
		stage.State = StateCompleted
		stage.Progress = 1
		stage.CompletedAt = &now
	})
}

// Fail marks the stage failed.
func (u *StageUpdater) Fail(err error) {
	now := time.Now()
	u.manager.updateStage(u.stageID, func(stage *StageInfo) {
		stage.State = StateError
		if err != nil {
			stage.Message = err.Error()
		}
		stage.CompletedAt = &now
	})
}
