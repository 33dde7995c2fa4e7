// Package logs captures application log records in memory for streaming and
// statistics endpoints.
package logs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultMaxLogs caps the in-memory log ring.
	DefaultMaxLogs = 1000
	// DefaultBufferSize is the subscriber event buffer size.
	DefaultBufferSize = 100
	// HeartbeatInterval is how often SSE clients receive a keepalive.
	HeartbeatInterval = 30 * time.Second

	maxRecentErrors = 10
)

// LogEntry is one captured log record in client-facing shape.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`

	Module string `json:"module,omitempty"`
	Target string `json:"target,omitempty"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`

	Fields  map[string]interface{} `json:"fields,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// LogStats summarizes the captured log stream.
type LogStats struct {
	TotalLogs        int64            `json:"total_logs"`
	LogsByLevel      map[string]int64 `json:"logs_by_level"`
	LogsByModule     map[string]int64 `json:"logs_by_module"`
	LogRatePerMinute float64          `json:"log_rate_per_minute"`

	RecentErrors []LogEntry `json:"recent_errors"`

	OldestLogTimestamp *time.Time `json:"oldest_log_timestamp,omitempty"`
	NewestLogTimestamp *time.Time `json:"newest_log_timestamp,omitempty"`
}

// Subscriber is one client receiving live log events. Closing Done detaches
// it; the service closes Events on removal.
type Subscriber struct {
	ID     string
	Done   chan struct{}
	Events chan *LogEntry
}

// Service retains recent log entries in a fixed-size ring and broadcasts new
// entries to subscribers.
type Service struct {
	mu   sync.RWMutex
	ring []LogEntry
	next int
	full bool

	subs         map[string]*Subscriber
	total        int64
	byLevel      map[string]int64
	byModule     map[string]int64
	recentErrors []LogEntry
	since        time.Time
}

// New creates a logs service retaining up to DefaultMaxLogs entries.
func New() *Service {
	return &Service{
		ring:     make([]LogEntry, DefaultMaxLogs),
		subs:     make(map[string]*Subscriber),
		byLevel:  make(map[string]int64),
		byModule: make(map[string]int64),
		since:    time.Now(),
	}
}

// WrapHandler returns a slog.Handler that records every log into the service
// and then delegates to handler.
func (s *Service) WrapHandler(handler slog.Handler) slog.Handler {
	return &captureHandler{service: s, next: handler}
}

// AddLog records an entry, updates statistics and broadcasts it. An empty ID
// is filled in.
func (s *Service) AddLog(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}

	s.total++
	s.byLevel[entry.Level]++
	if entry.Module != "" {
		s.byModule[entry.Module]++
	}
	if entry.Level == "error" {
		s.recentErrors = append(s.recentErrors, entry)
		if len(s.recentErrors) > maxRecentErrors {
			s.recentErrors = s.recentErrors[1:]
		}
	}

	s.ring[s.next] = entry
	s.next++
	if s.next == len(s.ring) {
		s.next = 0
		s.full = true
	}

	for _, sub := range s.subs {
		select {
		case sub.Events <- &entry:
		default:
			// Full buffer; the subscriber misses this entry.
		}
	}
}

// Subscribe registers a log subscriber that is detached automatically when
// ctx is cancelled or its Done channel is closed.
func (s *Service) Subscribe(ctx context.Context) *Subscriber {
	sub := &Subscriber{
		ID:     ulid.Make().String(),
		Events: make(chan *LogEntry, DefaultBufferSize),
		Done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.subs[sub.ID] = sub
	s.mu.Unlock()

	go s.reapOnDone(ctx, sub)
	return sub
}

// reapOnDone detaches sub once ctx ends or its Done channel is closed.
func (s *Service) reapOnDone(ctx context.Context, sub *Subscriber) {
	select {
	case <-ctx.Done():
	case <-sub.Done:
	}
	s.Unsubscribe(sub.ID)
}

// Unsubscribe removes a subscriber and closes its event channel.
func (s *Service) Unsubscribe(subscriberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[subscriberID]; ok {
		close(sub.Events)
		delete(s.subs, subscriberID)
	}
}

// SubscriberCount returns the number of attached subscribers.
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// snapshotLocked returns retained entries in arrival order. Callers must
// hold s.mu.
func (s *Service) snapshotLocked() []LogEntry {
	if !s.full {
		out := make([]LogEntry, s.next)
		copy(out, s.ring[:s.next])
		return out
	}
	out := make([]LogEntry, 0, len(s.ring))
	out = append(out, s.ring[s.next:]...)
	out = append(out, s.ring[:s.next]...)
	return out
}

// GetStats returns current statistics about the captured stream.
func (s *Service) GetStats() LogStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := LogStats{
		TotalLogs:    s.total,
		LogsByLevel:  make(map[string]int64, len(s.byLevel)),
		LogsByModule: make(map[string]int64, len(s.byModule)),
		RecentErrors: make([]LogEntry, len(s.recentErrors)),
	}
	for level, count := range s.byLevel {
		stats.LogsByLevel[level] = count
	}
	for _, level := range []string{"trace", "debug", "info", "warn", "error"} {
		if _, ok := stats.LogsByLevel[level]; !ok {
			stats.LogsByLevel[level] = 0
		}
	}
	for module, count := range s.byModule {
		stats.LogsByModule[module] = count
	}
	copy(stats.RecentErrors, s.recentErrors)

	if elapsed := time.Since(s.since).Minutes(); elapsed > 0 {
		stats.LogRatePerMinute = float64(s.total) / elapsed
	}

	if entries := s.snapshotLocked(); len(entries) > 0 {
		oldest := entries[0].Timestamp
		newest := entries[len(entries)-1].Timestamp
		stats.OldestLogTimestamp = &oldest
		stats.NewestLogTimestamp = &newest
	}
	return stats
}

// GetRecentLogs returns up to limit of the most recent entries, oldest
// first. A non-positive limit returns everything retained.
func (s *Service) GetRecentLogs(limit int) []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.snapshotLocked()
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

// captureHandler tees slog records into the service before delegating.
type captureHandler struct {
	service *Service
	next    slog.Handler
	attrs   []slog.Attr
	groups  []string
}

func (h *captureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *captureHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		ID:        ulid.Make().String(),
		Timestamp: r.Time,
		Level:     levelName(r.Level),
		Message:   r.Message,
		Fields:    make(map[string]interface{}),
	}
	for _, attr := range h.attrs {
		applyAttr(&entry, attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		applyAttr(&entry, a)
		return true
	})

	h.service.AddLog(entry)
	return h.next.Handle(ctx, r)
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &captureHandler{
		service: h.service,
		next:    h.next.WithAttrs(attrs),
		attrs:   merged,
		groups:  h.groups,
	}
}

func (h *captureHandler) WithGroup(name string) slog.Handler {
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &captureHandler{
		service: h.service,
		next:    h.next.WithGroup(name),
		attrs:   h.attrs,
		groups:  groups,
	}
}

// applyAttr maps well-known attribute keys onto LogEntry fields; everything
// else lands in Fields.
func applyAttr(entry *LogEntry, attr slog.Attr) {
	value := attr.Value.Any()
	switch attr.Key {
	case "component", "module":
		if s, ok := value.(string); ok {
			entry.Module = s
			entry.Target = s
		}
	case slog.SourceKey:
		switch v := value.(type) {
		case *slog.Source:
			entry.File = v.File
			entry.Line = v.Line
		case string:
			entry.Module = v
			entry.Target = v
		}
	case "target", "logger":
		if s, ok := value.(string); ok {
			entry.Target = s
		}
	case "request_id", "correlation_id":
		if entry.Context == nil {
			entry.Context = make(map[string]interface{})
		}
		entry.Context[attr.Key] = value
	default:
		entry.Fields[attr.Key] = value
	}
}

func levelName(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "trace"
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}
