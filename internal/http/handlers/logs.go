package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/chanarr/chanarr/internal/service/logs"
)

// LogsHandler exposes captured logs over REST and SSE.
type LogsHandler struct {
	svc       *logs.Service
	heartbeat time.Duration
}

// NewLogsHandler creates a new logs handler.
func NewLogsHandler(svc *logs.Service) *LogsHandler {
	return &LogsHandler{svc: svc, heartbeat: logs.HeartbeatInterval}
}

// LogEntryResponse is the API shape of one log entry. Field names are part
// of the frontend contract.
type LogEntryResponse struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`

	Module string `json:"module,omitempty"`
	Target string `json:"target,omitempty"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`

	Fields  map[string]any `json:"fields,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// LogStatsResponse is the API shape of log statistics.
type LogStatsResponse struct {
	TotalLogs        int64            `json:"total_logs"`
	LogsByLevel      map[string]int64 `json:"logs_by_level"`
	LogsByModule     map[string]int64 `json:"logs_by_module"`
	LogRatePerMinute float64          `json:"log_rate_per_minute"`

	RecentErrors []LogEntryResponse `json:"recent_errors"`

	OldestLogTimestamp *time.Time `json:"oldest_log_timestamp,omitempty"`
	NewestLogTimestamp *time.Time `json:"newest_log_timestamp,omitempty"`
}

// LogLogEvent names the SSE event payload for huma's OpenAPI schema.
type LogLogEvent LogEntryResponse

// SSELogsStreamInput defines query parameters for the logs SSE endpoint.
type SSELogsStreamInput struct {
	Level   string `query:"level" doc:"Only stream entries with this level (trace, debug, info, warn, error)"`
	Module  string `query:"module" doc:"Only stream entries from this module"`
	Initial int    `query:"initial" default:"50" minimum:"0" maximum:"500" doc:"Number of recent logs to send on connect (0-500)"`
}

// LogEntryFromService converts a service log entry to the API shape.
func LogEntryFromService(e logs.LogEntry) LogEntryResponse {
	return LogEntryResponse{
		ID: e.ID, Timestamp: e.Timestamp, Level: e.Level, Message: e.Message,
		Module: e.Module, Target: e.Target, File: e.File, Line: e.Line,
		Fields: e.Fields, Context: e.Context,
	}
}

// LogStatsFromService converts service statistics to the API shape.
func LogStatsFromService(stats logs.LogStats) LogStatsResponse {
	recent := make([]LogEntryResponse, len(stats.RecentErrors))
	for i, entry := range stats.RecentErrors {
		recent[i] = LogEntryFromService(entry)
	}
	return LogStatsResponse{
		TotalLogs: stats.TotalLogs, LogsByLevel: stats.LogsByLevel,
		LogsByModule: stats.LogsByModule, RecentErrors: recent,
		LogRatePerMinute:   stats.LogRatePerMinute,
		OldestLogTimestamp: stats.OldestLogTimestamp,
		NewestLogTimestamp: stats.NewestLogTimestamp,
	}
}

// GetLogStatsInput carries no parameters.
type GetLogStatsInput struct{}

// GetLogStatsOutput wraps the statistics response body.
type GetLogStatsOutput struct {
	Body LogStatsResponse
}

// GetRecentLogsInput bounds how many recent entries to return.
type GetRecentLogsInput struct {
	Limit int `query:"limit" default:"100" doc:"Maximum number of logs to return (1-1000)"`
}

// GetRecentLogsBody lists recent entries, newest last.
type GetRecentLogsBody struct {
	Logs []LogEntryResponse `json:"logs"`
}

// GetRecentLogsOutput wraps the recent-logs response body.
type GetRecentLogsOutput struct {
	Body GetRecentLogsBody
}

// Register mounts the logs routes on the API.
func (h *LogsHandler) Register(api huma.API) {
	const tag = "Logs"

	huma.Register(api, operation("getLogStats", http.MethodGet, "/api/v1/logs/stats",
		"Get log statistics", "Returns log stream statistics including counts by level and module", tag), h.GetStats)
	huma.Register(api, operation("getRecentLogs", http.MethodGet, "/api/v1/logs/recent",
		"Get recent logs", "Returns the most recent log entries", tag), h.GetRecentLogs)

	// Registered with huma only so the stream appears in the OpenAPI spec;
	// the live handler mounted by RegisterSSE takes precedence on the router.
	streamOp := operation("logsStream", http.MethodGet, "/api/v1/logs/stream",
		"Subscribe to log events", `Server-Sent Events stream for real-time log entries.

## Connection Protocol
- On connect: receives `+"`"+`:connected`+"`"+` comment
- On connect with `+"`"+`initial=N`+"`"+`: receives up to N recent log entries before live streaming
- Every 30s without events: receives `+"`"+`:heartbeat <unix_epoch>`+"`"+` comment (Unix timestamp in seconds)

## Event Type
- `+"`"+`log`+"`"+`: A log entry

## Usage Example
`+"```"+`javascript
const eventSource = new EventSource('/api/v1/logs/stream?level=error&initial=100');
eventSource.addEventListener('log', (e) => console.log(JSON.parse(e.data)));
`+"```", tag)
	sse.Register(api, streamOp, map[string]any{
		"log": LogLogEvent{},
	}, func(ctx context.Context, input *SSELogsStreamInput, send sse.Sender) {
		<-ctx.Done()
	})
}

// RegisterSSE mounts the live stream on a chi-style router. Streaming
// bypasses huma, which has no native SSE support.
func (h *LogsHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
},
) {
	router.Get("/api/v1/logs/stream", h.handleSSEStream)
}

// GetStats returns current log statistics.
func (h *LogsHandler) GetStats(ctx context.Context, input *GetLogStatsInput) (*GetLogStatsOutput, error) {
	return &GetLogStatsOutput{Body: LogStatsFromService(h.svc.GetStats())}, nil
}

// GetRecentLogs returns the most recent log entries.
func (h *LogsHandler) GetRecentLogs(ctx context.Context, input *GetRecentLogsInput) (*GetRecentLogsOutput, error) {
	limit := min(max(input.Limit, 1), 1000)
	if input.Limit <= 0 {
		limit = 100
	}

	entries := h.svc.GetRecentLogs(limit)
	body := GetRecentLogsBody{Logs: make([]LogEntryResponse, len(entries))}
	for i, entry := range entries {
		body.Logs[i] = LogEntryFromService(entry)
	}
	return &GetRecentLogsOutput{Body: body}, nil
}

// logStreamFilter holds the per-connection stream filters.
type logStreamFilter struct {
	level  string
	module string
}

func (f logStreamFilter) matches(entry logs.LogEntry) bool {
	levelOK := f.level == "" || entry.Level == f.level
	moduleOK := f.module == "" || entry.Module == f.module
	return levelOK && moduleOK
}

// sseComment writes an SSE comment line and flushes it.
func sseComment(w http.ResponseWriter, rc *http.ResponseController, comment string) error {
	fmt.Fprintf(w, ":%s\n\n", comment)
	return rc.Flush()
}

// sseHeaders prepares a response for Server-Sent Events streaming.
func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cache-Control")
	w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// handleSSEStream streams captured log entries until the client disconnects.
func (h *LogsHandler) handleSSEStream(w http.ResponseWriter, r *http.Request) {
	sseHeaders(w)

	query := r.URL.Query()
	filter := logStreamFilter{level: query.Get("level"), module: query.Get("module")}

	initial := 50
	if s := query.Get("initial"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 500 {
			initial = n
		}
	}

	sub := h.svc.Subscribe(r.Context())
	rc := http.NewResponseController(w)

	// An initial comment makes the browser fire onopen immediately.
	if err := sseComment(w, rc, "connected"); err != nil {
		slog.Error("failed to flush initial SSE comment", "error", err)
		return
	}

	// Replay recent history before going live.
	if initial > 0 {
		for _, e := range h.svc.GetRecentLogs(initial) {
			if filter.matches(e) {
				if err := writeLogSSEEvent(w, e); err != nil {
					slog.Error("failed to write initial log event", "error", err)
					return
				}
			}
		}
		err := rc.Flush()
		if err != nil {
			slog.Error("failed to flush replayed logs", "error", err)
			return
		}
	}

	ctx := r.Context()
	tick := time.NewTicker(h.heartbeat)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			beat := fmt.Sprintf("heartbeat %d", time.Now().Unix())
			if err := sseComment(w, rc, beat); err != nil {
				slog.Debug("heartbeat flush failed, client disconnected", "error", err)
				return
			}
		case e, ok := <-sub.Events:
			switch {
			case !ok:
				return
			case !filter.matches(*e):
				continue
			}
			if err := writeLogSSEEvent(w, *e); err != nil {
				slog.Error("failed to write SSE log event", "level", e.Level, "error", err)
				return
			}
			if rc.Flush() != nil {
				slog.Debug("event flush failed, client gone")
				return
			}
		}
	}
}

// writeLogSSEEvent emits one log entry in SSE wire format, issuing a
// single Write call.
func writeLogSSEEvent(w http.ResponseWriter, entry logs.LogEntry) error {
	data, err := json.Marshal(LogEntryFromService(entry))
	if err != nil {
		fmt.Fprintf(w, "event: log\ndata: {\"error\": \"marshal error\"}\n\n")
		return err
	}

	message := fmt.Appendf(nil, "event: log\ndata: %s\n\n", data)
	n, err := w.Write(message)
	if err != nil {
		return err
	}
	if n < len(message) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(message))
	}
	return nil
}
