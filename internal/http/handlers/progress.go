package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/service/progress"
)

// ProgressHandler serves operation progress over REST and a live SSE feed.
type ProgressHandler struct {
	svc       *progress.Service
	heartbeat time.Duration
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(svc *progress.Service) *ProgressHandler {
	return &ProgressHandler{svc: svc, heartbeat: 30 * time.Second}
}

// SetHeartbeatInterval overrides the SSE heartbeat interval (for testing).
func (h *ProgressHandler) SetHeartbeatInterval(interval time.Duration) {
	h.heartbeat = interval
}

// ProgressResponse is the API shape of one operation. Field names are part
// of the frontend contract.
type ProgressResponse struct {
	ID                string          `json:"id"`
	OperationName     string          `json:"operation_name"`
	OperationType     string          `json:"operation_type"`
	OwnerID           string          `json:"owner_id"`
	OwnerType         string          `json:"owner_type"`
	State             string          `json:"state"`
	OverallPercentage float64         `json:"overall_percentage"`
	Error             string          `json:"error,omitempty"`
	Stages            []StageResponse `json:"stages,omitempty"`
	CurrentStage      string          `json:"current_stage"`
	StartedAt         time.Time       `json:"started_at"`
	LastUpdate        time.Time       `json:"last_update"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
}

// StageResponse is the API shape of one stage.
type StageResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	State      string  `json:"state"`
	Percentage float64 `json:"percentage"`
	StageStep  string  `json:"stage_step,omitempty"`
}

// stageResponses converts stage snapshots, turning progress fractions into
// percentages. Returns nil for an empty slice so the field is omitted.
func stageResponses(in []progress.StageInfo) []StageResponse {
	if len(in) == 0 {
		return nil
	}
	out := make([]StageResponse, len(in))
	for i, s := range in {
		out[i] = StageResponse{
			ID: s.ID, Name: s.Name, State: string(s.State),
			Percentage: s.Progress * 100, StageStep: s.Message,
		}
	}
	return out
}

// ProgressFromService converts a service snapshot to the API shape.
// Progress fractions become percentages.
func ProgressFromService(p *progress.UniversalProgress) ProgressResponse {
	resp := ProgressResponse{
		ID: p.OperationID, OperationName: p.Message,
		OperationType: string(p.OperationType),
		OwnerID:       p.OwnerID.String(), OwnerType: p.OwnerType,
		State:             string(p.State),
		OverallPercentage: p.Progress * 100,
		Error:             p.Error,
		Stages:            stageResponses(p.Stages),
		StartedAt:         p.StartedAt, LastUpdate: p.UpdatedAt,
		CompletedAt: p.CompletedAt, Metadata: p.Metadata,
	}
	if resp.OperationName == "" {
		resp.OperationName = string(p.OperationType)
	}
	if stage := p.CurrentStage(); stage != nil {
		resp.CurrentStage = stage.ID
	}
	return resp
}

// ListOperationsInput carries the list query filters.
type ListOperationsInput struct {
	OperationType string `query:"operation_type" doc:"Filter by operation type"`
	OwnerID       string `query:"owner_id" doc:"Filter by owner ID"`
	ResourceID    string `query:"resource_id" doc:"Filter by resource ID"`

	State      string `query:"state" doc:"Filter by state"`
	ActiveOnly bool   `query:"active_only" doc:"Only return active operations"`
}

// ListOperationsBody wraps the returned operations.
type ListOperationsBody struct {
	Operations []ProgressResponse `json:"operations"`
}

// ListOperationsOutput is the list response.
type ListOperationsOutput struct {
	Body ListOperationsBody
}

// GetOperationInput identifies one operation by ID.
type GetOperationInput struct {
	OperationID string `path:"operation_id" doc:"Operation ID"`
}

// GetOperationBody aliases the shared progress shape.
type GetOperationBody = ProgressResponse

// GetOperationOutput is the single-operation response.
type GetOperationOutput struct {
	Body GetOperationBody
}

// SSEEventsInput documents the event stream's query parameters. state and
// active_only are left out on purpose: dropping matching events would hide
// the terminal event a client waits on.
type SSEEventsInput struct {
	OperationType string `query:"operation_type" doc:"Only stream events with this operation type"`
	OwnerID       string `query:"owner_id" doc:"Only stream events from this owner"`
	ResourceID    string `query:"resource_id" doc:"Only stream events for this resource"`
}

// Register registers the progress REST routes with the API.
func (h *ProgressHandler) Register(api huma.API) {
	const tag = "Progress"

	huma.Register(api, operation("listOperations", http.MethodGet,
		"/api/v1/progress/operations", "List operations",
		"Returns current and recently finished progress operations", tag),
		h.ListOperations)

	huma.Register(api, operation("getOperation", http.MethodGet,
		"/api/v1/progress/operations/{operation_id}", "Get operation",
		"Returns details for a single progress operation", tag),
		h.GetOperation)
}

// RegisterSSE mounts the SSE endpoint on a chi-style router. SSE streaming
// bypasses huma, which has no native support for it.
func (h *ProgressHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/progress/events", h.HandleSSEEvents)
}

// buildFilter assembles an OperationFilter from string query values.
// Unparseable ULIDs are ignored rather than rejected.
func buildFilter(opType, ownerID, resourceID, state string, activeOnly bool) *progress.OperationFilter {
	filter := &progress.OperationFilter{ActiveOnly: activeOnly}
	if opType != "" {
		t := progress.OperationType(opType)
		filter.OperationType = &t
	}
	if id, err := models.ParseULID(ownerID); ownerID != "" && err == nil {
		filter.OwnerID = &id
	}
	if id, err := models.ParseULID(resourceID); resourceID != "" && err == nil {
		filter.ResourceID = &id
	}
	if state != "" {
		s := progress.UniversalState(state)
		filter.State = &s
	}
	return filter
}

// ListOperations returns operations matching the query filters.
func (h *ProgressHandler) ListOperations(ctx context.Context, input *ListOperationsInput) (*ListOperationsOutput, error) {
	filter := buildFilter(input.OperationType, input.OwnerID, input.ResourceID, input.State, input.ActiveOnly)

	ops := h.svc.ListOperations(filter)
	body := ListOperationsBody{Operations: make([]ProgressResponse, 0, len(ops))}
	for _, op := range ops {
		body.Operations = append(body.Operations, ProgressFromService(op))
	}
	return &ListOperationsOutput{Body: body}, nil
}

// GetOperation returns details for a specific operation.
func (h *ProgressHandler) GetOperation(ctx context.Context, input *GetOperationInput) (*GetOperationOutput, error) {
	op, err := h.svc.GetOperation(input.OperationID)
	if err != nil {
		return nil, huma.Error404NotFound("operation not found")
	}
	return &GetOperationOutput{Body: ProgressFromService(op)}, nil
}

// HandleSSEEvents streams progress events to the client until it
// disconnects. Heartbeat comments keep idle connections alive through
// proxies.
func (h *ProgressHandler) HandleSSEEvents(w http.ResponseWriter, r *http.Request) {
	sseHeaders(w)

	q := r.URL.Query()
	// State and active_only are never applied here; see SSEEventsInput.
	filter := buildFilter(q.Get("operation_type"), q.Get("owner_id"), q.Get("resource_id"), "", false)

	sub := h.svc.Subscribe(filter)
	defer h.svc.Unsubscribe(sub.ID)

	rc := http.NewResponseController(w)

	// An initial comment makes the browser fire onopen immediately.
	if err := sseComment(w, rc, "connected"); err != nil {
		slog.Error("failed to flush initial SSE comment", "error", err)
		return
	}

	tick := time.NewTicker(h.heartbeat)
	defer tick.Stop()

	ctx := r.Context()
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
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				slog.Error("failed to write SSE event", "event_type", ev.EventType,
					"operation_id", ev.Progress.OperationID, "error", err)
				return
			}
			if rc.Flush() != nil {
				slog.Debug("event flush failed, client gone", "event_type", ev.EventType)
				return
			}
		}
	}
}

// writeSSEEvent writes one event in SSE wire format as a single Write call.
func writeSSEEvent(w http.ResponseWriter, ev *progress.ProgressEvent) error {
	data, err := json.Marshal(ProgressFromService(ev.Progress))
	if err != nil {
		fmt.Fprintf(w, "event: %s\ndata: {\"error\": \"marshal error\"}\n\n", ev.EventType)
		return err
	}

	message := fmt.Appendf(nil, "event: %s\ndata: %s\n\n", ev.EventType, data)
	n, err := w.Write(message)
	if err != nil {
		return err
	}
	if n < len(message) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(message))
	}
	return nil
}
