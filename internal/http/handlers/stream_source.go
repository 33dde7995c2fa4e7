package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/service"
	"gorm.io/gorm"
)

// ScheduleSyncer is notified when cron schedules change via the API so the
// scheduler can pick up changes without waiting for its sync interval.
type ScheduleSyncer interface {
	// ForceSync triggers an immediate sync of schedules from the database.
	ForceSync(ctx context.Context) error
}

// ProxyUsageChecker reports which proxies reference a source.
type ProxyUsageChecker interface {
	// GetProxyNamesBySourceID returns names of proxies using a stream source.
	GetProxyNamesBySourceID(ctx context.Context, sourceID models.ULID) ([]string, error)
	// GetProxyNamesByEpgSourceID returns names of proxies using an EPG source.
	GetProxyNamesByEpgSourceID(ctx context.Context, epgSourceID models.ULID) ([]string, error)
}

// StreamSourceHandler handles stream source API endpoints.
type StreamSourceHandler struct {
	sources  *service.SourceService
	syncer   ScheduleSyncer
	proxyUse ProxyUsageChecker
}

// NewStreamSourceHandler creates a new stream source handler.
func NewStreamSourceHandler(sourceService *service.SourceService) *StreamSourceHandler {
	return &StreamSourceHandler{sources: sourceService}
}

// WithScheduleSyncer sets the schedule syncer for immediate schedule updates.
func (h *StreamSourceHandler) WithScheduleSyncer(syncer ScheduleSyncer) *StreamSourceHandler {
	h.syncer = syncer
	return h
}

// WithProxyUsageChecker sets the proxy usage checker for delete validation.
func (h *StreamSourceHandler) WithProxyUsageChecker(checker ProxyUsageChecker) *StreamSourceHandler {
	h.proxyUse = checker
	return h
}

// syncSchedules kicks off a background schedule sync; errors are dropped.
func (h *StreamSourceHandler) syncSchedules(ctx context.Context) {
	if h.syncer == nil {
		return
	}
	go func() {
		_ = h.syncer.ForceSync(ctx)
	}()
}

// notFoundOr maps record-not-found to a 404 and anything else to a 500.
func notFoundOr(err error, what, id, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return huma.Error404NotFound(fmt.Sprintf("%s %s not found", what, id))
	}
	return huma.Error500InternalServerError("failed to "+action, err)
}

// Register registers the stream source routes with the API.
func (h *StreamSourceHandler) Register(api huma.API) {
	huma.Register(api, operation("listStreamSources", "GET", "/api/v1/sources/stream",
		"List stream sources", "Returns all stream sources",
		"Stream Sources"), h.List)
	huma.Register(api, operation("getStreamSource", "GET", "/api/v1/sources/stream/{id}",
		"Get stream source", "Returns a stream source by ID",
		"Stream Sources"), h.GetByID)
	huma.Register(api, operation("createStreamSource", "POST", "/api/v1/sources/stream",
		"Create stream source", "Creates a new stream source",
		"Stream Sources"), h.Create)
	huma.Register(api, operation("updateStreamSource", "PUT", "/api/v1/sources/stream/{id}",
		"Update stream source", "Updates an existing stream source",
		"Stream Sources"), h.Update)
	huma.Register(api, operation("deleteStreamSource", "DELETE", "/api/v1/sources/stream/{id}",
		"Delete stream source", "Deletes a stream source and all its channels",
		"Stream Sources"), h.Delete)
	huma.Register(api, operation("ingestStreamSource", "POST", "/api/v1/sources/stream/{id}/ingest",
		"Trigger ingestion", "Triggers ingestion for a stream source",
		"Stream Sources"), h.Ingest)
}

// ListStreamSourcesInput has no parameters.
type ListStreamSourcesInput struct{}

// ListStreamSourcesOutput carries the full stream source list.
type ListStreamSourcesOutput struct {
	Body struct {
		Sources []StreamSourceResponse `json:"sources"` // insertion order
	}
}

// List returns every stream source.
func (h *StreamSourceHandler) List(ctx context.Context, input *ListStreamSourcesInput) (*ListStreamSourcesOutput, error) {
	sources, err := h.sources.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list sources", err)
	}

	out := &ListStreamSourcesOutput{}
	out.Body.Sources = make([]StreamSourceResponse, len(sources))
	for i, src := range sources {
		out.Body.Sources[i] = StreamSourceFromModel(src)
	}
	return out, nil
}

// GetStreamSourceInput identifies one stream source.
type GetStreamSourceInput struct {
	ID string `path:"id" doc:"Stream source ID (ULID)"`
}

// GetStreamSourceOutput wraps a single stream source.
type GetStreamSourceOutput struct {
	Body StreamSourceResponse
}

// GetByID looks up one stream source.
func (h *StreamSourceHandler) GetByID(ctx context.Context, input *GetStreamSourceInput) (*GetStreamSourceOutput, error) {
	id, err := pathID(input.ID)
	if err != nil {
		return nil, err
	}

	src, err := h.sources.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "stream source", input.ID, "get source")
	}

	return &GetStreamSourceOutput{Body: StreamSourceFromModel(src)}, nil
}

// CreateStreamSourceInput carries the new source definition.
type CreateStreamSourceInput struct {
	Body CreateStreamSourceRequest
}

// CreateStreamSourceOutput echoes the created source.
type CreateStreamSourceOutput struct {
	Body StreamSourceResponse
}

// Create stores a new stream source.
func (h *StreamSourceHandler) Create(ctx context.Context, input *CreateStreamSourceInput) (*CreateStreamSourceOutput, error) {
	src := input.Body.ToModel()

	if err := h.sources.Create(ctx, src); err != nil {
		switch {
		case errors.Is(err, models.ErrNameRequired),
			errors.Is(err, models.ErrURLRequired),
			errors.Is(err, models.ErrInvalidURL),
			errors.Is(err, models.ErrInvalidSourceType):
			return nil, huma.Error400BadRequest(err.Error())
		case isDuplicateKey(err):
			return nil, huma.Error409Conflict("a stream source with this name already exists")
		default:
			return nil, huma.Error500InternalServerError("failed to create source", err)
		}
	}

	if src.CronSchedule != "" {
		h.syncSchedules(ctx)
	}

	return &CreateStreamSourceOutput{Body: StreamSourceFromModel(src)}, nil
}

// UpdateStreamSourceInput carries a partial update for one source.
type UpdateStreamSourceInput struct {
	ID   string `path:"id" doc:"Stream source ID (ULID)"`
	Body UpdateStreamSourceRequest
}

// UpdateStreamSourceOutput echoes the updated source.
type UpdateStreamSourceOutput struct {
	Body StreamSourceResponse
}

// Update applies a partial update to a stream source.
func (h *StreamSourceHandler) Update(ctx context.Context, input *UpdateStreamSourceInput) (*UpdateStreamSourceOutput, error) {
	id, err := pathID(input.ID)
	if err != nil {
		return nil, err
	}

	src, err := h.sources.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "stream source", input.ID, "get source")
	}

	input.Body.ApplyToModel(src)

	if err := h.sources.Update(ctx, src); err != nil {
		return nil, huma.Error500InternalServerError("failed to update source", err)
	}

	// The schedule may have changed.
	h.syncSchedules(ctx)

	return &UpdateStreamSourceOutput{Body: StreamSourceFromModel(src)}, nil
}

// DeleteStreamSourceInput identifies the source to delete.
type DeleteStreamSourceInput struct {
	ID string `path:"id" doc:"Stream source ID (ULID)"`
}

// DeleteStreamSourceOutput is empty; deletion returns no body.
type DeleteStreamSourceOutput struct{}

// Delete deletes a stream source unless a proxy still references it.
func (h *StreamSourceHandler) Delete(ctx context.Context, input *DeleteStreamSourceInput) (*DeleteStreamSourceOutput, error) {
	id, err := pathID(input.ID)
	if err != nil {
		return nil, err
	}

	if h.proxyUse != nil {
		names, err := h.proxyUse.GetProxyNamesBySourceID(ctx, id)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to check proxy usage", err)
		}
		if len(names) > 0 {
			return nil, huma.Error409Conflict(fmt.Sprintf(
				"cannot delete stream source: in use by %d proxy(s): %s. Remove it from these proxies first.",
				len(names), strings.Join(names, ", ")))
		}
	}

	if err := h.sources.Delete(ctx, id); err != nil {
		return nil, notFoundOr(err, "stream source", input.ID, "delete source")
	}

	// The removed source's schedule needs cleanup.
	h.syncSchedules(ctx)

	return &DeleteStreamSourceOutput{}, nil
}

// IngestStreamSourceInput identifies the source to ingest.
type IngestStreamSourceInput struct {
	ID string `path:"id" doc:"Stream source ID (ULID)"`
}

// IngestStreamSourceOutput acknowledges a started ingestion.
type IngestStreamSourceOutput struct {
	Body struct {
		Message string `json:"message"` // human-readable confirmation
	}
}

// Ingest kicks off ingestion for one stream source.
func (h *StreamSourceHandler) Ingest(ctx context.Context, input *IngestStreamSourceInput) (*IngestStreamSourceOutput, error) {
	id, err := pathID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := h.sources.IngestAsync(ctx, id); err != nil {
		return nil, huma.Error500InternalServerError("failed to start ingestion", err)
	}

	out := &IngestStreamSourceOutput{}
	out.Body.Message = fmt.Sprintf("ingestion started for source %s", input.ID)
	return out, nil
}
