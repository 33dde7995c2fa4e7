package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/service"
)

// EpgSourceHandler handles EPG source API endpoints.
type EpgSourceHandler struct {
	epg      *service.EpgService
	syncer   ScheduleSyncer
	proxyUse ProxyUsageChecker
}

// NewEpgSourceHandler creates a new EPG source handler.
func NewEpgSourceHandler(epgService *service.EpgService) *EpgSourceHandler {
	return &EpgSourceHandler{epg: epgService}
}

// WithScheduleSyncer sets the schedule syncer for immediate schedule updates.
func (h *EpgSourceHandler) WithScheduleSyncer(syncer ScheduleSyncer) *EpgSourceHandler {
	h.syncer = syncer
	return h
}

// WithProxyUsageChecker sets the proxy usage checker for delete validation.
func (h *EpgSourceHandler) WithProxyUsageChecker(checker ProxyUsageChecker) *EpgSourceHandler {
	h.proxyUse = checker
	return h
}

func (h *EpgSourceHandler) syncSchedules(ctx context.Context) {
	if h.syncer == nil {
		return
	}
	go func() {
		_ = h.syncer.ForceSync(ctx)
	}()
}

// Register registers the EPG source routes with the API.
func (h *EpgSourceHandler) Register(api huma.API) {
	huma.Register(api, operation("listEpgSources", "GET", "/api/v1/sources/epg",
		"List EPG sources", "Returns all EPG sources",
		"EPG Sources"), h.List)
	huma.Register(api, operation("getEpgSource", "GET", "/api/v1/sources/epg/{id}",
		"Get EPG source", "Returns an EPG source by ID",
		"EPG Sources"), h.GetByID)
	huma.Register(api, operation("createEpgSource", "POST", "/api/v1/sources/epg",
		"Create EPG source", "Creates a new EPG source",
		"EPG Sources"), h.Create)
	huma.Register(api, operation("updateEpgSource", "PUT", "/api/v1/sources/epg/{id}",
		"Update EPG source", "Updates an existing EPG source",
		"EPG Sources"), h.Update)
	huma.Register(api, operation("deleteEpgSource", "DELETE", "/api/v1/sources/epg/{id}",
		"Delete EPG source", "Deletes an EPG source and all its programs",
		"EPG Sources"), h.Delete)
	huma.Register(api, operation("ingestEpgSource", "POST", "/api/v1/sources/epg/{id}/ingest",
		"Trigger EPG ingestion", "Triggers ingestion for an EPG source",
		"EPG Sources"), h.Ingest)
}

// ListEpgSourcesInput has no parameters.
type ListEpgSourcesInput struct{}

// ListEpgSourcesOutput lists every EPG source.
type ListEpgSourcesOutput struct {
	Body struct {
		Sources []EpgSourceResponse `json:"sources"` // insertion order
	}
}

// List returns every EPG source.
func (h *EpgSourceHandler) List(ctx context.Context, input *ListEpgSourcesInput) (*ListEpgSourcesOutput, error) {
	sources, err := h.epg.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list EPG sources", err)
	}

	out := &ListEpgSourcesOutput{}
	out.Body.Sources = make([]EpgSourceResponse, 0, len(sources))
	for _, src := range sources {
		out.Body.Sources = append(out.Body.Sources, EpgSourceFromModel(src))
	}
	return out, nil
}

// GetEpgSourceInput identifies one EPG source.
type GetEpgSourceInput struct {
	ID string `path:"id" doc:"EPG source ID (ULID)"`
}

// GetEpgSourceOutput wraps a single EPG source.
// GetEpgSourceOutput wraps a single source response.
type GetEpgSourceOutput struct {
	Body EpgSourceResponse
}

// GetByID looks an EPG source up by its ID.
func (h *EpgSourceHandler) GetByID(ctx context.Context, input *GetEpgSourceInput) (*GetEpgSourceOutput, error) {
	id, err := pathID(input.ID)
	if err != nil {
		return nil, err
	}

	src, err := h.epg.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "EPG source", input.ID, "get EPG source")
	}

	return &GetEpgSourceOutput{Body: EpgSourceFromModel(src)}, nil
}

// CreateEpgSourceInput carries the new source definition.
type CreateEpgSourceInput struct {
	Body CreateEpgSourceRequest
}

// CreateEpgSourceOutput echoes the created source.
// CreateEpgSourceOutput echoes the stored source back to the caller.
type CreateEpgSourceOutput struct {
	Body EpgSourceResponse
}

// Create stores a new EPG source.
func (h *EpgSourceHandler) Create(ctx context.Context, input *CreateEpgSourceInput) (*CreateEpgSourceOutput, error) {
	src := input.Body.ToModel()

	if err := h.epg.Create(ctx, src); err != nil {
		switch {
		case errors.Is(err, models.ErrNameRequired),
			errors.Is(err, models.ErrURLRequired),
			errors.Is(err, models.ErrInvalidURL),
			errors.Is(err, models.ErrInvalidEpgSourceType):
			return nil, huma.Error400BadRequest(err.Error())
		case isDuplicateKey(err):
			return nil, huma.Error409Conflict("an EPG source with this name already exists")
		default:
			return nil, huma.Error500InternalServerError("failed to create EPG source", err)
		}
	}

	if src.CronSchedule != "" {
		h.syncSchedules(ctx)
	}

	return &CreateEpgSourceOutput{Body: EpgSourceFromModel(src)}, nil
}

// UpdateEpgSourceInput carries a partial update for one source.
type UpdateEpgSourceInput struct {
	ID   string `path:"id" doc:"EPG source ID (ULID)"`
	Body UpdateEpgSourceRequest
}

// UpdateEpgSourceOutput echoes the updated source.
// UpdateEpgSourceOutput echoes the updated source back to the caller.
type UpdateEpgSourceOutput struct {
	Body EpgSourceResponse
}

// Update applies partial changes to an existing EPG source.
func (h *EpgSourceHandler) Update(ctx context.Context, input *UpdateEpgSourceInput) (*UpdateEpgSourceOutput, error) {
	id, err := pathID(input.ID)
	if err != nil {
		return nil, err
	}

	src, err := h.epg.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "EPG source", input.ID, "get EPG source")
	}

	input.Body.ApplyToModel(src)

	if err := h.epg.Update(ctx, src); err != nil {
		return nil, huma.Error500InternalServerError("failed to update EPG source", err)
	}

	h.syncSchedules(ctx)

	return &UpdateEpgSourceOutput{Body: EpgSourceFromModel(src)}, nil
}

// DeleteEpgSourceInput identifies the source to delete.
type DeleteEpgSourceInput struct {
	ID string `path:"id" doc:"EPG source ID (ULID)"`
}

// DeleteEpgSourceOutput is empty; deletion returns no body.
type DeleteEpgSourceOutput struct{}

// Delete deletes an EPG source unless a proxy still references it.
func (h *EpgSourceHandler) Delete(ctx context.Context, input *DeleteEpgSourceInput) (*DeleteEpgSourceOutput, error) {
	id, err := pathID(input.ID)
	if err != nil {
		return nil, err
	}

	if h.proxyUse != nil {
		names, err := h.proxyUse.GetProxyNamesByEpgSourceID(ctx, id)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to check proxy usage", err)
		}
		if len(names) > 0 {
			return nil, huma.Error409Conflict(fmt.Sprintf(
				"cannot delete EPG source: in use by %d proxy(s): %s. Remove it from these proxies first.",
				len(names), strings.Join(names, ", ")))
		}
	}

	if err := h.epg.Delete(ctx, id); err != nil {
		return nil, notFoundOr(err, "EPG source", input.ID, "delete EPG source")
	}

	h.syncSchedules(ctx)

	return &DeleteEpgSourceOutput{}, nil
}

// IngestEpgSourceInput identifies the source to ingest.
type IngestEpgSourceInput struct {
	ID string `path:"id" doc:"EPG source ID (ULID)"`
}

// IngestEpgSourceOutput acknowledges that ingestion was started.
type IngestEpgSourceOutput struct {
	Body struct {
		Message string `json:"message"` // human-readable confirmation
	}
}

// Ingest kicks off an ingestion run for one EPG source.
func (h *EpgSourceHandler) Ingest(ctx context.Context, input *IngestEpgSourceInput) (*IngestEpgSourceOutput, error) {
	id, err := pathID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := h.epg.IngestAsync(ctx, id); err != nil {
		return nil, huma.Error500InternalServerError("failed to start EPG ingestion", err)
	}

	out := &IngestEpgSourceOutput{}
	out.Body.Message = fmt.Sprintf("EPG ingestion started for source %s", input.ID)
	return out, nil
}
