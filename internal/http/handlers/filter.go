package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/repository"
)

// FilterUsageChecker reports how many proxies reference a filter.
type FilterUsageChecker interface {
	GetByFilterUsage(ctx context.Context, filterID models.ULID) (int64, error)
}

// FilterHandler handles filter API endpoints.
type FilterHandler struct {
	repo         repository.FilterRepository
	usageChecker FilterUsageChecker
}

// NewFilterHandler creates a handler over the given repository.
func NewFilterHandler(repo repository.FilterRepository) *FilterHandler {
	return &FilterHandler{repo: repo}
}

// WithUsageChecker sets the proxy usage checker for delete validation.
func (h *FilterHandler) WithUsageChecker(checker FilterUsageChecker) *FilterHandler {
	h.usageChecker = checker
	return h
}

// Register registers the filter routes with the API.
func (h *FilterHandler) Register(api huma.API) {
	huma.Register(api, operation("listFilters", http.MethodGet, "/api/v1/filters",
		"List filters", "Returns all filters", "Filters"), h.List)
	huma.Register(api, operation("getFilter", http.MethodGet, "/api/v1/filters/{id}",
		"Get filter", "Returns a filter by ID", "Filters"), h.GetByID)
	huma.Register(api, operation("createFilter", http.MethodPost, "/api/v1/filters",
		"Create filter", "Creates a new filter", "Filters"), h.Create)
	huma.Register(api, operation("updateFilter", http.MethodPut, "/api/v1/filters/{id}",
		"Update filter", "Updates an existing filter", "Filters"), h.Update)
	huma.Register(api, operation("deleteFilter", http.MethodDelete, "/api/v1/filters/{id}",
		"Delete filter", "Deletes a filter", "Filters"), h.Delete)
}

// loadFilter parses the path ID and fetches the filter, mapping the usual
// failure modes to API errors.
func (h *FilterHandler) loadFilter(ctx context.Context, raw string) (*models.Filter, error) {
	id, err := pathID(raw)
	if err != nil {
		return nil, err
	}
	filter, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get filter", err)
	}
	if filter == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("filter %s not found", raw))
	}
	return filter, nil
}

// FilterResponse represents a filter in API responses.
type FilterResponse struct {
	ID                    string               `json:"id" doc:"Filter ID (ULID)"`
	Name                  string               `json:"name" doc:"Filter name"`
	Description           string               `json:"description,omitempty" doc:"Filter description"`
	SourceType            string               `json:"source_type" doc:"Source type (stream or epg)"`
	Conditions            models.ConditionList `json:"conditions,omitempty" doc:"Structured condition list"`
	Expression            string               `json:"expression,omitempty" doc:"Filter expression in text form"`
	IsInverse             bool                 `json:"is_inverse" doc:"Keep records the conditions do NOT match"`
	StartingChannelNumber int                  `json:"starting_channel_number" doc:"Numbering default for standalone previews"`
	IsEnabled             bool                 `json:"is_enabled" doc:"Whether the filter is enabled"`
	IsSystem              bool                 `json:"is_system" doc:"Whether this is a system-provided filter (cannot be edited/deleted)"`
	CreatedAt             string               `json:"created_at" doc:"Creation timestamp"`
	UpdatedAt             string               `json:"updated_at" doc:"Last update timestamp"`
}

// FilterFromModel converts a models.Filter to FilterResponse.
func FilterFromModel(f *models.Filter) FilterResponse {
	return FilterResponse{
		ID:                    f.ID.String(),
		Name:                  f.Name,
		Description:           f.Description,
		SourceType:            string(f.SourceType),
		Conditions:            f.Conditions,
		Expression:            f.Expression,
		IsInverse:             f.IsInverse,
		StartingChannelNumber: f.StartingChannelNumber,
		IsEnabled:             f.IsEnabled,
		IsSystem:              f.IsSystem,
		CreatedAt:             f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             f.UpdatedAt.Format(time.RFC3339),
	}
}

// ListFiltersInput carries the optional list filters.
type ListFiltersInput struct {
	SourceType string `query:"source_type" doc:"Filter by source type (stream or epg)" required:"false"`
	Enabled    string `query:"enabled" doc:"Filter by enabled status (true or false)" required:"false" enum:"true,false,"`
}

// ListFiltersOutput is one filtered page of filters.
type ListFiltersOutput struct {
	Body struct {
		Filters []FilterResponse `json:"filters"` // insertion order

		Count int `json:"count"`
	}
}

// List returns the filters matching the query parameters.
func (h *FilterHandler) List(ctx context.Context, input *ListFiltersInput) (*ListFiltersOutput, error) {
	var (
		filters []*models.Filter
		err     error
	)
	if input.SourceType == "" {
		filters, err = h.repo.GetAll(ctx)
	} else {
		filters, err = h.repo.GetBySourceType(ctx, models.FilterSourceType(input.SourceType))
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list filters", err)
	}

	out := &ListFiltersOutput{}
	out.Body.Filters = make([]FilterResponse, 0, len(filters))
	for _, f := range filters {
		if input.Enabled != "" && f.IsEnabled != (input.Enabled == "true") {
			continue
		}
		out.Body.Filters = append(out.Body.Filters, FilterFromModel(f))
	}
	out.Body.Count = len(out.Body.Filters)
	return out, nil
}

// GetFilterInput identifies one filter.
type GetFilterInput struct {
	ID string `path:"id" doc:"Filter ID (ULID)"`
}

// GetFilterOutput wraps a single filter.
type GetFilterOutput struct {
	Body FilterResponse
}

// GetByID looks up one filter.
func (h *FilterHandler) GetByID(ctx context.Context, input *GetFilterInput) (*GetFilterOutput, error) {
	filter, err := h.loadFilter(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &GetFilterOutput{Body: FilterFromModel(filter)}, nil
}

// CreateFilterRequest is the request body for creating a filter.
type CreateFilterRequest struct {
	Name                  string               `json:"name" doc:"Filter name" minLength:"1" maxLength:"255"`
	Description           string               `json:"description,omitempty" doc:"Filter description" maxLength:"1024"`
	SourceType            string               `json:"source_type" doc:"Source type (stream or epg)" enum:"stream,epg"`
	Conditions            models.ConditionList `json:"conditions,omitempty" doc:"Structured condition list"`
	Expression            string               `json:"expression,omitempty" doc:"Filter expression in text form"`
	IsInverse             *bool                `json:"is_inverse,omitempty" doc:"Keep records the conditions do NOT match (default: false)"`
	StartingChannelNumber *int                 `json:"starting_channel_number,omitempty" doc:"Numbering default for standalone previews (default: 1)"`
	IsEnabled             *bool                `json:"is_enabled,omitempty" doc:"Whether the filter is enabled (default: true)"`
}

// CreateFilterInput carries the new filter definition.
type CreateFilterInput struct {
	Body CreateFilterRequest
}

// CreateFilterOutput echoes the created filter.
type CreateFilterOutput struct {
	Body FilterResponse
}

// Create stores a new filter.
func (h *FilterHandler) Create(ctx context.Context, input *CreateFilterInput) (*CreateFilterOutput, error) {
	req := &input.Body
	filter := &models.Filter{
		Name:                  req.Name,
		Description:           req.Description,
		SourceType:            models.FilterSourceType(req.SourceType),
		Conditions:            req.Conditions,
		Expression:            req.Expression,
		StartingChannelNumber: 1,
		IsEnabled:             true,
	}
	setIf(&filter.IsInverse, req.IsInverse)
	setIf(&filter.StartingChannelNumber, req.StartingChannelNumber)
	setIf(&filter.IsEnabled, req.IsEnabled)

	if err := filter.Validate(); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if err := h.repo.Create(ctx, filter); err != nil {
		return nil, huma.Error500InternalServerError("failed to create filter", err)
	}
	return &CreateFilterOutput{Body: FilterFromModel(filter)}, nil
}

// UpdateFilterRequest is the request body for updating a filter.
type UpdateFilterRequest struct {
	Name                  *string               `json:"name,omitempty" doc:"Filter name" maxLength:"255"`
	Description           *string               `json:"description,omitempty" doc:"Filter description" maxLength:"1024"`
	SourceType            *string               `json:"source_type,omitempty" doc:"Source type (stream or epg)" enum:"stream,epg"`
	Conditions            *models.ConditionList `json:"conditions,omitempty" doc:"Structured condition list"`
	Expression            *string               `json:"expression,omitempty" doc:"Filter expression in text form"`
	IsInverse             *bool                 `json:"is_inverse,omitempty" doc:"Keep records the conditions do NOT match"`
	StartingChannelNumber *int                  `json:"starting_channel_number,omitempty" doc:"Numbering default for standalone previews"`
	IsEnabled             *bool                 `json:"is_enabled,omitempty" doc:"Whether the filter is enabled"`
}

// editsAnythingButEnabled reports whether the update touches fields that are
// locked on system filters.
func (r *UpdateFilterRequest) editsAnythingButEnabled() bool {
	return r.Name != nil || r.Description != nil || r.SourceType != nil ||
		r.Conditions != nil || r.Expression != nil || r.IsInverse != nil ||
		r.StartingChannelNumber != nil
}

// UpdateFilterInput carries a partial filter update.
type UpdateFilterInput struct {
	ID   string `path:"id" doc:"Filter ID (ULID)"`
	Body UpdateFilterRequest
}

// UpdateFilterOutput echoes the updated filter.
type UpdateFilterOutput struct {
	Body FilterResponse
}

// Update applies a partial update to a filter.
func (h *FilterHandler) Update(ctx context.Context, input *UpdateFilterInput) (*UpdateFilterOutput, error) {
	filter, err := h.loadFilter(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	req := &input.Body
	if filter.IsSystem {
		// System defaults can only have is_enabled toggled
		if req.editsAnythingButEnabled() {
			return nil, huma.Error403Forbidden("system filters can only have is_enabled toggled")
		}
		setIf(&filter.IsEnabled, req.IsEnabled)
	} else {
		setIf(&filter.Name, req.Name)
		setIf(&filter.Description, req.Description)
		if req.SourceType != nil {
			filter.SourceType = models.FilterSourceType(*req.SourceType)
		}
		setIf(&filter.Conditions, req.Conditions)
		setIf(&filter.Expression, req.Expression)
		setIf(&filter.IsInverse, req.IsInverse)
		setIf(&filter.StartingChannelNumber, req.StartingChannelNumber)
		setIf(&filter.IsEnabled, req.IsEnabled)

		if err := filter.Validate(); err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
	}

	err = h.repo.Update(ctx, filter)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to update filter", err)
	}
	return &UpdateFilterOutput{Body: FilterFromModel(filter)}, nil
}

// DeleteFilterInput identifies the filter to delete.
type DeleteFilterInput struct {
	ID string `path:"id" doc:"Filter ID (ULID)"`
}

// DeleteFilterOutput confirms a deletion.
type DeleteFilterOutput struct {
	Body struct {
		Message string `json:"message"` // human-readable confirmation
	}
}

// Delete removes a filter unless it is a system filter or still attached.
func (h *FilterHandler) Delete(ctx context.Context, input *DeleteFilterInput) (*DeleteFilterOutput, error) {
	filter, err := h.loadFilter(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if filter.IsSystem {
		return nil, huma.Error403Forbidden("system filters cannot be deleted")
	}

	if h.usageChecker != nil {
		count, err := h.usageChecker.GetByFilterUsage(ctx, filter.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to check proxy usage", err)
		}
		if count > 0 {
			return nil, huma.Error409Conflict(fmt.Sprintf(
				"cannot delete filter: in use by %d proxy(s). Remove it from these proxies first.", count))
		}
	}

	if err := h.repo.Delete(ctx, filter.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete filter", err)
	}

	out := &DeleteFilterOutput{}
	out.Body.Message = fmt.Sprintf("filter %s deleted", input.ID)
	return out, nil
}
