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

// RuleUsageChecker reports how many proxies reference a mapping rule.
type RuleUsageChecker interface {
	GetByRuleUsage(ctx context.Context, ruleID models.ULID) (int64, error)
}

// DataMappingRuleHandler handles data mapping rule API endpoints.
type DataMappingRuleHandler struct {
	repo         repository.DataMappingRuleRepository
	usageChecker RuleUsageChecker
}

// NewDataMappingRuleHandler creates a handler over the given repository.
func NewDataMappingRuleHandler(repo repository.DataMappingRuleRepository) *DataMappingRuleHandler {
	return &DataMappingRuleHandler{repo: repo}
}

// WithUsageChecker sets the proxy usage checker for delete validation.
func (h *DataMappingRuleHandler) WithUsageChecker(checker RuleUsageChecker) *DataMappingRuleHandler {
	h.usageChecker = checker
	return h
}

// Register registers the data mapping rule routes with the API.
func (h *DataMappingRuleHandler) Register(api huma.API) {
	huma.Register(api, operation("listDataMappingRules", http.MethodGet, "/api/v1/data-mapping-rules",
		"List data mapping rules",
		"Returns all data mapping rules, ordered by sort order", "DataMappingRules"), h.List)
	huma.Register(api, operation("getDataMappingRule", http.MethodGet, "/api/v1/data-mapping-rules/{id}",
		"Get data mapping rule",
		"Returns a data mapping rule by ID", "DataMappingRules"), h.GetByID)
	huma.Register(api, operation("createDataMappingRule", http.MethodPost, "/api/v1/data-mapping-rules",
		"Create data mapping rule",
		"Creates a new data mapping rule", "DataMappingRules"), h.Create)
	huma.Register(api, operation("updateDataMappingRule", http.MethodPut, "/api/v1/data-mapping-rules/{id}",
		"Update data mapping rule",
		"Updates an existing data mapping rule", "DataMappingRules"), h.Update)
	huma.Register(api, operation("reorderDataMappingRules", http.MethodPut, "/api/v1/data-mapping-rules/reorder",
		"Reorder data mapping rules",
		"Rewrites rule sort orders as a dense 1-based sequence", "DataMappingRules"), h.Reorder)
	huma.Register(api, operation("deleteDataMappingRule", http.MethodDelete, "/api/v1/data-mapping-rules/{id}",
		"Delete data mapping rule",
		"Deletes a data mapping rule", "DataMappingRules"), h.Delete)
}

// loadRule parses the path ID and fetches the rule, mapping the usual
// failure modes to API errors.
func (h *DataMappingRuleHandler) loadRule(ctx context.Context, raw string) (*models.DataMappingRule, error) {
	id, err := pathID(raw)
	if err != nil {
		return nil, err
	}
	rule, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get data mapping rule", err)
	}
	if rule == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("data mapping rule %s not found", raw))
	}
	return rule, nil
}

// DataMappingRuleResponse is the API shape of a data mapping rule.
type DataMappingRuleResponse struct {
	ID          string               `json:"id" doc:"Rule ID (ULID)"`
	Name        string               `json:"name" doc:"Rule name"`
	Description string               `json:"description,omitempty" doc:"Rule description"`
	SourceType  string               `json:"source_type" doc:"Source type (stream or epg)"`
	Scope       string               `json:"scope,omitempty" doc:"Optional scope restricting which records the rule sees"`
	Conditions  models.ConditionList `json:"conditions,omitempty" doc:"Structured condition list"`
	Actions     models.ActionList    `json:"actions" doc:"Ordered actions applied when the conditions match"`
	Expression  string               `json:"expression,omitempty" doc:"Rule expression in text form"`
	SortOrder   int                  `json:"sort_order" doc:"Position in the global rule chain (1-based)"`
	IsActive    bool                 `json:"is_active" doc:"Whether the rule is active"`
	IsSystem    bool                 `json:"is_system" doc:"Whether this is a system-provided rule (cannot be edited/deleted)"`
	CreatedAt   string               `json:"created_at" doc:"Creation timestamp"`
	UpdatedAt   string               `json:"updated_at" doc:"Last update timestamp"`
}

// DataMappingRuleFromModel maps a rule model onto its response shape.
func DataMappingRuleFromModel(r *models.DataMappingRule) DataMappingRuleResponse {
	return DataMappingRuleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		SourceType:  string(r.SourceType),
		Scope:       r.Scope,
		Conditions:  r.Conditions,
		Actions:     r.Actions,
		Expression:  r.Expression,
		SortOrder:   r.SortOrder,
		IsActive:    r.IsActive,
		IsSystem:    r.IsSystem,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.Format(time.RFC3339),
	}
}

// ListDataMappingRulesInput carries the optional list filters.
type ListDataMappingRulesInput struct {
	SourceType string `query:"source_type" doc:"Filter by source type (stream or epg)" required:"false"`
	Active     string `query:"active" doc:"Filter by active status (true or false)" required:"false" enum:"true,false,"`
}

// ListDataMappingRulesOutput is one filtered page of rules.
type ListDataMappingRulesOutput struct {
	Body struct {
		Rules []DataMappingRuleResponse `json:"rules"` // chain order

		Count int `json:"count"`
	}
}

// List returns the rules matching the given filters.
func (h *DataMappingRuleHandler) List(ctx context.Context, input *ListDataMappingRulesInput) (*ListDataMappingRulesOutput, error) {
	var (
		rules []*models.DataMappingRule
		err   error
	)
	switch {
	case input.Active == "true" && input.SourceType != "":
		rules, err = h.repo.GetActiveForSourceType(ctx, models.DataMappingRuleSourceType(input.SourceType))
	case input.Active == "true":
		rules, err = h.repo.GetActive(ctx)
	default:
		rules, err = h.repo.GetAll(ctx)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list data mapping rules", err)
	}

	out := &ListDataMappingRulesOutput{}
	out.Body.Rules = make([]DataMappingRuleResponse, 0, len(rules))
	for _, r := range rules {
		if input.SourceType != "" && string(r.SourceType) != input.SourceType {
			continue
		}
		if input.Active == "false" && r.IsActive {
			continue
		}
		out.Body.Rules = append(out.Body.Rules, DataMappingRuleFromModel(r))
	}
	out.Body.Count = len(out.Body.Rules)
	return out, nil
}

// GetDataMappingRuleInput identifies one rule.
type GetDataMappingRuleInput struct {
	ID string `path:"id" doc:"Rule ID (ULID)"`
}

// GetDataMappingRuleOutput wraps a single rule.
type GetDataMappingRuleOutput struct {
	Body DataMappingRuleResponse
}

// GetByID looks up one data mapping rule.
func (h *DataMappingRuleHandler) GetByID(ctx context.Context, input *GetDataMappingRuleInput) (*GetDataMappingRuleOutput, error) {
	rule, err := h.loadRule(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &GetDataMappingRuleOutput{Body: DataMappingRuleFromModel(rule)}, nil
}

// CreateDataMappingRuleRequest is the request body for creating a data mapping rule.
type CreateDataMappingRuleRequest struct {
	Name        string               `json:"name" doc:"Rule name" minLength:"1" maxLength:"255"`
	Description string               `json:"description,omitempty" doc:"Rule description" maxLength:"1024"`
	SourceType  string               `json:"source_type" doc:"Source type (stream or epg)" enum:"stream,epg"`
	Scope       string               `json:"scope,omitempty" doc:"Optional scope restricting which records the rule sees" maxLength:"255"`
	Conditions  models.ConditionList `json:"conditions,omitempty" doc:"Structured condition list"`
	Actions     models.ActionList    `json:"actions,omitempty" doc:"Ordered actions applied when the conditions match"`
	Expression  string               `json:"expression,omitempty" doc:"Rule expression in text form"`
	IsActive    *bool                `json:"is_active,omitempty" doc:"Whether the rule is active (default: true)"`
}

// CreateDataMappingRuleInput wraps the create request body.
type CreateDataMappingRuleInput struct {
	Body CreateDataMappingRuleRequest
}

// CreateDataMappingRuleOutput echoes the stored rule back to the caller.
type CreateDataMappingRuleOutput struct {
	Body DataMappingRuleResponse
}

// Create creates a new data mapping rule. New rules append to the end of
// the chain.
func (h *DataMappingRuleHandler) Create(ctx context.Context, input *CreateDataMappingRuleInput) (*CreateDataMappingRuleOutput, error) {
	req := &input.Body
	rule := &models.DataMappingRule{
		Name:        req.Name,
		Description: req.Description,
		SourceType:  models.DataMappingRuleSourceType(req.SourceType),
		Scope:       req.Scope,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		Expression:  req.Expression,
		IsActive:    true,
	}
	setIf(&rule.IsActive, req.IsActive)

	if err := rule.Validate(); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if err := h.repo.Create(ctx, rule); err != nil {
		return nil, huma.Error500InternalServerError("failed to create data mapping rule", err)
	}
	return &CreateDataMappingRuleOutput{Body: DataMappingRuleFromModel(rule)}, nil
}

// UpdateDataMappingRuleRequest is the request body for updating a data mapping rule.
type UpdateDataMappingRuleRequest struct {
	Name        *string               `json:"name,omitempty" doc:"Rule name" maxLength:"255"`
	Description *string               `json:"description,omitempty" doc:"Rule description" maxLength:"1024"`
	SourceType  *string               `json:"source_type,omitempty" doc:"Source type (stream or epg)" enum:"stream,epg"`
	Scope       *string               `json:"scope,omitempty" doc:"Optional scope restricting which records the rule sees" maxLength:"255"`
	Conditions  *models.ConditionList `json:"conditions,omitempty" doc:"Structured condition list"`
	Actions     *models.ActionList    `json:"actions,omitempty" doc:"Ordered actions applied when the conditions match"`
	Expression  *string               `json:"expression,omitempty" doc:"Rule expression in text form"`
	IsActive    *bool                 `json:"is_active,omitempty" doc:"Whether the rule is active"`
}

// editsAnythingButActive reports whether the update touches fields that are
// locked on system rules.
func (r *UpdateDataMappingRuleRequest) editsAnythingButActive() bool {
	return r.Name != nil || r.Description != nil || r.SourceType != nil ||
		r.Scope != nil || r.Conditions != nil || r.Actions != nil ||
		r.Expression != nil
}

// UpdateDataMappingRuleInput carries a partial rule update.
type UpdateDataMappingRuleInput struct {
	ID   string `path:"id" doc:"Rule ID (ULID)"`
	Body UpdateDataMappingRuleRequest
}

// UpdateDataMappingRuleOutput echoes the updated rule.
type UpdateDataMappingRuleOutput struct {
	Body DataMappingRuleResponse
}

// Update applies a partial update to a rule.
func (h *DataMappingRuleHandler) Update(ctx context.Context, input *UpdateDataMappingRuleInput) (*UpdateDataMappingRuleOutput, error) {
	rule, err := h.loadRule(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	req := &input.Body
	if rule.IsSystem {
		// System defaults can only have is_active toggled
		if req.editsAnythingButActive() {
			return nil, huma.Error403Forbidden("system rules can only have is_active toggled")
		}
		setIf(&rule.IsActive, req.IsActive)
	} else {
		setIf(&rule.Name, req.Name)
		setIf(&rule.Description, req.Description)
		if req.SourceType != nil {
			rule.SourceType = models.DataMappingRuleSourceType(*req.SourceType)
		}
		setIf(&rule.Scope, req.Scope)
		setIf(&rule.Conditions, req.Conditions)
		setIf(&rule.Actions, req.Actions)
		setIf(&rule.Expression, req.Expression)
		setIf(&rule.IsActive, req.IsActive)

		if err := rule.Validate(); err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
	}

	if err := h.repo.Update(ctx, rule); err != nil {
		return nil, huma.Error500InternalServerError("failed to update data mapping rule", err)
	}
	return &UpdateDataMappingRuleOutput{Body: DataMappingRuleFromModel(rule)}, nil
}

// ReorderDataMappingRulesInput is the input for reordering rules.
type ReorderDataMappingRulesInput struct {
	Body ReorderRequest
}

// ReorderDataMappingRulesOutput is the output for reordering rules.
type ReorderDataMappingRulesOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Reorder rewrites rule sort orders as a dense 1-based sequence.
func (h *DataMappingRuleHandler) Reorder(ctx context.Context, input *ReorderDataMappingRulesInput) (*ReorderDataMappingRulesOutput, error) {
	reorders := make([]repository.ReorderRequest, len(input.Body.Items))
	for i, item := range input.Body.Items {
		reorders[i] = repository.ReorderRequest{ID: item.ID, Priority: item.Priority}
	}

	if err := h.repo.Reorder(ctx, reorders); err != nil {
		return nil, huma.Error500InternalServerError("failed to reorder data mapping rules", err)
	}

	out := &ReorderDataMappingRulesOutput{}
	out.Body.Message = fmt.Sprintf("%d rule(s) reordered", len(reorders))
	return out, nil
}

// DeleteDataMappingRuleInput identifies the rule to delete.
type DeleteDataMappingRuleInput struct {
	ID string `path:"id" doc:"Rule ID (ULID)"`
}

// DeleteDataMappingRuleOutput confirms a deletion.
type DeleteDataMappingRuleOutput struct {
	Body struct {
		Message string `json:"message"` // human-readable confirmation
	}
}

// Delete removes a rule unless it is a system rule or still attached.
func (h *DataMappingRuleHandler) Delete(ctx context.Context, input *DeleteDataMappingRuleInput) (*DeleteDataMappingRuleOutput, error) {
	rule, err := h.loadRule(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if rule.IsSystem {
		return nil, huma.Error403Forbidden("system rules cannot be deleted")
	}

	if h.usageChecker != nil {
		count, err := h.usageChecker.GetByRuleUsage(ctx, rule.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to check proxy usage", err)
		}
		if count > 0 {
			return nil, huma.Error409Conflict(fmt.Sprintf(
				"cannot delete data mapping rule: in use by %d proxy(s). Remove it from these proxies first.", count))
		}
	}

	if err := h.repo.Delete(ctx, rule.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete data mapping rule", err)
	}

	out := &DeleteDataMappingRuleOutput{}
	out.Body.Message = fmt.Sprintf("data mapping rule %s deleted", input.ID)
	return out, nil
}
