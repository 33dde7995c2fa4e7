package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/chanarr/chanarr/internal/expression"
)

// ExpressionHandler exposes expression validation and field discovery.
type ExpressionHandler struct {
	validator *expression.Validator
}

// NewExpressionHandler creates a handler backed by the global field registry.
func NewExpressionHandler() *ExpressionHandler {
	return &ExpressionHandler{validator: expression.NewValidator(nil)}
}

const validateExpressionDoc = `Validates an expression for syntax and semantic correctness, including
field names for the requested domain(s).

## Domain Types
- **stream_filter** (alias **stream**): stream source filtering, over fields such as channel_name, group_title and stream_url
- **epg_filter** (alias **epg**): EPG source filtering, over fields such as programme_title, programme_description and start_time
- **stream_mapping**: stream data transformation mapping
- **epg_mapping**: EPG data transformation mapping

## Query Parameters
- **domain**: Comma-separated list of domains to validate against. Defaults to stream_filter,epg_filter.

## Examples
- Stream filter: channel_name contains "HD" AND group_title equals "Sports"
- EPG filter: programme_title contains "News" AND start_time > "18:00"
- Mapping: channel_name matches ".*HD.*" SET mapped_name = "High Definition"

## Field Validation
Field names are checked against the schema for each requested domain, with
suggestions for typos and unknown fields.`

// Register wires the expression routes into the API.
func (h *ExpressionHandler) Register(api huma.API) {
	const tag = "Expressions"

	huma.Register(api, operation("getFilterFieldsStream", http.MethodGet, "/api/v1/filters/fields/stream",
		"Get available stream filter fields",
		"Returns all fields available for stream filtering expressions", tag), h.GetFilterFieldsStream)
	huma.Register(api, operation("getFilterFieldsEPG", http.MethodGet, "/api/v1/filters/fields/epg",
		"Get available EPG filter fields",
		"Returns all fields available for EPG filtering expressions", tag), h.GetFilterFieldsEPG)
	huma.Register(api, operation("getDataMappingFieldsStream", http.MethodGet, "/api/v1/data-mapping/fields/stream",
		"Get available stream data mapping fields",
		"Returns all fields available for stream data mapping expressions", tag), h.GetDataMappingFieldsStream)
	huma.Register(api, operation("getDataMappingFieldsEPG", http.MethodGet, "/api/v1/data-mapping/fields/epg",
		"Get available EPG data mapping fields",
		"Returns all fields available for EPG data mapping expressions", tag), h.GetDataMappingFieldsEPG)

	huma.Register(api, operation("validateExpression", http.MethodPost, "/api/v1/expressions/validate",
		"Validate expression", validateExpressionDoc, tag), h.Validate)
}

// ValidateExpressionInput carries the expression plus the domains to
// validate it against.
type ValidateExpressionInput struct {
	Domain string `query:"domain" required:"false" doc:"Comma-separated domains to validate against (stream_filter, epg_filter, stream_mapping, epg_mapping); defaults to stream_filter,epg_filter"`
	Body   ValidateExpressionRequest
}

// ValidateExpressionRequest is the validation request body.
type ValidateExpressionRequest struct {
	Expression string `json:"expression" doc:"Expression to validate" example:"channel_name contains \"HD\" OR (group_title equals \"Movies\" AND stream_url starts_with \"https\")"`
}

// ValidateExpressionOutput wraps the validation response.
type ValidateExpressionOutput struct {
	Body ValidateExpressionResponse
}

// ValidateExpressionResponse reports the outcome of validating one
// expression.
type ValidateExpressionResponse struct {
	IsValid             bool                        `json:"is_valid" doc:"Whether the expression is valid"`
	Status              string                      `json:"status" doc:"Overall validation status (valid, warning, invalid)"`
	CanonicalExpression string                      `json:"canonical_expression,omitempty" doc:"The canonical form of the expression (if valid)"`
	Errors              []ExpressionValidationError `json:"errors" doc:"List of validation errors (if invalid)"`
	ExpressionTree      map[string]any              `json:"expression_tree,omitempty" doc:"JSON representation of the parsed expression tree (if valid)"`
}

// ExpressionValidationError is one problem found in an expression.
type ExpressionValidationError struct {
	Severity  string `json:"severity" doc:"error or warning"`
	Category  string `json:"category" doc:"syntax, field, operator, or value"`
	ErrorType string `json:"error_type" doc:"Specific error type"`
	Message   string `json:"message" doc:"Human-readable message"`
	Details   string `json:"details,omitempty" doc:"Longer description"`

	Position   *int   `json:"position,omitempty" doc:"Character offset of the error"`
	Context    string `json:"context,omitempty" doc:"Text around the error location"`
	Suggestion string `json:"suggestion,omitempty" doc:"How to fix the error"`
}

// parseDomains resolves the comma-separated domain query parameter. Unknown
// names are skipped so the validator falls back to its defaults.
func parseDomains(raw string) []expression.ExpressionDomain {
	var domains []expression.ExpressionDomain
	for _, part := range strings.Split(raw, ",") {
		if d, ok := expression.ParseExpressionDomain(strings.TrimSpace(strings.ToLower(part))); ok {
			domains = append(domains, d)
		}
	}
	return domains
}

// Validate checks an expression against the requested domains.
func (h *ExpressionHandler) Validate(ctx context.Context, input *ValidateExpressionInput) (*ValidateExpressionOutput, error) {
	var domains []expression.ExpressionDomain
	if input.Domain != "" {
		domains = parseDomains(input.Domain)
	}
	result := h.validator.Validate(input.Body.Expression, domains...)

	body := ValidateExpressionResponse{
		IsValid: result.IsValid, Status: result.Status,
		CanonicalExpression: result.CanonicalExpression,
		Errors:              make([]ExpressionValidationError, 0, len(result.Errors)),
	}
	for _, ve := range result.Errors {
		body.Errors = append(body.Errors, ExpressionValidationError{
			Severity: string(ve.Severity), Category: string(ve.Category),
			ErrorType: ve.ErrorType, Message: ve.Message, Details: ve.Details,
			Position: ve.Position, Context: ve.Context, Suggestion: ve.Suggestion,
		})
	}
	if result.ExpressionTree != nil {
		var tree map[string]any
		if err := json.Unmarshal(result.ExpressionTree, &tree); err == nil {
			body.ExpressionTree = tree
		}
	}
	return &ValidateExpressionOutput{Body: body}, nil
}

// FieldResponse describes one expression field to API clients.
type FieldResponse struct {
	Name        string   `json:"name"`
	Type        string   `json:"type" doc:"string, integer, float, boolean, or datetime"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases,omitempty" doc:"Alternative names"`
	ReadOnly    bool     `json:"read_only"`
	SourceType  string   `json:"source_type" doc:"stream or epg"`
}

// FieldsOutput is the response of the field listing endpoints.
type FieldsOutput struct {
	Body []FieldResponse
}

func (h *ExpressionHandler) fieldsFor(domain expression.FieldDomain, sourceType string) *FieldsOutput {
	fields := expression.DefaultRegistry().ListByDomain(domain)
	out := &FieldsOutput{Body: make([]FieldResponse, 0, len(fields))}
	for _, f := range fields {
		out.Body = append(out.Body, FieldResponse{
			Name: f.Name, Type: string(f.Type), Description: f.Description,
			Aliases: f.Aliases, ReadOnly: f.ReadOnly, SourceType: sourceType,
		})
	}
	return out
}

// GetFilterFieldsStream returns fields available for stream filtering.
func (h *ExpressionHandler) GetFilterFieldsStream(ctx context.Context, input *struct{}) (*FieldsOutput, error) {
	return h.fieldsFor(expression.DomainStream, "stream"), nil
}

// GetFilterFieldsEPG returns fields available for EPG filtering.
func (h *ExpressionHandler) GetFilterFieldsEPG(ctx context.Context, input *struct{}) (*FieldsOutput, error) {
	return h.fieldsFor(expression.DomainEPG, "epg"), nil
}

// GetDataMappingFieldsStream returns fields available for stream data mapping.
func (h *ExpressionHandler) GetDataMappingFieldsStream(ctx context.Context, input *struct{}) (*FieldsOutput, error) {
	return h.fieldsFor(expression.DomainStream, "stream"), nil
}

// GetDataMappingFieldsEPG returns fields available for EPG data mapping.
func (h *ExpressionHandler) GetDataMappingFieldsEPG(ctx context.Context, input *struct{}) (*FieldsOutput, error) {
	return h.fieldsFor(expression.DomainEPG, "epg"), nil
}
