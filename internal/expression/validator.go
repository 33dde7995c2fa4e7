package expression

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ValidationErrorCategory represents the category of a validation issue.
type ValidationErrorCategory string

const (
	// ErrorCategorySyntax for general syntax issues.
	ErrorCategorySyntax ValidationErrorCategory = "syntax"
	// ErrorCategoryField for unknown field names.
	ErrorCategoryField ValidationErrorCategory = "field"
	// ErrorCategoryOperator for invalid operators.
	ErrorCategoryOperator ValidationErrorCategory = "operator"
	// ErrorCategoryRegex for uncompilable regex patterns.
	ErrorCategoryRegex ValidationErrorCategory = "regex"
)

// ValidationSeverity distinguishes hard errors from advisory warnings.
type ValidationSeverity string

const (
	// SeverityError marks an issue that makes the expression unusable.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning marks an advisory issue; the expression still runs.
	SeverityWarning ValidationSeverity = "warning"
)

// Overall validation statuses.
const (
	StatusValid   = "valid"
	StatusWarning = "warning"
	StatusInvalid = "invalid"
)

// ValidationError represents a single validation issue with details.
type ValidationError struct {
	Severity   ValidationSeverity      `json:"severity"`
	Category  ValidationErrorCategory `json:"category"`
	ErrorType string                  `json:"error_type"`
	Message   string                  `json:"message"`
	Details   string                  `json:"details,omitempty"`

	Position   *int   `json:"position,omitempty"`
	Context    string `json:"context,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ValidationResult contains the result of validating an expression.
type ValidationResult struct {
	IsValid             bool              `json:"is_valid"`
	Status              string            `json:"status"`
	CanonicalExpression string            `json:"canonical_expression,omitempty"`
	Errors              []ValidationError `json:"errors"`
	ExpressionTree      json.RawMessage   `json:"expression_tree,omitempty"`
}

// HasWarnings returns true if any issue is a warning.
func (r *ValidationResult) HasWarnings() bool {
	for _, e := range r.Errors {
		if e.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// Validator validates expressions against a set of valid fields.
type Validator struct {
	fields *FieldRegistry
}

// NewValidator creates a validator backed by the given field registry. A nil
// registry falls back to the default one.
func NewValidator(registry *FieldRegistry) *Validator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Validator{fields: registry}
}

// Validate validates an expression string for the given domains.
// Syntax, operator and regex problems are hard errors; unknown fields
// produce warnings only, since upstream playlists carry ad hoc attributes.
// If no domains are specified, defaults to stream_filter and epg_filter.
func (v *Validator) Validate(expression string, domains ...ExpressionDomain) *ValidationResult {
	result := &ValidationResult{
		IsValid: true,
		Status:  StatusValid,
		Errors:  make([]ValidationError, 0),
	}

	if len(domains) == 0 {
		domains = []ExpressionDomain{DomainStreamFilter, DomainEPGFilter}
	}

	validFields := v.getValidFieldsForDomains(domains)

	// Empty expression is valid (matches everything)
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return result
	}

	preprocessed := Preprocess(expression)

	parsed, err := Parse(preprocessed)
	if err != nil {
		result.IsValid = false
		result.Status = StatusInvalid

		category := ErrorCategorySyntax
		errorType := "parse_error"
		var position *int
		var context string
		if pe, ok := err.(*ParseError); ok {
			if pe.Category != "" {
				category = pe.Category
			}
			if category == ErrorCategoryOperator {
				errorType = "unknown_operator"
			}
			position = &pe.Column
			context = errorContext(preprocessed, pe.Column)
		}

		result.Errors = append(result.Errors, ValidationError{
			Severity: SeverityError, Category: category, ErrorType: errorType,
			Message: err.Error(), Position: position, Context: context,
		})
		return result
	}

	v.validateFields(parsed, validFields, result)
	v.validateRegexPatterns(parsed, result)

	if result.IsValid {
		result.CanonicalExpression = preprocessed

		if treeJSON, err := json.Marshal(expressionToMap(parsed)); err == nil {
			result.ExpressionTree = treeJSON
		}
	}

	if result.IsValid && result.HasWarnings() {
		result.Status = StatusWarning
	}

	return result
}

// errorContext extracts a snippet of the expression around a column.
func errorContext(expr string, column int) string {
	if column <= 0 || column > len(expr) {
		return ""
	}
	start := column - 1
	if start > 10 {
		start = column - 10
	}
	end := column + 20
	if end > len(expr) {
		end = len(expr)
	}
	return expr[start:end]
}

// getValidFieldsForDomains returns the union of field names and aliases
// valid in any of the given domains.
func (v *Validator) getValidFieldsForDomains(domains []ExpressionDomain) map[string]bool {
	known := map[string]bool{}
	for _, domain := range domains {
		for _, fieldDomain := range domain.RecordFieldDomains() {
			for _, def := range v.fields.ListByDomain(fieldDomain) {
				known[def.Name] = true
				for _, alias := range def.Aliases {
					known[alias] = true
				}
			}
		}
	}
	return known
}

// validateFields checks field names in the expression and records a warning
// for each unknown one. Unknown fields read as empty at evaluation time, so
// the expression remains usable.
func (v *Validator) validateFields(parsed *ParsedExpression, validFields map[string]bool, result *ValidationResult) {
	if parsed == nil || parsed.Expression == nil {
		return
	}

	var fields []string
	if tree := parsed.ConditionTree(); tree != nil && tree.Root != nil {
		fields = collectFields(tree.Root)
	}
	for _, action := range parsed.Actions() {
		if action.Operator == ActionSetLabel {
			// Label keys are arbitrary, not field names
			continue
		}
		fields = append(fields, action.Field)
	}

	for _, field := range fields {
		if validFields[field] {
			continue
		}

		suggestion := v.findFieldSuggestion(field, validFields)
		details := fmt.Sprintf("Field '%s' is not a known field; it will read as empty.", field)
		if suggestion != "" {
			details += fmt.Sprintf(" Did you mean '%s'?", suggestion)
		}

		result.Errors = append(result.Errors, ValidationError{
			Severity:   SeverityWarning,
			Category:   ErrorCategoryField,
			ErrorType:  "unknown_field",
			Message:    fmt.Sprintf("Unknown field '%s'", field),
			Details:    details,
			Suggestion: suggestion,
		})
	}
}

// validateRegexPatterns compiles every regex condition and records a hard
// error carrying the regexp engine diagnostic when compilation fails.
func (v *Validator) validateRegexPatterns(parsed *ParsedExpression, result *ValidationResult) {
	tree := parsed.ConditionTree()
	if tree == nil || tree.Root == nil {
		return
	}

	var walk func(node ConditionNode)
	walk = func(node ConditionNode) {
		switch n := node.(type) {
		case *Condition:
			if !n.Operator.IsRegex() {
				return
			}
			if _, err := regexp.Compile(n.Value); err != nil {
				result.IsValid = false
				result.Status = StatusInvalid
				result.Errors = append(result.Errors, ValidationError{
					Severity:  SeverityError,
					Category:  ErrorCategoryRegex,
					ErrorType: "invalid_regex",
					Message:   fmt.Sprintf("Invalid regex pattern %q", n.Value),
					Details:   err.Error(),
				})
			}
		case *ConditionGroup:
			for _, child := range n.Children {
				walk(child)
			}
		}
	}

	walk(tree.Root)
}

// suggestionThreshold is the minimum similarity score for offering a
// "did you mean" field name.
const suggestionThreshold = 55

// findFieldSuggestion picks the best-scoring known field name, if any
// clears the threshold.
func (v *Validator) findFieldSuggestion(field string, validFields map[string]bool) string {
	best, bestScore := "", 0
	for candidate := range validFields {
		if score := similarity(field, candidate); score >= suggestionThreshold && score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best
}

func runeSet(s string) map[rune]bool {
	set := map[rune]bool{}
	for _, ch := range s {
		set[ch] = true
	}
	return set
}

// similarity scores two strings 0-100 by shared character sets. Crude, but
// good enough to catch transposed or truncated field names.
func similarity(a, b string) int {
	if a == b {
		return 100
	}

	a, b = strings.ToLower(a), strings.ToLower(b)
	bSet := runeSet(b)

	common := 0
	for ch := range runeSet(a) {
		if bSet[ch] {
			common++
		}
	}

	longest := max(len(a), len(b))
	if longest == 0 {
		return 0
	}
	return (common * 100) / longest
}

// expressionToMap renders a parsed expression as a JSON-friendly tree.
func expressionToMap(parsed *ParsedExpression) map[string]any {
	if parsed == nil || parsed.Expression == nil {
		return nil
	}

	out := map[string]any{}
	switch expr := parsed.Expression.(type) {
	case *ConditionOnly:
		if expr.Condition != nil && expr.Condition.Root != nil {
			out["type"] = "condition_only"
			out["condition"] = conditionNodeToMap(expr.Condition.Root)
		}
	case *ConditionWithActions:
		out["type"] = "condition_with_actions"
		if expr.Condition != nil && expr.Condition.Root != nil {
			out["condition"] = conditionNodeToMap(expr.Condition.Root)
		}
		actions := make([]map[string]any, 0, len(expr.Actions))
		for _, action := range expr.Actions {
			actions = append(actions, map[string]any{
				"field": action.Field, "operator": string(action.Operator),
				"value": actionValueToString(action.Value),
			})
		}
		out["actions"] = actions
	}
	return out
}

func conditionNodeToMap(node ConditionNode) map[string]any {
	switch n := node.(type) {
	case *Condition:
		return map[string]any{
			"type":           "condition",
			"operator":       string(n.Operator),
			"field":          n.Field,
			"case_sensitive": n.CaseSensitive,
			"value":          n.Value,
		}
	case *ConditionGroup:
		children := make([]map[string]any, 0, len(n.Children))
		for _, child := range n.Children {
			children = append(children, conditionNodeToMap(child))
		}
		return map[string]any{
			"type":     "group",
			"children": children,
			"operator": string(n.Operator),
		}
	default:
		return nil
	}
}

// actionValueToString renders an action value the way the DSL writes it.
func actionValueToString(val ActionValue) string {
	switch v := val.(type) {
	case *CaptureReference:
		return fmt.Sprintf("$%d", v.Index)
	case *FieldReference:
		return "$" + v.Field
	case *LiteralValue:
		return v.Value
	default:
		return ""
	}
}
