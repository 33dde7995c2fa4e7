// Package expression parses and evaluates the condition and action
// language used by filters and data mapping rules.
package expression

// FilterOperator is a comparison operator inside a condition.
type FilterOperator string

// Comparison operators. Plain string tests first, then the regex pair.
const (
	OpContains    FilterOperator = "contains"
	OpEndsWith    FilterOperator = "ends_with"
	OpEquals      FilterOperator = "equals"
	OpNotContains FilterOperator = "not_contains"
	OpNotEquals   FilterOperator = "not_equals"
	OpStartsWith  FilterOperator = "starts_with"

	OpMatches    FilterOperator = "matches"
	OpNotMatches FilterOperator = "not_matches"
)

// IsNegated reports whether the operator is a negated form.
func (op FilterOperator) IsNegated() bool {
	return op.Base() != op
}

// Base strips the negation, mapping not_equals to equals and so on.
// Operators without a negated form come back unchanged.
func (op FilterOperator) Base() FilterOperator {
	switch op {
	case OpNotContains:
		return OpContains
	case OpNotEquals:
		return OpEquals
	case OpNotMatches:
		return OpMatches
	}
	return op
}

// negations pairs each operator with its opposite, in both directions.
var negations = map[FilterOperator]FilterOperator{
	OpContains: OpNotContains, OpNotContains: OpContains,
	OpEquals: OpNotEquals, OpNotEquals: OpEquals,
	OpMatches: OpNotMatches, OpNotMatches: OpMatches,
}

// Negate flips the operator to its opposite. The bool is false for
// operators that have no negated form, such as starts_with.
func (op FilterOperator) Negate() (FilterOperator, bool) {
	neg, ok := negations[op]
	if !ok {
		return op, false
	}
	return neg, true
}

// IsRegex reports whether the operator compares through a regular expression.
func (op FilterOperator) IsRegex() bool {
	switch op {
	case OpMatches, OpNotMatches:
		return true
	}
	return false
}

// LogicalOperator joins conditions inside a group.
type LogicalOperator string

// The two supported connectives.
const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// ActionOperator names a mutation an action applies to a record.
type ActionOperator string

// Action operators for field modifications.
const (
	// ActionSetValue replaces the field value unconditionally.
	ActionSetValue ActionOperator = "set_value"

	// ActionSetDefaultIfEmpty sets the field only if it's currently empty.
	ActionSetDefaultIfEmpty ActionOperator = "set_default_if_empty"

	// ActionSetLogo stores an opaque logo asset reference on the field.
	ActionSetLogo ActionOperator = "set_logo"

	// ActionSetLabel appends a key/value label to the record without
	// touching any field.
	ActionSetLabel ActionOperator = "set_label"

	// ActionTransformValue applies a named transform directive to the field.
	ActionTransformValue ActionOperator = "transform_value"
)

// operatorKeywords resolves source-text keywords to operators. The short
// aliases eq and neq are accepted on input only.
var operatorKeywords = map[string]FilterOperator{
	"contains":     OpContains,
	"ends_with":    OpEndsWith,
	"equals":       OpEquals,
	"matches":      OpMatches,
	"not_contains": OpNotContains,
	"not_equals":   OpNotEquals,
	"not_matches":  OpNotMatches,
	"starts_with":  OpStartsWith,

	"eq":  OpEquals,
	"neq": OpNotEquals,
}

// ParseFilterOperator resolves a keyword to its FilterOperator.
// The bool reports whether the keyword is known.
func ParseFilterOperator(s string) (FilterOperator, bool) {
	op, ok := operatorKeywords[s]
	return op, ok
}

// actionKeywords resolves action keywords. Uppercase is the canonical
// spelling; lowercase and the structured-form names are accepted too.
var actionKeywords = map[string]ActionOperator{
	"SET":          ActionSetValue,
	"SET_IF_EMPTY": ActionSetDefaultIfEmpty,
	"SET_LABEL":    ActionSetLabel,
	"SET_LOGO":     ActionSetLogo,
	"TRANSFORM":    ActionTransformValue,

	"set":          ActionSetValue,
	"set_if_empty": ActionSetDefaultIfEmpty,
	"set_label":    ActionSetLabel,
	"set_logo":     ActionSetLogo,
	"transform":    ActionTransformValue,

	"set_default_if_empty": ActionSetDefaultIfEmpty,
	"set_value":            ActionSetValue,
	"transform_value":      ActionTransformValue,
}

// ParseActionOperator resolves a keyword to its ActionOperator.
// The bool reports whether the keyword is known.
func ParseActionOperator(s string) (ActionOperator, bool) {
	op, ok := actionKeywords[s]
	return op, ok
}

// Keyword returns the canonical text-form keyword for the action operator.
func (op ActionOperator) Keyword() string {
	switch op {
	case ActionSetValue:
		return "SET"
	case ActionSetDefaultIfEmpty:
		return "SET_IF_EMPTY"
	case ActionSetLogo:
		return "SET_LOGO"
	case ActionSetLabel:
		return "SET_LABEL"
	case ActionTransformValue:
		return "TRANSFORM"
	default:
		return string(op)
	}
}
