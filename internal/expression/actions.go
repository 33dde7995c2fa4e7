package expression

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/chanarr/chanarr/internal/expression/helpers"
)

// FieldModification records a modification made by an action.
type FieldModification struct {
	Field    string         // Field name (or label key) that was modified
	OldValue string         // Previous value
	NewValue string         // New value
	Action   ActionOperator // Action that was performed
}

// String renders the modification in "field: old → new" form.
func (m FieldModification) String() string {
	if m.Action == ActionSetLabel {
		return fmt.Sprintf("label %s: %s", m.Field, m.NewValue)
	}
	return fmt.Sprintf("%s: %s → %s", m.Field, m.OldValue, m.NewValue)
}

// RuleResult contains the result of applying a rule.
type RuleResult struct {
	// Matched indicates whether the rule's condition matched.
	Matched bool

	// Modifications lists all field modifications made, in action order.
	Modifications []FieldModification

	// Captures contains regex capture groups if any.
	Captures []string
}

// ModifiableContext extends FieldValueAccessor with the ability to set
// field values and attach labels.
type ModifiableContext interface {
	FieldValueAccessor

	// SetFieldValue mutates a field on the underlying record.
	SetFieldValue(name, value string)

	// AppendLabel attaches a key/value label to the record without
	// touching any field. Duplicate keys accumulate.
	AppendLabel(key, value string)
}

// RuleProcessor applies rules (conditions + actions) to records.
// Actions run strictly in order; each action observes the mutations made
// by the ones before it.
type RuleProcessor struct {
	evaluator *Evaluator
	helpers   *helpers.Registry
}

// NewRuleProcessor creates a new rule processor using the default
// transform registry.
func NewRuleProcessor() *RuleProcessor {
	return NewRuleProcessorWithHelpers(helpers.DefaultRegistry())
}

// NewRuleProcessorWithHelpers creates a rule processor with a custom
// transform registry.
func NewRuleProcessorWithHelpers(reg *helpers.Registry) *RuleProcessor {
	return &RuleProcessor{
		evaluator: NewEvaluator(),
		helpers:   reg,
	}
}

// Evaluator exposes the processor's evaluator (shared regex cache).
func (p *RuleProcessor) Evaluator() *Evaluator {
	return p.evaluator
}

// Apply applies a parsed expression (rule) to a context.
// Returns the result including whether the condition matched and any
// modifications made.
func (p *RuleProcessor) Apply(parsed *ParsedExpression, ctx ModifiableContext) (*RuleResult, error) {
	if parsed == nil || parsed.Expression == nil {
		return &RuleResult{Matched: true}, nil
	}

	evalResult, err := p.evaluator.Evaluate(parsed, ctx)
	if err != nil {
		return nil, fmt.Errorf("condition evaluation failed: %w", err)
	}

	result := &RuleResult{
		Matched:  evalResult.Matches,
		Captures: evalResult.Captures,
	}

	if !evalResult.Matches {
		return result, nil
	}

	modifications, err := p.applyActions(parsed.Actions(), ctx, evalResult.Captures)
	if err != nil {
		return nil, err
	}
	result.Modifications = modifications

	return result, nil
}

// applyActions applies a list of actions to the context in order.
func (p *RuleProcessor) applyActions(actions []*Action, ctx ModifiableContext, captures []string) ([]FieldModification, error) {
	var modifications []FieldModification

	for _, action := range actions {
		mod, applied, err := p.applyAction(action, ctx, captures)
		if err != nil {
			return nil, err
		}
		if applied {
			modifications = append(modifications, mod)
		}
	}

	return modifications, nil
}

// applyAction applies a single action to the context.
// Returns the modification, whether it was applied, and any error.
func (p *RuleProcessor) applyAction(action *Action, ctx ModifiableContext, captures []string) (FieldModification, bool, error) {
	field := action.Field
	oldValue, _ := ctx.GetFieldValue(field)

	var newValue string

	switch action.Operator {
	case ActionSetValue:
		resolved, err := p.resolveValue(action.Value, ctx, captures)
		if err != nil {
			return FieldModification{}, false, err
		}
		newValue = resolved

	case ActionSetDefaultIfEmpty:
		// Checks the current value, which may already have been set by an
		// earlier action in the same rule.
		if oldValue != "" {
			return FieldModification{}, false, nil
		}
		resolved, err := p.resolveValue(action.Value, ctx, captures)
		if err != nil {
			return FieldModification{}, false, err
		}
		newValue = resolved

	case ActionSetLogo:
		resolved, err := p.resolveValue(action.Value, ctx, captures)
		if err != nil {
			return FieldModification{}, false, err
		}
		assetID, err := uuid.Parse(resolved)
		if err != nil {
			return FieldModification{}, false, fmt.Errorf("invalid logo asset id %q: %w", resolved, err)
		}
		// Stored as an opaque reference; resolution happens at publish time.
		newValue = assetID.String()

	case ActionSetLabel:
		resolved, err := p.resolveValue(action.Value, ctx, captures)
		if err != nil {
			return FieldModification{}, false, err
		}
		ctx.AppendLabel(field, resolved)
		return FieldModification{
			Field:    field,
			NewValue: resolved,
			Action:   ActionSetLabel,
		}, true, nil

	case ActionTransformValue:
		directive, err := p.resolveValue(action.Value, ctx, captures)
		if err != nil {
			return FieldModification{}, false, err
		}
		transformed, err := p.helpers.Transform(directive, oldValue)
		if err != nil {
			return FieldModification{}, false, fmt.Errorf("transform %q failed: %w", directive, err)
		}
		newValue = transformed

	default:
		return FieldModification{}, false, fmt.Errorf("unsupported action operator: %s", action.Operator)
	}

	ctx.SetFieldValue(field, newValue)

	return FieldModification{
		Field:    field,
		OldValue: oldValue,
		NewValue: newValue,
		Action:   action.Operator,
	}, true, nil
}

// resolveValue resolves an action value to a string.
func (p *RuleProcessor) resolveValue(value ActionValue, ctx ModifiableContext, captures []string) (string, error) {
	if value == nil {
		return "", nil
	}

	switch v := value.(type) {
	case *LiteralValue:
		return substituteCaptureReferences(v.Value, captures), nil

	case *FieldReference:
		fieldValue, _ := ctx.GetFieldValue(v.Field)
		return fieldValue, nil

	case *CaptureReference:
		if v.Index < 0 || v.Index >= len(captures) {
			return "", nil
		}
		return captures[v.Index], nil

	default:
		return "", fmt.Errorf("unsupported value type: %T", value)
	}
}

var captureRefPattern = regexp.MustCompile(`\$(\d+)`)

// substituteCaptureReferences replaces $1, $2, etc. with capture group values.
func substituteCaptureReferences(value string, captures []string) string {
	if len(captures) == 0 {
		return value
	}

	return captureRefPattern.ReplaceAllStringFunc(value, func(match string) string {
		idx, err := strconv.Atoi(strings.TrimPrefix(match, "$"))
		if err != nil || idx < 0 || idx >= len(captures) {
			return match
		}
		return captures[idx]
	})
}
