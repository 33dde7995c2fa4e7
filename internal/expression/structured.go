package expression

import (
	"fmt"
	"strings"
)

// ConditionInput is the structured (JSON) form of a single condition.
// LogicalOperator joins the condition to the one before it and must be
// empty on the first condition. Conditions chain left to right with no
// precedence between AND and OR, exactly like the text form.
type ConditionInput struct {
	Field           string `json:"field"`
	Operator        string `json:"operator"`
	Value           string `json:"value"`
	CaseSensitive   bool   `json:"case_sensitive,omitempty"`
	LogicalOperator string `json:"logical_operator,omitempty"`
}

// ActionInput is the structured (JSON) form of a single action.
type ActionInput struct {
	ActionType  string `json:"action_type"`
	TargetField string `json:"target_field"`
	Value       string `json:"value"`
}

// FromStructured builds a ParsedExpression from structured conditions and
// actions. The resulting AST is identical to parsing the equivalent text.
func FromStructured(conditions []ConditionInput, actions []ActionInput) (*ParsedExpression, error) {
	var root ConditionNode

	for i, ci := range conditions {
		op, ok := ParseFilterOperator(ci.Operator)
		if !ok {
			return nil, fmt.Errorf("condition %d: unknown operator %q", i, ci.Operator)
		}
		cond := NewCondition(ci.Field, op, ci.Value)
		cond.CaseSensitive = ci.CaseSensitive

		if i == 0 {
			if ci.LogicalOperator != "" {
				return nil, fmt.Errorf("condition 0: logical_operator must be empty on the first condition")
			}
			root = cond
			continue
		}

		var logical LogicalOperator
		switch strings.ToUpper(ci.LogicalOperator) {
		case "AND":
			logical = LogicalAnd
		case "OR":
			logical = LogicalOr
		default:
			return nil, fmt.Errorf("condition %d: invalid logical_operator %q", i, ci.LogicalOperator)
		}

		// Same left-to-right fold as the text parser
		if group, ok := root.(*ConditionGroup); ok && group.Operator == logical {
			group.Children = append(group.Children, cond)
		} else {
			root = NewConditionGroup(logical, root, cond)
		}
	}

	var astActions []*Action
	for i, ai := range actions {
		op, ok := ParseActionOperator(ai.ActionType)
		if !ok {
			return nil, fmt.Errorf("action %d: unknown action_type %q", i, ai.ActionType)
		}
		astActions = append(astActions, NewAction(ai.TargetField, op, NewLiteralValue(ai.Value)))
	}

	var expr ExtendedExpression
	var tree *ConditionTree
	if root != nil {
		tree = NewConditionTree(root)
	}
	if len(astActions) > 0 {
		expr = &ConditionWithActions{Condition: tree, Actions: astActions}
	} else {
		expr = &ConditionOnly{Condition: tree}
	}

	parsed := &ParsedExpression{Expression: expr}
	extractMetadata(parsed)
	return parsed, nil
}

// ToStructured converts a ParsedExpression back to structured form.
// Only flat chains produced by FromStructured or by unparenthesized text
// round-trip losslessly; expressions with explicit grouping return an error.
func ToStructured(parsed *ParsedExpression) ([]ConditionInput, []ActionInput, error) {
	var conditions []ConditionInput

	if tree := parsed.ConditionTree(); tree != nil && tree.Root != nil {
		flat, err := linearizeChain(tree.Root)
		if err != nil {
			return nil, nil, err
		}
		conditions = flat
	}

	var actions []ActionInput
	for _, a := range parsed.Actions() {
		actions = append(actions, ActionInput{
			ActionType:  string(a.Operator),
			TargetField: a.Field,
			Value:       actionValueToString(a.Value),
		})
	}

	return conditions, actions, nil
}

// linearizeChain flattens a left-folded condition tree into a sequence.
// The leftmost child may itself be a chain; every other child must be a
// simple condition, otherwise the tree carries grouping that the flat form
// cannot express.
func linearizeChain(node ConditionNode) ([]ConditionInput, error) {
	switch n := node.(type) {
	case *Condition:
		return []ConditionInput{conditionToInput(n, "")}, nil

	case *ConditionGroup:
		if len(n.Children) == 0 {
			return nil, nil
		}

		result, err := linearizeChain(n.Children[0])
		if err != nil {
			return nil, err
		}

		for _, child := range n.Children[1:] {
			cond, ok := child.(*Condition)
			if !ok {
				return nil, fmt.Errorf("expression contains nested grouping and cannot be flattened")
			}
			result = append(result, conditionToInput(cond, string(n.Operator)))
		}

		return result, nil

	default:
		return nil, fmt.Errorf("unsupported node type: %T", node)
	}
}

func conditionToInput(c *Condition, logical string) ConditionInput {
	return ConditionInput{
		Field:           c.Field,
		Operator:        string(c.Operator),
		Value:           c.Value,
		CaseSensitive:   c.CaseSensitive,
		LogicalOperator: logical,
	}
}

// ToText renders a ParsedExpression as canonical expression text.
// Flat chains render without parentheses; nested groups render
// parenthesized.
func ToText(parsed *ParsedExpression) string {
	if parsed == nil || parsed.Expression == nil {
		return ""
	}

	var sb strings.Builder

	if tree := parsed.ConditionTree(); tree != nil && tree.Root != nil {
		writeConditionText(&sb, tree.Root, true)
	}

	actions := parsed.Actions()
	for i, a := range actions {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		// Consecutive actions with the same operator share one keyword
		if i == 0 || actions[i-1].Operator != a.Operator {
			sb.WriteString(a.Operator.Keyword())
			sb.WriteByte(' ')
		}
		sb.WriteString(a.Field)
		sb.WriteString(" = ")
		sb.WriteString(quoteValue(actionValueToString(a.Value)))
		if i < len(actions)-1 && actions[i+1].Operator == a.Operator {
			sb.WriteByte(',')
		}
	}

	return sb.String()
}

func writeConditionText(sb *strings.Builder, node ConditionNode, topLevel bool) {
	switch n := node.(type) {
	case *Condition:
		sb.WriteString(n.Field)
		sb.WriteByte(' ')
		if n.Operator.IsNegated() {
			sb.WriteString("not ")
		}
		if n.CaseSensitive {
			sb.WriteString("case_sensitive ")
		}
		sb.WriteString(string(n.Operator.Base()))
		sb.WriteByte(' ')
		sb.WriteString(quoteValue(n.Value))

	case *ConditionGroup:
		if !topLevel {
			sb.WriteByte('(')
		}
		for i, child := range n.Children {
			if i > 0 {
				sb.WriteByte(' ')
				sb.WriteString(string(n.Operator))
				sb.WriteByte(' ')
			}
			// Only the leftmost child continues the flat chain
			writeConditionText(sb, child, topLevel && i == 0)
		}
		if !topLevel {
			sb.WriteByte(')')
		}
	}
}

func quoteValue(v string) string {
	escaped := strings.ReplaceAll(v, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}
