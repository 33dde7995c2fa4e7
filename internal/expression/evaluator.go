package expression

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// FieldValueAccessor supplies field values during evaluation.
type FieldValueAccessor interface {
	// GetFieldValue reports the value of the named field and whether it
	// is present. Absent fields evaluate as the empty string.
	GetFieldValue(name string) (string, bool)
}

// EvaluationResult is the outcome of evaluating an expression.
type EvaluationResult struct {
	// Matches indicates whether the expression matched.
	Matches bool

	// Captures holds regex capture groups when a regex operator matched.
	// Index 0 is the full match, subsequent indices are capture groups.
	Captures []string
}

// ConditionOutcome records the result of one condition during a detailed
// evaluation pass.
type ConditionOutcome struct {
	Field      string `json:"field"`
	Operator   string `json:"operator"`
	Value      string `json:"value"`
	FieldValue string `json:"field_value"`
	Matched    bool   `json:"matched"`
}

// Evaluator evaluates parsed expressions against field values.
// String comparisons are case-insensitive unless a condition carries the
// case_sensitive modifier. Compiled regexes are cached and shared across
// records; the evaluator is safe for concurrent use.
type Evaluator struct {
	regexes sync.Map // pattern -> *regexp.Regexp
}

// NewEvaluator creates a new expression evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate evaluates a parsed expression against the given field accessor.
// An empty expression matches everything.
func (e *Evaluator) Evaluate(parsed *ParsedExpression, accessor FieldValueAccessor) (*EvaluationResult, error) {
	// An absent expression matches everything.
	if parsed == nil || parsed.Expression == nil {
		return &EvaluationResult{Matches: true}, nil
	}

	tree := parsed.ConditionTree()
	if tree == nil || tree.Root == nil {
		return &EvaluationResult{Matches: true}, nil
	}
	return e.evalNode(tree.Root, accessor)
}

// EvaluateDetailed evaluates without short-circuiting and records the
// outcome of every condition. Intended for rule previews; Evaluate is the
// hot path.
func (e *Evaluator) EvaluateDetailed(parsed *ParsedExpression, accessor FieldValueAccessor) (*EvaluationResult, []ConditionOutcome, error) {
	tree := parsed.ConditionTree()
	if tree == nil || tree.Root == nil {
		return &EvaluationResult{Matches: true}, nil, nil
	}

	var outcomes []ConditionOutcome
	result, err := e.evalNodeDetailed(tree.Root, accessor, &outcomes)
	if err != nil {
		return nil, outcomes, err
	}
	return result, outcomes, nil
}

func (e *Evaluator) evalNode(node ConditionNode, accessor FieldValueAccessor) (*EvaluationResult, error) {
	switch n := node.(type) {
	case *Condition:
		return e.evalCondition(n, accessor)
	case *ConditionGroup:
		return e.evalGroup(n, accessor)
	default:
		return nil, fmt.Errorf("unsupported node type: %T", node)
	}
}

// evalGroup short-circuits: the first false child decides an AND group and
// the first true child decides an OR group.
func (e *Evaluator) evalGroup(group *ConditionGroup, accessor FieldValueAccessor) (*EvaluationResult, error) {
	if len(group.Children) == 0 {
		return &EvaluationResult{Matches: true}, nil
	}

	conjunctive := group.Operator == LogicalAnd
	if !conjunctive && group.Operator != LogicalOr {
		return nil, fmt.Errorf("unsupported logical operator: %s", group.Operator)
	}

	var captures []string
	for _, child := range group.Children {
		res, err := e.evalNode(child, accessor)
		if err != nil {
			return nil, err
		}
		if res.Matches != conjunctive {
			if conjunctive {
				return &EvaluationResult{Matches: false}, nil
			}
			return res, nil
		}
		if len(res.Captures) > 0 {
			captures = res.Captures
		}
	}

	if conjunctive {
		return &EvaluationResult{Matches: true, Captures: captures}, nil
	}
	return &EvaluationResult{Matches: false}, nil
}

// evalNodeDetailed mirrors evalNode but visits every condition.
func (e *Evaluator) evalNodeDetailed(node ConditionNode, accessor FieldValueAccessor, outcomes *[]ConditionOutcome) (*EvaluationResult, error) {
	group, ok := node.(*ConditionGroup)
	if !ok {
		cond, ok := node.(*Condition)
		if !ok {
			return nil, fmt.Errorf("unsupported node type: %T", node)
		}
		res, err := e.evalCondition(cond, accessor)
		if err != nil {
			return nil, err
		}
		have, _ := accessor.GetFieldValue(cond.Field)
		*outcomes = append(*outcomes, ConditionOutcome{
			Field:      cond.Field,
			Operator:   string(cond.Operator),
			Value:      cond.Value,
			FieldValue: have,
			Matched:    res.Matches,
		})
		return res, nil
	}

	if len(group.Children) == 0 {
		return &EvaluationResult{Matches: true}, nil
	}

	conjunctive := group.Operator == LogicalAnd
	matched := conjunctive
	var captures []string
	for _, child := range group.Children {
		res, err := e.evalNodeDetailed(child, accessor, outcomes)
		if err != nil {
			return nil, err
		}
		if len(res.Captures) > 0 {
			captures = res.Captures
		}
		if conjunctive {
			matched = matched && res.Matches
		} else {
			matched = matched || res.Matches
		}
	}
	return &EvaluationResult{Matches: matched, Captures: captures}, nil
}

func (e *Evaluator) evalCondition(cond *Condition, accessor FieldValueAccessor) (*EvaluationResult, error) {
	have, _ := accessor.GetFieldValue(cond.Field)

	if cond.Operator.IsRegex() {
		matched, captures, err := e.matchRegex(have, cond.Value, cond.CaseSensitive)
		if err != nil {
			return nil, err
		}
		if cond.Operator == OpNotMatches {
			return &EvaluationResult{Matches: !matched}, nil
		}
		return &EvaluationResult{Matches: matched, Captures: captures}, nil
	}

	want := cond.Value
	if !cond.CaseSensitive {
		have = strings.ToLower(have)
		want = strings.ToLower(want)
	}

	matched, err := compareStrings(cond.Operator, have, want)
	if err != nil {
		return nil, err
	}
	return &EvaluationResult{Matches: matched}, nil
}

func compareStrings(op FilterOperator, have, want string) (bool, error) {
	switch op {
	case OpEquals:
		return have == want, nil
	case OpNotEquals:
		return have != want, nil
	case OpContains:
		return strings.Contains(have, want), nil
	case OpNotContains:
		return !strings.Contains(have, want), nil
	case OpStartsWith:
		return strings.HasPrefix(have, want), nil
	case OpEndsWith:
		return strings.HasSuffix(have, want), nil
	default:
		return false, fmt.Errorf("unsupported operator: %s", op)
	}
}

// matchRegex performs containment matching with capture group extraction.
func (e *Evaluator) matchRegex(value, pattern string, caseSensitive bool) (bool, []string, error) {
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}

	re, err := e.compiled(pattern)
	if err != nil {
		return false, nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}

	groups := re.FindStringSubmatch(value)
	if groups == nil {
		return false, nil, nil
	}
	return true, groups, nil
}

func (e *Evaluator) compiled(pattern string) (*regexp.Regexp, error) {
	if cached, ok := e.regexes.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	re, compileErr := regexp.Compile(pattern)
	if compileErr != nil {
		return nil, compileErr
	}
	e.regexes.Store(pattern, re)
	return re, nil
}

// MapAccessor is a FieldValueAccessor backed by a plain map.
type MapAccessor map[string]string

// GetFieldValue returns the value of a field from the map.
func (m MapAccessor) GetFieldValue(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}
