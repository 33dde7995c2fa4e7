package expression

// Node is implemented by every AST node.
type Node interface {
	node()
}

// ConditionNode is either a single Condition or a ConditionGroup.
type ConditionNode interface {
	Node
	conditionNode()
}

// Condition compares one field against a value.
type Condition struct {
	Field    string
	Operator FilterOperator
	Value    string

	// CaseSensitive makes the comparison exact; the default compares
	// case-insensitively.
	CaseSensitive bool
}

// ConditionGroup joins child nodes with AND or OR.
type ConditionGroup struct {
	Operator LogicalOperator
	Children []ConditionNode
}

// ConditionTree wraps the root of a condition tree.
type ConditionTree struct {
	Root ConditionNode
}

// IsEmpty reports whether the tree carries no conditions at all.
func (t *ConditionTree) IsEmpty() bool {
	return t == nil || t.Root == nil
}

// Action modifies one field when the condition side matched. For set_label
// the Field holds the label key rather than a record field.
type Action struct {
	Field    string
	Operator ActionOperator
	Value    ActionValue
}

// ActionValue is the right-hand side of an action: a literal, a field
// reference, or a regex capture reference.
type ActionValue interface {
	Node
	actionValue()
}

// LiteralValue is a quoted string value.
type LiteralValue struct {
	Value string
}

// FieldReference reads another field's current value ($field).
type FieldReference struct {
	Field string
}

// CaptureReference reads a regex capture group ($1, $2, ...).
type CaptureReference struct {
	Index int // 1-based
}

// ExtendedExpression is a complete parsed expression, with or without an
// action list.
type ExtendedExpression interface {
	Node
	extendedExpression()
}

// ConditionOnly is a bare filter expression.
type ConditionOnly struct {
	Condition *ConditionTree
}

// ConditionWithActions is a data mapping expression:
// condition SET field = value, field2 = value2
type ConditionWithActions struct {
	Condition *ConditionTree
	Actions   []*Action
}

func (c *Condition) node()            {}
func (g *ConditionGroup) node()       {}
func (t *ConditionTree) node()        {}
func (a *Action) node()               {}
func (v *LiteralValue) node()         {}
func (v *FieldReference) node()       {}
func (v *CaptureReference) node()     {}
func (e *ConditionOnly) node()        {}
func (e *ConditionWithActions) node() {}

func (c *Condition) conditionNode()      {}
func (g *ConditionGroup) conditionNode() {}

func (v *LiteralValue) actionValue()     {}
func (v *FieldReference) actionValue()   {}
func (v *CaptureReference) actionValue() {}

func (e *ConditionOnly) extendedExpression()        {}
func (e *ConditionWithActions) extendedExpression() {}

// ParsedExpression carries the AST plus metadata extracted during parsing.
type ParsedExpression struct {
	// Original is the expression text as written.
	Original string

	// Expression is the parsed AST.
	Expression ExtendedExpression

	// HasActions indicates the expression carries a SET clause.
	HasActions bool

	// UsesRegex indicates a condition uses matches/not_matches.
	UsesRegex bool

	// ReferencedFields lists every field read by conditions.
	ReferencedFields []string

	// ModifiedFields lists every field an action may write.
	ModifiedFields []string
}

// ConditionTree returns the condition side of the expression, or nil.
func (p *ParsedExpression) ConditionTree() *ConditionTree {
	if p == nil {
		return nil
	}
	switch expr := p.Expression.(type) {
	case *ConditionOnly:
		return expr.Condition
	case *ConditionWithActions:
		return expr.Condition
	default:
		return nil
	}
}

// Actions returns the action list of the expression, or nil.
func (p *ParsedExpression) Actions() []*Action {
	if p == nil {
		return nil
	}
	if expr, ok := p.Expression.(*ConditionWithActions); ok {
		return expr.Actions
	}
	return nil
}

// NewCondition builds a case-insensitive condition.
func NewCondition(field string, op FilterOperator, value string) *Condition {
	return &Condition{Field: field, Operator: op, Value: value}
}

// NewConditionGroup joins the given nodes under one logical operator.
func NewConditionGroup(op LogicalOperator, children ...ConditionNode) *ConditionGroup {
	return &ConditionGroup{Operator: op, Children: children}
}

// NewConditionTree wraps a root node.
func NewConditionTree(root ConditionNode) *ConditionTree {
	return &ConditionTree{Root: root}
}

// NewAction builds an action.
func NewAction(field string, op ActionOperator, value ActionValue) *Action {
	return &Action{Field: field, Operator: op, Value: value}
}

// NewLiteralValue wraps a literal string.
func NewLiteralValue(value string) *LiteralValue {
	return &LiteralValue{Value: value}
}

// And groups conditions conjunctively.
func And(conditions ...ConditionNode) *ConditionGroup {
	return NewConditionGroup(LogicalAnd, conditions...)
}

// Or groups conditions disjunctively.
func Or(conditions ...ConditionNode) *ConditionGroup {
	return NewConditionGroup(LogicalOr, conditions...)
}
