package expression

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Parser turns a token stream into an AST.
type Parser struct {
	toks []Token
	idx  int
}

// NewParser creates a parser over the given tokens.
func NewParser(tokens []Token) *Parser {
	return &Parser{toks: tokens}
}

// tok returns the token under the cursor, or EOF past the end.
func (p *Parser) tok() Token {
	if p.idx < len(p.toks) {
		return p.toks[p.idx]
	}
	return Token{Type: TokenEOF}
}

func (p *Parser) next() {
	p.idx++
}

// at reports whether the cursor is on a token of the given type.
func (p *Parser) at(tt TokenType) bool {
	return p.tok().Type == tt
}

// Parse parses the tokens into a ParsedExpression.
func (p *Parser) Parse() (*ParsedExpression, error) {
	// An empty token stream is the match-everything expression.
	if len(p.toks) == 0 || (len(p.toks) == 1 && p.toks[0].Type == TokenEOF) {
		return &ParsedExpression{Expression: &ConditionOnly{Condition: nil}}, nil
	}

	expr, err := p.parseExpression()
	if err == nil && !p.at(TokenEOF) {
		err = p.errorf("unexpected token: %s", p.tok().Value)
	}
	if err != nil {
		return nil, err
	}

	parsed := &ParsedExpression{Expression: expr}
	extractMetadata(parsed)
	return parsed, nil
}

// parseExpression parses a condition tree followed by optional actions.
func (p *Parser) parseExpression() (ExtendedExpression, error) {
	// Action-only expressions (no condition) are allowed; the empty
	// condition tree matches every record.
	var tree *ConditionTree
	if !p.at(TokenAction) {
		cond, err := p.parseChain()
		if err != nil {
			return nil, err
		}
		tree = NewConditionTree(cond)
	}

	if p.at(TokenAction) {
		actions, err := p.parseActions()
		if err != nil {
			return nil, err
		}
		return &ConditionWithActions{Condition: tree, Actions: actions}, nil
	}

	return &ConditionOnly{Condition: tree}, nil
}

// parseChain parses a flat chain of conditions joined by AND/OR.
// Operators are applied strictly left to right with no precedence
// between AND and OR: "a AND b OR c" groups as "(a AND b) OR c".
// Parentheses give explicit grouping.
func (p *Parser) parseChain() (ConditionNode, error) {
	left, err := p.parseUnaryCondition()
	if err != nil {
		return nil, err
	}

	for p.at(TokenAnd) || p.at(TokenOr) {
		op := LogicalAnd
		if p.at(TokenOr) {
			op = LogicalOr
		}
		p.next()

		right, err := p.parseUnaryCondition()
		if err != nil {
			return nil, err
		}
		// Same-operator runs flatten into a single group.
		group, ok := left.(*ConditionGroup)
		if ok && group.Operator == op {
			group.Children = append(group.Children, right)
			continue
		}
		left = NewConditionGroup(op, left, right)
	}

	return left, nil
}

// parseUnaryCondition parses a possibly NOT-prefixed condition.
func (p *Parser) parseUnaryCondition() (ConditionNode, error) {
	if !p.at(TokenNot) {
		return p.parsePrimaryCondition()
	}

	notTok := p.tok()
	p.next()
	node, err := p.parsePrimaryCondition()
	if err != nil {
		return nil, err
	}

	cond, ok := node.(*Condition)
	if !ok {
		return nil, p.errorAt(notTok, "NOT can only be applied to simple conditions")
	}
	negated, ok := cond.Operator.Negate()
	if !ok {
		return nil, p.errorAt(notTok, "operator %s has no negated form", cond.Operator)
	}
	cond.Operator = negated
	return cond, nil
}

// parsePrimaryCondition parses a parenthesized group or a simple condition.
func (p *Parser) parsePrimaryCondition() (ConditionNode, error) {
	if !p.at(TokenLParen) {
		return p.parseSimpleCondition()
	}

	open := p.tok()
	p.next()

	if p.at(TokenRParen) {
		return nil, p.errorAt(open, "empty parentheses")
	}

	inner, err := p.parseChain()
	if err != nil {
		return nil, err
	}
	if !p.at(TokenRParen) {
		return nil, p.errorf("expected ')' but got %s", p.describe())
	}
	p.next()
	return inner, nil
}

// parseSimpleCondition parses "field [not] [case_sensitive] operator value".
func (p *Parser) parseSimpleCondition() (*Condition, error) {
	if !p.at(TokenIdent) {
		return nil, p.errorf("expected field name but got %s", p.describe())
	}
	field := p.tok().Value
	p.next()

	// Modifiers between field and operator may come in any order.
	negated, caseSensitive := false, false
	for scanning := true; scanning; {
		switch {
		case p.at(TokenNot):
			negated = true
			p.next()
		case p.at(TokenIdent) && p.tok().Value == "case_sensitive":
			caseSensitive = true
			p.next()
		default:
			scanning = false
		}
	}

	if !p.at(TokenIdent) {
		return nil, p.errorf("expected operator but got %s", p.describe())
	}
	opStr := p.tok().Value
	op, ok := ParseFilterOperator(opStr)
	if !ok {
		return nil, p.operatorErrorf("unknown operator: %s", opStr)
	}
	if negated {
		if op, ok = op.Negate(); !ok {
			return nil, p.operatorErrorf("operator %s has no negated form", opStr)
		}
	}
	p.next()

	// Values may be quoted strings, numbers, or bare identifiers.
	switch p.tok().Type {
	case TokenString, TokenNumber, TokenIdent:
	default:
		return nil, p.errorf("expected value but got %s", p.describe())
	}
	value := p.tok().Value
	p.next()

	cond := NewCondition(field, op, value)
	cond.CaseSensitive = caseSensitive
	return cond, nil
}

// parseActions parses one or more action clauses.
func (p *Parser) parseActions() ([]*Action, error) {
	var actions []*Action

	for p.at(TokenAction) {
		opStr := p.tok().Value
		actionOp, ok := ParseActionOperator(opStr)
		if !ok {
			return nil, p.operatorErrorf("unknown action operator: %s", opStr)
		}
		p.next()

		// One action keyword may carry several comma-separated assignments.
		for {
			if !p.at(TokenIdent) {
				return nil, p.errorf("expected field name after %s", opStr)
			}
			field := p.tok().Value
			p.next()

			if !p.at(TokenEquals) {
				return nil, p.errorf("expected '=' after field name")
			}
			p.next()

			value, err := p.parseActionValue()
			if err != nil {
				return nil, err
			}
			actions = append(actions, NewAction(field, actionOp, value))
			if !p.at(TokenComma) {
				break
			}
			p.next()
		}
	}
	return actions, nil
}

// parseActionValue parses the right-hand side of an assignment.
func (p *Parser) parseActionValue() (ActionValue, error) {
	tok := p.tok()
	switch tok.Type {
	case TokenString, TokenNumber:
		p.next()
		return NewLiteralValue(tok.Value), nil

	case TokenIdent:
		p.next()
		// $1, $2, ... reference regex captures; $name references a field.
		if strings.HasPrefix(tok.Value, "$") {
			if len(tok.Value) > 1 && isDigit(rune(tok.Value[1])) {
				if idx, err := strconv.Atoi(tok.Value[1:]); err == nil {
					return &CaptureReference{Index: idx}, nil
				}
			}
			return &FieldReference{Field: tok.Value[1:]}, nil
		}
		return NewLiteralValue(tok.Value), nil

	default:
		return nil, p.errorf("expected value but got %s", p.describe())
	}
}

// describe renders the cursor token for error messages.
func (p *Parser) describe() string {
	if p.at(TokenEOF) {
		return "end of expression"
	}
	return fmt.Sprintf("%q", p.tok().Value)
}

func (p *Parser) errorf(format string, args ...any) error {
	return p.errorAt(p.tok(), format, args...)
}

// operatorErrorf builds a parse error in the operator category.
func (p *Parser) operatorErrorf(format string, args ...any) error {
	err := p.errorAt(p.tok(), format, args...).(*ParseError)
	err.Category = ErrorCategoryOperator
	return err
}

func (p *Parser) errorAt(tok Token, format string, args ...any) error {
	return &ParseError{
		Message:  fmt.Sprintf(format, args...),
		Category: ErrorCategorySyntax,
		Pos:      tok.Pos,
		Line:     tok.Line,
		Column:   tok.Column,
	}
}

// extractMetadata fills the derived fields of a ParsedExpression.
func extractMetadata(parsed *ParsedExpression) {
	if tree := parsed.ConditionTree(); tree != nil && tree.Root != nil {
		parsed.ReferencedFields = collectFields(tree.Root)
		parsed.UsesRegex = usesRegex(tree.Root)
	}
	actions := parsed.Actions()
	if len(actions) == 0 {
		return
	}
	parsed.HasActions = true
	for _, action := range actions {
		if action.Operator == ActionSetLabel {
			// Label keys are not record fields.
			continue
		}
		parsed.ModifiedFields = append(parsed.ModifiedFields, action.Field)
	}
}

// ParseError is a syntax or operator error with its source position.
type ParseError struct {
	Message  string
	Category ValidationErrorCategory
	Line     int
	Column   int
	Pos      int
}

// Error formats the position-qualified parse message.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// collectFields lists the distinct field names referenced by a condition
// tree, in first-use order.
func collectFields(node ConditionNode) []string {
	var fields []string
	seen := map[string]bool{}

	var walk func(n ConditionNode)
	walk = func(n ConditionNode) {
		switch c := n.(type) {
		case *Condition:
			if !seen[c.Field] {
				seen[c.Field] = true
				fields = append(fields, c.Field)
			}
		case *ConditionGroup:
			for _, child := range c.Children {
				walk(child)
			}
		}
	}
	walk(node)
	return fields
}

// usesRegex reports whether any condition in the tree uses a regex operator.
func usesRegex(node ConditionNode) bool {
	switch c := node.(type) {
	case *Condition:
		return c.Operator.IsRegex()
	case *ConditionGroup:
		return slices.ContainsFunc(c.Children, usesRegex)
	}
	return false
}

// Parse tokenizes and parses an expression string.
func Parse(input string) (*ParsedExpression, error) {
	tokens, err := NewLexer(input).Tokenize()
	if err != nil {
		return nil, fmt.Errorf("lexer error: %w", err)
	}

	parsed, err := NewParser(tokens).Parse()
	if parsed != nil {
		parsed.Original = input
	}
	return parsed, err
}

// MustParse parses an expression, panicking on error. For tests and
// expressions known to be static.
func MustParse(input string) *ParsedExpression {
	parsed, err := Parse(input)
	if err != nil {
		panic("expression parse error: " + err.Error())
	}
	return parsed
}
