package expression

import (
	"fmt"
	"strings"
)

// TokenType classifies a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError
	TokenIdent  // field names, operators, keywords
	TokenString // "quoted string" or 'quoted string'
	TokenNumber // integer or float
	TokenEquals // =
	TokenAnd    // AND, &&
	TokenOr     // OR, ||
	TokenNot    // NOT, !
	TokenLParen // (
	TokenRParen // )
	TokenAction // SET, SET_IF_EMPTY, SET_LOGO, SET_LABEL, TRANSFORM
	TokenComma  // ,
)

var tokenTypeNames = [...]string{
	TokenEOF:    "EOF",
	TokenError:  "Error",
	TokenIdent:  "Ident",
	TokenString: "String",
	TokenNumber: "Number",
	TokenEquals: "Equals",
	TokenAnd:    "And",
	TokenOr:     "Or",
	TokenNot:    "Not",
	TokenLParen: "LParen",
	TokenRParen: "RParen",
	TokenAction: "Action",
	TokenComma:  "Comma",
}

func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenTypeNames) {
		return tokenTypeNames[t]
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token is a single lexical token with its source position.
type Token struct {
	Type   TokenType
	Value  string
	Pos    int // byte offset in input
	Line   int
	Column int
}

// String renders the token for error messages, truncating long values.
func (t Token) String() string {
	switch {
	case t.Type == TokenEOF:
		return "EOF"
	case t.Type == TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Value)
	case len(t.Value) > 20:
		return fmt.Sprintf("%s(%.20s...)", t.Type, t.Value)
	}
	return fmt.Sprintf("%s(%s)", t.Type, t.Value)
}

// keywords holds the reserved identifiers. Only the all-lower and
// all-upper spellings are recognized; the upper forms are derived in init.
var keywords = map[string]TokenType{
	"and":          TokenAnd,
	"or":           TokenOr,
	"not":          TokenNot,
	"set":          TokenAction,
	"set_if_empty": TokenAction,
	"set_logo":     TokenAction,
	"set_label":    TokenAction,
	"transform":    TokenAction,
}

func init() {
	for kw, tok := range keywords {
		keywords[strings.ToUpper(kw)] = tok
	}
}

// LookupKeyword maps an identifier to its keyword token type, or
// TokenIdent when it is not reserved.
func LookupKeyword(ident string) TokenType {
	tok, ok := keywords[ident]
	if !ok {
		return TokenIdent
	}
	return tok
}
