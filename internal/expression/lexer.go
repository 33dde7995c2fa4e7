package expression

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes an expression string.
type Lexer struct {
	src       string
	cur       int // byte offset of the read cursor
	tokStart  int // byte offset where the current token began
	lastWidth int // width of the most recently read rune
	line      int
	column    int
	out       []Token
}

// NewLexer creates a lexer over the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{src: input, line: 1, column: 1}
}

// Tokenize lexes the whole input. The returned slice always ends with an
// EOF token unless lexing stopped at an error.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		tok := l.lex()
		l.out = append(l.out, tok)
		switch tok.Type {
		case TokenEOF:
			return l.out, nil
		case TokenError:
			lexErr := &LexError{Message: tok.Value, Pos: tok.Pos, Line: tok.Line, Column: tok.Column}
			return l.out, lexErr
		}
	}
}

// LexError is a tokenization error with its source position.
type LexError struct {
	Message string

	Pos    int
	Line   int
	Column int
}

func (e *LexError) Error() string { return e.Message }

// lex produces the next token.
func (l *Lexer) lex() Token {
	l.skipSpace()

	if l.cur >= len(l.src) {
		return l.emit(TokenEOF, "")
	}

	l.tokStart = l.cur
	ch := l.advance()

	switch ch {
	case '(':
		return l.emit(TokenLParen, "(")
	case ')':
		return l.emit(TokenRParen, ")")
	case ',':
		return l.emit(TokenComma, ",")
	case '=':
		if l.peek() == '=' {
			l.advance()
			return l.emit(TokenEquals, "==")
		}
		return l.emit(TokenEquals, "=")
	case '!':
		if l.peek() == '=' {
			l.advance()
			return l.errTok("unexpected '!=' (use 'not equals')")
		}
		return l.emit(TokenNot, "!")
	case '&':
		if l.peek() == '&' {
			l.advance()
			return l.emit(TokenAnd, "&&")
		}
		return l.errTok("unexpected character '&'")
	case '|':
		if l.peek() == '|' {
			l.advance()
			return l.emit(TokenOr, "||")
		}
		return l.errTok("unexpected character '|'")
	case '-':
		if isDigit(l.peek()) {
			l.retreat()
			return l.lexNumber()
		}
		return l.errTok("unexpected character '-'")
	case '"', '\'':
		return l.lexString(ch)
	}

	switch {
	case isDigit(ch):
		l.retreat()
		return l.lexNumber()
	case isIdentStart(ch):
		l.retreat()
		return l.lexWord()
	}
	return l.errTok("unexpected character '" + string(ch) + "'")
}

// escapes maps recognized backslash escapes inside quoted strings.
var escapes = map[rune]rune{
	'n':  '\n',
	't':  '\t',
	'r':  '\r',
	'\\': '\\',
	'"':  '"',
	'\'': '\'',
}

// lexString scans a quoted string, resolving escapes.
func (l *Lexer) lexString(quote rune) Token {
	var sb strings.Builder

	for {
		ch := l.advance()
		switch ch {
		case 0:
			return l.errTok("unterminated string")
		case quote:
			return l.emit(TokenString, sb.String())
		case '\\':
			raw := l.advance()
			if resolved, ok := escapes[raw]; ok {
				sb.WriteRune(resolved)
			} else {
				sb.WriteRune(raw)
			}
		default:
			sb.WriteRune(ch)
		}
	}
}

// lexNumber scans an optionally signed decimal literal.
func (l *Lexer) lexNumber() Token {
	if l.peek() == '-' {
		l.advance()
	}
	l.takeDigits()
	if l.peek() == '.' {
		l.advance()
		l.takeDigits()
	}
	return l.emit(TokenNumber, l.src[l.tokStart:l.cur])
}

func (l *Lexer) takeDigits() {
	for isDigit(l.peek()) {
		l.advance()
	}
}

// lexWord scans an identifier and classifies keywords.
func (l *Lexer) lexWord() Token {
	for isIdentPart(l.peek()) {
		l.advance()
	}
	word := l.src[l.tokStart:l.cur]
	return l.emit(LookupKeyword(word), word)
}

// advance reads one rune, returning 0 at end of input.
func (l *Lexer) advance() rune {
	if l.cur >= len(l.src) {
		l.lastWidth = 0
		return 0
	}
	r, w := utf8.DecodeRuneInString(l.src[l.cur:])
	l.lastWidth = w
	l.cur += w

	if r == '\n' {
		l.line++
		l.column = 1
		return r
	}
	l.column++
	return r
}

// retreat un-reads the last rune.
func (l *Lexer) retreat() {
	l.cur -= l.lastWidth
	if l.lastWidth > 0 && l.src[l.cur] == '\n' {
		l.line--
	}
	l.column--
}

func (l *Lexer) peek() rune {
	if l.cur >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.cur:])
	return r
}

func (l *Lexer) skipSpace() {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		default:
			return
		}
	}
}

// emit builds a token starting at tokStart.
func (l *Lexer) emit(typ TokenType, value string) Token {
	return Token{
		Type:   typ,
		Value:  value,
		Pos:    l.tokStart,
		Line:   l.line,
		Column: l.column - len(value),
	}
}

func (l *Lexer) errTok(msg string) Token {
	return Token{
		Type:   TokenError,
		Value:  msg,
		Pos:    l.tokStart,
		Line:   l.line,
		Column: l.column,
	}
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

// isIdentStart reports whether ch can begin an identifier. @ and $ start
// the helper-function and reference forms.
func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_' || ch == '@' || ch == '$'
}

func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == ':' || ch == '-' || ch == '$' || ch == '@'
}
