package expression

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// symbolReplacer rewrites symbolic operators into canonical word tokens.
// Longer symbols come first so "!~" wins over "!=" at the same position.
var symbolReplacer = strings.NewReplacer(
	"!~", " not matches ",
	"=~", " matches ",
	"!=", " not equals ",
	"==", " equals ",
	"&&", " AND ",
	"||", " OR ",
	" and ", " AND ",
	" or ", " OR ",
)

// fusedNegationReplacer rewrites legacy fused negation tokens into the
// modifier + operator form.
var fusedNegationReplacer = strings.NewReplacer(
	" not_equals ", " not equals ",
	" not_matches ", " not matches ",
	" not_contains ", " not contains ",
)

// Preprocess canonicalizes an expression string before parsing: symbolic
// operators become word tokens, legacy fused negations become modifier
// form, pre-field modifiers move behind the field, and whitespace runs
// collapse to single spaces.
func Preprocess(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	s := symbolReplacer.Replace(raw)
	s = fusedNegationReplacer.Replace(s)
	s = relocatePreFieldModifiers(s)
	return collapseWhitespace(s)
}

func isPreFieldModifier(tok string) bool {
	return tok == "not" || tok == "case_sensitive"
}

// relocatePreFieldModifiers rewrites the legacy "not field contains value"
// form into "field not contains value".
func relocatePreFieldModifiers(input string) string {
	trimmed := strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(trimmed, "not ") && !strings.HasPrefix(trimmed, "case_sensitive ") {
		return input
	}

	parts := strings.Fields(trimmed)
	if len(parts) < 2 {
		return input
	}

	fieldIdx := 0
	for fieldIdx < len(parts) && isPreFieldModifier(parts[fieldIdx]) {
		fieldIdx++
	}
	if fieldIdx == 0 || fieldIdx >= len(parts) {
		return input
	}

	reordered := make([]string, 0, len(parts))
	reordered = append(reordered, parts[fieldIdx])
	reordered = append(reordered, parts[:fieldIdx]...)
	reordered = append(reordered, parts[fieldIdx+1:]...)

	leadingWs := input[:len(input)-len(trimmed)]
	return leadingWs + strings.Join(reordered, " ")
}

// collapseWhitespace squeezes whitespace runs and trims the ends.
func collapseWhitespace(input string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(input, " "))
}

// PreprocessAndParse runs Preprocess and parses the result.
func PreprocessAndParse(raw string) (*ParsedExpression, error) {
	return Parse(Preprocess(raw))
}
