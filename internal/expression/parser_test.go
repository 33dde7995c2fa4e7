package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_EmptyExpression(t *testing.T) {
	parsed, err := Parse("")
	require.NoError(t, err)

	condOnly, ok := parsed.Expression.(*ConditionOnly)
	require.True(t, ok)
	assert.Nil(t, condOnly.Condition, "empty input should parse to a nil condition")
}

func TestParser_SimpleCondition(t *testing.T) {
	cases := []struct {
		name, input, field, value string
		operator                  FilterOperator
	}{
		{"equals with quoted string", `channel_name equals "BBC One"`, "channel_name", "BBC One", OpEquals},
		{"contains", `group_title contains "Sport"`, "group_title", "Sport", OpContains},
		{"starts_with", `channel_name starts_with "BBC"`, "channel_name", "BBC", OpStartsWith},
		{"ends_with", `stream_url ends_with ".m3u8"`, "stream_url", ".m3u8", OpEndsWith},
		{"matches regex", `channel_name matches "BBC.*"`, "channel_name", "BBC.*", OpMatches},
		{"not_equals keyword", `group_title not_equals "Adult"`, "group_title", "Adult", OpNotEquals},
		{"mid-field not modifier", `channel_name not contains "XXX"`, "channel_name", "XXX", OpNotContains},
		{"not_matches", `tvg_id not_matches "^uk\\."`, "tvg_id", `^uk\.`, OpNotMatches},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.input)
			require.NoError(t, err)

			condOnly, ok := parsed.Expression.(*ConditionOnly)
			require.True(t, ok)
			cond, ok := condOnly.Condition.Root.(*Condition)
			require.True(t, ok)
			assert.Equal(t, tc.field, cond.Field)
			assert.Equal(t, tc.operator, cond.Operator)
			assert.Equal(t, tc.value, cond.Value)
		})
	}
}

func TestParser_CaseSensitiveModifier(t *testing.T) {
	parsed, err := Parse(`channel_name case_sensitive contains "BBC"`)
	require.NoError(t, err)

	cond := parsed.ConditionTree().Root.(*Condition)
	assert.True(t, cond.CaseSensitive)
	assert.Equal(t, OpContains, cond.Operator)

	// Combined with not, in either order
	parsed, err = Parse(`channel_name not case_sensitive contains "BBC"`)
	require.NoError(t, err)
	cond = parsed.ConditionTree().Root.(*Condition)
	assert.True(t, cond.CaseSensitive)
	assert.Equal(t, OpNotContains, cond.Operator)
}

func TestParser_FlatLeftToRightChaining(t *testing.T) {
	// No precedence between AND and OR: "a AND b OR c" is "(a AND b) OR c"
	parsed, err := Parse(`channel_name contains "a" AND group_title equals "b" OR tvg_id equals "c"`)
	require.NoError(t, err)

	root, ok := parsed.ConditionTree().Root.(*ConditionGroup)
	require.True(t, ok)
	assert.Equal(t, LogicalOr, root.Operator)
	require.Len(t, root.Children, 2)

	inner, ok := root.Children[0].(*ConditionGroup)
	require.True(t, ok)
	assert.Equal(t, LogicalAnd, inner.Operator)
	require.Len(t, inner.Children, 2)

	last, ok := root.Children[1].(*Condition)
	require.True(t, ok)
	assert.Equal(t, "tvg_id", last.Field)
}

func TestParser_ChainFlattening(t *testing.T) {
	// Runs of the same operator flatten into one group
	parsed, err := Parse(`a equals "1" AND b equals "2" AND c equals "3"`)
	require.NoError(t, err)

	root := parsed.ConditionTree().Root.(*ConditionGroup)
	assert.Equal(t, LogicalAnd, root.Operator)
	assert.Len(t, root.Children, 3)
}

func TestParser_ParenthesizedGrouping(t *testing.T) {
	parsed, err := Parse(`channel_name contains "a" AND (group_title equals "b" OR group_title equals "c")`)
	require.NoError(t, err)

	root := parsed.ConditionTree().Root.(*ConditionGroup)
	assert.Equal(t, LogicalAnd, root.Operator)
	require.Len(t, root.Children, 2)

	sub, ok := root.Children[1].(*ConditionGroup)
	require.True(t, ok)
	assert.Equal(t, LogicalOr, sub.Operator)
	assert.Len(t, sub.Children, 2)
}

func TestParser_EmptyParens(t *testing.T) {
	_, err := Parse(`()`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty parentheses")
}

func TestParser_UnbalancedParens(t *testing.T) {
	_, err := Parse(`(channel_name equals "a"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected ')'")
}

func TestParser_NegationWithoutCounterpart(t *testing.T) {
	// starts_with and ends_with have no not_ forms
	_, err := Parse(`channel_name not starts_with "BBC"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no negated form")

	_, err = Parse(`NOT channel_name ends_with ".uk"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no negated form")
}

func TestParser_UnknownOperator(t *testing.T) {
	_, err := Parse(`channel_name resembles "BBC"`)
	require.Error(t, err)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrorCategoryOperator, pe.Category)
	assert.Contains(t, pe.Message, "unknown operator")
}

func TestParser_ParseErrorPosition(t *testing.T) {
	_, err := Parse(`channel_name equals`)
	require.Error(t, err)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, "expected value")
	assert.Equal(t, 1, pe.Line)
}

func TestParser_Actions(t *testing.T) {
	parsed, err := Parse(`group_title equals "News" SET group_title = "NEWS", tvg_name = "news"`)
	require.NoError(t, err)

	actions := parsed.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, ActionSetValue, actions[0].Operator)
	assert.Equal(t, "group_title", actions[0].Field)
	assert.Equal(t, ActionSetValue, actions[1].Operator)
	assert.Equal(t, "tvg_name", actions[1].Field)

	assert.True(t, parsed.HasActions)
	assert.ElementsMatch(t, []string{"group_title", "tvg_name"}, parsed.ModifiedFields)
}

func TestParser_ActionKinds(t *testing.T) {
	parsed, err := Parse(`channel_name contains "BBC" SET_IF_EMPTY tvg_name = "bbc" SET_LABEL region = "uk" TRANSFORM group_title = "@text:upper"`)
	require.NoError(t, err)

	actions := parsed.Actions()
	require.Len(t, actions, 3)
	assert.Equal(t, ActionSetDefaultIfEmpty, actions[0].Operator)
	assert.Equal(t, ActionSetLabel, actions[1].Operator)
	assert.Equal(t, "region", actions[1].Field)
	assert.Equal(t, ActionTransformValue, actions[2].Operator)

	// Label keys are not modified record fields
	assert.ElementsMatch(t, []string{"tvg_name", "group_title"}, parsed.ModifiedFields)
}

func TestParser_ActionOnlyExpression(t *testing.T) {
	parsed, err := Parse(`SET group_title = "Everything"`)
	require.NoError(t, err)

	withActions, ok := parsed.Expression.(*ConditionWithActions)
	require.True(t, ok)
	assert.Nil(t, withActions.Condition)
	require.Len(t, withActions.Actions, 1)
}

func TestParser_CaptureReferenceValue(t *testing.T) {
	parsed, err := Parse(`channel_name matches "(BBC) (One)" SET tvg_name = $2`)
	require.NoError(t, err)

	actions := parsed.Actions()
	require.Len(t, actions, 1)
	ref, ok := actions[0].Value.(*CaptureReference)
	require.True(t, ok)
	assert.Equal(t, 2, ref.Index)
}

func TestParser_FieldReferenceValue(t *testing.T) {
	parsed, err := Parse(`SET tvg_name = $channel_name`)
	require.NoError(t, err)

	ref, ok := parsed.Actions()[0].Value.(*FieldReference)
	require.True(t, ok)
	assert.Equal(t, "channel_name", ref.Field)
}

func TestParser_Metadata(t *testing.T) {
	parsed, err := Parse(`channel_name matches "BBC.*" OR tvg_id equals "x"`)
	require.NoError(t, err)

	assert.True(t, parsed.UsesRegex)
	assert.ElementsMatch(t, []string{"channel_name", "tvg_id"}, parsed.ReferencedFields)
	assert.False(t, parsed.HasActions)
}

func TestParser_TrailingGarbage(t *testing.T) {
	_, err := Parse(`channel_name equals "a" "b"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected token")
}

func TestMustParse_PanicsOnError(t *testing.T) {
	assert.Panics(t, func() {
		MustParse(`channel_name equals`)
	})
}
