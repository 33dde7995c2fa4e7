package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStructured_SingleCondition(t *testing.T) {
	parsed, err := FromStructured([]ConditionInput{
		{Field: "channel_name", Operator: "contains", Value: "BBC"},
	}, nil)
	require.NoError(t, err)

	cond, ok := parsed.ConditionTree().Root.(*Condition)
	require.True(t, ok)
	assert.Equal(t, "channel_name", cond.Field)
	assert.Equal(t, OpContains, cond.Operator)
	assert.Equal(t, "BBC", cond.Value)
}

func TestFromStructured_ChainMatchesTextParse(t *testing.T) {
	// The structured chain folds exactly like the equivalent text
	structured, err := FromStructured([]ConditionInput{
		{Field: "a", Operator: "equals", Value: "1"},
		{Field: "b", Operator: "equals", Value: "2", LogicalOperator: "AND"},
		{Field: "c", Operator: "equals", Value: "3", LogicalOperator: "OR"},
	}, nil)
	require.NoError(t, err)

	text := MustParse(`a equals "1" AND b equals "2" OR c equals "3"`)
	assert.Equal(t, text.Expression, structured.Expression)
}

func TestFromStructured_Errors(t *testing.T) {
	_, err := FromStructured([]ConditionInput{
		{Field: "a", Operator: "bogus", Value: "1"},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")

	_, err = FromStructured([]ConditionInput{
		{Field: "a", Operator: "equals", Value: "1", LogicalOperator: "AND"},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first condition")

	_, err = FromStructured([]ConditionInput{
		{Field: "a", Operator: "equals", Value: "1"},
		{Field: "b", Operator: "equals", Value: "2"},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logical_operator")
}

func TestFromStructured_Actions(t *testing.T) {
	parsed, err := FromStructured(
		[]ConditionInput{{Field: "group_title", Operator: "equals", Value: "News"}},
		[]ActionInput{
			{ActionType: "set_value", TargetField: "group_title", Value: "NEWS"},
			{ActionType: "set_label", TargetField: "category", Value: "news"},
		},
	)
	require.NoError(t, err)

	actions := parsed.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, ActionSetValue, actions[0].Operator)
	assert.Equal(t, ActionSetLabel, actions[1].Operator)
	assert.True(t, parsed.HasActions)
}

func TestStructuredRoundTrip(t *testing.T) {
	conditions := []ConditionInput{
		{Field: "channel_name", Operator: "contains", Value: "BBC"},
		{Field: "group_title", Operator: "not_equals", Value: "Adult", LogicalOperator: "AND", CaseSensitive: true},
		{Field: "tvg_id", Operator: "matches", Value: "^uk", LogicalOperator: "OR"},
	}
	actions := []ActionInput{
		{ActionType: "set_value", TargetField: "group_title", Value: "UK"},
	}

	parsed, err := FromStructured(conditions, actions)
	require.NoError(t, err)

	gotConds, gotActions, err := ToStructured(parsed)
	require.NoError(t, err)
	assert.Equal(t, conditions, gotConds)
	assert.Equal(t, actions, gotActions)
}

func TestStructuredTextRoundTrip(t *testing.T) {
	// structured -> text -> structured is lossless for flat chains
	conditions := []ConditionInput{
		{Field: "channel_name", Operator: "contains", Value: "BBC"},
		{Field: "group_title", Operator: "equals", Value: "News", LogicalOperator: "OR"},
	}

	parsed, err := FromStructured(conditions, nil)
	require.NoError(t, err)

	text := ToText(parsed)
	assert.Equal(t, `channel_name contains "BBC" OR group_title equals "News"`, text)

	reparsed, err := Parse(text)
	require.NoError(t, err)

	gotConds, _, err := ToStructured(reparsed)
	require.NoError(t, err)
	assert.Equal(t, conditions, gotConds)
}

func TestToStructured_RejectsNestedGrouping(t *testing.T) {
	parsed := MustParse(`a equals "1" AND (b equals "2" OR c equals "3")`)

	_, _, err := ToStructured(parsed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested grouping")
}

func TestToText_NegatedAndCaseSensitive(t *testing.T) {
	parsed := MustParse(`channel_name not case_sensitive contains "BBC"`)
	assert.Equal(t, `channel_name not case_sensitive contains "BBC"`, ToText(parsed))
}

func TestToText_GroupedExpression(t *testing.T) {
	parsed := MustParse(`a equals "1" AND (b equals "2" OR c equals "3")`)
	text := ToText(parsed)
	assert.Equal(t, `a equals "1" AND (b equals "2" OR c equals "3")`, text)

	// Grouped text reparses to the same AST
	reparsed, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, parsed.Expression, reparsed.Expression)
}

func TestToText_Actions(t *testing.T) {
	parsed := MustParse(`group_title equals "News" SET group_title = "NEWS", tvg_name = "news" SET_LABEL cat = "n"`)
	text := ToText(parsed)
	assert.Equal(t, `group_title equals "News" SET group_title = "NEWS", tvg_name = "news" SET_LABEL cat = "n"`, text)

	reparsed, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, parsed.Expression, reparsed.Expression)
}

func TestToText_QuoteEscaping(t *testing.T) {
	parsed, err := FromStructured([]ConditionInput{
		{Field: "channel_name", Operator: "equals", Value: `say "hi"`},
	}, nil)
	require.NoError(t, err)

	text := ToText(parsed)
	reparsed, err := Parse(text)
	require.NoError(t, err)

	cond := reparsed.ConditionTree().Root.(*Condition)
	assert.Equal(t, `say "hi"`, cond.Value)
}
