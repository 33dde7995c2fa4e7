package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chanarr/chanarr/internal/expression"
)

func validFilter() *Filter {
	return &Filter{
		Name:       "UK channels",
		SourceType: FilterSourceTypeStream,
		Conditions: ConditionList{
			{Field: "group_title", Operator: "contains", Value: "UK"},
		},
		StartingChannelNumber: 1,
	}
}

func TestFilter_Validate(t *testing.T) {
	f := validFilter()
	assert.NoError(t, f.Validate())

	f = validFilter()
	f.Name = ""
	assert.Error(t, f.Validate())

	f = validFilter()
	f.SourceType = "programme"
	assert.Error(t, f.Validate())

	f = validFilter()
	f.StartingChannelNumber = -5
	assert.Error(t, f.Validate())
}

func TestFilter_EmptyConditionsAreValid(t *testing.T) {
	f := &Filter{
		Name:       "match everything",
		SourceType: FilterSourceTypeEPG,
	}
	assert.NoError(t, f.Validate())
}

func validRule() *DataMappingRule {
	return &DataMappingRule{
		Name:       "uppercase news",
		SourceType: DataMappingRuleSourceTypeStream,
		Expression: `group_title contains "News" SET group_title = "NEWS"`,
		SortOrder:  1,
		IsActive:   true,
	}
}

func TestDataMappingRule_Validate(t *testing.T) {
	r := validRule()
	assert.NoError(t, r.Validate())

	r = validRule()
	r.Name = ""
	assert.Error(t, r.Validate())

	r = validRule()
	r.Expression = ""
	assert.Error(t, r.Validate())

	r = validRule()
	r.Expression = ""
	r.Conditions = ConditionList{{Field: "channel_name", Operator: "contains", Value: "BBC"}}
	r.Actions = ActionList{{ActionType: "set_value", TargetField: "group_title", Value: "UK"}}
	assert.NoError(t, r.Validate())

	r = validRule()
	r.SourceType = "playlist"
	assert.Error(t, r.Validate())
}

func TestConditionList_ValueAndScan(t *testing.T) {
	list := ConditionList{
		{Field: "channel_name", Operator: "contains", Value: "BBC"},
		{Field: "group_title", Operator: "equals", Value: "UK", LogicalOperator: "AND"},
	}

	v, err := list.Value()
	assert.NoError(t, err)

	var scanned ConditionList
	assert.NoError(t, scanned.Scan(v))
	assert.Equal(t, list, scanned)

	var empty ConditionList
	v, err = empty.Value()
	assert.NoError(t, err)
	assert.Equal(t, "[]", v)

	assert.NoError(t, scanned.Scan(nil))
	assert.Error(t, scanned.Scan(42))
}

func TestActionList_ValueAndScan(t *testing.T) {
	list := ActionList{
		{ActionType: "set_value", TargetField: "group_title", Value: "UK"},
	}

	v, err := list.Value()
	assert.NoError(t, err)

	var scanned ActionList
	assert.NoError(t, scanned.Scan([]byte(v.(string))))
	assert.Equal(t, list, scanned)
}

func TestConditionList_MatchesExpressionInput(t *testing.T) {
	// The stored shape is exactly what the expression package consumes.
	list := ConditionList{
		{Field: "channel_name", Operator: "starts_with", Value: "BBC"},
	}
	parsed, err := expression.FromStructured([]expression.ConditionInput(list), nil)
	assert.NoError(t, err)
	assert.NotNil(t, parsed)
}
