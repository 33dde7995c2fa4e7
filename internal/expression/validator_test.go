package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ValidExpression(t *testing.T) {
	v := NewValidator(nil)

	result := v.Validate(`channel_name contains "BBC" AND group_title equals "News"`)
	assert.True(t, result.IsValid)
	assert.Equal(t, StatusValid, result.Status)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.CanonicalExpression)
	assert.NotEmpty(t, result.ExpressionTree)
}

func TestValidator_EmptyExpressionIsValid(t *testing.T) {
	v := NewValidator(nil)

	result := v.Validate("")
	assert.True(t, result.IsValid)
	assert.Equal(t, StatusValid, result.Status)
}

func TestValidator_SyntaxErrorIsInvalid(t *testing.T) {
	v := NewValidator(nil)

	result := v.Validate(`channel_name contains`)
	assert.False(t, result.IsValid)
	assert.Equal(t, StatusInvalid, result.Status)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, SeverityError, result.Errors[0].Severity)
	assert.Equal(t, ErrorCategorySyntax, result.Errors[0].Category)
	assert.NotNil(t, result.Errors[0].Position)
}

func TestValidator_UnknownOperatorIsInvalid(t *testing.T) {
	v := NewValidator(nil)

	result := v.Validate(`channel_name resembles "BBC"`)
	assert.False(t, result.IsValid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, ErrorCategoryOperator, result.Errors[0].Category)
	assert.Equal(t, "unknown_operator", result.Errors[0].ErrorType)
}

func TestValidator_UnknownFieldIsWarning(t *testing.T) {
	v := NewValidator(nil)

	result := v.Validate(`chanel_name contains "BBC"`)
	// Warnings do not invalidate the expression
	assert.True(t, result.IsValid)
	assert.Equal(t, StatusWarning, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, SeverityWarning, result.Errors[0].Severity)
	assert.Equal(t, ErrorCategoryField, result.Errors[0].Category)
	assert.Equal(t, "channel_name", result.Errors[0].Suggestion)
}

func TestValidator_InvalidRegexIsHardError(t *testing.T) {
	v := NewValidator(nil)

	result := v.Validate(`channel_name matches "[unclosed"`)
	assert.False(t, result.IsValid)
	assert.Equal(t, StatusInvalid, result.Status)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, ErrorCategoryRegex, result.Errors[0].Category)
	// Carries the regexp engine diagnostic
	assert.NotEmpty(t, result.Errors[0].Details)
}

func TestValidator_ActionFieldsChecked(t *testing.T) {
	v := NewValidator(nil)

	result := v.Validate(`channel_name contains "BBC" SET nonexistent_field = "x"`, DomainStreamMapping)
	assert.True(t, result.IsValid)
	assert.Equal(t, StatusWarning, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "unknown_field", result.Errors[0].ErrorType)
}

func TestValidator_LabelKeysNotChecked(t *testing.T) {
	v := NewValidator(nil)

	// Label keys are arbitrary and never warned about
	result := v.Validate(`channel_name contains "BBC" SET_LABEL my_custom_key = "x"`, DomainStreamMapping)
	assert.True(t, result.IsValid)
	assert.Equal(t, StatusValid, result.Status)
}

func TestValidator_DomainScoping(t *testing.T) {
	v := NewValidator(nil)

	// stream_url is not an EPG field
	result := v.Validate(`stream_url contains "m3u8"`, DomainEPGFilter)
	assert.True(t, result.IsValid)
	assert.Equal(t, StatusWarning, result.Status)

	result = v.Validate(`stream_url contains "m3u8"`, DomainStreamFilter)
	assert.Equal(t, StatusValid, result.Status)
}

func TestValidator_PureNoSideEffects(t *testing.T) {
	v := NewValidator(nil)

	expr := `channel_name contains "BBC"`
	first := v.Validate(expr)
	second := v.Validate(expr)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.CanonicalExpression, second.CanonicalExpression)
}

func TestValidator_SymbolicOperatorsCanonicalized(t *testing.T) {
	v := NewValidator(nil)

	result := v.Validate(`channel_name == "BBC" && group_title != "Adult"`)
	assert.True(t, result.IsValid)
	assert.Equal(t, `channel_name equals "BBC" AND group_title not equals "Adult"`, result.CanonicalExpression)
}
