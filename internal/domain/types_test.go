package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mbflowrt/flowengine/internal/domain"
)

func TestParseStrategy_DefaultsToFail(t *testing.T) {
	assert.Equal(t, domain.StrategyFail, domain.ParseStrategy(nil))
	assert.Equal(t, domain.StrategyFail, domain.ParseStrategy("bogus"))
	assert.Equal(t, domain.StrategyFail, domain.ParseStrategy(42))
}

func TestParseStrategy_RecognizesKnownStrategies(t *testing.T) {
	for _, s := range []domain.Strategy{
		domain.StrategyRetry, domain.StrategySkip, domain.StrategyRedirect, domain.StrategyFallbackOutput,
	} {
		assert.Equal(t, s, domain.ParseStrategy(string(s)))
	}
}

func TestInferType(t *testing.T) {
	cases := []struct {
		value    any
		expected domain.VariableType
	}{
		{nil, domain.VariableTypeUnknown},
		{"x", domain.VariableTypeString},
		{1, domain.VariableTypeInt},
		{int64(1), domain.VariableTypeInt},
		{1.5, domain.VariableTypeFloat},
		{true, domain.VariableTypeBool},
		{map[string]any{}, domain.VariableTypeObject},
		{[]any{}, domain.VariableTypeArray},
		{struct{}{}, domain.VariableTypeUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, domain.InferType(c.value))
	}
}

func TestExecutionStatus_IsTerminal(t *testing.T) {
	assert.False(t, domain.ExecutionStatusPending.IsTerminal())
	assert.False(t, domain.ExecutionStatusRunning.IsTerminal())
	assert.True(t, domain.ExecutionStatusCompleted.IsTerminal())
	assert.True(t, domain.ExecutionStatusFailed.IsTerminal())
	assert.True(t, domain.ExecutionStatusCancelled.IsTerminal())
}

func TestDomainError_UnwrapAndMessage(t *testing.T) {
	cause := assert.AnError
	err := domain.NewDomainError(domain.ErrCodeNotFound, "flow missing", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "flow missing")
	assert.Contains(t, err.Error(), domain.ErrCodeNotFound)
}
