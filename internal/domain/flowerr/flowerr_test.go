package flowerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
)

func TestDefaultRecoverable(t *testing.T) {
	assert.True(t, flowerr.Timeout("t", nil).Recoverable)
	assert.True(t, flowerr.External("e", nil).Recoverable)
	assert.True(t, flowerr.Resource("r", nil).Recoverable)
	assert.False(t, flowerr.Validation("v", nil).Recoverable)
	assert.False(t, flowerr.CircuitOpen("n1").Recoverable)
	assert.False(t, flowerr.Cancelled("c").Recoverable)
}

func TestError_UnwrapComposesWithStdlib(t *testing.T) {
	cause := errors.New("boom")
	err := flowerr.External("request failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestError_WithContext(t *testing.T) {
	base := flowerr.Validation("bad config", nil)
	ctxed := base.WithContext("flow-1", "exec-1", "node-1")
	assert.Equal(t, "flow-1", ctxed.FlowID)
	assert.Equal(t, "exec-1", ctxed.ExecutionID)
	assert.Equal(t, "node-1", ctxed.NodeID)
	assert.Empty(t, base.FlowID, "WithContext must not mutate the receiver")
}

func TestError_MessageFormat(t *testing.T) {
	err := flowerr.Validation("bad config", nil).WithContext("flow-1", "exec-1", "node-1")
	assert.Contains(t, err.Error(), "node-1")
	assert.Contains(t, err.Error(), string(domain.ErrorKindValidation))

	noNode := flowerr.Timeout("slow", nil).WithContext("flow-1", "exec-1", "")
	assert.NotContains(t, noNode.Error(), "node")
}

func TestNodeFailed_PreservesExistingFlowErr(t *testing.T) {
	inner := flowerr.Resource("pool exhausted", nil)
	wrapped := flowerr.NodeFailed(inner)
	assert.Same(t, inner, wrapped)
}

func TestNodeFailed_WrapsPlainError(t *testing.T) {
	plain := fmt.Errorf("socket reset")
	wrapped := flowerr.NodeFailed(plain)
	assert.Equal(t, domain.ErrorKindNodeFailed, wrapped.Kind)
	assert.ErrorIs(t, wrapped, plain)
}

func TestAs(t *testing.T) {
	fe := flowerr.Timeout("slow", nil)
	found, ok := flowerr.As(fe)
	require.True(t, ok)
	assert.Same(t, fe, found)

	wrapped := fmt.Errorf("context: %w", fe)
	found, ok = flowerr.As(wrapped)
	require.True(t, ok)
	assert.Same(t, fe, found)

	_, ok = flowerr.As(errors.New("plain"))
	assert.False(t, ok)
}
