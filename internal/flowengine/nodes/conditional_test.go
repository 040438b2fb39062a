package nodes_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/flowengine"
	"github.com/mbflowrt/flowengine/internal/flowengine/nodes"
)

func newEC() *flowengine.ExecutionContext {
	return flowengine.NewExecutionContext("e1", "f1", nil, nil, zerolog.Nop())
}

func TestConditionalRouterExecutor_RoutesTrueAndFalse(t *testing.T) {
	exec := &nodes.ConditionalRouterExecutor{}
	ec := newEC()
	ec.SetVariable("score", 75)

	node := domain.NewNode("n1", "f1", "conditional-router", "", "", map[string]any{"expression": "variables.score > 50"})
	res := exec.Execute(context.Background(), ec, node)
	require.True(t, res.Success)
	assert.Equal(t, []string{"true"}, res.NextBranches)

	node2 := domain.NewNode("n2", "f1", "conditional-router", "", "", map[string]any{"expression": "variables.score > 90"})
	res2 := exec.Execute(context.Background(), ec, node2)
	require.True(t, res2.Success)
	assert.Equal(t, []string{"false"}, res2.NextBranches)
}

func TestConditionalRouterExecutor_MissingExpressionFails(t *testing.T) {
	exec := &nodes.ConditionalRouterExecutor{}
	node := domain.NewNode("n1", "f1", "conditional-router", "", "", nil)
	res := exec.Execute(context.Background(), newEC(), node)
	assert.False(t, res.Success)
}

func TestConditionalRouterExecutor_InvalidExpressionFails(t *testing.T) {
	exec := &nodes.ConditionalRouterExecutor{}
	node := domain.NewNode("n1", "f1", "conditional-router", "", "", map[string]any{"expression": "variables.score >"})
	res := exec.Execute(context.Background(), newEC(), node)
	assert.False(t, res.Success)
}
