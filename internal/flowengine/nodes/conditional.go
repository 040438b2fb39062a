package nodes

import (
	"context"

	"github.com/expr-lang/expr"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// ConditionalRouterConfig is a conditional-router node's config shape:
// expr-lang boolean expression evaluated against the Context Scope.
type ConditionalRouterConfig struct {
	Expression string `json:"expression"`
}

// ConditionalRouterExecutor evaluates an expr-lang condition and routes to
// the "true" or "false" outgoing edge label (§4.2), grounded on
// internal/application/executor/conditions.go's ConditionEvaluator.
type ConditionalRouterExecutor struct{}

func (e *ConditionalRouterExecutor) Execute(ctx context.Context, ec *flowengine.ExecutionContext, node *domain.Node) flowengine.NodeResult {
	cfg, err := decode[ConditionalRouterConfig](node.Config())
	if err != nil || cfg.Expression == "" {
		return flowengine.Failed(flowerr.Validation("conditional-router node missing expression", err))
	}

	scope := ec.Snapshot()
	program, err := expr.Compile(cfg.Expression, expr.Env(scope), expr.AsBool())
	if err != nil {
		return flowengine.Failed(flowerr.Validation("compiling conditional-router expression", err))
	}
	out, err := expr.Run(program, scope)
	if err != nil {
		return flowengine.Failed(flowerr.External("evaluating conditional-router expression", err))
	}
	result, _ := out.(bool)

	branch := "false"
	if result {
		branch = "true"
	}
	return flowengine.OkBranch(map[string]any{"result": result}, branch)
}
