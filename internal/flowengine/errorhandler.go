package flowengine

import (
	"context"
	"time"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
)

// ErrorHandler applies a node's declared Strategy (§4.5) when its executor
// returns a failed NodeResult: fail propagates the failure and halts that
// branch, retry re-invokes the executor with backoff up to a budget, skip
// returns a result marked Skipped and continues with a {skipped, reason}
// output (the failed attempt's own Node Execution Record stays failed),
// redirect continues traversal along the node's "failed" edges instead of
// halting, fallback-output substitutes a configured value and continues as
// if the node had succeeded. Cancelled and timeout failures bypass every
// strategy: they are never retried and always halt the branch.
type ErrorHandler struct {
	breakers *CircuitBreakerRegistry
}

// NewErrorHandler constructs a handler backed by a circuit breaker registry
// shared across all nodes of the flow.
func NewErrorHandler(breakers *CircuitBreakerRegistry) *ErrorHandler {
	return &ErrorHandler{breakers: breakers}
}

// Run executes node once via exec, applying its Strategy on failure. It
// returns the final NodeResult the engine should act on (including which
// outgoing edges to follow) and the number of attempts made.
func (h *ErrorHandler) Run(ctx context.Context, ec *ExecutionContext, node *domain.Node, exec NodeExecutor) (NodeResult, int) {
	strategy := domain.ParseStrategy(node.Config()["onError"])
	attempts := 0

	call := func() NodeResult {
		attempts++
		attempt := attempts
		startedAt := time.Now().UnixMilli()

		record := func(res NodeResult) NodeResult {
			rec := domain.NodeExecutionRecord{
				NodeID: node.ID(), NodeType: node.RegistryKey(),
				Status: res.recordStatus(), Output: res.Output,
				StartedAt: startedAt, EndedAt: time.Now().UnixMilli(), Attempt: attempt,
			}
			if res.Err != nil {
				rec.Error = res.Err.Error()
			}
			ec.AppendNodeRecord(rec)
			return res
		}

		if ctx.Err() != nil {
			return record(Failed(flowerr.Cancelled("execution cancelled")))
		}
		return record(h.breakers.Guard(node.RegistryKey(), node.ID(), func() NodeResult {
			return exec.Execute(ctx, ec, node)
		}))
	}

	result := call()
	if result.Success {
		return result, attempts
	}
	if result.Err != nil && (result.Err.Kind == domain.ErrorKindCancelled || result.Err.Kind == domain.ErrorKindTimeout) {
		result.Continue = false
		return result, attempts
	}

	switch strategy {
	case domain.StrategyRetry:
		policy := RetryPolicyFromConfig(node.Config())
		budget := NewBudget(policy.MaxAttempts - 1)
		for !result.Success && budget.CanRetry() && result.Err.Recoverable && result.Err.Kind != domain.ErrorKindTimeout {
			budget.Use()
			delay := policy.DelayForAttempt(attempts)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Failed(flowerr.Cancelled("execution cancelled")), attempts
			}
			result = call()
		}
		return result, attempts

	case domain.StrategySkip:
		reason := ""
		if result.Err != nil {
			reason = result.Err.Message
		}
		return NodeResult{
			Success:  true,
			Output:   map[string]any{"skipped": true, "reason": reason},
			Continue: true,
			Skipped:  true,
		}, attempts

	case domain.StrategyRedirect:
		return NodeResult{
			Success:      false,
			Err:          result.Err,
			Continue:     true,
			NextBranches: []string{"failed"},
		}, attempts

	case domain.StrategyFallbackOutput:
		return Ok(node.Config()["fallbackOutput"]), attempts

	default: // StrategyFail
		result.Continue = false
		return result, attempts
	}
}
