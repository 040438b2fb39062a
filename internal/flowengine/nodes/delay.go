package nodes

import (
	"context"
	"time"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// DelayConfig holds a delay node's pause duration.
type DelayConfig struct {
	DurationMs int `json:"durationMs"`
}

// DelayExecutor is a deliberate-delay node, one of the suspension points
// named in §5: it must release the worker, so it parks on a timer
// channel rather than busy-waiting.
type DelayExecutor struct{}

func (e *DelayExecutor) Execute(ctx context.Context, ec *flowengine.ExecutionContext, node *domain.Node) flowengine.NodeResult {
	cfg, err := decode[DelayConfig](node.Config())
	if err != nil {
		return flowengine.Failed(flowerr.Validation("parsing delay config", err))
	}

	timer := time.NewTimer(time.Duration(cfg.DurationMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return flowengine.Ok(nil)
	case <-ctx.Done():
		return flowengine.Failed(flowerr.Cancelled("delay node cancelled"))
	}
}
