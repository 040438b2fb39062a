package nodes

import (
	"context"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// MessageSendConfig is a message-send node's config shape (§4.9, §6.3).
type MessageSendConfig struct {
	Platform     string   `json:"platform"`
	Target       string   `json:"target"` // reply|specific|variable|broadcast
	Agent        string   `json:"agent"`
	Recipients   []string `json:"recipients"`
	VariablePath string   `json:"variablePath"`
	Text         string   `json:"text"`
	Format       string   `json:"format"`
}

// MessageSendExecutor is the message-send node type: it resolves a target
// specification and delivers through the Cross-Agent Dispatch Bridge
// (§4.9), aggregating per-recipient results into its output.
type MessageSendExecutor struct {
	Bridge *flowengine.DispatchBridge
}

func (e *MessageSendExecutor) Execute(ctx context.Context, ec *flowengine.ExecutionContext, node *domain.Node) flowengine.NodeResult {
	cfg, err := decode[MessageSendConfig](node.Config())
	if err != nil {
		return flowengine.Failed(flowerr.Validation("parsing message-send config", err))
	}
	if cfg.Platform == "" || cfg.Text == "" {
		return flowengine.Failed(flowerr.Validation("message-send node requires platform and text", nil))
	}

	scope := ec.Snapshot()
	triggerSender, _ := scope["trigger"].(map[string]any)["sender"].(string)

	target := flowengine.DispatchTarget{
		Kind:         flowengine.TargetKind(cfg.Target),
		Agent:        cfg.Agent,
		Recipients:   cfg.Recipients,
		VariablePath: cfg.VariablePath,
	}
	if target.Kind == "" {
		target.Kind = flowengine.TargetReply
	}

	result, dispatchErr := e.Bridge.Dispatch(ctx, cfg.Platform, target, flowengine.MessageContent{
		Format: cfg.Format,
		Text:   cfg.Text,
	}, triggerSender, scope)
	if dispatchErr != nil {
		return flowengine.Failed(dispatchErr)
	}

	return flowengine.Ok(map[string]any{
		"total":   result.Total,
		"sent":    result.Sent,
		"failed":  result.Failed,
		"records": result.Records,
	})
}
