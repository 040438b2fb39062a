// Package nodes holds concrete flowengine.NodeExecutor implementations,
// grounded on internal/application/executor/node_executors.go but
// rewritten against the Node Registry contract (§4.3/§4.4) and the AI/
// Messaging collaborator interfaces (§6.2/§6.3) instead of the old
// ExecutionContext.
package nodes

import (
	"context"
	"encoding/json"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// AICompletionConfig is an ai-completion node's config shape.
type AICompletionConfig struct {
	AgentID     string  `json:"agentId"`
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	OutputKey   string  `json:"outputKey"`
}

// AICompletionExecutor is the ai-completion node type (§6.2), backed by
// an AICollaborator (typically go-openai-wrapping).
type AICompletionExecutor struct {
	AI flowengine.AICollaborator
}

func (e *AICompletionExecutor) Execute(ctx context.Context, ec *flowengine.ExecutionContext, node *domain.Node) flowengine.NodeResult {
	cfg, err := decode[AICompletionConfig](node.Config())
	if err != nil {
		return flowengine.Failed(flowerr.Validation("parsing ai-completion config", err))
	}
	if cfg.Prompt == "" {
		return flowengine.Failed(flowerr.Validation("ai-completion node missing prompt", nil))
	}
	if cfg.OutputKey == "" {
		cfg.OutputKey = "output"
	}

	result, err := e.AI.Query(ctx, flowengine.AIQuery{
		AgentID:     cfg.AgentID,
		Messages:    []flowengine.AIMessage{{Role: "user", Content: cfg.Prompt}},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		if fe, ok := flowerr.As(err); ok {
			return flowengine.Failed(fe)
		}
		return flowengine.Failed(flowerr.External("ai query failed", err))
	}

	return flowengine.NodeResult{
		Success:  true,
		Continue: true,
		Output: map[string]any{
			cfg.OutputKey: result.Content,
			"model":       result.Model,
			"usage": map[string]any{
				"promptTokens":     result.Usage.PromptTokens,
				"completionTokens": result.Usage.CompletionTokens,
				"totalTokens":      result.Usage.TotalTokens,
			},
		},
	}
}

// decode binds a node's config map onto a typed struct via a JSON
// marshal/unmarshal round trip, grounded on
// internal/application/executor/config_parser.go's parseConfig.
func decode[T any](config map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(config)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
