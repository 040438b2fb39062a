// Package adapters binds the engine's collaborator interfaces (§6.2-§6.4)
// to concrete third-party clients, grounded on the teacher's
// node_executors.go (go-openai usage) and infrastructure/websocket (event
// fan-out), rebuilt against flowengine's interfaces instead of the old
// ExecutionContext.
package adapters

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// OpenAIAdapter implements flowengine.AICollaborator over go-openai,
// grounded on node_executors.go's OpenAICompletionExecutor. The API key is
// fixed when the adapter is constructed; there is no per-call override.
type OpenAIAdapter struct {
	client        *openai.Client
	defaultModel  string
}

// NewOpenAIAdapter constructs an adapter with a resolved API key and
// default model (e.g. "gpt-4o").
func NewOpenAIAdapter(apiKey, defaultModel string) *OpenAIAdapter {
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &OpenAIAdapter{client: openai.NewClient(apiKey), defaultModel: defaultModel}
}

func (a *OpenAIAdapter) Query(ctx context.Context, q flowengine.AIQuery) (flowengine.AIResult, error) {
	if a.client == nil {
		return flowengine.AIResult{}, flowerr.Resource("no AI provider configured", nil)
	}

	model := q.AgentID
	if model == "" {
		model = a.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(q.Messages))
	for _, m := range q.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(q.Temperature),
		Messages:    messages,
	}
	if q.MaxTokens > 0 {
		req.MaxCompletionTokens = q.MaxTokens
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return flowengine.AIResult{}, flowerr.Timeout("openai request timed out", err)
		}
		return flowengine.AIResult{}, flowerr.External(fmt.Sprintf("openai request failed: %v", err), err)
	}
	if len(resp.Choices) == 0 {
		return flowengine.AIResult{}, flowerr.External("openai returned no choices", nil)
	}

	return flowengine.AIResult{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: flowengine.AIUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
