package nodes

import (
	"net/http"

	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// Type tags for the built-in node executors, grounded on
// internal/application/executor/node_types.go's NodeExecutorType
// constants, renamed to the hyphenated form the spec's examples use.
const (
	TypeAICompletion     = "ai-completion"
	TypeHTTPRequest      = "http-request"
	TypeMessageSend      = "message-send"
	TypeConditionalRouter = "conditional-router"
	TypeDataMerger       = "data-merger"
	TypeDataAggregator   = "data-aggregator"
	TypeJSONParser       = "json-parser"
	TypeDelay            = "delay"
	TypeWaitForReply      = "wait-for-reply"
)

// Deps bundles the collaborators the built-in executors need.
type Deps struct {
	AI          flowengine.AICollaborator
	Bridge      *flowengine.DispatchBridge
	Coordinator *flowengine.Coordinator
	Resolver    *flowengine.Resolver
	HTTPClient  *http.Client
}

// Register binds every built-in node executor into reg.
func Register(reg *flowengine.Registry, deps Deps) {
	if deps.Resolver == nil {
		deps.Resolver = flowengine.NewResolver()
	}
	reg.Register(TypeAICompletion, &AICompletionExecutor{AI: deps.AI})
	reg.Register(TypeHTTPRequest, &HTTPRequestExecutor{Client: deps.HTTPClient})
	reg.Register(TypeMessageSend, &MessageSendExecutor{Bridge: deps.Bridge})
	reg.Register(TypeConditionalRouter, &ConditionalRouterExecutor{})
	reg.Register(TypeDataMerger, &DataMergerExecutor{})
	reg.Register(TypeDataAggregator, &DataAggregatorExecutor{Resolver: deps.Resolver})
	reg.Register(TypeJSONParser, &JSONParserExecutor{Resolver: deps.Resolver})
	reg.Register(TypeDelay, &DelayExecutor{})
	reg.Register(TypeWaitForReply, &WaitForReplyExecutor{Coordinator: deps.Coordinator})

	// Aliases for renamed/legacy type tags (§4.4's alias table), kept for
	// flows authored against the teacher's original node type names.
	reg.Alias("openai-completion", TypeAICompletion)
	reg.Alias("telegram-message", TypeMessageSend)
	reg.Alias("ai_response", TypeAICompletion)
	reg.Alias("send_whatsapp", TypeMessageSend)
}
