package flowengine

import (
	"context"

	"github.com/mbflowrt/flowengine/internal/domain"
)

// AIQuery is one request to the AI collaborator (§6.2).
type AIQuery struct {
	AgentID     string
	Messages    []AIMessage
	Temperature float64
	MaxTokens   int
}

// AIMessage is one turn of conversation.
type AIMessage struct {
	Role    string
	Content string
}

// AIUsage reports token accounting for an AI call.
type AIUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIResult is the AI collaborator's response.
type AIResult struct {
	Content  string
	Model    string
	Usage    AIUsage
	Metadata map[string]any
}

// AICollaborator is the contract §6.2 describes. Implementations
// distinguish resource (no provider available), external (provider error),
// and timeout failures via flowerr.Error's Kind.
type AICollaborator interface {
	Query(ctx context.Context, q AIQuery) (AIResult, error)
}

// MessageContent is the outbound payload §6.3 describes.
type MessageContent struct {
	Format      string // text|markdown|html
	Text        string
	ReplyTo     string
	Attachments []string
	Extra       map[string]any // buttons/keyboards/subject/cc/bcc/media URL
}

// SendResult is one platform send's outcome.
type SendResult struct {
	MessageID string
	Platform  string
	Status    string
}

// InboundMessage is what subscribe-inbound delivers (§6.3).
type InboundMessage struct {
	Channel        string
	MessageID      string
	Sender         string
	ConversationID string
	Content        string
	Timestamp      int64
	CallbackData   string
}

// InboundHandler consumes inbound messages fed to the Wait-For-Reply
// Coordinator and any other subscriber.
type InboundHandler func(InboundMessage)

// MessagingCollaborator is the contract §6.3 describes.
type MessagingCollaborator interface {
	Send(ctx context.Context, platform, recipient string, content MessageContent) (SendResult, error)
	SubscribeInbound(handler InboundHandler)
	SendRetryPrompt(ctx context.Context, waitID, text string) error
}

// ExecutionRecord is the persisted shape §6.4 describes.
type ExecutionRecord struct {
	ID          string
	FlowID      string
	Owner       string
	Status      string
	Trigger     map[string]any
	Input       map[string]any
	Outputs     map[string]any
	NodeResults []domain.NodeExecutionRecord
	Error       string
	StartedAt   int64
	FinishedAt  int64
}

// PersistenceCollaborator is the contract §6.4 describes.
type PersistenceCollaborator interface {
	CreateExecution(ctx context.Context, rec ExecutionRecord) error
	UpdateExecution(ctx context.Context, rec ExecutionRecord) error
	GetExecution(ctx context.Context, id string) (*ExecutionRecord, error)
	ListActive(ctx context.Context) ([]ExecutionRecord, error)
}
