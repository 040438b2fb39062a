package nodes

import (
	"context"
	"time"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// WaitForReplyConfig is a wait-for-reply node's config shape (§4.8).
type WaitForReplyConfig struct {
	Channel         string   `json:"channel"`
	Sender          string   `json:"sender"`
	Conversation    string   `json:"conversation"`
	MatchKind       string   `json:"matchKind"`
	MatchValue      string   `json:"matchValue"`
	CaseInsensitive bool     `json:"caseInsensitive"`
	Options         []string `json:"options"`
	RetryOnInvalid  bool     `json:"retryOnInvalid"`
	RetryLimit      int      `json:"retryLimit"`
	TimeoutMs       int      `json:"timeoutMs"`
	PollIntervalMs  int      `json:"pollIntervalMs"`
}

// WaitForReplyExecutor suspends the traversal via the Wait-For-Reply
// Coordinator (§4.8) and routes to "reply", "timeout", or "invalid".
type WaitForReplyExecutor struct {
	Coordinator *flowengine.Coordinator
}

func (e *WaitForReplyExecutor) Execute(ctx context.Context, ec *flowengine.ExecutionContext, node *domain.Node) flowengine.NodeResult {
	cfg, err := decode[WaitForReplyConfig](node.Config())
	if err != nil {
		return flowengine.Failed(flowerr.Validation("parsing wait-for-reply config", err))
	}
	if _, ok := node.Config()["timeoutMs"]; !ok {
		cfg.TimeoutMs = 60_000
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}

	kind := flowengine.MatchKind(cfg.MatchKind)
	if kind == "" {
		kind = flowengine.MatchAny
	}

	wait := &flowengine.PendingWait{
		ID:             node.ID() + ":" + ec.ExecutionID,
		ExecutionID:    ec.ExecutionID,
		Channel:        cfg.Channel,
		Sender:         cfg.Sender,
		Conversation:   cfg.Conversation,
		Match:          flowengine.MatchSpec{Kind: kind, Value: cfg.MatchValue, CaseInsensitive: cfg.CaseInsensitive, Options: cfg.Options},
		RetryOnInvalid: cfg.RetryOnInvalid,
		RetryLimit:     cfg.RetryLimit,
		PollInterval:   time.Duration(cfg.PollIntervalMs) * time.Millisecond,
	}

	return e.Coordinator.Wait(ctx, wait, time.Duration(cfg.TimeoutMs)*time.Millisecond)
}
