package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// PlatformSender delivers one MessageContent to one recipient on a given
// platform. Concrete senders (Telegram, WhatsApp, email, webhook) satisfy
// this; WebhookSender below is the one built-in implementation since it
// needs no third-party SDK beyond net/http.
type PlatformSender interface {
	Send(ctx context.Context, recipient string, content flowengine.MessageContent) (flowengine.SendResult, error)
}

// MessagingAdapter implements flowengine.MessagingCollaborator by
// dispatching to a PlatformSender per platform key (§6.3), grounded on the
// teacher's multi-channel node executors (telegram-message et al.) but
// generalized to any registered platform rather than one hardcoded type.
type MessagingAdapter struct {
	senders   map[string]PlatformSender
	handlers  []flowengine.InboundHandler
}

// NewMessagingAdapter constructs an adapter with no senders registered;
// call RegisterSender for each platform the deployment supports.
func NewMessagingAdapter() *MessagingAdapter {
	return &MessagingAdapter{senders: make(map[string]PlatformSender)}
}

// RegisterSender binds a platform key (e.g. "webhook", "telegram") to its
// sender implementation.
func (a *MessagingAdapter) RegisterSender(platform string, sender PlatformSender) {
	a.senders[platform] = sender
}

func (a *MessagingAdapter) Send(ctx context.Context, platform, recipient string, content flowengine.MessageContent) (flowengine.SendResult, error) {
	sender, ok := a.senders[platform]
	if !ok {
		return flowengine.SendResult{}, flowerr.Resource(fmt.Sprintf("no sender registered for platform %q", platform), nil)
	}
	return sender.Send(ctx, recipient, content)
}

// SubscribeInbound registers handler to receive every inbound message fed
// through Deliver. The Wait-For-Reply Coordinator is the primary consumer
// (§4.8).
func (a *MessagingAdapter) SubscribeInbound(handler flowengine.InboundHandler) {
	a.handlers = append(a.handlers, handler)
}

// Deliver feeds one inbound message to every subscribed handler, in
// subscription order. Callers (webhook HTTP handlers, platform SDK
// callbacks) invoke this as messages arrive.
func (a *MessagingAdapter) Deliver(msg flowengine.InboundMessage) {
	for _, h := range a.handlers {
		h(msg)
	}
}

func (a *MessagingAdapter) SendRetryPrompt(ctx context.Context, waitID, text string) error {
	return nil
}

// WebhookSender delivers MessageContent as an outbound HTTP POST, the one
// platform that needs no third-party SDK.
type WebhookSender struct {
	Client *http.Client
}

func (s *WebhookSender) Send(ctx context.Context, recipient string, content flowengine.MessageContent) (flowengine.SendResult, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(map[string]any{
		"text":    content.Text,
		"format":  content.Format,
		"extra":   content.Extra,
		"replyTo": content.ReplyTo,
	})
	if err != nil {
		return flowengine.SendResult{}, flowerr.Validation("marshalling webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient, bytes.NewReader(body))
	if err != nil {
		return flowengine.SendResult{}, flowerr.Validation("building webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return flowengine.SendResult{}, flowerr.Timeout("webhook send timed out", err)
		}
		return flowengine.SendResult{}, flowerr.External("webhook send failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return flowengine.SendResult{}, flowerr.External(fmt.Sprintf("webhook returned status %d", resp.StatusCode), nil)
	}

	return flowengine.SendResult{MessageID: uuid.NewString(), Platform: "webhook", Status: "sent"}, nil
}
