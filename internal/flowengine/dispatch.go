package flowengine

import (
	"context"

	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
)

// TargetKind is the dispatch target specification of §4.9.
type TargetKind string

const (
	TargetReply     TargetKind = "reply"
	TargetSpecific  TargetKind = "specific"
	TargetVariable  TargetKind = "variable"
	TargetBroadcast TargetKind = "broadcast"
)

// DispatchTarget describes who a message goes to.
type DispatchTarget struct {
	Kind       TargetKind
	Agent      string
	Recipients []string
	// VariablePath is resolved at runtime from the Execution Context scope
	// for TargetVariable, expected to hold a recipient or list of recipients.
	VariablePath string
}

// RecipientResult is one recipient's outcome in a dispatch (§4.9).
type RecipientResult struct {
	Recipient string
	Success   bool
	MessageID string
	Error     string
}

// DispatchResult aggregates a Cross-Agent Dispatch Bridge call.
type DispatchResult struct {
	Platform  string
	Total     int
	Sent      int
	Failed    int
	Records   []RecipientResult
}

// DispatchBridge is the Cross-Agent Dispatch Bridge of §4.9: it resolves a
// target specification to a concrete recipient list and delivers through
// the messaging collaborator, aggregating per-recipient results.
type DispatchBridge struct {
	messaging MessagingCollaborator
	resolver  *Resolver
}

// NewDispatchBridge constructs a bridge over a messaging collaborator.
func NewDispatchBridge(messaging MessagingCollaborator, resolver *Resolver) *DispatchBridge {
	return &DispatchBridge{messaging: messaging, resolver: resolver}
}

// Dispatch resolves target against scope (for reply/variable targets) and
// sends content to every resolved recipient on platform.
func (b *DispatchBridge) Dispatch(ctx context.Context, platform string, target DispatchTarget, content MessageContent, triggerSender string, scope map[string]any) (DispatchResult, *flowerr.Error) {
	recipients, err := b.resolveRecipients(target, triggerSender, scope)
	if err != nil {
		return DispatchResult{}, flowerr.Validation("resolving dispatch target", err)
	}

	result := DispatchResult{Platform: platform, Total: len(recipients)}
	for _, r := range recipients {
		sendResult, sendErr := b.messaging.Send(ctx, platform, r, content)
		if sendErr != nil {
			result.Failed++
			result.Records = append(result.Records, RecipientResult{Recipient: r, Success: false, Error: sendErr.Error()})
			continue
		}
		result.Sent++
		result.Records = append(result.Records, RecipientResult{Recipient: r, Success: true, MessageID: sendResult.MessageID})
	}

	if result.Sent == 0 && result.Failed > 0 {
		return result, flowerr.External("dispatch failed for all recipients", nil)
	}
	return result, nil
}

func (b *DispatchBridge) resolveRecipients(target DispatchTarget, triggerSender string, scope map[string]any) ([]string, error) {
	switch target.Kind {
	case TargetReply:
		return []string{triggerSender}, nil
	case TargetSpecific, TargetBroadcast:
		return target.Recipients, nil
	case TargetVariable:
		val, err := b.resolver.ResolvePath(target.VariablePath, scope)
		if err != nil {
			return nil, err
		}
		return toRecipientList(val), nil
	default:
		return nil, nil
	}
}

func toRecipientList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	default:
		return nil
	}
}
