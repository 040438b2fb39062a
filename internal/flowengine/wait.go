package flowengine

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
)

// MatchKind is the predicate a Pending Wait applies to a candidate inbound
// message's content (§4.8).
type MatchKind string

const (
	MatchAny        MatchKind = "any"
	MatchExact      MatchKind = "exact"
	MatchContains   MatchKind = "contains"
	MatchStartsWith MatchKind = "starts-with"
	MatchRegex      MatchKind = "regex"
	MatchCallback   MatchKind = "callback"
)

// MatchSpec configures a Pending Wait's accept predicate.
type MatchSpec struct {
	Kind            MatchKind
	Value           string
	CaseInsensitive bool
	Options         []string // valid responses; anything else increments the retry counter
}

func (m MatchSpec) accepts(msg InboundMessage) bool {
	content, value := msg.Content, m.Value
	if m.CaseInsensitive {
		content, value = strings.ToLower(content), strings.ToLower(value)
	}
	switch m.Kind {
	case MatchAny:
		return true
	case MatchExact:
		return content == value
	case MatchContains:
		return strings.Contains(content, value)
	case MatchStartsWith:
		return strings.HasPrefix(content, value)
	case MatchRegex:
		re, err := regexp.Compile(m.Value)
		if err != nil {
			return false
		}
		if m.CaseInsensitive {
			re, err = regexp.Compile("(?i)" + m.Value)
			if err != nil {
				return false
			}
		}
		return re.MatchString(msg.Content)
	case MatchCallback:
		return msg.CallbackData == value
	default:
		return false
	}
}

func (m MatchSpec) inOptions(msg InboundMessage) bool {
	if len(m.Options) == 0 {
		return true
	}
	for _, o := range m.Options {
		if o == msg.Content || o == msg.CallbackData {
			return true
		}
	}
	return false
}

// PendingWait is one suspended traversal waiting on an inbound message
// (§4.8), indexed by channel/sender/conversation.
type PendingWait struct {
	ID             string
	ExecutionID    string
	Channel        string // "any" matches every channel
	Sender         string // empty matches any sender
	Conversation   string // empty matches any conversation
	Match          MatchSpec
	RetryOnInvalid bool
	RetryLimit     int
	PollInterval   time.Duration // fallback poll cadence when no push transport is wired
	registeredAt   time.Time
	retryCount     int
	resolve        chan waitOutcome
}

type waitOutcome struct {
	branch  string // reply|timeout|invalid
	message InboundMessage
}

// Coordinator is the Wait-For-Reply Coordinator of §4.8: it registers
// Pending Waits, matches them against an inbound message stream, and
// resolves the calling traversal to the "reply", "timeout", or "invalid"
// branch.
type Coordinator struct {
	mu        sync.Mutex
	waits     []*PendingWait // registration order; earliest-registered wins ties (§4.8 Ordering)
	messaging MessagingCollaborator
}

// NewCoordinator constructs a Coordinator that nudges invalid responders
// through messaging.
func NewCoordinator(messaging MessagingCollaborator) *Coordinator {
	return &Coordinator{messaging: messaging}
}

// register adds w to the lookup table in registration order.
func (c *Coordinator) register(w *PendingWait) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w.registeredAt = time.Now()
	w.resolve = make(chan waitOutcome, 1)
	c.waits = append(c.waits, w)
}

func (c *Coordinator) unregister(w *PendingWait) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, pw := range c.waits {
		if pw == w {
			c.waits = append(c.waits[:i], c.waits[i+1:]...)
			return
		}
	}
}

// OnInbound feeds one inbound message to the coordinator. It is the
// handler passed to MessagingCollaborator.SubscribeInbound. The
// earliest-registered matching wait is resolved; later candidates for the
// same message are left untouched, per §4.8 Ordering.
func (c *Coordinator) OnInbound(msg InboundMessage) {
	c.mu.Lock()
	var target *PendingWait
	for _, w := range c.waits {
		if !isCandidate(w, msg) {
			continue
		}
		target = w
		break
	}
	c.mu.Unlock()
	if target == nil {
		return
	}

	if !target.Match.accepts(msg) {
		return
	}
	if target.Match.inOptions(msg) {
		c.unregister(target)
		target.resolve <- waitOutcome{branch: "reply", message: msg}
		return
	}

	target.retryCount++
	if target.RetryOnInvalid && target.retryCount < target.RetryLimit {
		if c.messaging != nil {
			_ = c.messaging.SendRetryPrompt(context.Background(), target.ID, "please choose a valid option")
		}
		return
	}
	c.unregister(target)
	target.resolve <- waitOutcome{branch: "invalid", message: msg}
}

func isCandidate(w *PendingWait, msg InboundMessage) bool {
	if w.Channel != "" && w.Channel != "any" && w.Channel != msg.Channel {
		return false
	}
	if w.Sender != "" && w.Sender != msg.Sender {
		return false
	}
	if w.Conversation != "" && w.Conversation != msg.ConversationID {
		return false
	}
	return true
}

// Wait registers w and blocks until a reply/invalid resolution arrives,
// deadline elapses, or ctx is cancelled. The fallback poll loop counts
// against the same deadline budget (OQ-2): polling never extends the
// overall wait beyond its configured timeout.
func (c *Coordinator) Wait(ctx context.Context, w *PendingWait, deadline time.Duration) NodeResult {
	c.register(w)
	defer c.unregister(w)

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	var ticker *time.Ticker
	var tickC <-chan time.Time
	if w.PollInterval > 0 {
		ticker = time.NewTicker(w.PollInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case out := <-w.resolve:
			return waitResult(out, w)
		case <-timer.C:
			return OkBranch(nil, "timeout")
		case <-ctx.Done():
			return Failed(flowerr.Cancelled("wait-for-reply cancelled"))
		case <-tickC:
			// Fallback poll tick: no push transport delivered a message
			// through OnInbound, so this is a no-op heartbeat that exists
			// purely to keep the deadline timer the single source of
			// truth for how long the wait may run.
		}
	}
}

func waitResult(out waitOutcome, w *PendingWait) NodeResult {
	switch out.branch {
	case "reply":
		return OkBranch(map[string]any{
			"content":      out.message.Content,
			"sender":       out.message.Sender,
			"channel":      out.message.Channel,
			"callbackData": out.message.CallbackData,
		}, "reply")
	case "invalid":
		return OkBranch(map[string]any{"content": out.message.Content}, "invalid")
	default:
		return OkBranch(nil, "timeout")
	}
}
