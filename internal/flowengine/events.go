package flowengine

// EventType is one of the lifecycle event kinds emitted on the progress
// stream (§6.5).
type EventType string

const (
	EventExecutionStarted   EventType = "execution:started"
	EventExecutionCompleted EventType = "execution:completed"
	EventExecutionFailed    EventType = "execution:failed"
	EventExecutionCancelled EventType = "execution:cancelled"
	EventNodeStarted        EventType = "node:started"
	EventNodeCompleted      EventType = "node:completed"
	EventNodeFailed         EventType = "node:failed"
)

// ProgressEvent is the broadcast shape of §6.5: type, executionId,
// timestamp, and a sanitized payload (the relevant record, never raw
// secrets from node config).
type ProgressEvent struct {
	Type        EventType
	ExecutionID string
	Timestamp   int64
	NodeID      string
	Payload     map[string]any
}

// Subscriber receives progress events as the engine emits them. Delivery is
// best-effort (§6.5). The engine calls Publish synchronously on the
// traversal goroutine, so a Publish that blocks also holds up traversal.
type Subscriber interface {
	Publish(ProgressEvent)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ProgressEvent)

func (f SubscriberFunc) Publish(ev ProgressEvent) { f(ev) }
