package websocket

import "time"

// Event type constants mirror flowengine.EventType's colon notation exactly,
// so adapters/progress.go can forward an engine event onto the wire without
// translating it through a lookup table.
const (
	EventExecutionStarted   = "execution:started"
	EventExecutionCompleted = "execution:completed"
	EventExecutionFailed    = "execution:failed"
	EventExecutionCancelled = "execution:cancelled"
	EventNodeStarted        = "node:started"
	EventNodeCompleted      = "node:completed"
	EventNodeFailed         = "node:failed"
)

// Command types (client -> server)
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
	CmdCancel      = "cancel"
)

// WSEvent is the wire shape of a single progress-stream event (§6.5). It
// carries the engine's ProgressEvent payload as-is instead of flattening it
// into named fields, since what a node/execution event carries varies by
// node type and the engine already shapes Payload for its own purposes.
type WSEvent struct {
	Type        string         `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// NewWSEvent builds an event for the given execution; callers attach NodeID
// and Payload afterward.
func NewWSEvent(eventType, executionID string) *WSEvent {
	return &WSEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		ExecutionID: executionID,
	}
}

// WSCommand is a client->server control message. The progress stream has no
// workflow or user dimension to subscribe by, so ExecutionID is the only
// selector.
type WSCommand struct {
	Action      string `json:"action"`
	ExecutionID string `json:"execution_id,omitempty"`
}

// WSResponse acknowledges a WSCommand.
type WSResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func NewSuccessResponse(responseType, message string) *WSResponse {
	return &WSResponse{Type: responseType, Success: true, Message: message}
}

func NewErrorResponse(responseType, errorMsg string) *WSResponse {
	return &WSResponse{Type: responseType, Success: false, Error: errorMsg}
}
