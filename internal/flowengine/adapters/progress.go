package adapters

import (
	"time"

	"github.com/mbflowrt/flowengine/internal/flowengine"
	"github.com/mbflowrt/flowengine/internal/infrastructure/websocket"
)

// WebsocketSubscriber fans the engine's progress stream (§6.5) out to
// websocket clients through the Hub/Broadcaster, grounded on
// internal/infrastructure/websocket. Event type notation matches between
// the two packages (colon-separated), so no translation table is needed.
type WebsocketSubscriber struct {
	broadcaster websocket.Broadcaster
}

func NewWebsocketSubscriber(b websocket.Broadcaster) *WebsocketSubscriber {
	return &WebsocketSubscriber{broadcaster: b}
}

func (s *WebsocketSubscriber) Publish(ev flowengine.ProgressEvent) {
	out := &websocket.WSEvent{
		Type:        string(ev.Type),
		Timestamp:   time.Unix(ev.Timestamp, 0),
		ExecutionID: ev.ExecutionID,
		NodeID:      ev.NodeID,
		Payload:     ev.Payload,
	}

	s.broadcaster.Broadcast(ev.ExecutionID, out)
}
