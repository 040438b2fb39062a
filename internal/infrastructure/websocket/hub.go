package websocket

import (
	"log/slog"
	"sync"
)

// Broadcaster fans a progress event out to the connections subscribed to an
// execution. Kept as an interface, as the teacher does, so a Redis-backed
// implementation can stand in for horizontal scaling without the rest of the
// engine noticing.
type Broadcaster interface {
	Broadcast(executionID string, event *WSEvent)
}

// Canceller aborts a running execution, mirroring flowengine.Engine.Cancel
// (§6.6). Wired into the Hub so a client's cancel command can reach the
// engine without the websocket package importing it directly.
type Canceller interface {
	Cancel(executionID string) bool
}

type broadcastMsg struct {
	executionID string
	event       *WSEvent
}

// Hub is the §6.5 broadcast channel: it holds the set of connections
// currently subscribed to each execution's progress stream and delivers
// events to them on a best-effort basis — a full client buffer drops the
// event rather than blocking the engine.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg

	byExecutionID map[string]map[*Client]bool

	logger    *slog.Logger
	canceller Canceller
	mu        sync.RWMutex
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan *broadcastMsg, 256),
		byExecutionID: make(map[string]map[*Client]bool),
		logger:        logger,
	}
}

// SetCanceller wires the engine cancellation path into the hub so clients
// can issue cancel commands over their websocket connection.
func (h *Hub) SetCanceller(c Canceller) { h.canceller = c }

// Run is the hub's event loop; call it in a goroutine for the life of the
// process.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case msg := <-h.broadcast:
			h.broadcastEvent(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	h.logger.Debug("client registered",
		"client_id", client.id,
		"subject", client.subject,
		"total_clients", len(h.clients))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.send)

	client.subs.mu.RLock()
	for execID := range client.subs.executions {
		if clients, ok := h.byExecutionID[execID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.byExecutionID, execID)
			}
		}
	}
	client.subs.mu.RUnlock()

	h.logger.Debug("client unregistered",
		"client_id", client.id,
		"subject", client.subject,
		"total_clients", len(h.clients))
}

// Broadcast enqueues event for delivery to every client subscribed to
// executionID. Implements Broadcaster.
func (h *Hub) Broadcast(executionID string, event *WSEvent) {
	h.broadcast <- &broadcastMsg{executionID: executionID, event: event}
}

func (h *Hub) broadcastEvent(msg *broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.byExecutionID[msg.executionID]
	if !ok {
		return
	}

	for client := range clients {
		select {
		case client.send <- msg.event:
		default:
			h.logger.Warn("client buffer full, dropping message",
				"client_id", client.id,
				"event_type", msg.event.Type)
		}
	}
}

// Subscribe adds client to executionID's progress stream.
func (h *Hub) Subscribe(client *Client, executionID string) {
	if executionID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	client.subs.mu.Lock()
	defer client.subs.mu.Unlock()

	client.subs.executions[executionID] = true
	if h.byExecutionID[executionID] == nil {
		h.byExecutionID[executionID] = make(map[*Client]bool)
	}
	h.byExecutionID[executionID][client] = true

	h.logger.Debug("client subscribed to execution", "client_id", client.id, "execution_id", executionID)
}

// Unsubscribe removes client from executionID's progress stream.
func (h *Hub) Unsubscribe(client *Client, executionID string) {
	if executionID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	client.subs.mu.Lock()
	defer client.subs.mu.Unlock()

	delete(client.subs.executions, executionID)
	if clients, ok := h.byExecutionID[executionID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.byExecutionID, executionID)
		}
	}

	h.logger.Debug("client unsubscribed from execution", "client_id", client.id, "execution_id", executionID)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
