package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// subscriptions tracks the executions a client currently follows.
type subscriptions struct {
	executions map[string]bool
	mu         sync.RWMutex
}

func newSubscriptions() *subscriptions {
	return &subscriptions{executions: make(map[string]bool)}
}

// Client is one connected progress-stream subscriber. subject identifies the
// caller for logging; the stream itself carries no authorization semantics
// (§1's Non-goals put access control on the hosting process, not the
// engine).
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *WSEvent

	id      string
	subject string
	subs    *subscriptions
}

func NewClient(id, subject string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan *WSEvent, sendBufferSize),
		id:      id,
		subject: subject,
		subs:    newSubscriptions(),
	}
}

// readPump reads commands from the connection and dispatches them until the
// connection closes, then unregisters the client from its hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket unexpected close", "client_id", c.id, "error", err)
			}
			break
		}

		var cmd WSCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.sendResponse(NewErrorResponse("error", "invalid command format"))
			continue
		}

		c.handleCommand(&cmd)
	}
}

// writePump delivers queued events to the connection and pings it on an
// interval, until the send channel closes or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleCommand(cmd *WSCommand) {
	switch cmd.Action {
	case CmdSubscribe:
		c.handleSubscribe(cmd)
	case CmdUnsubscribe:
		c.handleUnsubscribe(cmd)
	case CmdCancel:
		c.handleCancel(cmd)
	default:
		c.sendResponse(NewErrorResponse("error", "unknown command: "+cmd.Action))
	}
}

func (c *Client) handleSubscribe(cmd *WSCommand) {
	if cmd.ExecutionID == "" {
		c.sendResponse(NewErrorResponse(CmdSubscribe, "execution_id required"))
		return
	}
	c.hub.Subscribe(c, cmd.ExecutionID)
	c.sendResponse(NewSuccessResponse(CmdSubscribe, "subscribed to execution: "+cmd.ExecutionID))
}

func (c *Client) handleUnsubscribe(cmd *WSCommand) {
	if cmd.ExecutionID == "" {
		c.sendResponse(NewErrorResponse(CmdUnsubscribe, "execution_id required"))
		return
	}
	c.hub.Unsubscribe(c, cmd.ExecutionID)
	c.sendResponse(NewSuccessResponse(CmdUnsubscribe, "unsubscribed from execution: "+cmd.ExecutionID))
}

// handleCancel routes a cancel command to the hub's wired Canceller (the
// running flowengine.Engine).
func (c *Client) handleCancel(cmd *WSCommand) {
	if cmd.ExecutionID == "" {
		c.sendResponse(NewErrorResponse(CmdCancel, "execution_id required"))
		return
	}
	if c.hub.canceller == nil || !c.hub.canceller.Cancel(cmd.ExecutionID) {
		c.sendResponse(NewErrorResponse(CmdCancel, "no active execution with that id"))
		return
	}
	c.sendResponse(NewSuccessResponse(CmdCancel, "cancelled execution: "+cmd.ExecutionID))
}

func (c *Client) sendResponse(resp *WSResponse) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.writeJSON(resp)
}

func (c *Client) writeJSON(v interface{}) error {
	return c.conn.WriteJSON(v)
}
