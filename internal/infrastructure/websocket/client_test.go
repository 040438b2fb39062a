package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	hub := NewHub(testLogger())

	client := NewClient("client-1", "worker-1", hub, nil)

	assert.Equal(t, "client-1", client.id)
	assert.Equal(t, "worker-1", client.subject)
	assert.Equal(t, hub, client.hub)
	assert.NotNil(t, client.send)
	assert.NotNil(t, client.subs)
}

func newTestServer(t *testing.T, hub *Hub, preSubscribe string) (*httptest.Server, *websocket.Conn) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatal(err)
		}

		client := NewClient("test-client", "worker-1", hub, conn)
		hub.register <- client
		if preSubscribe != "" {
			hub.Subscribe(client, preSubscribe)
		}

		go client.writePump()
		go client.readPump()
	}))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	return server, ws
}

func TestClient_IntegrationWithWebSocket(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server, ws := newTestServer(t, hub, "")
	defer server.Close()
	defer ws.Close()

	assert.Equal(t, 1, hub.ClientCount())
}

func TestClient_HandleSubscribeCommand(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server, ws := newTestServer(t, hub, "")
	defer server.Close()
	defer ws.Close()

	err := ws.WriteJSON(WSCommand{Action: CmdSubscribe, ExecutionID: "exec-123"})
	require.NoError(t, err)

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, ws.ReadJSON(&response))

	assert.Equal(t, CmdSubscribe, response.Type)
	assert.True(t, response.Success)
	assert.Contains(t, response.Message, "exec-123")
}

func TestClient_HandleSubscribeWithoutExecutionID(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server, ws := newTestServer(t, hub, "")
	defer server.Close()
	defer ws.Close()

	err := ws.WriteJSON(WSCommand{Action: CmdSubscribe})
	require.NoError(t, err)

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, ws.ReadJSON(&response))

	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "execution_id required")
}

func TestClient_HandleUnsubscribeCommand(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server, ws := newTestServer(t, hub, "exec-123")
	defer server.Close()
	defer ws.Close()

	err := ws.WriteJSON(WSCommand{Action: CmdUnsubscribe, ExecutionID: "exec-123"})
	require.NoError(t, err)

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, ws.ReadJSON(&response))

	assert.Equal(t, CmdUnsubscribe, response.Type)
	assert.True(t, response.Success)
	assert.Contains(t, response.Message, "exec-123")
}

func TestClient_HandleInvalidCommandJSON(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server, ws := newTestServer(t, hub, "")
	defer server.Close()
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not valid json")))

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, ws.ReadJSON(&response))

	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "invalid command format")
}

func TestClient_HandleUnknownCommand(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server, ws := newTestServer(t, hub, "")
	defer server.Close()
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(WSCommand{Action: "unknown_action"}))

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, ws.ReadJSON(&response))

	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "unknown command")
}

func TestClient_HandleCancelWithoutActiveExecution(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server, ws := newTestServer(t, hub, "")
	defer server.Close()
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(WSCommand{Action: CmdCancel, ExecutionID: "exec-123"}))

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, ws.ReadJSON(&response))

	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "no active execution")
}

func TestClient_HandleCancelWithoutExecutionID(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server, ws := newTestServer(t, hub, "")
	defer server.Close()
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(WSCommand{Action: CmdCancel}))

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, ws.ReadJSON(&response))

	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "execution_id required")
}

type fakeCanceller struct{ cancelled []string }

func (f *fakeCanceller) Cancel(executionID string) bool {
	f.cancelled = append(f.cancelled, executionID)
	return true
}

func TestClient_HandleCancelReachesWiredCanceller(t *testing.T) {
	hub := NewHub(testLogger())
	canceller := &fakeCanceller{}
	hub.SetCanceller(canceller)
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server, ws := newTestServer(t, hub, "")
	defer server.Close()
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(WSCommand{Action: CmdCancel, ExecutionID: "exec-123"}))

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, ws.ReadJSON(&response))

	assert.True(t, response.Success)
	assert.Contains(t, response.Message, "exec-123")
	assert.Equal(t, []string{"exec-123"}, canceller.cancelled)
}

func TestClient_ReceiveBroadcastEvent(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server, ws := newTestServer(t, hub, "")
	defer server.Close()
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(WSCommand{Action: CmdSubscribe, ExecutionID: "exec-1"}))
	var subResp WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, ws.ReadJSON(&subResp))
	require.True(t, subResp.Success)

	event := NewWSEvent(EventExecutionStarted, "exec-1")
	hub.Broadcast("exec-1", event)

	var received WSEvent
	ws.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, ws.ReadJSON(&received))

	assert.Equal(t, EventExecutionStarted, received.Type)
	assert.Equal(t, "exec-1", received.ExecutionID)
}

func TestClient_ConnectionCloseUnregisters(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server, ws := newTestServer(t, hub, "")
	defer server.Close()

	require.Equal(t, 1, hub.ClientCount())

	ws.Close()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestSubscriptions_ThreadSafety(t *testing.T) {
	subs := newSubscriptions()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(idx int) {
			subs.mu.Lock()
			subs.executions["exec-"+string(rune('0'+idx))] = true
			subs.mu.Unlock()
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	subs.mu.RLock()
	count := len(subs.executions)
	subs.mu.RUnlock()

	assert.Equal(t, 10, count)
}

func TestClient_Constants(t *testing.T) {
	assert.Equal(t, 10*time.Second, writeWait)
	assert.Equal(t, 60*time.Second, pongWait)
	assert.Less(t, pingPeriod, pongWait, "ping period must be less than pong wait")
	assert.Equal(t, 512, maxMessageSize)
	assert.Equal(t, 64, sendBufferSize)
}

func TestClient_HandleCommand_JSON(t *testing.T) {
	tests := []struct {
		name     string
		jsonCmd  string
		wantType string
	}{
		{
			name:     "valid subscribe execution",
			jsonCmd:  `{"action":"subscribe","execution_id":"exec-456"}`,
			wantType: CmdSubscribe,
		},
		{
			name:     "valid unsubscribe",
			jsonCmd:  `{"action":"unsubscribe","execution_id":"exec-456"}`,
			wantType: CmdUnsubscribe,
		},
		{
			name:     "valid cancel",
			jsonCmd:  `{"action":"cancel","execution_id":"exec-456"}`,
			wantType: CmdCancel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd WSCommand
			require.NoError(t, json.Unmarshal([]byte(tt.jsonCmd), &cmd))
			assert.Equal(t, tt.wantType, cmd.Action)
			assert.Equal(t, "exec-456", cmd.ExecutionID)
		})
	}
}
