package websocket

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(hub *Hub, id, subject string) *Client {
	return &Client{
		hub:     hub,
		id:      id,
		subject: subject,
		subs:    newSubscriptions(),
		send:    make(chan *WSEvent, sendBufferSize),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testLogger())

	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.byExecutionID)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_RegisterClient(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	client := newTestClient(hub, "client-1", "worker-1")
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_UnregisterClient(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	client := newTestClient(hub, "client-1", "worker-1")
	hub.register <- client
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, hub.ClientCount())

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_SubscribeIndexesClientByExecution(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient(hub, "client-1", "worker-1")

	hub.Subscribe(client, "exec-456")

	hub.mu.RLock()
	_, execOk := hub.byExecutionID["exec-456"][client]
	hub.mu.RUnlock()
	assert.True(t, execOk)

	client.subs.mu.RLock()
	_, subsOk := client.subs.executions["exec-456"]
	client.subs.mu.RUnlock()
	assert.True(t, subsOk)
}

func TestHub_SubscribeIgnoresEmptyExecutionID(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient(hub, "client-1", "worker-1")

	hub.Subscribe(client, "")

	client.subs.mu.RLock()
	defer client.subs.mu.RUnlock()
	assert.Len(t, client.subs.executions, 0)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient(hub, "client-1", "worker-1")

	hub.Subscribe(client, "exec-456")
	hub.mu.RLock()
	_, execOk := hub.byExecutionID["exec-456"][client]
	hub.mu.RUnlock()
	require.True(t, execOk)

	hub.Unsubscribe(client, "exec-456")

	hub.mu.RLock()
	_, execOkAfter := hub.byExecutionID["exec-456"]
	hub.mu.RUnlock()
	assert.False(t, execOkAfter)
}

func TestHub_BroadcastToExecutionSubscribers(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	subscribed := newTestClient(hub, "client-1", "worker-1")
	unsubscribed := newTestClient(hub, "client-2", "worker-2")

	hub.register <- subscribed
	hub.register <- unsubscribed
	time.Sleep(10 * time.Millisecond)

	hub.Subscribe(subscribed, "exec-123")

	event := NewWSEvent(EventNodeCompleted, "exec-123")
	hub.Broadcast("exec-123", event)

	select {
	case received := <-subscribed.send:
		assert.Equal(t, EventNodeCompleted, received.Type)
		assert.Equal(t, "exec-123", received.ExecutionID)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("subscribed client did not receive event")
	}

	select {
	case <-unsubscribed.send:
		t.Fatal("unsubscribed client should not receive event for another execution")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastToUnknownExecutionIsNoop(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	event := NewWSEvent(EventExecutionStarted, "exec-ghost")
	hub.Broadcast("exec-ghost", event)
	time.Sleep(10 * time.Millisecond)
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 0, hub.ClientCount())

	for i := 0; i < 3; i++ {
		hub.register <- newTestClient(hub, "client-"+string(rune('0'+i)), "worker")
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, hub.ClientCount())
}

func TestHub_UnregisterCleansUpSubscriptions(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	client := newTestClient(hub, "client-1", "worker-1")
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Subscribe(client, "exec-456")
	hub.mu.RLock()
	_, execOk := hub.byExecutionID["exec-456"][client]
	hub.mu.RUnlock()
	require.True(t, execOk)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	_, execExists := hub.byExecutionID["exec-456"]
	hub.mu.RUnlock()
	assert.False(t, execExists)
}

func TestHub_ImplementsBroadcaster(t *testing.T) {
	hub := NewHub(testLogger())
	var _ Broadcaster = hub
}

func TestHub_BroadcastReachesAllSubscribersOfSameExecution(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	client1 := newTestClient(hub, "client-1", "worker-1")
	client2 := newTestClient(hub, "client-2", "worker-2")

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	hub.Subscribe(client1, "exec-123")
	hub.Subscribe(client2, "exec-123")

	event := NewWSEvent(EventExecutionStarted, "exec-123")
	hub.Broadcast("exec-123", event)

	received := 0
	timeout := time.After(100 * time.Millisecond)
	for received < 2 {
		select {
		case <-client1.send:
			received++
		case <-client2.send:
			received++
		case <-timeout:
			t.Fatalf("only received %d/2 broadcasts", received)
		}
	}
	assert.Equal(t, 2, received)
}

func TestHub_UnsubscribePreservesOtherSubscribers(t *testing.T) {
	hub := NewHub(testLogger())
	client1 := newTestClient(hub, "client-1", "worker-1")
	client2 := newTestClient(hub, "client-2", "worker-2")

	hub.Subscribe(client1, "exec-123")
	hub.Subscribe(client2, "exec-123")

	hub.Unsubscribe(client1, "exec-123")

	hub.mu.RLock()
	_, client2Ok := hub.byExecutionID["exec-123"][client2]
	hub.mu.RUnlock()
	assert.True(t, client2Ok, "client2 should still be subscribed")

	client1.subs.mu.RLock()
	_, client1SubsOk := client1.subs.executions["exec-123"]
	client1.subs.mu.RUnlock()
	assert.False(t, client1SubsOk)
}

func TestNewSubscriptions(t *testing.T) {
	subs := newSubscriptions()

	require.NotNil(t, subs.executions)
	assert.Len(t, subs.executions, 0)
}

func TestHub_UnregisterUnknownClientDoesNotPanic(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	unknown := newTestClient(hub, "ghost", "worker-1")
	hub.unregister <- unknown
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 0, hub.ClientCount())
}

func TestBroadcastMsg_Structure(t *testing.T) {
	event := NewWSEvent(EventNodeStarted, "exec-1")
	msg := &broadcastMsg{executionID: "exec-1", event: event}

	require.NotNil(t, msg)
	assert.Equal(t, "exec-1", msg.executionID)
	assert.Equal(t, event, msg.event)
}
