package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWSEvent(t *testing.T) {
	before := time.Now()
	event := NewWSEvent(EventExecutionStarted, "exec-456")
	after := time.Now()

	assert.Equal(t, EventExecutionStarted, event.Type)
	assert.Equal(t, "exec-456", event.ExecutionID)
	assert.True(t, event.Timestamp.After(before) || event.Timestamp.Equal(before))
	assert.True(t, event.Timestamp.Before(after) || event.Timestamp.Equal(after))
}

func TestNewWSEvent_AllEventTypes(t *testing.T) {
	eventTypes := []string{
		EventExecutionStarted,
		EventExecutionCompleted,
		EventExecutionFailed,
		EventExecutionCancelled,
		EventNodeStarted,
		EventNodeCompleted,
		EventNodeFailed,
	}

	for _, eventType := range eventTypes {
		t.Run(eventType, func(t *testing.T) {
			event := NewWSEvent(eventType, "exec-1")
			assert.Equal(t, eventType, event.Type)
		})
	}
}

func TestNewSuccessResponse(t *testing.T) {
	resp := NewSuccessResponse(CmdSubscribe, "subscribed to execution: exec-1")

	assert.Equal(t, CmdSubscribe, resp.Type)
	assert.True(t, resp.Success)
	assert.Equal(t, "subscribed to execution: exec-1", resp.Message)
	assert.Empty(t, resp.Error)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(CmdSubscribe, "execution_id required")

	assert.Equal(t, CmdSubscribe, resp.Type)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Message)
	assert.Equal(t, "execution_id required", resp.Error)
}

func TestWSEvent_JSONSerialization(t *testing.T) {
	event := NewWSEvent(EventNodeCompleted, "exec-456")
	event.NodeID = "node-789"
	event.Payload = map[string]any{"duration_ms": float64(150), "output": map[string]any{"result": "success"}}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded WSEvent
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, event.Type, decoded.Type)
	assert.Equal(t, event.ExecutionID, decoded.ExecutionID)
	assert.Equal(t, event.NodeID, decoded.NodeID)
	assert.Equal(t, event.Payload["duration_ms"], decoded.Payload["duration_ms"])
}

func TestWSEvent_JSONOmitEmpty(t *testing.T) {
	event := NewWSEvent(EventExecutionStarted, "exec-456")

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))

	assert.Contains(t, m, "type")
	assert.Contains(t, m, "execution_id")
	assert.Contains(t, m, "timestamp")

	assert.NotContains(t, m, "node_id")
	assert.NotContains(t, m, "payload")
}

func TestWSCommand_JSONDeserialization(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		expected WSCommand
	}{
		{
			name:     "subscribe to execution",
			json:     `{"action":"subscribe","execution_id":"exec-456"}`,
			expected: WSCommand{Action: CmdSubscribe, ExecutionID: "exec-456"},
		},
		{
			name:     "unsubscribe from execution",
			json:     `{"action":"unsubscribe","execution_id":"exec-456"}`,
			expected: WSCommand{Action: CmdUnsubscribe, ExecutionID: "exec-456"},
		},
		{
			name:     "cancel execution",
			json:     `{"action":"cancel","execution_id":"exec-456"}`,
			expected: WSCommand{Action: CmdCancel, ExecutionID: "exec-456"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd WSCommand
			require.NoError(t, json.Unmarshal([]byte(tt.json), &cmd))
			assert.Equal(t, tt.expected, cmd)
		})
	}
}

func TestWSResponse_JSONSerialization(t *testing.T) {
	tests := []struct {
		name     string
		response *WSResponse
	}{
		{name: "success response", response: NewSuccessResponse(CmdSubscribe, "subscribed")},
		{name: "error response", response: NewErrorResponse(CmdSubscribe, "invalid id")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.response)
			require.NoError(t, err)

			var decoded WSResponse
			require.NoError(t, json.Unmarshal(data, &decoded))

			assert.Equal(t, tt.response.Type, decoded.Type)
			assert.Equal(t, tt.response.Success, decoded.Success)
			assert.Equal(t, tt.response.Message, decoded.Message)
			assert.Equal(t, tt.response.Error, decoded.Error)
		})
	}
}

func TestEventTypeConstants_MatchEngineNotation(t *testing.T) {
	// These must mirror flowengine.EventType's colon notation exactly so
	// adapters/progress.go can forward events without a translation table.
	assert.Equal(t, "execution:started", EventExecutionStarted)
	assert.Equal(t, "execution:completed", EventExecutionCompleted)
	assert.Equal(t, "execution:failed", EventExecutionFailed)
	assert.Equal(t, "execution:cancelled", EventExecutionCancelled)
	assert.Equal(t, "node:started", EventNodeStarted)
	assert.Equal(t, "node:completed", EventNodeCompleted)
	assert.Equal(t, "node:failed", EventNodeFailed)
}

func TestCommandTypeConstants(t *testing.T) {
	assert.Equal(t, "subscribe", CmdSubscribe)
	assert.Equal(t, "unsubscribe", CmdUnsubscribe)
	assert.Equal(t, "cancel", CmdCancel)
}
