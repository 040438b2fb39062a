package flowengine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbflowrt/flowengine/internal/flowengine"
)

type fakeMessaging struct {
	failFor map[string]bool
	sent    []string
}

func (f *fakeMessaging) Send(ctx context.Context, platform, recipient string, content flowengine.MessageContent) (flowengine.SendResult, error) {
	f.sent = append(f.sent, recipient)
	if f.failFor[recipient] {
		return flowengine.SendResult{}, errors.New("delivery failed")
	}
	return flowengine.SendResult{MessageID: "msg-" + recipient, Platform: platform, Status: "sent"}, nil
}

func (f *fakeMessaging) SubscribeInbound(handler flowengine.InboundHandler)               {}
func (f *fakeMessaging) SendRetryPrompt(ctx context.Context, waitID, text string) error { return nil }

func TestDispatchBridge_ReplyTargetUsesTriggerSender(t *testing.T) {
	m := &fakeMessaging{}
	b := flowengine.NewDispatchBridge(m, flowengine.NewResolver())

	res, ferr := b.Dispatch(context.Background(), "telegram", flowengine.DispatchTarget{Kind: flowengine.TargetReply},
		flowengine.MessageContent{Text: "hi"}, "user-42", nil)

	require.Nil(t, ferr)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, []string{"user-42"}, m.sent)
}

func TestDispatchBridge_BroadcastSendsToEveryRecipient(t *testing.T) {
	m := &fakeMessaging{}
	b := flowengine.NewDispatchBridge(m, flowengine.NewResolver())

	res, ferr := b.Dispatch(context.Background(), "slack",
		flowengine.DispatchTarget{Kind: flowengine.TargetBroadcast, Recipients: []string{"a", "b", "c"}},
		flowengine.MessageContent{Text: "hi"}, "", nil)

	require.Nil(t, ferr)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Sent)
}

func TestDispatchBridge_VariableTargetResolvesListFromScope(t *testing.T) {
	m := &fakeMessaging{}
	b := flowengine.NewDispatchBridge(m, flowengine.NewResolver())
	scope := map[string]any{"variables": map[string]any{"recipients": []any{"a", "b"}}}

	res, ferr := b.Dispatch(context.Background(), "slack",
		flowengine.DispatchTarget{Kind: flowengine.TargetVariable, VariablePath: "variables.recipients"},
		flowengine.MessageContent{Text: "hi"}, "", scope)

	require.Nil(t, ferr)
	assert.Equal(t, 2, res.Sent)
}

func TestDispatchBridge_PartialFailureIsRecordedNotFatal(t *testing.T) {
	m := &fakeMessaging{failFor: map[string]bool{"b": true}}
	b := flowengine.NewDispatchBridge(m, flowengine.NewResolver())

	res, ferr := b.Dispatch(context.Background(), "slack",
		flowengine.DispatchTarget{Kind: flowengine.TargetBroadcast, Recipients: []string{"a", "b"}},
		flowengine.MessageContent{Text: "hi"}, "", nil)

	require.Nil(t, ferr)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Failed)
}

func TestDispatchBridge_AllRecipientsFailingIsFatal(t *testing.T) {
	m := &fakeMessaging{failFor: map[string]bool{"a": true}}
	b := flowengine.NewDispatchBridge(m, flowengine.NewResolver())

	_, ferr := b.Dispatch(context.Background(), "slack",
		flowengine.DispatchTarget{Kind: flowengine.TargetBroadcast, Recipients: []string{"a"}},
		flowengine.MessageContent{Text: "hi"}, "", nil)

	require.NotNil(t, ferr)
}
