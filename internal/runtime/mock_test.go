package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockSession_ReplaysScriptToSubscribers(t *testing.T) {
	script := []Event{
		{Kind: EventTextDelta, Delta: "hel"},
		{Kind: EventTextDelta, Delta: "lo"},
		{Kind: EventMessageEnd, Content: "hello", StopReason: StopReasonComplete},
	}
	session := NewMockSession(script)

	var got []Event
	unsubscribe := session.Subscribe(func(e Event) { got = append(got, e) })
	defer unsubscribe()

	require.NoError(t, session.Prompt(context.Background(), "hi", nil))
	require.Len(t, got, 3)
	assert.Equal(t, EventMessageEnd, got[2].Kind)
	assert.Equal(t, "hello", got[2].Content)
}

func TestMockSession_PromptErrPropagates(t *testing.T) {
	session := NewMockSession(nil)
	session.PromptErr = errors.New("boom")

	err := session.Prompt(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, session.PromptErr)
}

func TestMockSession_UnsubscribeStopsDelivery(t *testing.T) {
	session := NewMockSession([]Event{{Kind: EventTurnEnd}})
	var count int
	unsubscribe := session.Subscribe(func(e Event) { count++ })
	unsubscribe()

	require.NoError(t, session.Prompt(context.Background(), "hi", nil))
	assert.Equal(t, 0, count)
}

func TestMockRuntime_OpenSessionPopsQueue(t *testing.T) {
	first := NewMockSession(nil)
	second := NewMockSession(nil)
	rt := &MockRuntime{Sessions: []*MockSession{first, second}}

	s1, err := rt.OpenSession(context.Background(), OpenOptions{})
	require.NoError(t, err)
	assert.Same(t, first, s1)

	s2, err := rt.OpenSession(context.Background(), OpenOptions{})
	require.NoError(t, err)
	assert.Same(t, second, s2)
}

func TestMockRuntime_OpenErr(t *testing.T) {
	rt := &MockRuntime{OpenErr: errors.New("no capacity")}
	_, err := rt.OpenSession(context.Background(), OpenOptions{})
	assert.ErrorIs(t, err, rt.OpenErr)
}
