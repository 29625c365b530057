package ui

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/cricket/pkg/session"
)

func newIdleController(t *testing.T) *session.Controller {
	t.Helper()
	c, err := session.New("ui-test", session.InvokerFunc(func(context.Context, string) error {
		return nil
	}), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRenderTranscript_RolesAndPreview(t *testing.T) {
	m := NewModel(newIdleController(t), ModelOptions{})
	m.snap = session.Snapshot{
		Entries: []session.TranscriptEntry{
			{Role: session.RoleUser, Content: "hello", CreatedAt: time.Now()},
			{Role: session.RoleSystem, Content: "Tool called: get_current_time()", ToolCallPayload: json.RawMessage(`{"name":"get_current_time"}`), CreatedAt: time.Now()},
			{Role: session.RoleAssistant, Content: "Hi there", CreatedAt: time.Now()},
			{Role: session.RoleSystem, Content: "Error: network down", CreatedAt: time.Now()},
		},
		Busy:        true,
		LivePreview: "typing",
	}

	out := m.renderTranscript()
	assert.Contains(t, out, "You: hello")
	assert.Contains(t, out, "Tool called: get_current_time()")
	assert.Contains(t, out, "Assistant: Hi there")
	assert.Contains(t, out, "Error: network down")
	assert.Contains(t, out, "Assistant: typing")
}

func TestRenderTranscript_NoPreviewWhileIdle(t *testing.T) {
	m := NewModel(newIdleController(t), ModelOptions{})
	m.snap = session.Snapshot{
		Entries: []session.TranscriptEntry{
			{Role: session.RoleAssistant, Content: "done", CreatedAt: time.Now()},
		},
	}
	out := m.renderTranscript()
	assert.Contains(t, out, "Assistant: done")
	assert.NotContains(t, out, "typing")
}

func TestHeaderView_ShowsPhase(t *testing.T) {
	m := NewModel(newIdleController(t), ModelOptions{Title: "cricket"})

	m.snap.Busy = true
	m.snap.Thinking = true
	assert.Contains(t, m.headerView(), "thinking")

	m.snap.Thinking = false
	m.snap.Streaming = true
	assert.Contains(t, m.headerView(), "streaming")

	m.snap.Streaming = false
	m.snap.Busy = false
	out := m.headerView()
	assert.NotContains(t, out, "thinking")
	assert.NotContains(t, out, "streaming")
}

func TestStatusView_StateAndModel(t *testing.T) {
	m := NewModel(newIdleController(t), ModelOptions{Model: "gpt-4o"})

	out := m.statusView()
	assert.Contains(t, out, "idle")
	assert.Contains(t, out, "gpt-4o")

	m.snap.Busy = true
	m.snap.Thinking = true
	assert.Contains(t, m.statusView(), "thinking")

	m.snap.Thinking = false
	m.snap.Streaming = true
	assert.Contains(t, m.statusView(), "streaming")
}

func TestLastAssistantEntry(t *testing.T) {
	snap := session.Snapshot{
		Entries: []session.TranscriptEntry{
			{Role: session.RoleAssistant, Content: "first"},
			{Role: session.RoleUser, Content: "again"},
			{Role: session.RoleAssistant, Content: "second"},
			{Role: session.RoleSystem, Content: "Error: x"},
		},
	}
	reply, ok := lastAssistantEntry(snap)
	require.True(t, ok)
	assert.Equal(t, "second", reply)

	_, ok = lastAssistantEntry(session.Snapshot{})
	assert.False(t, ok)
}
