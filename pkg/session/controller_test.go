package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/cricket/pkg/events"
)

// scriptedInvoker hands control of the resolution to the test: Invoke
// reports the submitted text, then blocks until the test releases it.
type scriptedInvoker struct {
	invoked chan string
	release chan error
}

func newScriptedInvoker() *scriptedInvoker {
	return &scriptedInvoker{
		invoked: make(chan string, 4),
		release: make(chan error),
	}
}

func (s *scriptedInvoker) Invoke(_ context.Context, text string) error {
	s.invoked <- text
	return <-s.release
}

func (s *scriptedInvoker) awaitInvoke(t *testing.T) string {
	t.Helper()
	select {
	case text := <-s.invoked:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for invoker")
		return ""
	}
}

func (s *scriptedInvoker) resolve(t *testing.T, err error) {
	t.Helper()
	select {
	case s.release <- err:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout releasing invoker")
	}
}

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool { return !c.Busy() }, 2*time.Second, 5*time.Millisecond)
}

func toolCallChunk(t *testing.T, name string) events.Chunk {
	t.Helper()
	c, err := events.NewToolCallChunk(events.ToolCall{Name: name})
	require.NoError(t, err)
	return c
}

func newTestController(t *testing.T, inv Invoker) *Controller {
	t.Helper()
	c, err := New("test-session", inv, nil)
	require.NoError(t, err)
	return c
}

func TestSubmitAppendsUserEntryAndInvokes(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	require.NoError(t, c.Submit(context.Background(), "  hello  "))
	assert.Equal(t, "hello", inv.awaitInvoke(t))
	assert.True(t, c.Busy())

	entries := c.Transcript()
	require.Len(t, entries, 1)
	assert.Equal(t, RoleUser, entries[0].Role)
	assert.Equal(t, "hello", entries[0].Content)
	assert.False(t, entries[0].CreatedAt.IsZero())

	inv.resolve(t, nil)
	waitIdle(t, c)
}

func TestDeltaConcatenationOrder(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	require.NoError(t, c.Submit(context.Background(), "question"))
	inv.awaitInvoke(t)

	parts := []string{"a", "b", "", "c", "d"}
	for _, p := range parts {
		c.HandleChunk(events.NewDeltaChunk(p))
	}
	inv.resolve(t, nil)
	waitIdle(t, c)

	entries := c.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, RoleAssistant, entries[1].Role)
	assert.Equal(t, strings.Join(parts, ""), entries[1].Content)
	assert.Empty(t, c.LivePreview())
}

func TestSuccessWithoutDeltasAppendsNothing(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	require.NoError(t, c.Submit(context.Background(), "question"))
	inv.awaitInvoke(t)
	inv.resolve(t, nil)
	waitIdle(t, c)

	entries := c.Transcript()
	require.Len(t, entries, 1)
	assert.Equal(t, RoleUser, entries[0].Role)
}

func TestFailureDiscardsBuffer(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	require.NoError(t, c.Submit(context.Background(), "question"))
	inv.awaitInvoke(t)

	c.HandleChunk(events.NewDeltaChunk("partial "))
	c.HandleChunk(events.NewDeltaChunk("answer"))
	inv.resolve(t, errors.New("boom"))
	waitIdle(t, c)

	entries := c.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, RoleSystem, entries[1].Role)
	assert.Equal(t, "Error: boom", entries[1].Content)
	for _, e := range entries {
		assert.NotEqual(t, RoleAssistant, e.Role)
	}
	assert.Empty(t, c.LivePreview())
	assert.False(t, c.Busy())
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	require.ErrorIs(t, c.Submit(context.Background(), ""), ErrEmptyInput)
	require.ErrorIs(t, c.Submit(context.Background(), "   \n\t "), ErrEmptyInput)

	assert.Empty(t, c.Transcript())
	assert.False(t, c.Busy())
	select {
	case <-inv.invoked:
		t.Fatal("invoker must not run for rejected submissions")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubmitRejectsWhileBusy(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	require.NoError(t, c.Submit(context.Background(), "first"))
	inv.awaitInvoke(t)

	require.ErrorIs(t, c.Submit(context.Background(), "second"), ErrBusy)

	entries := c.Transcript()
	require.Len(t, entries, 1)
	assert.Equal(t, "first", entries[0].Content)

	inv.resolve(t, nil)
	waitIdle(t, c)

	// The caller re-submits once the session is Idle again.
	require.NoError(t, c.Submit(context.Background(), "second"))
	assert.Equal(t, "second", inv.awaitInvoke(t))
	inv.resolve(t, nil)
	waitIdle(t, c)
}

func TestToolCallAppendsImmediately(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	require.NoError(t, c.Submit(context.Background(), "question"))
	inv.awaitInvoke(t)

	c.HandleChunk(events.NewDeltaChunk("Hi"))
	c.HandleChunk(toolCallChunk(t, "time"))

	// The system entry lands before the request resolves and the buffer
	// keeps accumulating untouched.
	entries := c.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, RoleSystem, entries[1].Role)
	assert.True(t, strings.HasPrefix(entries[1].Content, events.ToolCallRenderPrefix))
	assert.NotEmpty(t, entries[1].ToolCallPayload)
	assert.Equal(t, "Hi", c.LivePreview())

	c.HandleChunk(events.NewDeltaChunk(" there"))
	inv.resolve(t, nil)
	waitIdle(t, c)

	entries = c.Transcript()
	require.Len(t, entries, 3)
	assert.Equal(t, RoleAssistant, entries[2].Role)
	assert.Equal(t, "Hi there", entries[2].Content)
}

func TestScenarioHelloHiThere(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	require.NoError(t, c.Submit(context.Background(), "hello"))
	inv.awaitInvoke(t)
	c.HandleChunk(events.NewDeltaChunk("Hi"))
	c.HandleChunk(events.NewDeltaChunk(" there"))
	inv.resolve(t, nil)
	waitIdle(t, c)

	entries := c.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, RoleUser, entries[0].Role)
	assert.Equal(t, "hello", entries[0].Content)
	assert.Equal(t, RoleAssistant, entries[1].Role)
	assert.Equal(t, "Hi there", entries[1].Content)
	assert.False(t, c.Busy())
}

func TestScenarioNetworkDown(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	require.NoError(t, c.Submit(context.Background(), "x"))
	inv.awaitInvoke(t)
	inv.resolve(t, errors.New("network down"))
	waitIdle(t, c)

	entries := c.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, RoleUser, entries[0].Role)
	assert.Equal(t, "x", entries[0].Content)
	assert.Equal(t, RoleSystem, entries[1].Role)
	assert.Equal(t, "Error: network down", entries[1].Content)
	assert.False(t, c.Busy())
}

func TestScenarioToolCallThenDelta(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	require.NoError(t, c.Submit(context.Background(), "x"))
	inv.awaitInvoke(t)
	c.HandleChunk(toolCallChunk(t, "time"))
	c.HandleChunk(events.NewDeltaChunk("It is 5pm"))
	inv.resolve(t, nil)
	waitIdle(t, c)

	entries := c.Transcript()
	require.Len(t, entries, 3)
	assert.Equal(t, RoleUser, entries[0].Role)
	assert.Equal(t, RoleSystem, entries[1].Role)
	assert.True(t, strings.HasPrefix(entries[1].Content, events.ToolCallRenderPrefix))
	assert.Equal(t, RoleAssistant, entries[2].Role)
	assert.Equal(t, "It is 5pm", entries[2].Content)
}

func TestChunksIgnoredWhileIdle(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	c.HandleChunk(events.NewDeltaChunk("stray"))
	c.HandleChunk(toolCallChunk(t, "time"))

	assert.Empty(t, c.Transcript())
	assert.Empty(t, c.LivePreview())
	assert.False(t, c.Busy())

	// A later request is unaffected by the stray events.
	require.NoError(t, c.Submit(context.Background(), "hello"))
	inv.awaitInvoke(t)
	c.HandleChunk(events.NewDeltaChunk("Hi"))
	inv.resolve(t, nil)
	waitIdle(t, c)

	entries := c.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, "Hi", entries[1].Content)
}

func TestDerivedFlags(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	snap := c.Snapshot()
	assert.False(t, snap.Busy)
	assert.False(t, snap.Thinking)
	assert.False(t, snap.Streaming)
	assert.Empty(t, snap.LivePreview)

	require.NoError(t, c.Submit(context.Background(), "q"))
	inv.awaitInvoke(t)

	assert.True(t, c.IsThinking())
	assert.False(t, c.IsStreaming())

	c.HandleChunk(events.NewDeltaChunk("Hi"))
	assert.False(t, c.IsThinking())
	assert.True(t, c.IsStreaming())
	assert.Equal(t, "Hi", c.LivePreview())

	snap = c.Snapshot()
	assert.True(t, snap.Busy)
	assert.True(t, snap.Streaming)
	assert.Equal(t, "Hi", snap.LivePreview)

	inv.resolve(t, nil)
	waitIdle(t, c)
	assert.False(t, c.IsThinking())
	assert.False(t, c.IsStreaming())
	assert.Empty(t, c.LivePreview())
}

func TestUpdatesCoalesce(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	require.NoError(t, c.Submit(context.Background(), "q"))
	inv.awaitInvoke(t)
	for i := 0; i < 10; i++ {
		c.HandleChunk(events.NewDeltaChunk("x"))
	}

	select {
	case <-c.Updates():
	case <-time.After(time.Second):
		t.Fatal("expected a pending update notification")
	}

	inv.resolve(t, nil)
	waitIdle(t, c)
}

func TestSnapshotIsACopy(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	require.NoError(t, c.Submit(context.Background(), "hello"))
	inv.awaitInvoke(t)
	inv.resolve(t, nil)
	waitIdle(t, c)

	snap := c.Snapshot()
	require.Len(t, snap.Entries, 1)
	snap.Entries[0].Content = "mutated"
	assert.Equal(t, "hello", c.Transcript()[0].Content)
}

type failingSubscriber struct{}

func (failingSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return nil, errors.New("channel unavailable")
}

func (failingSubscriber) Close() error { return nil }

func TestStartFailureDegradesGracefully(t *testing.T) {
	inv := newScriptedInvoker()
	c, err := New("degraded", inv, failingSubscriber{})
	require.NoError(t, err)

	require.Error(t, c.Start(context.Background()))

	// Submit still works; without a subscription there is nothing to fold,
	// so a successful resolution appends no assistant entry.
	require.NoError(t, c.Submit(context.Background(), "hello"))
	inv.awaitInvoke(t)
	inv.resolve(t, nil)
	waitIdle(t, c)

	entries := c.Transcript()
	require.Len(t, entries, 1)
	assert.Equal(t, RoleUser, entries[0].Role)
	require.NoError(t, c.Close())
}

func TestCloseIsIdempotent(t *testing.T) {
	inv := newScriptedInvoker()
	c := newTestController(t, inv)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Submit(context.Background(), "x"), ErrClosed)
	require.ErrorIs(t, c.Start(context.Background()), ErrClosed)
}

func TestControllerOverBus(t *testing.T) {
	router, err := events.NewEventRouter()
	require.NoError(t, err)
	defer func() { _ = router.Close() }()

	inv := newScriptedInvoker()
	c, err := New("bus-session", inv, router.Subscriber)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	sink := events.NewBusSink(router.Publisher, events.Topic(c.ID()))
	require.NoError(t, c.Submit(ctx, "hello"))
	inv.awaitInvoke(t)

	// Publishes return after the controller acked the fold, so the
	// resolution below happens-after every chunk.
	require.NoError(t, sink.PublishDelta("Hi"))
	require.NoError(t, sink.PublishDelta(" there"))
	inv.resolve(t, nil)
	waitIdle(t, c)

	entries := c.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, "Hi there", entries[1].Content)

	require.NoError(t, c.Close())
}

func TestMalformedPayloadsDroppedOnBus(t *testing.T) {
	router, err := events.NewEventRouter()
	require.NoError(t, err)
	defer func() { _ = router.Close() }()

	inv := newScriptedInvoker()
	c, err := New("garbage-session", inv, router.Subscriber)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Submit(ctx, "hello"))
	inv.awaitInvoke(t)

	topic := events.Topic(c.ID())
	require.NoError(t, router.Publisher.Publish(topic, message.NewMessage("1", []byte("not json"))))
	require.NoError(t, router.Publisher.Publish(topic, message.NewMessage("2", []byte(`{}`))))

	sink := events.NewBusSink(router.Publisher, topic)
	require.NoError(t, sink.PublishDelta("ok"))
	inv.resolve(t, nil)
	waitIdle(t, c)

	entries := c.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, "ok", entries[1].Content)
}
