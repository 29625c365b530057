package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRouter_HandlerReceivesPublishedChunks(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)
	defer func() { _ = router.Close() }()

	received := make(chan Chunk, 4)
	router.AddHandler("collect", Topic("s1"), func(msg *message.Message) error {
		c, err := ParseChunk(msg.Payload)
		if err != nil {
			return nil
		}
		received <- c
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	sink := NewBusSink(router.Publisher, Topic("s1"))
	require.NoError(t, sink.PublishDelta("Hi"))
	require.NoError(t, sink.PublishToolCall(ToolCall{Name: "time"}))

	want := []string{"Hi", ""}
	for i := 0; i < 2; i++ {
		select {
		case c := <-received:
			assert.Equal(t, want[i], c.Delta)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for chunk")
		}
	}
}

func TestEventRouter_DirectSubscribe(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)
	defer func() { _ = router.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := router.Subscriber.Subscribe(ctx, Topic("s2"))
	require.NoError(t, err)

	sink := NewBusSink(router.Publisher, Topic("s2"))
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, sink.PublishDelta("one"))
	}()

	select {
	case msg := <-ch:
		c, err := ParseChunk(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, "one", c.Delta)
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	// Publish returns only after the ack above.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not return after ack")
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	multi := NewMultiSink(a, nil, b)

	require.NoError(t, multi.PublishDelta("x"))
	require.NoError(t, multi.PublishToolCall(ToolCall{Name: "time"}))

	assert.Equal(t, []string{"x"}, a.deltas)
	assert.Equal(t, []string{"x"}, b.deltas)
	assert.Len(t, a.toolCalls, 1)
	assert.Len(t, b.toolCalls, 1)
}

type recordingSink struct {
	deltas    []string
	toolCalls []ToolCall
}

func (s *recordingSink) PublishDelta(text string) error {
	s.deltas = append(s.deltas, text)
	return nil
}

func (s *recordingSink) PublishToolCall(tc ToolCall) error {
	s.toolCalls = append(s.toolCalls, tc)
	return nil
}
