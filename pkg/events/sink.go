package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

// Sink is where a backend engine pushes partial updates while it works on
// a request. Implementations must be safe for use from one goroutine at a
// time; engines publish sequentially.
type Sink interface {
	PublishDelta(text string) error
	PublishToolCall(tc ToolCall) error
}

// BusSink publishes chunks to a watermill topic.
type BusSink struct {
	publisher message.Publisher
	topic     string
}

func NewBusSink(publisher message.Publisher, topic string) *BusSink {
	return &BusSink{publisher: publisher, topic: topic}
}

func (s *BusSink) PublishDelta(text string) error {
	return s.publish(NewDeltaChunk(text))
}

func (s *BusSink) PublishToolCall(tc ToolCall) error {
	c, err := NewToolCallChunk(tc)
	if err != nil {
		return err
	}
	return s.publish(c)
}

func (s *BusSink) publish(c Chunk) error {
	b, err := c.Bytes()
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), b)
	return errors.Wrapf(s.publisher.Publish(s.topic, msg), "publish chunk to %s", s.topic)
}

// MultiSink fans a chunk out to several sinks, e.g. the session stream
// plus a redis mirror. The first error wins; remaining sinks still get
// the chunk.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

func (s *MultiSink) PublishDelta(text string) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.PublishDelta(text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *MultiSink) PublishToolCall(tc ToolCall) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.PublishToolCall(tc); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NullSink drops everything. Stands in when a session runs without
// streaming visibility.
type NullSink struct{}

func (NullSink) PublishDelta(string) error      { return nil }
func (NullSink) PublishToolCall(ToolCall) error { return nil }
