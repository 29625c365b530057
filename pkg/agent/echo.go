package agent

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/cricket/pkg/events"
)

// EchoEngine is the offline backend. It streams the prompt back word
// by word, which is enough to exercise the whole delta pipeline
// without network access or credentials.
type EchoEngine struct {
	sink  events.Sink
	delay time.Duration
}

// NewEchoEngine builds an echo backend. delay is the pause between
// words; zero streams as fast as the bus allows.
func NewEchoEngine(sink events.Sink, delay time.Duration) *EchoEngine {
	if sink == nil {
		sink = events.NullSink{}
	}
	return &EchoEngine{sink: sink, delay: delay}
}

func (e *EchoEngine) Invoke(ctx context.Context, text string) error {
	words := strings.Fields(text)
	if len(words) == 0 {
		return errors.New("nothing to echo")
	}

	// Mentioning the clock triggers a canned tool call so the tool
	// path can be demoed offline too.
	if strings.Contains(strings.ToLower(text), "time") {
		call := events.ToolCall{
			ID:    "echo-clock",
			Name:  "get_current_time",
			Input: json.RawMessage(`{}`),
		}
		if err := e.sink.PublishToolCall(call); err != nil {
			return errors.Wrap(err, "publish tool call")
		}
		words = append(words, time.Now().Format(TimeFormat))
	}

	for i, word := range words {
		if i > 0 {
			word = " " + word
		}
		if err := e.sink.PublishDelta(word); err != nil {
			return errors.Wrap(err, "publish delta")
		}
		if e.delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.delay):
		}
	}
	return nil
}
