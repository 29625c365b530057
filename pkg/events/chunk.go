package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Chunk is the payload of one partial-update event on a session stream.
// Both fields are optional and independent; a valid chunk carries at least
// one of them. Producers emit deltas as the model streams text and tool
// calls as soon as the backend requests one.
type Chunk struct {
	Delta    string          `json:"delta,omitempty"`
	ToolCall json.RawMessage `json:"toolCall,omitempty"`
}

// ToolCall is the structured form of a tool-call payload. Input is kept
// opaque; the session layer records it without validating or executing
// anything.
type ToolCall struct {
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ErrEmptyChunk marks a payload that decoded fine but carries neither a
// delta nor a tool call. Consumers treat it like any other malformed chunk
// and drop it.
var ErrEmptyChunk = errors.New("chunk carries neither delta nor toolCall")

// NewDeltaChunk wraps a text delta in a chunk.
func NewDeltaChunk(text string) Chunk {
	return Chunk{Delta: text}
}

// NewToolCallChunk wraps a tool call in a chunk.
func NewToolCallChunk(tc ToolCall) (Chunk, error) {
	b, err := json.Marshal(tc)
	if err != nil {
		return Chunk{}, errors.Wrap(err, "marshal tool call")
	}
	return Chunk{ToolCall: b}, nil
}

// ParseChunk decodes a chunk payload. Unknown fields are ignored, JSON
// null counts as absent, and a chunk with neither field present yields
// ErrEmptyChunk.
func ParseChunk(payload []byte) (Chunk, error) {
	var c Chunk
	if err := json.Unmarshal(payload, &c); err != nil {
		return Chunk{}, errors.Wrap(err, "decode chunk")
	}
	if isJSONNull(c.ToolCall) {
		c.ToolCall = nil
	}
	if !c.HasDelta() && !c.HasToolCall() {
		return Chunk{}, ErrEmptyChunk
	}
	return c, nil
}

func (c Chunk) HasDelta() bool    { return c.Delta != "" }
func (c Chunk) HasToolCall() bool { return len(c.ToolCall) > 0 }

// Bytes renders the chunk back into its wire form.
func (c Chunk) Bytes() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "marshal chunk")
	}
	return b, nil
}

// ToolCallRenderPrefix starts every transcript rendering of a tool call.
const ToolCallRenderPrefix = "Tool called: "

// RenderToolCall turns an opaque tool-call payload into the one-line text
// recorded in the transcript. Payloads shaped like ToolCall render as
// name(args); anything else falls back to the raw payload.
func RenderToolCall(payload json.RawMessage) string {
	var tc ToolCall
	if err := json.Unmarshal(payload, &tc); err == nil && tc.Name != "" {
		args := ""
		if len(tc.Input) > 0 && !isJSONNull(tc.Input) {
			var buf bytes.Buffer
			if err := json.Compact(&buf, tc.Input); err == nil {
				args = buf.String()
			} else {
				args = string(tc.Input)
			}
		}
		return fmt.Sprintf("%s%s(%s)", ToolCallRenderPrefix, tc.Name, args)
	}
	return ToolCallRenderPrefix + string(payload)
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
