package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChunk_DeltaOnly(t *testing.T) {
	c, err := ParseChunk([]byte(`{"delta":"Hi"}`))
	require.NoError(t, err)
	assert.True(t, c.HasDelta())
	assert.False(t, c.HasToolCall())
	assert.Equal(t, "Hi", c.Delta)
}

func TestParseChunk_ToolCallOnly(t *testing.T) {
	c, err := ParseChunk([]byte(`{"toolCall":{"name":"time"}}`))
	require.NoError(t, err)
	assert.False(t, c.HasDelta())
	require.True(t, c.HasToolCall())

	var tc ToolCall
	require.NoError(t, json.Unmarshal(c.ToolCall, &tc))
	assert.Equal(t, "time", tc.Name)
}

func TestParseChunk_BothFields(t *testing.T) {
	c, err := ParseChunk([]byte(`{"delta":"ok","toolCall":{"name":"time"}}`))
	require.NoError(t, err)
	assert.True(t, c.HasDelta())
	assert.True(t, c.HasToolCall())
}

func TestParseChunk_Empty(t *testing.T) {
	_, err := ParseChunk([]byte(`{}`))
	require.ErrorIs(t, err, ErrEmptyChunk)

	_, err = ParseChunk([]byte(`{"toolCall":null}`))
	require.ErrorIs(t, err, ErrEmptyChunk)

	_, err = ParseChunk([]byte(`{"delta":""}`))
	require.ErrorIs(t, err, ErrEmptyChunk)
}

func TestParseChunk_Malformed(t *testing.T) {
	_, err := ParseChunk([]byte(`not json`))
	require.Error(t, err)

	_, err = ParseChunk([]byte(`[1,2,3]`))
	require.Error(t, err)
}

func TestParseChunk_IgnoresUnknownFields(t *testing.T) {
	c, err := ParseChunk([]byte(`{"delta":"x","extra":42}`))
	require.NoError(t, err)
	assert.Equal(t, "x", c.Delta)
}

func TestChunkRoundTrip(t *testing.T) {
	orig, err := NewToolCallChunk(ToolCall{ID: "tc-1", Name: "time", Input: json.RawMessage(`{"tz":"UTC"}`)})
	require.NoError(t, err)

	b, err := orig.Bytes()
	require.NoError(t, err)

	parsed, err := ParseChunk(b)
	require.NoError(t, err)
	require.True(t, parsed.HasToolCall())

	var tc ToolCall
	require.NoError(t, json.Unmarshal(parsed.ToolCall, &tc))
	assert.Equal(t, "time", tc.Name)
	assert.Equal(t, "tc-1", tc.ID)
}

func TestRenderToolCall(t *testing.T) {
	assert.Equal(t,
		`Tool called: time({"tz":"UTC"})`,
		RenderToolCall(json.RawMessage(`{"name":"time","input":{"tz": "UTC"}}`)),
	)
	assert.Equal(t,
		"Tool called: time()",
		RenderToolCall(json.RawMessage(`{"name":"time"}`)),
	)
	// Payloads without a name render verbatim.
	assert.Equal(t,
		`Tool called: {"wat":1}`,
		RenderToolCall(json.RawMessage(`{"wat":1}`)),
	)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "chat:abc", Topic("abc"))
}
