package events

import (
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// ChunkPrinterFunc returns a handler that writes a session stream to w the
// way a terminal reader wants it: deltas verbatim as they arrive, tool
// calls as their own line. Malformed payloads are dropped.
func ChunkPrinterFunc(name string, w io.Writer) func(msg *message.Message) error {
	logger := log.With().Str("component", "chunk-printer").Str("name", name).Logger()
	return func(msg *message.Message) error {
		c, err := ParseChunk(msg.Payload)
		if err != nil {
			logger.Trace().Err(err).Str("message_id", msg.UUID).Msg("dropping undecodable chunk")
			return nil
		}
		if c.HasToolCall() {
			if _, err := fmt.Fprintf(w, "\n%s\n", RenderToolCall(c.ToolCall)); err != nil {
				return err
			}
		}
		if c.HasDelta() {
			if _, err := fmt.Fprint(w, c.Delta); err != nil {
				return err
			}
		}
		return nil
	}
}
