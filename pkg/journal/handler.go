package journal

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/events"
)

// Handler returns a router handler that journals every frame seen on a
// session topic. Store failures are logged and swallowed so a broken
// journal never stalls the stream.
func Handler(store *Store, sessionID string) func(*message.Message) error {
	logger := log.With().Str("component", "journal").Str("session_id", sessionID).Logger()

	write := func(kind, payload string) {
		err := store.Append(context.Background(), Record{
			SessionID: sessionID,
			Kind:      kind,
			Payload:   payload,
		})
		if err != nil {
			logger.Warn().Err(err).Str("kind", kind).Msg("could not journal stream event")
		}
	}

	return func(msg *message.Message) error {
		chunk, err := events.ParseChunk(msg.Payload)
		if err != nil {
			write(KindMalformed, string(msg.Payload))
			return nil
		}
		if chunk.HasToolCall() {
			write(KindToolCall, string(chunk.ToolCall))
		}
		if chunk.HasDelta() {
			write(KindDelta, chunk.Delta)
		}
		return nil
	}
}
