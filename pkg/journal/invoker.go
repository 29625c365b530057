package journal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/session"
)

// WrapInvoker journals each submit and its resolution around the
// wrapped call, complementing the frame records written by Handler.
// Store failures are logged and swallowed.
func WrapInvoker(store *Store, sessionID string, next session.Invoker) session.Invoker {
	logger := log.With().Str("component", "journal").Str("session_id", sessionID).Logger()

	write := func(kind, payload string) {
		err := store.Append(context.Background(), Record{
			SessionID: sessionID,
			Kind:      kind,
			Payload:   payload,
		})
		if err != nil {
			logger.Warn().Err(err).Str("kind", kind).Msg("could not journal request event")
		}
	}

	return session.InvokerFunc(func(ctx context.Context, text string) error {
		write(KindSubmit, text)
		if err := next.Invoke(ctx, text); err != nil {
			write(KindFailed, err.Error())
			return err
		}
		write(KindResolved, "")
		return nil
	})
}
