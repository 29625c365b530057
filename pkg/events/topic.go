package events

// Topic returns the stream topic for a session. One topic per session,
// shared by every producer and observer of that session's chunks.
func Topic(sessionID string) string {
	return "chat:" + sessionID
}
