package session

import (
	"encoding/json"
	"time"
)

// Role tags the provenance of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem is reserved for controller-synthesized notices: tool-call
	// records and error reports.
	RoleSystem Role = "system"
)

// TranscriptEntry is one element of the append-only transcript. Content is
// immutable once the entry is appended; assistant content is always a fully
// accumulated response, never a partial stream.
type TranscriptEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	// ToolCallPayload holds the opaque tool-call payload on system entries
	// synthesized from a tool-call event, nil everywhere else.
	ToolCallPayload json.RawMessage `json:"toolCallPayload,omitempty"`
}

// Snapshot is a consistent read of controller state handed to the
// presentation layer. Entries is a copy; mutating it does not touch the
// controller.
type Snapshot struct {
	SessionID   string
	Entries     []TranscriptEntry
	Busy        bool
	LivePreview string
	Thinking    bool
	Streaming   bool
}
