package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type in the conversation log.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ConversationMessage is the tagged, append-only record stored in the
// session's conversation log. It generalizes the teacher's
// channel-oriented Message (which carried Channel/ChannelID/Direction) into
// the spec's session-scoped record: no channel framing, but an EventType
// discriminator so event-derived entries (chart, data preview, artifact,
// image, reasoning) can be replayed into UI state without re-running the
// turn.
type ConversationMessage struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Role      Role   `json:"role"`

	// Content is the message text. For user/assistant/system messages this
	// is the natural-language content; for tool messages it is the
	// serialized result envelope's message field.
	Content string `json:"content,omitempty"`

	// ToolCalls holds pending calls requested by an assistant message.
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`

	// ToolCallID correlates a tool-role message back to the assistant
	// message's ToolCalls entry with the same ID. Required invariant: every
	// tool message's ToolCallID must match a prior assistant ToolCalls
	// entry in the same session.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// EventType is set on assistant-role entries that originated from a
	// non-text event (chart, data, artifact, image, reasoning) so the log
	// alone is sufficient to reconstruct UI state on replay. Empty for
	// plain text turns.
	EventType EventType `json:"event_type,omitempty"`

	// Payload carries the structured data for an EventType-tagged entry
	// (e.g. a ChartPayload or ArtifactPayload), mirroring the event that
	// produced it.
	Payload json.RawMessage `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ToolCallRequest represents an LLM's request to execute a tool, attached
// to an assistant message.
type ToolCallRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON string, per spec §3
}

// IsUser, IsAssistant, IsTool are small readability helpers used by the
// conversation log and compaction code when deciding what to keep/drop.
func (m *ConversationMessage) IsUser() bool      { return m.Role == RoleUser }
func (m *ConversationMessage) IsAssistant() bool { return m.Role == RoleAssistant }
func (m *ConversationMessage) IsTool() bool      { return m.Role == RoleTool }
