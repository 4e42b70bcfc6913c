// Package models defines the core data types shared across the agent
// runtime: events, messages, sessions, provider routes, and sandbox
// artifacts.
package models

import (
	"encoding/json"
	"time"
)

// AgentEvent is the unified event envelope emitted by a run. It is the wire
// format between the Agent Runner and any subscriber (gateway, log writer,
// test harness).
//
// Design principles carried from the teacher's event model:
//   - Versioned and forward-compatible (add fields, don't rename/remove)
//   - Single Type discriminator, with a free-form Data payload
//   - Monotonic Sequence for ordering guarantees across goroutines
type AgentEvent struct {
	// Version for forward compatibility. Current version: 1.
	Version int `json:"version"`

	// Type is one of the closed set of event types below.
	Type EventType `json:"type"`

	// Time is when the event was produced.
	Time time.Time `json:"time"`

	// Sequence is monotonically increasing within a turn (metadata.seq in
	// the wire protocol) so downstream consumers can reorder events that
	// arrive out of band.
	Sequence uint64 `json:"seq"`

	// SessionID identifies the session this event belongs to.
	SessionID string `json:"session_id"`

	// TurnID correlates every event produced by one Run call. All events
	// within a run share the same TurnID.
	TurnID string `json:"turn_id,omitempty"`

	// ToolCallID correlates a tool_call event with its tool_result (and any
	// derived chart/data/artifact/image children). Empty for events that
	// are not tool-scoped.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolName is set alongside ToolCallID for tool-scoped events.
	ToolName string `json:"tool_name,omitempty"`

	// Data is the type-specific payload. Its shape is determined by Type;
	// see the Payload* types below for the concrete schema per type.
	Data json.RawMessage `json:"data,omitempty"`

	// Metadata carries caller-supplied intents in addition to Sequence.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EventType is the closed set of event types the runtime may emit. This
// supersedes the teacher's open-ended dotted (`run.started`, `tool.stdout`,
// ...) taxonomy with the spec's fixed vocabulary.
type EventType string

const (
	EventSession           EventType = "session"
	EventIterationStart    EventType = "iteration_start"
	EventText              EventType = "text"
	EventReasoning         EventType = "reasoning"
	EventToolCall          EventType = "tool_call"
	EventToolResult        EventType = "tool_result"
	EventChart             EventType = "chart"
	EventData              EventType = "data"
	EventArtifact          EventType = "artifact"
	EventImage             EventType = "image"
	EventRetrieval         EventType = "retrieval"
	EventAnalysisPlan      EventType = "analysis_plan"
	EventPlanStepUpdate    EventType = "plan_step_update"
	EventPlanProgress      EventType = "plan_progress"
	EventTaskAttempt       EventType = "task_attempt"
	EventAskUserQuestion   EventType = "ask_user_question"
	EventWorkspaceUpdate   EventType = "workspace_update"
	EventCodeExecution     EventType = "code_execution"
	EventContextCompressed EventType = "context_compressed"
	EventSessionTitle      EventType = "session_title"
	EventDone              EventType = "done"
	EventStopped           EventType = "stopped"
	EventError             EventType = "error"
)

// droppableEventTypes are safe to drop under backpressure: losing one does
// not break turn-correlation invariants (unlike iteration_start/done/error,
// which a consumer must see exactly once and in order).
var droppableEventTypes = map[EventType]bool{
	EventText:      true,
	EventReasoning: true,
}

// Droppable reports whether losing this event under backpressure is
// acceptable. Mirrors the teacher's isDroppableEvent classification
// (internal/agent/event_sink.go), narrowed to the spec's two streaming
// payload types.
func (t EventType) Droppable() bool {
	return droppableEventTypes[t]
}

// --- Payload shapes, one per Data schema in spec.md section 6. ---

// TextPayload backs EventText and EventReasoning.
type TextPayload struct {
	Text string `json:"text"`
}

// ToolCallPayload backs EventToolCall.
type ToolCallPayload struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResultPayload backs EventToolResult.
type ToolResultPayload struct {
	Status  string `json:"status"` // "success" | "error"
	Message string `json:"message"`
}

// ChartPayload backs EventChart; Plotly JSON is passed through opaquely.
type ChartPayload struct {
	Plotly json.RawMessage `json:"plotly"`
}

// DataPayload backs EventData (tabular preview).
type DataPayload struct {
	Columns []string        `json:"columns"`
	Rows    [][]any         `json:"rows"`
	Extra   json.RawMessage `json:"extra,omitempty"`
}

// ArtifactPayload backs EventArtifact.
type ArtifactPayload struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Format      string `json:"format,omitempty"`
	DownloadURL string `json:"download_url"`
}

// ImagePayload backs EventImage. Exactly one of URL or URLs is set.
type ImagePayload struct {
	URL  string   `json:"url,omitempty"`
	URLs []string `json:"urls,omitempty"`
}

// ErrorPayload backs EventError.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// SessionPayload backs EventSession.
type SessionPayload struct {
	SessionID string `json:"session_id"`
	Created   bool   `json:"created"`
}

// IterationStartPayload backs EventIterationStart.
type IterationStartPayload struct {
	Iteration int `json:"iteration"`
}

// AskUserQuestionPayload backs EventAskUserQuestion.
type AskUserQuestionPayload struct {
	Questions []ClarifyingQuestion `json:"questions"`
}

// ClarifyingQuestion is one item of an ask_user_question payload.
type ClarifyingQuestion struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices,omitempty"`
}

// ContextCompressedPayload backs EventContextCompressed.
type ContextCompressedPayload struct {
	ArchivedCount  int    `json:"archived_count"`
	SummaryChars   int    `json:"summary_chars"`
	ArchiveKey     string `json:"archive_key"`
	TriggerPercent int    `json:"trigger_percent"`
}

// SessionTitlePayload backs EventSessionTitle.
type SessionTitlePayload struct {
	Title string `json:"title"`
}

// WorkspaceUpdatePayload backs EventWorkspaceUpdate.
type WorkspaceUpdatePayload struct {
	DatasetName string `json:"dataset_name"`
	Action      string `json:"action"` // "added" | "removed" | "updated"
}

// CodeExecutionPayload backs EventCodeExecution.
type CodeExecutionPayload struct {
	Language string `json:"language"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// MustMarshalPayload marshals a payload into Data, panicking only on a
// programmer error (an un-marshalable Go value) — never on caller input.
func MustMarshalPayload(p any) json.RawMessage {
	b, err := json.Marshal(p)
	if err != nil {
		panic("models: payload does not marshal: " + err.Error())
	}
	return b
}
