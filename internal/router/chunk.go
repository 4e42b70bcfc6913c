// Package router implements the Model Router: priority-ordered provider
// selection, typed-error-driven failover with a circuit breaker, and the
// NormalizedChunk sum type every provider adapter streams into.
package router

import "time"

// NormalizedChunk is the sum type every provider adapter streams into,
// generalizing the teacher's CompletionChunk (internal/agent/provider_types.go)
// into a closed set of six kinds (see ChunkKind) instead of an open
// struct-of-optionals. Adapters map only a provider's structured reasoning
// field into ReasoningDelta; inline <think>...</think> markers in text are
// not stripped and reach TextDelta unchanged, and text deltas are
// forwarded as the provider sends them, with no cumulative-stream diffing.
type NormalizedChunk struct {
	Kind ChunkKind

	// TextDelta / ReasoningDelta carry incremental text for their kind.
	TextDelta      string
	ReasoningDelta string

	// ToolCallDelta carries a fragment of a tool call under construction.
	// Arguments may arrive split across multiple chunks; adapters forward
	// each fragment as it arrives and mark the call's last fragment with
	// IsFinal. The Agent Runner assembles the fragments into the call.
	ToolCallDelta *ToolCallFragment

	// Finish carries the stop reason once the provider signals
	// completion.
	Finish *FinishInfo

	// Usage carries token accounting, populated on the final chunk when
	// the provider supplies it.
	Usage *Usage

	// Err terminates the stream when non-nil.
	Err error
}

// ChunkKind discriminates NormalizedChunk.
type ChunkKind string

const (
	ChunkText     ChunkKind = "text"
	ChunkReason   ChunkKind = "reasoning"
	ChunkToolCall ChunkKind = "tool_call"
	ChunkFinish   ChunkKind = "finish"
	ChunkUsage    ChunkKind = "usage"
	ChunkError    ChunkKind = "error"
)

// ToolCallFragment is one fragment of a tool call's id/name/arguments as
// streamed by a provider; IsFinal marks the fragment that completes
// accumulation.
type ToolCallFragment struct {
	ID        string
	Name      string
	ArgsDelta string
	IsFinal   bool
}

// FinishInfo carries the stop reason for a completed turn.
type FinishInfo struct {
	Reason   string // "stop" | "tool_calls" | "length" | "content_filter"
	Duration time.Duration
}

// Usage carries token accounting for a completed request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// CompletionRequest is the router-facing request shape, independent of
// any single provider SDK's types.
type CompletionRequest struct {
	Model                string
	System               string
	Messages             []CompletionMessage
	Tools                []ToolDescriptor
	MaxTokens            int
	EnableThinking       bool
	ThinkingBudgetTokens int
}

// CompletionMessage is one turn of conversation handed to a provider
// adapter.
type CompletionMessage struct {
	Role        string // "user" | "assistant" | "tool"
	Content     string
	ToolCalls   []ToolCallRef
	ToolResults []ToolResultRef
}

// ToolCallRef/ToolResultRef mirror pkg/models.ToolCallRequest/ToolResultEnvelope
// narrowed to what an adapter needs to replay tool turns to the provider.
type ToolCallRef struct {
	ID        string
	Name      string
	Arguments string
}

type ToolResultRef struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// ToolDescriptor is the function-calling descriptor sent to a provider,
// mirroring internal/tool.Descriptor without importing the tool package
// (keeps router provider-agnostic of the tool registry's internals).
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  map[string]any
}
