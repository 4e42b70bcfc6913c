package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/scianalytics/agentcore/internal/lane"
	"github.com/scianalytics/agentcore/internal/router"
	"github.com/scianalytics/agentcore/internal/session"
	"github.com/scianalytics/agentcore/internal/tool"
	"github.com/scianalytics/agentcore/pkg/models"
)

// stubProvider streams a fixed sequence of NormalizedChunks, ignoring the
// request — enough to drive the runner's streamPhase deterministically.
type stubProvider struct {
	chunks []router.NormalizedChunk
}

func (s *stubProvider) Name() string { return "stub" }
func (s *stubProvider) SupportsTools() bool { return true }
func (s *stubProvider) Complete(ctx context.Context, req router.CompletionRequest) (<-chan router.NormalizedChunk, error) {
	ch := make(chan router.NormalizedChunk, len(s.chunks))
	for _, c := range s.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func textOnlyRouter(text string) *router.Router {
	p := &stubProvider{chunks: []router.NormalizedChunk{
		{Kind: router.ChunkText, TextDelta: text},
		{Kind: router.ChunkFinish, Finish: &router.FinishInfo{Reason: "stop"}},
	}}
	return router.NewRouter([]router.Candidate{{Provider: p, Model: "stub-model", Priority: 1}}, router.DefaultConfig(), nil)
}

func toolCallThenTextRouter(toolName, args string, final string) *router.Router {
	calls := 0
	return router.NewRouter([]router.Candidate{{
		Provider: &sequencedProvider{
			sequences: [][]router.NormalizedChunk{
				{
					{Kind: router.ChunkToolCall, ToolCallDelta: &router.ToolCallFragment{ID: "call-1", Name: toolName, ArgsDelta: args, IsFinal: true}},
					{Kind: router.ChunkFinish, Finish: &router.FinishInfo{Reason: "tool_calls"}},
				},
				{
					{Kind: router.ChunkText, TextDelta: final},
					{Kind: router.ChunkFinish, Finish: &router.FinishInfo{Reason: "stop"}},
				},
			},
			calls: &calls,
		},
		Model:    "stub-model",
		Priority: 1,
	}}, router.DefaultConfig(), nil)
}

// sequencedProvider returns a different chunk sequence on each successive
// Complete call, modeling a model that calls a tool on iteration 1 and
// replies with text on iteration 2.
type sequencedProvider struct {
	sequences [][]router.NormalizedChunk
	calls     *int
}

func (s *sequencedProvider) Name() string { return "stub" }
func (s *sequencedProvider) SupportsTools() bool { return true }
func (s *sequencedProvider) Complete(ctx context.Context, req router.CompletionRequest) (<-chan router.NormalizedChunk, error) {
	idx := *s.calls
	if idx >= len(s.sequences) {
		idx = len(s.sequences) - 1
	}
	*s.calls++
	seq := s.sequences[idx]
	ch := make(chan router.NormalizedChunk, len(seq))
	for _, c := range seq {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// echoTool returns its "value" argument back as the result message.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input" }
func (echoTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"value": map[string]any{"type": "string"}},
	}
}
func (echoTool) IsIdempotent() bool { return true }
func (echoTool) ExposeToLLM() bool  { return true }
func (echoTool) Execute(ctx context.Context, sess *models.Session, args []byte) (models.ToolResultEnvelope, error) {
	var decoded struct {
		Value string `json:"value"`
	}
	_ = json.Unmarshal(args, &decoded)
	return models.ToolResultEnvelope{Success: true, Message: decoded.Value}, nil
}

func testRuntime(t *testing.T, r *router.Router, dir string) *Runtime {
	t.Helper()
	registry := tool.NewRegistry(nil)
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatalf("register tool: %v", err)
	}
	cfg := DefaultConfig()
	cfg.LogDir = dir
	cfg.ArchiveDir = dir + "/archive"
	return NewRuntime(r, registry, lane.NewManager(), session.NewManager(), nil, cfg, "be helpful", nil, nil)
}

type recordingSink struct {
	events []models.AgentEvent
}

func (s *recordingSink) Emit(ctx context.Context, e models.AgentEvent) {
	s.events = append(s.events, e)
}

func TestRuntime_Run_PlainTextTurnEmitsDone(t *testing.T) {
	dir := t.TempDir()
	rt := testRuntime(t, textOnlyRouter("hello there"), dir)
	sink := &recordingSink{}

	if err := rt.Run(context.Background(), "sess-1", "hi", sink); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var sawSession, sawText, sawDone bool
	for _, e := range sink.events {
		switch e.Type {
		case models.EventSession:
			sawSession = true
		case models.EventText:
			sawText = true
		case models.EventDone:
			sawDone = true
		case models.EventError:
			t.Fatalf("unexpected error event: %s", e.Data)
		}
	}
	if !sawSession || !sawText || !sawDone {
		t.Fatalf("missing expected events: session=%v text=%v done=%v", sawSession, sawText, sawDone)
	}
}

func TestRuntime_Run_SequenceIsMonotonic(t *testing.T) {
	dir := t.TempDir()
	rt := testRuntime(t, textOnlyRouter("hi"), dir)
	sink := &recordingSink{}

	if err := rt.Run(context.Background(), "sess-2", "hi", sink); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var last uint64
	for i, e := range sink.events {
		if i > 0 && e.Sequence <= last {
			t.Fatalf("event %d sequence %d did not increase from %d", i, e.Sequence, last)
		}
		last = e.Sequence
	}
}

func TestRuntime_Run_ToolCallPrecedesToolResult(t *testing.T) {
	dir := t.TempDir()
	rt := testRuntime(t, toolCallThenTextRouter("echo", `{"value":"six"}`, "the answer is six"), dir)
	sink := &recordingSink{}

	if err := rt.Run(context.Background(), "sess-3", "what is six", sink); err != nil {
		t.Fatalf("Run: %v", err)
	}

	callIdx, resultIdx := -1, -1
	for i, e := range sink.events {
		switch e.Type {
		case models.EventToolCall:
			callIdx = i
		case models.EventToolResult:
			resultIdx = i
		}
	}
	if callIdx == -1 || resultIdx == -1 {
		t.Fatalf("expected both tool_call and tool_result events, got call=%d result=%d", callIdx, resultIdx)
	}
	if resultIdx < callIdx {
		t.Errorf("tool_result (%d) must not precede tool_call (%d)", resultIdx, callIdx)
	}
}

func TestRuntime_Run_RejectsConcurrentTurnsForSameSession(t *testing.T) {
	dir := t.TempDir()
	slow := &blockingProvider{release: make(chan struct{})}
	r := router.NewRouter([]router.Candidate{{Provider: slow, Model: "m", Priority: 1}}, router.DefaultConfig(), nil)
	rt := testRuntime(t, r, dir)

	done := make(chan error, 1)
	go func() {
		done <- rt.Run(context.Background(), "sess-4", "hi", &recordingSink{})
	}()

	// Give the first Run a moment to mark the session in-progress.
	time.Sleep(20 * time.Millisecond)
	err := rt.Run(context.Background(), "sess-4", "hi again", &recordingSink{})
	if err != ErrTurnInProgress {
		t.Errorf("second Run error = %v, want ErrTurnInProgress", err)
	}

	close(slow.release)
	<-done
}

// blockingProvider blocks Complete until release is closed, then returns a
// trivial stop.
type blockingProvider struct {
	release chan struct{}
}

func (b *blockingProvider) Name() string        { return "blocking" }
func (b *blockingProvider) SupportsTools() bool  { return true }
func (b *blockingProvider) Complete(ctx context.Context, req router.CompletionRequest) (<-chan router.NormalizedChunk, error) {
	<-b.release
	ch := make(chan router.NormalizedChunk, 1)
	ch <- router.NormalizedChunk{Kind: router.ChunkFinish, Finish: &router.FinishInfo{Reason: "stop"}}
	close(ch)
	return ch, nil
}

func TestRuntime_Run_NoProviderReturnsTypedError(t *testing.T) {
	dir := t.TempDir()
	rt := testRuntime(t, nil, dir)
	sink := &recordingSink{}

	err := rt.Run(context.Background(), "sess-5", "hi", sink)
	if err == nil {
		t.Fatal("expected an error when no router is configured")
	}

	var sawError bool
	for _, e := range sink.events {
		if e.Type == models.EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected an error event to be emitted")
	}
}
