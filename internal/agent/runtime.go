// Package agent implements the Agent Runner: the ReAct state machine that
// drives one conversational turn end to end, streaming model output,
// dispatching tool calls through the Lane Queue, and emitting the unified
// AgentEvent stream a gateway replays to a client.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scianalytics/agentcore/internal/adapter"
	"github.com/scianalytics/agentcore/internal/lane"
	"github.com/scianalytics/agentcore/internal/router"
	"github.com/scianalytics/agentcore/internal/session"
	"github.com/scianalytics/agentcore/internal/tool"
	"github.com/scianalytics/agentcore/pkg/models"
)

// Config tunes a Runtime's loop bounds, independent of any one turn.
type Config struct {
	MaxIterations int
	Budget        BudgetConfig
	Compaction    session.CompactionConfig
	LogDir        string
	ArchiveDir    string
}

// DefaultConfig returns a 25-iteration loop with the package's default
// budget and compaction settings.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 25,
		Budget:        DefaultBudgetConfig(),
		Compaction:    session.DefaultCompactionConfig(),
		LogDir:        "data/conversations",
		ArchiveDir:    "data/conversations/archive",
	}
}

// Answer is the gateway-delivered response to a tool's ask_user_question
// clarification request, bound to the tool_call_id that raised it.
type Answer struct {
	ToolCallID string
	Choices    map[string]string // ClarifyingQuestion.ID -> chosen/typed text
}

// Runtime wires the Model Router, Tool Registry, Lane Queue, and session
// state together into the ReAct loop. One Runtime serves every session;
// per-turn state never leaks between sessions beyond what *models.Session
// itself carries.
type Runtime struct {
	router     *router.Router
	registry   *tool.Registry
	lanes      *lane.Manager
	sessions   *session.Manager
	compactor  *session.Compactor
	adapters   *adapter.Adapters
	cfg        Config
	logger     *slog.Logger
	defaultSys string

	mu          sync.Mutex
	inProgress  map[string]bool
	pendingAsks map[string]chan Answer // keyed by tool_call_id
}

// NewRuntime builds a Runtime. summarizer backs the Compactor; pass nil to
// fall back to the compactor's plain "no prior history" summary (no model
// call needed to exercise compaction in tests). adapters supplies the
// optional profile/knowledge/intent context providers consulted during
// prompt assembly; pass nil to fall back to adapter.NewNop(), under which
// every provider degrades to "no context" immediately.
func NewRuntime(r *router.Router, registry *tool.Registry, lanes *lane.Manager, sessions *session.Manager, summarizer session.Summarizer, cfg Config, defaultSystem string, logger *slog.Logger, adapters *adapter.Adapters) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if adapters == nil {
		adapters = adapter.NewNop()
	}
	return &Runtime{
		router:      r,
		registry:    registry,
		lanes:       lanes,
		sessions:    sessions,
		compactor:   session.NewCompactor(cfg.ArchiveDir, summarizer, cfg.Compaction),
		adapters:    adapters,
		cfg:         cfg,
		logger:      logger,
		defaultSys:  defaultSystem,
		inProgress:  make(map[string]bool),
		pendingAsks: make(map[string]chan Answer),
	}
}

// turn carries the per-call state threaded through one Run invocation's
// ReAct iterations — the generalized shape of the teacher's LoopState
// (internal/agent/loop.go), narrowed to what the event contract and
// tool-call-determinism invariant require.
type turn struct {
	sessionID string
	turnID    string
	userText  string
	seq       uint64
	sink      EventSink
	log       *session.Log
	history   []models.ConversationMessage
}

func (t *turn) nextSeq() uint64 {
	t.seq++
	return t.seq
}

func (t *turn) emit(ctx context.Context, typ models.EventType, toolCallID, toolName string, data json.RawMessage) {
	seq := t.nextSeq()
	t.sink.Emit(ctx, models.AgentEvent{
		Version:    1,
		Type:       typ,
		Time:       time.Now(),
		Sequence:   seq,
		SessionID:  t.sessionID,
		TurnID:     t.turnID,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Data:       data,
		Metadata:   map[string]any{"seq": seq},
	})
}

// Run drives one conversational turn for sessionID to completion,
// streaming AgentEvents to sink. It returns once the turn reaches a
// terminal state (done, stopped, or error) — the terminal event itself,
// not the returned error, is the authoritative outcome a gateway replays;
// the error return exists for the caller's own logging.
func (rt *Runtime) Run(ctx context.Context, sessionID, userText string, sink EventSink) error {
	if sink == nil {
		sink = NopSink{}
	}

	rt.mu.Lock()
	if rt.inProgress[sessionID] {
		rt.mu.Unlock()
		return ErrTurnInProgress
	}
	rt.inProgress[sessionID] = true
	rt.mu.Unlock()
	defer func() {
		rt.mu.Lock()
		delete(rt.inProgress, sessionID)
		rt.mu.Unlock()
	}()

	sess := rt.sessions.GetOrCreate(sessionID)
	sess.Lock()
	defer sess.Unlock()

	history, err := session.ReadAll(rt.cfg.LogDir, sess.ID)
	if err != nil {
		return newRunError(ErrorRuntimeFailure, PhaseInit, 0, "read conversation log", err)
	}
	created := len(history) == 0

	log, err := session.OpenLog(rt.cfg.LogDir, sess.ID)
	if err != nil {
		return newRunError(ErrorRuntimeFailure, PhaseInit, 0, "open conversation log", err)
	}
	defer log.Close()

	t := &turn{sessionID: sess.ID, turnID: uuid.NewString(), userText: userText, sink: sink, log: log, history: history}
	t.emit(ctx, models.EventSession, "", "", models.MustMarshalPayload(models.SessionPayload{SessionID: sess.ID, Created: created}))

	userMsg := models.ConversationMessage{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Role:      models.RoleUser,
		Content:   userText,
		CreatedAt: time.Now(),
	}
	if err := rt.appendMessage(t, userMsg); err != nil {
		return newRunError(ErrorRuntimeFailure, PhaseInit, 0, "persist inbound message", err)
	}

	runErr := rt.loop(ctx, sess, t)
	if runErr != nil {
		rt.emitError(ctx, t, runErr)
		return runErr
	}
	return nil
}

func (rt *Runtime) appendMessage(t *turn, msg models.ConversationMessage) error {
	if err := t.log.Append(msg); err != nil {
		return err
	}
	t.history = append(t.history, msg)
	return nil
}

// loop runs the ReAct state machine: stream a model response, execute any
// requested tool calls sequentially through the Lane Queue in emission
// order, and either continue to the next iteration or terminate. Unlike
// the teacher's executeToolsPhase (internal/agent/loop.go), which gathers
// tool calls and fans them out via executor.ExecuteAll, tool calls here run
// one at a time via lane.Manager.Submit — the tool-call-determinism
// invariant forbids parallelizing tool calls within a session.
func (rt *Runtime) loop(ctx context.Context, sess *models.Session, t *turn) error {
	compressedThisTurn := false
	for iteration := 0; rt.cfg.MaxIterations <= 0 || iteration < rt.cfg.MaxIterations; iteration++ {
		if sess.CancelToken.Observe() {
			t.emit(ctx, models.EventStopped, "", "", nil)
			return nil
		}

		t.emit(ctx, models.EventIterationStart, "", "", models.MustMarshalPayload(models.IterationStartPayload{Iteration: iteration}))

		if err := rt.maybeCompress(ctx, t); err != nil {
			return newRunError(ErrorRuntimeFailure, PhaseStream, iteration, "auto-compress before model call", err)
		}

		assistantMsg, finishReason, streamErr := rt.streamPhase(ctx, t)
		if streamErr != nil && isContextOverflow(streamErr) && !compressedThisTurn {
			compressedThisTurn = true
			if compactErr := rt.forceCompress(ctx, t); compactErr != nil {
				return newRunError(ErrorContextOverflow, PhaseStream, iteration, "compress after provider context overflow", compactErr)
			}
			assistantMsg, finishReason, streamErr = rt.streamPhase(ctx, t)
		}
		if streamErr != nil {
			return classifyRunError(PhaseStream, iteration, streamErr)
		}

		if err := rt.appendMessage(t, assistantMsg); err != nil {
			return newRunError(ErrorRuntimeFailure, PhaseStream, iteration, "persist assistant message", err)
		}

		if len(assistantMsg.ToolCalls) == 0 {
			t.emit(ctx, models.EventDone, "", "", nil)
			return nil
		}

		if err := rt.executeToolsPhase(ctx, sess, t, iteration, assistantMsg.ToolCalls); err != nil {
			return err
		}

		if sess.CancelToken.Observe() {
			t.emit(ctx, models.EventStopped, "", "", nil)
			return nil
		}

		if finishReason == "stop" {
			t.emit(ctx, models.EventDone, "", "", nil)
			return nil
		}
	}

	return newRunError(ErrorRuntimeFailure, PhaseContinue, rt.cfg.MaxIterations, "max iterations exceeded", nil)
}

// maybeCompress triggers the automatic soft-cap compression contract
// before a model call whose estimated prompt size would otherwise risk a
// hard provider overflow.
func (rt *Runtime) maybeCompress(ctx context.Context, t *turn) error {
	if !ExceedsSoftCap(t.history, rt.cfg.Budget) {
		return nil
	}
	return rt.compress(ctx, t, rt.cfg.Budget.SoftCapPercent)
}

func (rt *Runtime) forceCompress(ctx context.Context, t *turn) error {
	return rt.compress(ctx, t, 100)
}

func (rt *Runtime) compress(ctx context.Context, t *turn, triggerPercent int) error {
	result, err := rt.compactor.Compact(ctx, t.sessionID, t.history)
	if err != nil {
		return err
	}
	if result.ArchivedCount == 0 {
		return nil
	}
	if err := session.Rewrite(rt.cfg.LogDir, t.sessionID, result.Kept); err != nil {
		return err
	}
	t.history = result.Kept

	summaryChars := 0
	if len(result.Kept) > 0 {
		summaryChars = len(result.Kept[0].Content)
	}
	t.emit(ctx, models.EventContextCompressed, "", "", models.MustMarshalPayload(models.ContextCompressedPayload{
		ArchivedCount:  result.ArchivedCount,
		SummaryChars:   summaryChars,
		ArchiveKey:     t.sessionID,
		TriggerPercent: triggerPercent,
	}))
	return nil
}

// streamPhase assembles a budget-trimmed prompt from history, calls the
// Model Router, and folds the resulting NormalizedChunk stream into a
// single assistant ConversationMessage plus text/reasoning/tool_call
// events emitted as they arrive.
func (rt *Runtime) streamPhase(ctx context.Context, t *turn) (models.ConversationMessage, string, error) {
	if rt.router == nil {
		return models.ConversationMessage{}, "", ErrNoProvider
	}

	trimmed := TrimToFit(t.history, rt.cfg.Budget)
	system := rt.defaultSys
	if extra := rt.adapters.Context(ctx, t.sessionID, t.userText); extra != "" {
		system = system + "\n\n" + extra
	}
	req := router.CompletionRequest{
		System:    system,
		Messages:  toCompletionMessages(trimmed.Kept),
		Tools:     toToolDescriptors(rt.registry.ListExposedForModel()),
		MaxTokens: rt.cfg.Budget.ReserveTokens,
	}

	chunks, _, err := rt.router.Complete(ctx, req)
	if err != nil {
		return models.ConversationMessage{}, "", err
	}

	b := builderState{}
	var finishReason string

	for chunk := range chunks {
		if chunk.Err != nil {
			return models.ConversationMessage{}, "", chunk.Err
		}
		switch chunk.Kind {
		case router.ChunkText:
			if chunk.TextDelta != "" {
				b.text += chunk.TextDelta
				t.emit(ctx, models.EventText, "", "", models.MustMarshalPayload(models.TextPayload{Text: chunk.TextDelta}))
			}
		case router.ChunkReason:
			if chunk.ReasoningDelta != "" {
				b.reasoning += chunk.ReasoningDelta
				t.emit(ctx, models.EventReasoning, "", "", models.MustMarshalPayload(models.TextPayload{Text: chunk.ReasoningDelta}))
			}
		case router.ChunkToolCall:
			b.acceptToolCall(chunk.ToolCallDelta)
			if chunk.ToolCallDelta != nil && chunk.ToolCallDelta.IsFinal {
				call := b.finalToolCall(chunk.ToolCallDelta.ID)
				t.emit(ctx, models.EventToolCall, call.ID, call.Name, models.MustMarshalPayload(models.ToolCallPayload{Name: call.Name, Arguments: call.Arguments}))
			}
		case router.ChunkFinish:
			if chunk.Finish != nil {
				finishReason = chunk.Finish.Reason
			}
		}
	}

	msg := models.ConversationMessage{
		ID:        uuid.NewString(),
		SessionID: t.sessionID,
		Role:      models.RoleAssistant,
		Content:   b.text,
		ToolCalls: b.toolCalls(),
		CreatedAt: time.Now(),
	}
	return msg, finishReason, nil
}

// executeToolsPhase submits every tool call in calls to the Lane Queue one
// at a time, in the order the model emitted them, appending each resulting
// tool message before moving to the next call. A call whose envelope
// requests clarification suspends the phase (via awaitAnswer) until a
// Resume call delivers an Answer, folding it into the effective result
// before continuing to the next call.
func (rt *Runtime) executeToolsPhase(ctx context.Context, sess *models.Session, t *turn, iteration int, calls []models.ToolCallRequest) error {
	for _, call := range calls {
		if sess.CancelToken.Pending() {
			envelope := models.Cancelled("turn cancelled before tool call " + call.Name)
			if err := rt.appendToolResult(t, call, envelope); err != nil {
				return newRunError(ErrorRuntimeFailure, PhaseExecuteTools, iteration, "persist cancelled tool message", err)
			}
			continue
		}

		sess.BeginToolCall(call.ID)
		envelope := rt.lanes.Submit(ctx, t.sessionID, lane.Call{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Run: func(callCtx context.Context) models.ToolResultEnvelope {
				return rt.registry.Execute(callCtx, call.Name, sess, []byte(call.Arguments))
			},
		})
		sess.EndToolCall(call.ID)

		status := "success"
		if !envelope.Success {
			status = "error"
		}
		t.emit(ctx, models.EventToolResult, call.ID, call.Name, models.MustMarshalPayload(models.ToolResultPayload{Status: status, Message: envelope.Message}))
		rt.emitDerivedEvents(ctx, t, call, envelope)

		if questions, asked := envelope.AskUserQuestion(); asked {
			answer, err := rt.awaitAnswer(ctx, call.ID, questions, t)
			if err != nil {
				return newRunError(ErrorRuntimeFailure, PhaseExecuteTools, iteration, "await clarification answer", err)
			}
			envelope = foldAnswer(envelope, answer)
		}

		if err := rt.appendToolResult(t, call, envelope); err != nil {
			return newRunError(ErrorRuntimeFailure, PhaseExecuteTools, iteration, "persist tool message", err)
		}
	}
	return nil
}

func (rt *Runtime) appendToolResult(t *turn, call models.ToolCallRequest, envelope models.ToolResultEnvelope) error {
	payload, _ := json.Marshal(envelope)
	msg := models.ConversationMessage{
		ID:         uuid.NewString(),
		SessionID:  t.sessionID,
		Role:       models.RoleTool,
		Content:    envelope.Message,
		ToolCallID: call.ID,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
	return rt.appendMessage(t, msg)
}

// emitDerivedEvents emits the chart/data/artifact children a tool_result
// can carry, plus a retrieval event when the envelope's metadata holds a
// "retrieval" hint, upholding the ordering guarantee that tool_result
// always precedes any event it derived.
func (rt *Runtime) emitDerivedEvents(ctx context.Context, t *turn, call models.ToolCallRequest, envelope models.ToolResultEnvelope) {
	if envelope.HasChart {
		t.emit(ctx, models.EventChart, call.ID, call.Name, models.MustMarshalPayload(models.ChartPayload{Plotly: envelope.ChartData}))
	}
	if envelope.HasDataframe && envelope.DataframePreview != nil {
		cols := make([]string, len(envelope.DataframePreview.Columns))
		for i, c := range envelope.DataframePreview.Columns {
			cols[i] = c.Name
		}
		t.emit(ctx, models.EventData, call.ID, call.Name, models.MustMarshalPayload(models.DataPayload{Columns: cols, Rows: envelope.DataframePreview.Rows}))
	}
	for _, a := range envelope.Artifacts {
		t.emit(ctx, models.EventArtifact, call.ID, call.Name, models.MustMarshalPayload(models.ArtifactPayload{Name: a.Name, Type: a.Type, Format: a.Format, DownloadURL: a.DownloadURL}))
	}
	if hint, ok := envelope.Metadata["retrieval"]; ok {
		t.emit(ctx, models.EventRetrieval, call.ID, call.Name, models.MustMarshalPayload(hint))
	}
}

// awaitAnswer registers a per-tool_call_id answer channel, emits
// ask_user_question, and blocks until a Resume call delivers an answer or
// the context is cancelled.
func (rt *Runtime) awaitAnswer(ctx context.Context, toolCallID string, questions []models.ClarifyingQuestion, t *turn) (Answer, error) {
	ch := make(chan Answer, 1)
	rt.mu.Lock()
	rt.pendingAsks[toolCallID] = ch
	rt.mu.Unlock()
	defer func() {
		rt.mu.Lock()
		delete(rt.pendingAsks, toolCallID)
		rt.mu.Unlock()
	}()

	t.emit(ctx, models.EventAskUserQuestion, toolCallID, "", models.MustMarshalPayload(models.AskUserQuestionPayload{Questions: questions}))

	select {
	case a := <-ch:
		return a, nil
	case <-ctx.Done():
		return Answer{}, ctx.Err()
	}
}

// Resume delivers a clarification Answer to a suspended tool call awaiting
// one, identified by its tool_call_id. It is a no-op if no call is
// currently suspended under that id (e.g. the turn already errored out).
func (rt *Runtime) Resume(toolCallID string, answer Answer) {
	rt.mu.Lock()
	ch, ok := rt.pendingAsks[toolCallID]
	rt.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- answer:
	default:
	}
}

// foldAnswer folds a delivered Answer back into the tool's effective
// result envelope, so the model sees the clarification round-trip as part
// of the tool's own output rather than a separate turn.
func foldAnswer(envelope models.ToolResultEnvelope, answer Answer) models.ToolResultEnvelope {
	if len(answer.Choices) == 0 {
		return envelope
	}
	data, _ := json.Marshal(answer.Choices)
	envelope.Success = true
	envelope.Message = envelope.Message + " (clarified by user)"
	envelope.Data = data
	return envelope
}

func (rt *Runtime) emitError(ctx context.Context, t *turn, err error) {
	kind := ErrorInternal
	var runErr *RunError
	if errors.As(err, &runErr) {
		kind = runErr.Kind
	}
	t.emit(ctx, models.EventError, "", "", models.MustMarshalPayload(models.ErrorPayload{
		Code:    string(kind),
		Message: err.Error(),
	}))
}

func classifyRunError(phase LoopPhase, iteration int, err error) error {
	kind := classifyInternalError(err)
	return newRunError(kind, phase, iteration, "model stream failed", err)
}

func isContextOverflow(err error) bool {
	return classifyInternalError(err) == ErrorContextOverflow
}

func toCompletionMessages(history []models.ConversationMessage) []router.CompletionMessage {
	out := make([]router.CompletionMessage, 0, len(history))
	for _, msg := range history {
		cm := router.CompletionMessage{Role: string(msg.Role), Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, router.ToolCallRef{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		if msg.IsTool() {
			cm.ToolResults = append(cm.ToolResults, router.ToolResultRef{ToolCallID: msg.ToolCallID, Content: msg.Content})
		}
		out = append(out, cm)
	}
	return out
}

func toToolDescriptors(descs []tool.Descriptor) []router.ToolDescriptor {
	out := make([]router.ToolDescriptor, len(descs))
	for i, d := range descs {
		out[i] = router.ToolDescriptor{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}

// builderState accumulates a streamed assistant response into its final
// text and tool-call set, merging argument fragments that may arrive
// split across multiple NormalizedChunks.
type builderState struct {
	text      string
	reasoning string
	fragments map[string]*fragmentAccumulator
	order     []string
}

type fragmentAccumulator struct {
	name string
	args string
}

func (b *builderState) acceptToolCall(f *router.ToolCallFragment) {
	if f == nil {
		return
	}
	if b.fragments == nil {
		b.fragments = make(map[string]*fragmentAccumulator)
	}
	acc, ok := b.fragments[f.ID]
	if !ok {
		acc = &fragmentAccumulator{}
		b.fragments[f.ID] = acc
		b.order = append(b.order, f.ID)
	}
	if f.Name != "" {
		acc.name = f.Name
	}
	acc.args += f.ArgsDelta
}

type finalCall struct {
	ID        string
	Name      string
	Arguments string
}

func (b *builderState) finalToolCall(id string) finalCall {
	acc := b.fragments[id]
	if acc == nil {
		return finalCall{ID: id}
	}
	return finalCall{ID: id, Name: acc.name, Arguments: acc.args}
}

func (b *builderState) toolCalls() []models.ToolCallRequest {
	out := make([]models.ToolCallRequest, 0, len(b.order))
	for _, id := range b.order {
		acc := b.fragments[id]
		out = append(out, models.ToolCallRequest{ID: id, Name: acc.name, Arguments: acc.args})
	}
	return out
}
