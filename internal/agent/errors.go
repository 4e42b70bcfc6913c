package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed set of error classifications surfaced in
// EventError payloads (spec §7). Tool envelopes carry their own
// metadata.error_kind strings, set by the sandbox ("policy", "timeout",
// "memory", "runtime", "output_parse"), the tool registry and the Lane
// Queue; those strings are not restricted to this set.
type ErrorKind string

const (
	ErrorPolicy          ErrorKind = "policy"
	ErrorTimeout         ErrorKind = "timeout"
	ErrorMemoryExceeded  ErrorKind = "memory_exceeded"
	ErrorRuntimeFailure  ErrorKind = "runtime_failure"
	ErrorToolInvocation  ErrorKind = "tool_invocation"
	ErrorProviderAuth    ErrorKind = "provider_auth"
	ErrorQuota           ErrorKind = "quota"
	ErrorRateLimit       ErrorKind = "rate_limit"
	ErrorContextOverflow ErrorKind = "context_overflow"
	ErrorCancelled       ErrorKind = "cancelled"
	ErrorInternal        ErrorKind = "internal"
)

// Retryable reports whether the runner may retry the current iteration
// automatically after seeing this kind of failure (distinct from the
// Model Router's own provider-failover retry, which happens one layer
// down before a RunError is ever constructed).
func (k ErrorKind) Retryable() bool {
	return k == ErrorContextOverflow
}

// RunError is the typed error the runner converts every tool exception,
// provider exception, and sandbox failure into before it crosses the
// runner boundary — per the propagation policy, nothing escapes as a raw,
// unclassified error. Phase/Iteration identify where in the ReAct loop the
// failure happened, for logging and for the error event's detail field.
type RunError struct {
	Kind      ErrorKind
	Phase     LoopPhase
	Iteration int
	Message   string
	Hint      string
	Cause     error
}

func (e *RunError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s at %s (iteration %d): %s: %v", e.Kind, e.Phase, e.Iteration, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s at %s (iteration %d): %s", e.Kind, e.Phase, e.Iteration, e.Message)
}

func (e *RunError) Unwrap() error { return e.Cause }

func newRunError(kind ErrorKind, phase LoopPhase, iteration int, message string, cause error) *RunError {
	return &RunError{Kind: kind, Phase: phase, Iteration: iteration, Message: message, Cause: cause}
}

// LoopPhase names a stage of the ReAct state machine, used for error
// context and logging (init → stream → execute_tools → continue →
// complete).
type LoopPhase string

const (
	PhaseInit         LoopPhase = "init"
	PhaseStream       LoopPhase = "stream"
	PhaseExecuteTools LoopPhase = "execute_tools"
	PhaseContinue     LoopPhase = "continue"
	PhaseComplete     LoopPhase = "complete"
)

// Sentinel errors for conditions the runner itself detects before it ever
// has a RunError's phase/iteration context to attach.
var (
	ErrNoProvider     = errors.New("agent: no provider configured")
	ErrSessionRequired = errors.New("agent: session is required")
	ErrTurnInProgress = errors.New("agent: a turn is already in progress for this session")
)

// classifyInternalError maps an unclassified Go error into the spec's
// closed ErrorKind set using the same substring-matching approach the
// Model Router uses for provider errors (internal/router/errors.go) — kept
// here for failures that never reach the router (tool panics, sandbox
// plumbing) but still need a kind for the error event.
func classifyInternalError(err error) ErrorKind {
	if err == nil {
		return ErrorInternal
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return ErrorTimeout
	case strings.Contains(msg, "memory") && strings.Contains(msg, "exceed"):
		return ErrorMemoryExceeded
	case strings.Contains(msg, "context") && strings.Contains(msg, "overflow"):
		return ErrorContextOverflow
	case strings.Contains(msg, "cancel"):
		return ErrorCancelled
	default:
		return ErrorInternal
	}
}
