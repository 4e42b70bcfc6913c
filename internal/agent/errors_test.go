package agent

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorKind_Retryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{ErrorContextOverflow, true},
		{ErrorTimeout, false},
		{ErrorRateLimit, false},
		{ErrorInternal, false},
		{ErrorCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunError_Error(t *testing.T) {
	cause := errors.New("connection refused")
	err := newRunError(ErrorTimeout, PhaseStream, 2, "model call failed", cause)

	msg := err.Error()
	for _, want := range []string{string(ErrorTimeout), string(PhaseStream), "2", "model call failed", "connection refused"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, want substring %q", msg, want)
		}
	}
}

func TestRunError_Unwrap(t *testing.T) {
	cause := errors.New("underlying cause")
	err := newRunError(ErrorInternal, PhaseInit, 0, "wrapped", cause)

	if !errors.Is(err, cause) {
		t.Error("should unwrap to underlying cause")
	}
}

func TestClassifyInternalError(t *testing.T) {
	tests := []struct {
		name   string
		errMsg string
		want   ErrorKind
	}{
		{"timeout", "context deadline exceeded", ErrorTimeout},
		{"timeout_word", "request timeout", ErrorTimeout},
		{"memory", "memory budget exceeded", ErrorMemoryExceeded},
		{"overflow", "context window overflow", ErrorContextOverflow},
		{"cancel", "operation cancelled", ErrorCancelled},
		{"unknown", "some random failure", ErrorInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyInternalError(errors.New(tt.errMsg))
			if got != tt.want {
				t.Errorf("classifyInternalError(%q) = %s, want %s", tt.errMsg, got, tt.want)
			}
		})
	}
}

func TestClassifyInternalError_NilError(t *testing.T) {
	if got := classifyInternalError(nil); got != ErrorInternal {
		t.Errorf("classifyInternalError(nil) = %s, want %s", got, ErrorInternal)
	}
}

func TestLoopPhases(t *testing.T) {
	phases := []LoopPhase{
		PhaseInit,
		PhaseStream,
		PhaseExecuteTools,
		PhaseContinue,
		PhaseComplete,
	}

	for _, p := range phases {
		if string(p) == "" {
			t.Errorf("phase %v should have a string representation", p)
		}
	}
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrNoProvider,
		ErrSessionRequired,
		ErrTurnInProgress,
	}

	for _, err := range sentinels {
		if err == nil {
			t.Error("sentinel error should not be nil")
		}
		if err.Error() == "" {
			t.Errorf("sentinel %v should have a message", err)
		}
	}
}
