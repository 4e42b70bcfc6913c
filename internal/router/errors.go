package router

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// FailoverReason classifies a provider error for routing purposes,
// generalizing internal/agent/providers/errors.go's FailoverReason onto the
// router's own ProviderError type instead of the teacher's.
type FailoverReason string

const (
	ReasonBilling          FailoverReason = "billing"
	ReasonRateLimit        FailoverReason = "rate_limit"
	ReasonAuth             FailoverReason = "auth"
	ReasonTimeout          FailoverReason = "timeout"
	ReasonServerError      FailoverReason = "server_error"
	ReasonInvalidRequest   FailoverReason = "invalid_request"
	ReasonModelUnavailable FailoverReason = "model_unavailable"
	ReasonContentFilter    FailoverReason = "content_filter"
	ReasonUnknown          FailoverReason = "unknown"
)

// IsRetryable reports whether the same candidate is worth retrying after a
// short backoff.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// ShouldFailover reports whether the router should move on to the next
// candidate rather than retry this one.
func (r FailoverReason) ShouldFailover() bool {
	switch r {
	case ReasonBilling, ReasonAuth, ReasonModelUnavailable, ReasonRateLimit, ReasonServerError, ReasonTimeout:
		return true
	default:
		return false
	}
}

// ProviderError is the typed error every adapter wraps transport/SDK
// failures in before returning them to the Router, carrying enough context
// for ClassifyError and for diagnostics without a second round-trip.
type ProviderError struct {
	Reason    FailoverReason
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Model != "" {
		b.WriteString(" (" + e.Model + ")")
	}
	b.WriteString(": ")
	if e.Message != "" {
		b.WriteString(e.Message)
	} else if e.Cause != nil {
		b.WriteString(e.Cause.Error())
	} else {
		b.WriteString(string(e.Reason))
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError wraps a transport error, classifying it immediately.
func NewProviderError(provider, model string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   classifyBare(cause),
	}
}

func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if r := classifyStatusCode(status); r != ReasonUnknown {
		e.Reason = r
	}
	return e
}

func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	return e
}

func (e *ProviderError) WithRequestID(id string) *ProviderError {
	e.RequestID = id
	return e
}

func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	if r := classifyText(msg); r != ReasonUnknown {
		e.Reason = r
	}
	return e
}

// ClassifyError determines the FailoverReason for an arbitrary error,
// unwrapping a *ProviderError if present and otherwise falling back to
// substring classification of the error text — mirroring the teacher's
// string-matching approach for SDK errors that don't expose structured
// status codes.
func ClassifyError(err error) FailoverReason {
	if err == nil {
		return ReasonUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return classifyBare(err)
}

func classifyBare(err error) FailoverReason {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReasonTimeout
	}
	return classifyText(err.Error())
}

func classifyText(msg string) FailoverReason {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "429"), strings.Contains(lower, "too many requests"):
		return ReasonRateLimit
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "401"), strings.Contains(lower, "forbidden"), strings.Contains(lower, "403"):
		return ReasonAuth
	case strings.Contains(lower, "billing"), strings.Contains(lower, "payment"), strings.Contains(lower, "quota"), strings.Contains(lower, "402"):
		return ReasonBilling
	case strings.Contains(lower, "content_filter"), strings.Contains(lower, "safety"), strings.Contains(lower, "blocked"):
		return ReasonContentFilter
	case strings.Contains(lower, "model not found"), strings.Contains(lower, "model_unavailable"), strings.Contains(lower, "does not exist"):
		return ReasonModelUnavailable
	case strings.Contains(lower, "500"), strings.Contains(lower, "502"), strings.Contains(lower, "503"), strings.Contains(lower, "504"), strings.Contains(lower, "internal server error"), strings.Contains(lower, "overloaded"):
		return ReasonServerError
	case strings.Contains(lower, "invalid"), strings.Contains(lower, "bad request"), strings.Contains(lower, "400"):
		return ReasonInvalidRequest
	default:
		return ReasonUnknown
	}
}

func classifyStatusCode(status int) FailoverReason {
	switch {
	case status == 401 || status == 403:
		return ReasonAuth
	case status == 402:
		return ReasonBilling
	case status == 429:
		return ReasonRateLimit
	case status == 408:
		return ReasonTimeout
	case status >= 500:
		return ReasonServerError
	case status == 400 || status == 422:
		return ReasonInvalidRequest
	default:
		return ReasonUnknown
	}
}

// statusFromCode is a small helper adapters use when an SDK only exposes a
// stringified status code.
func statusFromCode(code string) int {
	n, err := strconv.Atoi(code)
	if err != nil {
		return 0
	}
	return n
}
