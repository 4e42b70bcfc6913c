package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Provider is the uniform streaming completion interface every model
// backend adapter implements, narrowing the teacher's LLMProvider
// (internal/agent/provider_types.go) to stream NormalizedChunk instead of
// CompletionChunk.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (<-chan NormalizedChunk, error)
	SupportsTools() bool
}

// Candidate pairs a Provider with the routing metadata (priority, model)
// that the teacher's internal/agent/routing/router.go
// RouteTable carries per entry.
type Candidate struct {
	Provider Provider
	Model    string
	Priority int // lower runs first
}

// state tracks per-provider health, merging the teacher's cooldown window
// (internal/agent/routing/router.go) with the circuit breaker and retry
// counters from internal/agent/failover.go.
type state struct {
	mu            sync.Mutex
	failures      int
	cooldownUntil time.Time
	circuitOpen   bool
	circuitOpenAt time.Time
}

func (s *state) available(now time.Time, circuitTimeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.circuitOpen {
		if now.Sub(s.circuitOpenAt) < circuitTimeout {
			return false
		}
		// half-open: let one request probe
		s.circuitOpen = false
		s.failures = 0
	}
	return now.After(s.cooldownUntil) || now.Equal(s.cooldownUntil)
}

func (s *state) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
	s.cooldownUntil = time.Time{}
	s.circuitOpen = false
}

func (s *state) recordFailure(reason FailoverReason, now time.Time, cooldown time.Duration, breakerThreshold int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	s.cooldownUntil = now.Add(cooldown)
	if s.failures >= breakerThreshold {
		s.circuitOpen = true
		s.circuitOpenAt = now
	}
}

// Config tunes the router's retry/backoff/circuit-breaker behavior.
type Config struct {
	MaxAttemptsPerCandidate int           // retries against one candidate before failing over
	BaseBackoff             time.Duration // exponential backoff base
	Cooldown                time.Duration // per-provider cooldown after a failover-worthy error
	CircuitBreakerThreshold int           // consecutive failures before the circuit opens
	CircuitBreakerTimeout   time.Duration // how long the circuit stays open
}

// DefaultConfig mirrors the teacher's failover.go defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttemptsPerCandidate: 2,
		BaseBackoff:             500 * time.Millisecond,
		Cooldown:                30 * time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   60 * time.Second,
	}
}

// Router selects among priority-ordered provider candidates and fails over
// between them on typed, retryable errors. It merges the teacher's
// internal/agent/routing/router.go (priority ordering + cooldown) with
// internal/agent/failover.go (retry-with-backoff + circuit breaker), using
// errors.go's FailoverReason taxonomy to decide whether an error
// is worth retrying the same candidate, failing over to the next one, or
// surfacing to the caller unretried.
type Router struct {
	mu         sync.Mutex
	candidates []Candidate
	states     map[string]*state // keyed by provider name
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewRouter builds a router over the given candidates, sorted by priority.
func NewRouter(candidates []Candidate, cfg Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := append([]Candidate(nil), candidates...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Priority < sorted[j-1].Priority; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	states := make(map[string]*state, len(sorted))
	for _, c := range sorted {
		if _, ok := states[c.Provider.Name()]; !ok {
			states[c.Provider.Name()] = &state{}
		}
	}
	return &Router{
		candidates: sorted,
		states:     states,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// ErrNoAvailableProvider is returned when every candidate is in cooldown or
// has its circuit open.
var ErrNoAvailableProvider = errors.New("router: no available provider candidate")

// Complete tries each candidate in priority order, retrying a candidate up
// to MaxAttemptsPerCandidate times on a retryable error before failing over
// to the next one. A non-retryable, non-failover error (e.g. invalid
// request) is returned immediately without trying further candidates — the
// request itself is at fault, not the provider.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (<-chan NormalizedChunk, string, error) {
	r.mu.Lock()
	candidates := append([]Candidate(nil), r.candidates...)
	r.mu.Unlock()

	var lastErr error
	for _, c := range candidates {
		st := r.states[c.Provider.Name()]
		now := r.now()
		if !st.available(now, r.cfg.CircuitBreakerTimeout) {
			r.logger.Debug("router: skipping candidate in cooldown/open-circuit", "provider", c.Provider.Name())
			continue
		}

		candidateReq := req
		if candidateReq.Model == "" {
			candidateReq.Model = c.Model
		}

		chunks, err := r.tryCandidate(ctx, c, st, candidateReq)
		if err == nil {
			return chunks, c.Provider.Name(), nil
		}
		lastErr = err

		reason := ClassifyError(err)
		if !reason.ShouldFailover() && !reason.IsRetryable() {
			return nil, c.Provider.Name(), err
		}
		// retryable-but-exhausted or failover-worthy: try the next candidate
	}

	if lastErr != nil {
		return nil, "", lastErr
	}
	return nil, "", ErrNoAvailableProvider
}

// tryCandidate retries a single candidate with exponential backoff up to
// MaxAttemptsPerCandidate times, stopping early on a non-retryable error.
func (r *Router) tryCandidate(ctx context.Context, c Candidate, st *state, req CompletionRequest) (<-chan NormalizedChunk, error) {
	var err error
	for attempt := 0; attempt < r.cfg.MaxAttemptsPerCandidate; attempt++ {
		var chunks <-chan NormalizedChunk
		chunks, err = c.Provider.Complete(ctx, req)
		if err == nil {
			st.recordSuccess()
			return chunks, nil
		}

		reason := ClassifyError(err)
		st.recordFailure(reason, r.now(), r.cfg.Cooldown, r.cfg.CircuitBreakerThreshold)
		if !reason.IsRetryable() || attempt == r.cfg.MaxAttemptsPerCandidate-1 {
			break
		}

		backoff := r.cfg.BaseBackoff << attempt
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, err
}
