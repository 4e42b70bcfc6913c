// Package lane implements the per-session Lane Queue: a FIFO executor that
// guarantees at most one tool invocation runs concurrently within a
// session, while distinct sessions run fully concurrently.
//
// Modeled on the goroutine-per-lane/condition-variable drain shape of the
// teacher's internal/infra/queue.go CommandQueue (which already serializes
// a lane to maxConcurrent=1 by default) narrowed to exactly that one
// concurrency level per session, with the addition of a
// context.CancelFunc-per-in-flight-call and a cancellation-drain path the
// teacher's generic queue does not need (CommandQueue has no notion of a
// per-lane cancellation token).
package lane

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/scianalytics/agentcore/pkg/models"
)

// Call is a unit of work submitted to a session's lane.
type Call struct {
	ToolCallID string
	ToolName   string
	Run        func(ctx context.Context) models.ToolResultEnvelope
}

type pendingCall struct {
	call     Call
	resultCh chan models.ToolResultEnvelope
}

type sessionLane struct {
	queue    []*pendingCall
	active   bool
	cond     *sync.Cond
	cancelFn context.CancelFunc // set while a call is in flight
}

// Manager owns one lane per session.
type Manager struct {
	mu    sync.Mutex
	lanes map[string]*sessionLane
}

// NewManager creates an empty Lane Queue manager.
func NewManager() *Manager {
	return &Manager{lanes: make(map[string]*sessionLane)}
}

func (m *Manager) laneFor(sessionID string) *sessionLane {
	l, ok := m.lanes[sessionID]
	if !ok {
		l = &sessionLane{}
		l.cond = sync.NewCond(&m.mu)
		m.lanes[sessionID] = l
	}
	return l
}

// Submit enqueues a call on the named session's lane and blocks until it
// completes, is cancelled, or the caller's context is done. Submissions
// for distinct sessions run concurrently; submissions for the same session
// are strictly serialized in submission order.
func (m *Manager) Submit(ctx context.Context, sessionID string, call Call) models.ToolResultEnvelope {
	resultCh := make(chan models.ToolResultEnvelope, 1)
	entry := &pendingCall{call: call, resultCh: resultCh}

	m.mu.Lock()
	l := m.laneFor(sessionID)
	l.queue = append(l.queue, entry)
	if !l.active {
		l.active = true
		go m.drain(sessionID, l)
	}
	m.mu.Unlock()

	select {
	case result := <-resultCh:
		return result
	case <-ctx.Done():
		return models.Cancelled("submission context done: " + ctx.Err().Error())
	}
}

// drain runs one call at a time for a session's lane until the queue is
// empty, then marks the lane idle. A fresh Submit restarts draining.
func (m *Manager) drain(sessionID string, l *sessionLane) {
	for {
		m.mu.Lock()
		if len(l.queue) == 0 {
			l.active = false
			m.mu.Unlock()
			return
		}
		entry := l.queue[0]
		l.queue = l.queue[1:]

		callCtx, cancel := context.WithCancel(context.Background())
		l.cancelFn = cancel
		m.mu.Unlock()

		entry.resultCh <- m.runOne(callCtx, entry.call)

		m.mu.Lock()
		l.cancelFn = nil
		m.mu.Unlock()
		cancel()
	}
}

// runOne executes a single call, recovering from any panic in the
// underlying Run function — the lane never lets a misbehaving tool bring
// down the drain goroutine.
func (m *Manager) runOne(ctx context.Context, call Call) (result models.ToolResultEnvelope) {
	defer func() {
		if rec := recover(); rec != nil {
			result = models.Failed("internal error executing tool", "panic")
			_ = debug.Stack() // captured via recover(); logging is the caller's concern
		}
	}()
	return call.Run(ctx)
}

// CancelSession implements the cancellation-token contract: already-queued
// but not-started calls are dropped with a Cancelled envelope; a call
// in-flight receives a best-effort cooperative cancellation via its
// context. The queue is not persisted — on process restart, in-flight
// calls are simply lost (visible to the client as an error event).
func (m *Manager) CancelSession(sessionID string) {
	m.mu.Lock()
	l, ok := m.lanes[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	pending := l.queue
	l.queue = nil
	cancelFn := l.cancelFn
	m.mu.Unlock()

	for _, entry := range pending {
		entry.resultCh <- models.Cancelled("dropped by session cancellation")
	}
	if cancelFn != nil {
		cancelFn()
	}
}

// Stats reports the pending queue depth for a session's lane, as read by
// SessionStats and the awaitIdle helper.
type Stats struct {
	Pending  int
	Draining bool
}

// SessionStats returns the current lane depth for a session.
func (m *Manager) SessionStats(sessionID string) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lanes[sessionID]
	if !ok {
		return Stats{}
	}
	return Stats{Pending: len(l.queue), Draining: l.active}
}

// awaitIdle is a test helper that blocks until a session's lane has no
// pending or in-flight work, or the timeout elapses.
func (m *Manager) awaitIdle(sessionID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		stats := m.SessionStats(sessionID)
		if stats.Pending == 0 && !stats.Draining {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
