package models

import (
	"sync"
	"time"
)

// Session is a process-local, mutable record keyed by a string SessionID.
// It mirrors the teacher's sessions.Store entity plus the fields the spec
// requires: a dataset table, the set of in-flight tool-call correlation
// ids, and a per-session cancellation token. Datasets and log mutation are
// only valid under Lock/Unlock during a turn, or via explicit admin
// operations (delete, compress) — matching the teacher's
// sessions/memory.go clone-on-read discipline, but using a real mutex
// instead of copy-on-access because the spec requires in-place dataset
// mutation visible to the Lane Queue.
type Session struct {
	mu sync.Mutex

	ID string

	// Datasets maps a dataset name to an opaque handle. The core never
	// interprets Handle; tools do.
	Datasets map[string]Dataset

	// ActiveToolCallIDs is the set of in-flight correlation ids for this
	// session, maintained by the Agent Runner (BeginToolCall/EndToolCall)
	// around each Lane Queue submission. The Lane Queue does not read it.
	ActiveToolCallIDs map[string]struct{}

	// CancelToken is single-writer: toggled to request abort of the
	// current turn. Edge-triggered — Observe reports a pending request
	// once and clears it, so the next turn starts uncancelled.
	CancelToken *CancelToken

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Dataset is an opaque envelope around a tabular value. The core treats it
// as opaque per spec Non-goals. run_code reads a string Handle as the
// dataset's CSV path; datasets are not listed in the model prompt.
type Dataset struct {
	Name   string
	Format string // e.g. "csv", "parquet", "dataframe"
	Handle any
}

// CancelToken is an edge-triggered, single-writer cancellation flag.
type CancelToken struct {
	mu        sync.Mutex
	requested bool
}

// NewSession allocates a Session with empty dataset/tool-call tables.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:                id,
		Datasets:          make(map[string]Dataset),
		ActiveToolCallIDs: make(map[string]struct{}),
		CancelToken:       &CancelToken{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Lock/Unlock implement the per-session serialization invariant: at most
// one turn mutates Datasets/log state at a time.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Request flags cancellation. Idempotent: repeated calls before the flag
// is observed have no additional effect.
func (c *CancelToken) Request() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = true
}

// Observe reports and clears the pending cancellation, implementing the
// edge-triggered-per-turn semantics spec.md requires.
func (c *CancelToken) Observe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.requested {
		return false
	}
	c.requested = false
	return true
}

// Pending reports the flag without clearing it.
func (c *CancelToken) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested
}

// AddDataset registers or replaces a dataset by name.
func (s *Session) AddDataset(ds Dataset) {
	s.Datasets[ds.Name] = ds
	s.UpdatedAt = time.Now()
}

// RemoveDataset deletes a dataset by name; reports whether it existed.
func (s *Session) RemoveDataset(name string) bool {
	if _, ok := s.Datasets[name]; !ok {
		return false
	}
	delete(s.Datasets, name)
	s.UpdatedAt = time.Now()
	return true
}

// BeginToolCall records a tool call as in-flight for cancellation-drain
// bookkeeping.
func (s *Session) BeginToolCall(id string) {
	s.ActiveToolCallIDs[id] = struct{}{}
}

// EndToolCall clears the in-flight marker for a completed/cancelled call.
func (s *Session) EndToolCall(id string) {
	delete(s.ActiveToolCallIDs, id)
}
