// Package session owns the in-memory session registry, the append-only
// conversation log, and the compaction contract that trims it under a
// provider's context window.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scianalytics/agentcore/pkg/models"
)

// ErrNotFound is returned when a session id has no registered session.
var ErrNotFound = errors.New("session: not found")

// Manager is a mutex-guarded in-memory session registry, generalizing
// internal/sessions/memory.go's MemoryStore: GetOrCreate-by-key and
// clone-free Get (models.Session now owns its own lock, so callers take
// it directly instead of receiving a defensively-cloned copy).
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewManager creates an empty session registry.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*models.Session)}
}

// GetOrCreate returns the existing session for id, or creates one.
func (m *Manager) GetOrCreate(id string) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	if id == "" {
		id = uuid.NewString()
	}
	s := models.NewSession(id)
	m.sessions[id] = s
	return s
}

// Get returns the session for id, or ErrNotFound.
func (m *Manager) Get(id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session from the registry. Callers are responsible for
// cancelling any in-flight Lane Queue work and closing the conversation
// log before calling this.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// List returns the ids of all registered sessions, newest first.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(m.sessions))
	for id, s := range m.sessions {
		entries = append(entries, entry{id: id, at: s.CreatedAt})
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].at.After(entries[j-1].at); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}

// noopCtx documents that Manager's methods don't currently need a context
// (pure in-memory map operations); kept as a single reference point so a
// future durable-store-backed Manager method can add ctx without touching
// every call site's signature expectations.
var _ = context.Background
