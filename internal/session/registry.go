package session

import (
	"sync"

	"github.com/google/uuid"

	"sessionhub/pkg/interfaces"
)

// Registry is the set of currently active sessions, keyed by session id.
// Single authority for creation and removal: a session exists here if and
// only if its subscriber set is non-empty.
// ARCHITECTURAL DISCOVERY: injectable registry object, never a process-wide
// singleton, so tests run many independent registries in parallel
type Registry struct {
	clients  interfaces.ClientRegistry
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry
func NewRegistry(clients interfaces.ClientRegistry) *Registry {
	return &Registry{
		clients:  clients,
		sessions: make(map[string]*Session),
	}
}

// Create makes a new session with the requesting client as owner and sole
// subscriber, assigns a fresh id and registers it
func (r *Registry) Create(name, ownerID string) *Session {
	s := newSession(uuid.New().String(), name, ownerID, r.clients)

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	return s
}

// Get returns the session for an id, if registered
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, exists := r.sessions[id]
	return s, exists
}

// Snapshot returns the current sessions. Callers take each session's own
// lock one at a time; the registry lock is never held across them.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RemoveIfEmpty removes a session only if its subscriber set is empty,
// re-checked under both locks so a racing subscribe cannot resurrect a
// session mid-removal. Reports whether the session was removed.
// TECHNICAL DISCOVERY: lock order is registry then session, everywhere, so
// this nested acquisition cannot deadlock with Get+lock callers
func (r *Registry) RemoveIfEmpty(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	if !exists {
		return false
	}

	s.mu.Lock()
	if !s.ownership.ShouldCleanup() {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	close(s.deliverCh)
	s.mu.Unlock()

	delete(r.sessions, id)
	return true
}

// Remove unconditionally removes a session (kill and finish paths).
// Reports whether the session was registered.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, exists := r.sessions[id]
	if exists {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !exists {
		return false
	}
	s.markClosed()
	return true
}
