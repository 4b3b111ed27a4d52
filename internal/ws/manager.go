package ws

import (
	"log"
	"sync"

	"sessionhub/pkg/interfaces"
)

// client pairs a connection with the session ids it currently follows
type client struct {
	conn     interfaces.Connection
	sessions map[string]struct{}
}

// Manager tracks connected clients and the sessions each one follows. It is
// the connection-side half of subscriber bookkeeping and implements
// interfaces.ClientRegistry for the coordination layers above it.
// ARCHITECTURAL DISCOVERY: pure connection tracking without business logic -
// ownership decisions stay in the lifecycle manager
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*client
}

// NewManager creates an empty connection manager
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]*client),
	}
}

// Register adds a connection under its client id
func (m *Manager) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Client ids are freshly assigned per connection, so a collision means a
	// caller bug rather than a reconnect.
	if _, exists := m.clients[conn.ClientID()]; exists {
		return ErrDuplicateClientID
	}

	m.clients[conn.ClientID()] = &client{
		conn:     conn,
		sessions: make(map[string]struct{}),
	}
	return nil
}

// Send delivers a message to a client if it is still connected
func (m *Manager) Send(clientID string, message interface{}) bool {
	m.mu.RLock()
	c, exists := m.clients[clientID]
	m.mu.RUnlock()

	if !exists {
		return false
	}
	if err := c.conn.WriteJSON(message); err != nil {
		// FUNCTIONAL DISCOVERY: a failed write is not a disconnect - the read
		// loop owns connection teardown so cleanup happens exactly once
		log.Printf("Failed to deliver message to %s: %v", clientID, err)
	}
	return true
}

// FollowSession records that a client follows a session. Reports false if
// the client has already been detached.
func (m *Manager) FollowSession(clientID, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.clients[clientID]
	if !exists {
		return false
	}
	c.sessions[sessionID] = struct{}{}
	return true
}

// ForgetSession drops a session from a client's followed set. Idempotent.
func (m *Manager) ForgetSession(clientID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, exists := m.clients[clientID]; exists {
		delete(c.sessions, sessionID)
	}
}

// Sessions returns the session ids a client currently follows
func (m *Manager) Sessions(clientID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.clients[clientID]
	if !exists {
		return nil
	}
	out := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		out = append(out, id)
	}
	return out
}

// Detach removes a client entirely and returns the session ids it was
// following. Returns nil if the client was already detached.
// TECHNICAL DISCOVERY: removing the entry before session-side cleanup makes
// disconnect handling idempotent and stops late FollowSession calls cold
func (m *Manager) Detach(clientID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.clients[clientID]
	if !exists {
		return nil
	}
	delete(m.clients, clientID)

	out := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		out = append(out, id)
	}
	return out
}

// Stats returns connection statistics for monitoring
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	followed := 0
	for _, c := range m.clients {
		followed += len(c.sessions)
	}
	return map[string]int{
		"total_connections": len(m.clients),
		"followed_sessions": followed,
	}
}
