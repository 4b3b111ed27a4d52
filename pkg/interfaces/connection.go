package interfaces

// Connection represents one client's WebSocket connection
// ARCHITECTURAL DISCOVERY: pure abstraction without transport details ensures
// clean boundaries between socket handling and coordination logic, and lets
// tests drive the gateway with in-memory connections
type Connection interface {
	// ClientID returns the server-assigned id, unique per connection.
	ClientID() string

	// WriteJSON sends a JSON message to the client (thread-safe).
	// FUNCTIONAL DISCOVERY: thread-safety is part of the contract so fan-out
	// paths and the connection's own reply path can share it freely
	WriteJSON(v interface{}) error

	// Close closes the connection. Idempotent.
	Close() error
}

// ClientRegistry tracks connected clients and the set of sessions each one
// follows. It is the connection-side half of the subscriber bookkeeping; the
// session-side half lives in each session's ownership record, and mutations
// to the two are always paired.
type ClientRegistry interface {
	// Send delivers a message to a client if it is still connected.
	// Reports whether the client was known.
	Send(clientID string, message interface{}) bool

	// FollowSession records that a client follows a session. Reports false
	// if the client is no longer connected, in which case the caller must
	// roll back the session-side registration.
	FollowSession(clientID, sessionID string) bool

	// ForgetSession drops a session from a client's followed set. Idempotent.
	ForgetSession(clientID, sessionID string)

	// Detach removes a client entirely and returns the session ids it was
	// following. Returns nil if the client was already detached, which makes
	// disconnect handling idempotent.
	Detach(clientID string) []string
}
