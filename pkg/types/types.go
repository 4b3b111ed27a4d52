package types

import (
	"time"
)

// Event kind constants defined exactly as the log stores them
// so routing and lifecycle transitions agree across the system
const (
	EventKindOutput = "output"
	EventKindInput  = "input"
	EventKindStatus = "status"
)

// Session lifecycle states
// FUNCTIONAL DISCOVERY: lifecycle state is orthogonal to ownership - a finished
// session can still be observed until the lifecycle manager removes it
const (
	StateIdle          = "idle"
	StateActive        = "active"
	StateAwaitingInput = "awaiting_input"
	StateFinished      = "finished"
	StateFailed        = "failed"
)

// Session removal reasons carried on session_removed frames
const (
	RemoveReasonOwnerDisconnected = "owner_disconnected"
	RemoveReasonKilled            = "killed"
	RemoveReasonSessionFinished   = "session_finished"
)

// Event is one entry of a session's append-only log
// ARCHITECTURAL DISCOVERY: Seq is the single ordering key - pagination,
// gap detection and duplicate suppression all key off it, never timestamps
type Event struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	Seq       uint64                 `json:"seq"`
	Kind      string                 `json:"kind"`
	From      string                 `json:"from,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// SessionInfo is the client-facing snapshot of a session
// FUNCTIONAL DISCOVERY: IsOwner is computed per viewer at snapshot time
// so the same session serializes differently for owner and observers
type SessionInfo struct {
	ID              string    `json:"id"`
	Name            string    `json:"name,omitempty"`
	State           string    `json:"state"`
	OwnerID         string    `json:"owner_id"`
	IsOwner         bool      `json:"is_owner"`
	SubscriberCount int       `json:"subscriber_count"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

// IsTerminalState reports whether a lifecycle state ends the session.
func IsTerminalState(state string) bool {
	return state == StateFinished || state == StateFailed
}

// IsValidState reports whether state is one of the defined lifecycle states.
func IsValidState(state string) bool {
	switch state {
	case StateIdle, StateActive, StateAwaitingInput, StateFinished, StateFailed:
		return true
	default:
		return false
	}
}

// IsValidEventKind reports whether kind is one of the defined event kinds.
func IsValidEventKind(kind string) bool {
	switch kind {
	case EventKindOutput, EventKindInput, EventKindStatus:
		return true
	default:
		return false
	}
}
