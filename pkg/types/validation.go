package types

import (
	"encoding/json"
	"regexp"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// History pagination bounds enforced server-side to bound payload size
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Maximum serialized payload size for a single event (64KB)
const maxPayloadBytes = 65536

// IsValidID checks client and session id format (1-64 chars, [a-zA-Z0-9_-]).
// Server-assigned UUIDs always pass; the check exists for ids echoed back by
// clients in session_id fields.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idRegex.MatchString(id)
}

// ClampHistoryLimit applies the default and the server-side maximum.
func ClampHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// Validate checks the per-type field subset of an inbound envelope.
// ARCHITECTURAL DISCOVERY: Validation at type level ensures consistency
// across all dispatch paths without duplicating checks per handler
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		if len(m.SessionIDs) == 0 {
			return ErrMissingSessionIDs
		}
		for _, id := range m.SessionIDs {
			if !IsValidID(id) {
				return ErrInvalidSessionID
			}
		}
	case MessageTypeCreateSession:
		if len(m.Name) > 200 {
			return ErrInvalidSessionName
		}
		if m.RequestID == "" {
			return ErrMissingRequestID
		}
	case MessageTypeRequestHistory:
		if !IsValidID(m.SessionID) {
			return ErrInvalidSessionID
		}
	case MessageTypeInput:
		if !IsValidID(m.SessionID) {
			return ErrInvalidSessionID
		}
	case MessageTypePublish:
		if !IsValidID(m.SessionID) {
			return ErrInvalidSessionID
		}
		if m.Kind != EventKindOutput && m.Kind != EventKindStatus {
			return ErrInvalidEventKind
		}
		if err := validatePayload(m.Payload); err != nil {
			return err
		}
	case MessageTypeListSessions:
		if m.RequestID == "" {
			return ErrMissingRequestID
		}
	case MessageTypeKillSession:
		if !IsValidID(m.SessionID) {
			return ErrInvalidSessionID
		}
	default:
		return ErrInvalidMessageType
	}
	return nil
}

// validatePayload bounds the serialized payload size
// TECHNICAL DISCOVERY: the size check requires marshaling, which adds
// overhead but is the only accurate byte count for nested payloads
func validatePayload(payload map[string]interface{}) error {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ErrInvalidPayload
	}
	if len(data) > maxPayloadBytes {
		return ErrPayloadTooLarge
	}
	return nil
}
