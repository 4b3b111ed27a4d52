package types

import "errors"

// Envelope validation error types
var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMissingSessionIDs  = errors.New("session_ids cannot be empty")
	ErrInvalidSessionID   = errors.New("invalid session id format")
	ErrInvalidSessionName = errors.New("session name must be at most 200 characters")
	ErrMissingRequestID   = errors.New("request_id is required")
	ErrInvalidEventKind   = errors.New("invalid event kind")
	ErrInvalidPayload     = errors.New("payload is not serializable")
	ErrPayloadTooLarge    = errors.New("payload exceeds 64KB limit")
)
