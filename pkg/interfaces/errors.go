package interfaces

import "errors"

// Shared error taxonomy used across components
// ARCHITECTURAL DISCOVERY: the user-facing errors live in one package so every
// layer maps to the same sentinels and the gateway can translate them to wire
// codes in a single place
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrNotSubscribed      = errors.New("client not subscribed to session")
	ErrLogUnavailable     = errors.New("event log unavailable")
	ErrClientDisconnected = errors.New("client disconnected")
)
