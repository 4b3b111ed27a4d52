package eventlog

import "errors"

// Event log error types
var (
	ErrLogClosed      = errors.New("event log is closed")
	ErrAppendTimeout  = errors.New("append operation timeout")
	ErrInvalidLimit   = errors.New("read limit must be positive")
	ErrNilEvent       = errors.New("event cannot be nil")
	ErrEmptySessionID = errors.New("session id cannot be empty")
)
