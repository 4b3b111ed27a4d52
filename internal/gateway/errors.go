package gateway

import "errors"

// Gateway error types
var (
	ErrProtocolViolation = errors.New("protocol violation")
	ErrRateLimitExceeded = errors.New("rate limit exceeded: 100 messages per minute")
)
