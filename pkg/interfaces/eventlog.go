package interfaces

import (
	"context"
	"sessionhub/pkg/types"
)

// EventLog is the append-only per-session event store
// ARCHITECTURAL DISCOVERY: single interface for the durable log and the
// in-memory fake, selected at construction time, so every consumer and test
// runs against the same append/read contract
type EventLog interface {
	// Append persists an event and assigns its sequence number.
	// The returned seq is strictly increasing per session. Implementations
	// must serialize appends to the same session so no two events share a seq.
	Append(ctx context.Context, sessionID string, event *types.Event) (uint64, error)

	// Read returns up to limit events with seq >= fromSeq in ascending seq
	// order. The second result reports whether later events exist.
	Read(ctx context.Context, sessionID string, fromSeq uint64, limit int) ([]*types.Event, bool, error)

	// ReadBefore returns the newest limit events with seq < beforeSeq, in
	// ascending seq order. The second result reports whether events older
	// than the returned window exist.
	// FUNCTIONAL DISCOVERY: backwards pagination is its own method rather
	// than a Read variant because the windowing (newest-first, returned
	// ascending) differs from forward reads
	ReadBefore(ctx context.Context, sessionID string, beforeSeq uint64, limit int) ([]*types.Event, bool, error)

	// LastSeq returns the highest assigned seq for a session, 0 if none.
	LastSeq(ctx context.Context, sessionID string) (uint64, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the backing store. Pending appends complete first.
	Close() error
}
