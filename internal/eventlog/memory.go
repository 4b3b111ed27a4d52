package eventlog

import (
	"context"
	"sync"

	"sessionhub/pkg/types"
)

// MemoryLog is the in-memory EventLog used by tests and the memory backend
// FUNCTIONAL DISCOVERY: same append/read contract as the SQLite log so it can
// stand in anywhere a durable log is not needed
type MemoryLog struct {
	mu     sync.RWMutex
	events map[string][]*types.Event
}

// NewMemoryLog creates an empty in-memory event log
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		events: make(map[string][]*types.Event),
	}
}

// Append assigns the next seq for the session and stores a copy of the event
func (l *MemoryLog) Append(ctx context.Context, sessionID string, event *types.Event) (uint64, error) {
	if sessionID == "" {
		return 0, ErrEmptySessionID
	}
	if event == nil {
		return 0, ErrNilEvent
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Events are stored densely, so the slice index encodes the seq.
	seq := uint64(len(l.events[sessionID])) + 1
	stored := *event
	stored.Seq = seq
	l.events[sessionID] = append(l.events[sessionID], &stored)
	return seq, nil
}

// Read returns up to limit events with seq >= fromSeq in ascending order
func (l *MemoryLog) Read(ctx context.Context, sessionID string, fromSeq uint64, limit int) ([]*types.Event, bool, error) {
	if limit <= 0 {
		return nil, false, ErrInvalidLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.events[sessionID]
	if fromSeq < 1 {
		fromSeq = 1
	}
	if fromSeq > uint64(len(all)) {
		return nil, false, nil
	}

	start := int(fromSeq - 1)
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	events := make([]*types.Event, end-start)
	copy(events, all[start:end])
	return events, end < len(all), nil
}

// ReadBefore returns the newest limit events with seq < beforeSeq, ascending
func (l *MemoryLog) ReadBefore(ctx context.Context, sessionID string, beforeSeq uint64, limit int) ([]*types.Event, bool, error) {
	if limit <= 0 {
		return nil, false, ErrInvalidLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.events[sessionID]
	if beforeSeq == 0 || len(all) == 0 {
		return nil, false, nil
	}

	// Clamp before converting: int(beforeSeq-1) overflows negative for
	// cursors above MaxInt64.
	end := len(all)
	if beforeSeq-1 < uint64(end) {
		end = int(beforeSeq - 1)
	}
	if end <= 0 {
		return nil, false, nil
	}

	start := end - limit
	if start < 0 {
		start = 0
	}

	events := make([]*types.Event, end-start)
	copy(events, all[start:end])
	return events, start > 0, nil
}

// LastSeq returns the highest assigned seq for a session, 0 if none
func (l *MemoryLog) LastSeq(ctx context.Context, sessionID string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events[sessionID])), nil
}

// HealthCheck always succeeds for the in-memory backend
func (l *MemoryLog) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory backend
func (l *MemoryLog) Close() error {
	return nil
}
