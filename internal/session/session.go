package session

import (
	"context"
	"sync"
	"time"

	"sessionhub/pkg/interfaces"
	"sessionhub/pkg/types"
)

// fanoutJob is one ordered delivery of a message to a recipient snapshot
type fanoutJob struct {
	recipients []string
	message    interface{}
}

// Session is a live session's mutable state plus its ownership record.
// Every read-then-write of ownership or ownership+log state runs under the
// session's own mutex, never a global one, so contention is bounded to
// clients of the same session.
type Session struct {
	id        string
	name      string
	createdAt time.Time
	clients   interfaces.ClientRegistry

	// ARCHITECTURAL DISCOVERY: events are enqueued for delivery while the
	// session lock is held but delivered by a dedicated goroutine, so all
	// subscribers observe the log's seq order without the lock ever being
	// held across network I/O
	deliverCh chan fanoutJob

	mu           sync.Mutex
	closed       bool
	state        string
	lastActivity time.Time
	lastSeq      uint64
	ownership    *Ownership
}

// AppendResult reports the outcome of an event append
type AppendResult struct {
	Seq   uint64
	State string
}

func newSession(id, name, ownerID string, clients interfaces.ClientRegistry) *Session {
	s := &Session{
		id:        id,
		name:      name,
		createdAt: time.Now(),
		clients:   clients,
		// FUNCTIONAL DISCOVERY: generous buffer keeps the enqueue under the
		// session lock from blocking during event bursts
		deliverCh:    make(chan fanoutJob, 1024),
		state:        types.StateIdle,
		lastActivity: time.Now(),
		ownership:    NewOwnership(ownerID),
	}
	go s.deliverLoop()
	return s
}

// deliverLoop drains the fan-out queue in enqueue order
func (s *Session) deliverLoop() {
	for job := range s.deliverCh {
		for _, clientID := range job.recipients {
			s.clients.Send(clientID, job.message)
		}
	}
}

// ID returns the immutable session id
func (s *Session) ID() string { return s.id }

// Name returns the optional human label, fixed at creation
func (s *Session) Name() string { return s.name }

// CreatedAt returns the creation time
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Update runs fn on the ownership record inside the session's critical
// section. Returns ErrSessionNotFound if the session was already removed.
// FUNCTIONAL DISCOVERY: the closure form keeps transition logic in the
// lifecycle manager while the session controls the locking discipline
func (s *Session) Update(fn func(o *Ownership)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return interfaces.ErrSessionNotFound
	}
	fn(s.ownership)
	return nil
}

// Subscribe registers a client as a live subscriber and captures the current
// sequence number in the same critical section. Events with seq at or below
// the returned value are served by backfill; everything later is delivered
// live - the two never overlap because no append can interleave with this
// step.
func (s *Session) Subscribe(clientID string) (currentSeq uint64, added bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false, interfaces.ErrSessionNotFound
	}
	added = s.ownership.AddSubscriber(clientID)
	return s.lastSeq, added, nil
}

// Append writes an event through the log while holding the session lock,
// then enqueues ordered fan-out to the subscriber snapshot.
// ARCHITECTURAL DISCOVERY: the log append runs inside the critical section
// so seq assignment, lastSeq update and recipient snapshot are one atomic
// step - the correctness anchor of the catch-up protocol. On log failure the
// in-memory state is left untouched so a retry is safe.
func (s *Session) Append(ctx context.Context, log interfaces.EventLog, event *types.Event) (AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return AppendResult{}, interfaces.ErrSessionNotFound
	}

	seq, err := log.Append(ctx, s.id, event)
	if err != nil {
		return AppendResult{}, err
	}

	event.Seq = seq
	s.lastSeq = seq
	s.state = nextState(s.state, event)
	s.lastActivity = time.Now()

	s.deliverCh <- fanoutJob{
		recipients: s.ownership.Subscribers(),
		message: &types.EventMessage{
			Type:      types.ServerTypeEvent,
			SessionID: s.id,
			Event:     event,
		},
	}

	return AppendResult{Seq: seq, State: s.state}, nil
}

// Snapshot returns the client-facing view of the session for one viewer
func (s *Session) Snapshot(viewerID string) types.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.SessionInfo{
		ID:              s.id,
		Name:            s.name,
		State:           s.state,
		OwnerID:         s.ownership.OwnerID(),
		IsOwner:         s.ownership.IsOwner(viewerID),
		SubscriberCount: s.ownership.SubscriberCount(),
		CreatedAt:       s.createdAt,
		LastActivityAt:  s.lastActivity,
	}
}

// IsOwner reports whether the client currently owns the session
func (s *Session) IsOwner(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownership.IsOwner(clientID)
}

// IsSubscriber reports whether the client is attached to the session
func (s *Session) IsSubscriber(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownership.Contains(clientID)
}

// OwnerID returns the current owner's client id
func (s *Session) OwnerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownership.OwnerID()
}

// CurrentSeq returns the highest sequence number observed by the session
func (s *Session) CurrentSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq
}

// LifecycleState returns the current lifecycle state
func (s *Session) LifecycleState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// markClosed flags the session as removed and stops its delivery loop.
// Called by the registry with the session absent from (or being deleted
// from) the registry map, so no new subscriber can arrive afterwards.
func (s *Session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.deliverCh)
}

// nextState applies a domain event to the lifecycle state machine
func nextState(current string, event *types.Event) string {
	if types.IsTerminalState(current) {
		return current
	}
	switch event.Kind {
	case types.EventKindInput, types.EventKindOutput:
		return types.StateActive
	case types.EventKindStatus:
		if state, ok := event.Payload["state"].(string); ok && types.IsValidState(state) {
			return state
		}
	}
	return current
}
