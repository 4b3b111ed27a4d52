package catchup

import (
	"context"
	"time"

	"sessionhub/internal/lifecycle"
	"sessionhub/internal/session"
	"sessionhub/pkg/interfaces"
	"sessionhub/pkg/types"
)

// Coordinator implements the late-joiner protocol for one (client, session)
// pair: atomically subscribing to the live stream while backfilling history
// in bounded pages, with no gap and no duplicate between the two.
type Coordinator struct {
	registry  *session.Registry
	lifecycle *lifecycle.Manager
	log       interfaces.EventLog

	pageSize    int
	readTimeout time.Duration
}

// NewCoordinator creates a catch-up coordinator. pageSize bounds the history
// slice of a subscribe ack; individual history requests carry their own
// limit, clamped server-side.
func NewCoordinator(registry *session.Registry, lm *lifecycle.Manager, log interfaces.EventLog, pageSize int, readTimeout time.Duration) *Coordinator {
	if pageSize <= 0 {
		pageSize = types.DefaultHistoryLimit
	}
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	return &Coordinator{
		registry:    registry,
		lifecycle:   lm,
		log:         log,
		pageSize:    pageSize,
		readTimeout: readTimeout,
	}
}

// Subscribe registers the client as a live subscriber and, when catch-up is
// requested, backfills the most recent page of history.
//
// The subscriber registration and the current_seq capture happen inside one
// session critical section (Session.Subscribe), so any event appended after
// that instant is necessarily delivered live with seq > current_seq, and the
// backfill reads only seq <= current_seq. Events at or below the captured
// seq are immutable, which is why the log read itself can run after the
// lock is released.
func (c *Coordinator) Subscribe(ctx context.Context, clientID, sessionID string, catchUp bool) (*types.SubscribeAck, error) {
	currentSeq, added, err := c.lifecycle.SubscribeClient(sessionID, clientID)
	if err != nil {
		return nil, err
	}

	ack := &types.SubscribeAck{
		Type:       types.ServerTypeSubscribeAck,
		SessionID:  sessionID,
		CurrentSeq: currentSeq,
		History:    []*types.Event{},
	}

	// FUNCTIONAL DISCOVERY: current_seq is reported even without catch-up so
	// the client can request history later if it changes its mind
	if !catchUp || currentSeq == 0 {
		return ack, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	events, hasMore, err := c.log.ReadBefore(readCtx, sessionID, currentSeq+1, c.pageSize)
	if err != nil {
		// Leave no partial state behind: a failed backfill unwinds the
		// registration it was paired with, so a retry starts clean.
		if added {
			c.lifecycle.RollbackSubscribe(sessionID, clientID)
		}
		return nil, err
	}

	ack.History = events
	ack.HasMore = hasMore
	return ack, nil
}

// History serves one earlier page of a session's event log, reading strictly
// events with seq < beforeSeq. Requires an active subscription so backfill
// cursors cannot outlive the attachment they belong to.
//
// Paging below the oldest retained event, or repeating a request for an
// already-exhausted range, returns an empty page with has_more=false rather
// than an error - the client's own seq accounting remains consistent.
func (c *Coordinator) History(ctx context.Context, clientID, sessionID string, beforeSeq uint64, limit int) (*types.HistoryPage, error) {
	s, exists := c.registry.Get(sessionID)
	if !exists {
		return nil, interfaces.ErrSessionNotFound
	}
	if !s.IsSubscriber(clientID) {
		return nil, interfaces.ErrNotSubscribed
	}

	page := &types.HistoryPage{
		Type:      types.ServerTypeHistoryPage,
		SessionID: sessionID,
		Events:    []*types.Event{},
	}
	if beforeSeq == 0 {
		return page, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	events, hasMore, err := c.log.ReadBefore(readCtx, sessionID, beforeSeq, types.ClampHistoryLimit(limit))
	if err != nil {
		return nil, err
	}

	page.Events = events
	page.HasMore = hasMore
	if len(events) > 0 {
		page.OldestSeq = events[0].Seq
	}
	return page, nil
}
