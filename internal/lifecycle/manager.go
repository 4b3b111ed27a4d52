package lifecycle

import (
	"log"

	"sessionhub/internal/session"
	"sessionhub/pkg/interfaces"
	"sessionhub/pkg/types"
)

// Manager translates client disconnects and explicit unsubscribes into
// ownership mutation and registry cleanup. It is the only component that
// mutates ownership across sessions.
type Manager struct {
	registry *session.Registry
	clients  interfaces.ClientRegistry
}

// Transfer records one ownership hand-off performed during disconnect handling
type Transfer struct {
	SessionID  string
	NewOwnerID string
}

// NewManager creates a new lifecycle manager
func NewManager(registry *session.Registry, clients interfaces.ClientRegistry) *Manager {
	return &Manager{
		registry: registry,
		clients:  clients,
	}
}

// CreateSession creates a session owned by the requesting client and pairs
// the connection-side bookkeeping. If the client vanished mid-create the
// session is torn down again so no ownerless session leaks into the registry.
func (m *Manager) CreateSession(name, ownerID string) (*session.Session, error) {
	s := m.registry.Create(name, ownerID)
	if !m.clients.FollowSession(ownerID, s.ID()) {
		m.registry.Remove(s.ID())
		return nil, interfaces.ErrClientDisconnected
	}
	log.Printf("Created session: id=%s name=%q owner=%s", s.ID(), name, ownerID)
	return s, nil
}

// SubscribeClient adds the client as a subscriber (not owner) of an existing
// session. Fails with ErrSessionNotFound if the session does not exist.
// Reports whether the client was newly added along with the sequence number
// captured atomically with the registration.
func (m *Manager) SubscribeClient(sessionID, clientID string) (currentSeq uint64, added bool, err error) {
	s, exists := m.registry.Get(sessionID)
	if !exists {
		return 0, false, interfaces.ErrSessionNotFound
	}

	currentSeq, added, err = s.Subscribe(clientID)
	if err != nil {
		return 0, false, err
	}

	if !m.clients.FollowSession(clientID, sessionID) {
		// Client dropped between the socket read and here. Roll the
		// session-side registration back so the two sets stay consistent.
		if added {
			m.detachFromSession(sessionID, s, clientID, false)
		}
		return 0, false, interfaces.ErrClientDisconnected
	}
	return currentSeq, added, nil
}

// RollbackSubscribe undoes a registration made by SubscribeClient, used when
// a later step of the subscribe protocol fails and must leave no partial
// state behind.
func (m *Manager) RollbackSubscribe(sessionID, clientID string) {
	s, exists := m.registry.Get(sessionID)
	if exists {
		m.detachFromSession(sessionID, s, clientID, false)
	}
	m.clients.ForgetSession(clientID, sessionID)
}

// UnsubscribeClient is the explicit unsubscribe path (user closes a tab
// gracefully). Same ownership-transfer-or-cleanup behavior as a disconnect.
// Idempotent: unsubscribing a client that is not attached is a no-op.
func (m *Manager) UnsubscribeClient(sessionID, clientID string) (wasOwner bool, err error) {
	s, exists := m.registry.Get(sessionID)
	if !exists {
		return false, interfaces.ErrSessionNotFound
	}
	m.clients.ForgetSession(clientID, sessionID)
	wasOwner, _ = m.detachFromSession(sessionID, s, clientID, false)
	return wasOwner, nil
}

// HandleClientDisconnect processes a client disconnect across every session
// the client was attached to. For each one: remove the client, transfer
// ownership to the earliest remaining subscriber if the client owned it, and
// remove the session if no subscriber remains.
// FUNCTIONAL DISCOVERY: the connection entry is detached first, so a second
// invocation (close racing an error path) sees no sessions and is a no-op
func (m *Manager) HandleClientDisconnect(clientID string) (transfers []Transfer, removed []string) {
	sessionIDs := m.clients.Detach(clientID)
	for _, sessionID := range sessionIDs {
		s, exists := m.registry.Get(sessionID)
		if !exists {
			continue
		}
		_, transferredTo := m.detachFromSession(sessionID, s, clientID, true)
		if transferredTo != "" {
			transfers = append(transfers, Transfer{SessionID: sessionID, NewOwnerID: transferredTo})
		}
		if m.registry.RemoveIfEmpty(sessionID) {
			// No subscriber is left to notify; the removal is recorded for
			// history and telemetry instead.
			log.Printf("Session removed: id=%s reason=%s", sessionID, types.RemoveReasonOwnerDisconnected)
			removed = append(removed, sessionID)
		}
	}
	return transfers, removed
}

// detachFromSession removes one client from one session under that session's
// critical section, transferring ownership if needed, then notifies remaining
// subscribers outside the lock. Returns whether the removed client owned the
// session and the id of the new owner if a transfer happened.
func (m *Manager) detachFromSession(sessionID string, s *session.Session, clientID string, disconnect bool) (wasOwner bool, transferredTo string) {
	var remaining []string
	var wasMember bool

	err := s.Update(func(o *session.Ownership) {
		if !o.Contains(clientID) {
			return
		}
		wasMember = true
		wasOwner = o.RemoveSubscriber(clientID)
		if wasOwner && !o.ShouldCleanup() {
			next, ok := o.PickNextOwner()
			if ok && o.TransferTo(next) {
				transferredTo = next
			}
		}
		remaining = o.Subscribers()
	})
	if err != nil {
		// Session was removed concurrently; nothing left to mutate.
		return false, ""
	}

	if transferredTo != "" {
		// Recipient list was computed under the lock; delivery happens here,
		// after release, so a slow subscriber never stalls the session.
		for _, recipientID := range remaining {
			m.clients.Send(recipientID, &types.OwnershipTransferred{
				Type:        types.ServerTypeOwnershipTransferred,
				SessionID:   sessionID,
				NewOwnerID:  transferredTo,
				YouAreOwner: recipientID == transferredTo,
			})
		}
		log.Printf("Ownership transferred: session=%s from=%s to=%s", sessionID, clientID, transferredTo)
	}

	if !disconnect && wasMember && len(remaining) == 0 {
		// Explicit unsubscribe emptied the session; disconnect handling does
		// this in its own loop.
		if m.registry.RemoveIfEmpty(sessionID) {
			log.Printf("Session removed: id=%s reason=last_subscriber_left", sessionID)
		}
	}
	return wasOwner, transferredTo
}

// KillSession removes a session on request. Owner-only: any other requester,
// subscriber or stranger, gets ErrPermissionDenied. Current subscribers are
// notified before the removal takes effect.
func (m *Manager) KillSession(sessionID, requesterID string) error {
	s, exists := m.registry.Get(sessionID)
	if !exists {
		return interfaces.ErrSessionNotFound
	}

	var recipients []string
	var denied bool
	err := s.Update(func(o *session.Ownership) {
		if !o.IsOwner(requesterID) {
			denied = true
			return
		}
		recipients = o.Subscribers()
	})
	if err != nil {
		return interfaces.ErrSessionNotFound
	}
	if denied {
		return interfaces.ErrPermissionDenied
	}

	m.removeAndNotify(sessionID, recipients, types.RemoveReasonKilled)
	return nil
}

// FinishSession removes a session whose lifecycle state reached a terminal
// value, notifying all subscribers with reason session_finished.
func (m *Manager) FinishSession(sessionID string) {
	s, exists := m.registry.Get(sessionID)
	if !exists {
		return
	}

	var recipients []string
	if err := s.Update(func(o *session.Ownership) {
		recipients = o.Subscribers()
	}); err != nil {
		return
	}

	m.removeAndNotify(sessionID, recipients, types.RemoveReasonSessionFinished)
}

// removeAndNotify broadcasts session_removed, then removes the session and
// unpairs every subscriber's connection-side set
func (m *Manager) removeAndNotify(sessionID string, recipients []string, reason string) {
	for _, recipientID := range recipients {
		m.clients.Send(recipientID, &types.SessionRemoved{
			Type:      types.ServerTypeSessionRemoved,
			SessionID: sessionID,
			Reason:    reason,
		})
	}

	if m.registry.Remove(sessionID) {
		log.Printf("Session removed: id=%s reason=%s", sessionID, reason)
	}
	for _, recipientID := range recipients {
		m.clients.ForgetSession(recipientID, sessionID)
	}
}
