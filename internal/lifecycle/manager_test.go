package lifecycle

import (
	"errors"
	"sync"
	"testing"

	"sessionhub/internal/session"
	"sessionhub/pkg/interfaces"
	"sessionhub/pkg/types"
)

// Mock ClientRegistry tracking followed sessions and recording deliveries
type mockClientRegistry struct {
	mu        sync.Mutex
	connected map[string]map[string]struct{}
	sent      map[string][]interface{}
}

func newMockClientRegistry(clientIDs ...string) *mockClientRegistry {
	m := &mockClientRegistry{
		connected: make(map[string]map[string]struct{}),
		sent:      make(map[string][]interface{}),
	}
	for _, id := range clientIDs {
		m.connected[id] = make(map[string]struct{})
	}
	return m
}

func (m *mockClientRegistry) Send(clientID string, message interface{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.connected[clientID]; !exists {
		return false
	}
	m.sent[clientID] = append(m.sent[clientID], message)
	return true
}

func (m *mockClientRegistry) FollowSession(clientID, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions, exists := m.connected[clientID]
	if !exists {
		return false
	}
	sessions[sessionID] = struct{}{}
	return true
}

func (m *mockClientRegistry) ForgetSession(clientID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessions, exists := m.connected[clientID]; exists {
		delete(sessions, sessionID)
	}
}

func (m *mockClientRegistry) Detach(clientID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions, exists := m.connected[clientID]
	if !exists {
		return nil
	}
	delete(m.connected, clientID)
	out := make([]string, 0, len(sessions))
	for id := range sessions {
		out = append(out, id)
	}
	return out
}

func (m *mockClientRegistry) sentTo(clientID string) []interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]interface{}, len(m.sent[clientID]))
	copy(out, m.sent[clientID])
	return out
}

func (m *mockClientRegistry) follows(clientID, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions, exists := m.connected[clientID]
	if !exists {
		return false
	}
	_, follows := sessions[sessionID]
	return follows
}

func newManagerWithClients(clientIDs ...string) (*Manager, *session.Registry, *mockClientRegistry) {
	clients := newMockClientRegistry(clientIDs...)
	registry := session.NewRegistry(clients)
	return NewManager(registry, clients), registry, clients
}

func TestManager_CreateSessionPairsBookkeeping(t *testing.T) {
	manager, registry, clients := newManagerWithClients("alice")

	s, err := manager.CreateSession("build", "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if !s.IsOwner("alice") {
		t.Error("Creator should own the session")
	}
	if !clients.follows("alice", s.ID()) {
		t.Error("Connection side should follow the new session")
	}
	if registry.Len() != 1 {
		t.Errorf("Expected 1 registered session, got %d", registry.Len())
	}
}

func TestManager_CreateSessionDisconnectedClient(t *testing.T) {
	manager, registry, _ := newManagerWithClients()

	_, err := manager.CreateSession("build", "ghost")
	if !errors.Is(err, interfaces.ErrClientDisconnected) {
		t.Fatalf("Expected ErrClientDisconnected, got %v", err)
	}
	if registry.Len() != 0 {
		t.Error("Session should be torn down when the creator vanished")
	}
}

func TestManager_SubscribeClientUnknownSession(t *testing.T) {
	manager, _, _ := newManagerWithClients("bob")

	_, _, err := manager.SubscribeClient("missing", "bob")
	if !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_SubscribeClientRollsBackWhenDisconnected(t *testing.T) {
	manager, _, clients := newManagerWithClients("alice")

	s, err := manager.CreateSession("", "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// bob was never connected, so FollowSession fails and the session-side
	// registration must be rolled back.
	_, _, err = manager.SubscribeClient(s.ID(), "bob")
	if !errors.Is(err, interfaces.ErrClientDisconnected) {
		t.Fatalf("Expected ErrClientDisconnected, got %v", err)
	}
	if s.IsSubscriber("bob") {
		t.Error("Failed subscribe should leave no session-side registration")
	}
	if clients.follows("bob", s.ID()) {
		t.Error("Failed subscribe should leave no connection-side registration")
	}
}

func TestManager_DisconnectTransfersOwnership(t *testing.T) {
	manager, _, clients := newManagerWithClients("alice", "bob")

	s, err := manager.CreateSession("", "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, _, err := manager.SubscribeClient(s.ID(), "bob"); err != nil {
		t.Fatalf("SubscribeClient failed: %v", err)
	}

	transfers, removed := manager.HandleClientDisconnect("alice")

	if len(transfers) != 1 || transfers[0].SessionID != s.ID() || transfers[0].NewOwnerID != "bob" {
		t.Fatalf("Expected transfer to bob, got %v", transfers)
	}
	if len(removed) != 0 {
		t.Errorf("Session with a remaining subscriber should survive, removed=%v", removed)
	}
	if !s.IsOwner("bob") {
		t.Error("bob should own the session after the transfer")
	}
	if s.IsSubscriber("alice") {
		t.Error("alice should be detached")
	}

	// bob is told about the transfer and that it now owns the session.
	var notified bool
	for _, raw := range clients.sentTo("bob") {
		if msg, ok := raw.(*types.OwnershipTransferred); ok {
			notified = true
			if msg.NewOwnerID != "bob" || !msg.YouAreOwner {
				t.Errorf("Unexpected transfer notification: %+v", msg)
			}
		}
	}
	if !notified {
		t.Error("bob should receive an ownership_transferred notification")
	}
}

func TestManager_TransferPicksEarliestSubscriber(t *testing.T) {
	manager, _, _ := newManagerWithClients("alice", "bob", "carol")

	s, err := manager.CreateSession("", "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, _, err := manager.SubscribeClient(s.ID(), "bob"); err != nil {
		t.Fatalf("SubscribeClient failed: %v", err)
	}
	if _, _, err := manager.SubscribeClient(s.ID(), "carol"); err != nil {
		t.Fatalf("SubscribeClient failed: %v", err)
	}

	manager.HandleClientDisconnect("alice")
	if !s.IsOwner("bob") {
		t.Errorf("Earliest remaining subscriber should win, owner=%q", s.OwnerID())
	}

	manager.HandleClientDisconnect("bob")
	if !s.IsOwner("carol") {
		t.Errorf("Expected carol as owner, got %q", s.OwnerID())
	}
}

func TestManager_SoleOwnerDisconnectRemovesSession(t *testing.T) {
	manager, registry, _ := newManagerWithClients("alice")

	s, err := manager.CreateSession("", "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	transfers, removed := manager.HandleClientDisconnect("alice")

	if len(transfers) != 0 {
		t.Errorf("No transfer expected, got %v", transfers)
	}
	if len(removed) != 1 || removed[0] != s.ID() {
		t.Fatalf("Expected session %s removed, got %v", s.ID(), removed)
	}
	if registry.Len() != 0 {
		t.Error("Registry should be empty")
	}

	// A client arriving after removal gets session-not-found, never a
	// resurrected session.
	if _, _, err := manager.SubscribeClient(s.ID(), "alice"); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_DisconnectIdempotent(t *testing.T) {
	manager, _, _ := newManagerWithClients("alice", "bob")

	s, err := manager.CreateSession("", "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, _, err := manager.SubscribeClient(s.ID(), "bob"); err != nil {
		t.Fatalf("SubscribeClient failed: %v", err)
	}

	manager.HandleClientDisconnect("alice")
	transfers, removed := manager.HandleClientDisconnect("alice")

	if len(transfers) != 0 || len(removed) != 0 {
		t.Errorf("Second disconnect should be a no-op, got transfers=%v removed=%v", transfers, removed)
	}
	if !s.IsOwner("bob") {
		t.Error("Ownership should be unaffected by the repeated disconnect")
	}
}

func TestManager_CleanupTotalInAnyDisconnectOrder(t *testing.T) {
	orders := [][]string{
		{"alice", "bob", "carol"},
		{"carol", "alice", "bob"},
		{"bob", "carol", "alice"},
	}

	for _, order := range orders {
		manager, registry, _ := newManagerWithClients("alice", "bob", "carol")

		s, err := manager.CreateSession("", "alice")
		if err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		for _, clientID := range []string{"bob", "carol"} {
			if _, _, err := manager.SubscribeClient(s.ID(), clientID); err != nil {
				t.Fatalf("SubscribeClient failed: %v", err)
			}
		}

		for _, clientID := range order {
			manager.HandleClientDisconnect(clientID)
		}

		if registry.Len() != 0 {
			t.Errorf("Order %v left %d sessions behind", order, registry.Len())
		}
	}
}

func TestManager_UnsubscribeTransfersAndCleansUp(t *testing.T) {
	manager, registry, _ := newManagerWithClients("alice", "bob")

	s, err := manager.CreateSession("", "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, _, err := manager.SubscribeClient(s.ID(), "bob"); err != nil {
		t.Fatalf("SubscribeClient failed: %v", err)
	}

	wasOwner, err := manager.UnsubscribeClient(s.ID(), "alice")
	if err != nil {
		t.Fatalf("UnsubscribeClient failed: %v", err)
	}
	if !wasOwner {
		t.Error("alice was the owner")
	}
	if !s.IsOwner("bob") {
		t.Error("Ownership should transfer on explicit unsubscribe")
	}

	// Last subscriber leaving removes the session.
	if _, err := manager.UnsubscribeClient(s.ID(), "bob"); err != nil {
		t.Fatalf("UnsubscribeClient failed: %v", err)
	}
	if registry.Len() != 0 {
		t.Error("Session should be removed when the last subscriber leaves")
	}
}

func TestManager_UnsubscribeIdempotent(t *testing.T) {
	manager, _, _ := newManagerWithClients("alice", "bob")

	s, err := manager.CreateSession("", "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// bob never subscribed; unsubscribing it must not disturb the session.
	if _, err := manager.UnsubscribeClient(s.ID(), "bob"); err != nil {
		t.Errorf("Unsubscribing a non-subscriber should be a no-op, got %v", err)
	}
	if !s.IsOwner("alice") {
		t.Error("Ownership should be untouched")
	}

	if _, err := manager.UnsubscribeClient("missing", "bob"); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound for unknown session, got %v", err)
	}
}

func TestManager_KillSessionOwnerOnly(t *testing.T) {
	manager, registry, clients := newManagerWithClients("alice", "bob")

	s, err := manager.CreateSession("", "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, _, err := manager.SubscribeClient(s.ID(), "bob"); err != nil {
		t.Fatalf("SubscribeClient failed: %v", err)
	}

	if err := manager.KillSession(s.ID(), "bob"); !errors.Is(err, interfaces.ErrPermissionDenied) {
		t.Fatalf("Non-owner kill should be denied, got %v", err)
	}
	if err := manager.KillSession(s.ID(), "alice"); err != nil {
		t.Fatalf("Owner kill failed: %v", err)
	}
	if registry.Len() != 0 {
		t.Error("Killed session should be removed")
	}
	if err := manager.KillSession(s.ID(), "alice"); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Killing a removed session should report not found, got %v", err)
	}

	// Both subscribers are told why the session went away.
	for _, clientID := range []string{"alice", "bob"} {
		var notified bool
		for _, raw := range clients.sentTo(clientID) {
			if msg, ok := raw.(*types.SessionRemoved); ok && msg.Reason == types.RemoveReasonKilled {
				notified = true
			}
		}
		if !notified {
			t.Errorf("%s should receive session_removed with reason killed", clientID)
		}
	}
}

func TestManager_FinishSessionNotifiesSubscribers(t *testing.T) {
	manager, registry, clients := newManagerWithClients("alice", "bob")

	s, err := manager.CreateSession("", "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, _, err := manager.SubscribeClient(s.ID(), "bob"); err != nil {
		t.Fatalf("SubscribeClient failed: %v", err)
	}

	manager.FinishSession(s.ID())

	if registry.Len() != 0 {
		t.Error("Finished session should be removed")
	}
	for _, clientID := range []string{"alice", "bob"} {
		var notified bool
		for _, raw := range clients.sentTo(clientID) {
			if msg, ok := raw.(*types.SessionRemoved); ok && msg.Reason == types.RemoveReasonSessionFinished {
				notified = true
			}
		}
		if !notified {
			t.Errorf("%s should receive session_removed with reason session_finished", clientID)
		}
	}

	// Finishing again is a no-op.
	manager.FinishSession(s.ID())
}

func TestManager_DisconnectAcrossMultipleSessions(t *testing.T) {
	manager, registry, _ := newManagerWithClients("alice", "bob")

	s1, err := manager.CreateSession("one", "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	s2, err := manager.CreateSession("two", "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, _, err := manager.SubscribeClient(s1.ID(), "bob"); err != nil {
		t.Fatalf("SubscribeClient failed: %v", err)
	}

	transfers, removed := manager.HandleClientDisconnect("alice")

	if len(transfers) != 1 || transfers[0].SessionID != s1.ID() {
		t.Errorf("Expected one transfer in %s, got %v", s1.ID(), transfers)
	}
	if len(removed) != 1 || removed[0] != s2.ID() {
		t.Errorf("Expected %s removed, got %v", s2.ID(), removed)
	}
	if registry.Len() != 1 {
		t.Errorf("Expected 1 surviving session, got %d", registry.Len())
	}
}
