package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sessionhub/internal/eventlog"
	"sessionhub/pkg/interfaces"
	"sessionhub/pkg/types"
)

// Mock ClientRegistry recording deliveries for testing
type mockClientRegistry struct {
	mu       sync.Mutex
	sent     map[string][]interface{}
	detached map[string]bool
}

func newMockClientRegistry() *mockClientRegistry {
	return &mockClientRegistry{
		sent:     make(map[string][]interface{}),
		detached: make(map[string]bool),
	}
}

func (m *mockClientRegistry) Send(clientID string, message interface{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detached[clientID] {
		return false
	}
	m.sent[clientID] = append(m.sent[clientID], message)
	return true
}

func (m *mockClientRegistry) FollowSession(clientID, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.detached[clientID]
}

func (m *mockClientRegistry) ForgetSession(clientID, sessionID string) {}

func (m *mockClientRegistry) Detach(clientID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detached[clientID] = true
	return nil
}

func (m *mockClientRegistry) sentTo(clientID string) []interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]interface{}, len(m.sent[clientID]))
	copy(out, m.sent[clientID])
	return out
}

// waitFor polls until the condition holds or the deadline passes.
// Delivery runs on a per-session goroutine, so tests observe it eventually.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}

func newEvent(kind string, payload map[string]interface{}) *types.Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &types.Event{
		ID:        "evt",
		Kind:      kind,
		From:      "alice",
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

func TestRegistry_CreateAssignsOwnership(t *testing.T) {
	clients := newMockClientRegistry()
	registry := NewRegistry(clients)

	s := registry.Create("build", "alice")

	if s.ID() == "" {
		t.Error("Session ID should be generated")
	}
	if s.Name() != "build" {
		t.Errorf("Expected name 'build', got %q", s.Name())
	}
	if !s.IsOwner("alice") {
		t.Error("Creator should own the session")
	}
	if s.LifecycleState() != types.StateIdle {
		t.Errorf("Expected idle state, got %q", s.LifecycleState())
	}

	got, exists := registry.Get(s.ID())
	if !exists || got != s {
		t.Error("Created session should be retrievable")
	}
	if registry.Len() != 1 {
		t.Errorf("Expected 1 session, got %d", registry.Len())
	}
}

func TestRegistry_GetUnknownSession(t *testing.T) {
	registry := NewRegistry(newMockClientRegistry())

	if _, exists := registry.Get("missing"); exists {
		t.Error("Unknown session should not be found")
	}
}

func TestSession_SubscribeCapturesCurrentSeq(t *testing.T) {
	clients := newMockClientRegistry()
	registry := NewRegistry(clients)
	log := eventlog.NewMemoryLog()
	s := registry.Create("", "alice")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, log, newEvent(types.EventKindOutput, nil)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	currentSeq, added, err := s.Subscribe("bob")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if !added {
		t.Error("bob should be newly added")
	}
	if currentSeq != 3 {
		t.Errorf("Expected current seq 3, got %d", currentSeq)
	}

	// Idempotent: re-subscribing reports not-added with the same snapshot semantics.
	_, added, err = s.Subscribe("bob")
	if err != nil {
		t.Fatalf("Re-subscribe failed: %v", err)
	}
	if added {
		t.Error("Re-subscribe should report already present")
	}
}

func TestSession_AppendAssignsSequentialSeqs(t *testing.T) {
	clients := newMockClientRegistry()
	registry := NewRegistry(clients)
	log := eventlog.NewMemoryLog()
	s := registry.Create("", "alice")

	ctx := context.Background()
	for want := uint64(1); want <= 5; want++ {
		res, err := s.Append(ctx, log, newEvent(types.EventKindOutput, nil))
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if res.Seq != want {
			t.Errorf("Expected seq %d, got %d", want, res.Seq)
		}
	}
	if s.CurrentSeq() != 5 {
		t.Errorf("Expected current seq 5, got %d", s.CurrentSeq())
	}
}

func TestSession_AppendFansOutToSubscribers(t *testing.T) {
	clients := newMockClientRegistry()
	registry := NewRegistry(clients)
	log := eventlog.NewMemoryLog()
	s := registry.Create("", "alice")
	if _, _, err := s.Subscribe("bob"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if _, err := s.Append(context.Background(), log, newEvent(types.EventKindOutput, nil)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	for _, clientID := range []string{"alice", "bob"} {
		id := clientID
		waitFor(t, time.Second, func() bool {
			return len(clients.sentTo(id)) == 1
		})
		msg, ok := clients.sentTo(id)[0].(*types.EventMessage)
		if !ok {
			t.Fatalf("Expected EventMessage, got %T", clients.sentTo(id)[0])
		}
		if msg.Event.Seq != 1 {
			t.Errorf("Expected seq 1, got %d", msg.Event.Seq)
		}
		if msg.SessionID != s.ID() {
			t.Errorf("Expected session %s, got %s", s.ID(), msg.SessionID)
		}
	}
}

func TestSession_DeliveryPreservesAppendOrder(t *testing.T) {
	clients := newMockClientRegistry()
	registry := NewRegistry(clients)
	log := eventlog.NewMemoryLog()
	s := registry.Create("", "alice")
	if _, _, err := s.Subscribe("bob"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Concurrent publishers: seqs are assigned under the session lock and
	// delivered by a single goroutine, so every subscriber sees log order.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := s.Append(context.Background(), log, newEvent(types.EventKindOutput, nil)); err != nil {
					t.Errorf("Append failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	waitFor(t, 2*time.Second, func() bool {
		return len(clients.sentTo("bob")) == 40
	})

	var lastSeq uint64
	for i, raw := range clients.sentTo("bob") {
		msg := raw.(*types.EventMessage)
		if msg.Event.Seq != lastSeq+1 {
			t.Fatalf("Delivery %d out of order: seq %d after %d", i, msg.Event.Seq, lastSeq)
		}
		lastSeq = msg.Event.Seq
	}
}

func TestSession_StateTransitions(t *testing.T) {
	clients := newMockClientRegistry()
	registry := NewRegistry(clients)
	log := eventlog.NewMemoryLog()
	s := registry.Create("", "alice")
	ctx := context.Background()

	res, err := s.Append(ctx, log, newEvent(types.EventKindOutput, nil))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if res.State != types.StateActive {
		t.Errorf("Output should activate the session, got %q", res.State)
	}

	res, err = s.Append(ctx, log, newEvent(types.EventKindStatus, map[string]interface{}{"state": types.StateAwaitingInput}))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if res.State != types.StateAwaitingInput {
		t.Errorf("Status event should set state, got %q", res.State)
	}

	res, err = s.Append(ctx, log, newEvent(types.EventKindStatus, map[string]interface{}{"state": types.StateFinished}))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if res.State != types.StateFinished {
		t.Errorf("Expected finished, got %q", res.State)
	}

	// Terminal states are sticky.
	res, err = s.Append(ctx, log, newEvent(types.EventKindOutput, nil))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if res.State != types.StateFinished {
		t.Errorf("Terminal state should not change, got %q", res.State)
	}
}

func TestSession_AppendFailureLeavesStateUntouched(t *testing.T) {
	clients := newMockClientRegistry()
	registry := NewRegistry(clients)
	s := registry.Create("", "alice")

	failing := &failingLog{}
	if _, err := s.Append(context.Background(), failing, newEvent(types.EventKindOutput, nil)); err == nil {
		t.Fatal("Append through a failing log should error")
	}
	if s.CurrentSeq() != 0 {
		t.Errorf("Failed append should not advance seq, got %d", s.CurrentSeq())
	}
	if s.LifecycleState() != types.StateIdle {
		t.Errorf("Failed append should not change state, got %q", s.LifecycleState())
	}
}

// failingLog errors every operation, for failure-path tests
type failingLog struct{}

func (f *failingLog) Append(ctx context.Context, sessionID string, event *types.Event) (uint64, error) {
	return 0, interfaces.ErrLogUnavailable
}

func (f *failingLog) Read(ctx context.Context, sessionID string, fromSeq uint64, limit int) ([]*types.Event, bool, error) {
	return nil, false, interfaces.ErrLogUnavailable
}

func (f *failingLog) ReadBefore(ctx context.Context, sessionID string, beforeSeq uint64, limit int) ([]*types.Event, bool, error) {
	return nil, false, interfaces.ErrLogUnavailable
}

func (f *failingLog) LastSeq(ctx context.Context, sessionID string) (uint64, error) {
	return 0, interfaces.ErrLogUnavailable
}

func (f *failingLog) HealthCheck(ctx context.Context) error { return interfaces.ErrLogUnavailable }

func (f *failingLog) Close() error { return nil }

func TestRegistry_RemoveIfEmptyKeepsPopulatedSessions(t *testing.T) {
	clients := newMockClientRegistry()
	registry := NewRegistry(clients)
	s := registry.Create("", "alice")

	if registry.RemoveIfEmpty(s.ID()) {
		t.Error("Session with subscribers should not be removed")
	}
	if _, exists := registry.Get(s.ID()); !exists {
		t.Error("Session should still be registered")
	}
}

func TestRegistry_RemoveIfEmptyRemovesEmptySessions(t *testing.T) {
	clients := newMockClientRegistry()
	registry := NewRegistry(clients)
	s := registry.Create("", "alice")

	if err := s.Update(func(o *Ownership) { o.RemoveSubscriber("alice") }); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if !registry.RemoveIfEmpty(s.ID()) {
		t.Error("Empty session should be removed")
	}
	if _, exists := registry.Get(s.ID()); exists {
		t.Error("Removed session should not be registered")
	}
	if registry.RemoveIfEmpty(s.ID()) {
		t.Error("Second removal should report false")
	}
}

func TestRegistry_RemovedSessionRejectsSubscribe(t *testing.T) {
	clients := newMockClientRegistry()
	registry := NewRegistry(clients)
	s := registry.Create("", "alice")

	if err := s.Update(func(o *Ownership) { o.RemoveSubscriber("alice") }); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	registry.RemoveIfEmpty(s.ID())

	// A caller holding a stale pointer cannot resurrect the session.
	if _, _, err := s.Subscribe("bob"); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if err := s.Update(func(o *Ownership) {}); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound from Update, got %v", err)
	}
	if _, err := s.Append(context.Background(), eventlog.NewMemoryLog(), newEvent(types.EventKindOutput, nil)); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound from Append, got %v", err)
	}
}

func TestRegistry_RemoveUnconditional(t *testing.T) {
	clients := newMockClientRegistry()
	registry := NewRegistry(clients)
	s := registry.Create("", "alice")

	if !registry.Remove(s.ID()) {
		t.Error("Remove should report the session was registered")
	}
	if registry.Remove(s.ID()) {
		t.Error("Second remove should report false")
	}
	if _, _, err := s.Subscribe("bob"); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound after removal, got %v", err)
	}
}

func TestSession_SnapshotViews(t *testing.T) {
	clients := newMockClientRegistry()
	registry := NewRegistry(clients)
	s := registry.Create("demo", "alice")
	if _, _, err := s.Subscribe("bob"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ownerView := s.Snapshot("alice")
	if !ownerView.IsOwner {
		t.Error("Owner view should report is_owner")
	}
	if ownerView.SubscriberCount != 2 {
		t.Errorf("Expected 2 subscribers, got %d", ownerView.SubscriberCount)
	}

	otherView := s.Snapshot("bob")
	if otherView.IsOwner {
		t.Error("Subscriber view should not report is_owner")
	}
	if otherView.OwnerID != "alice" {
		t.Errorf("Expected owner alice, got %q", otherView.OwnerID)
	}
}
