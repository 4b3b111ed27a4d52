package session

import (
	"testing"
)

func TestOwnership_NewOwnershipInitialState(t *testing.T) {
	o := NewOwnership("alice")

	if !o.IsOwner("alice") {
		t.Error("Creator should be the owner")
	}
	if !o.Contains("alice") {
		t.Error("Owner should be a subscriber")
	}
	if o.SubscriberCount() != 1 {
		t.Errorf("Expected 1 subscriber, got %d", o.SubscriberCount())
	}
	if o.OwnedSince().IsZero() {
		t.Error("OwnedSince should be set")
	}
}

func TestOwnership_AddSubscriberIdempotent(t *testing.T) {
	o := NewOwnership("alice")

	if !o.AddSubscriber("bob") {
		t.Error("First add should report newly added")
	}
	if o.AddSubscriber("bob") {
		t.Error("Second add should report already present")
	}
	if o.SubscriberCount() != 2 {
		t.Errorf("Expected 2 subscribers, got %d", o.SubscriberCount())
	}

	// Re-adding must not disturb insertion order
	subs := o.Subscribers()
	if len(subs) != 2 || subs[0] != "alice" || subs[1] != "bob" {
		t.Errorf("Expected [alice bob], got %v", subs)
	}
}

func TestOwnership_OwnerAlwaysSubscriber(t *testing.T) {
	o := NewOwnership("alice")
	o.AddSubscriber("bob")
	o.AddSubscriber("carol")

	// The owner must be a member of the subscriber set at every step.
	if !o.Contains(o.OwnerID()) {
		t.Error("Owner must be in the subscriber set")
	}

	o.RemoveSubscriber("alice")
	if o.OwnerID() != "" {
		t.Errorf("Owner should be cleared on removal, got %q", o.OwnerID())
	}

	o.TransferTo("bob")
	if o.OwnerID() != "bob" {
		t.Errorf("Expected owner bob, got %q", o.OwnerID())
	}
	if !o.Contains(o.OwnerID()) {
		t.Error("Owner must be in the subscriber set after transfer")
	}
}

func TestOwnership_RemoveSubscriberReportsOwner(t *testing.T) {
	o := NewOwnership("alice")
	o.AddSubscriber("bob")

	if o.RemoveSubscriber("bob") {
		t.Error("Removing a non-owner should report false")
	}
	if !o.RemoveSubscriber("alice") {
		t.Error("Removing the owner should report true")
	}
	if o.RemoveSubscriber("alice") {
		t.Error("Removing an absent client should report false")
	}
	if !o.ShouldCleanup() {
		t.Error("Empty set should require cleanup")
	}
}

func TestOwnership_PickNextOwnerDeterministic(t *testing.T) {
	o := NewOwnership("alice")
	o.AddSubscriber("bob")
	o.AddSubscriber("carol")
	o.AddSubscriber("dave")

	o.RemoveSubscriber("alice")

	// Earliest remaining subscriber wins, independent of map iteration order.
	next, ok := o.PickNextOwner()
	if !ok || next != "bob" {
		t.Errorf("Expected bob as next owner, got %q (ok=%v)", next, ok)
	}

	o.RemoveSubscriber("bob")
	next, ok = o.PickNextOwner()
	if !ok || next != "carol" {
		t.Errorf("Expected carol as next owner, got %q (ok=%v)", next, ok)
	}
}

func TestOwnership_PickNextOwnerEmpty(t *testing.T) {
	o := NewOwnership("alice")
	o.RemoveSubscriber("alice")

	if _, ok := o.PickNextOwner(); ok {
		t.Error("Empty set should have no next owner")
	}
}

func TestOwnership_TransferToRequiresMembership(t *testing.T) {
	o := NewOwnership("alice")
	o.AddSubscriber("bob")

	if o.TransferTo("stranger") {
		t.Error("Transfer to a non-subscriber should fail")
	}
	if !o.IsOwner("alice") {
		t.Error("Failed transfer should not change the owner")
	}

	before := o.OwnedSince()
	if !o.TransferTo("bob") {
		t.Error("Transfer to a subscriber should succeed")
	}
	if !o.IsOwner("bob") {
		t.Error("bob should own the session after transfer")
	}
	if o.IsOwner("alice") {
		t.Error("alice should no longer be the owner")
	}
	if o.OwnedSince().Before(before) {
		t.Error("OwnedSince should be refreshed on transfer")
	}
}

func TestOwnership_SubscribersReturnsCopy(t *testing.T) {
	o := NewOwnership("alice")
	o.AddSubscriber("bob")

	subs := o.Subscribers()
	subs[0] = "mutated"

	if got := o.Subscribers()[0]; got != "alice" {
		t.Errorf("Internal order leaked: got %q", got)
	}
}
