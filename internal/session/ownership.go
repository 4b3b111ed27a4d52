package session

import (
	"time"
)

// Ownership is the per-session record of the owning client and the attached
// subscribers. Pure data and transition logic, no I/O and no locking - callers
// hold the owning session's lock.
// ARCHITECTURAL DISCOVERY: subscriber insertion order is tracked explicitly so
// next-owner selection is deterministic (earliest remaining subscriber wins)
type Ownership struct {
	ownerID    string
	ownedSince time.Time
	order      []string
	members    map[string]struct{}
}

// NewOwnership creates ownership with the owner as sole subscriber
func NewOwnership(ownerID string) *Ownership {
	return &Ownership{
		ownerID:    ownerID,
		ownedSince: time.Now(),
		order:      []string{ownerID},
		members:    map[string]struct{}{ownerID: {}},
	}
}

// AddSubscriber inserts a client into the subscriber set. Idempotent; reports
// whether the client was newly added.
func (o *Ownership) AddSubscriber(clientID string) bool {
	if _, exists := o.members[clientID]; exists {
		return false
	}
	o.members[clientID] = struct{}{}
	o.order = append(o.order, clientID)
	return true
}

// RemoveSubscriber removes a client from the set and reports whether the
// removed client was the current owner. It does not transfer or clean up -
// that is the lifecycle manager's responsibility.
func (o *Ownership) RemoveSubscriber(clientID string) bool {
	if _, exists := o.members[clientID]; !exists {
		return false
	}
	delete(o.members, clientID)
	for i, id := range o.order {
		if id == clientID {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}

	wasOwner := o.ownerID == clientID
	if wasOwner {
		// FUNCTIONAL DISCOVERY: owner cleared immediately so the set never
		// names an owner outside the subscriber set, even mid-transfer
		o.ownerID = ""
	}
	return wasOwner
}

// PickNextOwner returns the earliest remaining subscriber, if any.
// Deterministic for a given subscriber set so transfer tests are reproducible.
func (o *Ownership) PickNextOwner() (string, bool) {
	if len(o.order) == 0 {
		return "", false
	}
	return o.order[0], true
}

// TransferTo reassigns ownership. Succeeds only if the candidate is already a
// subscriber - there is no forced attach-and-own.
func (o *Ownership) TransferTo(candidateID string) bool {
	if _, exists := o.members[candidateID]; !exists {
		return false
	}
	o.ownerID = candidateID
	o.ownedSince = time.Now()
	return true
}

// ShouldCleanup reports whether no subscriber remains
func (o *Ownership) ShouldCleanup() bool {
	return len(o.members) == 0
}

// IsOwner reports whether the client is the current owner
func (o *Ownership) IsOwner(clientID string) bool {
	return o.ownerID != "" && o.ownerID == clientID
}

// Contains reports whether the client is a subscriber
func (o *Ownership) Contains(clientID string) bool {
	_, exists := o.members[clientID]
	return exists
}

// OwnerID returns the current owner, empty if none
func (o *Ownership) OwnerID() string {
	return o.ownerID
}

// OwnedSince returns the time of the last transfer
func (o *Ownership) OwnedSince() time.Time {
	return o.ownedSince
}

// Subscribers returns the subscriber ids in insertion order
func (o *Ownership) Subscribers() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// SubscriberCount returns the number of attached subscribers
func (o *Ownership) SubscriberCount() int {
	return len(o.members)
}
