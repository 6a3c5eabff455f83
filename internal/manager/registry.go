package manager

import "sync"

type syncKey struct {
	address string
	lobbyID string
}

// subscriptionRegistry tracks active valuation-sync subscriptions per
// player per lobby. It exists only to make start/stop idempotent; the
// cancel functions it holds own the actual subscription lifecycle.
type subscriptionRegistry struct {
	mu      sync.Mutex
	cancels map[syncKey]func()
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{cancels: make(map[syncKey]func())}
}

// add registers a cancel function unless the key is already active.
// Returns false without storing when a subscription already exists.
func (r *subscriptionRegistry) add(key syncKey, cancel func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cancels[key]; exists {
		return false
	}
	r.cancels[key] = cancel
	return true
}

// remove deletes and returns the cancel function for a key, if present.
func (r *subscriptionRegistry) remove(key syncKey) (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, exists := r.cancels[key]
	if exists {
		delete(r.cancels, key)
	}
	return cancel, exists
}

func (r *subscriptionRegistry) active(key syncKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.cancels[key]
	return exists
}

// activeForAddress reports whether any lobby has a live subscription for
// the address.
func (r *subscriptionRegistry) activeForAddress(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.cancels {
		if key.address == address {
			return true
		}
	}
	return false
}

// drain removes and returns every registered cancel function.
func (r *subscriptionRegistry) drain() []func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancels := make([]func(), 0, len(r.cancels))
	for key, cancel := range r.cancels {
		cancels = append(cancels, cancel)
		delete(r.cancels, key)
	}
	return cancels
}
