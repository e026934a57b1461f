package subbus

import (
	"reflect"
	"sync"

	"github.com/dshills/subbus/internal/identity"
)

// registry stores subscriptions by exact event type, in insertion order.
// It is safe for concurrent use. Every mutation and every match first purges
// subscriptions whose reference identity has been reclaimed.
type registry struct {
	mu     sync.RWMutex
	subs   map[reflect.Type][]*subscription
	byID   map[string]*subscription
	purged uint64

	// onPurge, when set, observes the number of subscriptions dropped by
	// each purge that removed something.
	onPurge func(n int)
}

// newRegistry creates a new subscription registry.
func newRegistry() *registry {
	return &registry{
		subs: make(map[reflect.Type][]*subscription),
		byID: make(map[string]*subscription),
	}
}

// Add appends a subscription. With replace, subscriptions with the same
// identity and event type are removed first, so exactly one remains.
// It returns the number of subscriptions replaced.
func (r *registry) Add(sub *subscription, replace bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purgeLocked()

	replaced := 0
	if replace {
		replaced = r.removeLocked(func(s *subscription) bool {
			return s.matches(sub.key, sub.eventType)
		})
	}

	r.subs[sub.eventType] = append(r.subs[sub.eventType], sub)
	r.byID[sub.id] = sub
	return replaced
}

// Remove removes a subscription by ID.
func (r *registry) Remove(subID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purgeLocked()

	if _, ok := r.byID[subID]; !ok {
		return false
	}
	return r.removeLocked(func(s *subscription) bool { return s.id == subID }) > 0
}

// RemoveByIdentityAndType removes the subscriptions of key for eventType.
func (r *registry) RemoveByIdentityAndType(key identity.Key, eventType reflect.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purgeLocked()
	return r.removeLocked(func(s *subscription) bool { return s.matches(key, eventType) })
}

// RemoveByIdentity removes every subscription of key, across event types.
func (r *registry) RemoveByIdentity(key identity.Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purgeLocked()
	return r.removeLocked(func(s *subscription) bool { return s.key == key })
}

// RemoveByType removes every subscription for eventType, whatever its identity.
func (r *registry) RemoveByType(eventType reflect.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purgeLocked()
	return r.removeLocked(func(s *subscription) bool { return s.eventType == eventType })
}

// Purge drops subscriptions whose reference identity has been reclaimed and
// returns how many were dropped. Value identities are never purged.
func (r *registry) Purge() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.purgeLocked()
}

// Match purges and then returns a snapshot of the active subscriptions for
// eventType in insertion order. Subscriptions added after the call are not
// part of the snapshot.
func (r *registry) Match(eventType reflect.Type) []*subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purgeLocked()

	subs := r.subs[eventType]
	if len(subs) == 0 {
		return nil
	}

	result := make([]*subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.IsActive() {
			result = append(result, sub)
		}
	}
	return result
}

// Count returns the total number of subscriptions.
func (r *registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}

// CountByType returns the number of subscriptions for eventType.
func (r *registry) CountByType(eventType reflect.Type) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs[eventType])
}

// Purged returns the number of subscriptions purged since creation.
func (r *registry) Purged() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.purged
}

// Clear removes all subscriptions and returns how many there were.
func (r *registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.byID)
	for _, sub := range r.byID {
		sub.markRemoved()
	}
	r.subs = make(map[reflect.Type][]*subscription)
	r.byID = make(map[string]*subscription)
	return n
}

func (r *registry) purgeLocked() int {
	n := r.removeLocked(func(s *subscription) bool { return s.key.IsReference() && !s.key.Alive() })
	if n > 0 {
		r.purged += uint64(n)
		if r.onPurge != nil {
			r.onPurge(n)
		}
	}
	return n
}

// removeLocked removes every subscription matching drop, preserving the
// order of the rest, and returns how many were removed.
func (r *registry) removeLocked(drop func(*subscription) bool) int {
	removed := 0
	for eventType, subs := range r.subs {
		kept := subs[:0]
		for _, sub := range subs {
			if drop(sub) {
				sub.markRemoved()
				delete(r.byID, sub.id)
				removed++
				continue
			}
			kept = append(kept, sub)
		}

		if len(kept) == 0 {
			delete(r.subs, eventType)
			continue
		}
		clear(subs[len(kept):])
		r.subs[eventType] = kept
	}
	return removed
}
