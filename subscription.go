package subbus

import (
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/subbus/internal/dispatch"
	"github.com/dshills/subbus/internal/identity"
)

// SubscriptionState represents the state of a subscription.
type SubscriptionState int32

const (
	// SubscriptionStateActive means the subscription is receiving events.
	SubscriptionStateActive SubscriptionState = iota

	// SubscriptionStateRemoved means the subscription was unsubscribed,
	// replaced, completed as a once subscription, or its identity was
	// reclaimed. It is terminal.
	SubscriptionStateRemoved
)

// String returns a human-readable state name.
func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionStateActive:
		return "active"
	case SubscriptionStateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// subscribeConfig contains configuration for a subscription.
type subscribeConfig struct {
	// replace removes existing subscriptions with the same identity and event
	// type before the new one is added.
	replace bool

	// once removes the subscription after its first successful delivery.
	once bool

	// filters must all accept an event for it to be delivered.
	filters []func(event any) bool
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeConfig)

// WithReplace makes the new subscription the only one for its identity and
// event type.
func WithReplace() SubscribeOption {
	return func(c *subscribeConfig) {
		c.replace = true
	}
}

// WithOnce removes the subscription after the first event it handles
// successfully.
func WithOnce() SubscribeOption {
	return func(c *subscribeConfig) {
		c.once = true
	}
}

// WithFilter only delivers events for which fn returns true. For scoped
// subscriptions fn receives the unwrapped event.
func WithFilter[T any](fn func(event T) bool) SubscribeOption {
	return func(c *subscribeConfig) {
		if fn == nil {
			return
		}
		c.filters = append(c.filters, func(event any) bool {
			e, ok := event.(T)
			return ok && fn(e)
		})
	}
}

func newSubscribeConfig(opts []SubscribeOption) subscribeConfig {
	var c subscribeConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// subscription is a registered handler for one exact event type.
type subscription struct {
	id        string
	key       identity.Key
	eventType reflect.Type
	handler   dispatch.Handler
	config    subscribeConfig
	state     atomic.Int32
}

func newSubscription(key identity.Key, eventType reflect.Type, h dispatch.Handler, config subscribeConfig) *subscription {
	s := &subscription{
		id:        uuid.NewString(),
		key:       key,
		eventType: eventType,
		handler:   h,
		config:    config,
	}
	s.state.Store(int32(SubscriptionStateActive))
	return s
}

// ID returns the subscription ID.
func (s *subscription) ID() string {
	return s.id
}

// Identity returns the subscriber key.
func (s *subscription) Identity() identity.Key {
	return s.key
}

// EventType returns the exact event type the subscription receives.
func (s *subscription) EventType() reflect.Type {
	return s.eventType
}

// State returns the current subscription state.
func (s *subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

// IsActive returns true if the subscription can receive events.
func (s *subscription) IsActive() bool {
	return s.State() == SubscriptionStateActive
}

// markRemoved moves the subscription to its terminal state. It reports
// whether this call performed the transition.
func (s *subscription) markRemoved() bool {
	return s.state.CompareAndSwap(int32(SubscriptionStateActive), int32(SubscriptionStateRemoved))
}

// matches reports whether the subscription belongs to key and eventType.
func (s *subscription) matches(key identity.Key, eventType reflect.Type) bool {
	return s.key == key && s.eventType == eventType
}

// ShouldDeliver returns true if the event should be delivered to this subscription.
func (s *subscription) ShouldDeliver(event any) bool {
	if !s.IsActive() {
		return false
	}
	for _, accept := range s.config.filters {
		if !accept(event) {
			return false
		}
	}
	return true
}
