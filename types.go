package subbus

import (
	"context"
	"reflect"
	"time"
)

// Handler receives events of type T. A non-nil error is reported as a
// HandlerFault; for persistent events it also leaves the event unhandled.
type Handler[T any] func(ctx context.Context, event T) error

// PersistentHandler receives persistent events and reports whether it
// handled them.
type PersistentHandler[T PersistentEvent] func(ctx context.Context, event T) HandlerResult

// HandlerResult is the outcome reported by a PersistentHandler.
type HandlerResult int

const (
	// HandledSuccessfully marks the event as handled.
	HandledSuccessfully HandlerResult = iota

	// Failed leaves the event unhandled.
	Failed
)

// String returns a human-readable result name.
func (r HandlerResult) String() string {
	switch r {
	case HandledSuccessfully:
		return "handled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// PersistenceRule decides when a handled persistent event leaves the
// retention buffer.
type PersistenceRule int

const (
	// ClearImmediately stops delivery at the first subscriber that handles
	// the event.
	ClearImmediately PersistenceRule = iota

	// ClearAfterAllCurrentSubscribersNotified delivers to every current
	// subscriber; the event is retained only if none of them handled it.
	ClearAfterAllCurrentSubscribersNotified

	// NeverClear delivers to every subscriber and always retains the event,
	// replaying it to each new subscriber until the buffer is reset.
	NeverClear
)

// String returns a human-readable rule name.
func (r PersistenceRule) String() string {
	switch r {
	case ClearImmediately:
		return "clear-immediately"
	case ClearAfterAllCurrentSubscribersNotified:
		return "clear-after-all-current-subscribers-notified"
	case NeverClear:
		return "never-clear"
	default:
		return "unknown"
	}
}

// PersistentEvent is implemented by events that are retained when nobody
// handles them and replayed to later subscribers.
type PersistentEvent interface {
	PersistenceRule() PersistenceRule
}

// Persistent can be embedded in an event struct to make it persistent:
//
//	type TokenExpired struct {
//	    subbus.Persistent
//	    UserID string
//	}
//
//	subbus.Post(ctx, bus, TokenExpired{Persistent: subbus.Persistent{Rule: subbus.ClearImmediately}})
type Persistent struct {
	Rule PersistenceRule
}

// PersistenceRule implements PersistentEvent.
func (p Persistent) PersistenceRule() PersistenceRule {
	return p.Rule
}

var persistentEventType = reflect.TypeFor[PersistentEvent]()

// FaultHandler is called for every HandlerFault, after the fault is logged.
type FaultHandler func(fault *HandlerFault)

// Stats contains bus statistics.
type Stats struct {
	// EventsPosted is the total number of events posted.
	EventsPosted uint64

	// HandlersExecuted is the total number of handler executions.
	HandlersExecuted uint64

	// HandlersSucceeded is the number of handlers that returned nil.
	HandlersSucceeded uint64

	// HandlerErrors is the number of handlers that returned errors.
	HandlerErrors uint64

	// HandlerPanics is the number of handlers that panicked.
	HandlerPanics uint64

	// HandlersDeclined is the number of persistent handlers that returned
	// Failed.
	HandlersDeclined uint64

	// EventsRetained is the number of persistent events that entered the buffer.
	EventsRetained uint64

	// EventsReplayed is the number of buffered events delivered to new subscribers.
	EventsReplayed uint64

	// SubscriptionsPurged is the number of subscriptions dropped because their
	// identity was reclaimed.
	SubscriptionsPurged uint64

	// AvgHandlerTime is the average handler execution time.
	AvgHandlerTime time.Duration

	// TotalHandlerTime is the cumulative time spent in handlers.
	TotalHandlerTime time.Duration

	// ActiveSubscriptions is the current number of subscriptions.
	ActiveSubscriptions int

	// PendingEvents is the current length of the persistent-event buffer.
	PendingEvents int
}
