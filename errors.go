package subbus

import (
	"errors"
	"reflect"

	"github.com/dshills/subbus/internal/config"
	"github.com/dshills/subbus/internal/dispatch"
	"github.com/dshills/subbus/internal/identity"
)

// Sentinel errors for the bus.
var (
	// ErrInvalidIdentifier is returned when a subscriber identifier is nil, has
	// an empty canonical form, or cannot be keyed.
	ErrInvalidIdentifier = identity.ErrInvalidIdentifier

	// ErrInvalidScope is returned when a scope is empty.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrInvalidEventType is returned when an event type parameter is an
	// interface. Events are matched on their exact dynamic type, which is never
	// an interface.
	ErrInvalidEventType = errors.New("invalid event type")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrHandlerPanic is matched by faults caused by a panicking handler.
	ErrHandlerPanic = dispatch.ErrHandlerPanic

	// ErrInvalidConfig is wrapped by configuration validation failures.
	ErrInvalidConfig = config.ErrInvalidConfig
)

// HandlerFault describes a handler that returned an error or panicked.
// Faults never interrupt delivery to the remaining subscriptions.
type HandlerFault struct {
	// SubscriptionID is the ID of the subscription whose handler failed.
	SubscriptionID string

	// Identity is the rendered subscriber identity.
	Identity string

	// EventType is the exact type the subscription is registered for.
	EventType reflect.Type

	// Err is the returned error, or a panic error matching ErrHandlerPanic.
	Err error

	// Stack is the stack trace of a panic, nil for returned errors.
	Stack []byte
}

// Error implements the error interface.
func (f *HandlerFault) Error() string {
	return "handler fault for subscription " + f.SubscriptionID + " (" + f.Identity + ") on " + f.EventType.String() + ": " + f.Err.Error()
}

// Unwrap returns the underlying error.
func (f *HandlerFault) Unwrap() error {
	return f.Err
}

// Panicked reports whether the fault was caused by a panic.
func (f *HandlerFault) Panicked() bool {
	return errors.Is(f.Err, ErrHandlerPanic)
}

func newHandlerFault(sub *subscription, result dispatch.Result) *HandlerFault {
	f := &HandlerFault{
		SubscriptionID: sub.ID(),
		Identity:       sub.Identity().String(),
		EventType:      sub.EventType(),
		Err:            result.Error,
	}
	if result.Panicked {
		f.Err = &dispatch.PanicError{Value: result.PanicValue, Stack: result.PanicStack}
		f.Stack = result.PanicStack
	}
	return f
}
