package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrHandlerPanic is matched by errors produced from recovered panics.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrDeclined is returned by a handler that ran fine but did not take
	// the event. It yields a declined Result rather than an error.
	ErrDeclined = errors.New("event declined")
)

// PanicError wraps a recovered panic value as an error.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
