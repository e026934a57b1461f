package dispatch

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// Handler is the type-erased handler the dispatcher invokes.
// This mirrors the subbus handler adapters to avoid circular imports.
type Handler interface {
	Handle(ctx context.Context, event any) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, event any) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, event any) error {
	return f(ctx, event)
}

// Result represents the outcome of a handler execution.
type Result struct {
	// Success is true if the handler completed without error or panic.
	Success bool

	// Error is the error returned by the handler, if any.
	Error error

	// Declined is true if the handler returned ErrDeclined.
	Declined bool

	// Panicked is true if the handler panicked.
	Panicked bool

	// PanicValue is the value passed to panic(), if Panicked is true.
	PanicValue any

	// PanicStack is the stack trace at the point of panic.
	PanicStack []byte

	// Duration is how long the handler took to execute.
	Duration time.Duration
}

// IsSuccess returns true if the result indicates successful execution.
func (r Result) IsSuccess() bool {
	return r.Success && !r.Panicked && r.Error == nil
}

// IsError returns true if the result indicates an error (not panic).
func (r Result) IsError() bool {
	return r.Error != nil && !r.Panicked
}

// IsPanic returns true if the result indicates a panic.
func (r Result) IsPanic() bool {
	return r.Panicked
}

// IsDeclined returns true if the handler declined the event.
func (r Result) IsDeclined() bool {
	return r.Declined && !r.Panicked
}

// Results is the ordered outcome of one delivery round.
type Results []Result

// Err combines every handler error and panic of the round into a single
// error, or nil when no handler failed. Declines are not errors.
func (rs Results) Err() error {
	var err error
	for _, r := range rs {
		switch {
		case r.Panicked:
			err = multierr.Append(err, &PanicError{Value: r.PanicValue, Stack: r.PanicStack})
		case r.Error != nil:
			err = multierr.Append(err, r.Error)
		}
	}
	return err
}

// Succeeded returns the number of successful results.
func (rs Results) Succeeded() int {
	n := 0
	for _, r := range rs {
		if r.IsSuccess() {
			n++
		}
	}
	return n
}

// PanicHandler is called when a handler panics during execution.
// It receives the event being processed, the panic value, and the stack trace.
type PanicHandler func(event any, panicValue any, stack []byte)

// defaultPanicHandler is a no-op panic handler.
func defaultPanicHandler(event any, panicValue any, stack []byte) {}
