package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"time"
)

// Executor handles the actual execution of event handlers with
// panic recovery and timing.
type Executor struct {
	panicHandler PanicHandler
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		panicHandler: defaultPanicHandler,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorPanicHandler sets the panic handler for the executor.
func WithExecutorPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		if h != nil {
			e.panicHandler = h
		}
	}
}

// Execute runs a handler with the given event and returns the result.
// It recovers from panics and captures timing information. The context is
// handed to the handler untouched; a cancelled context does not prevent
// execution.
func (e *Executor) Execute(ctx context.Context, event any, handler Handler) (result Result) {
	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()

			result.Success = false
			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = stack

			// A panicking panic handler must not take the dispatch loop down.
			func() {
				defer func() {
					_ = recover()
				}()
				e.panicHandler(event, r, stack)
			}()
		}
	}()

	err := handler.Handle(ctx, event)
	switch {
	case errors.Is(err, ErrDeclined):
		result.Declined = true
		return result
	case err != nil:
		result.Error = err
		return result
	}
	result.Success = true
	return result
}
