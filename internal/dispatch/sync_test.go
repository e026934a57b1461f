package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func newTestHandler(fn func(ctx context.Context, event any) error) Handler {
	return HandlerFunc(fn)
}

func TestResult_IsSuccess(t *testing.T) {
	tests := []struct {
		name     string
		result   Result
		expected bool
	}{
		{"success", Result{Success: true}, true},
		{"error", Result{Success: false, Error: errors.New("error")}, false},
		{"panic", Result{Success: false, Panicked: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsSuccess())
		})
	}
}

func TestResult_IsErrorAndIsPanic(t *testing.T) {
	errResult := Result{Error: errors.New("error")}
	panicResult := Result{Panicked: true, PanicValue: "boom"}

	declined := Result{Declined: true}
	assert.True(t, declined.IsDeclined())
	assert.False(t, declined.IsError())
	assert.False(t, declined.IsSuccess())

	assert.True(t, errResult.IsError())
	assert.False(t, errResult.IsPanic())
	assert.False(t, panicResult.IsError())
	assert.True(t, panicResult.IsPanic())
}

func TestResults_Err(t *testing.T) {
	first := errors.New("first")
	results := Results{
		{Success: true},
		{Error: first},
		{Panicked: true, PanicValue: "boom"},
		{Declined: true},
	}

	err := results.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.Equal(t, 1, results.Succeeded())

	assert.Len(t, multierr.Errors(err), 2)
	assert.NoError(t, Results{{Success: true}, {Declined: true}}.Err())
}

func TestExecutor_Execute_Success(t *testing.T) {
	executor := NewExecutor()

	var received any
	handler := newTestHandler(func(ctx context.Context, event any) error {
		received = event
		return nil
	})

	result := executor.Execute(context.Background(), "test-event", handler)

	assert.True(t, result.IsSuccess())
	assert.Equal(t, "test-event", received)
}

func TestExecutor_Execute_Error(t *testing.T) {
	executor := NewExecutor()
	expectedErr := errors.New("handler error")

	result := executor.Execute(context.Background(), "event", newTestHandler(func(ctx context.Context, event any) error {
		return expectedErr
	}))

	assert.False(t, result.IsSuccess())
	assert.ErrorIs(t, result.Error, expectedErr)
	assert.False(t, result.Panicked)
}

func TestExecutor_Execute_Declined(t *testing.T) {
	executor := NewExecutor()

	result := executor.Execute(context.Background(), "event", newTestHandler(func(ctx context.Context, event any) error {
		return fmt.Errorf("busy: %w", ErrDeclined)
	}))

	assert.True(t, result.IsDeclined())
	assert.False(t, result.IsSuccess())
	assert.NoError(t, result.Error)
}

func TestExecutor_Execute_Panic(t *testing.T) {
	var (
		gotEvent any
		gotValue any
		gotStack []byte
	)
	executor := NewExecutor(WithExecutorPanicHandler(func(event any, panicValue any, stack []byte) {
		gotEvent = event
		gotValue = panicValue
		gotStack = stack
	}))

	result := executor.Execute(context.Background(), "event", newTestHandler(func(ctx context.Context, event any) error {
		panic("test panic")
	}))

	assert.False(t, result.IsSuccess())
	assert.True(t, result.Panicked)
	assert.Equal(t, "test panic", result.PanicValue)
	assert.NotEmpty(t, result.PanicStack)
	assert.Equal(t, "event", gotEvent)
	assert.Equal(t, "test panic", gotValue)
	assert.NotEmpty(t, gotStack)
}

func TestExecutor_Execute_PanicHandlerPanics(t *testing.T) {
	executor := NewExecutor(WithExecutorPanicHandler(func(event any, panicValue any, stack []byte) {
		panic("panic handler panic")
	}))

	require.NotPanics(t, func() {
		result := executor.Execute(context.Background(), "event", newTestHandler(func(ctx context.Context, event any) error {
			panic("original")
		}))
		assert.True(t, result.Panicked)
	})
}

func TestExecutor_Execute_CancelledContextStillRuns(t *testing.T) {
	executor := NewExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	result := executor.Execute(ctx, "event", newTestHandler(func(ctx context.Context, event any) error {
		called = true
		return nil
	}))

	assert.True(t, called)
	assert.True(t, result.IsSuccess())
}

func TestSyncDispatcher_Dispatch_Outcomes(t *testing.T) {
	d := NewSyncDispatcher()
	ctx := context.Background()

	ok := d.Dispatch(ctx, 1, newTestHandler(func(ctx context.Context, event any) error { return nil }))
	failed := d.Dispatch(ctx, 2, newTestHandler(func(ctx context.Context, event any) error { return errors.New("x") }))
	panicked := d.Dispatch(ctx, 3, newTestHandler(func(ctx context.Context, event any) error { panic("y") }))
	declined := d.Dispatch(ctx, 4, newTestHandler(func(ctx context.Context, event any) error { return ErrDeclined }))

	assert.True(t, ok.IsSuccess())
	assert.True(t, failed.IsError())
	assert.True(t, panicked.IsPanic())
	assert.True(t, declined.IsDeclined())

	stats := d.Stats()
	assert.Equal(t, uint64(4), stats.Dispatched)
	assert.Equal(t, uint64(1), stats.Succeeded)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(1), stats.Panicked)
	assert.Equal(t, uint64(1), stats.Declined)
}

func TestSyncDispatcher_WithPanicHandler(t *testing.T) {
	var called bool
	d := NewSyncDispatcher(WithPanicHandler(func(event any, panicValue any, stack []byte) {
		called = true
	}))

	d.Dispatch(context.Background(), "event", newTestHandler(func(ctx context.Context, event any) error {
		panic("boom")
	}))

	assert.True(t, called)
}

func TestSyncDispatcher_Concurrent(t *testing.T) {
	d := NewSyncDispatcher()
	handler := newTestHandler(func(ctx context.Context, event any) error { return nil })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(context.Background(), "event", handler)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(50), d.Stats().Dispatched)
	assert.Equal(t, uint64(50), d.Stats().Succeeded)
}
