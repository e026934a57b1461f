// Package dispatch runs event handlers for the bus.
//
// Handlers execute synchronously in the caller's goroutine, one after the
// other. Every execution is isolated: a handler that returns an error or
// panics is recorded in its Result and the next handler still runs.
//
// # Usage
//
//	dispatcher := dispatch.NewSyncDispatcher(
//	    dispatch.WithPanicHandler(func(event any, v any, stack []byte) {
//	        logger.Error("handler panic", zap.Any("value", v))
//	    }),
//	)
//	var results dispatch.Results
//	for _, h := range handlers {
//	    results = append(results, dispatcher.Dispatch(ctx, event, h))
//	}
//	if err := results.Err(); err != nil {
//	    // one or more handlers failed; all of them ran
//	}
//
// Contexts are passed through to handlers but are never used to abort a
// delivery round.
package dispatch
