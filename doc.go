// Package subbus is a typed, synchronous, in-process publish/subscribe bus.
//
// Subscribers register a handler for one exact event type under an
// identity. The identity is any value: pointers and channels identify the
// object they point to and are tracked weakly, so a subscriber that is
// garbage collected loses its subscriptions without an explicit Unsubscribe;
// any other value identifies by type and content, and stays subscribed until
// removed.
//
//	bus := subbus.New()
//
//	type UserLoggedIn struct{ Name string }
//
//	err := subbus.Subscribe(bus, screen, func(ctx context.Context, e UserLoggedIn) error {
//	    return screen.Greet(e.Name)
//	})
//
//	subbus.Post(ctx, bus, UserLoggedIn{Name: "ada"})
//	bus.Unsubscribe(screen)
//
// # Delivery
//
// Post runs every matching handler on the calling goroutine, in subscription
// order, before it returns. Matching is on the dynamic type of the event, with
// no interface or embedding matching. A handler that returns an error or
// panics is logged and reported to the FaultHandler; later handlers still
// run. Handlers subscribed while a post is in flight do not receive it.
//
// # Scopes
//
// PostScoped and SubscribeScoped narrow delivery within an event type by a
// non-empty scope string. Scoped and plain deliveries of a type never reach
// each other.
//
// # Persistent events
//
// Events implementing PersistentEvent, usually by embedding Persistent, are
// buffered when no handler handles them and replayed to each new subscriber
// of their type, most recent first. The PersistenceRule decides how far a
// post goes and when an event leaves the buffer. NeverClear events stay until
// ResetPersistentEvents.
package subbus
