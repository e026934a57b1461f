package subbus

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/subbus/internal/dispatch"
	"github.com/dshills/subbus/internal/identity"
)

// Bus delivers posted events to the subscriptions registered for their
// exact type. All operations are synchronous and safe for concurrent use.
// Handlers run on the posting goroutine with no bus lock held, so they may
// subscribe, unsubscribe and post themselves.
type Bus struct {
	registry   *registry
	store      *persistentStore
	dispatcher *dispatch.SyncDispatcher

	logger       *zap.Logger
	level        zap.AtomicLevel
	metrics      *metrics
	faultHandler FaultHandler

	eventsPosted   atomic.Uint64
	eventsRetained atomic.Uint64
	eventsReplayed atomic.Uint64
}

// New creates a bus.
func New(opts ...BusOption) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	b := &Bus{
		registry:     newRegistry(),
		store:        newPersistentStore(),
		level:        zap.NewAtomicLevelAt(levelFor(config.debug)),
		faultHandler: config.faultHandler,
	}
	b.logger = newLogger(config.logger, b.level)

	b.dispatcher = dispatch.NewSyncDispatcher(
		dispatch.WithPanicHandler(func(event any, panicValue any, stack []byte) {
			b.logger.Debug("recovered handler panic",
				zap.Stringer("event_type", reflect.TypeOf(event)),
				zap.Any("panic", panicValue),
				zap.ByteString("stack", stack),
			)
		}),
	)

	b.metrics = newMetrics(config.metrics,
		func() float64 { return float64(b.registry.Count()) },
		func() float64 { return float64(b.store.Len()) },
	)
	b.registry.onPurge = func(n int) {
		b.metrics.purged.Add(float64(n))
		b.logger.Debug("purged subscriptions of collected subscribers", zap.Int("count", n))
	}
	if config.registerer != nil && config.metrics.Enabled {
		if err := b.metrics.register(config.registerer); err != nil {
			b.logger.Warn("registering metrics", zap.Error(err))
		}
	}

	return b
}

// Subscribe registers handler for events of exact type T under the
// subscriber identity id. Subscriptions on the same identity and type
// accumulate unless WithReplace is given.
//
// If T is a PersistentEvent, buffered events of type T are replayed to the
// new subscription before Subscribe returns.
//
// An invalid id, a nil handler or an interface T is logged and returned;
// no subscription is created.
func Subscribe[T any](b *Bus, id any, handler Handler[T], opts ...SubscribeOption) error {
	eventType, err := eventTypeOf[T]()
	if err != nil {
		b.logger.Warn("subscribe rejected", zap.Error(err))
		return err
	}
	if handler == nil {
		b.logger.Warn("subscribe rejected", zap.Stringer("event_type", eventType), zap.Error(ErrNilHandler))
		return ErrNilHandler
	}

	h := dispatch.HandlerFunc(func(ctx context.Context, event any) error {
		return handler(ctx, event.(T))
	})
	return b.subscribe(id, eventType, h, newSubscribeConfig(opts))
}

// SubscribePersistent registers a handler that reports whether it handled a
// persistent event. Failed leaves the event in the buffer for later
// subscribers, subject to the event's PersistenceRule.
func SubscribePersistent[T PersistentEvent](b *Bus, id any, handler PersistentHandler[T], opts ...SubscribeOption) error {
	eventType, err := eventTypeOf[T]()
	if err != nil {
		b.logger.Warn("subscribe rejected", zap.Error(err))
		return err
	}
	if handler == nil {
		b.logger.Warn("subscribe rejected", zap.Stringer("event_type", eventType), zap.Error(ErrNilHandler))
		return ErrNilHandler
	}

	h := dispatch.HandlerFunc(func(ctx context.Context, event any) error {
		if handler(ctx, event.(T)) != HandledSuccessfully {
			return dispatch.ErrDeclined
		}
		return nil
	})
	return b.subscribe(id, eventType, h, newSubscribeConfig(opts))
}

// Post delivers event to every active subscription for its dynamic type, in
// subscription order, and returns once all handlers have run. Handler errors
// and panics are logged and never stop delivery. Posting nil is a no-op.
//
// A PersistentEvent nobody handled is buffered for future subscribers.
func Post[T any](ctx context.Context, b *Bus, event T) {
	b.post(ctx, event)
}

// Unsubscribe removes every subscription of id, across all event types.
func (b *Bus) Unsubscribe(id any) {
	key, err := identity.Resolve(id)
	if err != nil {
		b.logger.Warn("unsubscribe rejected", zap.Error(err))
		return
	}

	n := b.registry.RemoveByIdentity(key)
	b.logger.Debug("unsubscribed", zap.Stringer("identity", key), zap.Int("removed", n))
}

// UnsubscribeFrom removes the subscriptions of id for event type T only.
func UnsubscribeFrom[T any](b *Bus, id any) {
	b.unsubscribeFrom(id, reflect.TypeFor[T]())
}

// UnsubscribeAll removes every subscription for event type T, whatever its
// identity.
func UnsubscribeAll[T any](b *Bus) {
	eventType := reflect.TypeFor[T]()
	n := b.registry.RemoveByType(eventType)
	b.logger.Debug("unsubscribed all", zap.Stringer("event_type", eventType), zap.Int("removed", n))
}

// SetDebugLogging turns diagnostic logging of subscribe, post and
// unsubscribe calls on or off.
func (b *Bus) SetDebugLogging(enabled bool) {
	b.level.SetLevel(levelFor(enabled))
}

// DebugLogging reports whether diagnostic logging is on.
func (b *Bus) DebugLogging() bool {
	return b.level.Enabled(zapcore.DebugLevel)
}

// ResetSubscriptions removes every subscription. It is meant for tests.
func (b *Bus) ResetSubscriptions() {
	n := b.registry.Clear()
	b.logger.Warn("reset subscriptions", zap.Int("removed", n))
}

// ResetPersistentEvents empties the persistent event buffer. NeverClear
// events are only ever released this way.
func (b *Bus) ResetPersistentEvents() {
	n := b.store.Clear()
	b.logger.Warn("reset persistent events", zap.Int("removed", n))
}

// Count returns the number of subscriptions.
func (b *Bus) Count() int {
	return b.registry.Count()
}

// CountFor returns the number of subscriptions for event type T.
func CountFor[T any](b *Bus) int {
	return b.registry.CountByType(reflect.TypeFor[T]())
}

// Pending returns the number of buffered persistent events.
func (b *Bus) Pending() int {
	return b.store.Len()
}

// PendingFor returns the number of buffered persistent events of type T.
func PendingFor[T any](b *Bus) int {
	return b.store.LenFor(reflect.TypeFor[T]())
}

// Stats returns bus statistics.
// Counters are read individually, so values may be slightly inconsistent
// while posts are in flight.
func (b *Bus) Stats() Stats {
	ds := b.dispatcher.Stats()
	return Stats{
		EventsPosted:        b.eventsPosted.Load(),
		HandlersExecuted:    ds.Dispatched,
		HandlersSucceeded:   ds.Succeeded,
		HandlerErrors:       ds.Failed,
		HandlerPanics:       ds.Panicked,
		HandlersDeclined:    ds.Declined,
		EventsRetained:      b.eventsRetained.Load(),
		EventsReplayed:      b.eventsReplayed.Load(),
		SubscriptionsPurged: b.registry.Purged(),
		AvgHandlerTime:      ds.AvgDuration,
		TotalHandlerTime:    ds.TotalDuration,
		ActiveSubscriptions: b.registry.Count(),
		PendingEvents:       b.store.Len(),
	}
}

// eventTypeOf returns the type subscriptions for T are registered under.
func eventTypeOf[T any]() (reflect.Type, error) {
	eventType := reflect.TypeFor[T]()
	if eventType.Kind() == reflect.Interface {
		return nil, fmt.Errorf("%w: %s is an interface", ErrInvalidEventType, eventType)
	}
	return eventType, nil
}

func (b *Bus) subscribe(id any, eventType reflect.Type, h dispatch.Handler, config subscribeConfig) error {
	key, err := identity.Resolve(id)
	if err != nil {
		b.logger.Warn("subscribe rejected", zap.Stringer("event_type", eventType), zap.Error(err))
		return err
	}

	sub := newSubscription(key, eventType, h, config)
	replaced := b.registry.Add(sub, config.replace)
	b.logger.Debug("subscribed",
		zap.String("subscription", sub.ID()),
		zap.Stringer("identity", key),
		zap.Stringer("identity_kind", key.Kind()),
		zap.Stringer("event_type", eventType),
		zap.Int("replaced", replaced),
	)

	if eventType.Implements(persistentEventType) {
		b.replay(sub)
	}
	return nil
}

func (b *Bus) unsubscribeFrom(id any, eventType reflect.Type) {
	key, err := identity.Resolve(id)
	if err != nil {
		b.logger.Warn("unsubscribe rejected", zap.Stringer("event_type", eventType), zap.Error(err))
		return
	}

	n := b.registry.RemoveByIdentityAndType(key, eventType)
	b.logger.Debug("unsubscribed",
		zap.Stringer("identity", key),
		zap.Stringer("event_type", eventType),
		zap.Int("removed", n),
	)
}

func (b *Bus) post(ctx context.Context, event any) {
	if isNilEvent(event) {
		b.logger.Debug("ignoring nil event")
		return
	}

	eventType := reflect.TypeOf(event)
	b.eventsPosted.Add(1)
	b.metrics.posted.Inc()

	subs := b.registry.Match(eventType)
	b.logger.Debug("posting", zap.Stringer("event_type", eventType), zap.Int("subscribers", len(subs)))

	pe, ok := event.(PersistentEvent)
	if !ok {
		b.deliver(ctx, eventType, event, subs, false)
		return
	}

	rule := pe.PersistenceRule()
	handled := b.deliver(ctx, eventType, event, subs, rule == ClearImmediately)
	if handled && rule != NeverClear {
		return
	}

	b.store.push(event, eventType, rule)
	b.eventsRetained.Add(1)
	b.metrics.retained.Inc()
	b.logger.Debug("retained unhandled event", zap.Stringer("event_type", eventType), zap.Stringer("rule", rule))
}

// deliver invokes subs in order and reports whether any handler succeeded.
// With stopOnSuccess it returns at the first success.
func (b *Bus) deliver(ctx context.Context, eventType reflect.Type, event any, subs []*subscription, stopOnSuccess bool) bool {
	var (
		handled bool
		results dispatch.Results
		faults  dispatch.Results
	)
	for _, sub := range subs {
		// Removed since the snapshot, or filtered out.
		if !sub.ShouldDeliver(event) {
			continue
		}

		result := b.invoke(ctx, sub, event)
		results = append(results, result)
		if result.IsSuccess() {
			handled = true
			b.completeOnce(sub)
			if stopOnSuccess {
				break
			}
			continue
		}
		if b.fault(sub, result) {
			faults = append(faults, result)
		}
	}

	b.logger.Debug("delivered",
		zap.Stringer("event_type", eventType),
		zap.Int("invoked", len(results)),
		zap.Int("succeeded", results.Succeeded()),
	)
	b.logFaults(eventType, faults)
	return handled
}

// replay delivers the buffered events of the subscription's type to it
// alone, most recent first. A success removes the record unless its rule is
// NeverClear.
func (b *Bus) replay(sub *subscription) {
	records := b.store.matching(sub.EventType())
	if len(records) == 0 {
		return
	}

	ctx := context.Background()
	var faults dispatch.Results
	for _, rec := range records {
		if !sub.ShouldDeliver(rec.event) {
			if !sub.IsActive() {
				break
			}
			continue
		}

		result := b.invoke(ctx, sub, rec.event)
		b.eventsReplayed.Add(1)
		b.metrics.replayed.Inc()
		b.logger.Debug("replayed buffered event",
			zap.String("subscription", sub.ID()),
			zap.Stringer("event_type", rec.typ),
			zap.Uint64("seq", rec.seq),
			zap.Bool("handled", result.IsSuccess()),
		)

		if result.IsSuccess() {
			if rec.rule != NeverClear {
				b.store.remove(rec)
			}
			b.completeOnce(sub)
			continue
		}
		if b.fault(sub, result) {
			faults = append(faults, result)
		}
	}

	b.logFaults(sub.EventType(), faults)
}

// invoke runs one handler and records its outcome.
func (b *Bus) invoke(ctx context.Context, sub *subscription, event any) dispatch.Result {
	result := b.dispatcher.Dispatch(ctx, event, sub.handler)
	b.metrics.duration.Observe(result.Duration.Seconds())

	outcome := outcomeSuccess
	switch {
	case result.IsPanic():
		outcome = outcomePanic
	case result.IsDeclined():
		outcome = outcomeDeclined
	case result.IsError():
		outcome = outcomeError
	}
	b.metrics.deliveries.WithLabelValues(outcome).Inc()
	return result
}

// fault reports a failed result to the fault handler. It returns false for
// results that are not faults: a persistent handler declining an event.
func (b *Bus) fault(sub *subscription, result dispatch.Result) bool {
	if result.IsDeclined() {
		return false
	}
	if b.faultHandler != nil {
		b.notifyFault(newHandlerFault(sub, result))
	}
	return true
}

func (b *Bus) notifyFault(f *HandlerFault) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("fault handler panicked", zap.Any("panic", r))
		}
	}()
	b.faultHandler(f)
}

func (b *Bus) logFaults(eventType reflect.Type, faults dispatch.Results) {
	if err := faults.Err(); err != nil {
		b.logger.Error("handler faults",
			zap.Stringer("event_type", eventType),
			zap.Int("count", len(faults)),
			zap.Error(err),
		)
	}
}

// completeOnce removes a once subscription after its first success.
func (b *Bus) completeOnce(sub *subscription) {
	if !sub.config.once {
		return
	}
	if b.registry.Remove(sub.ID()) {
		b.logger.Debug("once subscription completed", zap.String("subscription", sub.ID()))
	}
}

// stop releases everything the bus holds without logging resets.
func (b *Bus) stop() {
	b.registry.Clear()
	b.store.Clear()
	b.metrics.unregister()
}

func isNilEvent(event any) bool {
	if event == nil {
		return true
	}
	v := reflect.ValueOf(event)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
