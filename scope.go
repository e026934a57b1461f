package subbus

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/dshills/subbus/internal/dispatch"
)

// scoped is the envelope a scoped event travels in. Each T gets its own
// envelope type, so scoped and unscoped deliveries of T never mix.
type scoped[T any] struct {
	Scope string
	Event T
}

// PostScoped delivers event to the subscriptions made with SubscribeScoped
// for T and exactly this scope. Plain subscriptions for T receive nothing.
// An empty scope is logged and returned as ErrInvalidScope.
func PostScoped[T any](ctx context.Context, b *Bus, event T, scope string) error {
	if scope == "" {
		b.logger.Warn("post rejected", zap.Error(ErrInvalidScope))
		return ErrInvalidScope
	}
	if isNilEvent(event) {
		b.logger.Debug("ignoring nil event", zap.String("scope", scope))
		return nil
	}

	b.post(ctx, scoped[T]{Scope: scope, Event: event})
	return nil
}

// SubscribeScoped registers handler for events of type T posted with
// PostScoped and the same scope. Envelopes for other scopes are skipped
// silently. Filters given with WithFilter see the unwrapped event.
//
// Scope does not take part in the subscription identity: UnsubscribeScoped
// removes every scoped subscription of id for T. To tear down one scope
// alone, subscribe with the scope itself as the identity.
func SubscribeScoped[T any](b *Bus, id any, scope string, handler Handler[T], opts ...SubscribeOption) error {
	if scope == "" {
		b.logger.Warn("subscribe rejected", zap.Error(ErrInvalidScope))
		return ErrInvalidScope
	}
	if handler == nil {
		b.logger.Warn("subscribe rejected", zap.String("scope", scope), zap.Error(ErrNilHandler))
		return ErrNilHandler
	}

	config := newSubscribeConfig(opts)
	filters := config.filters
	config.filters = []func(any) bool{
		func(event any) bool {
			env, ok := event.(scoped[T])
			if !ok || env.Scope != scope {
				return false
			}
			for _, accept := range filters {
				if !accept(env.Event) {
					return false
				}
			}
			return true
		},
	}

	h := dispatch.HandlerFunc(func(ctx context.Context, event any) error {
		return handler(ctx, event.(scoped[T]).Event)
	})
	return b.subscribe(id, reflect.TypeFor[scoped[T]](), h, config)
}

// UnsubscribeScoped removes the scoped subscriptions of id for T, in every
// scope.
func UnsubscribeScoped[T any](b *Bus, id any) {
	UnsubscribeFrom[scoped[T]](b, id)
}
