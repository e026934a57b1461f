package subbus

import (
	"context"
	"reflect"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/subbus/internal/dispatch"
	"github.com/dshills/subbus/internal/identity"
)

var (
	typeA = reflect.TypeFor[eventA]()
	typeB = reflect.TypeFor[eventB]()
)

func mustKey(t *testing.T, id any) identity.Key {
	t.Helper()
	key, err := identity.Resolve(id)
	require.NoError(t, err)
	return key
}

func newTestSubscription(t *testing.T, id any, eventType reflect.Type) *subscription {
	t.Helper()
	nop := dispatch.HandlerFunc(func(context.Context, any) error { return nil })
	return newSubscription(mustKey(t, id), eventType, nop, subscribeConfig{})
}

func ids(subs []*subscription) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.ID()
	}
	return out
}

func TestRegistry_AddAndMatch(t *testing.T) {
	r := newRegistry()

	s1 := newTestSubscription(t, "a", typeA)
	s2 := newTestSubscription(t, "b", typeA)
	s3 := newTestSubscription(t, "a", typeB)
	for _, s := range []*subscription{s1, s2, s3} {
		assert.Zero(t, r.Add(s, false))
	}

	assert.Equal(t, ids([]*subscription{s1, s2}), ids(r.Match(typeA)))
	assert.Equal(t, ids([]*subscription{s3}), ids(r.Match(typeB)))
	assert.Empty(t, r.Match(reflect.TypeFor[int]()))
	assert.Equal(t, 3, r.Count())
	assert.Equal(t, 2, r.CountByType(typeA))
}

func TestRegistry_MatchIsSnapshot(t *testing.T) {
	r := newRegistry()
	r.Add(newTestSubscription(t, "a", typeA), false)

	snapshot := r.Match(typeA)
	r.Add(newTestSubscription(t, "b", typeA), false)

	assert.Len(t, snapshot, 1)
	assert.Len(t, r.Match(typeA), 2)
}

func TestRegistry_AddReplace(t *testing.T) {
	r := newRegistry()

	old1 := newTestSubscription(t, "a", typeA)
	old2 := newTestSubscription(t, "a", typeA)
	other := newTestSubscription(t, "a", typeB)
	r.Add(old1, false)
	r.Add(old2, false)
	r.Add(other, false)

	replacement := newTestSubscription(t, "a", typeA)
	assert.Equal(t, 2, r.Add(replacement, true))

	assert.Equal(t, ids([]*subscription{replacement}), ids(r.Match(typeA)))
	assert.Equal(t, SubscriptionStateRemoved, old1.State())
	assert.Equal(t, SubscriptionStateRemoved, old2.State())
	assert.True(t, other.IsActive())
}

func TestRegistry_RemovePreservesOrder(t *testing.T) {
	r := newRegistry()

	subs := []*subscription{
		newTestSubscription(t, 1, typeA),
		newTestSubscription(t, 2, typeA),
		newTestSubscription(t, 3, typeA),
		newTestSubscription(t, 4, typeA),
	}
	for _, s := range subs {
		r.Add(s, false)
	}

	assert.True(t, r.Remove(subs[1].ID()))
	assert.False(t, r.Remove(subs[1].ID()))
	assert.False(t, r.Remove("unknown"))

	assert.Equal(t, ids([]*subscription{subs[0], subs[2], subs[3]}), ids(r.Match(typeA)))
	assert.False(t, subs[1].IsActive())
}

func TestRegistry_RemoveByIdentityAndType(t *testing.T) {
	r := newRegistry()
	r.Add(newTestSubscription(t, "a", typeA), false)
	r.Add(newTestSubscription(t, "a", typeA), false)
	r.Add(newTestSubscription(t, "a", typeB), false)
	r.Add(newTestSubscription(t, "b", typeA), false)

	assert.Equal(t, 2, r.RemoveByIdentityAndType(mustKey(t, "a"), typeA))
	assert.Equal(t, 1, r.CountByType(typeA))
	assert.Equal(t, 1, r.CountByType(typeB))
}

func TestRegistry_RemoveByIdentity(t *testing.T) {
	r := newRegistry()
	r.Add(newTestSubscription(t, "a", typeA), false)
	r.Add(newTestSubscription(t, "a", typeB), false)
	r.Add(newTestSubscription(t, "b", typeA), false)

	assert.Equal(t, 2, r.RemoveByIdentity(mustKey(t, "a")))
	assert.Equal(t, 1, r.Count())
	assert.Zero(t, r.CountByType(typeB))
}

func TestRegistry_RemoveByType(t *testing.T) {
	r := newRegistry()
	r.Add(newTestSubscription(t, "a", typeA), false)
	r.Add(newTestSubscription(t, "b", typeA), false)
	r.Add(newTestSubscription(t, "a", typeB), false)

	assert.Equal(t, 2, r.RemoveByType(typeA))
	assert.Equal(t, 1, r.Count())
	assert.Empty(t, r.Match(typeA))
}

func TestRegistry_PurgeDropsCollectedIdentities(t *testing.T) {
	r := newRegistry()

	var purgedCalls []int
	r.onPurge = func(n int) { purgedCalls = append(purgedCalls, n) }

	func() {
		l := &listener{name: "temporary"}
		r.Add(newTestSubscription(t, l, typeA), false)
		r.Add(newTestSubscription(t, l, typeB), false)
	}()
	kept := &listener{name: "kept"}
	r.Add(newTestSubscription(t, kept, typeA), false)
	r.Add(newTestSubscription(t, "value", typeA), false)

	require.Eventually(t, func() bool {
		runtime.GC()
		r.Purge()
		return r.Count() == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, uint64(2), r.Purged())
	assert.Equal(t, []int{2}, purgedCalls)
	assert.Zero(t, r.Purge())
	runtime.KeepAlive(kept)
}

func TestRegistry_Clear(t *testing.T) {
	r := newRegistry()
	s := newTestSubscription(t, "a", typeA)
	r.Add(s, false)
	r.Add(newTestSubscription(t, "b", typeB), false)

	assert.Equal(t, 2, r.Clear())
	assert.Zero(t, r.Count())
	assert.Empty(t, r.Match(typeA))
	assert.Equal(t, SubscriptionStateRemoved, s.State())
}

func TestSubscription_ShouldDeliver(t *testing.T) {
	nop := dispatch.HandlerFunc(func(context.Context, any) error { return nil })
	var opts []SubscribeOption
	opts = append(opts, WithFilter(func(e eventA) bool { return e.N > 0 }))
	sub := newSubscription(mustKey(t, "a"), typeA, nop, newSubscribeConfig(opts))

	assert.True(t, sub.ShouldDeliver(eventA{N: 1}))
	assert.False(t, sub.ShouldDeliver(eventA{N: 0}))
	assert.False(t, sub.ShouldDeliver(eventB{}))

	assert.True(t, sub.markRemoved())
	assert.False(t, sub.markRemoved())
	assert.False(t, sub.ShouldDeliver(eventA{N: 1}))
	assert.Equal(t, "removed", sub.State().String())
}
