package service

import (
	"context"
	"testing"
	"time"

	"eventmarket/pkg/events"
	"eventmarket/pkg/kafka"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestNotifier_BroadcastWakesCurrentSubscribersOnly(t *testing.T) {
	n := NewNotifier()
	key := model.NewResourceKey(model.ResourceEvent, "evt-1")
	other := model.NewResourceKey(model.ResourceEvent, "evt-2")

	first, _ := n.Subscribe(key)
	second, _ := n.Subscribe(key)
	unrelated, _ := n.Subscribe(other)
	assert.Equal(t, 2, n.Waiting())

	n.Broadcast(key)
	assert.True(t, closed(first))
	assert.True(t, closed(second))
	assert.False(t, closed(unrelated))

	late, _ := n.Subscribe(key)
	assert.False(t, closed(late))

	// Broadcasting with no subscribers is a no-op.
	n.Broadcast(model.NewResourceKey(model.ResourceBooking, "b-1"))
}

func TestNotifier_UnsubscribeDropsIdleBarriers(t *testing.T) {
	n := NewNotifier()
	key := model.NewResourceKey(model.ResourceQuotation, "q-1")

	first, dropFirst := n.Subscribe(key)
	_, dropSecond := n.Subscribe(key)
	assert.Equal(t, 1, n.Waiting())

	dropFirst()
	dropFirst()
	assert.Equal(t, 1, n.Waiting(), "a remaining subscriber keeps the barrier")

	dropSecond()
	assert.Equal(t, 0, n.Waiting())

	n.Broadcast(key)
	assert.False(t, closed(first), "an abandoned barrier is not closed later")

	// A subscription dropped after its barrier was broadcast leaves the
	// next barrier for the key alone.
	woken, dropWoken := n.Subscribe(key)
	n.Broadcast(key)
	assert.True(t, closed(woken))
	next, dropNext := n.Subscribe(key)
	dropWoken()
	assert.Equal(t, 1, n.Waiting())
	assert.False(t, closed(next))
	dropNext()
	assert.Equal(t, 0, n.Waiting())
}

func lockReleasedMessage(t *testing.T, event events.LockReleased) kafka.Message {
	t.Helper()
	msg, err := kafka.NewMessage().
		WithKey(event.ResourceKey).
		WithEventType(events.TypeLockReleased).
		WithSource(event.Origin).
		WithValue(event).
		Build()
	require.NoError(t, err)
	return msg
}

func TestReleaseListener(t *testing.T) {
	n := NewNotifier()
	listener := NewReleaseListener(n, "locks-a", logger.Discard())
	key := model.NewResourceKey(model.ResourceQuotation, "q-9")
	ctx := context.Background()

	t.Run("own events are skipped", func(t *testing.T) {
		wake, unsubscribe := n.Subscribe(key)
		defer unsubscribe()
		msg := lockReleasedMessage(t, events.LockReleased{ResourceKey: key.String(), Kind: events.ReleaseByHolder, Origin: "locks-a"})
		require.NoError(t, listener.Handle(ctx, msg))
		assert.False(t, closed(wake))
	})

	t.Run("remote events wake waiters", func(t *testing.T) {
		wake, unsubscribe := n.Subscribe(key)
		defer unsubscribe()
		msg := lockReleasedMessage(t, events.LockReleased{ResourceKey: key.String(), Kind: events.ReleaseForced, Origin: "locks-b"})
		require.NoError(t, listener.Handle(ctx, msg))

		select {
		case <-wake:
		case <-time.After(time.Second):
			t.Fatal("waiter not woken")
		}
	})

	t.Run("bad keys are permanent failures", func(t *testing.T) {
		msg := lockReleasedMessage(t, events.LockReleased{ResourceKey: "nonsense", Origin: "locks-b"})
		err := listener.Handle(ctx, msg)
		require.Error(t, err)
		assert.False(t, kafka.ShouldRetry(err, 0, 3))
	})

	t.Run("other event types are ignored", func(t *testing.T) {
		msg, err := kafka.NewMessage().WithKey("jc-1").WithEventType(events.TypeJobCartAccepted).WithValue(map[string]string{"a": "b"}).Build()
		require.NoError(t, err)
		assert.NoError(t, listener.Handle(ctx, msg))
	})
}
