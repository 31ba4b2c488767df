package ringchan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](ch <-chan T) []T {
	var out []T
	for v := range ch {
		out = append(out, v)
	}
	return out
}

func TestRingChannel_OverwritesOldest(t *testing.T) {
	rc := New[int](3)
	dropped := 0
	for i := 0; i < 10; i++ {
		if rc.Send(i) {
			dropped++
		}
	}
	rc.Close()

	assert.Equal(t, []int{7, 8, 9}, drain(rc.C()))
	assert.Equal(t, 7, dropped)
}

func TestRingChannel_SendAfterCloseIsNoop(t *testing.T) {
	rc := New[string](1)
	rc.Close()
	rc.Close()

	assert.NotPanics(t, func() { rc.Send("late") })
	assert.Empty(t, drain(rc.C()))
}

func TestRingChannel_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := b.Subscribe(ctx, 4)
	c := b.Subscribe(ctx, 4)
	require.Equal(t, 2, b.Len())

	assert.Zero(t, b.Publish(1))
	assert.Zero(t, b.Publish(2))
	b.Close()

	assert.Equal(t, []int{1, 2}, drain(a))
	assert.Equal(t, []int{1, 2}, drain(c))
}

func TestBroadcaster_PublishReportsSlowSubscribers(t *testing.T) {
	b := NewBroadcaster[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := b.Subscribe(ctx, 1)
	fast := b.Subscribe(ctx, 4)

	assert.Zero(t, b.Publish(1))
	assert.Equal(t, 1, b.Publish(2), "only the one-slot subscriber overflows")
	b.Close()

	assert.Equal(t, []int{2}, drain(slow))
	assert.Equal(t, []int{1, 2}, drain(fast))
}

func TestBroadcaster_UnsubscribeOnContextDone(t *testing.T) {
	b := NewBroadcaster[int]()
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx, 1)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel must be closed after cancel")
	case <-time.After(time.Second):
		require.FailNow(t, "subscriber channel not closed")
	}
	assert.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.NotPanics(t, func() { b.Publish(3) })
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster[int]()
	b.Close()

	_, ok := <-b.Subscribe(context.Background(), 1)
	assert.False(t, ok)
}
