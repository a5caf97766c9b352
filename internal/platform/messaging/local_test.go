package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventsv1 "parley/contracts/gen/events/v1"
)

type collector struct {
	mu       sync.Mutex
	channels []string
	events   []string
}

func (c *collector) handle(channel string, event eventsv1.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = append(c.channels, channel)
	c.events = append(c.events, event.EventID)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func TestLocalDeliversInOrderToEverySubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewLocal(16, nil)
	first, second := &collector{}, &collector{}
	require.NoError(t, bus.Subscribe(ctx, first.handle))
	require.NoError(t, bus.Subscribe(ctx, second.handle))

	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, bus.Publish(ctx, "m1", eventsv1.Envelope{EventID: id}))
	}

	want := []string{"e1", "e2", "e3"}
	require.Eventually(t, func() bool { return len(first.snapshot()) == 3 && len(second.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, first.snapshot())
	assert.Equal(t, want, second.snapshot())
	assert.Equal(t, []string{"m1", "m1", "m1"}, first.channels)
}

func TestLocalReportsFullSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewLocal(1, nil)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	require.NoError(t, bus.Subscribe(ctx, func(string, eventsv1.Envelope) {
		started <- struct{}{}
		<-release
	}))
	defer close(release)

	require.NoError(t, bus.Publish(ctx, "m1", eventsv1.Envelope{EventID: "e1"}))
	<-started
	require.NoError(t, bus.Publish(ctx, "m1", eventsv1.Envelope{EventID: "e2"}))
	assert.ErrorIs(t, bus.Publish(ctx, "m1", eventsv1.Envelope{EventID: "e3"}), ErrSubscriberFull)
}

func TestLocalRemovesSubscriberWhenContextEnds(t *testing.T) {
	bus := NewLocal(4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Subscribe(ctx, func(string, eventsv1.Envelope) {}))
	cancel()

	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subscribers) == 0
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, bus.Publish(context.Background(), "m1", eventsv1.Envelope{EventID: "e1"}))
}

func TestNewRedisRejectsInvalidURL(t *testing.T) {
	_, err := NewRedis("not a url", nil)
	assert.Error(t, err)
}
