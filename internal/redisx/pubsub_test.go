package redisx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type collected struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collected) handle(_ context.Context, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, string(p))
	return nil
}

func (c *collected) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func newClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestPubSubChannel_FanOut(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	first := NewPubSubChannel(newClient(t, mr), zap.NewNop())
	second := NewPubSubChannel(newClient(t, mr), zap.NewNop())
	defer first.Close()
	defer second.Close()

	a, b := &collected{}, &collected{}
	require.NoError(t, first.Subscribe(ctx, events.OrderPlaced, a.handle))
	require.NoError(t, second.Subscribe(ctx, events.OrderPlaced, b.handle))

	pub := NewPubSubChannel(newClient(t, mr), zap.NewNop())
	require.NoError(t, pub.Publish(ctx, events.OrderPlaced, []byte(`{"type":"ORDER_PLACED"}`)))

	require.Eventually(t, func() bool { return a.len() == 1 && b.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, `{"type":"ORDER_PLACED"}`, a.msgs[0])
}

func TestPubSubChannel_UnsubscribeStopsDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	ch := NewPubSubChannel(newClient(t, mr), zap.NewNop())
	defer ch.Close()
	got := &collected{}
	require.NoError(t, ch.Subscribe(ctx, events.OrderCancelled, got.handle))
	assert.ErrorIs(t, ch.Subscribe(ctx, events.OrderCancelled, got.handle), events.ErrAlreadySubscribed)

	require.NoError(t, ch.Unsubscribe(ctx, events.OrderCancelled))
	require.NoError(t, ch.Unsubscribe(ctx, events.OrderCancelled))

	require.NoError(t, ch.Publish(ctx, events.OrderCancelled, []byte(`{}`)))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, got.len())
}

func TestPubSubChannel_ClosedRejectsSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	ch := NewPubSubChannel(newClient(t, mr), zap.NewNop())
	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Subscribe(context.Background(), events.OrderPlaced, (&collected{}).handle), events.ErrClosed)
}

func TestPubSubChannel_PublishErrorWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	ch := NewPubSubChannel(newClient(t, mr), zap.NewNop())
	mr.Close()

	err := ch.Publish(context.Background(), events.OrderPlaced, []byte(`{}`))
	assert.Error(t, err)
}
