package kafka

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
)

func setupKafka(t *testing.T) []string {
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run against a kafka container")
	}
	ctx := context.Background()

	kafkaContainer, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers
}

func TestChannel_FanOutAcrossInstances(t *testing.T) {
	brokers := setupKafka(t)
	ctx := context.Background()

	var mu sync.Mutex
	got := map[string]int{}
	record := func(name string) events.MessageHandler {
		return func(context.Context, []byte) error {
			mu.Lock()
			got[name]++
			mu.Unlock()
			return nil
		}
	}

	a := NewChannel(brokers, "catalog", zap.NewNop())
	b := NewChannel(brokers, "catalog", zap.NewNop())
	defer a.Close()
	defer b.Close()
	require.NoError(t, a.Subscribe(ctx, events.OrderPlaced, record("a")))
	require.NoError(t, b.Subscribe(ctx, events.OrderPlaced, record("b")))

	pub := NewChannel(brokers, "orders", zap.NewNop())
	defer pub.Close()

	// group joins are asynchronous; keep publishing until both instances are live
	require.Eventually(t, func() bool {
		_ = pub.Publish(ctx, events.OrderPlaced, []byte(`{"type":"ORDER_PLACED"}`))
		mu.Lock()
		defer mu.Unlock()
		return got["a"] > 0 && got["b"] > 0
	}, 60*time.Second, time.Second)
}

func TestChannel_SubscribeTwiceFails(t *testing.T) {
	brokers := setupKafka(t)
	c := NewChannel(brokers, "orders", zap.NewNop())
	defer c.Close()
	noop := func(context.Context, []byte) error { return nil }

	require.NoError(t, c.Subscribe(context.Background(), events.PaymentProcessed, noop))
	assert.ErrorIs(t, c.Subscribe(context.Background(), events.PaymentProcessed, noop), events.ErrAlreadySubscribed)
	assert.NoError(t, c.Unsubscribe(context.Background(), events.PaymentProcessed))
	assert.NoError(t, c.Unsubscribe(context.Background(), events.PaymentProcessed))
}

func TestChannel_GroupIsPrivatePerInstance(t *testing.T) {
	a := NewChannel([]string{"localhost:9092"}, "orders", zap.NewNop())
	b := NewChannel([]string{"localhost:9092"}, "orders", zap.NewNop())
	defer a.Close()
	defer b.Close()

	assert.NotEqual(t, a.group, b.group)
	assert.Contains(t, a.group, "orders-")
}
