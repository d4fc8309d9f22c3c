package redisx

import (
	"context"
	"fmt"
	"sync"

	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PubSubChannel implements events.Channel on Redis PUBLISH/SUBSCRIBE. Redis keeps no
// backlog, so a message published while a subscriber is disconnected is lost.
type PubSubChannel struct {
	rdb *redis.Client
	log *zap.Logger

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
}

type subscription struct {
	ps   *redis.PubSub
	done chan struct{}
}

func NewPubSubChannel(rdb *redis.Client, log *zap.Logger) *PubSubChannel {
	return &PubSubChannel{rdb: rdb, log: log, subs: map[string]*subscription{}}
}

func (c *PubSubChannel) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

func (c *PubSubChannel) Subscribe(ctx context.Context, channel string, h events.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return events.ErrClosed
	}
	if _, ok := c.subs[channel]; ok {
		return fmt.Errorf("%w: %s", events.ErrAlreadySubscribed, channel)
	}

	ps := c.rdb.Subscribe(ctx, channel)
	// wait for the subscribe confirmation so that Subscribe returning means "connected"
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	sub := &subscription{ps: ps, done: make(chan struct{})}
	c.subs[channel] = sub

	go func() {
		defer close(sub.done)
		for msg := range ps.Channel() {
			// handlers run to completion, detached from the subscribe call's context
			if err := h(context.Background(), []byte(msg.Payload)); err != nil {
				c.log.Error("redis subscriber handler failed",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
			}
		}
	}()
	return nil
}

func (c *PubSubChannel) Unsubscribe(_ context.Context, channel string) error {
	c.mu.Lock()
	sub, ok := c.subs[channel]
	delete(c.subs, channel)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	err := sub.ps.Close()
	<-sub.done
	return err
}

// Close drops every subscription. The redis client itself is owned by the caller.
func (c *PubSubChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	names := make([]string, 0, len(c.subs))
	for name := range c.subs {
		names = append(names, name)
	}
	c.mu.Unlock()

	for _, name := range names {
		_ = c.Unsubscribe(context.Background(), name)
	}
	return nil
}
