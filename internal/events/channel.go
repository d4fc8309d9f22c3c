package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// MessageHandler receives one raw payload. A returned error goes to the transport's error
// path (it is logged); the message is never redelivered.
type MessageHandler func(ctx context.Context, payload []byte) error

// Channel is a named publish/subscribe transport. Delivery is at-most-once and not
// persisted: only subscribers connected at publish time receive a message, and every
// connected subscriber receives it.
type Channel interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, h MessageHandler) error
	Unsubscribe(ctx context.Context, channel string) error
	Close() error
}

var (
	ErrAlreadySubscribed = errors.New("channel already subscribed")
	ErrClosed            = errors.New("channel closed")
)

// MemoryBus is an in-process broker. Each Connect call models one service instance;
// a message published on any connection fans out to every connection subscribed to
// that channel name.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string]map[*MemoryChannel]MessageHandler
	log  *zap.Logger
}

func NewMemoryBus(log *zap.Logger) *MemoryBus {
	return &MemoryBus{subs: map[string]map[*MemoryChannel]MessageHandler{}, log: log}
}

func (b *MemoryBus) Connect() *MemoryChannel {
	return &MemoryChannel{bus: b}
}

type MemoryChannel struct {
	bus    *MemoryBus
	mu     sync.Mutex
	closed bool
}

// Publish delivers synchronously to every current subscriber.
func (c *MemoryChannel) Publish(ctx context.Context, channel string, payload []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.bus.mu.RLock()
	handlers := make([]MessageHandler, 0, len(c.bus.subs[channel]))
	for _, h := range c.bus.subs[channel] {
		handlers = append(handlers, h)
	}
	c.bus.mu.RUnlock()

	for _, h := range handlers {
		msg := append([]byte(nil), payload...)
		if err := h(ctx, msg); err != nil {
			c.bus.log.Error("memory channel handler failed", zap.String("channel", channel), zap.Error(err))
		}
	}
	return nil
}

func (c *MemoryChannel) Subscribe(_ context.Context, channel string, h MessageHandler) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	set, ok := c.bus.subs[channel]
	if !ok {
		set = map[*MemoryChannel]MessageHandler{}
		c.bus.subs[channel] = set
	}
	if _, dup := set[c]; dup {
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, channel)
	}
	set[c] = h
	return nil
}

func (c *MemoryChannel) Unsubscribe(_ context.Context, channel string) error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	delete(c.bus.subs[channel], c)
	return nil
}

func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	for _, set := range c.bus.subs {
		delete(set, c)
	}
	return nil
}

func (c *MemoryChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
