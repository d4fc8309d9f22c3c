package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Channel implements events.Channel on Kafka topics, one topic per channel name.
type Channel struct {
	brokers []string
	group   string
	prod    *producer
	log     *zap.Logger

	mu      sync.Mutex
	readers map[string]*reader
	closed  bool
}

// NewChannel connects lazily; service names the consumer-group prefix.
func NewChannel(brokers []string, service string, log *zap.Logger) *Channel {
	return &Channel{
		brokers: brokers,
		group:   fmt.Sprintf("%s-%s", service, uuid.NewString()),
		prod:    newProducer(brokers),
		log:     log,
		readers: map[string]*reader{},
	}
}

func (c *Channel) Publish(ctx context.Context, channel string, payload []byte) error {
	err := c.prod.write(ctx, channel, payload,
		kafka.Header{Key: "x-event-type", Value: []byte(channel)},
	)
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", channel, err)
	}
	return nil
}

func (c *Channel) Subscribe(_ context.Context, channel string, h events.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return events.ErrClosed
	}
	if _, ok := c.readers[channel]; ok {
		return fmt.Errorf("%w: %s", events.ErrAlreadySubscribed, channel)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rd := &reader{
		r:      newReader(c.brokers, c.group, channel),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.readers[channel] = rd
	go rd.run(runCtx, h, c.log.With(zap.String("topic", channel), zap.String("group", c.group)))
	return nil
}

func (c *Channel) Unsubscribe(_ context.Context, channel string) error {
	c.mu.Lock()
	rd, ok := c.readers[channel]
	delete(c.readers, channel)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return rd.stop()
}

func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	readers := c.readers
	c.readers = map[string]*reader{}
	c.mu.Unlock()

	var errs []error
	for _, rd := range readers {
		errs = append(errs, rd.stop())
	}
	errs = append(errs, c.prod.close())
	return errors.Join(errs...)
}
