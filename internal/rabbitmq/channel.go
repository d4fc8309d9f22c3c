package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Channel implements events.Channel with one fanout exchange per channel name. Every
// subscriber binds its own exclusive, auto-deleted queue and consumes with auto-ack, so
// delivery is fan-out and at-most-once, and nothing is kept for absent subscribers.
// A lost connection or channel is redialled: the publisher channel on the next Publish,
// each subscription by its own goroutine with backoff. Messages sent while a subscriber
// is down are lost.
type Channel struct {
	url string
	log *zap.Logger

	connMu sync.Mutex
	conn   *amqp.Connection

	pubMu    sync.Mutex
	pub      *amqp.Channel
	declared map[string]bool

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
}

type subscription struct {
	mu   sync.Mutex
	ch   *amqp.Channel
	stop chan struct{}
	done chan struct{}
}

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Dial connects to RabbitMQ, retrying while the broker starts up.
func Dial(url string, log *zap.Logger) (*Channel, error) {
	c := &Channel{
		url:      url,
		log:      log,
		declared: map[string]bool{},
		subs:     map[string]*subscription{},
	}
	var conn *amqp.Connection
	var err error
	for i := 0; i < 10; i++ {
		conn, err = c.dial()
		if err == nil {
			break
		}
		log.Warn("rabbitmq dial failed, retrying", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	c.conn = conn

	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	c.pub = pub
	return c, nil
}

func (c *Channel) dial() (*amqp.Connection, error) {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return nil, err
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if reason, ok := <-closed; ok && reason != nil {
			c.log.Error("rabbitmq connection lost", zap.Error(reason))
		}
	}()
	return conn, nil
}

// openChannel opens a channel on the current connection, redialling it first when it
// has been closed.
func (c *Channel) openChannel() (*amqp.Channel, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, events.ErrClosed
		}
		conn, err := c.dial()
		if err != nil {
			return nil, fmt.Errorf("failed to reconnect to RabbitMQ: %w", err)
		}
		c.log.Info("rabbitmq reconnected")
		c.conn = conn
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return ch, nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,     // name
		"fanout", // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // args
	)
}

func (c *Channel) Publish(ctx context.Context, channel string, payload []byte) error {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	if c.pub == nil || c.pub.IsClosed() {
		pub, err := c.openChannel()
		if err != nil {
			return err
		}
		c.pub = pub
		c.declared = map[string]bool{}
	}
	if !c.declared[channel] {
		if err := declareExchange(c.pub, channel); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", channel, err)
		}
		c.declared[channel] = true
	}

	err := c.pub.PublishWithContext(ctx,
		channel, // exchange
		"",      // routing key, ignored by fanout
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			MessageId:    uuid.NewString(),
			Type:         channel,
			ContentType:  "application/json",
			Timestamp:    time.Now(),
			Body:         payload,
			DeliveryMode: amqp.Transient,
		})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (c *Channel) Subscribe(_ context.Context, channel string, h events.MessageHandler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return events.ErrClosed
	}
	if _, ok := c.subs[channel]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", events.ErrAlreadySubscribed, channel)
	}
	c.mu.Unlock()

	ch, deliveries, closed, err := c.consume(channel)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ch.Close()
		return events.ErrClosed
	}
	if _, ok := c.subs[channel]; ok {
		c.mu.Unlock()
		_ = ch.Close()
		return fmt.Errorf("%w: %s", events.ErrAlreadySubscribed, channel)
	}
	sub := &subscription{ch: ch, stop: make(chan struct{}), done: make(chan struct{})}
	c.subs[channel] = sub
	c.mu.Unlock()

	go c.run(channel, sub, h, deliveries, closed)
	return nil
}

// run dispatches deliveries until the subscription is stopped, re-opening the channel
// whenever the broker closes it underneath.
func (c *Channel) run(channel string, sub *subscription, h events.MessageHandler, deliveries <-chan amqp.Delivery, closed <-chan *amqp.Error) {
	defer close(sub.done)
	for {
		for d := range deliveries {
			if err := h(context.Background(), d.Body); err != nil {
				c.log.Error("rabbitmq subscriber handler failed",
					zap.String("exchange", channel),
					zap.String("message_id", d.MessageId),
					zap.Error(err),
				)
			}
		}
		select {
		case <-sub.stop:
			return
		default:
		}

		var reason error
		if r, ok := <-closed; ok && r != nil {
			reason = r
		}
		c.log.Warn("rabbitmq subscription lost, resubscribing", zap.String("exchange", channel), zap.Error(reason))

		var ok bool
		deliveries, closed, ok = c.resubscribe(channel, sub)
		if !ok {
			return
		}
	}
}

func (c *Channel) resubscribe(channel string, sub *subscription) (<-chan amqp.Delivery, <-chan *amqp.Error, bool) {
	wait := minBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-sub.stop:
			return nil, nil, false
		case <-time.After(wait):
		}

		ch, deliveries, closed, err := c.consume(channel)
		if err != nil {
			if errors.Is(err, events.ErrClosed) {
				return nil, nil, false
			}
			c.log.Warn("rabbitmq resubscribe failed",
				zap.String("exchange", channel), zap.Int("attempt", attempt), zap.Error(err))
			wait = nextBackoff(wait)
			continue
		}

		sub.mu.Lock()
		select {
		case <-sub.stop:
			sub.mu.Unlock()
			_ = ch.Close()
			return nil, nil, false
		default:
		}
		sub.ch = ch
		sub.mu.Unlock()
		c.log.Info("rabbitmq resubscribed", zap.String("exchange", channel), zap.Int("attempt", attempt))
		return deliveries, closed, true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func (c *Channel) consume(exchange string) (*amqp.Channel, <-chan amqp.Delivery, <-chan *amqp.Error, error) {
	ch, err := c.openChannel()
	if err != nil {
		return nil, nil, nil, err
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	deliveries, err := bindAndConsume(ch, exchange)
	if err != nil {
		_ = ch.Close()
		return nil, nil, nil, err
	}
	return ch, deliveries, closed, nil
}

func bindAndConsume(ch *amqp.Channel, exchange string) (<-chan amqp.Delivery, error) {
	if err := declareExchange(ch, exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare a queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue to %s: %w", exchange, err)
	}
	deliveries, err := ch.Consume(
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register a consumer: %w", err)
	}
	return deliveries, nil
}

// stopSub ends a subscription and waits for its goroutine. A channel the broker already
// closed is not an error.
func stopSub(sub *subscription) error {
	sub.mu.Lock()
	close(sub.stop)
	ch := sub.ch
	sub.mu.Unlock()

	err := ch.Close()
	<-sub.done
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

func (c *Channel) Unsubscribe(_ context.Context, channel string) error {
	c.mu.Lock()
	sub, ok := c.subs[channel]
	delete(c.subs, channel)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return stopSub(sub)
}

func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	subs := c.subs
	c.subs = map[string]*subscription{}
	c.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		errs = append(errs, stopSub(sub))
	}
	c.pubMu.Lock()
	if c.pub != nil {
		if err := c.pub.Close(); !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	c.pubMu.Unlock()
	c.connMu.Lock()
	if err := c.conn.Close(); !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	c.connMu.Unlock()
	return errors.Join(errs...)
}
