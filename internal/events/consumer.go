package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// HandlerFunc applies one event to the local store. It must tolerate both duplicate
// and missing deliveries.
type HandlerFunc func(ctx context.Context, ev Event) error

var ErrDuplicateHandler = errors.New("handler already registered")

// Consumer owns the set of event types a service reacts to, one handler per type.
type Consumer struct {
	ch     Channel
	log    *zap.Logger
	tracer trace.Tracer

	mu         sync.Mutex
	handlers   map[string]HandlerFunc
	subscribed []string
}

func NewConsumer(ch Channel, log *zap.Logger) *Consumer {
	return &Consumer{
		ch:       ch,
		log:      log,
		tracer:   otel.Tracer("events"),
		handlers: map[string]HandlerFunc{},
	}
}

// Handle registers h for eventType. Must be called before Start.
func (c *Consumer) Handle(eventType string, h HandlerFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handlers[eventType]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, eventType)
	}
	c.handlers[eventType] = h
	return nil
}

// Start subscribes to every registered event type. If one subscription fails the ones
// already made are undone.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	types := make([]string, 0, len(c.handlers))
	for t := range c.handlers {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		if err := c.ch.Subscribe(ctx, t, c.dispatch(t, c.handlers[t])); err != nil {
			for _, done := range c.subscribed {
				_ = c.ch.Unsubscribe(ctx, done)
			}
			c.subscribed = nil
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
		c.subscribed = append(c.subscribed, t)
		c.log.Info("subscribed", zap.String("event_type", t))
	}
	return nil
}

func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, t := range c.subscribed {
		errs = append(errs, c.ch.Unsubscribe(ctx, t))
	}
	c.subscribed = nil
	return errors.Join(errs...)
}

func (c *Consumer) dispatch(eventType string, h HandlerFunc) MessageHandler {
	return func(ctx context.Context, payload []byte) error {
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			c.log.Error("malformed event",
				zap.String("channel", eventType),
				zap.ByteString("event", payload),
				zap.Error(err),
			)
			return fmt.Errorf("decode event on %s: %w", eventType, err)
		}
		if ev.Type != eventType {
			c.log.Error("event type does not match channel",
				zap.String("channel", eventType),
				zap.ByteString("event", payload),
			)
			return fmt.Errorf("event type %q on channel %s", ev.Type, eventType)
		}

		ctx, span := c.tracer.Start(ctx, "events.handle", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()
		span.SetAttributes(
			attribute.String("event.type", ev.Type),
			attribute.String("event.source", ev.Source),
			attribute.String("event.version", ev.Version),
		)

		if err := h(ctx, ev); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler failed")
			c.log.Error("event handler failed",
				zap.String("event_type", ev.Type),
				zap.ByteString("event", payload),
				zap.Error(err),
			)
			return err
		}
		return nil
	}
}
