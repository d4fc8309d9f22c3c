package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrPublish marks a notification that did not reach the channel. The local write that
// preceded it is committed; downstream services just may never hear about it.
var ErrPublish = errors.New("event not published")

type Publisher struct {
	ch     Channel
	source string
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewPublisher returns a publisher that stamps source on every event.
func NewPublisher(ch Channel, source string, log *zap.Logger) *Publisher {
	return &Publisher{
		ch:     ch,
		source: source,
		log:    log,
		tracer: otel.Tracer("events"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Publish wraps data in an envelope and writes it to the channel named eventType.
// Call it only after the local transaction committed.
func (p *Publisher) Publish(ctx context.Context, eventType string, data any) error {
	ctx, span := p.tracer.Start(ctx, "events.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", eventType),
		attribute.String("event.source", p.source),
	)

	raw, err := json.Marshal(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal data")
		p.log.Error("publish failed: marshal data", zap.String("event_type", eventType), zap.Error(err))
		return fmt.Errorf("%w: %s: marshal data: %w", ErrPublish, eventType, err)
	}
	ev := Event{
		Type:      eventType,
		Source:    p.source,
		Timestamp: p.now(),
		Version:   SchemaVersion,
		Data:      raw,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal envelope")
		p.log.Error("publish failed: marshal envelope", zap.String("event_type", eventType), zap.Error(err))
		return fmt.Errorf("%w: %s: marshal envelope: %w", ErrPublish, eventType, err)
	}

	if err := p.ch.Publish(ctx, eventType, b); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish")
		p.log.Error("publish failed",
			zap.String("event_type", eventType),
			zap.ByteString("event", b),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s: %w", ErrPublish, eventType, err)
	}
	p.log.Debug("event published", zap.String("event_type", eventType))
	return nil
}
