package orders

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"go.uber.org/zap"
)

// RegisterHandlers subscribes the order service to the events that move an order forward.
func (s *Service) RegisterHandlers(c *events.Consumer) error {
	handlers := []struct {
		typ string
		h   events.HandlerFunc
	}{
		{events.PaymentProcessed, s.onPaymentProcessed},
		{events.OrderShipped, s.onOrderShipped},
		{events.OrderDelivered, s.onOrderDelivered},
	}
	for _, h := range handlers {
		if err := c.Handle(h.typ, h.h); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) onPaymentProcessed(ctx context.Context, ev events.Event) error {
	d, err := events.Decode[events.PaymentProcessedData](ev)
	if err != nil {
		return err
	}
	return s.advance(ctx, ev, d.OrderID, StatusPending, StatusPaid, d.Message, func(o *Order) {
		o.PaymentTransactionID = d.PaymentTransactionID
		o.AwaitingDelivery = true
	})
}

func (s *Service) onOrderShipped(ctx context.Context, ev events.Event) error {
	d, err := events.Decode[events.OrderShippedData](ev)
	if err != nil {
		return err
	}
	return s.advance(ctx, ev, d.OrderID, StatusPaid, StatusShipped, "tracking "+d.TrackingNumber, func(o *Order) {
		o.TrackingNumber = d.TrackingNumber
	})
}

func (s *Service) onOrderDelivered(ctx context.Context, ev events.Event) error {
	d, err := events.Decode[events.OrderDeliveredData](ev)
	if err != nil {
		return err
	}
	return s.advance(ctx, ev, d.OrderID, StatusShipped, StatusDelivered, "delivered", func(o *Order) {
		if d.TrackingNumber != "" {
			o.TrackingNumber = d.TrackingNumber
		}
		o.AwaitingDelivery = false
	})
}

// advance moves orderID from one status to the next. The expected current status is checked
// under the row lock, so a redelivered or out-of-order event changes nothing. Events for
// orders this service does not know are acknowledged.
func (s *Service) advance(ctx context.Context, ev events.Event, orderID string, from, to Status, note string, apply func(o *Order)) error {
	applied := false
	_, err := s.store.Update(ctx, orderID, func(o *Order) (*Change, error) {
		if o.Status != from {
			s.log.Info("transition ignored",
				zap.String("event_type", ev.Type),
				zap.String("order_id", orderID),
				zap.String("status", string(o.Status)),
				zap.String("expected", string(from)),
			)
			return nil, nil
		}
		apply(o)
		o.UpdatedAt = s.now()
		applied = true
		return &Change{To: to, Note: note, ChangedBy: ev.Source}, nil
	})
	if errors.Is(err, ErrOrderNotFound) {
		s.log.Warn("event for unknown order", zap.String("event_type", ev.Type), zap.String("order_id", orderID))
		return nil
	}
	if err != nil {
		return err
	}
	if applied {
		s.log.Info("order status changed",
			zap.String("order_id", orderID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
	}
	return nil
}
