package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/apperr"
	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Kind string

const (
	KindCharge Kind = "CHARGE"
	KindRefund Kind = "REFUND"
)

var (
	ErrAlreadyCharged = fmt.Errorf("%w: order already charged", apperr.ErrConflict)
	ErrInvalidCharge  = fmt.Errorf("%w: charge", apperr.ErrValidation)
)

type Transaction struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"orderId"`
	UserID    string          `json:"userId"`
	Kind      Kind            `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	Message   string          `json:"message,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Store interface {
	// Insert records t. A second transaction of the same kind for one order is rejected
	// with ErrAlreadyCharged when unique is true and silently skipped otherwise.
	Insert(ctx context.Context, t Transaction, unique bool) (inserted bool, err error)
	ListByOrder(ctx context.Context, orderID string) ([]Transaction, error)
}

type Service struct {
	store Store
	pub   *events.Publisher
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store Store, pub *events.Publisher, log *zap.Logger) *Service {
	return &Service{store: store, pub: pub, log: log, now: func() time.Time { return time.Now().UTC() }}
}

type ChargeInput struct {
	OrderID string          `json:"orderId"`
	UserID  string          `json:"userId"`
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message"`
}

// Charge records a captured payment for an order and announces it with PAYMENT_PROCESSED.
// Cash-on-delivery collections go through here as well.
func (s *Service) Charge(ctx context.Context, in ChargeInput) (Transaction, error) {
	if in.OrderID == "" || in.UserID == "" || !in.Amount.IsPositive() {
		return Transaction{}, ErrInvalidCharge
	}
	t := Transaction{
		ID:        uuid.NewString(),
		OrderID:   in.OrderID,
		UserID:    in.UserID,
		Kind:      KindCharge,
		Amount:    in.Amount,
		Message:   in.Message,
		CreatedAt: s.now(),
	}
	if t.Message == "" {
		t.Message = "payment captured"
	}
	if _, err := s.store.Insert(ctx, t, true); err != nil {
		return Transaction{}, err
	}
	s.log.Info("payment captured", zap.String("order_id", t.OrderID), zap.String("transaction_id", t.ID))

	err := s.pub.Publish(ctx, events.PaymentProcessed, events.PaymentProcessedData{
		PaymentTransactionID: t.ID,
		OrderID:              t.OrderID,
		UserID:               t.UserID,
		Message:              t.Message,
	})
	return t, err
}

func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]Transaction, error) {
	return s.store.ListByOrder(ctx, orderID)
}

func (s *Service) RegisterHandlers(c *events.Consumer) error {
	return c.Handle(events.OrderRefundRequested, s.onRefundRequested)
}

// onRefundRequested records the refund once per order; redeliveries are skipped.
func (s *Service) onRefundRequested(ctx context.Context, ev events.Event) error {
	d, err := events.Decode[events.OrderRefundRequestedData](ev)
	if err != nil {
		return err
	}
	inserted, err := s.store.Insert(ctx, Transaction{
		ID:        uuid.NewString(),
		OrderID:   d.OrderID,
		Kind:      KindRefund,
		Amount:    d.Amount,
		Reference: d.PaymentTransactionID,
		Message:   "refund requested by " + ev.Source,
		CreatedAt: s.now(),
	}, false)
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Info("refund already recorded", zap.String("order_id", d.OrderID))
		return nil
	}
	s.log.Info("refund recorded",
		zap.String("order_id", d.OrderID),
		zap.String("payment_transaction_id", d.PaymentTransactionID),
		zap.String("amount", d.Amount.StringFixed(2)),
	)
	return nil
}
