package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartSource hands over the buyer's cart as the item snapshots an order is built from.
type CartSource interface {
	Snapshot(ctx context.Context, userID string) ([]events.ItemSnapshot, error)
}

type Service struct {
	store   Store
	cart    CartSource
	pub     *events.Publisher
	pricing Pricing
	log     *zap.Logger
	now     func() time.Time
}

func NewService(store Store, cart CartSource, pub *events.Publisher, pricing Pricing, log *zap.Logger) *Service {
	return &Service{
		store:   store,
		cart:    cart,
		pub:     pub,
		pricing: pricing,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type PlaceOrderInput struct {
	UserID          string      `json:"userId"`
	Email           string      `json:"email"`
	PaymentType     PaymentType `json:"paymentType"`
	ShippingAddress Address     `json:"shippingAddress"`
}

// PlaceOrder turns the user's cart into a PENDING order and announces it with ORDER_PLACED.
// If the announcement fails the order is still returned, together with an error wrapping
// events.ErrPublish.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (Order, error) {
	if in.UserID == "" {
		return Order{}, ErrMissingUser
	}
	if !in.PaymentType.Valid() {
		return Order{}, ErrInvalidPaymentType
	}
	lines, err := s.cart.Snapshot(ctx, in.UserID)
	if err != nil {
		return Order{}, fmt.Errorf("read cart: %w", err)
	}
	if len(lines) == 0 {
		return Order{}, ErrEmptyCart
	}

	now := s.now()
	o := Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Email:           in.Email,
		PaymentType:     in.PaymentType,
		Status:          StatusPending,
		ShippingAddress: in.ShippingAddress,
		// cash on delivery goes to fulfilment straight away
		AwaitingDelivery: in.PaymentType == PaymentCashOnDelivery,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, l := range lines {
		o.Items = append(o.Items, Item{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			ProductID:   l.ProductID,
			VariantID:   l.VariantID,
			ProductName: l.ProductName,
			ProductSKU:  l.ProductSKU,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}
	t := s.pricing.Price(o.Items)
	o.Subtotal, o.ShippingCost, o.TaxAmount, o.TotalAmount = t.Subtotal, t.ShippingCost, t.TaxAmount, t.TotalAmount

	first := StatusHistory{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		ToStatus:  StatusPending,
		Note:      "order placed",
		ChangedBy: in.UserID,
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, o, first); err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	s.log.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("payment_type", string(o.PaymentType)),
		zap.String("total", o.TotalAmount.StringFixed(2)),
	)

	err = s.pub.Publish(ctx, events.OrderPlaced, events.OrderPlacedData{
		OrderID:      o.ID,
		Status:       string(o.Status),
		UserID:       o.UserID,
		PaymentType:  string(o.PaymentType),
		Items:        o.snapshots(),
		Subtotal:     o.Subtotal,
		ShippingCost: o.ShippingCost,
		TaxAmount:    o.TaxAmount,
		TotalAmount:  o.TotalAmount,
		Email:        o.Email,
	})
	return o, err
}

// CancelOrder cancels a PENDING or PAID order owned by userID. A PAID order that carries a
// payment reference moves to REFUNDED and a refund is requested; everything else moves
// to CANCELLED. Any other status is rejected and left untouched.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID, reason string) (Order, error) {
	var previous Status
	var refund bool
	o, err := s.store.Update(ctx, orderID, func(o *Order) (*Change, error) {
		if userID != "" && o.UserID != userID {
			return nil, ErrOrderNotFound
		}
		if !CanTransition(o.Status, StatusCancelled) {
			return nil, fmt.Errorf("%w: order is %s", ErrNotCancellable, o.Status)
		}
		previous = o.Status
		to := StatusCancelled
		if o.Status == StatusPaid && o.PaymentTransactionID != "" {
			to, refund = StatusRefunded, true
		}
		o.AwaitingDelivery = false
		o.UpdatedAt = s.now()
		return &Change{To: to, Note: reason, ChangedBy: userID}, nil
	})
	if err != nil {
		return Order{}, err
	}
	s.log.Info("order cancelled",
		zap.String("order_id", o.ID),
		zap.String("previous_status", string(previous)),
		zap.String("status", string(o.Status)),
	)

	pubErr := s.pub.Publish(ctx, events.OrderCancelled, events.OrderCancelledData{
		OrderID:        o.ID,
		Status:         string(o.Status),
		RequiresRefund: refund,
		PreviousStatus: string(previous),
		Items:          o.snapshots(),
		UserID:         o.UserID,
		Reason:         reason,
		Email:          o.Email,
	})
	if refund {
		err := s.pub.Publish(ctx, events.OrderRefundRequested, events.OrderRefundRequestedData{
			OrderID:              o.ID,
			PaymentTransactionID: o.PaymentTransactionID,
			Amount:               o.TotalAmount,
			Email:                o.Email,
		})
		pubErr = errors.Join(pubErr, err)
	}
	return o, pubErr
}

func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) History(ctx context.Context, orderID string) ([]StatusHistory, error) {
	if _, err := s.store.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, orderID)
}
