package orders

import (
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/shopspring/decimal"
)

type PaymentType string

const (
	PaymentPayNow         PaymentType = "PAY_NOW"
	PaymentCashOnDelivery PaymentType = "CASH_ON_DELIVERY"
)

func (p PaymentType) Valid() bool {
	return p == PaymentPayNow || p == PaymentCashOnDelivery
}

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type Order struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"userId"`
	Email                string          `json:"email"`
	PaymentType          PaymentType     `json:"paymentType"`
	Status               Status          `json:"status"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	ShippingCost         decimal.Decimal `json:"shippingCost"`
	TaxAmount            decimal.Decimal `json:"taxAmount"`
	TotalAmount          decimal.Decimal `json:"totalAmount"`
	PaymentTransactionID string          `json:"paymentTransactionId,omitempty"`
	AwaitingDelivery     bool            `json:"awaitingDelivery"`
	TrackingNumber       string          `json:"trackingNumber,omitempty"`
	ShippingAddress      Address         `json:"shippingAddress"`
	Items                []Item          `json:"items"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// Item is a snapshot of a product line taken when the order was placed. It never
// changes afterwards, whatever happens to the product.
type Item struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	ProductID   string          `json:"productId"`
	VariantID   string          `json:"variantId,omitempty"`
	ProductName string          `json:"productName"`
	ProductSKU  string          `json:"productSku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

func (it Item) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// StatusHistory is one append-only row per status change. FromStatus is empty for the
// row written when the order is created.
type StatusHistory struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"orderId"`
	FromStatus Status    `json:"fromStatus,omitempty"`
	ToStatus   Status    `json:"toStatus"`
	Note       string    `json:"note,omitempty"`
	ChangedBy  string    `json:"changedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Change describes a transition to apply under the order's row lock.
type Change struct {
	To        Status
	Note      string
	ChangedBy string
}

func (o Order) snapshots() []events.ItemSnapshot {
	out := make([]events.ItemSnapshot, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, events.ItemSnapshot{
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			ProductSKU:  it.ProductSKU,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return out
}
