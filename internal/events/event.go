package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event types. The type string is also the name of the channel the event travels on.
const (
	OrderPlaced          = "ORDER_PLACED"
	OrderCancelled       = "ORDER_CANCELLED"
	OrderRefundRequested = "ORDER_REFUND_REQUESTED"
	OrderShipped         = "ORDER_SHIPPED"
	OrderDelivered       = "ORDER_DELIVERED"
	PaymentProcessed     = "PAYMENT_PROCESSED"
	ProductPriceChanged  = "PRODUCT_PRICE_CHANGED"
	EmailVerified        = "EMAIL_VERIFIED"
)

// SchemaVersion is stamped on every published event; bump it when a payload changes shape.
const SchemaVersion = "1.0"

// Event is the wire envelope shared by all producers and consumers.
type Event struct {
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
	Data      json.RawMessage `json:"data"`
}

// Decode unmarshals the event data into the payload type T.
func Decode[T any](ev Event) (T, error) {
	var t T
	if err := json.Unmarshal(ev.Data, &t); err != nil {
		return t, fmt.Errorf("decode %s data: %w", ev.Type, err)
	}
	return t, nil
}

// ---- payloads ----
// All payloads use the same camelCase field names; item arrays always use ItemSnapshot.

// ItemSnapshot freezes what was bought at the moment the order was placed.
type ItemSnapshot struct {
	ProductID   string          `json:"productId"`
	VariantID   string          `json:"variantId,omitempty"`
	ProductName string          `json:"productName"`
	ProductSKU  string          `json:"productSku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type OrderPlacedData struct {
	OrderID      string          `json:"orderId"`
	Status       string          `json:"status"`
	UserID       string          `json:"userId"`
	PaymentType  string          `json:"paymentType"`
	Items        []ItemSnapshot  `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	TaxAmount    decimal.Decimal `json:"taxAmount"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Email        string          `json:"email"`
}

type OrderCancelledData struct {
	OrderID        string         `json:"orderId"`
	Status         string         `json:"status"`
	RequiresRefund bool           `json:"requiresRefund"`
	PreviousStatus string         `json:"previousStatus"`
	Items          []ItemSnapshot `json:"items"`
	UserID         string         `json:"userId"`
	Reason         string         `json:"reason"`
	Email          string         `json:"email"`
}

type OrderRefundRequestedData struct {
	OrderID              string          `json:"orderId"`
	PaymentTransactionID string          `json:"paymentTransactionId"`
	Amount               decimal.Decimal `json:"amount"`
	Email                string          `json:"email"`
}

type PaymentProcessedData struct {
	PaymentTransactionID string `json:"paymentTransactionId"`
	OrderID              string `json:"orderId"`
	UserID               string `json:"userId"`
	Message              string `json:"message"`
}

type OrderShippedData struct {
	OrderID        string    `json:"orderId"`
	UserID         string    `json:"userId"`
	TrackingNumber string    `json:"trackingNumber"`
	ShippedAt      time.Time `json:"shippedAt"`
}

type OrderDeliveredData struct {
	OrderID        string    `json:"orderId"`
	UserID         string    `json:"userId"`
	TrackingNumber string    `json:"trackingNumber"`
	DeliveredAt    time.Time `json:"deliveredAt"`
}

type ProductPriceChangedData struct {
	ProductID   string          `json:"productId"`
	ProductSKU  string          `json:"productSku"`
	ProductName string          `json:"productName"`
	OldPrice    decimal.Decimal `json:"oldPrice"`
	NewPrice    decimal.Decimal `json:"newPrice"`
}

type EmailVerifiedData struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}
