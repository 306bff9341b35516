package order

import (
	"errors"
	"time"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrEmptyOrder      = errors.New("order must have at least one item")
	ErrInvalidQuantity = errors.New("item quantity must be positive")
	ErrUnknownStatus   = errors.New("unknown order status")
)

// Order is a customer purchase record. TotalAmount and TotalItems are
// derived once at creation from the resolved catalog prices and are never
// recomputed afterwards; items are immutable once the order exists.
type Order struct {
	ID             string      `json:"id"`
	TotalAmount    float64     `json:"total_amount"`
	TotalItems     int         `json:"total_items"`
	Status         Status      `json:"status"`
	Paid           bool        `json:"paid"`
	PaidAt         *time.Time  `json:"paid_at,omitempty"`
	StripeChargeID string      `json:"stripe_charge_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Items          []OrderItem `json:"items,omitempty"`
	Receipt        *Receipt    `json:"receipt,omitempty"`
}

// OrderItem is one line of an order. Price is the unit price captured at
// order time; later catalog price changes must not affect it.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Receipt is the payment-confirmation artifact, at most one per order.
type Receipt struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	ReceiptURL string    `json:"receipt_url"`
	CreatedAt  time.Time `json:"created_at"`
}
