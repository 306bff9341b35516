package store

import (
	"context"
	"time"

	"github.com/example/orders-ms/internal/domain/order"
)

// ListFilter narrows and pages an order listing. A nil Status matches all
// statuses. Page is 1-based.
type ListFilter struct {
	Status *order.Status
	Page   int
	Limit  int
}

// PaidUpdate carries the payment-confirmation fields that must be applied
// together.
type PaidUpdate struct {
	StripeChargeID string
	ReceiptURL     string
	PaidAt         time.Time
}

// OrderStore is the durable record of orders and their line items.
type OrderStore interface {
	// CreateOrder persists the order and all of its items atomically:
	// either every row exists afterwards or none do.
	CreateOrder(ctx context.Context, o *order.Order) error

	// GetOrder returns the order with its items, or order.ErrOrderNotFound.
	GetOrder(ctx context.Context, id string) (*order.Order, error)

	// ListOrders returns the requested page plus the total count of
	// matching orders. Items are not loaded on the list view.
	ListOrders(ctx context.Context, filter ListFilter) ([]order.Order, int, error)

	// UpdateStatus sets only the status field and returns the updated
	// order, or order.ErrOrderNotFound.
	UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error)

	// MarkPaid applies status=PAID, paid, paid_at and the charge id, and
	// creates the order's receipt, all in one atomic write. A repeated call
	// for the same order re-asserts the fields but never creates a second
	// receipt.
	MarkPaid(ctx context.Context, id string, upd PaidUpdate) (*order.Order, error)
}
