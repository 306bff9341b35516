// Package contracts defines the wire-level payloads exchanged over the
// message bus: the request patterns served by the orders service, the
// outbound calls it makes to the product and payment services, and the
// events it consumes and publishes.
package contracts

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics
const (
	TopicOrdersRequests   = "orders.requests"   // inbound request patterns
	TopicProductsRequests = "products.requests" // product service
	TopicPaymentsRequests = "payments.requests" // payment service
	TopicPaymentSucceeded = "payment.succeeded" // inbound event, fire-and-forget
	TopicOrderPaid        = "order.paid"        // outbound event after confirmation
)

// Request patterns
const (
	PatternCreateOrder          = "createOrder"
	PatternFindAllOrders        = "findAllOrders"
	PatternFindOneOrder         = "findOneOrder"
	PatternChangeOrderStatus    = "changeOrderStatus"
	PatternValidateProducts     = "validate_products"
	PatternCreatePaymentSession = "create.payment.session"
)

// Message headers used for request/reply correlation
const (
	HeaderPattern       = "pattern"
	HeaderCorrelationID = "correlation_id"
	HeaderReplyTo       = "reply_to"
)

// Error is the machine-readable failure carried in a reply envelope.
// Status follows HTTP semantics: 404 not-found, 400 validation,
// 502 collaborator failure, 500 internal.
type Error struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Status, e.Message)
}

// Reply is the envelope every request pattern answers with.
type Reply struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// OrderItemInput is one requested line of a new order.
type OrderItemInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderRequest is the createOrder payload.
type CreateOrderRequest struct {
	Items []OrderItemInput `json:"items"`
}

// FindAllOrdersRequest is the findAllOrders payload. Status is optional;
// when empty all statuses match.
type FindAllOrdersRequest struct {
	Status string `json:"status,omitempty"`
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
}

// FindOneOrderRequest is the findOneOrder payload.
type FindOneOrderRequest struct {
	ID string `json:"id"`
}

// ChangeOrderStatusRequest is the changeOrderStatus payload.
type ChangeOrderStatusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PaymentSucceededEvent is the payment.succeeded event payload.
type PaymentSucceededEvent struct {
	OrderID         string `json:"orderId"`
	StripePaymentID string `json:"stripePaymentId"`
	ReceiptURL      string `json:"receiptUrl"`
}

// ValidateProductsRequest asks the product service to resolve a set of ids.
type ValidateProductsRequest struct {
	IDs []string `json:"ids"`
}

// Product is the product service's view of a resolved product.
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// PaymentSessionItem is one priced line handed to the payment service.
type PaymentSessionItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// CreatePaymentSessionRequest asks the payment service for a checkout
// session covering a persisted order.
type CreatePaymentSessionRequest struct {
	OrderID  string               `json:"orderId"`
	Currency string               `json:"currency"`
	Items    []PaymentSessionItem `json:"items"`
}

// PaymentSession is the opaque session reference returned to the caller.
type PaymentSession struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	CancelURL  string `json:"cancelUrl,omitempty"`
	SuccessURL string `json:"successUrl,omitempty"`
}

// OrderPaidEvent is published after a payment confirmation has been
// applied, for downstream consumers such as the notifier.
type OrderPaidEvent struct {
	OrderID     string    `json:"order_id"`
	TotalAmount float64   `json:"total_amount"`
	ReceiptURL  string    `json:"receipt_url"`
	PaidAt      time.Time `json:"paid_at"`
}
