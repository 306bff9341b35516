// Package payments wraps the payment service's session-creation call.
package payments

import (
	"context"
	"fmt"

	"github.com/example/orders-ms/internal/contracts"
)

// Requester is the request/reply bus surface the client needs.
type Requester interface {
	Request(ctx context.Context, topic, pattern string, payload, out any) error
}

type Client struct {
	bus      Requester
	currency string
}

func NewClient(bus Requester, currency string) *Client {
	return &Client{bus: bus, currency: currency}
}

// CreateSession asks the payment service for a checkout session covering
// the order. Failure is surfaced unchanged; there is no local retry.
func (c *Client) CreateSession(ctx context.Context, orderID string, items []contracts.PaymentSessionItem) (*contracts.PaymentSession, error) {
	req := contracts.CreatePaymentSessionRequest{
		OrderID:  orderID,
		Currency: c.currency,
		Items:    items,
	}

	var session contracts.PaymentSession
	err := c.bus.Request(ctx, contracts.TopicPaymentsRequests, contracts.PatternCreatePaymentSession, req, &session)
	if err != nil {
		return nil, fmt.Errorf("create payment session for order %s: %w", orderID, err)
	}
	return &session, nil
}
