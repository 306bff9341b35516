package busrpc

import (
	"errors"

	"github.com/example/orders-ms/internal/catalog"
	"github.com/example/orders-ms/internal/contracts"
	"github.com/example/orders-ms/internal/domain/order"
	"github.com/example/orders-ms/internal/orders"
)

// badPayload wraps a JSON decoding failure as a client error.
func badPayload(err error) *contracts.Error {
	return &contracts.Error{Status: 400, Message: "invalid request payload: " + err.Error()}
}

// toWireError maps a handler error to the machine-readable envelope.
// Client-caused failures keep their message; everything else is opaque to
// the caller and only logged.
func toWireError(err error) *contracts.Error {
	// Only envelopes minted by the dispatcher itself (bad payload, unknown
	// pattern) pass through unchanged. A collaborator's reply envelope sits
	// wrapped inside a client error chain and must go through the sentinel
	// mapping below, never straight to the caller.
	if wireErr, ok := err.(*contracts.Error); ok {
		return wireErr
	}

	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return &contracts.Error{Status: 404, Message: err.Error()}

	case errors.Is(err, catalog.ErrProductsNotFound):
		// which ids failed is in the logs, not on the wire
		return &contracts.Error{Status: 400, Message: "some products could not be resolved"}

	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrOrderDelivered),
		errors.Is(err, order.ErrOrderCancelled),
		errors.Is(err, order.ErrManualPaid):
		return &contracts.Error{Status: 400, Message: err.Error()}

	case errors.Is(err, orders.ErrPaymentSession):
		return &contracts.Error{Status: 502, Message: "payment session request failed; the order was created and the session can be retried"}

	default:
		return &contracts.Error{Status: 500, Message: "something went wrong, check the service logs"}
	}
}
