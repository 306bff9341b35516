package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"

	"github.com/example/orders-ms/internal/contracts"
)

// ReceiptSender sends a payment confirmation for a paid order.
type ReceiptSender interface {
	SendPaymentReceipt(to, orderID string, total float64, receiptURL string) error
}

// Handler turns order.paid events into receipt emails.
type Handler struct {
	sender ReceiptSender
	to     string
}

// NewHandler creates a new notification handler. The recipient address is
// fixed per deployment; the order service does not carry customer contact
// data.
func NewHandler(sender ReceiptSender, to string) *Handler {
	return &Handler{
		sender: sender,
		to:     to,
	}
}

// HandleOrderPaid processes one order.paid event. Malformed events are
// dropped; send failures are returned so the consumer loop logs them.
func (h *Handler) HandleOrderPaid(ctx context.Context, msg kafka.Message) error {
	var event contracts.OrderPaidEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("[Notifier] Dropping malformed order.paid event: %v", err)
		return nil
	}
	if event.OrderID == "" {
		log.Printf("[Notifier] Dropping order.paid event without an order id")
		return nil
	}

	log.Printf("[Notifier] Sending receipt for order %s", event.OrderID)
	if err := h.sender.SendPaymentReceipt(h.to, event.OrderID, event.TotalAmount, event.ReceiptURL); err != nil {
		log.Printf("[Notifier] Failed to send receipt for order %s: %v", event.OrderID, err)
		return err
	}

	return nil
}
