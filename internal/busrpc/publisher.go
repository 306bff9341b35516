package busrpc

import (
	"context"

	"github.com/example/orders-ms/internal/contracts"
	kafkax "github.com/example/orders-ms/internal/infrastructure/kafka"
)

// PaidEventPublisher publishes order.paid events for downstream consumers.
type PaidEventPublisher struct {
	producer *kafkax.Producer
}

func NewPaidEventPublisher(producer *kafkax.Producer) *PaidEventPublisher {
	return &PaidEventPublisher{producer: producer}
}

func (p *PaidEventPublisher) PublishOrderPaid(ctx context.Context, event contracts.OrderPaidEvent) error {
	return p.producer.Publish(ctx, contracts.TopicOrderPaid, event.OrderID, event)
}
