// Package busrpc serves the orders request patterns over the message bus
// and consumes the payment.succeeded event.
package busrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/orders-ms/internal/contracts"
	"github.com/example/orders-ms/internal/domain/order"
	kafkax "github.com/example/orders-ms/internal/infrastructure/kafka"
	"github.com/example/orders-ms/internal/orders"
)

// OrderService is the orchestration surface the bus server exposes.
type OrderService interface {
	Create(ctx context.Context, items []contracts.OrderItemInput) (*orders.CreateResult, error)
	FindOne(ctx context.Context, id string) (*orders.EnrichedOrder, error)
	FindAll(ctx context.Context, req contracts.FindAllOrdersRequest) (*orders.Page, error)
	ChangeStatus(ctx context.Context, id, status string) (*orders.EnrichedOrder, error)
	MarkPaid(ctx context.Context, event contracts.PaymentSucceededEvent) (*order.Order, error)
}

// Replier writes reply envelopes back to the requester's reply topic.
type Replier interface {
	PublishRaw(ctx context.Context, topic, key string, value []byte, headers ...kafka.Header) error
}

type Server struct {
	service        OrderService
	replier        Replier
	requestTimeout time.Duration
}

func NewServer(service OrderService, replier Replier, requestTimeout time.Duration) *Server {
	return &Server{
		service:        service,
		replier:        replier,
		requestTimeout: requestTimeout,
	}
}

// HandleRequest dispatches one request-pattern message and writes the
// reply envelope. Transport problems are returned so the consumer loop
// logs them; handler failures become error envelopes for the caller.
func (s *Server) HandleRequest(ctx context.Context, msg kafka.Message) error {
	pattern := kafkax.Header(msg, contracts.HeaderPattern)
	replyTo := kafkax.Header(msg, contracts.HeaderReplyTo)
	correlationID := kafkax.Header(msg, contracts.HeaderCorrelationID)
	if pattern == "" || replyTo == "" || correlationID == "" {
		return fmt.Errorf("request message missing pattern/reply headers")
	}

	handlerCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	var reply contracts.Reply
	data, err := s.dispatch(handlerCtx, pattern, msg.Value)
	if err != nil {
		log.Printf("[Bus] %s failed: %v", pattern, err)
		reply.Error = toWireError(err)
	} else {
		reply.Data = data
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	return s.replier.PublishRaw(ctx, replyTo, correlationID, payload,
		kafka.Header{Key: contracts.HeaderCorrelationID, Value: []byte(correlationID)})
}

func (s *Server) dispatch(ctx context.Context, pattern string, payload []byte) (json.RawMessage, error) {
	switch pattern {
	case contracts.PatternCreateOrder:
		var req contracts.CreateOrderRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, badPayload(err)
		}
		result, err := s.service.Create(ctx, req.Items)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)

	case contracts.PatternFindAllOrders:
		var req contracts.FindAllOrdersRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, badPayload(err)
		}
		page, err := s.service.FindAll(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(page)

	case contracts.PatternFindOneOrder:
		var req contracts.FindOneOrderRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, badPayload(err)
		}
		found, err := s.service.FindOne(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(found)

	case contracts.PatternChangeOrderStatus:
		var req contracts.ChangeOrderStatusRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, badPayload(err)
		}
		updated, err := s.service.ChangeStatus(ctx, req.ID, req.Status)
		if err != nil {
			return nil, err
		}
		return json.Marshal(updated)

	default:
		return nil, &contracts.Error{Status: 400, Message: "unknown pattern: " + pattern}
	}
}

// HandlePaymentSucceeded applies a payment confirmation. The event has no
// reply channel, so failures are terminal-logged.
func (s *Server) HandlePaymentSucceeded(ctx context.Context, msg kafka.Message) error {
	var event contracts.PaymentSucceededEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("[Bus] Dropping malformed payment.succeeded event: %v", err)
		return nil
	}
	if event.OrderID == "" {
		log.Printf("[Bus] Dropping payment.succeeded event without order id")
		return nil
	}

	handlerCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	paid, err := s.service.MarkPaid(handlerCtx, event)
	if err != nil {
		log.Printf("[Bus] Payment confirmation for order %s failed: %v", event.OrderID, err)
		return err
	}
	log.Printf("[Bus] Order %s confirmed paid, charge %s", paid.ID, paid.StripeChargeID)
	return nil
}
