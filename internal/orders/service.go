// Package orders implements the order orchestration workflow: the create
// pipeline, lookups with live catalog enrichment, the status state machine
// and the payment-confirmation handler.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/orders-ms/internal/contracts"
	"github.com/example/orders-ms/internal/domain/order"
	"github.com/example/orders-ms/internal/infrastructure/store"
)

// ErrPaymentSession marks a payment-session failure after the order was
// durably created: the order stays in place so the session can be retried
// against it.
var ErrPaymentSession = errors.New("payment session request failed")

// ProductValidator resolves product ids to authoritative price/name data.
type ProductValidator interface {
	Validate(ctx context.Context, ids []string) (map[string]contracts.Product, error)
}

// PaymentSessions requests a checkout session for a persisted order.
type PaymentSessions interface {
	CreateSession(ctx context.Context, orderID string, items []contracts.PaymentSessionItem) (*contracts.PaymentSession, error)
}

// EventPublisher announces order lifecycle events to the rest of the mesh.
type EventPublisher interface {
	PublishOrderPaid(ctx context.Context, event contracts.OrderPaidEvent) error
}

type Service struct {
	store    store.OrderStore
	catalog  ProductValidator
	payments PaymentSessions
	events   EventPublisher
}

func NewService(orderStore store.OrderStore, catalog ProductValidator, payments PaymentSessions, events EventPublisher) *Service {
	return &Service{
		store:    orderStore,
		catalog:  catalog,
		payments: payments,
		events:   events,
	}
}

// EnrichedItem is an order line joined with the catalog's current name.
// Names are never stored on the item; they are fetched live for every
// response.
type EnrichedItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// EnrichedOrder is an order whose items carry resolved product names.
type EnrichedOrder struct {
	order.Order
	Items []EnrichedItem `json:"items"`
}

// CreateResult pairs the created order with its payment session.
type CreateResult struct {
	Order          *EnrichedOrder            `json:"order"`
	PaymentSession *contracts.PaymentSession `json:"paymentSession"`
}

// PageMeta is the metadata block of a listing reply.
type PageMeta struct {
	CurrentPage int `json:"currentPage"`
	Limit       int `json:"limit"`
	LastPage    int `json:"lastPage"`
}

// Page is one page of orders. List entries are not enriched.
type Page struct {
	Data []order.Order `json:"data"`
	Meta PageMeta      `json:"meta"`
}

// Create runs the creation pipeline: validate the requested products
// against the catalog, derive the totals from the resolved prices, persist
// the order and its items atomically, enrich the response with product
// names, and request a payment session. A failure before persistence
// leaves nothing behind; a payment-session failure leaves the created
// order in place and is surfaced as ErrPaymentSession.
func (s *Service) Create(ctx context.Context, items []contracts.OrderItemInput) (*CreateResult, error) {
	if len(items) == 0 {
		return nil, order.ErrEmptyOrder
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s", order.ErrInvalidQuantity, item.ProductID)
		}
	}

	products, err := s.catalog.Validate(ctx, distinctProductIDs(items))
	if err != nil {
		return nil, err
	}

	var totalAmount float64
	var totalItems int
	orderItems := make([]order.OrderItem, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			// the client guarantees a complete set; a hole here is an
			// internal consistency failure, not a caller mistake
			return nil, fmt.Errorf("resolved product set is missing %s", item.ProductID)
		}
		totalAmount += float64(item.Quantity) * product.Price
		totalItems += item.Quantity
		orderItems = append(orderItems, order.OrderItem{
			ProductID: item.ProductID,
			Price:     product.Price, // snapshot, never re-fetched
			Quantity:  item.Quantity,
		})
	}

	now := time.Now()
	o := &order.Order{
		ID:          uuid.New().String(),
		TotalAmount: totalAmount,
		TotalItems:  totalItems,
		Status:      order.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       orderItems,
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	enriched := enrich(o, products)

	sessionItems := make([]contracts.PaymentSessionItem, 0, len(enriched.Items))
	for _, item := range enriched.Items {
		sessionItems = append(sessionItems, contracts.PaymentSessionItem{
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}
	session, err := s.payments.CreateSession(ctx, o.ID, sessionItems)
	if err != nil {
		// the order is already durable; no rollback
		return nil, fmt.Errorf("%w: order %s: %w", ErrPaymentSession, o.ID, err)
	}

	return &CreateResult{Order: enriched, PaymentSession: session}, nil
}

// FindOne returns the order with its items, enriched with the catalog's
// current product names.
func (s *Service) FindOne(ctx context.Context, id string) (*EnrichedOrder, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			// the id belongs in the caller-facing message
			return nil, fmt.Errorf("%w: %s", order.ErrOrderNotFound, id)
		}
		return nil, err
	}

	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.catalog.Validate(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("enrich order %s: %w", id, err)
	}
	return enrich(o, products), nil
}

// FindAll returns the requested page of orders with listing metadata.
func (s *Service) FindAll(ctx context.Context, req contracts.FindAllOrdersRequest) (*Page, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = 10
	}

	filter := store.ListFilter{Page: page, Limit: limit}
	if req.Status != "" {
		status, err := order.ParseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}

	data, total, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}

	lastPage := (total + limit - 1) / limit
	return &Page{
		Data: data,
		Meta: PageMeta{CurrentPage: page, Limit: limit, LastPage: lastPage},
	}, nil
}

// ChangeStatus moves an order to a new status. Requesting the status the
// order already has is an idempotent no-op with no write. PAID cannot be
// requested here; it is reached only through payment confirmation.
func (s *Service) ChangeStatus(ctx context.Context, id, statusValue string) (*EnrichedOrder, error) {
	status, err := order.ParseStatus(statusValue)
	if err != nil {
		return nil, err
	}

	current, err := s.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}
	if status == order.StatusPaid {
		return nil, order.ErrManualPaid
	}
	if !current.CanTransitionTo(status) {
		return nil, current.TransitionError(status)
	}

	updated, err := s.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	// names were already fetched by the lookup above
	current.Order = *updated
	return current, nil
}

// MarkPaid applies a payment.succeeded event: status, paid flag, paid
// timestamp, charge reference and receipt move together in one atomic
// store write. The event path bypasses ChangeStatus and its transition
// checks entirely.
func (s *Service) MarkPaid(ctx context.Context, event contracts.PaymentSucceededEvent) (*order.Order, error) {
	o, err := s.store.MarkPaid(ctx, event.OrderID, store.PaidUpdate{
		StripeChargeID: event.StripePaymentID,
		ReceiptURL:     event.ReceiptURL,
		PaidAt:         time.Now(),
	})
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: %s", order.ErrOrderNotFound, event.OrderID)
		}
		return nil, err
	}

	paidEvent := contracts.OrderPaidEvent{
		OrderID:     o.ID,
		TotalAmount: o.TotalAmount,
		PaidAt:      *o.PaidAt,
	}
	if o.Receipt != nil {
		paidEvent.ReceiptURL = o.Receipt.ReceiptURL
	}
	if err := s.events.PublishOrderPaid(ctx, paidEvent); err != nil {
		// the confirmation itself is durable; downstream consumers catch
		// up from the next event
		log.Printf("[Orders] Failed to publish order.paid for %s: %v", o.ID, err)
	}
	return o, nil
}

func distinctProductIDs(items []contracts.OrderItemInput) []string {
	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}

func enrich(o *order.Order, products map[string]contracts.Product) *EnrichedOrder {
	items := make([]EnrichedItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, EnrichedItem{
			ProductID: item.ProductID,
			Name:      products[item.ProductID].Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	bare := *o
	bare.Items = nil
	return &EnrichedOrder{Order: bare, Items: items}
}
