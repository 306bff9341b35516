package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/example/orders-ms/internal/domain/order"
	"github.com/example/orders-ms/internal/infrastructure/store"
)

// MockOrderStore is a mock implementation of OrderStore for testing
type MockOrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order

	// For tracking calls in tests
	CreateCalls       []*order.Order
	UpdateStatusCalls []UpdateStatusCall
	MarkPaidCalls     []MarkPaidCall

	CreateErr       error
	GetErr          error
	ListErr         error
	UpdateStatusErr error
	MarkPaidErr     error
}

// UpdateStatusCall records parameters passed to UpdateStatus
type UpdateStatusCall struct {
	ID     string
	Status order.Status
}

// MarkPaidCall records parameters passed to MarkPaid
type MarkPaidCall struct {
	ID     string
	Update store.PaidUpdate
}

// NewMockOrderStore creates a new MockOrderStore
func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{
		orders: make(map[string]*order.Order),
	}
}

// Seed puts an order into the store without recording a create call.
func (m *MockOrderStore) Seed(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
}

func (m *MockOrderStore) CreateOrder(ctx context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls = append(m.CreateCalls, cloneOrder(o))
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *MockOrderStore) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *MockOrderStore) ListOrders(ctx context.Context, filter store.ListFilter) ([]order.Order, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ListErr != nil {
		return nil, 0, m.ListErr
	}

	var matching []order.Order
	for _, o := range m.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		c := cloneOrder(o)
		c.Items = nil
		matching = append(matching, *c)
	}
	total := len(matching)

	start := (filter.Page - 1) * filter.Limit
	if start >= total {
		return []order.Order{}, total, nil
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matching[start:end], total, nil
}

func (m *MockOrderStore) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateStatusCalls = append(m.UpdateStatusCalls, UpdateStatusCall{ID: id, Status: status})
	if m.UpdateStatusErr != nil {
		return nil, m.UpdateStatusErr
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	o.Status = status
	return cloneOrder(o), nil
}

func (m *MockOrderStore) MarkPaid(ctx context.Context, id string, upd store.PaidUpdate) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MarkPaidCalls = append(m.MarkPaidCalls, MarkPaidCall{ID: id, Update: upd})
	if m.MarkPaidErr != nil {
		return nil, m.MarkPaidErr
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}

	o.Status = order.StatusPaid
	o.Paid = true
	paidAt := upd.PaidAt
	o.PaidAt = &paidAt
	o.StripeChargeID = upd.StripeChargeID
	// receipt creation is idempotent, like the unique constraint in the
	// real stores
	if o.Receipt == nil {
		o.Receipt = &order.Receipt{
			ID:         uuid.New().String(),
			OrderID:    id,
			ReceiptURL: upd.ReceiptURL,
			CreatedAt:  upd.PaidAt,
		}
	}
	return cloneOrder(o), nil
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	if o.Items != nil {
		c.Items = append([]order.OrderItem(nil), o.Items...)
	}
	if o.Receipt != nil {
		r := *o.Receipt
		c.Receipt = &r
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}
