package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orders-ms/internal/contracts"
	"github.com/example/orders-ms/internal/domain/order"
	"github.com/example/orders-ms/internal/infrastructure/store/mocks"
)

type fakeValidator struct {
	products map[string]contracts.Product
	err      error
	calls    [][]string
}

func (f *fakeValidator) Validate(ctx context.Context, ids []string) (map[string]contracts.Product, error) {
	f.calls = append(f.calls, ids)
	if f.err != nil {
		return nil, f.err
	}
	resolved := make(map[string]contracts.Product)
	for _, id := range ids {
		p, ok := f.products[id]
		if !ok {
			return nil, errors.New("unresolvable product: " + id)
		}
		resolved[id] = p
	}
	return resolved, nil
}

type fakePayments struct {
	session *contracts.PaymentSession
	err     error
	calls   []string
}

func (f *fakePayments) CreateSession(ctx context.Context, orderID string, items []contracts.PaymentSessionItem) (*contracts.PaymentSession, error) {
	f.calls = append(f.calls, orderID)
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type fakePublisher struct {
	events []contracts.OrderPaidEvent
	err    error
}

func (f *fakePublisher) PublishOrderPaid(ctx context.Context, event contracts.OrderPaidEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func newTestService() (*Service, *mocks.MockOrderStore, *fakeValidator, *fakePayments, *fakePublisher) {
	orderStore := mocks.NewMockOrderStore()
	validator := &fakeValidator{products: map[string]contracts.Product{
		"A": {ID: "A", Name: "Keyboard", Price: 10},
		"B": {ID: "B", Name: "Mouse", Price: 5},
	}}
	paymentsClient := &fakePayments{session: &contracts.PaymentSession{ID: "sess-1", URL: "https://pay.example/sess-1"}}
	publisher := &fakePublisher{}
	service := NewService(orderStore, validator, paymentsClient, publisher)
	return service, orderStore, validator, paymentsClient, publisher
}

// ============================================
// Create Pipeline Tests
// ============================================

func TestService_Create_TotalsFromResolvedPrices(t *testing.T) {
	service, orderStore, _, _, _ := newTestService()
	ctx := context.Background()

	result, err := service.Create(ctx, []contracts.OrderItemInput{
		{ProductID: "A", Quantity: 2},
		{ProductID: "B", Quantity: 1},
	})

	require.NoError(t, err)
	assert.Equal(t, 25.0, result.Order.TotalAmount) // 2*10 + 1*5
	assert.Equal(t, 3, result.Order.TotalItems)
	assert.Equal(t, order.StatusPending, result.Order.Status)
	assert.False(t, result.Order.Paid)

	// the store received the snapshot prices, not caller-supplied ones
	require.Len(t, orderStore.CreateCalls, 1)
	persisted := orderStore.CreateCalls[0]
	require.Len(t, persisted.Items, 2)
	assert.Equal(t, 10.0, persisted.Items[0].Price)
	assert.Equal(t, 5.0, persisted.Items[1].Price)
}

func TestService_Create_EnrichesNamesAndReturnsSession(t *testing.T) {
	service, _, _, paymentsClient, _ := newTestService()
	ctx := context.Background()

	result, err := service.Create(ctx, []contracts.OrderItemInput{
		{ProductID: "A", Quantity: 1},
		{ProductID: "B", Quantity: 2},
	})

	require.NoError(t, err)
	require.Len(t, result.Order.Items, 2)
	assert.Equal(t, "Keyboard", result.Order.Items[0].Name)
	assert.Equal(t, "Mouse", result.Order.Items[1].Name)

	require.NotNil(t, result.PaymentSession)
	assert.Equal(t, "sess-1", result.PaymentSession.ID)
	assert.Equal(t, []string{result.Order.ID}, paymentsClient.calls)
}

func TestService_Create_DistinctIDsSentToCatalog(t *testing.T) {
	service, _, validator, _, _ := newTestService()
	ctx := context.Background()

	_, err := service.Create(ctx, []contracts.OrderItemInput{
		{ProductID: "A", Quantity: 1},
		{ProductID: "A", Quantity: 3},
	})

	require.NoError(t, err)
	require.Len(t, validator.calls, 1)
	assert.Equal(t, []string{"A"}, validator.calls[0])
}

func TestService_Create_EmptyItems(t *testing.T) {
	service, orderStore, validator, _, _ := newTestService()

	_, err := service.Create(context.Background(), nil)

	assert.ErrorIs(t, err, order.ErrEmptyOrder)
	assert.Empty(t, orderStore.CreateCalls)
	assert.Empty(t, validator.calls)
}

func TestService_Create_InvalidQuantity(t *testing.T) {
	service, orderStore, _, _, _ := newTestService()

	_, err := service.Create(context.Background(), []contracts.OrderItemInput{
		{ProductID: "A", Quantity: 0},
	})

	assert.ErrorIs(t, err, order.ErrInvalidQuantity)
	assert.Empty(t, orderStore.CreateCalls)
}

func TestService_Create_UnresolvableProductPersistsNothing(t *testing.T) {
	service, orderStore, _, paymentsClient, _ := newTestService()

	_, err := service.Create(context.Background(), []contracts.OrderItemInput{
		{ProductID: "A", Quantity: 1},
		{ProductID: "ghost", Quantity: 1},
	})

	require.Error(t, err)
	assert.Empty(t, orderStore.CreateCalls)
	assert.Empty(t, paymentsClient.calls)
}

func TestService_Create_StoreFailureAbortsBeforeSession(t *testing.T) {
	service, orderStore, _, paymentsClient, _ := newTestService()
	orderStore.CreateErr = errors.New("deadlock detected")

	_, err := service.Create(context.Background(), []contracts.OrderItemInput{
		{ProductID: "A", Quantity: 1},
	})

	require.Error(t, err)
	assert.Empty(t, paymentsClient.calls)
}

func TestService_Create_PaymentSessionFailureKeepsOrder(t *testing.T) {
	service, orderStore, _, paymentsClient, _ := newTestService()
	paymentsClient.err = errors.New("payment service down")

	_, err := service.Create(context.Background(), []contracts.OrderItemInput{
		{ProductID: "A", Quantity: 1},
	})

	assert.ErrorIs(t, err, ErrPaymentSession)

	// order was durably created and must not be rolled back
	require.Len(t, orderStore.CreateCalls, 1)
	persisted, getErr := orderStore.GetOrder(context.Background(), orderStore.CreateCalls[0].ID)
	require.NoError(t, getErr)
	assert.Equal(t, order.StatusPending, persisted.Status)
	// the error names the order so the session can be retried against it
	assert.Contains(t, err.Error(), persisted.ID)
}

// ============================================
// FindOne Tests
// ============================================

func TestService_FindOne_NotFound(t *testing.T) {
	service, _, _, _, _ := newTestService()

	_, err := service.FindOne(context.Background(), "missing-id")

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestService_FindOne_EnrichesWithCurrentNames(t *testing.T) {
	service, orderStore, validator, _, _ := newTestService()
	orderStore.Seed(&order.Order{
		ID:     "order-1",
		Status: order.StatusPending,
		Items: []order.OrderItem{
			{ProductID: "A", Price: 8, Quantity: 1}, // snapshot price differs from catalog
		},
	})
	validator.products["A"] = contracts.Product{ID: "A", Name: "Keyboard v2", Price: 12}

	found, err := service.FindOne(context.Background(), "order-1")

	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	// name reflects the catalog rename, price stays the snapshot
	assert.Equal(t, "Keyboard v2", found.Items[0].Name)
	assert.Equal(t, 8.0, found.Items[0].Price)
}

func TestService_FindOne_EnrichmentFailure(t *testing.T) {
	service, orderStore, validator, _, _ := newTestService()
	orderStore.Seed(&order.Order{
		ID:    "order-1",
		Items: []order.OrderItem{{ProductID: "retired", Price: 8, Quantity: 1}},
	})
	validator.err = errors.New("unresolvable product: retired")

	_, err := service.FindOne(context.Background(), "order-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "order-1")
}

// ============================================
// FindAll / Pagination Tests
// ============================================

func seedOrders(orderStore *mocks.MockOrderStore, n int, status order.Status) {
	for i := 0; i < n; i++ {
		orderStore.Seed(&order.Order{
			ID:     string(status) + "-" + string(rune('a'+i)),
			Status: status,
		})
	}
}

func TestService_FindAll_PageMeta(t *testing.T) {
	service, orderStore, _, _, _ := newTestService()
	seedOrders(orderStore, 5, order.StatusPending)

	page, err := service.FindAll(context.Background(), contracts.FindAllOrdersRequest{Page: 1, Limit: 2})

	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, PageMeta{CurrentPage: 1, Limit: 2, LastPage: 3}, page.Meta) // ceil(5/2)
}

func TestService_FindAll_LastPartialPage(t *testing.T) {
	service, orderStore, _, _, _ := newTestService()
	seedOrders(orderStore, 5, order.StatusPending)

	page, err := service.FindAll(context.Background(), contracts.FindAllOrdersRequest{Page: 3, Limit: 2})

	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
}

func TestService_FindAll_StatusFilter(t *testing.T) {
	service, orderStore, _, _, _ := newTestService()
	seedOrders(orderStore, 3, order.StatusPending)
	seedOrders(orderStore, 2, order.StatusPaid)

	page, err := service.FindAll(context.Background(), contracts.FindAllOrdersRequest{
		Status: "PAID", Page: 1, Limit: 10,
	})

	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 1, page.Meta.LastPage) // total reflects the filtered count
	for _, o := range page.Data {
		assert.Equal(t, order.StatusPaid, o.Status)
	}
}

func TestService_FindAll_Defaults(t *testing.T) {
	service, orderStore, _, _, _ := newTestService()
	seedOrders(orderStore, 1, order.StatusPending)

	page, err := service.FindAll(context.Background(), contracts.FindAllOrdersRequest{})

	require.NoError(t, err)
	assert.Equal(t, 1, page.Meta.CurrentPage)
	assert.Equal(t, 10, page.Meta.Limit)
}

func TestService_FindAll_UnknownStatus(t *testing.T) {
	service, _, _, _, _ := newTestService()

	_, err := service.FindAll(context.Background(), contracts.FindAllOrdersRequest{Status: "SHIPPED"})

	assert.ErrorIs(t, err, order.ErrUnknownStatus)
}

// ============================================
// ChangeStatus Tests
// ============================================

func TestService_ChangeStatus_NoOpWhenUnchanged(t *testing.T) {
	service, orderStore, _, _, _ := newTestService()
	orderStore.Seed(&order.Order{
		ID:     "order-1",
		Status: order.StatusPending,
		Items:  []order.OrderItem{{ProductID: "A", Price: 10, Quantity: 1}},
	})

	updated, err := service.ChangeStatus(context.Background(), "order-1", "PENDING")

	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, updated.Status)
	assert.Empty(t, orderStore.UpdateStatusCalls) // no write
}

func TestService_ChangeStatus_ValidTransition(t *testing.T) {
	service, orderStore, _, _, _ := newTestService()
	orderStore.Seed(&order.Order{
		ID:     "order-1",
		Status: order.StatusPending,
		Items:  []order.OrderItem{{ProductID: "A", Price: 10, Quantity: 1}},
	})

	updated, err := service.ChangeStatus(context.Background(), "order-1", "CANCELLED")

	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, updated.Status)
	require.Len(t, orderStore.UpdateStatusCalls, 1)
	assert.Equal(t, order.StatusCancelled, orderStore.UpdateStatusCalls[0].Status)
}

func TestService_ChangeStatus_PaidRequiresPaymentConfirmation(t *testing.T) {
	service, orderStore, _, _, _ := newTestService()
	orderStore.Seed(&order.Order{
		ID:     "order-1",
		Status: order.StatusPending,
		Items:  []order.OrderItem{{ProductID: "A", Price: 10, Quantity: 1}},
	})

	_, err := service.ChangeStatus(context.Background(), "order-1", "PAID")

	assert.ErrorIs(t, err, order.ErrManualPaid)
	assert.Empty(t, orderStore.UpdateStatusCalls)
}

func TestService_ChangeStatus_InvalidTransition(t *testing.T) {
	service, orderStore, _, _, _ := newTestService()
	orderStore.Seed(&order.Order{
		ID:     "order-1",
		Status: order.StatusCancelled,
		Items:  []order.OrderItem{{ProductID: "A", Price: 10, Quantity: 1}},
	})

	_, err := service.ChangeStatus(context.Background(), "order-1", "DELIVERED")

	assert.ErrorIs(t, err, order.ErrOrderCancelled)
	assert.Empty(t, orderStore.UpdateStatusCalls)
}

func TestService_ChangeStatus_NotFound(t *testing.T) {
	service, _, _, _, _ := newTestService()

	_, err := service.ChangeStatus(context.Background(), "missing-id", "CANCELLED")

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestService_ChangeStatus_UnknownStatus(t *testing.T) {
	service, _, validator, _, _ := newTestService()

	_, err := service.ChangeStatus(context.Background(), "order-1", "REFUNDED")

	assert.ErrorIs(t, err, order.ErrUnknownStatus)
	assert.Empty(t, validator.calls) // rejected before any lookup
}

// ============================================
// Payment Confirmation Tests
// ============================================

func TestService_MarkPaid_AppliesAllFieldsTogether(t *testing.T) {
	service, orderStore, _, _, publisher := newTestService()
	orderStore.Seed(&order.Order{
		ID:          "order-1",
		Status:      order.StatusPending,
		TotalAmount: 25,
	})

	paid, err := service.MarkPaid(context.Background(), contracts.PaymentSucceededEvent{
		OrderID:         "order-1",
		StripePaymentID: "ch_123",
		ReceiptURL:      "https://receipts.example/r1",
	})

	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, paid.Status)
	assert.True(t, paid.Paid)
	require.NotNil(t, paid.PaidAt)
	assert.WithinDuration(t, time.Now(), *paid.PaidAt, time.Minute)
	assert.Equal(t, "ch_123", paid.StripeChargeID)
	require.NotNil(t, paid.Receipt)
	assert.Equal(t, "https://receipts.example/r1", paid.Receipt.ReceiptURL)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "order-1", publisher.events[0].OrderID)
	assert.Equal(t, "https://receipts.example/r1", publisher.events[0].ReceiptURL)
}

func TestService_MarkPaid_RedeliveryKeepsSingleReceipt(t *testing.T) {
	service, orderStore, _, _, _ := newTestService()
	orderStore.Seed(&order.Order{ID: "order-1", Status: order.StatusPending})

	event := contracts.PaymentSucceededEvent{
		OrderID:         "order-1",
		StripePaymentID: "ch_123",
		ReceiptURL:      "https://receipts.example/r1",
	}

	first, err := service.MarkPaid(context.Background(), event)
	require.NoError(t, err)
	second, err := service.MarkPaid(context.Background(), event)
	require.NoError(t, err)

	require.NotNil(t, second.Receipt)
	assert.Equal(t, first.Receipt.ID, second.Receipt.ID) // no second receipt
	assert.Len(t, orderStore.MarkPaidCalls, 2)
}

func TestService_MarkPaid_NotFound(t *testing.T) {
	service, _, _, _, publisher := newTestService()

	_, err := service.MarkPaid(context.Background(), contracts.PaymentSucceededEvent{OrderID: "missing"})

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	assert.Empty(t, publisher.events)
}

func TestService_MarkPaid_PublishFailureDoesNotFail(t *testing.T) {
	service, orderStore, _, _, publisher := newTestService()
	orderStore.Seed(&order.Order{ID: "order-1", Status: order.StatusPending})
	publisher.err = errors.New("broker down")

	paid, err := service.MarkPaid(context.Background(), contracts.PaymentSucceededEvent{
		OrderID: "order-1", StripePaymentID: "ch_1", ReceiptURL: "https://receipts.example/r1",
	})

	require.NoError(t, err)
	assert.True(t, paid.Paid)
}
