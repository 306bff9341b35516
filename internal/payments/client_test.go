package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orders-ms/internal/contracts"
)

type fakeRequester struct {
	session contracts.PaymentSession
	err     error

	lastPattern string
	lastPayload any
}

func (f *fakeRequester) Request(ctx context.Context, topic, pattern string, payload, out any) error {
	f.lastPattern = pattern
	f.lastPayload = payload
	if f.err != nil {
		return f.err
	}
	data, _ := json.Marshal(f.session)
	return json.Unmarshal(data, out)
}

func TestCreateSession_Success(t *testing.T) {
	bus := &fakeRequester{session: contracts.PaymentSession{ID: "sess-1", URL: "https://pay.example/sess-1"}}
	client := NewClient(bus, "usd")

	items := []contracts.PaymentSessionItem{{Name: "Keyboard", Price: 10, Quantity: 2}}
	session, err := client.CreateSession(context.Background(), "order-1", items)

	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID)
	assert.Equal(t, contracts.PatternCreatePaymentSession, bus.lastPattern)

	req, ok := bus.lastPayload.(contracts.CreatePaymentSessionRequest)
	require.True(t, ok)
	assert.Equal(t, "order-1", req.OrderID)
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, items, req.Items)
}

func TestCreateSession_FailureSurfacedUnchanged(t *testing.T) {
	busErr := errors.New("payment service unavailable")
	client := NewClient(&fakeRequester{err: busErr}, "usd")

	session, err := client.CreateSession(context.Background(), "order-1", nil)

	assert.Nil(t, session)
	assert.ErrorIs(t, err, busErr)
	assert.Contains(t, err.Error(), "order-1")
}
