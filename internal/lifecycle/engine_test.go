package lifecycle

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"merchstore/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for engine tests. MutateOrder runs the
// closure under the lock, mirroring the single-transaction contract of the
// SQL store.
type memStore struct {
	mu          sync.Mutex
	orders      map[string]*models.Order
	failInserts int
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]*models.Order)}
}

func (m *memStore) InsertOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInserts > 0 {
		m.failInserts--
		return ErrDuplicateOrderID
	}
	if _, exists := m.orders[order.OrderID]; exists {
		return ErrDuplicateOrderID
	}
	order.ID = int64(len(m.orders) + 1)
	cp := *order
	m.orders[order.OrderID] = &cp
	return nil
}

func (m *memStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) MutateOrder(ctx context.Context, orderID string, fn func(*models.Order) error) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	if err := fn(&cp); err != nil {
		return nil, err
	}
	m.orders[orderID] = &cp
	out := cp
	return &out, nil
}

func newTestEngine(t *testing.T) (*Engine, *memStore, *time.Time) {
	t.Helper()
	store := newMemStore()
	engine := NewEngine(store, 24*time.Hour)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }
	return engine, store, &now
}

func testDraft() CreateDraft {
	return CreateDraft{
		CustomerEmail:   "fan@example.com",
		CustomerName:    "Mika Reyes",
		CustomerPhone:   "09171234567",
		ShippingAddress: "123 Katipunan Ave, Quezon City",
		Items: []models.OrderItem{
			{ProductID: 1, Name: "Lightstick Ver. 3", Price: 250000, Quantity: 1},
			{ProductID: 2, Name: "Photocard Binder", Price: 80000, Quantity: 2},
		},
		Subtotal:      410000,
		ShippingFee:   10000,
		PaymentMethod: "gcash",
	}
}

func createTestOrder(t *testing.T, engine *Engine) *models.Order {
	t.Helper()
	order, err := engine.Create(context.Background(), testDraft())
	require.NoError(t, err)
	return order
}

// advance the order to the given status through the allowed forward edges
func advanceTo(t *testing.T, engine *Engine, orderID, target string) *models.Order {
	t.Helper()
	path := []string{
		models.OrderStatusConfirmed,
		models.OrderStatusShipped,
		models.OrderStatusOutForDelivery,
		models.OrderStatusCompleted,
	}
	var order *models.Order
	var err error
	for _, status := range path {
		order, _, err = engine.Transition(context.Background(), orderID, status, "")
		require.NoError(t, err)
		if status == target {
			return order
		}
	}
	t.Fatalf("unreachable target status %s", target)
	return nil
}

func deliverOrder(t *testing.T, engine *Engine, orderID string) *models.Order {
	return advanceTo(t, engine, orderID, models.OrderStatusCompleted)
}

func TestCreateOrder(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	order := createTestOrder(t, engine)

	assert.True(t, strings.HasPrefix(order.OrderID, "KPM-"))
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, models.RefundStatusNone, order.RefundStatus)
	assert.Equal(t, int64(420000), order.Total)
	assert.Nil(t, order.FinalTotal)
	assert.Equal(t, int64(420000), order.EffectiveTotal())
	assert.Nil(t, order.ConfirmedAt)
}

func TestCreateOrderWithPromo(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	draft := testDraft()
	draft.PromoCode = "COMEBACK10"
	draft.DiscountPercent = 10
	draft.DiscountAmount = 41000

	order, err := engine.Create(context.Background(), draft)
	require.NoError(t, err)

	require.NotNil(t, order.FinalTotal)
	assert.Equal(t, int64(379000), *order.FinalTotal)
	assert.Equal(t, int64(379000), order.EffectiveTotal())
	assert.Equal(t, "COMEBACK10", *order.PromoCode)
}

func TestCreateOrderValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	draft := testDraft()
	draft.Items = nil
	_, err := engine.Create(context.Background(), draft)
	assert.ErrorIs(t, err, ErrInvalidInput)

	draft = testDraft()
	draft.Items[0].Quantity = 0
	_, err = engine.Create(context.Background(), draft)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateOrderIDCollisionRetries(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	store.failInserts = 2

	order, err := engine.Create(context.Background(), testDraft())
	require.NoError(t, err)
	assert.NotEmpty(t, order.OrderID)
}

func TestTransitionForwardPath(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)

	order = advanceTo(t, engine, order.OrderID, models.OrderStatusConfirmed)
	assert.NotNil(t, order.ConfirmedAt)

	order = deliverOrder(t, engine, order.OrderID)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.NotNil(t, order.ShippedAt)
	assert.NotNil(t, order.OutForDeliveryAt)
	assert.NotNil(t, order.DeliveryConfirmedAt)
}

func TestTransitionRejectsSkips(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)

	for _, target := range []string{
		models.OrderStatusShipped,
		models.OrderStatusOutForDelivery,
		models.OrderStatusCompleted,
	} {
		_, _, err := engine.Transition(context.Background(), order.OrderID, target, "")
		assert.ErrorIs(t, err, ErrInvalidTransition, "pending -> %s must be rejected", target)
	}

	current, err := engine.GetOrder(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, current.Status)
}

func TestTransitionRejectsReverse(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)
	advanceTo(t, engine, order.OrderID, models.OrderStatusShipped)

	_, _, err := engine.Transition(context.Background(), order.OrderID, models.OrderStatusConfirmed, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionIdempotent(t *testing.T) {
	engine, _, now := newTestEngine(t)
	order := createTestOrder(t, engine)

	first, _, err := engine.Transition(context.Background(), order.OrderID, models.OrderStatusConfirmed, "")
	require.NoError(t, err)

	*now = now.Add(5 * time.Minute)

	second, _, err := engine.Transition(context.Background(), order.OrderID, models.OrderStatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, *first.ConfirmedAt, *second.ConfirmedAt, "re-applying a transition must not move its timestamp")
}

func TestTransitionReportsPriorStatus(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)

	_, from, err := engine.Transition(context.Background(), order.OrderID, models.OrderStatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, from)

	// re-applying reports the current status, so callers can tell nothing moved
	_, from, err = engine.Transition(context.Background(), order.OrderID, models.OrderStatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, from)
}

func TestTransitionUnknownStatus(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)

	_, _, err := engine.Transition(context.Background(), order.OrderID, "refunded", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTransitionUnknownOrder(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, _, err := engine.Transition(context.Background(), "KPM-0-XXXXXX", models.OrderStatusConfirmed, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelFromPending(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)

	cancelled, _, err := engine.Transition(context.Background(), order.OrderID, models.OrderStatusCancelled, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, "out of stock", *cancelled.CancelReason)

	_, _, err = engine.Transition(context.Background(), order.OrderID, models.OrderStatusConfirmed, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelRequiresReason(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)

	_, _, err := engine.Transition(context.Background(), order.OrderID, models.OrderStatusCancelled, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCancelRejectedAfterDispatch(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	order := createTestOrder(t, engine)
	advanceTo(t, engine, order.OrderID, models.OrderStatusOutForDelivery)
	_, _, err := engine.Transition(context.Background(), order.OrderID, models.OrderStatusCancelled, "changed my mind")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	order2 := createTestOrder(t, engine)
	deliverOrder(t, engine, order2.OrderID)
	_, _, err = engine.Transition(context.Background(), order2.OrderID, models.OrderStatusCancelled, "changed my mind")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGenerateDeliveryOTP(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)

	_, err := engine.GenerateDeliveryOTP(context.Background(), order.OrderID)
	assert.ErrorIs(t, err, ErrInvalidState, "otp before out_for_delivery must fail")

	advanceTo(t, engine, order.OrderID, models.OrderStatusOutForDelivery)

	otp, err := engine.GenerateDeliveryOTP(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Len(t, otp, 4)
	assert.GreaterOrEqual(t, otp, "1000")
	assert.LessOrEqual(t, otp, "9999")

	again, err := engine.GenerateDeliveryOTP(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, otp, again, "regenerating must return the existing code")
}

func TestVerifyDeliveryOTP(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)
	advanceTo(t, engine, order.OrderID, models.OrderStatusOutForDelivery)

	otp, err := engine.GenerateDeliveryOTP(context.Background(), order.OrderID)
	require.NoError(t, err)

	wrong := "0000"
	if otp == wrong {
		wrong = "0001"
	}
	for i := 0; i < 3; i++ {
		ok, err := engine.VerifyDeliveryOTP(context.Background(), order.OrderID, wrong)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	current, err := engine.GetOrder(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusOutForDelivery, current.Status)
	assert.False(t, current.DeliveryOTPVerified)

	ok, err := engine.VerifyDeliveryOTP(context.Background(), order.OrderID, otp)
	require.NoError(t, err)
	assert.True(t, ok)

	current, err = engine.GetOrder(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, current.Status)
	assert.True(t, current.DeliveryOTPVerified)
	assert.NotNil(t, current.DeliveryConfirmedAt)

	// completed orders accept no further verification attempts
	_, err = engine.VerifyDeliveryOTP(context.Background(), order.OrderID, otp)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestVerifyDeliveryOTPWithoutGeneration(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)
	advanceTo(t, engine, order.OrderID, models.OrderStatusOutForDelivery)

	_, err := engine.VerifyDeliveryOTP(context.Background(), order.OrderID, "1234")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func validRefund() RefundRequest {
	return RefundRequest{
		PhotoID:       "st_photo_123",
		Method:        models.RefundMethodGcash,
		AccountName:   "Mika Reyes",
		AccountNumber: "09123456789",
		Comment:       "item arrived damaged",
	}
}

func TestRequestRefundWithinWindow(t *testing.T) {
	engine, _, now := newTestEngine(t)
	order := createTestOrder(t, engine)
	deliverOrder(t, engine, order.OrderID)

	*now = now.Add(23 * time.Hour)

	updated, err := engine.RequestRefund(context.Background(), order.OrderID, validRefund())
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusRequested, updated.RefundStatus)
	assert.Equal(t, models.RefundMethodGcash, *updated.RefundMethod)
	assert.Equal(t, "09123456789", *updated.RefundAccountNumber)
	assert.NotNil(t, updated.RefundRequestedAt)

	decided, err := engine.DecideRefund(context.Background(), order.OrderID, models.RefundStatusApproved, "sent via gcash")
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusApproved, decided.RefundStatus)
	assert.Equal(t, "sent via gcash", *decided.RefundAdminNote)
}

func TestRequestRefundWindowBoundary(t *testing.T) {
	engine, _, now := newTestEngine(t)
	deliveredAt := *now

	order := createTestOrder(t, engine)
	deliverOrder(t, engine, order.OrderID)

	*now = deliveredAt.Add(24*time.Hour - time.Millisecond)
	_, err := engine.RequestRefund(context.Background(), order.OrderID, validRefund())
	assert.NoError(t, err, "one millisecond before the deadline must succeed")

	order2 := createTestOrder(t, engine)
	*now = deliveredAt
	deliverOrder(t, engine, order2.OrderID)

	*now = deliveredAt.Add(24*time.Hour + time.Millisecond)
	_, err = engine.RequestRefund(context.Background(), order2.OrderID, validRefund())
	assert.ErrorIs(t, err, ErrRefundWindowExpired)

	current, err := engine.GetOrder(context.Background(), order2.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusNone, current.RefundStatus)
}

func TestRequestRefundExpired(t *testing.T) {
	engine, _, now := newTestEngine(t)
	order := createTestOrder(t, engine)
	deliverOrder(t, engine, order.OrderID)

	*now = now.Add(25 * time.Hour)

	_, err := engine.RequestRefund(context.Background(), order.OrderID, validRefund())
	assert.ErrorIs(t, err, ErrRefundWindowExpired)

	current, err := engine.GetOrder(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusNone, current.RefundStatus)
}

func TestRequestRefundRequiresDelivery(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)
	advanceTo(t, engine, order.OrderID, models.OrderStatusShipped)

	_, err := engine.RequestRefund(context.Background(), order.OrderID, validRefund())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRequestRefundBlockedWhilePending(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)
	deliverOrder(t, engine, order.OrderID)

	_, err := engine.RequestRefund(context.Background(), order.OrderID, validRefund())
	require.NoError(t, err)

	_, err = engine.RequestRefund(context.Background(), order.OrderID, validRefund())
	assert.ErrorIs(t, err, ErrRefundAlreadyExists)

	// approval also blocks re-requests
	_, err = engine.DecideRefund(context.Background(), order.OrderID, models.RefundStatusApproved, "")
	require.NoError(t, err)
	_, err = engine.RequestRefund(context.Background(), order.OrderID, validRefund())
	assert.ErrorIs(t, err, ErrRefundAlreadyExists)
}

func TestRequestRefundAllowedAfterRejection(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)
	deliverOrder(t, engine, order.OrderID)

	_, err := engine.RequestRefund(context.Background(), order.OrderID, validRefund())
	require.NoError(t, err)

	_, err = engine.DecideRefund(context.Background(), order.OrderID, models.RefundStatusRejected, "photo unclear")
	require.NoError(t, err)

	updated, err := engine.RequestRefund(context.Background(), order.OrderID, validRefund())
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusRequested, updated.RefundStatus)
}

func TestRequestRefundAccountValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)
	deliverOrder(t, engine, order.OrderID)

	req := validRefund()
	req.AccountNumber = "0912 345 6789" // whitespace is stripped before matching
	updated, err := engine.RequestRefund(context.Background(), order.OrderID, req)
	require.NoError(t, err)
	assert.Equal(t, "09123456789", *updated.RefundAccountNumber)
}

func TestRequestRefundInvalidInput(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)
	deliverOrder(t, engine, order.OrderID)

	cases := []struct {
		name   string
		mutate func(*RefundRequest)
	}{
		{"short account number", func(r *RefundRequest) { r.AccountNumber = "12345" }},
		{"alphabetic account number", func(r *RefundRequest) { r.AccountNumber = "09ab3456789" }},
		{"unsupported method", func(r *RefundRequest) { r.Method = "paypal" }},
		{"missing photo", func(r *RefundRequest) { r.PhotoID = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRefund()
			tc.mutate(&req)
			_, err := engine.RequestRefund(context.Background(), order.OrderID, req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	current, err := engine.GetOrder(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusNone, current.RefundStatus)
}

func TestDecideRefundValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	order := createTestOrder(t, engine)
	deliverOrder(t, engine, order.OrderID)

	_, err := engine.DecideRefund(context.Background(), order.OrderID, models.RefundStatusApproved, "")
	assert.ErrorIs(t, err, ErrInvalidState, "deciding without a request must fail")

	_, err = engine.RequestRefund(context.Background(), order.OrderID, validRefund())
	require.NoError(t, err)

	_, err = engine.DecideRefund(context.Background(), order.OrderID, "maybe", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCanRefund(t *testing.T) {
	engine, _, now := newTestEngine(t)
	order := createTestOrder(t, engine)

	current, err := engine.GetOrder(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.False(t, engine.CanRefund(current))

	deliverOrder(t, engine, order.OrderID)
	current, err = engine.GetOrder(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.True(t, engine.CanRefund(current))

	*now = now.Add(25 * time.Hour)
	assert.False(t, engine.CanRefund(current))
}
