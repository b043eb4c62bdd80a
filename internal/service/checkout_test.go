package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"merchstore/internal/lifecycle"
	"merchstore/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ordersFake backs the engine and the services with one shared in-memory
// order set, mirroring the single-store wiring of production.
type ordersFake struct {
	mu           sync.Mutex
	orders       map[string]*models.Order
	products     map[int64]*models.Product
	promos       map[string]*models.PromoCode
	cartsCleared []string
}

func newOrdersFake() *ordersFake {
	return &ordersFake{
		orders:   make(map[string]*models.Order),
		products: make(map[int64]*models.Product),
		promos:   make(map[string]*models.PromoCode),
	}
}

func (f *ordersFake) InsertOrder(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.orders[order.OrderID]; exists {
		return lifecycle.ErrDuplicateOrderID
	}
	order.ID = int64(len(f.orders) + 1)
	cp := *order
	f.orders[order.OrderID] = &cp
	return nil
}

func (f *ordersFake) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *ordersFake) MutateOrder(ctx context.Context, orderID string, fn func(*models.Order) error) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}
	cp := *o
	if err := fn(&cp); err != nil {
		return nil, err
	}
	f.orders[orderID] = &cp
	out := cp
	return &out, nil
}

func (f *ordersFake) GetOrderByPaymentLinkID(ctx context.Context, linkID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.PaymentLinkID != nil && *o.PaymentLinkID == linkID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, lifecycle.ErrNotFound
}

func (f *ordersFake) GetOrdersByEmail(ctx context.Context, email string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.CustomerEmail == email {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *ordersFake) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *ordersFake) GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.promos[code]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, lifecycle.ErrNotFound
}

func (f *ordersFake) DeleteCart(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cartsCleared = append(f.cartsCleared, email)
	return nil
}

func (f *ordersFake) onlyOrder(t *testing.T) *models.Order {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.orders, 1)
	for _, o := range f.orders {
		cp := *o
		return &cp
	}
	return nil
}

type stockFake struct {
	mu          sync.Mutex
	decremented map[int64]int
	restored    map[int64]int
	deny        map[int64]bool
}

func newStockFake() *stockFake {
	return &stockFake{
		decremented: make(map[int64]int),
		restored:    make(map[int64]int),
		deny:        make(map[int64]bool),
	}
}

func (s *stockFake) Decrement(ctx context.Context, productID int64, quantity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deny[productID] {
		return false, nil
	}
	s.decremented[productID] += quantity
	return true, nil
}

func (s *stockFake) Restore(ctx context.Context, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restored[productID] += quantity
	return nil
}

type gatewayFake struct {
	calls int
	fail  bool
}

func (g *gatewayFake) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error) {
	g.calls++
	if g.fail {
		return nil, errors.New("gateway unavailable")
	}
	return &PaymentLink{
		ID:  fmt.Sprintf("link_%d", g.calls),
		URL: fmt.Sprintf("https://pay.example.com/%d", g.calls),
	}, nil
}

type geocoderFake struct {
	lat, lng float64
	err      error
}

func (g *geocoderFake) Geocode(ctx context.Context, address string) (float64, float64, error) {
	return g.lat, g.lng, g.err
}

type publisherFake struct {
	mu             sync.Mutex
	created        []*models.OrderCreatedEvent
	statusChanged  []*models.OrderStatusChangedEvent
	payments       []*models.PaymentCompletedEvent
	deliveries     []*models.DeliveryConfirmedEvent
	refundRequests []*models.RefundRequestedEvent
	refundDecided  []*models.RefundDecidedEvent
}

func (p *publisherFake) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *publisherFake) PublishOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusChanged = append(p.statusChanged, e)
	return nil
}

func (p *publisherFake) PublishPaymentCompleted(ctx context.Context, e *models.PaymentCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = append(p.payments, e)
	return nil
}

func (p *publisherFake) PublishDeliveryConfirmed(ctx context.Context, e *models.DeliveryConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deliveries = append(p.deliveries, e)
	return nil
}

func (p *publisherFake) PublishRefundRequested(ctx context.Context, e *models.RefundRequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refundRequests = append(p.refundRequests, e)
	return nil
}

func (p *publisherFake) PublishRefundDecided(ctx context.Context, e *models.RefundDecidedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refundDecided = append(p.refundDecided, e)
	return nil
}

type mirrorFake struct {
	invalidated []string
}

func (m *mirrorFake) InvalidateCart(ctx context.Context, email string) error {
	m.invalidated = append(m.invalidated, email)
	return nil
}

type checkoutFixture struct {
	orders    *ordersFake
	stock     *stockFake
	gateway   *gatewayFake
	publisher *publisherFake
	mirror    *mirrorFake
	engine    *lifecycle.Engine
	checkout  *CheckoutService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	orders := newOrdersFake()
	orders.products[1] = &models.Product{ID: 1, Name: "Lightstick Ver. 3", Price: 250000, Image: "lightstick.jpg", Stock: 5}
	orders.products[2] = &models.Product{ID: 2, Name: "Photocard Binder", Price: 80000, Image: "binder.jpg", Stock: 10}

	fx := &checkoutFixture{
		orders:    orders,
		stock:     newStockFake(),
		gateway:   &gatewayFake{},
		publisher: &publisherFake{},
		mirror:    &mirrorFake{},
		engine:    lifecycle.NewEngine(orders, 24*time.Hour),
	}
	fx.checkout = NewCheckoutService(
		orders, fx.mirror, fx.stock, fx.engine, fx.gateway,
		&geocoderFake{lat: 14.6091, lng: 121.0223}, fx.publisher, 10000)
	return fx
}

func checkoutRequest() *CheckoutRequest {
	return &CheckoutRequest{
		CustomerEmail:   "fan@example.com",
		CustomerName:    "Mika Reyes",
		CustomerPhone:   "09171234567",
		ShippingAddress: "123 Katipunan Ave, Quezon City",
		Items: []CheckoutItemRequest{
			{ProductID: 1, Quantity: 1},
			{ProductID: 2, Quantity: 2},
		},
		PaymentMethod: "gcash",
	}
}

func TestCheckoutIssuesPaymentLink(t *testing.T) {
	fx := newCheckoutFixture(t)

	resp, err := fx.checkout.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, resp.Status)
	assert.Equal(t, int64(420000), resp.Total)
	assert.NotEmpty(t, resp.PaymentLinkURL)

	order := fx.orders.onlyOrder(t)
	require.NotNil(t, order.PaymentLinkID)
	assert.Equal(t, "link_1", *order.PaymentLinkID)
	require.NotNil(t, order.ShippingLat)
	assert.Equal(t, 14.6091, *order.ShippingLat)

	assert.Equal(t, 1, fx.stock.decremented[1])
	assert.Equal(t, 2, fx.stock.decremented[2])
	assert.Empty(t, fx.stock.restored)

	assert.Equal(t, []string{"fan@example.com"}, fx.orders.cartsCleared)
	assert.Equal(t, []string{"fan@example.com"}, fx.mirror.invalidated)

	require.Len(t, fx.publisher.created, 1)
	assert.Equal(t, order.OrderID, fx.publisher.created[0].OrderID)
}

func TestCheckoutCompensatesWhenPaymentLinkFails(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.gateway.fail = true

	_, err := fx.checkout.Checkout(context.Background(), checkoutRequest())
	require.Error(t, err)

	// every decrement must have a matching restore
	assert.Equal(t, fx.stock.decremented, fx.stock.restored)

	order := fx.orders.onlyOrder(t)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	require.NotNil(t, order.CancelReason)
	assert.Equal(t, "payment link creation failed", *order.CancelReason)

	assert.Empty(t, fx.publisher.created)
	assert.Empty(t, fx.orders.cartsCleared)
}

func TestCheckoutRejectsInsufficientStock(t *testing.T) {
	fx := newCheckoutFixture(t)

	req := checkoutRequest()
	req.Items[0].Quantity = 6 // product 1 has 5

	_, err := fx.checkout.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidInput)
	assert.Empty(t, fx.stock.decremented)
	assert.Equal(t, 0, fx.gateway.calls)
}

func TestCheckoutRollsBackPartialStockDecrement(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.stock.deny[2] = true // first product decrements, second refuses

	_, err := fx.checkout.Checkout(context.Background(), checkoutRequest())
	assert.ErrorIs(t, err, lifecycle.ErrInvalidInput)

	assert.Equal(t, 1, fx.stock.restored[1], "the decrement that went through must come back")
	assert.Equal(t, 0, fx.gateway.calls)
}

func TestContinuePaymentReusesExistingLink(t *testing.T) {
	fx := newCheckoutFixture(t)

	resp, err := fx.checkout.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)
	require.Equal(t, 1, fx.gateway.calls)

	url, err := fx.checkout.ContinuePayment(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, resp.PaymentLinkURL, url)
	assert.Equal(t, 1, fx.gateway.calls, "an existing link must be reused, not reissued")
}

func TestContinuePaymentRejectsPaidOrder(t *testing.T) {
	fx := newCheckoutFixture(t)

	resp, err := fx.checkout.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)

	_, err = fx.orders.MutateOrder(context.Background(), resp.OrderID, func(o *models.Order) error {
		o.PaymentStatus = models.PaymentStatusPaid
		return nil
	})
	require.NoError(t, err)

	_, err = fx.checkout.ContinuePayment(context.Background(), resp.OrderID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidState)
}

func TestComputeSubtotal(t *testing.T) {
	items := []models.OrderItem{
		{ProductID: 1, Price: 250000, Quantity: 2},
		{ProductID: 2, Price: 80000, Quantity: 1},
	}

	assert.Equal(t, int64(2*250000+80000), computeSubtotal(items))
}

func TestSnapshotItems(t *testing.T) {
	release := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	products := map[int64]*models.Product{
		1: {ID: 1, Name: "Comeback Album", Price: 120000, Image: "album.jpg", IsPreOrder: true, ReleaseDate: &release},
	}

	items := snapshotItems([]CheckoutItemRequest{{ProductID: 1, Quantity: 3}}, products)

	require.Len(t, items, 1)
	assert.Equal(t, "Comeback Album", items[0].Name)
	assert.Equal(t, int64(120000), items[0].Price)
	assert.Equal(t, 3, items[0].Quantity)
	assert.True(t, items[0].IsPreOrder)
	require.NotNil(t, items[0].ReleaseDate)
	assert.Equal(t, release, *items[0].ReleaseDate)
}

func TestPromoDiscount(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(48 * time.Hour)

	promo := &models.PromoCode{
		Code:            "COMEBACK10",
		DiscountPercent: 10,
		MinSubtotal:     100000,
		Active:          true,
		ExpiresAt:       &expiry,
	}

	discount, err := promoDiscount(promo, 410000, now)
	require.NoError(t, err)
	assert.Equal(t, int64(41000), discount)
}

func TestPromoDiscountRejections(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	cases := []struct {
		name     string
		promo    models.PromoCode
		subtotal int64
	}{
		{"inactive", models.PromoCode{Code: "OLD", DiscountPercent: 10, Active: false}, 500000},
		{"expired", models.PromoCode{Code: "GONE", DiscountPercent: 10, Active: true, ExpiresAt: &past}, 500000},
		{"below minimum", models.PromoCode{Code: "BIG", DiscountPercent: 15, Active: true, MinSubtotal: 1000000}, 500000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := promoDiscount(&tc.promo, tc.subtotal, now)
			assert.ErrorIs(t, err, lifecycle.ErrInvalidInput)
		})
	}
}
