package service

import (
	"context"
	"fmt"
	"time"

	"merchstore/internal/broker"
	"merchstore/internal/lifecycle"
	"merchstore/internal/models"
	"merchstore/internal/util"

	"go.uber.org/zap"
)

// CheckoutStore is the persistence surface the checkout saga reads and
// mutates. *store.Store satisfies it.
type CheckoutStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error)
	MutateOrder(ctx context.Context, orderID string, fn func(*models.Order) error) (*models.Order, error)
	DeleteCart(ctx context.Context, email string) error
}

// StockMover takes and returns product stock for checkout and its
// compensation steps. *StockClient satisfies it.
type StockMover interface {
	Decrement(ctx context.Context, productID int64, quantity int) (bool, error)
	Restore(ctx context.Context, productID int64, quantity int) error
}

// CartMirror drops the cached cart copy once checkout consumes the cart.
// *redisclient.Client satisfies it.
type CartMirror interface {
	InvalidateCart(ctx context.Context, email string) error
}

// CheckoutService orchestrates the checkout saga: stock decrement, order
// creation, and payment-link issuance are separate steps with explicit
// compensation, not a single transaction.
type CheckoutService struct {
	store       CheckoutStore
	redis       CartMirror
	stock       StockMover
	engine      *lifecycle.Engine
	gateway     PaymentGateway
	geocoder    Geocoder
	publisher   EventPublisher
	logger      *zap.Logger
	shippingFee int64
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	store CheckoutStore,
	redis CartMirror,
	stock StockMover,
	engine *lifecycle.Engine,
	gateway PaymentGateway,
	geocoder Geocoder,
	publisher EventPublisher,
	shippingFee int64,
) *CheckoutService {
	return &CheckoutService{
		store:       store,
		redis:       redis,
		stock:       stock,
		engine:      engine,
		gateway:     gateway,
		geocoder:    geocoder,
		publisher:   publisher,
		logger:      util.GetLogger(),
		shippingFee: shippingFee,
	}
}

// CheckoutItemRequest references a product being bought
type CheckoutItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// CheckoutRequest is the storefront's checkout submission
type CheckoutRequest struct {
	CustomerEmail   string                `json:"customer_email" binding:"required,email"`
	CustomerName    string                `json:"customer_name" binding:"required"`
	CustomerPhone   string                `json:"customer_phone" binding:"required"`
	ShippingAddress string                `json:"shipping_address" binding:"required"`
	Items           []CheckoutItemRequest `json:"items" binding:"required,min=1"`
	PromoCode       string                `json:"promo_code,omitempty"`
	PaymentMethod   string                `json:"payment_method" binding:"required"`
}

// CheckoutResponse returns the created order and its payment redirect
type CheckoutResponse struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	StatusLabel    string `json:"status_label"`
	Total          int64  `json:"total"`
	PaymentLinkURL string `json:"payment_link_url"`
}

// Checkout runs the full checkout saga
func (cs *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	products, err := cs.loadProducts(ctx, req.Items)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	items := snapshotItems(req.Items, products)
	subtotal := computeSubtotal(items)

	draft := lifecycle.CreateDraft{
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		Items:           items,
		Subtotal:        subtotal,
		ShippingFee:     cs.shippingFee,
		PaymentMethod:   req.PaymentMethod,
	}

	if req.PromoCode != "" {
		promo, err := cs.store.GetPromoByCode(ctx, req.PromoCode)
		if err != nil {
			util.CheckoutsFailedTotal.WithLabelValues("invalid_promo").Inc()
			return nil, fmt.Errorf("%w: unknown promo code", lifecycle.ErrInvalidInput)
		}
		discount, err := promoDiscount(promo, subtotal, time.Now())
		if err != nil {
			util.CheckoutsFailedTotal.WithLabelValues("invalid_promo").Inc()
			return nil, err
		}
		draft.PromoCode = promo.Code
		draft.DiscountPercent = promo.DiscountPercent
		draft.DiscountAmount = discount
	}

	if err := cs.decrementStock(ctx, req.Items); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, err
	}

	order, err := cs.engine.Create(ctx, draft)
	if err != nil {
		cs.restoreStock(ctx, req.Items)
		util.CheckoutsFailedTotal.WithLabelValues("create_failed").Inc()
		return nil, err
	}

	link, err := cs.gateway.CreatePaymentLink(ctx, PaymentLinkRequest{
		OrderID:       order.OrderID,
		Amount:        order.EffectiveTotal(),
		Description:   fmt.Sprintf("Order %s", order.OrderID),
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
	})
	if err != nil {
		// compensate: the order exists but cannot be paid, so stock goes
		// back and the order is cancelled
		cs.restoreStock(ctx, req.Items)
		if _, _, cerr := cs.engine.Transition(ctx, order.OrderID, models.OrderStatusCancelled, "payment link creation failed"); cerr != nil {
			cs.logger.Error("Failed to cancel order after payment link failure",
				zap.String("order_id", order.OrderID),
				zap.Error(cerr))
		}
		util.PaymentLinkFailuresTotal.Inc()
		util.CheckoutsFailedTotal.WithLabelValues("payment_link_failed").Inc()
		return nil, fmt.Errorf("failed to create payment link: %w", err)
	}

	util.PaymentLinksIssuedTotal.Inc()

	lat, lng, geoErr := cs.geocoder.Geocode(ctx, order.ShippingAddress)

	order, err = cs.store.MutateOrder(ctx, order.OrderID, func(o *models.Order) error {
		linkID, linkURL := link.ID, link.URL
		o.PaymentLinkID = &linkID
		o.PaymentLinkURL = &linkURL
		if geoErr == nil {
			o.ShippingLat = &lat
			o.ShippingLng = &lng
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if geoErr != nil {
		cs.logger.Warn("Geocoding failed",
			zap.String("order_id", order.OrderID),
			zap.Error(geoErr))
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:     broker.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:       order.OrderID,
		CustomerEmail: order.CustomerEmail,
		CustomerName:  order.CustomerName,
		Items:         order.Items,
		Total:         order.EffectiveTotal(),
	}
	if err := cs.publisher.PublishOrderCreated(ctx, event); err != nil {
		cs.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	if err := cs.store.DeleteCart(ctx, order.CustomerEmail); err != nil {
		cs.logger.Warn("Failed to clear cart after checkout", zap.Error(err))
	}
	if err := cs.redis.InvalidateCart(ctx, order.CustomerEmail); err != nil {
		cs.logger.Warn("Failed to invalidate cart mirror", zap.Error(err))
	}

	return &CheckoutResponse{
		OrderID:        order.OrderID,
		Status:         order.Status,
		StatusLabel:    models.StatusLabel(order.Status),
		Total:          order.EffectiveTotal(),
		PaymentLinkURL: link.URL,
	}, nil
}

// ContinuePayment returns the payment redirect for an unpaid order: the
// previously issued link when present, a fresh one otherwise.
func (cs *CheckoutService) ContinuePayment(ctx context.Context, orderID string) (string, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.ContinuePayment")
	defer span.End()

	order, err := cs.engine.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status != models.OrderStatusPending || order.PaymentStatus != models.PaymentStatusPending {
		return "", fmt.Errorf("%w: order %q is not awaiting payment", lifecycle.ErrInvalidState, orderID)
	}
	if order.PaymentLinkURL != nil {
		return *order.PaymentLinkURL, nil
	}

	link, err := cs.gateway.CreatePaymentLink(ctx, PaymentLinkRequest{
		OrderID:       order.OrderID,
		Amount:        order.EffectiveTotal(),
		Description:   fmt.Sprintf("Order %s", order.OrderID),
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
	})
	if err != nil {
		util.PaymentLinkFailuresTotal.Inc()
		return "", fmt.Errorf("failed to create payment link: %w", err)
	}
	util.PaymentLinksIssuedTotal.Inc()

	_, err = cs.store.MutateOrder(ctx, orderID, func(o *models.Order) error {
		linkID, linkURL := link.ID, link.URL
		o.PaymentLinkID = &linkID
		o.PaymentLinkURL = &linkURL
		return nil
	})
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

// ValidatePromo checks a promo code against a subtotal and returns the
// discount it would grant
func (cs *CheckoutService) ValidatePromo(ctx context.Context, code string, subtotal int64) (*models.PromoCode, int64, error) {
	promo, err := cs.store.GetPromoByCode(ctx, code)
	if err != nil {
		return nil, 0, err
	}
	discount, err := promoDiscount(promo, subtotal, time.Now())
	if err != nil {
		return nil, 0, err
	}
	return promo, discount, nil
}

// loadProducts resolves the requested products and enforces the stock check
// the engine itself does not repeat
func (cs *CheckoutService) loadProducts(ctx context.Context, items []CheckoutItemRequest) (map[int64]*models.Product, error) {
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	products, err := cs.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	for _, item := range items {
		product, ok := productMap[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %d not found", lifecycle.ErrInvalidInput, item.ProductID)
		}
		if item.Quantity > product.Stock {
			return nil, fmt.Errorf("%w: product %d has %d in stock, requested %d",
				lifecycle.ErrInvalidInput, item.ProductID, product.Stock, item.Quantity)
		}
	}
	return productMap, nil
}

func (cs *CheckoutService) decrementStock(ctx context.Context, items []CheckoutItemRequest) error {
	start := time.Now()
	defer func() {
		util.StockDecrementLatency.Observe(time.Since(start).Seconds())
	}()

	for i, item := range items {
		success, err := cs.stock.Decrement(ctx, item.ProductID, item.Quantity)
		if err != nil || !success {
			// roll back the decrements that already went through
			for _, done := range items[:i] {
				if rerr := cs.stock.Restore(ctx, done.ProductID, done.Quantity); rerr != nil {
					cs.logger.Error("Failed to roll back stock decrement",
						zap.Int64("product_id", done.ProductID),
						zap.Error(rerr))
				}
			}
			if err != nil {
				util.StockDecrementsFailed.WithLabelValues("error").Inc()
				return fmt.Errorf("failed to decrement stock for product %d: %w", item.ProductID, err)
			}
			util.StockDecrementsFailed.WithLabelValues("insufficient_stock").Inc()
			return fmt.Errorf("%w: insufficient stock for product %d", lifecycle.ErrInvalidInput, item.ProductID)
		}
	}
	return nil
}

func (cs *CheckoutService) restoreStock(ctx context.Context, items []CheckoutItemRequest) {
	for _, item := range items {
		if err := cs.stock.Restore(ctx, item.ProductID, item.Quantity); err != nil {
			cs.logger.Error("Failed to restore stock",
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}
}

// snapshotItems freezes product name/price/image into the order
func snapshotItems(items []CheckoutItemRequest, products map[int64]*models.Product) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		product := products[item.ProductID]
		out = append(out, models.OrderItem{
			ProductID:   product.ID,
			Name:        product.Name,
			Price:       product.Price,
			Image:       product.Image,
			Quantity:    item.Quantity,
			IsPreOrder:  product.IsPreOrder,
			ReleaseDate: product.ReleaseDate,
		})
	}
	return out
}

func computeSubtotal(items []models.OrderItem) int64 {
	var subtotal int64
	for _, item := range items {
		subtotal += item.Price * int64(item.Quantity)
	}
	return subtotal
}

// promoDiscount validates a promo against a subtotal and returns the
// discount amount in centavos
func promoDiscount(promo *models.PromoCode, subtotal int64, now time.Time) (int64, error) {
	if !promo.Active {
		return 0, fmt.Errorf("%w: promo %q is not active", lifecycle.ErrInvalidInput, promo.Code)
	}
	if promo.ExpiresAt != nil && now.After(*promo.ExpiresAt) {
		return 0, fmt.Errorf("%w: promo %q has expired", lifecycle.ErrInvalidInput, promo.Code)
	}
	if subtotal < promo.MinSubtotal {
		return 0, fmt.Errorf("%w: promo %q requires a subtotal of at least %d",
			lifecycle.ErrInvalidInput, promo.Code, promo.MinSubtotal)
	}
	return subtotal * int64(promo.DiscountPercent) / 100, nil
}
