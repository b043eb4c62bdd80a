package service

import (
	"context"

	"merchstore/internal/broker"
	"merchstore/internal/lifecycle"
	"merchstore/internal/models"
	"merchstore/internal/util"

	"go.uber.org/zap"
)

// OrderLister reads a customer's order history. *store.Store satisfies it.
type OrderLister interface {
	GetOrdersByEmail(ctx context.Context, email string) ([]models.Order, error)
}

// OrderService fronts the lifecycle engine for API callers: it runs the
// engine operation, then publishes the matching event. The engine itself
// performs no side effects, so event publishing never affects whether a
// transition happened.
type OrderService struct {
	store     OrderLister
	engine    *lifecycle.Engine
	publisher EventPublisher
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderLister, engine *lifecycle.Engine, publisher EventPublisher) *OrderService {
	return &OrderService{
		store:     store,
		engine:    engine,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// OrderView is an order plus its derived, read-time fields
type OrderView struct {
	*models.Order
	StatusLabel string `json:"status_label"`
	CanRefund   bool   `json:"can_refund"`
}

func (os *OrderService) view(order *models.Order) *OrderView {
	return &OrderView{
		Order:       order,
		StatusLabel: models.StatusLabel(order.Status),
		CanRefund:   os.engine.CanRefund(order),
	}
}

// GetOrder retrieves one order with derived fields
func (os *OrderService) GetOrder(ctx context.Context, orderID string) (*OrderView, error) {
	order, err := os.engine.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return os.view(order), nil
}

// ListOrders retrieves a customer's orders, newest first
func (os *OrderService) ListOrders(ctx context.Context, email string) ([]*OrderView, error) {
	orders, err := os.store.GetOrdersByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	views := make([]*OrderView, len(orders))
	for i := range orders {
		views[i] = os.view(&orders[i])
	}
	return views, nil
}

// Transition applies an admin/rider status change and publishes the change.
// The from-state comes out of the engine's atomic mutation, so the event
// never mislabels the prior status under concurrent transitions.
func (os *OrderService) Transition(ctx context.Context, orderID, target, cancelReason string) (*OrderView, error) {
	order, from, err := os.engine.Transition(ctx, orderID, target, cancelReason)
	if err != nil {
		return nil, err
	}

	if order.Status != from {
		event := &models.OrderStatusChangedEvent{
			BaseEvent:     broker.NewBaseEvent(models.EventTypeOrderStatusChange),
			OrderID:       order.OrderID,
			CustomerEmail: order.CustomerEmail,
			FromStatus:    from,
			ToStatus:      order.Status,
			CancelReason:  cancelReason,
		}
		if err := os.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
			os.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
	}

	return os.view(order), nil
}

// GenerateDeliveryOTP issues (or re-reads) the delivery confirmation code
func (os *OrderService) GenerateDeliveryOTP(ctx context.Context, orderID string) (string, error) {
	return os.engine.GenerateDeliveryOTP(ctx, orderID)
}

// VerifyDeliveryOTP checks the code the rider was shown and publishes the
// delivery confirmation on success
func (os *OrderService) VerifyDeliveryOTP(ctx context.Context, orderID, submitted string) (bool, *OrderView, error) {
	matched, err := os.engine.VerifyDeliveryOTP(ctx, orderID, submitted)
	if err != nil {
		return false, nil, err
	}

	order, err := os.engine.GetOrder(ctx, orderID)
	if err != nil {
		return matched, nil, err
	}

	if matched && order.DeliveryConfirmedAt != nil {
		event := &models.DeliveryConfirmedEvent{
			BaseEvent:     broker.NewBaseEvent(models.EventTypeDeliveryConfirmed),
			OrderID:       order.OrderID,
			CustomerEmail: order.CustomerEmail,
			ConfirmedAt:   *order.DeliveryConfirmedAt,
		}
		if err := os.publisher.PublishDeliveryConfirmed(ctx, event); err != nil {
			os.logger.Error("Failed to publish DeliveryConfirmed event", zap.Error(err))
		}
	}

	return matched, os.view(order), nil
}

// RequestRefund files a refund request and publishes it
func (os *OrderService) RequestRefund(ctx context.Context, orderID string, req lifecycle.RefundRequest) (*OrderView, error) {
	order, err := os.engine.RequestRefund(ctx, orderID, req)
	if err != nil {
		return nil, err
	}

	event := &models.RefundRequestedEvent{
		BaseEvent:     broker.NewBaseEvent(models.EventTypeRefundRequested),
		OrderID:       order.OrderID,
		CustomerEmail: order.CustomerEmail,
		Method:        req.Method,
	}
	if err := os.publisher.PublishRefundRequested(ctx, event); err != nil {
		os.logger.Error("Failed to publish RefundRequested event", zap.Error(err))
	}

	return os.view(order), nil
}

// DecideRefund records the admin decision and publishes it
func (os *OrderService) DecideRefund(ctx context.Context, orderID, decision, adminNote string) (*OrderView, error) {
	order, err := os.engine.DecideRefund(ctx, orderID, decision, adminNote)
	if err != nil {
		return nil, err
	}

	event := &models.RefundDecidedEvent{
		BaseEvent:     broker.NewBaseEvent(models.EventTypeRefundDecided),
		OrderID:       order.OrderID,
		CustomerEmail: order.CustomerEmail,
		Decision:      decision,
		AdminNote:     adminNote,
	}
	if err := os.publisher.PublishRefundDecided(ctx, event); err != nil {
		os.logger.Error("Failed to publish RefundDecided event", zap.Error(err))
	}

	return os.view(order), nil
}
