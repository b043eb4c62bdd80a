package service

import (
	"context"
	"errors"
	"time"

	"merchstore/internal/broker"
	"merchstore/internal/lifecycle"
	"merchstore/internal/models"
	"merchstore/internal/util"

	"go.uber.org/zap"
)

// PaymentStore looks up and mutates orders for webhook application.
// *store.Store satisfies it.
type PaymentStore interface {
	GetOrderByPaymentLinkID(ctx context.Context, linkID string) (*models.Order, error)
	MutateOrder(ctx context.Context, orderID string, fn func(*models.Order) error) (*models.Order, error)
}

// PaymentService applies gateway webhook results to orders
type PaymentService struct {
	store     PaymentStore
	engine    *lifecycle.Engine
	publisher EventPublisher
	logger    *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store PaymentStore, engine *lifecycle.Engine, publisher EventPublisher) *PaymentService {
	return &PaymentService{
		store:     store,
		engine:    engine,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// HandleWebhook records a gateway payment result. A "paid" result marks the
// order paid and confirms it; anything else leaves the order pending so the
// customer can retry through the existing link. Replayed webhooks are
// no-ops.
func (ps *PaymentService) HandleWebhook(ctx context.Context, paymentLinkID, status string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	order, err := ps.store.GetOrderByPaymentLinkID(ctx, paymentLinkID)
	if err != nil {
		return nil, err
	}

	if status != "paid" {
		ps.logger.Warn("Payment webhook reported non-paid status",
			zap.String("order_id", order.OrderID),
			zap.String("status", status))
		return order, nil
	}

	alreadyPaid := false
	order, err = ps.store.MutateOrder(ctx, order.OrderID, func(o *models.Order) error {
		if o.PaymentStatus == models.PaymentStatusPaid {
			alreadyPaid = true
			return nil
		}
		now := time.Now()
		o.PaymentStatus = models.PaymentStatusPaid
		o.PaidAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if alreadyPaid {
		ps.logger.Info("Payment webhook replayed, ignoring",
			zap.String("order_id", order.OrderID))
		return order, nil
	}

	confirmed, _, err := ps.engine.Transition(ctx, order.OrderID, models.OrderStatusConfirmed, "")
	if err != nil {
		// a payment landing on a cancelled order needs a human, not a crash
		if errors.Is(err, lifecycle.ErrInvalidTransition) {
			ps.logger.Error("Payment received for order that cannot be confirmed",
				zap.String("order_id", order.OrderID),
				zap.Error(err))
			return order, nil
		}
		return nil, err
	}
	order = confirmed

	util.PaymentsCompletedTotal.Inc()
	ps.logger.Info("Order paid and confirmed", zap.String("order_id", order.OrderID))

	event := &models.PaymentCompletedEvent{
		BaseEvent:     broker.NewBaseEvent(models.EventTypePaymentCompleted),
		OrderID:       order.OrderID,
		CustomerEmail: order.CustomerEmail,
		PaymentLinkID: paymentLinkID,
		Amount:        order.EffectiveTotal(),
	}
	if err := ps.publisher.PublishPaymentCompleted(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentCompleted event", zap.Error(err))
	}

	return order, nil
}
