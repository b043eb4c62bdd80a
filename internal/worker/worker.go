package worker

import (
	"context"
	"fmt"

	"merchstore/internal/broker"
	"merchstore/internal/models"
	"merchstore/internal/service"
	"merchstore/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes order lifecycle events and sends customer
// notifications. Everything here is best-effort: a failed send is logged
// and the event is still committed, so notifications never block or replay
// into the order path.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	notifier     service.Notifier
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifier service.Notifier) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		notifier: notifier,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(w.handleOrderCreated)
	eventHandler.OnPaymentCompleted(w.handlePaymentCompleted)
	eventHandler.OnDeliveryConfirmed(w.handleDeliveryConfirmed)
	eventHandler.OnRefundDecided(w.handleRefundDecided)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) send(ctx context.Context, kind string, n service.Notification) error {
	if err := w.notifier.Send(ctx, n); err != nil {
		util.NotificationsFailedTotal.Inc()
		w.logger.Error("Failed to send notification",
			zap.String("kind", kind),
			zap.String("order_id", n.OrderID),
			zap.Error(err))
		return nil // best-effort: do not trigger redelivery
	}
	util.NotificationsSentTotal.WithLabelValues(kind).Inc()
	return nil
}

func (w *NotificationWorker) handleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return w.send(ctx, "order_confirmation", service.Notification{
		To:       event.CustomerEmail,
		Name:     event.CustomerName,
		Subject:  fmt.Sprintf("We received your order %s", event.OrderID),
		Template: "order_created",
		OrderID:  event.OrderID,
	})
}

func (w *NotificationWorker) handlePaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	return w.send(ctx, "payment_receipt", service.Notification{
		To:       event.CustomerEmail,
		Subject:  fmt.Sprintf("Payment received for order %s", event.OrderID),
		Template: "payment_completed",
		OrderID:  event.OrderID,
	})
}

func (w *NotificationWorker) handleDeliveryConfirmed(ctx context.Context, event *models.DeliveryConfirmedEvent) error {
	return w.send(ctx, "delivery_confirmed", service.Notification{
		To:       event.CustomerEmail,
		Subject:  fmt.Sprintf("Order %s delivered", event.OrderID),
		Template: "delivery_confirmed",
		OrderID:  event.OrderID,
	})
}

func (w *NotificationWorker) handleRefundDecided(ctx context.Context, event *models.RefundDecidedEvent) error {
	return w.send(ctx, "refund_decision", service.Notification{
		To:       event.CustomerEmail,
		Subject:  fmt.Sprintf("Update on your refund for order %s", event.OrderID),
		Template: "refund_" + event.Decision,
		OrderID:  event.OrderID,
		Body:     event.AdminNote,
	})
}
