package service

import (
	"context"

	"merchstore/internal/models"
)

// EventPublisher publishes order lifecycle events to the event stream.
// *broker.EventPublisher satisfies it; tests record events in memory.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
	PublishDeliveryConfirmed(ctx context.Context, event *models.DeliveryConfirmedEvent) error
	PublishRefundRequested(ctx context.Context, event *models.RefundRequestedEvent) error
	PublishRefundDecided(ctx context.Context, event *models.RefundDecidedEvent) error
}
