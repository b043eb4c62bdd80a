package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"merchstore/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing order lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// NewBaseEvent fills the common event envelope
func NewBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

// PublishOrderCreated publishes an OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes an OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentCompleted publishes a PaymentCompleted event
func (ep *EventPublisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishDeliveryConfirmed publishes a DeliveryConfirmed event
func (ep *EventPublisher) PublishDeliveryConfirmed(ctx context.Context, event *models.DeliveryConfirmedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishRefundRequested publishes a RefundRequested event
func (ep *EventPublisher) PublishRefundRequested(ctx context.Context, event *models.RefundRequestedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishRefundDecided publishes a RefundDecided event
func (ep *EventPublisher) PublishRefundDecided(ctx context.Context, event *models.RefundDecidedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// EventHandler routes consumed events to registered callbacks
type EventHandler struct {
	onOrderCreated      func(context.Context, *models.OrderCreatedEvent) error
	onPaymentCompleted  func(context.Context, *models.PaymentCompletedEvent) error
	onDeliveryConfirmed func(context.Context, *models.DeliveryConfirmedEvent) error
	onRefundDecided     func(context.Context, *models.RefundDecidedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOrderCreated registers a handler for OrderCreated events
func (eh *EventHandler) OnOrderCreated(handler func(context.Context, *models.OrderCreatedEvent) error) {
	eh.onOrderCreated = handler
}

// OnPaymentCompleted registers a handler for PaymentCompleted events
func (eh *EventHandler) OnPaymentCompleted(handler func(context.Context, *models.PaymentCompletedEvent) error) {
	eh.onPaymentCompleted = handler
}

// OnDeliveryConfirmed registers a handler for DeliveryConfirmed events
func (eh *EventHandler) OnDeliveryConfirmed(handler func(context.Context, *models.DeliveryConfirmedEvent) error) {
	eh.onDeliveryConfirmed = handler
}

// OnRefundDecided registers a handler for RefundDecided events
func (eh *EventHandler) OnRefundDecided(handler func(context.Context, *models.RefundDecidedEvent) error) {
	eh.onRefundDecided = handler
}

// HandleMessage routes messages to the appropriate handler
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderCreated:
		if eh.onOrderCreated != nil {
			var event models.OrderCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCreated event: %w", err)
			}
			return eh.onOrderCreated(ctx, &event)
		}

	case models.EventTypePaymentCompleted:
		if eh.onPaymentCompleted != nil {
			var event models.PaymentCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentCompleted event: %w", err)
			}
			return eh.onPaymentCompleted(ctx, &event)
		}

	case models.EventTypeDeliveryConfirmed:
		if eh.onDeliveryConfirmed != nil {
			var event models.DeliveryConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal DeliveryConfirmed event: %w", err)
			}
			return eh.onDeliveryConfirmed(ctx, &event)
		}

	case models.EventTypeRefundDecided:
		if eh.onRefundDecided != nil {
			var event models.RefundDecidedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RefundDecided event: %w", err)
			}
			return eh.onRefundDecided(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
