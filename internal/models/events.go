package models

import "time"

// Event types
const (
	EventTypeOrderCreated      = "ORDER_CREATED"
	EventTypeOrderStatusChange = "ORDER_STATUS_CHANGED"
	EventTypePaymentCompleted  = "PAYMENT_COMPLETED"
	EventTypeDeliveryConfirmed = "DELIVERY_CONFIRMED"
	EventTypeRefundRequested   = "REFUND_REQUESTED"
	EventTypeRefundDecided     = "REFUND_DECIDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when checkout creates an order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       string      `json:"order_id"`
	CustomerEmail string      `json:"customer_email"`
	CustomerName  string      `json:"customer_name"`
	Items         []OrderItem `json:"items"`
	Total         int64       `json:"total"`
}

// OrderStatusChangedEvent published on every lifecycle transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	CustomerEmail string `json:"customer_email"`
	FromStatus    string `json:"from_status"`
	ToStatus      string `json:"to_status"`
	CancelReason  string `json:"cancel_reason,omitempty"`
}

// PaymentCompletedEvent published when the gateway webhook reports paid
type PaymentCompletedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	CustomerEmail string `json:"customer_email"`
	PaymentLinkID string `json:"payment_link_id"`
	Amount        int64  `json:"amount"`
}

// DeliveryConfirmedEvent published when the delivery OTP is verified
type DeliveryConfirmedEvent struct {
	BaseEvent
	OrderID       string    `json:"order_id"`
	CustomerEmail string    `json:"customer_email"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

// RefundRequestedEvent published when a customer files a refund request
type RefundRequestedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	CustomerEmail string `json:"customer_email"`
	Method        string `json:"method"`
}

// RefundDecidedEvent published when an admin approves or rejects a refund
type RefundDecidedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	CustomerEmail string `json:"customer_email"`
	Decision      string `json:"decision"`
	AdminNote     string `json:"admin_note,omitempty"`
}
