package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Product represents a merchandise item in the catalog
type Product struct {
	ID          int64      `db:"id" json:"id"`
	Slug        string     `db:"slug" json:"slug"`
	Name        string     `db:"name" json:"name"`
	Artist      string     `db:"artist" json:"artist"`
	Category    string     `db:"category" json:"category"`
	Price       int64      `db:"price" json:"price"`
	Image       string     `db:"image" json:"image"`
	Stock       int        `db:"stock" json:"stock"`
	IsPreOrder  bool       `db:"is_pre_order" json:"is_pre_order"`
	ReleaseDate *time.Time `db:"release_date" json:"release_date,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// PromoCode represents a discount code
type PromoCode struct {
	ID              int64      `db:"id" json:"id"`
	Code            string     `db:"code" json:"code"`
	DiscountPercent int        `db:"discount_percent" json:"discount_percent"`
	MinSubtotal     int64      `db:"min_subtotal" json:"min_subtotal"`
	Active          bool       `db:"active" json:"active"`
	ExpiresAt       *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// OrderItem is a frozen snapshot of a product at order-creation time.
// It is never re-derived from current product state.
type OrderItem struct {
	ProductID   int64      `json:"product_id"`
	Name        string     `json:"name"`
	Price       int64      `json:"price"`
	Image       string     `json:"image"`
	Quantity    int        `json:"quantity"`
	IsPreOrder  bool       `json:"is_pre_order"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
}

// OrderItems is stored as a JSONB column
type OrderItems []OrderItem

func (i OrderItems) Value() (driver.Value, error) {
	return json.Marshal(i)
}

func (i *OrderItems) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for OrderItems: %T", src)
	}
	return json.Unmarshal(b, i)
}

// Order represents a customer order
type Order struct {
	ID      int64  `db:"id" json:"-"`
	OrderID string `db:"order_id" json:"order_id"`

	CustomerEmail string `db:"customer_email" json:"customer_email"`
	CustomerName  string `db:"customer_name" json:"customer_name"`
	CustomerPhone string `db:"customer_phone" json:"customer_phone"`

	Items OrderItems `db:"items" json:"items"`

	Subtotal        int64   `db:"subtotal" json:"subtotal"`
	ShippingFee     int64   `db:"shipping_fee" json:"shipping_fee"`
	DiscountAmount  int64   `db:"discount_amount" json:"discount_amount"`
	DiscountPercent int     `db:"discount_percent" json:"discount_percent"`
	PromoCode       *string `db:"promo_code" json:"promo_code,omitempty"`
	Total           int64   `db:"total" json:"total"`
	FinalTotal      *int64  `db:"final_total" json:"final_total,omitempty"`

	Status string `db:"status" json:"status"`

	PaymentMethod  string     `db:"payment_method" json:"payment_method"`
	PaymentStatus  string     `db:"payment_status" json:"payment_status"`
	PaymentLinkID  *string    `db:"payment_link_id" json:"payment_link_id,omitempty"`
	PaymentLinkURL *string    `db:"payment_link_url" json:"payment_link_url,omitempty"`
	PaidAt         *time.Time `db:"paid_at" json:"paid_at,omitempty"`

	ShippingAddress string   `db:"shipping_address" json:"shipping_address"`
	ShippingLat     *float64 `db:"shipping_lat" json:"shipping_lat,omitempty"`
	ShippingLng     *float64 `db:"shipping_lng" json:"shipping_lng,omitempty"`

	ConfirmedAt         *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
	ShippedAt           *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`
	OutForDeliveryAt    *time.Time `db:"out_for_delivery_at" json:"out_for_delivery_at,omitempty"`
	DeliveryConfirmedAt *time.Time `db:"delivery_confirmed_at" json:"delivery_confirmed_at,omitempty"`
	CancelledAt         *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason        *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`

	DeliveryOTP         *string `db:"delivery_otp" json:"-"`
	DeliveryOTPVerified bool    `db:"delivery_otp_verified" json:"delivery_otp_verified"`
	DeliveryProofPhoto  *string `db:"delivery_proof_photo" json:"delivery_proof_photo,omitempty"`

	RefundStatus        string     `db:"refund_status" json:"refund_status"`
	RefundPhotoID       *string    `db:"refund_photo_id" json:"refund_photo_id,omitempty"`
	RefundMethod        *string    `db:"refund_method" json:"refund_method,omitempty"`
	RefundAccountName   *string    `db:"refund_account_name" json:"refund_account_name,omitempty"`
	RefundAccountNumber *string    `db:"refund_account_number" json:"refund_account_number,omitempty"`
	RefundComment       *string    `db:"refund_comment" json:"refund_comment,omitempty"`
	RefundAdminNote     *string    `db:"refund_admin_note" json:"refund_admin_note,omitempty"`
	RefundRequestedAt   *time.Time `db:"refund_requested_at" json:"refund_requested_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Order lifecycle statuses. Exactly one holds at a time; transitions move
// forward only, except cancellation before dispatch.
const (
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusShipped        = "shipped"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusCompleted      = "completed"
	OrderStatusCancelled      = "cancelled"
)

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// Refund statuses
const (
	RefundStatusNone      = "none"
	RefundStatusRequested = "requested"
	RefundStatusApproved  = "approved"
	RefundStatusRejected  = "rejected"
)

// Refund payout methods
const (
	RefundMethodGcash = "gcash"
	RefundMethodMaya  = "maya"
)

var statusLabels = map[string]string{
	OrderStatusPending:        "Pending Payment",
	OrderStatusConfirmed:      "Order Confirmed",
	OrderStatusShipped:        "Shipped",
	OrderStatusOutForDelivery: "Out for Delivery",
	OrderStatusCompleted:      "Delivered",
	OrderStatusCancelled:      "Cancelled",
}

// StatusLabel returns the human-readable label for a lifecycle status. The
// lifecycle key is the only persisted status field; the label is derived at
// the presentation boundary and never stored.
func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

// EffectiveTotal returns the amount the customer owes: the discounted total
// when a promo was applied, the plain total otherwise.
func (o *Order) EffectiveTotal() int64 {
	if o.FinalTotal != nil {
		return *o.FinalTotal
	}
	return o.Total
}

// CartItem references a product in a customer's cart
type CartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CartItems is stored as a JSONB column
type CartItems []CartItem

func (i CartItems) Value() (driver.Value, error) {
	return json.Marshal(i)
}

func (i *CartItems) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for CartItems: %T", src)
	}
	return json.Unmarshal(b, i)
}

// Cart is a customer's cart, keyed by email. Postgres is the source of
// truth; Redis holds a TTL mirror for fast reads.
type Cart struct {
	CustomerEmail string    `db:"customer_email" json:"customer_email"`
	Items         CartItems `db:"items" json:"items"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ProductIDs is stored as a JSONB column
type ProductIDs []int64

func (p ProductIDs) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *ProductIDs) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for ProductIDs: %T", src)
	}
	return json.Unmarshal(b, p)
}

// Wishlist is a customer's saved products, keyed by email
type Wishlist struct {
	CustomerEmail string     `db:"customer_email" json:"customer_email"`
	ProductIDs    ProductIDs `db:"product_ids" json:"product_ids"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// RiderLocation is the last-known GPS position for an out-for-delivery order
type RiderLocation struct {
	OrderID   string    `json:"order_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updated_at"`
}
