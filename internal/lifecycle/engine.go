package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"merchstore/internal/models"
	"merchstore/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence contract the engine runs against. MutateOrder
// must execute fn and the resulting write as one atomic unit (row lock in
// Postgres, mutex in the in-memory implementation): the precondition checks
// inside fn and the write may never be two separate round-trips. When fn
// returns an error the mutation is discarded and the error is returned
// unchanged.
type Store interface {
	InsertOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	MutateOrder(ctx context.Context, orderID string, fn func(*models.Order) error) (*models.Order, error)
}

// Engine validates and applies order lifecycle state changes. It performs
// no external side effects: payment links, stock movements, and
// notifications belong to the orchestrating caller.
type Engine struct {
	store        Store
	refundWindow time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewEngine creates a lifecycle engine with the given refund window
func NewEngine(store Store, refundWindow time.Duration) *Engine {
	return &Engine{
		store:        store,
		refundWindow: refundWindow,
		logger:       util.GetLogger(),
		now:          time.Now,
	}
}

// forward edges of the lifecycle; cancellation is handled separately
var nextStatus = map[string]string{
	models.OrderStatusPending:        models.OrderStatusConfirmed,
	models.OrderStatusConfirmed:      models.OrderStatusShipped,
	models.OrderStatusShipped:        models.OrderStatusOutForDelivery,
	models.OrderStatusOutForDelivery: models.OrderStatusCompleted,
}

// states from which cancellation is still allowed
var cancellableFrom = map[string]bool{
	models.OrderStatusPending:   true,
	models.OrderStatusConfirmed: true,
	models.OrderStatusShipped:   true,
}

var accountNumberPattern = regexp.MustCompile(`^\d{10,11}$`)

// CreateDraft is the input to Create: a frozen snapshot computed by the
// checkout orchestrator.
type CreateDraft struct {
	CustomerEmail   string
	CustomerName    string
	CustomerPhone   string
	ShippingAddress string
	Items           []models.OrderItem
	Subtotal        int64
	ShippingFee     int64
	DiscountAmount  int64
	DiscountPercent int
	PromoCode       string
	PaymentMethod   string
}

// Create persists a new pending order. Stock validation and decrement are
// the caller's responsibility and happen before/after this call as separate
// saga steps.
func (e *Engine) Create(ctx context.Context, draft CreateDraft) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "lifecycle.Create")
	defer span.End()

	if draft.CustomerEmail == "" || len(draft.Items) == 0 {
		return nil, fmt.Errorf("%w: customer email and at least one item are required", ErrInvalidInput)
	}
	for _, item := range draft.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: item quantity must be at least 1", ErrInvalidInput)
		}
	}

	now := e.now()
	total := draft.Subtotal + draft.ShippingFee

	order := &models.Order{
		CustomerEmail:   draft.CustomerEmail,
		CustomerName:    draft.CustomerName,
		CustomerPhone:   draft.CustomerPhone,
		ShippingAddress: draft.ShippingAddress,
		Items:           draft.Items,
		Subtotal:        draft.Subtotal,
		ShippingFee:     draft.ShippingFee,
		Total:           total,
		Status:          models.OrderStatusPending,
		PaymentMethod:   draft.PaymentMethod,
		PaymentStatus:   models.PaymentStatusPending,
		RefundStatus:    models.RefundStatusNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if draft.PromoCode != "" {
		promo := draft.PromoCode
		final := total - draft.DiscountAmount
		order.PromoCode = &promo
		order.DiscountAmount = draft.DiscountAmount
		order.DiscountPercent = draft.DiscountPercent
		order.FinalTotal = &final
	}

	// orderId uniqueness is verified on insert: the store enforces a unique
	// index and we regenerate on conflict instead of trusting the
	// timestamp+suffix scheme alone.
	for attempt := 0; attempt < 3; attempt++ {
		order.OrderID = newOrderID(now)
		err := e.store.InsertOrder(ctx, order)
		if err == nil {
			util.OrdersCreatedTotal.Inc()
			e.logger.Info("Order created",
				zap.String("order_id", order.OrderID),
				zap.String("customer_email", order.CustomerEmail),
				zap.Int64("total", order.EffectiveTotal()))
			return order, nil
		}
		if !isDuplicate(err) {
			return nil, err
		}
		e.logger.Warn("Order id collision, regenerating", zap.String("order_id", order.OrderID))
	}
	return nil, fmt.Errorf("%w: could not allocate a unique order id", ErrStorageUnavailable)
}

// Transition applies a lifecycle status change. Forward edges only move one
// step at a time; cancellation is allowed from pending, confirmed, and
// shipped with a reason. Re-applying the current status is a no-op. The
// second return value is the status the order held before the change,
// captured inside the same atomic mutation so event consumers see the true
// from-state even under concurrent transitions.
func (e *Engine) Transition(ctx context.Context, orderID, target, cancelReason string) (*models.Order, string, error) {
	ctx, span := util.StartSpan(ctx, "lifecycle.Transition")
	defer span.End()

	if _, known := nextStatus[target]; !known &&
		target != models.OrderStatusCompleted && target != models.OrderStatusCancelled {
		return nil, "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, target)
	}

	var from string
	order, err := e.store.MutateOrder(ctx, orderID, func(o *models.Order) error {
		from = o.Status
		if o.Status == target {
			return nil // idempotent re-apply
		}

		if target == models.OrderStatusCancelled {
			if !cancellableFrom[o.Status] {
				return fmt.Errorf("%w: cannot cancel order in state %q", ErrInvalidTransition, o.Status)
			}
			if strings.TrimSpace(cancelReason) == "" {
				return fmt.Errorf("%w: cancel reason is required", ErrInvalidInput)
			}
			reason := cancelReason
			o.Status = models.OrderStatusCancelled
			o.CancelReason = &reason
			e.stamp(&o.CancelledAt)
			return nil
		}

		if nextStatus[o.Status] != target {
			return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, o.Status, target)
		}

		o.Status = target
		switch target {
		case models.OrderStatusConfirmed:
			e.stamp(&o.ConfirmedAt)
		case models.OrderStatusShipped:
			e.stamp(&o.ShippedAt)
		case models.OrderStatusOutForDelivery:
			e.stamp(&o.OutForDeliveryAt)
		case models.OrderStatusCompleted:
			e.stamp(&o.DeliveryConfirmedAt)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	util.OrderTransitionsTotal.WithLabelValues(order.Status).Inc()
	e.logger.Info("Order transitioned",
		zap.String("order_id", orderID),
		zap.String("status", order.Status))
	return order, from, nil
}

// GenerateDeliveryOTP issues the 4-digit delivery confirmation code for an
// out-for-delivery order. An existing code is returned as-is so a customer
// reload never desyncs the code the rider already saw.
func (e *Engine) GenerateDeliveryOTP(ctx context.Context, orderID string) (string, error) {
	ctx, span := util.StartSpan(ctx, "lifecycle.GenerateDeliveryOTP")
	defer span.End()

	var otp string
	_, err := e.store.MutateOrder(ctx, orderID, func(o *models.Order) error {
		if o.Status != models.OrderStatusOutForDelivery {
			return fmt.Errorf("%w: delivery otp requires out_for_delivery, order is %q", ErrInvalidState, o.Status)
		}
		if o.DeliveryOTP != nil {
			otp = *o.DeliveryOTP
			return nil
		}
		// proximity confirmation code, not an auth token
		otp = fmt.Sprintf("%04d", 1000+rand.Intn(9000))
		o.DeliveryOTP = &otp
		return nil
	})
	if err != nil {
		return "", err
	}

	util.DeliveryOTPIssuedTotal.Inc()
	return otp, nil
}

// VerifyDeliveryOTP compares the submitted code against the stored one. On
// match the order becomes completed and the refund window starts; on
// mismatch nothing changes and false is returned.
func (e *Engine) VerifyDeliveryOTP(ctx context.Context, orderID, submitted string) (bool, error) {
	ctx, span := util.StartSpan(ctx, "lifecycle.VerifyDeliveryOTP")
	defer span.End()

	matched := false
	_, err := e.store.MutateOrder(ctx, orderID, func(o *models.Order) error {
		if o.Status != models.OrderStatusOutForDelivery {
			return fmt.Errorf("%w: otp verification requires out_for_delivery, order is %q", ErrInvalidState, o.Status)
		}
		if o.DeliveryOTP == nil {
			return fmt.Errorf("%w: no delivery otp has been generated", ErrInvalidState)
		}
		if *o.DeliveryOTP != strings.TrimSpace(submitted) {
			return nil
		}
		matched = true
		o.Status = models.OrderStatusCompleted
		o.DeliveryOTPVerified = true
		e.stamp(&o.DeliveryConfirmedAt)
		return nil
	})
	if err != nil {
		return false, err
	}

	util.DeliveryOTPVerificationsTotal.WithLabelValues(verifyResult(matched)).Inc()
	if matched {
		e.logger.Info("Delivery confirmed", zap.String("order_id", orderID))
	}
	return matched, nil
}

// RefundRequest is the customer's refund filing
type RefundRequest struct {
	PhotoID       string
	Method        string
	AccountName   string
	AccountNumber string
	Comment       string
}

// RequestRefund records a refund request for a delivered order. Eligibility
// is evaluated lazily at call time: the refund window is a data-driven
// deadline, not a timer.
func (e *Engine) RequestRefund(ctx context.Context, orderID string, req RefundRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "lifecycle.RequestRefund")
	defer span.End()

	account := strings.ReplaceAll(strings.TrimSpace(req.AccountNumber), " ", "")

	order, err := e.store.MutateOrder(ctx, orderID, func(o *models.Order) error {
		if o.Status != models.OrderStatusCompleted || o.DeliveryConfirmedAt == nil {
			return fmt.Errorf("%w: refunds require a delivered order, order is %q", ErrInvalidState, o.Status)
		}
		if !e.now().Before(o.DeliveryConfirmedAt.Add(e.refundWindow)) {
			return ErrRefundWindowExpired
		}
		if o.RefundStatus != models.RefundStatusNone && o.RefundStatus != models.RefundStatusRejected {
			return fmt.Errorf("%w: refund is %q", ErrRefundAlreadyExists, o.RefundStatus)
		}
		if !accountNumberPattern.MatchString(account) {
			return fmt.Errorf("%w: account number must be 10-11 digits", ErrInvalidInput)
		}
		if req.Method != models.RefundMethodGcash && req.Method != models.RefundMethodMaya {
			return fmt.Errorf("%w: unsupported refund method %q", ErrInvalidInput, req.Method)
		}
		if req.PhotoID == "" {
			return fmt.Errorf("%w: proof photo is required", ErrInvalidInput)
		}

		photo, method := req.PhotoID, req.Method
		name, comment := req.AccountName, req.Comment
		o.RefundStatus = models.RefundStatusRequested
		o.RefundPhotoID = &photo
		o.RefundMethod = &method
		o.RefundAccountName = &name
		o.RefundAccountNumber = &account
		o.RefundComment = &comment
		e.stamp(&o.RefundRequestedAt)
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.RefundsRequestedTotal.Inc()
	e.logger.Info("Refund requested",
		zap.String("order_id", orderID),
		zap.String("method", req.Method))
	return order, nil
}

// DecideRefund records the admin decision on a requested refund. The payout
// itself is an external action.
func (e *Engine) DecideRefund(ctx context.Context, orderID, decision, adminNote string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "lifecycle.DecideRefund")
	defer span.End()

	if decision != models.RefundStatusApproved && decision != models.RefundStatusRejected {
		return nil, fmt.Errorf("%w: decision must be approved or rejected", ErrInvalidInput)
	}

	order, err := e.store.MutateOrder(ctx, orderID, func(o *models.Order) error {
		if o.RefundStatus != models.RefundStatusRequested {
			return fmt.Errorf("%w: no pending refund request, refund is %q", ErrInvalidState, o.RefundStatus)
		}
		note := adminNote
		o.RefundStatus = decision
		o.RefundAdminNote = &note
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.RefundsDecidedTotal.WithLabelValues(decision).Inc()
	e.logger.Info("Refund decided",
		zap.String("order_id", orderID),
		zap.String("decision", decision))
	return order, nil
}

// GetOrder retrieves an order by its public order id
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return e.store.GetOrder(ctx, orderID)
}

// CanRefund reports whether a refund request would currently pass the state
// and window checks. Derived at read time, never stored.
func (e *Engine) CanRefund(o *models.Order) bool {
	if o.Status != models.OrderStatusCompleted || o.DeliveryConfirmedAt == nil {
		return false
	}
	if o.RefundStatus != models.RefundStatusNone && o.RefundStatus != models.RefundStatusRejected {
		return false
	}
	return e.now().Before(o.DeliveryConfirmedAt.Add(e.refundWindow))
}

// stamp sets a transition timestamp once; re-applied transitions keep the
// original time.
func (e *Engine) stamp(t **time.Time) {
	if *t == nil {
		now := e.now()
		*t = &now
	}
}

func newOrderID(now time.Time) string {
	suffix := strings.ToUpper(uuid.New().String()[:6])
	return fmt.Sprintf("KPM-%d-%s", now.UnixMilli(), suffix)
}

func isDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateOrderID)
}

func verifyResult(matched bool) string {
	if matched {
		return "match"
	}
	return "mismatch"
}
