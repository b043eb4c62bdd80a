package store

import (
	"context"
	"database/sql"
	"fmt"

	"merchstore/internal/lifecycle"
	"merchstore/internal/models"
)

const orderColumns = `
	order_id, customer_email, customer_name, customer_phone, items,
	subtotal, shipping_fee, discount_amount, discount_percent, promo_code,
	total, final_total, status, payment_method, payment_status,
	payment_link_id, payment_link_url, paid_at,
	shipping_address, shipping_lat, shipping_lng,
	confirmed_at, shipped_at, out_for_delivery_at, delivery_confirmed_at,
	cancelled_at, cancel_reason,
	delivery_otp, delivery_otp_verified, delivery_proof_photo,
	refund_status, refund_photo_id, refund_method, refund_account_name,
	refund_account_number, refund_comment, refund_admin_note,
	refund_requested_at, created_at, updated_at`

const orderValues = `
	:order_id, :customer_email, :customer_name, :customer_phone, :items,
	:subtotal, :shipping_fee, :discount_amount, :discount_percent, :promo_code,
	:total, :final_total, :status, :payment_method, :payment_status,
	:payment_link_id, :payment_link_url, :paid_at,
	:shipping_address, :shipping_lat, :shipping_lng,
	:confirmed_at, :shipped_at, :out_for_delivery_at, :delivery_confirmed_at,
	:cancelled_at, :cancel_reason,
	:delivery_otp, :delivery_otp_verified, :delivery_proof_photo,
	:refund_status, :refund_photo_id, :refund_method, :refund_account_name,
	:refund_account_number, :refund_comment, :refund_admin_note,
	:refund_requested_at, :created_at, :updated_at`

const orderUpdateSet = `
	customer_email = :customer_email,
	customer_name = :customer_name,
	customer_phone = :customer_phone,
	items = :items,
	subtotal = :subtotal,
	shipping_fee = :shipping_fee,
	discount_amount = :discount_amount,
	discount_percent = :discount_percent,
	promo_code = :promo_code,
	total = :total,
	final_total = :final_total,
	status = :status,
	payment_method = :payment_method,
	payment_status = :payment_status,
	payment_link_id = :payment_link_id,
	payment_link_url = :payment_link_url,
	paid_at = :paid_at,
	shipping_address = :shipping_address,
	shipping_lat = :shipping_lat,
	shipping_lng = :shipping_lng,
	confirmed_at = :confirmed_at,
	shipped_at = :shipped_at,
	out_for_delivery_at = :out_for_delivery_at,
	delivery_confirmed_at = :delivery_confirmed_at,
	cancelled_at = :cancelled_at,
	cancel_reason = :cancel_reason,
	delivery_otp = :delivery_otp,
	delivery_otp_verified = :delivery_otp_verified,
	delivery_proof_photo = :delivery_proof_photo,
	refund_status = :refund_status,
	refund_photo_id = :refund_photo_id,
	refund_method = :refund_method,
	refund_account_name = :refund_account_name,
	refund_account_number = :refund_account_number,
	refund_comment = :refund_comment,
	refund_admin_note = :refund_admin_note,
	refund_requested_at = :refund_requested_at,
	updated_at = NOW()`

// InsertOrder persists a new order. The orders table carries a unique index
// on order_id; a conflict surfaces as lifecycle.ErrDuplicateOrderID so the
// engine can regenerate the id.
func (s *Store) InsertOrder(ctx context.Context, order *models.Order) error {
	query := fmt.Sprintf("INSERT INTO orders (%s) VALUES (%s) RETURNING id", orderColumns, orderValues)

	rows, err := s.db.NamedQueryContext(ctx, query, order)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", lifecycle.ErrDuplicateOrderID, order.OrderID)
		}
		return storageErr("insert order", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&order.ID); err != nil {
			return storageErr("scan order id", err)
		}
	}
	return nil
}

// GetOrder retrieves an order by its public order id
func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrNotFound, orderID)
	}
	if err != nil {
		return nil, storageErr("get order", err)
	}
	return &order, nil
}

// GetOrderByPaymentLinkID retrieves the order a gateway webhook refers to
func (s *Store) GetOrderByPaymentLinkID(ctx context.Context, linkID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE payment_link_id = $1", linkID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: payment link %s", lifecycle.ErrNotFound, linkID)
	}
	if err != nil {
		return nil, storageErr("get order by payment link", err)
	}
	return &order, nil
}

// GetOrdersByEmail retrieves a customer's orders, newest first
func (s *Store) GetOrdersByEmail(ctx context.Context, email string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE customer_email = $1 ORDER BY created_at DESC", email)
	if err != nil {
		return nil, storageErr("list orders by email", err)
	}
	return orders, nil
}

// MutateOrder runs fn against the current row inside a single transaction
// with a row lock, then writes the result. The precondition checks inside fn
// and the write are one atomic unit: two concurrent mutations of the same
// order serialize on the lock and the loser re-checks against the winner's
// state.
func (s *Store) MutateOrder(ctx context.Context, orderID string, fn func(*models.Order) error) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin order tx", err)
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrNotFound, orderID)
	}
	if err != nil {
		return nil, storageErr("lock order row", err)
	}

	if err := fn(&order); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("UPDATE orders SET %s WHERE id = :id", orderUpdateSet)
	if _, err := tx.NamedExecContext(ctx, query, &order); err != nil {
		return nil, storageErr("update order", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit order tx", err)
	}
	return &order, nil
}
