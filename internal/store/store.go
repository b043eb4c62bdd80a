package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"merchstore/internal/lifecycle"
	"merchstore/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// storageErr wraps transient database failures into the retryable failure
// class of the lifecycle taxonomy.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", lifecycle.ErrStorageUnavailable, op, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: product %d", lifecycle.ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("get product", err)
	}
	return &product, nil
}

// GetProducts retrieves the catalog, optionally filtered by category
func (s *Store) GetProducts(ctx context.Context, category string) ([]models.Product, error) {
	var products []models.Product
	var err error
	if category != "" {
		err = s.db.SelectContext(ctx, &products,
			"SELECT * FROM products WHERE category = $1 ORDER BY id", category)
	} else {
		err = s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	}
	if err != nil {
		return nil, storageErr("list products", err)
	}
	return products, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, storageErr("list products by ids", err)
	}
	return products, nil
}

// DecrementStockTx decrements product stock within a transaction (FOR UPDATE
// lock); fails when the remaining stock is insufficient.
func (s *Store) DecrementStockTx(ctx context.Context, productID int64, quantity int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("begin stock tx", err)
	}
	defer tx.Rollback()

	var stock int
	err = tx.GetContext(ctx, &stock,
		"SELECT stock FROM products WHERE id = $1 FOR UPDATE", productID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: product %d", lifecycle.ErrNotFound, productID)
	}
	if err != nil {
		return storageErr("lock stock row", err)
	}

	if stock < quantity {
		return fmt.Errorf("insufficient stock for product %d: have %d, need %d", productID, stock, quantity)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1 WHERE id = $2",
		quantity, productID)
	if err != nil {
		return storageErr("decrement stock", err)
	}

	return tx.Commit()
}

// RestoreStock returns stock to a product (checkout saga compensation)
func (s *Store) RestoreStock(ctx context.Context, productID int64, quantity int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1 WHERE id = $2",
		quantity, productID)
	if err != nil {
		return storageErr("restore stock", err)
	}
	return nil
}

// GetPromoByCode retrieves a promo code record
func (s *Store) GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := s.db.GetContext(ctx, &promo,
		"SELECT * FROM promo_codes WHERE UPPER(code) = UPPER($1)", code)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: promo %q", lifecycle.ErrNotFound, code)
	}
	if err != nil {
		return nil, storageErr("get promo", err)
	}
	return &promo, nil
}

// GetCart retrieves a customer's cart; a missing row is an empty cart
func (s *Store) GetCart(ctx context.Context, email string) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart,
		"SELECT * FROM carts WHERE customer_email = $1", email)
	if err == sql.ErrNoRows {
		return &models.Cart{CustomerEmail: email, Items: models.CartItems{}}, nil
	}
	if err != nil {
		return nil, storageErr("get cart", err)
	}
	return &cart, nil
}

// UpsertCart replaces a customer's cart
func (s *Store) UpsertCart(ctx context.Context, cart *models.Cart) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO carts (customer_email, items, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (customer_email) DO UPDATE SET items = $2, updated_at = NOW()`,
		cart.CustomerEmail, cart.Items)
	if err != nil {
		return storageErr("upsert cart", err)
	}
	return nil
}

// DeleteCart clears a customer's cart (after checkout)
func (s *Store) DeleteCart(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM carts WHERE customer_email = $1", email)
	if err != nil {
		return storageErr("delete cart", err)
	}
	return nil
}

// GetWishlist retrieves a customer's wishlist; a missing row is empty
func (s *Store) GetWishlist(ctx context.Context, email string) (*models.Wishlist, error) {
	var wl models.Wishlist
	err := s.db.GetContext(ctx, &wl,
		"SELECT * FROM wishlists WHERE customer_email = $1", email)
	if err == sql.ErrNoRows {
		return &models.Wishlist{CustomerEmail: email, ProductIDs: models.ProductIDs{}}, nil
	}
	if err != nil {
		return nil, storageErr("get wishlist", err)
	}
	return &wl, nil
}

// UpsertWishlist replaces a customer's wishlist
func (s *Store) UpsertWishlist(ctx context.Context, wl *models.Wishlist) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wishlists (customer_email, product_ids, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (customer_email) DO UPDATE SET product_ids = $2, updated_at = NOW()`,
		wl.CustomerEmail, wl.ProductIDs)
	if err != nil {
		return storageErr("upsert wishlist", err)
	}
	return nil
}
