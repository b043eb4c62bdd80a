package service

import (
	"context"
	"fmt"
	"time"

	"merchstore/internal/lifecycle"
	"merchstore/internal/models"
	"merchstore/internal/redisclient"
	"merchstore/internal/store"
	"merchstore/internal/util"

	"go.uber.org/zap"
)

const mirrorTTL = 15 * time.Minute

// CartService manages carts and wishlists. Postgres is the source of truth;
// Redis holds a read mirror keyed by the same customer email, so a stale
// mirror can never bypass the lifecycle engine's checks.
type CartService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store *store.Store, redis *redisclient.Client) *CartService {
	return &CartService{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// GetCart returns a customer's cart, preferring the Redis mirror
func (cs *CartService) GetCart(ctx context.Context, email string) (*models.Cart, error) {
	cached, err := cs.redis.GetCachedCart(ctx, email)
	if err != nil {
		cs.logger.Warn("Cart mirror read failed", zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	cart, err := cs.store.GetCart(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := cs.redis.CacheCart(ctx, cart, mirrorTTL); err != nil {
		cs.logger.Warn("Failed to refresh cart mirror", zap.Error(err))
	}
	return cart, nil
}

// PutCart replaces a customer's cart after validating the referenced
// products exist
func (cs *CartService) PutCart(ctx context.Context, email string, items []models.CartItem) (*models.Cart, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: cart quantity must be at least 1", lifecycle.ErrInvalidInput)
		}
		ids = append(ids, item.ProductID)
	}

	products, err := cs.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(products) != len(ids) {
		return nil, fmt.Errorf("%w: cart references unknown products", lifecycle.ErrInvalidInput)
	}

	cart := &models.Cart{
		CustomerEmail: email,
		Items:         items,
		UpdatedAt:     time.Now(),
	}
	if err := cs.store.UpsertCart(ctx, cart); err != nil {
		return nil, err
	}

	if err := cs.redis.CacheCart(ctx, cart, mirrorTTL); err != nil {
		cs.logger.Warn("Failed to refresh cart mirror", zap.Error(err))
	}
	return cart, nil
}

// ClearCart empties a customer's cart
func (cs *CartService) ClearCart(ctx context.Context, email string) error {
	if err := cs.store.DeleteCart(ctx, email); err != nil {
		return err
	}
	if err := cs.redis.InvalidateCart(ctx, email); err != nil {
		cs.logger.Warn("Failed to invalidate cart mirror", zap.Error(err))
	}
	return nil
}

// GetWishlist returns a customer's wishlist, preferring the Redis mirror
func (cs *CartService) GetWishlist(ctx context.Context, email string) (*models.Wishlist, error) {
	cached, err := cs.redis.GetCachedWishlist(ctx, email)
	if err != nil {
		cs.logger.Warn("Wishlist mirror read failed", zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	wl, err := cs.store.GetWishlist(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := cs.redis.CacheWishlist(ctx, wl, mirrorTTL); err != nil {
		cs.logger.Warn("Failed to refresh wishlist mirror", zap.Error(err))
	}
	return wl, nil
}

// PutWishlist replaces a customer's wishlist
func (cs *CartService) PutWishlist(ctx context.Context, email string, productIDs []int64) (*models.Wishlist, error) {
	products, err := cs.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	if len(products) != len(productIDs) {
		return nil, fmt.Errorf("%w: wishlist references unknown products", lifecycle.ErrInvalidInput)
	}

	wl := &models.Wishlist{
		CustomerEmail: email,
		ProductIDs:    productIDs,
		UpdatedAt:     time.Now(),
	}
	if err := cs.store.UpsertWishlist(ctx, wl); err != nil {
		return nil, err
	}

	if err := cs.redis.CacheWishlist(ctx, wl, mirrorTTL); err != nil {
		cs.logger.Warn("Failed to refresh wishlist mirror", zap.Error(err))
	}
	return wl, nil
}
