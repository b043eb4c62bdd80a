package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"merchstore/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/decrement_stock.lua
var decrementStockScript string

//go:embed scripts/restore_stock.lua
var restoreStockScript string

// ErrStockNotCached means the product has no stock entry in Redis; callers
// fall back to the database path.
var ErrStockNotCached = errors.New("stock not cached")

type Client struct {
	rdb             *redis.Client
	decrementScript *redis.Script
	restoreScript   *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:             rdb,
		decrementScript: redis.NewScript(decrementStockScript),
		restoreScript:   redis.NewScript(restoreStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(productID int64) string {
	return fmt.Sprintf("stock:%d", productID)
}

// DecrementStock atomically decrements cached stock using a Lua script.
// Returns false when the remaining stock is insufficient and
// ErrStockNotCached when the product is not mirrored in Redis.
func (c *Client) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	result, err := c.decrementScript.Run(ctx, c.rdb, []string{stockKey(productID)}, quantity).Result()
	if err != nil {
		return false, fmt.Errorf("decrement stock script failed: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	switch code {
	case -1:
		return false, ErrStockNotCached
	case 0:
		return false, nil
	default:
		return true, nil
	}
}

// RestoreStock atomically returns stock to the cache (saga compensation)
func (c *Client) RestoreStock(ctx context.Context, productID int64, quantity int) error {
	_, err := c.restoreScript.Run(ctx, c.rdb, []string{stockKey(productID)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("restore stock script failed: %w", err)
	}
	return nil
}

// InitStock seeds the cached stock count for a product
func (c *Client) InitStock(ctx context.Context, productID int64, stock int) error {
	return c.rdb.Set(ctx, stockKey(productID), stock, 0).Err()
}

// GetStock retrieves the cached stock count
func (c *Client) GetStock(ctx context.Context, productID int64) (int, error) {
	val, err := c.rdb.Get(ctx, stockKey(productID)).Int()
	if err == redis.Nil {
		return 0, ErrStockNotCached
	}
	return val, err
}

// CacheCart mirrors a customer's cart with a TTL. The database row is the
// source of truth; the mirror only serves reads.
func (c *Client) CacheCart(ctx context.Context, cart *models.Cart, ttl time.Duration) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf("cart:%s", cart.CustomerEmail), data, ttl).Err()
}

// GetCachedCart retrieves a mirrored cart; (nil, nil) on cache miss
func (c *Client) GetCachedCart(ctx context.Context, email string) (*models.Cart, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf("cart:%s", email)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cart models.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// InvalidateCart drops the cart mirror after a write
func (c *Client) InvalidateCart(ctx context.Context, email string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("cart:%s", email)).Err()
}

// CacheWishlist mirrors a customer's wishlist with a TTL
func (c *Client) CacheWishlist(ctx context.Context, wl *models.Wishlist, ttl time.Duration) error {
	data, err := json.Marshal(wl)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf("wishlist:%s", wl.CustomerEmail), data, ttl).Err()
}

// GetCachedWishlist retrieves a mirrored wishlist; (nil, nil) on cache miss
func (c *Client) GetCachedWishlist(ctx context.Context, email string) (*models.Wishlist, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf("wishlist:%s", email)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var wl models.Wishlist
	if err := json.Unmarshal(data, &wl); err != nil {
		return nil, err
	}
	return &wl, nil
}

// InvalidateWishlist drops the wishlist mirror after a write
func (c *Client) InvalidateWishlist(ctx context.Context, email string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("wishlist:%s", email)).Err()
}

// SetRiderLocation stores the last-known rider position for an order. The
// TTL keeps stale positions from outliving the delivery.
func (c *Client) SetRiderLocation(ctx context.Context, loc *models.RiderLocation, ttl time.Duration) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf("rider:%s", loc.OrderID), data, ttl).Err()
}

// GetRiderLocation retrieves the last-known rider position; (nil, nil) when
// none has been reported or it expired
func (c *Client) GetRiderLocation(ctx context.Context, orderID string) (*models.RiderLocation, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf("rider:%s", orderID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var loc models.RiderLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}
