package service

import (
	"context"
	"errors"
	"time"

	"merchstore/internal/redisclient"
	"merchstore/internal/store"
	"merchstore/internal/util"

	"go.uber.org/zap"
)

// StockClient handles product stock movements. Redis serves the fast path;
// the database row is the source of truth and is kept in step.
type StockClient struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewStockClient creates a new stock client
func NewStockClient(store *store.Store, redis *redisclient.Client) *StockClient {
	return &StockClient{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// Decrement takes stock for a checkout. Returns false when stock is
// insufficient.
func (sc *StockClient) Decrement(ctx context.Context, productID int64, quantity int) (bool, error) {
	ctx, span := util.StartSpan(ctx, "StockClient.Decrement")
	defer span.End()

	success, err := sc.redis.DecrementStock(ctx, productID, quantity)
	if err != nil {
		if !errors.Is(err, redisclient.ErrStockNotCached) {
			sc.logger.Warn("Redis stock decrement failed, falling back to DB",
				zap.Int64("product_id", productID),
				zap.Error(err))
		}
		return sc.decrementDB(ctx, productID, quantity)
	}

	if !success {
		return false, nil
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := sc.store.DecrementStockTx(ctx, productID, quantity); err != nil {
			sc.logger.Error("Failed to sync stock decrement to DB",
				zap.Int64("product_id", productID),
				zap.Error(err))
		}
	}()

	return true, nil
}

func (sc *StockClient) decrementDB(ctx context.Context, productID int64, quantity int) (bool, error) {
	if err := sc.store.DecrementStockTx(ctx, productID, quantity); err != nil {
		return false, err
	}
	return true, nil
}

// Restore returns stock taken by a checkout whose payment link could not be
// created (saga compensation).
func (sc *StockClient) Restore(ctx context.Context, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "StockClient.Restore")
	defer span.End()

	if err := sc.redis.RestoreStock(ctx, productID, quantity); err != nil {
		sc.logger.Error("Failed to restore stock in Redis",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}

	return sc.store.RestoreStock(ctx, productID, quantity)
}

// SyncToRedis seeds the Redis stock mirror from the catalog
func (sc *StockClient) SyncToRedis(ctx context.Context) error {
	sc.logger.Info("Starting stock sync to Redis")

	products, err := sc.store.GetProducts(ctx, "")
	if err != nil {
		return err
	}

	for _, product := range products {
		if err := sc.redis.InitStock(ctx, product.ID, product.Stock); err != nil {
			sc.logger.Error("Failed to seed Redis stock",
				zap.Int64("product_id", product.ID),
				zap.Error(err))
		}
	}

	sc.logger.Info("Stock sync completed", zap.Int("count", len(products)))
	return nil
}
