package service

import (
	"context"
	"fmt"
	"time"

	"merchstore/internal/lifecycle"
	"merchstore/internal/models"
	"merchstore/internal/util"

	"go.uber.org/zap"
)

const riderLocationTTL = 2 * time.Hour

// RiderStore holds last-known rider positions. *redisclient.Client
// satisfies it.
type RiderStore interface {
	SetRiderLocation(ctx context.Context, loc *models.RiderLocation, ttl time.Duration) error
	GetRiderLocation(ctx context.Context, orderID string) (*models.RiderLocation, error)
}

// TrackingService handles rider GPS positions for out-for-delivery orders.
// Positions live only in Redis with a TTL; they are telemetry, not order
// state.
type TrackingService struct {
	engine *lifecycle.Engine
	redis  RiderStore
	logger *zap.Logger
}

// NewTrackingService creates a new tracking service
func NewTrackingService(engine *lifecycle.Engine, redis RiderStore) *TrackingService {
	return &TrackingService{
		engine: engine,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// UpdateRiderLocation records the rider's position for an order currently
// out for delivery
func (ts *TrackingService) UpdateRiderLocation(ctx context.Context, orderID string, lat, lng float64) (*models.RiderLocation, error) {
	order, err := ts.engine.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusOutForDelivery {
		return nil, fmt.Errorf("%w: rider location requires out_for_delivery, order is %q",
			lifecycle.ErrInvalidState, order.Status)
	}

	loc := &models.RiderLocation{
		OrderID:   orderID,
		Lat:       lat,
		Lng:       lng,
		UpdatedAt: time.Now(),
	}
	if err := ts.redis.SetRiderLocation(ctx, loc, riderLocationTTL); err != nil {
		return nil, err
	}
	return loc, nil
}

// GetRiderLocation returns the last-known rider position, or nil when none
// has been reported
func (ts *TrackingService) GetRiderLocation(ctx context.Context, orderID string) (*models.RiderLocation, error) {
	if _, err := ts.engine.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return ts.redis.GetRiderLocation(ctx, orderID)
}
