package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/redis/go-redis/v9"
)

type StatusEntry struct {
	OrderID       string               `json:"order_id"`
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
	PaymentMethod orders.PaymentMethod `json:"payment_method,omitempty"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func EntryOf(o *orders.Order) StatusEntry {
	return StatusEntry{
		OrderID:       o.OrderID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		ExpiresAt:     o.ExpiresAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// StatusCache is a read-through cache for GET /orders/{id}. It is written
// after each committed change and never consulted by write paths.
type StatusCache struct {
	rdb redis.Cmdable
	ttl time.Duration
	log *slog.Logger
}

func NewStatusCache(rdb redis.Cmdable, log *slog.Logger) *StatusCache {
	if log == nil {
		log = slog.Default()
	}
	return &StatusCache{rdb: rdb, ttl: TTLStatusCache, log: log}
}

func (c *StatusCache) OrderChanged(ctx context.Context, o *orders.Order, _ orders.Status) {
	if err := c.Put(ctx, EntryOf(o)); err != nil {
		c.log.WarnContext(ctx, "status cache write failed", "order_id", o.OrderID, "err", err)
	}
}

func (c *StatusCache) Put(ctx context.Context, e StatusEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, e.OrderID), b, c.ttl).Err()
}

// Fill stores e only when no entry exists, so a read-through fill never
// replaces a fresher entry written by OrderChanged in the meantime.
func (c *StatusCache) Fill(ctx context.Context, e StatusEntry) (bool, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	return c.rdb.SetNX(ctx, fmt.Sprintf(KeyOrderStatus, e.OrderID), b, c.ttl).Result()
}

// Get reports ok=false on a cache miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (StatusEntry, bool, error) {
	var e StatusEntry
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	if err := json.Unmarshal(b, &e); err != nil {
		return e, false, err
	}
	return e, true, nil
}
