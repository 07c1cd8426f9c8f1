package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// OrderKeys maps a client Idempotency-Key to the order it created. The
// database stays the source of truth; this only short-circuits retries.
type OrderKeys struct{ rdb redis.Cmdable }

func NewOrderKeys(rdb redis.Cmdable) *OrderKeys { return &OrderKeys{rdb: rdb} }

func (k *OrderKeys) Lookup(ctx context.Context, key string) (string, bool, error) {
	id, err := k.rdb.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (k *OrderKeys) Remember(ctx context.Context, key, orderID string) error {
	return k.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err()
}
