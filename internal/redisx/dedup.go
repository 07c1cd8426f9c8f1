package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Deduper struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewDeduper(rdb redis.Cmdable) *Deduper { return &Deduper{rdb: rdb, ttl: TTLDedup} }

// First reports whether this is the first time scope/id was seen.
func (d *Deduper) First(ctx context.Context, scope, id string) (bool, error) {
	return d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, scope, id), "1", d.ttl).Result()
}

// Forget drops a marker so the work can be attempted again.
func (d *Deduper) Forget(ctx context.Context, scope, id string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, scope, id)).Err()
}
