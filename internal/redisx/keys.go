package redisx

import "time"

const (
	// Idempotent create order: idem:order:create:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Order status cache: order_status:{order_id} -> StatusEntry json
	KeyOrderStatus = "order_status:%s"

	// Dedup: dedup:{scope}:{id}
	KeyDedup = "dedup:%s:%s"

	// Session: session:{session_id} -> Session json
	KeySession = "session:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
