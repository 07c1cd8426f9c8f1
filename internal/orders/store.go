package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
)

var (
	ErrOrderNotFound     = apperr.NotFound("ORDER_NOT_FOUND", "order not found")
	ErrDuplicateOrder    = apperr.Conflict("DUPLICATE_ORDER", "order id already exists")
	ErrBucketNotFound    = apperr.NotFound("BUCKET_NOT_FOUND", "inventory bucket not found")
	ErrInsufficientStock = apperr.Conflict("INSUFFICIENT_STOCK", "not enough seats left")
	ErrReviewExists      = apperr.Conflict("ALREADY_REVIEWED", "order already has a review")
	ErrReviewNotFound    = apperr.NotFound("REVIEW_NOT_FOUND", "review not found")
)

type OrderRepo interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	// GetForUpdate locks the order row until the surrounding tx ends.
	GetForUpdate(ctx context.Context, orderID string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]string, error)
}

type BucketRepo interface {
	// Decrement is a conditional write: it succeeds only while stock >= qty.
	// ok=false means insufficient stock; a missing bucket is ErrBucketNotFound.
	Decrement(ctx context.Context, bucketID string, qty int) (ok bool, err error)
	Increment(ctx context.Context, bucketID string, qty int) error
	Get(ctx context.Context, bucketID string) (*Bucket, error)
}

type ReviewRepo interface {
	// Insert fails with ErrReviewExists when the order already has a review.
	Insert(ctx context.Context, r *Review) error
	GetByOrder(ctx context.Context, orderID string) (*Review, error)
}

type Tx interface {
	Orders() OrderRepo
	Buckets() BucketRepo
	Reviews() ReviewRepo
}

// Store runs fn in one atomic unit: everything fn did is committed when it
// returns nil and rolled back otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
