package orders

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore keeps everything in process memory. Transactions are serialized
// by a single mutex and work on a copy that replaces the live data only
// when fn returns nil.
type MemStore struct {
	mu   sync.Mutex
	data memData
}

type memData struct {
	orders  map[string]*Order
	buckets map[string]*Bucket
	reviews map[string]*Review
}

func NewMemStore() *MemStore {
	return &MemStore{data: memData{
		orders:  map[string]*Order{},
		buckets: map[string]*Bucket{},
		reviews: map[string]*Review{},
	}}
}

// SeedBucket creates or overwrites a bucket.
func (s *MemStore) SeedBucket(b Bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now()
	}
	s.data.buckets[b.ID] = &b
}

// Stock returns the current stock of a bucket, -1 when unknown.
func (s *MemStore) Stock(bucketID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data.buckets[bucketID]
	if !ok {
		return -1
	}
	return b.Stock
}

func (s *MemStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.data.clone()
	if err := fn(memTx{d: &work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (d memData) clone() memData {
	c := memData{
		orders:  make(map[string]*Order, len(d.orders)),
		buckets: make(map[string]*Bucket, len(d.buckets)),
		reviews: make(map[string]*Review, len(d.reviews)),
	}
	for k, v := range d.orders {
		c.orders[k] = v.Clone()
	}
	for k, v := range d.buckets {
		b := *v
		c.buckets[k] = &b
	}
	for k, v := range d.reviews {
		r := *v
		c.reviews[k] = &r
	}
	return c
}

type memTx struct{ d *memData }

func (t memTx) Orders() OrderRepo   { return memOrders(t) }
func (t memTx) Buckets() BucketRepo { return memBuckets(t) }
func (t memTx) Reviews() ReviewRepo { return memReviews(t) }

type memOrders struct{ d *memData }

func (r memOrders) Insert(_ context.Context, o *Order) error {
	if _, ok := r.d.orders[o.OrderID]; ok {
		return ErrDuplicateOrder
	}
	r.d.orders[o.OrderID] = o.Clone()
	return nil
}

func (r memOrders) Get(_ context.Context, orderID string) (*Order, error) {
	o, ok := r.d.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (r memOrders) GetForUpdate(ctx context.Context, orderID string) (*Order, error) {
	return r.Get(ctx, orderID)
}

func (r memOrders) Update(_ context.Context, o *Order) error {
	if _, ok := r.d.orders[o.OrderID]; !ok {
		return ErrOrderNotFound
	}
	r.d.orders[o.OrderID] = o.Clone()
	return nil
}

func (r memOrders) ListExpiredPending(_ context.Context, before time.Time, limit int) ([]string, error) {
	var found []*Order
	for _, o := range r.d.orders {
		if o.AwaitingPayment() && o.ExpiresAt != nil && o.ExpiresAt.Before(before) {
			found = append(found, o)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ExpiresAt.Before(*found[j].ExpiresAt) })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	ids := make([]string, 0, len(found))
	for _, o := range found {
		ids = append(ids, o.OrderID)
	}
	return ids, nil
}

type memBuckets struct{ d *memData }

func (r memBuckets) Decrement(_ context.Context, bucketID string, qty int) (bool, error) {
	b, ok := r.d.buckets[bucketID]
	if !ok {
		return false, ErrBucketNotFound
	}
	if b.Stock < qty {
		return false, nil
	}
	b.Stock -= qty
	b.UpdatedAt = time.Now()
	return true, nil
}

func (r memBuckets) Increment(_ context.Context, bucketID string, qty int) error {
	b, ok := r.d.buckets[bucketID]
	if !ok {
		return ErrBucketNotFound
	}
	b.Stock += qty
	b.UpdatedAt = time.Now()
	return nil
}

func (r memBuckets) Get(_ context.Context, bucketID string) (*Bucket, error) {
	b, ok := r.d.buckets[bucketID]
	if !ok {
		return nil, ErrBucketNotFound
	}
	c := *b
	return &c, nil
}

type memReviews struct{ d *memData }

func (r memReviews) Insert(_ context.Context, rv *Review) error {
	if _, ok := r.d.reviews[rv.OrderID]; ok {
		return ErrReviewExists
	}
	c := *rv
	r.d.reviews[rv.OrderID] = &c
	return nil
}

func (r memReviews) GetByOrder(_ context.Context, orderID string) (*Review, error) {
	rv, ok := r.d.reviews[orderID]
	if !ok {
		return nil, ErrReviewNotFound
	}
	c := *rv
	return &c, nil
}
