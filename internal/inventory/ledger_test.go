package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deduct(t *testing.T, l *Ledger, s *orders.MemStore, items []orders.Item) Result {
	t.Helper()
	var res Result
	err := s.WithTx(context.Background(), func(tx orders.Tx) error {
		var err error
		res, err = l.DeductStock(context.Background(), tx.Buckets(), items)
		return err
	})
	require.NoError(t, err)
	return res
}

func TestDeductStockCountsEveryPassenger(t *testing.T) {
	s := orders.NewMemStore()
	s.SeedBucket(orders.Bucket{ID: "b1", Stock: 5})
	l := New(nil)

	res := deduct(t, l, s, []orders.Item{{BucketID: "b1", Adults: 2, Children: 1, Infants: 1}})
	assert.True(t, res.OK)
	assert.Equal(t, 1, s.Stock("b1"))
}

func TestDeductStockCollectsFailuresAndContinues(t *testing.T) {
	s := orders.NewMemStore()
	s.SeedBucket(orders.Bucket{ID: "b1", Stock: 1})
	s.SeedBucket(orders.Bucket{ID: "b2", Stock: 3})
	l := New(nil)

	res := deduct(t, l, s, []orders.Item{
		{BucketID: "b1", Adults: 2},
		{BucketID: "missing", Adults: 1},
		{BucketID: "b3"},
		{BucketID: "b2", Adults: 3},
	})
	require.False(t, res.OK)
	require.Len(t, res.Failures, 3)
	assert.Equal(t, 1, res.Failures[0].Available)
	assert.ErrorIs(t, res.Failures[0].Err, orders.ErrInsufficientStock)
	assert.ErrorIs(t, res.Failures[1].Err, orders.ErrBucketNotFound)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(res.Failures[2].Err))

	// partial policy: b2 was still decremented inside the committed tx
	assert.Equal(t, []orders.Item{{BucketID: "b2", Adults: 3}}, res.Deducted)
	assert.Equal(t, 0, s.Stock("b2"))
	assert.Equal(t, 1, s.Stock("b1"))

	err := res.Err()
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestDeductRestoreRoundTrip(t *testing.T) {
	s := orders.NewMemStore()
	s.SeedBucket(orders.Bucket{ID: "b1", Stock: 7})
	l := New(nil)
	items := []orders.Item{{BucketID: "b1", Adults: 3, Children: 2}}

	require.True(t, deduct(t, l, s, items).OK)
	assert.Equal(t, 2, s.Stock("b1"))

	require.NoError(t, s.WithTx(context.Background(), func(tx orders.Tx) error {
		assert.True(t, l.RestoreStock(context.Background(), tx.Buckets(), items))
		return nil
	}))
	assert.Equal(t, 7, s.Stock("b1"))
}

func TestRestoreStockReportsMissingBucket(t *testing.T) {
	s := orders.NewMemStore()
	s.SeedBucket(orders.Bucket{ID: "b1", Stock: 0})
	l := New(nil)

	require.NoError(t, s.WithTx(context.Background(), func(tx orders.Tx) error {
		ok := l.RestoreStock(context.Background(), tx.Buckets(), []orders.Item{
			{BucketID: "missing", Adults: 1},
			{BucketID: "b1", Adults: 2},
		})
		assert.False(t, ok)
		return nil
	}))
	assert.Equal(t, 2, s.Stock("b1"))
}

func TestConcurrentDeductNeverOversells(t *testing.T) {
	s := orders.NewMemStore()
	s.SeedBucket(orders.Bucket{ID: "b1", Stock: 10})
	l := New(nil)

	var wg sync.WaitGroup
	var won atomic.Int32
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithTx(context.Background(), func(tx orders.Tx) error {
				res, err := l.DeductStock(context.Background(), tx.Buckets(), []orders.Item{{BucketID: "b1", Adults: 1}})
				if err != nil {
					return err
				}
				if !res.OK {
					return res.Err()
				}
				won.Add(1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), won.Load())
	assert.Equal(t, 0, s.Stock("b1"))
}

func TestValidateStockIsReadOnly(t *testing.T) {
	s := orders.NewMemStore()
	s.SeedBucket(orders.Bucket{ID: "b1", Stock: 2})
	l := New(nil)

	require.NoError(t, s.WithTx(context.Background(), func(tx orders.Tx) error {
		v, err := l.ValidateStock(context.Background(), tx.Buckets(), []orders.Item{{BucketID: "b1", Adults: 3}})
		require.NoError(t, err)
		assert.False(t, v.IsValid)
		require.Len(t, v.Errors, 1)
		assert.Equal(t, 2, v.Errors[0].Available)

		v, err = l.ValidateStock(context.Background(), tx.Buckets(), []orders.Item{{BucketID: "b1", Adults: 2}})
		require.NoError(t, err)
		assert.True(t, v.IsValid)
		return nil
	}))
	assert.Equal(t, 2, s.Stock("b1"))
}
