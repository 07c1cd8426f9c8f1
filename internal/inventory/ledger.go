package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
)

// Failure describes one item the ledger could not settle.
type Failure struct {
	BucketID  string `json:"bucket_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Err       error  `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("bucket %s: requested %d, available %d: %v", f.BucketID, f.Requested, f.Available, f.Err)
}

type Result struct {
	OK       bool
	Deducted []orders.Item
	Failures []Failure
}

// Err folds the failures into one apperr value, nil when OK.
func (r Result) Err() error {
	if r.OK || len(r.Failures) == 0 {
		return nil
	}
	first := r.Failures[0]
	var ae *apperr.Error
	kind, code := apperr.KindConflict, "INSUFFICIENT_STOCK"
	if errors.As(first.Err, &ae) {
		kind, code = ae.Kind, ae.Code
	}
	return apperr.Wrap(kind, code, first.Err, first.Error())
}

type Validation struct {
	IsValid bool      `json:"is_valid"`
	Errors  []Failure `json:"errors,omitempty"`
}

// Ledger owns seat counts. It never opens transactions itself: callers pass
// the BucketRepo of the transaction the change belongs to.
type Ledger struct {
	Log *slog.Logger
}

func New(log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{Log: log}
}

// DeductStock decrements every item with a conditional write. Item failures
// are collected and the remaining items are still attempted; callers that
// need all-or-nothing abort their transaction when Result.OK is false.
// The returned error is reserved for storage failures.
func (l *Ledger) DeductStock(ctx context.Context, buckets orders.BucketRepo, items []orders.Item) (Result, error) {
	res := Result{OK: true}
	for _, it := range items {
		n := it.Seats()
		if n <= 0 {
			res.OK = false
			res.Failures = append(res.Failures, Failure{
				BucketID: it.BucketID, Requested: n, Available: -1,
				Err: apperr.Validation("INVALID_QUANTITY", "requested seats must be positive"),
			})
			continue
		}

		ok, err := buckets.Decrement(ctx, it.BucketID, n)
		if errors.Is(err, orders.ErrBucketNotFound) {
			res.OK = false
			res.Failures = append(res.Failures, Failure{BucketID: it.BucketID, Requested: n, Available: -1, Err: err})
			continue
		}
		if err != nil {
			return res, err
		}
		if !ok {
			avail := -1
			if b, gerr := buckets.Get(ctx, it.BucketID); gerr == nil {
				avail = b.Stock
			}
			res.OK = false
			res.Failures = append(res.Failures, Failure{
				BucketID: it.BucketID, Requested: n, Available: avail, Err: orders.ErrInsufficientStock,
			})
			continue
		}
		res.Deducted = append(res.Deducted, it)
	}

	if !res.OK {
		l.Log.WarnContext(ctx, "stock deduction incomplete",
			"failed", len(res.Failures), "deducted", len(res.Deducted))
	}
	return res, nil
}

// RestoreStock gives seats back. It is best-effort: every item is
// attempted, failures are logged and reported through the bool.
func (l *Ledger) RestoreStock(ctx context.Context, buckets orders.BucketRepo, items []orders.Item) bool {
	ok := true
	for _, it := range items {
		n := it.Seats()
		if n <= 0 {
			continue
		}
		if err := buckets.Increment(ctx, it.BucketID, n); err != nil {
			ok = false
			l.Log.ErrorContext(ctx, "restore stock failed", "bucket_id", it.BucketID, "qty", n, "err", err)
		}
	}
	return ok
}

// ValidateStock is read-only; a later deduction may still fail.
func (l *Ledger) ValidateStock(ctx context.Context, buckets orders.BucketRepo, items []orders.Item) (Validation, error) {
	v := Validation{IsValid: true}
	for _, it := range items {
		n := it.Seats()
		if n <= 0 {
			v.IsValid = false
			v.Errors = append(v.Errors, Failure{
				BucketID: it.BucketID, Requested: n, Available: -1,
				Err: apperr.Validation("INVALID_QUANTITY", "requested seats must be positive"),
			})
			continue
		}
		b, err := buckets.Get(ctx, it.BucketID)
		if errors.Is(err, orders.ErrBucketNotFound) {
			v.IsValid = false
			v.Errors = append(v.Errors, Failure{BucketID: it.BucketID, Requested: n, Available: -1, Err: err})
			continue
		}
		if err != nil {
			return v, err
		}
		if b.Stock < n {
			v.IsValid = false
			v.Errors = append(v.Errors, Failure{
				BucketID: it.BucketID, Requested: n, Available: b.Stock, Err: orders.ErrInsufficientStock,
			})
		}
	}
	return v, nil
}
