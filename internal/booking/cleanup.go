package booking

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-tour-booking/internal/orders"
)

type CleanupResult struct {
	CleanedCount int `json:"cleaned_count"`
	TotalFound   int `json:"total_found"`
}

// CleanupExpiredOrders expires up to one batch of stale pending orders.
// Every order gets its own transaction; one failure does not stop the rest.
// OnlyIfPending makes a concurrent sweep or a late callback win cleanly:
// whoever locks the row second sees it already moved and does nothing.
func (o *Orchestrator) CleanupExpiredOrders(ctx context.Context) (res CleanupResult, err error) {
	ctx, span := o.span(ctx, "CleanupExpiredOrders", "")
	defer func() { endSpan(span, err) }()

	var ids []string
	err = o.store.WithTx(ctx, func(tx orders.Tx) error {
		var err error
		ids, err = tx.Orders().ListExpiredPending(ctx, o.now(), o.batch)
		return err
	})
	if err != nil {
		return res, err
	}
	res.TotalFound = len(ids)

	st, ps := orders.StatusExpired, orders.PaymentExpired
	u := orders.Update{Status: &st, PaymentStatus: &ps}
	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		r, err := o.UpdateOrderTx(ctx, id, u, UpdateOptions{HandleStock: true, OnlyIfPending: true})
		if err != nil {
			o.log.ErrorContext(ctx, "expire order failed", "order_id", id, "err", err)
			errs = append(errs, err)
			continue
		}
		if r.Changed {
			res.CleanedCount++
		}
	}

	if res.TotalFound > 0 {
		o.log.InfoContext(ctx, "expired orders cleaned", "cleaned", res.CleanedCount, "found", res.TotalFound)
	}
	return res, errors.Join(errs...)
}
