package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type pgBuckets struct{ q querier }

// Decrement relies on the WHERE clause instead of SELECT ... FOR UPDATE:
// the row lock taken by the UPDATE makes check-and-write one atomic step.
func (r pgBuckets) Decrement(ctx context.Context, bucketID string, qty int) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE tour_dates SET stock = stock - $2, updated_at = NOW()
		WHERE id=$1 AND stock >= $2`, bucketID, qty)
	if err != nil {
		return false, fmt.Errorf("decrement stock %s: %w", bucketID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tour_dates WHERE id=$1)`, bucketID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check bucket %s: %w", bucketID, err)
	}
	if !exists {
		return false, ErrBucketNotFound
	}
	return false, nil
}

func (r pgBuckets) Increment(ctx context.Context, bucketID string, qty int) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE tour_dates SET stock = stock + $2, updated_at = NOW()
		WHERE id=$1`, bucketID, qty)
	if err != nil {
		return fmt.Errorf("increment stock %s: %w", bucketID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBucketNotFound
	}
	return nil
}

func (r pgBuckets) Get(ctx context.Context, bucketID string) (*Bucket, error) {
	var b Bucket
	err := r.q.QueryRow(ctx, `
		SELECT id, tour_id, departure_date, stock, updated_at
		FROM tour_dates WHERE id=$1`, bucketID,
	).Scan(&b.ID, &b.TourID, &b.DepartureDate, &b.Stock, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBucketNotFound
		}
		return nil, fmt.Errorf("select bucket: %w", err)
	}
	return &b, nil
}
