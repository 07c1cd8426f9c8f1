package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgReviews struct{ q querier }

// Insert leans on UNIQUE(reviews.order_id); that constraint, not
// orders.reviewed, is what serializes concurrent submissions.
func (r pgReviews) Insert(ctx context.Context, rv *Review) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO reviews(id, order_id, rating, comment, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		rv.ID, rv.OrderID, rv.Rating, rv.Comment, rv.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrReviewExists
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r pgReviews) GetByOrder(ctx context.Context, orderID string) (*Review, error) {
	var rv Review
	err := r.q.QueryRow(ctx, `
		SELECT id, order_id, rating, comment, created_at
		FROM reviews WHERE order_id=$1`, orderID,
	).Scan(&rv.ID, &rv.OrderID, &rv.Rating, &rv.Comment, &rv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("select review: %w", err)
	}
	return &rv, nil
}
