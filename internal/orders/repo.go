package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct{ DB *pgxpool.Pool }

func (s *PgStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return apperr.TxAbort(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.TxAbort(err, "commit tx")
	}
	return nil
}

type pgTx struct{ q querier }

func (t pgTx) Orders() OrderRepo   { return pgOrders{q: t.q} }
func (t pgTx) Buckets() BucketRepo { return pgBuckets{q: t.q} }
func (t pgTx) Reviews() ReviewRepo { return pgReviews{q: t.q} }

type pgOrders struct{ q querier }

const orderColumns = `order_id, user_id, customer_name, customer_email, amount, status, payment_status,
	payment_method, payment_ref, transaction_id, failure_reason, stock_deducted, expires_at, paid_at,
	review_token, review_token_expired_at, reviewed, created_at, updated_at`

func (r pgOrders) Insert(ctx context.Context, o *Order) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO orders(`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		o.OrderID, o.UserID, o.CustomerName, o.CustomerEmail, o.Amount, o.Status, o.PaymentStatus,
		o.PaymentMethod, o.PaymentRef, o.TransactionID, o.FailureReason, o.StockDeducted, o.ExpiresAt, o.PaidAt,
		o.ReviewToken, o.ReviewTokenExpiredAt, o.Reviewed, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO order_items(order_id, bucket_id, adults, children, infants)
			VALUES ($1,$2,$3,$4,$5)`,
			o.OrderID, it.BucketID, it.Adults, it.Children, it.Infants,
		); err != nil {
			return fmt.Errorf("insert order item %s: %w", it.BucketID, err)
		}
	}
	return nil
}

func (r pgOrders) Get(ctx context.Context, orderID string) (*Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, orderID)
}

func (r pgOrders) GetForUpdate(ctx context.Context, orderID string) (*Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1 FOR UPDATE`, orderID)
}

func (r pgOrders) load(ctx context.Context, query, orderID string) (*Order, error) {
	var o Order
	err := r.q.QueryRow(ctx, query, orderID).Scan(
		&o.OrderID, &o.UserID, &o.CustomerName, &o.CustomerEmail, &o.Amount, &o.Status, &o.PaymentStatus,
		&o.PaymentMethod, &o.PaymentRef, &o.TransactionID, &o.FailureReason, &o.StockDeducted, &o.ExpiresAt, &o.PaidAt,
		&o.ReviewToken, &o.ReviewTokenExpiredAt, &o.Reviewed, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	rows, err := r.q.Query(ctx, `
		SELECT bucket_id, adults, children, infants
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.BucketID, &it.Adults, &it.Children, &it.Infants); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (r pgOrders) Update(ctx context.Context, o *Order) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE orders SET
			status=$2, payment_status=$3, payment_method=$4, payment_ref=$5, transaction_id=$6,
			failure_reason=$7, stock_deducted=$8, expires_at=$9, paid_at=$10,
			review_token=$11, review_token_expired_at=$12, reviewed=$13, updated_at=$14
		WHERE order_id=$1`,
		o.OrderID, o.Status, o.PaymentStatus, o.PaymentMethod, o.PaymentRef, o.TransactionID,
		o.FailureReason, o.StockDeducted, o.ExpiresAt, o.PaidAt,
		o.ReviewToken, o.ReviewTokenExpiredAt, o.Reviewed, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r pgOrders) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT order_id FROM orders
		WHERE status='pending' AND payment_status='pending'
		  AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("select expired orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
