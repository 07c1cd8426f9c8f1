package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/inventory"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/ariefcatur/go-tour-booking/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultOrderTTL     = time.Hour
	DefaultCleanupBatch = 100
)

// Observer is told about every committed order change. It runs after the
// transaction, so it must not assume it can veto anything. from is the
// status before the change; it is empty for a new order.
type Observer interface {
	OrderChanged(ctx context.Context, o *orders.Order, from orders.Status)
}

// CreateObserver is additionally told about new orders.
type CreateObserver interface {
	OrderCreated(ctx context.Context, o *orders.Order) error
}

type ObserverFunc func(ctx context.Context, o *orders.Order, from orders.Status)

func (f ObserverFunc) OrderChanged(ctx context.Context, o *orders.Order, from orders.Status) {
	f(ctx, o, from)
}

type Options struct {
	OrderTTL     time.Duration
	CleanupBatch int
	Now          func() time.Time
	Log          *slog.Logger
}

// Orchestrator owns every write that touches an order together with its
// seats. Each exported method is one database transaction.
type Orchestrator struct {
	store     orders.Store
	ledger    *inventory.Ledger
	log       *slog.Logger
	tracer    trace.Tracer
	ttl       time.Duration
	batch     int
	now       func() time.Time
	observers []Observer
}

func New(store orders.Store, ledger *inventory.Ledger, opt Options) *Orchestrator {
	if opt.OrderTTL <= 0 {
		opt.OrderTTL = DefaultOrderTTL
	}
	if opt.CleanupBatch <= 0 {
		opt.CleanupBatch = DefaultCleanupBatch
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Log == nil {
		opt.Log = slog.Default()
	}
	return &Orchestrator{
		store:  store,
		ledger: ledger,
		log:    opt.Log,
		tracer: telemetry.Tracer(),
		ttl:    opt.OrderTTL,
		batch:  opt.CleanupBatch,
		now:    opt.Now,
	}
}

// Observe registers observers; call it before serving traffic.
func (o *Orchestrator) Observe(obs ...Observer) { o.observers = append(o.observers, obs...) }

func (o *Orchestrator) notify(ctx context.Context, ord *orders.Order, from orders.Status) {
	for _, obs := range o.observers {
		obs.OrderChanged(ctx, ord.Clone(), from)
	}
}

func (o *Orchestrator) span(ctx context.Context, name, orderID string) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "booking."+name, trace.WithAttributes(attribute.String("order.id", orderID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type CreateOrderInput struct {
	OrderID       string               `json:"order_id"`
	UserID        string               `json:"user_id"`
	CustomerName  string               `json:"customer_name"`
	CustomerEmail string               `json:"customer_email"`
	Amount        int64                `json:"amount"`
	Items         []orders.Item        `json:"items"`
	PaymentMethod orders.PaymentMethod `json:"payment_method,omitempty"`
}

// CreateOrderTx persists a pending order and takes its seats in the same
// transaction. On any failure nothing is persisted.
func (o *Orchestrator) CreateOrderTx(ctx context.Context, in CreateOrderInput) (_ *orders.Order, err error) {
	now := o.now()
	if in.OrderID == "" {
		in.OrderID = orders.NewOrderID(now)
	}
	ctx, span := o.span(ctx, "CreateOrderTx", in.OrderID)
	defer func() { endSpan(span, err) }()

	exp := now.Add(o.ttl)
	ord := &orders.Order{
		OrderID:       in.OrderID,
		UserID:        in.UserID,
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
		Amount:        in.Amount,
		Status:        orders.StatusPending,
		PaymentStatus: orders.PaymentPending,
		PaymentMethod: in.PaymentMethod,
		Items:         in.Items,
		ExpiresAt:     &exp,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := ord.Validate(); err != nil {
		return nil, err
	}

	err = o.store.WithTx(ctx, func(tx orders.Tx) error {
		if err := tx.Orders().Insert(ctx, ord); err != nil {
			return err
		}
		if len(ord.Items) == 0 {
			return nil
		}
		res, err := o.ledger.DeductStock(ctx, tx.Buckets(), ord.Items)
		if err != nil {
			return fmt.Errorf("deduct stock: %w", err)
		}
		if !res.OK {
			return res.Err()
		}
		ord.StockDeducted = true
		return tx.Orders().Update(ctx, ord)
	})
	if err != nil {
		o.log.WarnContext(ctx, "create order aborted", "order_id", ord.OrderID, "err", err)
		return nil, err
	}

	o.log.InfoContext(ctx, "order created", "order_id", ord.OrderID, "amount", ord.Amount, "items", len(ord.Items))
	o.notify(ctx, ord, "")
	for _, obs := range o.observers {
		if co, ok := obs.(CreateObserver); ok {
			if err := co.OrderCreated(ctx, ord.Clone()); err != nil {
				o.log.WarnContext(ctx, "order created hook failed", "order_id", ord.OrderID, "err", err)
			}
		}
	}
	return ord, nil
}

type UpdateOptions struct {
	// HandleStock settles seats together with the status change.
	HandleStock bool
	// OnlyIfPending turns the call into a no-op once the order left
	// pending/pending.
	OnlyIfPending bool
	// SkipIfPaid turns the call into a no-op for orders already paid.
	SkipIfPaid bool
}

type UpdateResult struct {
	Order *orders.Order
	// From is the status the order had when it was locked.
	From          orders.Status
	Changed       bool
	StockRestored bool
	StockDeducted bool
}

// UpdateOrderTx locks the order, checks the transition and applies u.
func (o *Orchestrator) UpdateOrderTx(ctx context.Context, orderID string, u orders.Update, opt UpdateOptions) (UpdateResult, error) {
	return o.mutate(ctx, "UpdateOrderTx", orderID, opt, func(*orders.Order) (orders.Update, error) { return u, nil })
}

type PaymentData struct {
	Method        orders.PaymentMethod
	TransactionID string
	PaidAt        time.Time
}

// CompletePaymentTx records a successful payment. Seats are taken again
// when the order had released them (late payment on an expired order).
func (o *Orchestrator) CompletePaymentTx(ctx context.Context, orderID string, pd PaymentData) (UpdateResult, error) {
	return o.mutate(ctx, "CompletePaymentTx", orderID, UpdateOptions{HandleStock: true},
		func(cur *orders.Order) (orders.Update, error) {
			paid := pd.PaidAt
			if paid.IsZero() {
				paid = o.now()
			}
			ps := orders.PaymentCompleted
			u := orders.Update{PaymentStatus: &ps, PaidAt: &paid}
			if cur.Status != orders.StatusCompleted {
				st := orders.StatusConfirmed
				u.Status = &st
			}
			if pd.Method != "" {
				m := pd.Method
				u.PaymentMethod = &m
			}
			if pd.TransactionID != "" {
				tid := pd.TransactionID
				u.TransactionID = &tid
			}
			return u, nil
		})
}

// FailPaymentTx records a failed payment; it never downgrades a paid order.
// A pending order gives its seats back, since it no longer has an expiry
// for the sweep to find. PreparePaymentTx takes them again on retry.
func (o *Orchestrator) FailPaymentTx(ctx context.Context, orderID string, method orders.PaymentMethod, reason string) (UpdateResult, error) {
	ps := orders.PaymentFailed
	u := orders.Update{PaymentStatus: &ps, FailureReason: &reason}
	if method != "" {
		u.PaymentMethod = &method
	}
	return o.UpdateOrderTx(ctx, orderID, u, UpdateOptions{SkipIfPaid: true, HandleStock: true})
}

// PreparePaymentTx checks the order can take a payment and records the
// method. A failed attempt is reopened with a fresh expiry and its seats
// are taken again; INSUFFICIENT_STOCK aborts the retry.
func (o *Orchestrator) PreparePaymentTx(ctx context.Context, orderID string, method orders.PaymentMethod, amount int64) (*orders.Order, error) {
	if !method.Valid() {
		return nil, apperr.Validation("INVALID_PAYMENT_METHOD", fmt.Sprintf("unknown payment method %q", method))
	}
	var out *orders.Order
	err := o.store.WithTx(ctx, func(tx orders.Tx) error {
		cur, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if amount != 0 && amount != cur.Amount {
			return apperr.Validation("AMOUNT_MISMATCH", fmt.Sprintf("amount %d does not match order amount %d", amount, cur.Amount))
		}
		if cur.PaymentStatus == orders.PaymentCompleted {
			return apperr.Conflict("ALREADY_PAID", "order already paid")
		}
		if cur.Status != orders.StatusPending {
			return apperr.Conflict("ORDER_NOT_PAYABLE", fmt.Sprintf("order is %s", cur.Status))
		}

		now := o.now()
		cur.PaymentMethod = method
		if cur.PaymentStatus != orders.PaymentPending {
			cur.PaymentStatus = orders.PaymentPending
			cur.FailureReason = ""
			exp := now.Add(o.ttl)
			cur.ExpiresAt = &exp
		}
		if !cur.StockDeducted && len(cur.Items) > 0 {
			dr, err := o.ledger.DeductStock(ctx, tx.Buckets(), cur.Items)
			if err != nil {
				return fmt.Errorf("deduct stock: %w", err)
			}
			if !dr.OK {
				return dr.Err()
			}
			cur.StockDeducted = true
		}
		cur.UpdatedAt = now
		if err := tx.Orders().Update(ctx, cur); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.notify(ctx, out, out.Status)
	return out, nil
}

// SetPaymentRef stores the reference the gateway knows the order by.
func (o *Orchestrator) SetPaymentRef(ctx context.Context, orderID string, method orders.PaymentMethod, ref string) error {
	u := orders.Update{PaymentRef: &ref}
	if method != "" {
		u.PaymentMethod = &method
	}
	_, err := o.UpdateOrderTx(ctx, orderID, u, UpdateOptions{})
	return err
}

// CheckAvailability reports whether items could be booked right now.
func (o *Orchestrator) CheckAvailability(ctx context.Context, items []orders.Item) (inventory.Validation, error) {
	var v inventory.Validation
	err := o.store.WithTx(ctx, func(tx orders.Tx) error {
		var err error
		v, err = o.ledger.ValidateStock(ctx, tx.Buckets(), items)
		return err
	})
	return v, err
}

func (o *Orchestrator) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	var out *orders.Order
	err := o.store.WithTx(ctx, func(tx orders.Tx) error {
		var err error
		out, err = tx.Orders().Get(ctx, orderID)
		return err
	})
	return out, err
}

func (o *Orchestrator) mutate(ctx context.Context, op, orderID string, opt UpdateOptions, decide func(cur *orders.Order) (orders.Update, error)) (res UpdateResult, err error) {
	ctx, span := o.span(ctx, op, orderID)
	defer func() { endSpan(span, err) }()

	err = o.store.WithTx(ctx, func(tx orders.Tx) error {
		res = UpdateResult{}
		cur, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		res.Order, res.From = cur, cur.Status
		if opt.OnlyIfPending && !cur.AwaitingPayment() {
			return nil
		}
		if opt.SkipIfPaid && cur.PaymentStatus == orders.PaymentCompleted {
			return nil
		}

		u, err := decide(cur)
		if err != nil {
			return err
		}
		if u.Status != nil && !orders.CanTransition(cur.Status, *u.Status) {
			return apperr.Conflict("INVALID_TRANSITION", fmt.Sprintf("cannot move order from %s to %s", cur.Status, *u.Status))
		}

		next := cur.Clone()
		next.Apply(u, o.now())

		if opt.HandleStock {
			switch {
			case next.StockDeducted && (next.Status.ReleasesStock() || next.PaymentAbandoned()):
				if !o.ledger.RestoreStock(ctx, tx.Buckets(), next.Items) {
					o.log.WarnContext(ctx, "stock restored partially", "order_id", orderID)
				}
				next.StockDeducted = false
				res.StockRestored = true
			case next.Status == orders.StatusConfirmed && !next.StockDeducted && len(next.Items) > 0:
				dr, err := o.ledger.DeductStock(ctx, tx.Buckets(), next.Items)
				if err != nil {
					return fmt.Errorf("deduct stock: %w", err)
				}
				if !dr.OK {
					return dr.Err()
				}
				next.StockDeducted = true
				res.StockDeducted = true
			}
		}

		if err := next.Validate(); err != nil {
			return err
		}
		if err := tx.Orders().Update(ctx, next); err != nil {
			return err
		}
		res.Order = next
		res.Changed = true
		return nil
	})
	if err != nil {
		return UpdateResult{}, err
	}
	if res.Changed {
		o.log.InfoContext(ctx, "order updated", "op", op, "order_id", orderID,
			"status", res.Order.Status, "payment_status", res.Order.PaymentStatus,
			"stock_restored", res.StockRestored, "stock_deducted", res.StockDeducted)
		o.notify(ctx, res.Order, res.From)
	}
	return res, nil
}
