package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/orders"
)

// Publisher hands an event to a broker. Delivery to the customer happens
// in the notifier process.
type Publisher interface {
	Publish(ctx context.Context, env orders.Envelope) error
	Close() error
}

// Notifier turns order facts into notification events.
type Notifier struct {
	pub      Publisher
	producer string
	log      *slog.Logger
	now      func() time.Time
}

func New(pub Publisher, producer string, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{pub: pub, producer: producer, log: log, now: time.Now}
}

func (n *Notifier) emit(ctx context.Context, eventType, orderID string, payload any) error {
	env, err := orders.NewEnvelope(eventType, n.producer, orderID, payload)
	if err != nil {
		return fmt.Errorf("build %s: %w", eventType, err)
	}
	if err := n.pub.Publish(ctx, env); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	n.log.DebugContext(ctx, "notification queued", "event", eventType, "event_id", env.EventID, "order_id", orderID)
	return nil
}

func (n *Notifier) PaymentSucceeded(ctx context.Context, o *orders.Order) error {
	paidAt := n.now()
	if o.PaidAt != nil {
		paidAt = *o.PaidAt
	}
	return n.emit(ctx, orders.EventPaymentSucceeded, o.OrderID, orders.PaymentSucceededPayload{
		OrderID:       o.OrderID,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Amount:        o.Amount,
		Method:        o.PaymentMethod,
		TransactionID: o.TransactionID,
		PaidAt:        paidAt,
	})
}

func (n *Notifier) PaymentFailed(ctx context.Context, o *orders.Order, reason, retryURL string) error {
	return n.emit(ctx, orders.EventPaymentFailed, o.OrderID, orders.PaymentFailedPayload{
		OrderID:       o.OrderID,
		CustomerEmail: o.CustomerEmail,
		Method:        o.PaymentMethod,
		Reason:        reason,
		RetryURL:      retryURL,
	})
}

func (n *Notifier) ReviewInvitation(ctx context.Context, o *orders.Order, reviewURL string, expiresAt time.Time) error {
	return n.emit(ctx, orders.EventReviewInvitation, o.OrderID, orders.ReviewInvitationPayload{
		OrderID:       o.OrderID,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		ReviewURL:     reviewURL,
		ExpiresAt:     expiresAt,
	})
}

func (n *Notifier) OrderCreated(ctx context.Context, o *orders.Order) error {
	return n.emit(ctx, orders.EventOrderCreated, o.OrderID, orders.OrderCreatedPayload{
		OrderID:       o.OrderID,
		CustomerEmail: o.CustomerEmail,
		Amount:        o.Amount,
		Items:         o.Items,
	})
}

// OrderChanged publishes OrderExpired when an order moves into expired.
func (n *Notifier) OrderChanged(ctx context.Context, o *orders.Order, from orders.Status) {
	if o.Status != orders.StatusExpired || from == orders.StatusExpired {
		return
	}
	if err := n.emit(ctx, orders.EventOrderExpired, o.OrderID, orders.OrderExpiredPayload{OrderID: o.OrderID}); err != nil {
		n.log.WarnContext(ctx, "order expired event dropped", "order_id", o.OrderID, "err", err)
	}
}

func (n *Notifier) Close() error { return n.pub.Close() }
