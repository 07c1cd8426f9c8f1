package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	kafkax "github.com/ariefcatur/go-tour-booking/internal/kafka"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/segmentio/kafka-go"
)

const dedupScope = "notify"

type Deduper interface {
	First(ctx context.Context, scope, id string) (bool, error)
	Forget(ctx context.Context, scope, id string) error
}

// Dispatcher delivers each event at most once per event id, even when the
// broker redelivers.
type Dispatcher struct {
	mail  Sender
	dedup Deduper
	log   *slog.Logger
}

func NewDispatcher(mail Sender, dedup Deduper, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{mail: mail, dedup: dedup, log: log}
}

func (d *Dispatcher) Handle(ctx context.Context, env orders.Envelope) error {
	m, err := Compose(env)
	if errors.Is(err, errSkip) {
		return nil
	}
	if err != nil {
		// undecodable payloads never get better on retry
		d.log.Warn("drop notification", "event_id", env.EventID, "type", env.EventType, "err", err)
		return nil
	}
	if m.To == "" {
		return nil
	}

	first, err := d.dedup.First(ctx, dedupScope, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if !first {
		d.log.Info("duplicate notification skipped", "event_id", env.EventID)
		return nil
	}

	if err := d.mail.Send(ctx, m); err != nil {
		if ferr := d.dedup.Forget(ctx, dedupScope, env.EventID); ferr != nil {
			d.log.Warn("dedup forget failed", "event_id", env.EventID, "err", ferr)
		}
		return err
	}
	d.log.Info("notification sent", "event_id", env.EventID, "type", env.EventType, "order_id", env.CorrelationID)
	return nil
}

// HandleKafka adapts Handle to the kafka consumer.
func (d *Dispatcher) HandleKafka(ctx context.Context, m kafka.Message) error {
	env, err := decodeEnvelope(m.Value)
	if err != nil {
		d.log.Warn("bad notification message", "offset", m.Offset, "type", kafkax.Header(m, "x-event-type"), "err", err)
		return nil
	}
	return d.Handle(ctx, env)
}
