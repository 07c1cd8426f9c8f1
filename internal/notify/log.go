package notify

import (
	"context"
	"log/slog"

	"github.com/ariefcatur/go-tour-booking/internal/orders"
)

// LogPublisher only logs events. Used with the in-memory store and when no
// broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, env orders.Envelope) error {
	p.log.InfoContext(ctx, "notification", "event", env.EventType, "event_id", env.EventID,
		"order_id", env.CorrelationID, "payload", string(env.Payload))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
