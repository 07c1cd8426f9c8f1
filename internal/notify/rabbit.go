package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/rabbitmq/amqp091-go"
)

func declareExchange(ch *amqp091.Channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil)
}

type RabbitPublisher struct {
	conn     *amqp091.Connection
	exchange string
}

func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, exchange); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &RabbitPublisher{conn: conn, exchange: exchange}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, env orders.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	return ch.PublishWithContext(ctx, p.exchange, env.EventType, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     env.EventID,
		CorrelationId: env.CorrelationID,
		Type:          env.EventType,
		Timestamp:     env.OccurredAt,
		Body:          body,
	})
}

func (p *RabbitPublisher) Close() error { return p.conn.Close() }

// RabbitConsumer reads the notifier queue bound to the fanout exchange.
type RabbitConsumer struct {
	conn  *amqp091.Connection
	queue string
	log   *slog.Logger
}

func NewRabbitConsumer(url, exchange, queue string, log *slog.Logger) (*RabbitConsumer, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, exchange); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue, "", exchange, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	return &RabbitConsumer{conn: conn, queue: queue, log: log}, nil
}

// Start blocks until ctx ends. A handler error requeues the delivery once;
// a redelivered message that fails again is dropped.
func (c *RabbitConsumer) Start(ctx context.Context, h func(ctx context.Context, env orders.Envelope) error) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(32, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume queue: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = ch.Cancel("", false)
		ch.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.log.Info("rabbit consumer channel closed")
				return nil
			}
			c.deliver(ctx, msg, h)
		}
	}
}

func (c *RabbitConsumer) deliver(ctx context.Context, msg amqp091.Delivery, h func(context.Context, orders.Envelope) error) {
	var env orders.Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		c.log.Warn("bad notification payload", "message_id", msg.MessageId, "err", err)
		_ = msg.Nack(false, false)
		return
	}
	if err := h(ctx, env); err != nil {
		c.log.Error("notification failed", "event_id", env.EventID, "redelivered", msg.Redelivered, "err", err)
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}
	_ = msg.Ack(false)
}

func (c *RabbitConsumer) Close() error { return c.conn.Close() }
