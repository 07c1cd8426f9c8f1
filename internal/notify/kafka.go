package notify

import (
	"context"

	kafkax "github.com/ariefcatur/go-tour-booking/internal/kafka"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
)

// KafkaPublisher keys every event by order id so one order's events keep
// their order within a partition.
type KafkaPublisher struct {
	p *kafkax.Producer
}

func NewKafkaPublisher(p *kafkax.Producer) *KafkaPublisher { return &KafkaPublisher{p: p} }

func (k *KafkaPublisher) Publish(_ context.Context, env orders.Envelope) error {
	return k.p.Publish(orders.PartitionKey(env.CorrelationID), kafkax.MustMarshal(env), kafkax.EventHeaders(env.EventType)...)
}

func (k *KafkaPublisher) Close() error {
	k.p.Close()
	k.p.WaitClosed()
	return nil
}
