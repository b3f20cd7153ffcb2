package events

import (
	"context"
	"time"

	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"
)

// Publish runs while the drone is locked, so a write must not wait for a batch to fill.
const kafkaBatchTimeout = 10 * time.Millisecond

// KafkaPublisher writes events to a single topic, keyed by serial number
// so the events of one drone stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafkago.Writer
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}

	return &KafkaPublisher{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			BatchTimeout:           kafkaBatchTimeout,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	data, err := e.Encode()
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(e.SerialNumber),
		Value: data,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
