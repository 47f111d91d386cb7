package events

import (
	"context"
	"entity-store/core"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per event, keyed by record id so the
// events of one record stay in one partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher returns a publisher whose writes are queued and sent in
// the background. Delivery failures are logged by the writer.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             logDelivery,
	}}
}

func logDelivery(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, msg := range messages {
		logrus.WithFields(logrus.Fields{
			"topic":     msg.Topic,
			"record_id": string(msg.Key),
			"error":     err,
		}).Warn("Failed to deliver record event")
	}
}

func (p *KafkaPublisher) Notify(ctx context.Context, event core.Event) error {
	value, err := encode(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "collection", Value: []byte(event.Collection)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
