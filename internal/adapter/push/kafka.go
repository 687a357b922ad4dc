package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ondamlab/yesterday/internal/domain"
)

// KafkaPublisher hands notifications to a Kafka topic for a downstream
// delivery worker. One message per notification, keyed by destination token
// so retries for the same device stay in order.
type KafkaPublisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a producer for the push topic.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

// Send publishes the whole batch in a single WriteMessages call. Kafka acks
// all or nothing here, so the accepted count is the batch size or zero.
func (p *KafkaPublisher) Send(ctx context.Context, batch []domain.Notification) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	msgs := make([]kafkago.Message, len(batch))
	for i := range batch {
		msg, err := serializeNotification(batch[i])
		if err != nil {
			return 0, err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("publish notifications: %w", err)
	}
	return len(batch), nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// serializeNotification marshals a notification into a Kafka message.
func serializeNotification(n domain.Notification) (kafkago.Message, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(n.Destination),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "title", Value: []byte(n.Title)},
		},
	}, nil
}
