package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"aquacare-relay/internal/config"
)

// KafkaDispatcher publishes notifications to a Kafka topic for downstream
// consumers. Messages are keyed by the deployment topic.
type KafkaDispatcher struct {
	writer *kafka.Writer
}

func NewKafkaDispatcher(cfg config.KafkaConfig) (*KafkaDispatcher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			// Delivery is not retried.
			MaxAttempts: 1,
		},
	}, nil
}

func (d *KafkaDispatcher) Send(ctx context.Context, topic, title, body string) error {
	msg, err := buildKafkaMessage(newNotification(topic, title, body))
	if err != nil {
		return err
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func buildKafkaMessage(n notification) (kafka.Message, error) {
	value, err := json.Marshal(n)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	return kafka.Message{
		Key:   []byte(n.Topic),
		Value: value,
		Headers: []kafka.Header{
			{Key: "title", Value: []byte(n.Title)},
		},
		Time: n.SentAt,
	}, nil
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
