package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"aquacare-relay/internal/config"
)

// AMQPDispatcher puts notifications on a durable RabbitMQ queue.
type AMQPDispatcher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

func NewAMQPDispatcher(cfg config.AMQPConfig) (*AMQPDispatcher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		cfg.Queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", cfg.Queue, err)
	}

	return &AMQPDispatcher{conn: conn, channel: ch, queue: cfg.Queue}, nil
}

func (d *AMQPDispatcher) Send(ctx context.Context, topic, title, body string) error {
	payload, err := json.Marshal(newNotification(topic, title, body))
	if err != nil {
		return fmt.Errorf("serialize notification: %w", err)
	}

	err = d.channel.PublishWithContext(ctx,
		"",
		d.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			Type:         topic,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (d *AMQPDispatcher) Close() error {
	if d.channel != nil {
		d.channel.Close()
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
