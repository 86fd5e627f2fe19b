package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"aquacare-relay/internal/config"
)

// MQTTDispatcher publishes notifications under <topic_prefix>/<topic>.
type MQTTDispatcher struct {
	client mqtt.Client
	prefix string
	qos    byte
}

func NewMQTTDispatcher(cfg config.MQTTConfig) (*MQTTDispatcher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return &MQTTDispatcher{client: client, prefix: cfg.TopicPrefix, qos: cfg.QoS}, nil
}

func (d *MQTTDispatcher) Send(ctx context.Context, topic, title, body string) error {
	payload, err := json.Marshal(newNotification(topic, title, body))
	if err != nil {
		return fmt.Errorf("serialize notification: %w", err)
	}

	token := d.client.Publish(mqttTopic(d.prefix, topic), d.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func mqttTopic(prefix, topic string) string {
	if prefix == "" {
		return topic
	}
	return prefix + "/" + topic
}

func (d *MQTTDispatcher) Close() error {
	d.client.Disconnect(250)
	return nil
}
