package alerting

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
)

// FCMDispatcher sends topic notifications through Firebase Cloud Messaging.
type FCMDispatcher struct {
	client *messaging.Client
}

func NewFCMDispatcher(ctx context.Context, app *firebase.App) (*FCMDispatcher, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging client: %w", err)
	}
	return &FCMDispatcher{client: client}, nil
}

func (d *FCMDispatcher) Send(ctx context.Context, topic, title, body string) error {
	_, err := d.client.Send(ctx, buildFCMMessage(topic, title, body))
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

func buildFCMMessage(topic, title, body string) *messaging.Message {
	return &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Topic: topic,
	}
}
