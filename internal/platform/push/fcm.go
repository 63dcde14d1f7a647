package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
)

const defaultSendTimeout = 5 * time.Second

// Messenger is the subset of the FCM client used to deliver a single message.
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender delivers device push notifications through Firebase Cloud Messaging.
type FCMSender struct {
	client  Messenger
	timeout time.Duration
}

// NewFCMSender builds a sender from the shared Firebase app.
func NewFCMSender(ctx context.Context, app *firebase.App) (*FCMSender, error) {
	if app == nil {
		return nil, errors.New("push: firebase app is required")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("push: initialise messaging client: %w", err)
	}
	return NewSender(client), nil
}

// NewSender wraps an existing messaging client.
func NewSender(client Messenger) *FCMSender {
	return &FCMSender{client: client, timeout: defaultSendTimeout}
}

// Send pushes one notification to a device token.
func (s *FCMSender) Send(ctx context.Context, token, title, message string, data map[string]string) error {
	if s == nil || s.client == nil {
		return errors.New("push: sender not initialised")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("push: device token is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload := make(map[string]string, len(data))
	for k, v := range data {
		if v != "" {
			payload[k] = v
		}
	}

	_, err := s.client.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  message,
		},
		Data: payload,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	})
	if err != nil {
		if messaging.IsUnregistered(err) {
			return fmt.Errorf("push: token unregistered: %w", err)
		}
		return fmt.Errorf("push: send: %w", err)
	}
	return nil
}
