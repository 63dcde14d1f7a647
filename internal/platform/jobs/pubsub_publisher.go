package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/services"
)

// PubSubNotificationQueue publishes notification jobs to a Pub/Sub topic. A push subscription
// delivers them back to the internal notification endpoint, on whichever instance receives it.
type PubSubNotificationQueue struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewPubSubNotificationQueue constructs a Pub/Sub backed notification queue.
func NewPubSubNotificationQueue(topic *pubsub.Topic, logger func(ctx context.Context, event string, fields map[string]any)) (*PubSubNotificationQueue, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification queue: topic is required")
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PubSubNotificationQueue{
		topic:   topic,
		marshal: json.Marshal,
		logger:  logger,
	}, nil
}

// Enqueue waits for the publish acknowledgement only, never for delivery.
func (q *PubSubNotificationQueue) Enqueue(ctx context.Context, job services.NotificationJob) error {
	if q == nil || q.topic == nil {
		return errors.New("pubsub notification queue: not initialised")
	}

	data, err := q.marshal(job)
	if err != nil {
		return fmt.Errorf("marshal notification job: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "jobId", job.ID)
	setAttr(attrs, "type", string(job.Type))
	setAttr(attrs, "orderId", job.OrderID)
	setAttr(attrs, "userId", job.UserID)

	result := q.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish notification job: %w", err)
	}
	q.logger(ctx, "notification.published", map[string]any{
		"messageId": id,
		"type":      string(job.Type),
		"orderId":   job.OrderID,
	})
	return nil
}

// Close flushes pending publishes and stops the topic's goroutines.
func (q *PubSubNotificationQueue) Close() {
	if q != nil && q.topic != nil {
		q.topic.Stop()
	}
}

// PushEnvelope is the body Pub/Sub posts to a push subscription endpoint.
type PushEnvelope struct {
	Message struct {
		Data        []byte            `json:"data"`
		Attributes  map[string]string `json:"attributes"`
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// DecodePushEnvelope extracts the notification job carried by a push delivery.
func DecodePushEnvelope(body []byte) (services.NotificationJob, error) {
	var envelope PushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return services.NotificationJob{}, fmt.Errorf("decode push envelope: %w", err)
	}
	if len(envelope.Message.Data) == 0 {
		return services.NotificationJob{}, errors.New("decode push envelope: message data is empty")
	}
	var job services.NotificationJob
	if err := json.Unmarshal(envelope.Message.Data, &job); err != nil {
		return services.NotificationJob{}, fmt.Errorf("decode notification job: %w", err)
	}
	if strings.TrimSpace(job.OrderID) == "" || strings.TrimSpace(string(job.Type)) == "" {
		return services.NotificationJob{}, errors.New("decode notification job: type and order id are required")
	}
	if job.ID == "" {
		job.ID = envelope.Message.Attributes["jobId"]
	}
	return job, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
