package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/config"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/services"
)

const (
	defaultChannelPrefix = "notifications:user:"
	pingTimeout          = 5 * time.Second
)

// Publisher is the subset of the Redis client used to fan events out to socket gateways.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes per-user events on Redis pub/sub channels. Socket gateways subscribe
// to the user's channel and forward the payload to every live connection.
type RedisPublisher struct {
	client Publisher
	prefix string
}

// Connect opens a Redis client and verifies connectivity.
func Connect(ctx context.Context, cfg config.NotificationsConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, errors.New("realtime: redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("realtime: connect to redis: %w", err)
	}
	return rdb, nil
}

// NewRedisPublisher constructs a publisher using the given channel prefix.
func NewRedisPublisher(client Publisher, prefix string) (*RedisPublisher, error) {
	if client == nil {
		return nil, errors.New("realtime: redis client is required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}, nil
}

// PublishToUser publishes the event on the user's channel. No subscribers is not an error.
func (p *RedisPublisher) PublishToUser(ctx context.Context, userID string, event services.RealtimeEvent) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("realtime: user id is required")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("realtime: marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(userID), payload).Err(); err != nil {
		return fmt.Errorf("realtime: publish to %s: %w", userID, err)
	}
	return nil
}

// Channel returns the pub/sub channel name for a user.
func (p *RedisPublisher) Channel(userID string) string {
	return p.prefix + userID
}
