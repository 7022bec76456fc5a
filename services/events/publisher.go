package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// ChannelOrderCompleted carries order completion events for downstream
	// services (enrollment, notifications)
	ChannelOrderCompleted = "sale.order.completed"
	// ChannelCacheInvalidate tells consumers to drop a cached key
	ChannelCacheInvalidate = "cache.invalidate"
)

// OrderCompletedEvent is published once an order has been fully paid
type OrderCompletedEvent struct {
	OrderID     uuid.UUID   `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	UserID      uuid.UUID   `json:"user_id"`
	CourseIDs   []uuid.UUID `json:"course_ids"`
	TotalAmount float64     `json:"total_amount"`
	CompletedAt time.Time   `json:"completed_at"`
}

// CacheInvalidateEvent asks consumers to invalidate a cache key
type CacheInvalidateEvent struct {
	Key string `json:"key"`
}

// Publisher emits domain events for other services to consume
type Publisher interface {
	PublishOrderCompleted(ctx context.Context, event OrderCompletedEvent) error
	PublishCacheInvalidate(ctx context.Context, key string) error
}

// RedisPublisher publishes events over Redis pub/sub
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher backed by the given Redis client
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// PublishOrderCompleted publishes an order completion event
func (p *RedisPublisher) PublishOrderCompleted(ctx context.Context, event OrderCompletedEvent) error {
	return p.publish(ctx, ChannelOrderCompleted, event)
}

// PublishCacheInvalidate publishes a cache invalidation event
func (p *RedisPublisher) PublishCacheInvalidate(ctx context.Context, key string) error {
	return p.publish(ctx, ChannelCacheInvalidate, CacheInvalidateEvent{Key: key})
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", channel, err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", channel, err)
	}

	log.Printf("[EVENTS] Published event to %s", channel)
	return nil
}

// NopPublisher discards all events. Used in tests and when Redis is not
// configured.
type NopPublisher struct{}

// NewNopPublisher creates a publisher that does nothing
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

func (NopPublisher) PublishOrderCompleted(ctx context.Context, event OrderCompletedEvent) error {
	return nil
}

func (NopPublisher) PublishCacheInvalidate(ctx context.Context, key string) error {
	return nil
}
