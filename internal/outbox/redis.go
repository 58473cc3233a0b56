package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher appends events to one redis list per destination.
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisPublisher(rdb *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

func (p *RedisPublisher) List(destination string) string { return p.prefix + destination }

type redisEnvelope struct {
	Key       string          `json:"key"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

func (p *RedisPublisher) Publish(ctx context.Context, destination string, msg Message) error {
	b, err := json.Marshal(redisEnvelope{Key: msg.Key, EventType: msg.EventType, Payload: msg.Payload})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.List(destination), b).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", p.List(destination), err)
	}
	return nil
}

// Close leaves the shared client open; its owner closes it.
func (p *RedisPublisher) Close() error { return nil }
