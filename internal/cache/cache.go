// Package cache holds the response cache used by the extraction client.
package cache

import (
	"context"
	"time"
)

// Cache is a get/set-with-TTL store keyed by opaque strings.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
