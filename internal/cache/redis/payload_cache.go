package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PayloadCache implements domain.PayloadCache with plain string keys.
type PayloadCache struct {
	rdb *redis.Client
}

// NewPayloadCache creates a PayloadCache backed by the given Client.
func NewPayloadCache(c *Client) *PayloadCache {
	return &PayloadCache{rdb: c.Underlying()}
}

// SetLatest stores payload under key with the given TTL. A zero TTL keeps the
// key until it is overwritten.
func (pc *PayloadCache) SetLatest(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := pc.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set latest %s: %w", key, err)
	}
	return nil
}

// GetLatest returns the payload stored under key, or domain.ErrNotFound.
func (pc *PayloadCache) GetLatest(ctx context.Context, key string) ([]byte, error) {
	data, err := pc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get latest %s: %w", key, err)
	}
	return data, nil
}

// Compile-time interface check.
var _ domain.PayloadCache = (*PayloadCache)(nil)
