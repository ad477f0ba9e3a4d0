package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides fire-and-forget pub/sub between processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// PayloadCache keeps the most recent serialized payload of a feed so a process
// that joins late can serve it before the next publish arrives.
type PayloadCache interface {
	SetLatest(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	// GetLatest returns ErrNotFound when nothing is cached under key.
	GetLatest(ctx context.Context, key string) ([]byte, error)
}
