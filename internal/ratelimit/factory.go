package ratelimit

import (
	"context"
	"fmt"

	"github.com/watzon/markguard/internal/config"
)

// ClosableStore is a Store that owns background resources.
type ClosableStore interface {
	Store
	Close() error
}

// NewStore builds the Store selected by cfg.Store.
func NewStore(ctx context.Context, cfg config.RateLimitConfig) (ClosableStore, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(cfg.Window * 2), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown rate limit store %q", cfg.Store)
	}
}
