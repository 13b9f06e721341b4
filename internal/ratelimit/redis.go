package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "markguard:ratelimit:"

// RedisStore shares counters between server instances through Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to the Redis server at url (redis://host:port/db)
// and verifies the connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisStoreFromClient(client), nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: defaultRedisPrefix,
		now:    time.Now,
	}
}

// Increment runs INCR and EXPIRE in one MULTI block so a counter never
// outlives its window.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	k, expires := bucketKey(s.prefix+key, window, s.now())

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireAt(ctx, k, expires)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", k, err)
	}

	return incr.Val(), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
