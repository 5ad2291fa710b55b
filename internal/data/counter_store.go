package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
)

// RedisCounterStore implements biz.CounterStore on Redis.
type RedisCounterStore struct {
	rdb *redis.Client
}

// NewRedisCounterStore creates a Redis-backed counter store.
func NewRedisCounterStore(rdb *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{rdb: rdb}
}

var _ biz.CounterStore = (*RedisCounterStore)(nil)

// GetCounter returns the counter value, 0 when the key does not exist.
func (s *RedisCounterStore) GetCounter(ctx context.Context, key string) (int64, error) {
	if s.rdb == nil {
		return 0, errors.New("counter store: redis client is nil")
	}

	v, err := s.rdb.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("counter store: failed to get %s: %w", key, err)
	}
	return v, nil
}

// IncrementCounter adds amount and refreshes the TTL in one MULTI/EXEC.
func (s *RedisCounterStore) IncrementCounter(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	if s.rdb == nil {
		return 0, errors.New("counter store: redis client is nil")
	}

	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, key, amount)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counter store: failed to increment %s: %w", key, err)
	}
	return incr.Val(), nil
}
