package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"phone-auth-service/internal/client"
)

// incrIfExists increments only when the key is still there, so a counter that
// expired mid-flight never comes back without its TTL. Counters start at 1,
// so a 0 reply can only mean the key was gone.
const incrIfExistsScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
return redis.call('INCR', KEYS[1])
`

// RedisCounterStore implements CounterStore on a shared Redis instance.
type RedisCounterStore struct {
	client *client.RedisClient
}

func NewRedisCounterStore(redisClient *client.RedisClient) *RedisCounterStore {
	return &RedisCounterStore{client: redisClient}
}

func (s *RedisCounterStore) AddIfAbsent(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error) {
	added, err := s.client.SetNX(ctx, key, value, ttl)
	if err != nil {
		return false, fmt.Errorf("counter store add: %w", err)
	}
	return added, nil
}

func (s *RedisCounterStore) Increment(ctx context.Context, key string) (int64, error) {
	result, err := s.client.Eval(ctx, incrIfExistsScript, []string{key})
	if err != nil {
		return 0, fmt.Errorf("counter store increment: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("counter store increment: unexpected reply type %T", result)
	}
	if count == 0 {
		return 0, ErrNotExist
	}
	return count, nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return "", ErrNotExist
		}
		return "", fmt.Errorf("counter store get: %w", err)
	}
	return val, nil
}

func (s *RedisCounterStore) SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl); err != nil {
		return fmt.Errorf("counter store set: %w", err)
	}
	return nil
}

func (s *RedisCounterStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key); err != nil {
		return fmt.Errorf("counter store delete: %w", err)
	}
	return nil
}

// GetInt is a convenience for counter keys.
func (s *RedisCounterStore) GetInt(ctx context.Context, key string) (int64, error) {
	val, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter store get: invalid counter format: %w", err)
	}
	return n, nil
}
