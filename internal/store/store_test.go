package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phone-auth-service/internal/client"
)

func newRedisStore(t *testing.T) (*RedisCounterStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	redisClient := client.NewRedisClientFromAddr(mr.Addr())
	t.Cleanup(func() { redisClient.Close() })

	return NewRedisCounterStore(redisClient), mr
}

// both runs a subtest against each CounterStore implementation.
func both(t *testing.T, name string, fn func(t *testing.T, s CounterStore)) {
	t.Run(name+"/memory", func(t *testing.T) {
		fn(t, NewMemoryCounterStore())
	})
	t.Run(name+"/redis", func(t *testing.T) {
		s, _ := newRedisStore(t)
		fn(t, s)
	})
}

func TestCounterStoreContract(t *testing.T) {
	ctx := context.Background()

	both(t, "AddIfAbsent", func(t *testing.T, s CounterStore) {
		added, err := s.AddIfAbsent(ctx, "k", 1, time.Hour)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = s.AddIfAbsent(ctx, "k", 1, time.Hour)
		require.NoError(t, err)
		assert.False(t, added)

		val, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "1", val)
	})

	both(t, "Increment", func(t *testing.T, s CounterStore) {
		_, err := s.AddIfAbsent(ctx, "k", 1, time.Hour)
		require.NoError(t, err)

		n, err := s.Increment(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = s.Increment(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	both(t, "IncrementMissingKey", func(t *testing.T, s CounterStore) {
		_, err := s.Increment(ctx, "absent")
		assert.ErrorIs(t, err, ErrNotExist)
	})

	both(t, "GetMissingKey", func(t *testing.T, s CounterStore) {
		_, err := s.Get(ctx, "absent")
		assert.ErrorIs(t, err, ErrNotExist)
	})

	both(t, "SetWithTTLOverwrites", func(t *testing.T, s CounterStore) {
		_, err := s.AddIfAbsent(ctx, "k", 5, time.Hour)
		require.NoError(t, err)

		require.NoError(t, s.SetWithTTL(ctx, "k", "1", time.Hour))

		val, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "1", val)
	})

	both(t, "Delete", func(t *testing.T, s CounterStore) {
		_, err := s.AddIfAbsent(ctx, "k", 1, time.Hour)
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "k"))

		_, err = s.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotExist)

		// Deleting an absent key is not an error.
		assert.NoError(t, s.Delete(ctx, "k"))
	})
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCounterStore()

	var mu sync.Mutex
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})

	_, err := s.AddIfAbsent(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(61 * time.Second)
	mu.Unlock()

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotExist)

	_, err = s.Increment(ctx, "k")
	assert.ErrorIs(t, err, ErrNotExist)

	// The slot is free again.
	added, err := s.AddIfAbsent(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, added)
}

func TestRedisStoreIncrementAfterExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	_, err := s.AddIfAbsent(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	// The conditional increment must not recreate the key without a TTL.
	_, err = s.Increment(ctx, "k")
	assert.ErrorIs(t, err, ErrNotExist)
	assert.False(t, mr.Exists("k"))
}

func TestRedisStoreTTLFixedAtCreation(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	_, err := s.AddIfAbsent(ctx, "k", 1, time.Hour)
	require.NoError(t, err)
	ttlBefore := mr.TTL("k")

	_, err = s.Increment(ctx, "k")
	require.NoError(t, err)

	assert.Equal(t, ttlBefore, mr.TTL("k"))
}

func TestRedisStoreGetInt(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t)

	require.NoError(t, s.SetWithTTL(ctx, "k", "42", time.Hour))

	n, err := s.GetInt(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	require.NoError(t, s.SetWithTTL(ctx, "k", "not-a-number", time.Hour))
	_, err = s.GetInt(ctx, "k")
	assert.Error(t, err)
}
