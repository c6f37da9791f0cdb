// Package store abstracts the shared counter store the rate limiter runs on.
// Any key-value store with atomic add-if-absent, increment, and TTL expiry
// satisfies the contract: Redis for multi-instance deployments, the in-memory
// store for single-instance ones and tests.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotExist is returned by Get and Increment when the key is absent,
// including when it expired between two calls.
var ErrNotExist = errors.New("counter store: key does not exist")

type CounterStore interface {
	// AddIfAbsent atomically creates the key with the given value and TTL
	// only if it does not exist, and reports whether the create happened.
	AddIfAbsent(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error)

	// Increment atomically increments an existing key and returns the new
	// value. The key's TTL is left untouched. Returns ErrNotExist if the key
	// is gone.
	Increment(ctx context.Context, key string) (int64, error)

	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
