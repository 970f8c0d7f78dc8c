package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by a Store when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is a key/value backend with per-entry expiry. Implementations must be
// safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key that starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Counters returns the values of the named counters. Absent counters
	// read as zero.
	Counters(ctx context.Context, keys ...string) ([]int64, error)
	// Incr increments the counter under key and resets its expiry.
	Incr(ctx context.Context, key string, ttl time.Duration) error
	// SetIfUnchanged is Set guarded by counters read earlier. It stores
	// nothing and reports false once any counter in guard has moved.
	SetIfUnchanged(ctx context.Context, guard Guard, key string, value []byte, ttl time.Duration) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// Guard pins counter values returned by Counters.
type Guard struct {
	Keys   []string
	Values []int64
}
