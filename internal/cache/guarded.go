package cache

import (
	"context"
	"errors"
	"time"

	"github.com/objectfs/gateway/internal/circuit"
)

// guardedStore stops reading from and filling a store that keeps failing
// until the breaker's timeout elapses. Misses are not failures.
type guardedStore struct {
	store   Store
	breaker *circuit.Breaker
}

// NewGuardedStore wraps store with a circuit breaker. The breaker's
// IsFailure is replaced so that ErrMiss and cancellation do not count.
func NewGuardedStore(store Store, config circuit.Config) Store {
	config.IsFailure = func(err error) bool {
		return err != nil &&
			!errors.Is(err, ErrMiss) &&
			!errors.Is(err, context.Canceled) &&
			!errors.Is(err, context.DeadlineExceeded)
	}
	return &guardedStore{
		store:   store,
		breaker: circuit.New("cache", config),
	}
}

func (g *guardedStore) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		val, err = g.store.Get(ctx, key)
		return err
	})
	return val, err
}

func (g *guardedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.store.Set(ctx, key, value, ttl)
	})
}

func (g *guardedStore) Counters(ctx context.Context, keys ...string) ([]int64, error) {
	var values []int64
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		values, err = g.store.Counters(ctx, keys...)
		return err
	})
	return values, err
}

func (g *guardedStore) SetIfUnchanged(ctx context.Context, guard Guard, key string, value []byte, ttl time.Duration) (bool, error) {
	var stored bool
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		stored, err = g.store.SetIfUnchanged(ctx, guard, key, value, ttl)
		return err
	})
	return stored, err
}

// Invalidation bypasses the breaker and is always attempted.

func (g *guardedStore) Delete(ctx context.Context, keys ...string) error {
	return g.store.Delete(ctx, keys...)
}

func (g *guardedStore) DeletePrefix(ctx context.Context, prefix string) error {
	return g.store.DeletePrefix(ctx, prefix)
}

func (g *guardedStore) Incr(ctx context.Context, key string, ttl time.Duration) error {
	return g.store.Incr(ctx, key, ttl)
}

// Ping bypasses the breaker so startup and readiness see the real state.
func (g *guardedStore) Ping(ctx context.Context) error {
	return g.store.Ping(ctx)
}

func (g *guardedStore) Close() error {
	return g.store.Close()
}
