package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch bounds SCAN page size and UNLINK batch size
const scanBatch = 256

// errGuardMoved aborts a guarded transaction whose counters changed
var errGuardMoved = errors.New("guard counters moved")

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// RedisStore keeps entries in a Redis server
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects lazily to the server named by a redis:// URL.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opts)), nil
}

// NewRedisStoreWithClient wraps an existing client. Close closes the client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the value stored under key
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return val, err
}

// Set stores value with the given expiry
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes keys in a single round trip
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// DeletePrefix walks the keyspace with SCAN and unlinks matches in batches.
// Keys written during the walk may survive.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	iter := s.client.Scan(ctx, 0, globEscaper.Replace(prefix)+"*", scanBatch).Iterator()

	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := s.client.Unlink(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return s.client.Unlink(ctx, batch...).Err()
	}
	return nil
}

// Counters reads all counters with one MGET
func (s *RedisStore) Counters(ctx context.Context, keys ...string) ([]int64, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	return parseCounters(vals)
}

// Incr bumps the counter and refreshes its expiry in one transaction
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		} else {
			pipe.Persist(ctx, key)
		}
		return nil
	})
	return err
}

// SetIfUnchanged WATCHes the guard counters, compares them and sets value in
// a MULTI block. A counter bumped concurrently fails the EXEC.
func (s *RedisStore) SetIfUnchanged(ctx context.Context, guard Guard, key string, value []byte, ttl time.Duration) (bool, error) {
	if len(guard.Keys) != len(guard.Values) {
		return false, nil
	}
	if len(guard.Keys) == 0 {
		return true, s.Set(ctx, key, value, ttl)
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, guard.Keys...).Result()
		if err != nil {
			return err
		}
		current, err := parseCounters(vals)
		if err != nil {
			return err
		}
		for i := range current {
			if current[i] != guard.Values[i] {
				return errGuardMoved
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, ttl)
			return nil
		})
		return err
	}, guard.Keys...)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errGuardMoved), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, err
	}
}

// Ping checks the server is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func parseCounters(vals []interface{}) ([]int64, error) {
	counters := make([]int64, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected counter value %T", v)
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid counter value %q: %w", str, err)
		}
		counters[i] = n
	}
	return counters, nil
}
