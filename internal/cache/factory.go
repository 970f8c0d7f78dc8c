package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/objectfs/gateway/internal/circuit"
	"github.com/objectfs/gateway/internal/config"
)

// NewFromConfig builds the configured cache tier. A disabled cache yields a
// tier that misses on every lookup.
func NewFromConfig(cfg *config.Configuration, logger *zap.Logger) (*Tier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cfg.Cache
	if !c.Enabled {
		return Disabled(), nil
	}

	maxFileSize, err := cfg.CacheMaxFileSize()
	if err != nil {
		return nil, err
	}

	var store Store
	switch c.Backend {
	case config.CacheBackendRedis:
		store, err = NewRedisStore(c.RedisURL)
		if err != nil {
			return nil, err
		}
	case config.CacheBackendMemory:
		maxSize, err := cfg.CacheMemoryMaxSize()
		if err != nil {
			return nil, err
		}
		store = NewMemoryStore(MemoryConfig{MaxSize: maxSize})
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", c.Backend)
	}

	if c.CircuitBreaker.Enabled {
		store = NewGuardedStore(store, circuit.Config{
			FailureThreshold: uint32(c.CircuitBreaker.FailureThreshold),
			Timeout:          c.CircuitBreaker.Timeout,
			OnStateChange: func(name string, from, to circuit.State) {
				logger.Warn("Cache circuit breaker changed state",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to))
			},
		})
	}

	return NewTier(store, Config{
		Enabled:     true,
		KeyPrefix:   c.KeyPrefix,
		MetaTTL:     c.MetaTTL,
		DataTTL:     c.DataTTL,
		MaxFileSize: maxFileSize,
	}, logger), nil
}
