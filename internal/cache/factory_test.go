package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/gateway/internal/config"
)

func TestNewFromConfig_Disabled(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Cache.Enabled = false

	tier, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.False(t, tier.Enabled())
}

func TestNewFromConfig_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.NewDefault()
	cfg.Cache.RedisURL = "redis://" + mr.Addr()

	tier, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	defer tier.Close()

	ctx := context.Background()
	tier.Open(ctx)
	tier.SetData(ctx, "a.txt", []byte("x"), tier.Version(ctx, "a.txt"))
	assert.True(t, mr.Exists("ytstorage:data:a.txt"))
	assert.Equal(t, int64(1024*1024), tier.MaxFileSize())
}

func TestNewFromConfig_Memory(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Cache.Backend = config.CacheBackendMemory
	cfg.Cache.CircuitBreaker.Enabled = false

	tier, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	defer tier.Close()

	ctx := context.Background()
	tier.SetData(ctx, "a.txt", []byte("x"), tier.Version(ctx, "a.txt"))
	got, ok := tier.GetData(ctx, "a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("x"), got)
}

func TestNewFromConfig_Errors(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Cache.Backend = "memcached"
	_, err := NewFromConfig(cfg, nil)
	assert.Error(t, err)

	cfg = config.NewDefault()
	cfg.Cache.RedisURL = "::not a url::"
	_, err = NewFromConfig(cfg, nil)
	assert.Error(t, err)

	cfg = config.NewDefault()
	cfg.Cache.MaxFileSize = "huge"
	_, err = NewFromConfig(cfg, nil)
	assert.Error(t, err)
}
