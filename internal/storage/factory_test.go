package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/gateway/internal/config"
	"github.com/objectfs/gateway/internal/storage/fs"
)

func TestNewDriverFromConfig_FS(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Storage.FS.Root = t.TempDir()

	d, err := NewDriverFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer d.Close()

	fsDriver, ok := d.(*fs.Driver)
	require.True(t, ok)
	assert.Equal(t, cfg.Storage.FS.Root, fsDriver.Root())
	require.NoError(t, d.Init(context.Background()))
}

func TestNewDriverFromConfig_Unknown(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Storage.Driver = "ftp"

	_, err := NewDriverFromConfig(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNewDriverFromConfig_BadChunkSize(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Storage.FS.ChunkSize = "lots"

	_, err := NewDriverFromConfig(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestS3Config(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Storage.S3.PartSize = "8MiB"
	cfg.Storage.S3.Retry.MaxAttempts = 5
	cfg.Storage.S3.Retry.BaseDelay = 10 * time.Millisecond

	s3cfg, err := S3Config(cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(8*1024*1024), s3cfg.PartSize)
	assert.Equal(t, "yurtube-bucket", s3cfg.Bucket)
	assert.True(t, s3cfg.ForcePathStyle)
	assert.Equal(t, 5, s3cfg.DeleteRetry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, s3cfg.DeleteRetry.InitialDelay)
	assert.Equal(t, 2*time.Second, s3cfg.DeleteRetry.MaxDelay)
	require.NoError(t, s3cfg.Validate())

	cfg.Storage.S3.PartSize = "many"
	_, err = S3Config(cfg)
	assert.Error(t, err)
}
