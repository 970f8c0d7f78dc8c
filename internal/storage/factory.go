// Package storage selects and constructs the configured storage driver.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/objectfs/gateway/internal/config"
	"github.com/objectfs/gateway/internal/storage/fs"
	"github.com/objectfs/gateway/internal/storage/s3"
	"github.com/objectfs/gateway/pkg/retry"
	"github.com/objectfs/gateway/pkg/types"
)

// NewDriverFromConfig creates the driver named by cfg.Storage.Driver. The
// driver is not initialized; callers run Init before serving.
func NewDriverFromConfig(ctx context.Context, cfg *config.Configuration, logger *zap.Logger) (types.Driver, error) {
	switch cfg.Storage.Driver {
	case config.DriverFS:
		chunkSize, err := cfg.ChunkSize()
		if err != nil {
			return nil, err
		}
		d, err := fs.New(fs.Config{
			Root:      cfg.Storage.FS.Root,
			ChunkSize: chunkSize,
			Workers:   cfg.Storage.FS.Workers,
		}, logger)
		if err != nil {
			return nil, err
		}
		return d, nil

	case config.DriverS3:
		s3cfg, err := S3Config(cfg)
		if err != nil {
			return nil, err
		}
		d, err := s3.NewDriver(ctx, s3cfg, logger)
		if err != nil {
			return nil, err
		}
		return d, nil

	default:
		return nil, fmt.Errorf("unknown driver kind: %s", cfg.Storage.Driver)
	}
}

// S3Config translates the application configuration into driver settings.
func S3Config(cfg *config.Configuration) (*s3.Config, error) {
	src := cfg.Storage.S3
	partSize, err := cfg.PartSize()
	if err != nil {
		return nil, err
	}

	deleteRetry := retry.DefaultConfig()
	if src.Retry.MaxAttempts > 0 {
		deleteRetry.MaxAttempts = src.Retry.MaxAttempts
	}
	if src.Retry.BaseDelay > 0 {
		deleteRetry.InitialDelay = src.Retry.BaseDelay
	}
	if src.Retry.MaxDelay > 0 {
		deleteRetry.MaxDelay = src.Retry.MaxDelay
	}

	return &s3.Config{
		Bucket:          src.Bucket,
		Region:          src.Region,
		Endpoint:        src.Endpoint,
		AccessKeyID:     src.AccessKeyID,
		SecretAccessKey: src.SecretAccessKey,
		SessionToken:    src.SessionToken,
		ForcePathStyle:  src.ForcePathStyle,
		MaxRetries:      src.MaxRetries,
		PartSize:        partSize,
		PresignTTL:      src.PresignTTL,
		DeleteRetry:     deleteRetry,
	}, nil
}
