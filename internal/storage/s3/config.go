package s3

import (
	"errors"
	"time"

	"github.com/objectfs/gateway/pkg/retry"
)

const (
	// MinPartSize is the smallest part S3 accepts for any but the last part.
	MinPartSize int64 = 5 * 1024 * 1024

	// MaxPresignTTL is the longest validity SigV4 allows for a presigned URL.
	MaxPresignTTL = 7 * 24 * time.Hour

	// maxDeleteBatch is the DeleteObjects per-request key limit.
	maxDeleteBatch = 1000
)

// Config represents S3 driver configuration
type Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	// Performance settings
	MaxRetries int   `yaml:"max_retries"`
	PartSize   int64 `yaml:"part_size"`

	PresignTTL  time.Duration `yaml:"presign_ttl"`
	DeleteRetry retry.Config  `yaml:"delete_retry"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Region:         "us-east-1",
		ForcePathStyle: true,
		MaxRetries:     3,
		PartSize:       MinPartSize,
		PresignTTL:     time.Hour,
		DeleteRetry:    retry.DefaultConfig(),
	}
}

// Validate checks the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("bucket name cannot be empty")
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.PartSize == 0 {
		c.PartSize = MinPartSize
	}
	if c.PartSize < MinPartSize {
		return errors.New("part size must be at least 5MiB")
	}
	if c.PresignTTL <= 0 {
		c.PresignTTL = time.Hour
	}
	if c.PresignTTL > MaxPresignTTL {
		return errors.New("presign ttl cannot exceed 7 days")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("access key id and secret access key must be set together")
	}
	return nil
}
