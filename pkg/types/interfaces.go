package types

import (
	"context"
	"io"
	"time"
)

// Driver defines the operations every storage backend provides.
type Driver interface {
	// Init performs idempotent setup such as creating the root or verifying
	// the bucket is reachable.
	Init(ctx context.Context) error

	Stat(ctx context.Context, path string) (FileStat, error)
	// Exists never reports absence as an error.
	Exists(ctx context.Context, path string) (bool, error)
	// Listdir returns direct children only, in backend enumeration order.
	Listdir(ctx context.Context, path string) ([]FileStat, error)
	Mkdirs(ctx context.Context, path string, existOK bool) error
	Rename(ctx context.Context, src, dst string, overwrite bool) error
	Remove(ctx context.Context, path string, recursive bool) error

	// ReadStream opens path for reading from offset. A length of 0 reads to
	// the end. The caller must close the returned reader.
	ReadStream(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error)
	// WriteStream consumes src fully and returns the number of bytes stored.
	WriteStream(ctx context.Context, path string, src io.Reader, opts WriteOptions) (int64, error)

	// Health check
	HealthCheck(ctx context.Context) error
	Close() error
}

// Presigner is an optional Driver capability.
type Presigner interface {
	PresignURL(ctx context.Context, path string, method PresignMethod, ttl time.Duration) (PresignedURL, error)
}

// StatsReporter is an optional Driver capability for drivers that count
// their own backend traffic.
type StatsReporter interface {
	DriverStats() DriverStats
}

// MetricsCollector defines the metrics collection interface
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordCacheHit(kind string)
	RecordCacheMiss(kind string)
}
