package types

import (
	"path"
	"time"
)

// FileStat describes a file or directory as reported by a driver.
type FileStat struct {
	Name      string    `json:"name" cbor:"1,keyasint"`
	RelPath   string    `json:"rel_path" cbor:"2,keyasint"`
	IsDir     bool      `json:"is_dir" cbor:"3,keyasint"`
	Size      int64     `json:"size" cbor:"4,keyasint"`
	CreatedAt time.Time `json:"created_at" cbor:"5,keyasint"`
	UpdatedAt time.Time `json:"updated_at" cbor:"6,keyasint"`
	ETag      string    `json:"etag,omitempty" cbor:"7,keyasint,omitempty"`
}

// DirStat builds the stat of a synthetic directory with no timestamps.
func DirStat(relPath string) FileStat {
	name := ""
	if relPath != "" {
		name = path.Base(relPath)
	}
	return FileStat{
		Name:    name,
		RelPath: relPath,
		IsDir:   true,
	}
}

// WriteOptions controls how WriteStream treats an existing destination.
type WriteOptions struct {
	Overwrite bool
	Append    bool
}

// PresignMethod is the HTTP method a presigned URL is valid for.
type PresignMethod string

const (
	PresignGet PresignMethod = "GET"
	PresignPut PresignMethod = "PUT"
)

// PresignedURL is a time-limited URL granting direct access to one object.
type PresignedURL struct {
	URL       string        `json:"url"`
	Method    PresignMethod `json:"method"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// DriverStats are cumulative backend counters plus a few gauges. Latencies
// are moving averages.
type DriverStats struct {
	Requests        int64
	Errors          int64
	BytesUploaded   int64
	BytesDownloaded int64
	AverageLatency  time.Duration

	MultipartStarted   int64
	MultipartParts     int64
	MultipartCompleted int64
	MultipartAborted   int64
	MultipartBytes     int64
	MultipartLatency   time.Duration
	OpenUploads        int
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	Entries     int     `json:"entries"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}
