package s3

import (
	"sync"
	"time"

	"github.com/objectfs/gateway/pkg/types"
)

// MetricsCollector counts S3 requests and multipart traffic for the driver.
// Snapshots are exported through Driver.DriverStats.
type MetricsCollector struct {
	mu    sync.RWMutex
	stats types.DriverStats
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordMetrics records operation metrics with duration and error status
func (mc *MetricsCollector) RecordMetrics(duration time.Duration, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.stats.Requests++
	if err != nil {
		mc.stats.Errors++
	}
	mc.stats.AverageLatency = rolling(mc.stats.AverageLatency, duration, mc.stats.Requests)
}

// RecordBytesUploaded records uploaded bytes
func (mc *MetricsCollector) RecordBytesUploaded(bytes int64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.stats.BytesUploaded += bytes
}

// RecordBytesDownloaded records downloaded bytes
func (mc *MetricsCollector) RecordBytesDownloaded(bytes int64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.stats.BytesDownloaded += bytes
}

// RecordMultipartUploadStart records when a multipart upload is initiated
func (mc *MetricsCollector) RecordMultipartUploadStart() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.stats.MultipartStarted++
}

// RecordMultipartUploadPart records when a part is uploaded
func (mc *MetricsCollector) RecordMultipartUploadPart(partSize int64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.stats.MultipartParts++
	mc.stats.MultipartBytes += partSize
}

// RecordMultipartUploadComplete records successful completion of a multipart upload
func (mc *MetricsCollector) RecordMultipartUploadComplete(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.stats.MultipartCompleted++
	mc.stats.MultipartLatency = rolling(mc.stats.MultipartLatency, duration, mc.stats.MultipartCompleted)
}

// RecordMultipartUploadAborted records when a multipart upload is aborted
func (mc *MetricsCollector) RecordMultipartUploadAborted() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.stats.MultipartAborted++
}

// Snapshot returns a copy of the counters
func (mc *MetricsCollector) Snapshot() types.DriverStats {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.stats
}

// rolling weighs the newest sample at 10%; the first sample is taken as is
func rolling(avg, sample time.Duration, n int64) time.Duration {
	if n == 1 {
		return sample
	}
	return time.Duration((int64(avg)*9 + int64(sample)) / 10)
}
