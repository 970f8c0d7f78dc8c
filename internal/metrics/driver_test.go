package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/objectfs/gateway/pkg/types"
)

// statsDriver is a driver that keeps its own counters
type statsDriver struct {
	types.Driver
	mu    sync.Mutex
	stats types.DriverStats
}

func (d *statsDriver) DriverStats() types.DriverStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// plainDriver keeps no counters
type plainDriver struct {
	types.Driver
}

func TestCollector_RegisterDriver(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	driver := &statsDriver{stats: types.DriverStats{
		Requests:           12,
		Errors:             2,
		BytesUploaded:      4096,
		BytesDownloaded:    7,
		AverageLatency:     250 * time.Millisecond,
		MultipartStarted:   3,
		MultipartCompleted: 1,
		MultipartAborted:   1,
		MultipartParts:     5,
		MultipartBytes:     4000,
		MultipartLatency:   2 * time.Second,
		OpenUploads:        1,
	}}
	if !c.RegisterDriver(driver) {
		t.Fatal("driver with counters was not registered")
	}

	out := scrape(t, c)
	assertSeries(t, out, "gateway_backend_requests_total 12")
	assertSeries(t, out, "gateway_backend_errors_total 2")
	assertSeries(t, out, `gateway_backend_bytes_total{direction="written"} 4096`)
	assertSeries(t, out, `gateway_backend_bytes_total{direction="read"} 7`)
	assertSeries(t, out, "gateway_backend_latency_seconds 0.25")
	assertSeries(t, out, `gateway_backend_multipart_uploads_total{outcome="started"} 3`)
	assertSeries(t, out, `gateway_backend_multipart_uploads_total{outcome="completed"} 1`)
	assertSeries(t, out, `gateway_backend_multipart_uploads_total{outcome="aborted"} 1`)
	assertSeries(t, out, "gateway_backend_multipart_parts_total 5")
	assertSeries(t, out, "gateway_backend_multipart_bytes_total 4000")
	assertSeries(t, out, "gateway_backend_multipart_latency_seconds 2")
	assertSeries(t, out, "gateway_backend_multipart_open 1")

	// values are read at scrape time
	driver.mu.Lock()
	driver.stats.Requests = 13
	driver.stats.OpenUploads = 0
	driver.mu.Unlock()
	out = scrape(t, c)
	assertSeries(t, out, "gateway_backend_requests_total 13")
	assertSeries(t, out, "gateway_backend_multipart_open 0")
}

func TestCollector_RegisterDriverSkips(t *testing.T) {
	t.Parallel()

	if NewCollector(nil).RegisterDriver(&plainDriver{}) {
		t.Error("driver without counters should not be registered")
	}
	if NewCollector(&Config{Enabled: false}).RegisterDriver(&statsDriver{}) {
		t.Error("disabled collector should not register drivers")
	}
}
