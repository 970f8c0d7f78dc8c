package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/objectfs/gateway/pkg/types"
)

// driverCollector exports a driver's own counters at scrape time
type driverCollector struct {
	stats func() types.DriverStats

	requests         *prometheus.Desc
	errors           *prometheus.Desc
	bytes            *prometheus.Desc
	latency          *prometheus.Desc
	multipart        *prometheus.Desc
	multipartParts   *prometheus.Desc
	multipartBytes   *prometheus.Desc
	multipartLatency *prometheus.Desc
	openUploads      *prometheus.Desc
}

// RegisterDriver exports the counters of a driver that keeps its own. It
// reports whether anything was registered.
func (c *Collector) RegisterDriver(driver types.Driver) bool {
	reporter, ok := driver.(types.StatsReporter)
	if !ok || !c.config.Enabled {
		return false
	}
	c.registry.MustRegister(newDriverCollector(c.config, reporter.DriverStats))
	return true
}

func newDriverCollector(config *Config, stats func() types.DriverStats) *driverCollector {
	labels := prometheus.Labels(config.Labels)
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(config.Namespace, config.Subsystem, name),
			help, variable, labels)
	}

	return &driverCollector{
		stats:            stats,
		requests:         desc("backend_requests_total", "Total number of requests the driver sent to its backend"),
		errors:           desc("backend_errors_total", "Total number of failed backend requests"),
		bytes:            desc("backend_bytes_total", "Total bytes moved between the driver and its backend", "direction"),
		latency:          desc("backend_latency_seconds", "Moving average of backend request latency"),
		multipart:        desc("backend_multipart_uploads_total", "Total multipart uploads by outcome", "outcome"),
		multipartParts:   desc("backend_multipart_parts_total", "Total multipart parts uploaded"),
		multipartBytes:   desc("backend_multipart_bytes_total", "Total bytes uploaded in multipart parts"),
		multipartLatency: desc("backend_multipart_latency_seconds", "Moving average of completed multipart upload duration"),
		openUploads:      desc("backend_multipart_open", "Multipart uploads currently open"),
	}
}

func (d *driverCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- d.requests
	ch <- d.errors
	ch <- d.bytes
	ch <- d.latency
	ch <- d.multipart
	ch <- d.multipartParts
	ch <- d.multipartBytes
	ch <- d.multipartLatency
	ch <- d.openUploads
}

func (d *driverCollector) Collect(ch chan<- prometheus.Metric) {
	s := d.stats()

	counter := func(desc *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}
	counter(d.requests, s.Requests)
	counter(d.errors, s.Errors)
	counter(d.bytes, s.BytesUploaded, DirectionWritten)
	counter(d.bytes, s.BytesDownloaded, DirectionRead)
	counter(d.multipart, s.MultipartStarted, "started")
	counter(d.multipart, s.MultipartCompleted, "completed")
	counter(d.multipart, s.MultipartAborted, "aborted")
	counter(d.multipartParts, s.MultipartParts)
	counter(d.multipartBytes, s.MultipartBytes)

	ch <- prometheus.MustNewConstMetric(d.latency, prometheus.GaugeValue, s.AverageLatency.Seconds())
	ch <- prometheus.MustNewConstMetric(d.multipartLatency, prometheus.GaugeValue, s.MultipartLatency.Seconds())
	ch <- prometheus.MustNewConstMetric(d.openUploads, prometheus.GaugeValue, float64(s.OpenUploads))
}
