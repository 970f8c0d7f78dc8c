package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectfs/gateway/pkg/types"
)

// Byte directions
const (
	DirectionRead    = "read"
	DirectionWritten = "written"
)

// Collector records gateway metrics into a private Prometheus registry
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	// Prometheus metrics
	rpcCounter        *prometheus.CounterVec
	rpcDuration       *prometheus.HistogramVec
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationSize     *prometheus.HistogramVec
	bytesCounter      *prometheus.CounterVec
	cacheCounter      *prometheus.CounterVec
	inFlight          prometheus.Gauge

	// Internal tracking
	operations map[string]*OperationMetrics
	lastReset  time.Time
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
	Labels    map[string]string `yaml:"labels"`
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalSize     int64         `json:"total_size"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

var _ types.MetricsCollector = (*Collector)(nil)

// NewCollector creates a new metrics collector. A disabled collector accepts
// every call and records nothing.
func NewCollector(config *Config) *Collector {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Namespace: "gateway",
		}
	}

	c := &Collector{
		config:     config,
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}
	if !config.Enabled {
		return c
	}

	c.registry = prometheus.NewRegistry()
	c.initMetrics()
	c.registry.MustRegister(
		c.rpcCounter,
		c.rpcDuration,
		c.operationCounter,
		c.operationDuration,
		c.operationSize,
		c.bytesCounter,
		c.cacheCounter,
		c.inFlight,
	)
	return c
}

// Enabled reports whether metrics are recorded
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Registry returns the registry metrics are recorded in, or nil when
// disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if !c.config.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordRPC records one completed RPC with its status code name
func (c *Collector) RecordRPC(method, code string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.rpcCounter.WithLabelValues(method, code).Inc()
	c.rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns the matching
// decrement.
func (c *Collector) TrackInFlight() func() {
	if !c.config.Enabled {
		return func() {}
	}
	c.inFlight.Inc()
	return c.inFlight.Dec
}

// RecordOperation records a storage operation with its metrics
func (c *Collector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	m, ok := c.operations[operation]
	if !ok {
		m = &OperationMetrics{}
		c.operations[operation] = m
	}
	m.Count++
	m.TotalDuration += duration
	m.TotalSize += size
	if !success {
		m.Errors++
	}
	m.LastOperation = time.Now()
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)
	c.mu.Unlock()

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.WithLabelValues(operation, status).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if size > 0 {
		c.operationSize.WithLabelValues(operation).Observe(float64(size))
	}
}

// RecordBytes adds n to the read or written byte counter
func (c *Collector) RecordBytes(direction string, n int64) {
	if !c.config.Enabled || n <= 0 {
		return
	}
	c.bytesCounter.WithLabelValues(direction).Add(float64(n))
}

// RecordCacheHit records a cache hit for an entry kind
func (c *Collector) RecordCacheHit(kind string) {
	if !c.config.Enabled {
		return
	}
	c.cacheCounter.WithLabelValues(kind, "hit").Inc()
}

// RecordCacheMiss records a cache miss for an entry kind
func (c *Collector) RecordCacheMiss(kind string) {
	if !c.config.Enabled {
		return
	}
	c.cacheCounter.WithLabelValues(kind, "miss").Inc()
}

// GetOperations returns a copy of the per-operation summaries
func (c *Collector) GetOperations() map[string]OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		out[k] = *v
	}
	return out
}

// ResetOperations clears the per-operation summaries. Prometheus series are
// cumulative and are not reset.
func (c *Collector) ResetOperations() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

// Helper methods

func (c *Collector) initMetrics() {
	labels := prometheus.Labels(c.config.Labels)

	c.rpcCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "rpc_requests_total",
			Help:        "Total number of RPCs by method and status code",
			ConstLabels: labels,
		},
		[]string{"method", "code"},
	)

	c.rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "rpc_duration_seconds",
			Help:        "Duration of RPCs in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			ConstLabels: labels,
		},
		[]string{"method"},
	)

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "operations_total",
			Help:        "Total number of storage operations",
			ConstLabels: labels,
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "operation_duration_seconds",
			Help:        "Duration of storage operations in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 15),
			ConstLabels: labels,
		},
		[]string{"operation"},
	)

	c.operationSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "operation_size_bytes",
			Help:        "Size of transferred payloads in bytes",
			Buckets:     prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to 256GiB
			ConstLabels: labels,
		},
		[]string{"operation"},
	)

	c.bytesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "bytes_total",
			Help:        "Total payload bytes streamed to and from clients",
			ConstLabels: labels,
		},
		[]string{"direction"},
	)

	c.cacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "cache_requests_total",
			Help:        "Total number of cache lookups by entry kind and result",
			ConstLabels: labels,
		},
		[]string{"kind", "result"},
	)

	c.inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "rpc_in_flight",
			Help:        "Number of RPCs currently being served",
			ConstLabels: labels,
		},
	)
}
