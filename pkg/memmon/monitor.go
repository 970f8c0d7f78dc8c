// Package memmon samples Go runtime memory statistics and warns about
// sustained heap or goroutine growth. The latest sample is exported as a
// flat metric map for the Info service.
package memmon

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// MonitorConfig configures memory monitoring behavior
type MonitorConfig struct {
	// SampleInterval is how often to collect memory stats
	SampleInterval time.Duration

	// AlertThreshold is the percentage of heap growth over the baseline
	// that triggers an alert
	AlertThreshold float64

	// GoroutineThreshold is the percentage of goroutine growth that
	// triggers an alert
	GoroutineThreshold float64

	// MaxSamples is the number of samples to keep in history
	MaxSamples int

	// MaxAlerts bounds the alert history
	MaxAlerts int
}

// DefaultMonitorConfig returns sensible defaults
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		SampleInterval:     30 * time.Second,
		AlertThreshold:     50.0,
		GoroutineThreshold: 100.0,
		MaxSamples:         100,
		MaxAlerts:          50,
	}
}

// MemorySample represents a memory usage sample
type MemorySample struct {
	Timestamp    time.Time
	HeapAlloc    uint64 // bytes allocated in heap and still in use
	HeapSys      uint64 // bytes obtained from system for heap
	HeapIdle     uint64 // bytes in idle spans
	Sys          uint64 // bytes obtained from system
	NumGC        uint32 // number of completed GC cycles
	PauseTotalNs uint64 // cumulative nanoseconds in GC stop-the-world pauses
	NumGoroutine int
}

// AlertType represents the type of memory alert
type AlertType int

const (
	AlertTypeMemoryGrowth AlertType = iota
	AlertTypeGoroutineLeak
)

func (t AlertType) String() string {
	switch t {
	case AlertTypeMemoryGrowth:
		return "memory_growth"
	case AlertTypeGoroutineLeak:
		return "goroutine_leak"
	default:
		return "unknown"
	}
}

// MemoryAlert represents a memory alert
type MemoryAlert struct {
	Timestamp time.Time
	AlertType AlertType
	Message   string
	Current   uint64
	Baseline  uint64
	GrowthPct float64
}

// MemoryStats provides memory statistics
type MemoryStats struct {
	CurrentSample       MemorySample
	BaselineSample      MemorySample
	SampleCount         int
	AlertCount          int
	GrowthSinceBaseline float64
}

// MemoryMonitor tracks memory usage and detects potential leaks
type MemoryMonitor struct {
	config MonitorConfig
	logger *zap.Logger
	read   func() MemorySample

	mu          sync.RWMutex
	samples     []MemorySample
	baselineSet bool
	baseline    MemorySample
	current     MemorySample
	alerts      []MemoryAlert

	stopCh chan struct{}
	wg     sync.WaitGroup
	active int32
}

// NewMemoryMonitor creates a monitor. It samples nothing until Start or
// Sample is called.
func NewMemoryMonitor(config MonitorConfig, logger *zap.Logger) *MemoryMonitor {
	defaults := DefaultMonitorConfig()
	if config.SampleInterval <= 0 {
		config.SampleInterval = defaults.SampleInterval
	}
	if config.AlertThreshold <= 0 {
		config.AlertThreshold = defaults.AlertThreshold
	}
	if config.GoroutineThreshold <= 0 {
		config.GoroutineThreshold = defaults.GoroutineThreshold
	}
	if config.MaxSamples <= 0 {
		config.MaxSamples = defaults.MaxSamples
	}
	if config.MaxAlerts <= 0 {
		config.MaxAlerts = defaults.MaxAlerts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MemoryMonitor{
		config:  config,
		logger:  logger.With(zap.String("component", "memmon")),
		read:    readRuntime,
		samples: make([]MemorySample, 0, config.MaxSamples),
		stopCh:  make(chan struct{}),
	}
}

// Start begins periodic sampling until ctx is done or Stop is called
func (mm *MemoryMonitor) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&mm.active, 0, 1) {
		return fmt.Errorf("monitor already running")
	}

	mm.logger.Debug("Starting memory monitor",
		zap.Duration("sample_interval", mm.config.SampleInterval),
		zap.Float64("alert_threshold", mm.config.AlertThreshold))

	mm.wg.Add(1)
	go mm.monitorLoop(ctx)
	return nil
}

// Stop stops sampling and waits for the loop to exit
func (mm *MemoryMonitor) Stop() {
	if !atomic.CompareAndSwapInt32(&mm.active, 1, 0) {
		return
	}
	close(mm.stopCh)
	mm.wg.Wait()
}

func (mm *MemoryMonitor) monitorLoop(ctx context.Context) {
	defer mm.wg.Done()

	ticker := time.NewTicker(mm.config.SampleInterval)
	defer ticker.Stop()

	mm.Sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-mm.stopCh:
			return
		case <-ticker.C:
			mm.Sample()
		}
	}
}

// Sample records one sample and checks it against the baseline. The first
// sample becomes the baseline.
func (mm *MemoryMonitor) Sample() MemorySample {
	sample := mm.read()

	mm.mu.Lock()
	defer mm.mu.Unlock()

	if !mm.baselineSet {
		mm.baseline = sample
		mm.baselineSet = true
	}
	mm.current = sample

	mm.samples = append(mm.samples, sample)
	if len(mm.samples) > mm.config.MaxSamples {
		mm.samples = mm.samples[1:]
	}

	mm.analyze()
	return sample
}

// analyze must be called with the lock held
func (mm *MemoryMonitor) analyze() {
	if len(mm.samples) < 2 {
		return
	}

	if pct := growth(mm.current.HeapAlloc, mm.baseline.HeapAlloc); pct > mm.config.AlertThreshold {
		mm.alert(AlertTypeMemoryGrowth,
			fmt.Sprintf("heap grew %.1f%% over baseline", pct),
			mm.current.HeapAlloc, mm.baseline.HeapAlloc, pct)
	}

	current, baseline := uint64(mm.current.NumGoroutine), uint64(mm.baseline.NumGoroutine)
	if pct := growth(current, baseline); pct > mm.config.GoroutineThreshold {
		mm.alert(AlertTypeGoroutineLeak,
			fmt.Sprintf("goroutine count grew %.1f%% over baseline", pct),
			current, baseline, pct)
	}
}

func (mm *MemoryMonitor) alert(alertType AlertType, message string, current, baseline uint64, pct float64) {
	mm.alerts = append(mm.alerts, MemoryAlert{
		Timestamp: mm.current.Timestamp,
		AlertType: alertType,
		Message:   message,
		Current:   current,
		Baseline:  baseline,
		GrowthPct: pct,
	})
	if len(mm.alerts) > mm.config.MaxAlerts {
		mm.alerts = mm.alerts[1:]
	}

	mm.logger.Warn("Memory alert",
		zap.Stringer("type", alertType),
		zap.String("message", message),
		zap.Uint64("current", current),
		zap.Uint64("baseline", baseline))
}

func growth(current, baseline uint64) float64 {
	if baseline == 0 {
		return 0
	}
	return (float64(current) - float64(baseline)) / float64(baseline) * 100
}

// GetStats returns current memory statistics
func (mm *MemoryMonitor) GetStats() MemoryStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	return MemoryStats{
		CurrentSample:       mm.current,
		BaselineSample:      mm.baseline,
		SampleCount:         len(mm.samples),
		AlertCount:          len(mm.alerts),
		GrowthSinceBaseline: growth(mm.current.HeapAlloc, mm.baseline.HeapAlloc),
	}
}

// GetAlerts returns a copy of the alert history
func (mm *MemoryMonitor) GetAlerts() []MemoryAlert {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return append([]MemoryAlert(nil), mm.alerts...)
}

// ResetBaseline makes the next sample the new baseline
func (mm *MemoryMonitor) ResetBaseline() {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.baselineSet = false
	mm.alerts = nil
}

// Metrics returns the latest sample as integer gauges. Before the first
// sample it returns an empty map.
func (mm *MemoryMonitor) Metrics() map[string]int64 {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	if len(mm.samples) == 0 {
		return map[string]int64{}
	}
	s := mm.current
	return map[string]int64{
		"heap_alloc_bytes":  int64(s.HeapAlloc),
		"heap_sys_bytes":    int64(s.HeapSys),
		"sys_bytes":         int64(s.Sys),
		"gc_cycles":         int64(s.NumGC),
		"gc_pause_total_ms": int64(time.Duration(s.PauseTotalNs) / time.Millisecond),
		"goroutines":        int64(s.NumGoroutine),
	}
}

func readRuntime() MemorySample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemorySample{
		Timestamp:    time.Now(),
		HeapAlloc:    ms.HeapAlloc,
		HeapSys:      ms.HeapSys,
		HeapIdle:     ms.HeapIdle,
		Sys:          ms.Sys,
		NumGC:        ms.NumGC,
		PauseTotalNs: ms.PauseTotalNs,
		NumGoroutine: runtime.NumGoroutine(),
	}
}
