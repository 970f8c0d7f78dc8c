/*
Package metrics provides Prometheus metrics collection for the storage gateway.

# Overview

A Collector owns a private Prometheus registry and records RPC traffic,
storage operations, streamed bytes and cache lookups. It is served by the
ops HTTP server under /metrics.

Architecture

	┌─────────────┐
	│  Collector  │  ← RPC interceptor, read/write handlers, cache tier
	└──────┬──────┘
	       │
	   ┌───┴────────────────────────────┐
	   │                                │
	┌──▼───────────┐         ┌─────────▼───────┐
	│  Prometheus  │         │  Handler()      │
	│   Registry   │         │  /metrics       │
	│              │         └─────────────────┘
	│ - Counters   │
	│ - Histograms │
	│ - Gauges     │
	└──────────────┘

# Core Components

	collector := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Namespace: "gateway",
	})
	mux.Handle("/metrics", collector.Handler())

A collector built with Enabled set to false accepts every call and records
nothing, so callers never need to check for nil.

# Recording RPCs

The server interceptor brackets every call:

	done := collector.TrackInFlight()
	defer done()
	start := time.Now()
	err := handler(ctx, req)
	collector.RecordRPC(info.FullMethod, status.Code(err).String(), time.Since(start))

# Recording Operations

	start := time.Now()
	n, err := driver.WriteStream(ctx, path, src, opts)
	collector.RecordOperation("write", time.Since(start), n, err == nil)
	collector.RecordBytes(metrics.DirectionWritten, n)

# Cache Metrics

The cache tier reports lookups by entry kind ("stat" or "data"):

	collector.RecordCacheHit("stat")
	collector.RecordCacheMiss("data")

# Exported Series

	<ns>_rpc_requests_total{method,code}
	<ns>_rpc_duration_seconds{method}
	<ns>_rpc_in_flight
	<ns>_operations_total{operation,status}
	<ns>_operation_duration_seconds{operation}
	<ns>_operation_size_bytes{operation}
	<ns>_bytes_total{direction}
	<ns>_cache_requests_total{kind,result}

# Thread Safety

All Collector methods are safe for concurrent use.
*/
package metrics
