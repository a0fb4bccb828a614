// Package metrics provides real-time metrics collection for the relay.
//
// It uses a channel-based event pipeline to asynchronously collect metrics about:
//   - Guarded call counts and outcomes per dependency
//   - Fail-fast rejections while a circuit is open
//   - Response times with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution
//   - Circuit breaker state transitions and health probe results
//
// The collector runs in a dedicated goroutine and processes events without blocking
// the request path. Emit performs a non-blocking send so callers running under a
// breaker lock never wait on the collector; events are dropped when the buffer
// is full.
//
// Example usage:
//
//	collector := metrics.NewCollector(1024, logger)
//	collector.Start(ctx)
//
//	// Emit events during request handling
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventCallCompleted,
//		Dependency: "users",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//		Outcome:    "success",
//	})
//
//	// Get metrics snapshot
//	snapshot := collector.Snapshot()
//
// Every event is also mirrored into a per-collector Prometheus registry served
// by PrometheusHandler. The package supports graceful shutdown with event
// draining to prevent data loss.
package metrics
