package healthcheck

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roomhive/interservice/internal/metrics"
	"github.com/roomhive/interservice/pkg/circuitbreaker"
	"github.com/roomhive/interservice/pkg/httpclient"
)

// HealthCheck periodically probes a dependency through its guarded client.
// Probe outcomes feed the dependency's circuit breaker, so a recovered
// service closes its breaker on the next probe instead of waiting for
// user traffic to trickle through the half-open window.
func HealthCheck(
	ctx context.Context,
	name string,
	client *httpclient.ServiceClient,
	interval time.Duration,
	collector *metrics.Collector,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	known := false
	healthy := false

	for {
		select {
		case <-ctx.Done():
			logger.Info("health check stopped", slog.String("dependency", name))
			return

		case <-ticker.C:
			status, err := client.Health(ctx)

			var openErr *circuitbreaker.OpenError
			if errors.As(err, &openErr) {
				// The breaker rejected the probe without touching the wire,
				// so the last known status stands.
				continue
			}

			up := err == nil
			changed := !known || healthy != up
			known = true
			healthy = up

			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventHealthChanged,
				Timestamp:  time.Now(),
				Dependency: name,
				Healthy:    up,
			})

			if !changed {
				continue
			}

			if up {
				logger.Info("dependency is back up",
					slog.String("dependency", name),
					slog.String("service", status.Service))
			} else {
				logger.Warn("dependency is down",
					slog.String("dependency", name),
					slog.String("error", err.Error()))
			}
		}
	}
}
