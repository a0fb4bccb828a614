package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promMetrics mirrors the event stream into a Prometheus registry. Each
// collector owns its own registry so tests can build collectors freely
// without duplicate registration panics.
type promMetrics struct {
	registry     *prometheus.Registry
	breakerState *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
	calls        *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	dependencyUp *prometheus.GaugeVec
}

func newPromMetrics() *promMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &promMetrics{
		registry: registry,
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "interservice_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"dependency"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "interservice_breaker_transitions_total",
			Help: "Circuit breaker state transitions by source and target state.",
		}, []string{"dependency", "from", "to"}),
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "interservice_calls_total",
			Help: "Guarded dependency calls by outcome.",
		}, []string{"dependency", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interservice_call_duration_seconds",
			Help:    "Duration of completed dependency calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dependency"}),
		dependencyUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "interservice_dependency_up",
			Help: "Last health probe result per dependency (1=up, 0=down).",
		}, []string{"dependency"}),
	}
}

func (p *promMetrics) observe(event MetricEvent) {
	switch event.Type {
	case EventCallCompleted:
		p.calls.WithLabelValues(event.Dependency, event.Outcome).Inc()
		p.duration.WithLabelValues(event.Dependency).Observe(event.Duration.Seconds())

	case EventCallRejected:
		p.calls.WithLabelValues(event.Dependency, "rejected").Inc()

	case EventStateChanged:
		p.transitions.WithLabelValues(event.Dependency, event.From, event.To).Inc()
		p.breakerState.WithLabelValues(event.Dependency).Set(stateValue(event.To))

	case EventHealthChanged:
		value := 0.0
		if event.Healthy {
			value = 1.0
		}
		p.dependencyUp.WithLabelValues(event.Dependency).Set(value)
	}
}

func stateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 1
	case "HALF-OPEN":
		return 2
	default:
		return 0
	}
}

// PrometheusHandler serves the collector's registry in the text
// exposition format.
func (c *Collector) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(c.prom.registry, promhttp.HandlerOpts{})
}
