package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventCallCompleted EventType = "call_completed"
	EventCallRejected  EventType = "call_rejected"
	EventStateChanged  EventType = "state_changed"
	EventHealthChanged EventType = "health_changed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Dependency string
	Duration   time.Duration
	StatusCode int
	Outcome    string
	From       string
	To         string
	Healthy    bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	prom    *promMetrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		prom:    newPromMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit enqueues an event without blocking. Events are dropped when the
// buffer is full; breaker callbacks run under the breaker lock and must
// never wait on the collector.
func (c *Collector) Emit(event MetricEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("metrics buffer full, dropping event",
			slog.String("type", string(event.Type)),
			slog.String("dependency", event.Dependency),
		)
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("metrics collector started")
	defer c.logger.Info("metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	c.prom.observe(event)

	switch event.Type {
	case EventCallCompleted:
		c.metrics.RecordCall(event.Dependency, event.Duration, event.StatusCode, event.Outcome)

	case EventCallRejected:
		c.metrics.RecordRejection(event.Dependency)

	case EventStateChanged:
		c.metrics.RecordStateChange(event.Dependency, event.From, event.To)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Dependency, event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
