package circuitbreaker

import "time"

// Metrics is a point-in-time snapshot of one breaker, shaped for the
// JSON admin surface.
type Metrics struct {
	Name             string     `json:"name"`
	State            string     `json:"state"`
	FailureCount     int        `json:"failure_count"`
	SuccessCount     int        `json:"success_count"`
	TotalCalls       int64      `json:"total_calls"`
	TotalFailures    int64      `json:"total_failures"`
	TotalSuccesses   int64      `json:"total_successes"`
	StateChanges     int        `json:"state_changes"`
	LastFailureTime  *time.Time `json:"last_failure_time,omitempty"`
	FailureThreshold int        `json:"failure_threshold"`
	TimeoutSeconds   float64    `json:"timeout_seconds"`
	SuccessThreshold int        `json:"success_threshold"`
}

// Metrics snapshots the breaker under its own lock.
func (b *Breaker) Metrics() Metrics {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	m := Metrics{
		Name:             b.name,
		State:            b.state.String(),
		FailureCount:     b.failureCount,
		SuccessCount:     b.successCount,
		TotalCalls:       b.totalCalls,
		TotalFailures:    b.totalFailures,
		TotalSuccesses:   b.totalSuccesses,
		StateChanges:     len(b.transitions),
		FailureThreshold: b.cfg.FailureThreshold,
		TimeoutSeconds:   b.cfg.Timeout.Seconds(),
		SuccessThreshold: b.cfg.SuccessThreshold,
	}
	if !b.lastFailureTime.IsZero() {
		t := b.lastFailureTime
		m.LastFailureTime = &t
	}
	return m
}
