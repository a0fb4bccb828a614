package metrics

import (
	"sort"
	"sync"
	"time"
)

type Metrics struct {
	mutex         sync.RWMutex
	calls         map[string]int64
	rejections    map[string]int64
	outcomes      map[string]map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	currentState  map[string]string
	stateChanges  map[string]int64
	healthStatus  map[string]bool
	startTime     time.Time
}

type Snapshot struct {
	TotalCalls    int64                        `json:"total_calls"`
	TotalRejected int64                        `json:"total_rejected"`
	Uptime        time.Duration                `json:"uptime"`
	Dependencies  map[string]DependencyMetrics `json:"dependencies"`
}

type DependencyMetrics struct {
	Calls        int64            `json:"calls"`
	Rejected     int64            `json:"rejected"`
	Outcomes     map[string]int64 `json:"outcomes"`
	State        string           `json:"state"`
	StateChanges int64            `json:"state_changes"`
	Healthy      bool             `json:"healthy"`
	AvgResponse  time.Duration    `json:"avg_response"`
	P50Response  time.Duration    `json:"p50_response"`
	P95Response  time.Duration    `json:"p95_response"`
	P99Response  time.Duration    `json:"p99_response"`
	StatusCodes  map[int]int64    `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		calls:         make(map[string]int64),
		rejections:    make(map[string]int64),
		outcomes:      make(map[string]map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		currentState:  make(map[string]string),
		stateChanges:  make(map[string]int64),
		healthStatus:  make(map[string]bool),
		startTime:     time.Now(),
	}
}

func (m *Metrics) RecordCall(dependency string, duration time.Duration, statusCode int, outcome string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.calls[dependency]++

	if m.outcomes[dependency] == nil {
		m.outcomes[dependency] = make(map[string]int64)
	}
	m.outcomes[dependency][outcome]++

	m.responseTimes[dependency] = append(m.responseTimes[dependency], duration)

	if len(m.responseTimes[dependency]) > 1000 {
		m.responseTimes[dependency] = m.responseTimes[dependency][1:]
	}

	if statusCode > 0 {
		if m.statusCodes[dependency] == nil {
			m.statusCodes[dependency] = make(map[int]int64)
		}
		m.statusCodes[dependency][statusCode]++
	}
}

func (m *Metrics) RecordRejection(dependency string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejections[dependency]++
}

func (m *Metrics) RecordStateChange(dependency, from, to string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.currentState[dependency] = to
	m.stateChanges[dependency]++
}

func (m *Metrics) UpdateHealthStatus(dependency string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[dependency] = healthy
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:       time.Since(m.startTime),
		Dependencies: make(map[string]DependencyMetrics),
	}

	// Collect all dependency names seen by any event stream.
	allDeps := make(map[string]bool)
	for dep := range m.calls {
		allDeps[dep] = true
	}
	for dep := range m.rejections {
		allDeps[dep] = true
	}
	for dep := range m.currentState {
		allDeps[dep] = true
	}
	for dep := range m.healthStatus {
		allDeps[dep] = true
	}

	for dep := range allDeps {
		snap.TotalCalls += m.calls[dep]
		snap.TotalRejected += m.rejections[dep]

		state, ok := m.currentState[dep]
		if !ok {
			state = "CLOSED"
		}

		dm := DependencyMetrics{
			Calls:        m.calls[dep],
			Rejected:     m.rejections[dep],
			Outcomes:     copyOutcomes(m.outcomes[dep]),
			State:        state,
			StateChanges: m.stateChanges[dep],
			Healthy:      m.healthStatus[dep],
			StatusCodes:  copyStatusCodes(m.statusCodes[dep]),
		}

		durations := m.responseTimes[dep]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			dm.AvgResponse = average(sorted)
			dm.P50Response = percentile(sorted, 0.50)
			dm.P95Response = percentile(sorted, 0.95)
			dm.P99Response = percentile(sorted, 0.99)
		}

		snap.Dependencies[dep] = dm
	}

	return snap
}

// copyOutcomes and copyStatusCodes keep the snapshot detached from the
// live maps so callers can read it without holding the lock.
func copyOutcomes(src map[string]int64) map[string]int64 {
	if src == nil {
		return nil
	}
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyStatusCodes(src map[int]int64) map[int]int64 {
	if src == nil {
		return nil
	}
	dst := make(map[int]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
