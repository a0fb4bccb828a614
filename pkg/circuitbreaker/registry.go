package circuitbreaker

import "sync"

// Registry hands out one shared breaker per dependency name. It is safe
// for concurrent use and meant to be constructed once and passed around
// by reference.
type Registry struct {
	mutex    sync.RWMutex
	breakers map[string]*Breaker
}

func NewRegistry() *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
	}
}

// GetOrCreate returns the breaker registered under name, creating it
// with cfg when absent. The first creation wins: a later call with a
// different cfg still returns the original breaker.
func (r *Registry) GetOrCreate(name string, cfg Config) *Breaker {
	r.mutex.RLock()
	b, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		return b
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if b, exists = r.breakers[name]; exists {
		return b
	}

	b = New(name, cfg)
	r.breakers[name] = b
	return b
}

// Get looks up a breaker without creating one.
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	b, ok := r.breakers[name]
	return b, ok
}

// snapshot copies the breaker set so per-breaker locks are never taken
// while the registry lock is held.
func (r *Registry) snapshot() []*Breaker {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	return out
}

// AllMetrics snapshots every registered breaker, keyed by name.
func (r *Registry) AllMetrics() map[string]Metrics {
	breakers := r.snapshot()

	all := make(map[string]Metrics, len(breakers))
	for _, b := range breakers {
		all[b.Name()] = b.Metrics()
	}
	return all
}

// ResetAll resets every registered breaker to closed. The breakers stay
// registered.
func (r *Registry) ResetAll() {
	for _, b := range r.snapshot() {
		b.Reset()
	}
}
