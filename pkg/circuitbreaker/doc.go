// Package circuitbreaker implements the circuit breaker pattern for
// calls between services.
//
// A breaker prevents cascading failures by rejecting calls to a
// dependency that keeps failing. It has three states:
//
//   - CLOSED: Normal operation, calls pass through
//   - OPEN: Dependency failing, calls rejected with *OpenError
//   - HALF-OPEN: Probing whether the dependency recovered
//
// Breakers are shared per dependency through a Registry, and calls are
// wrapped with Execute or the typed Do:
//
//	registry := circuitbreaker.NewRegistry()
//	cb := registry.GetOrCreate("users-service", circuitbreaker.Config{})
//	user, err := circuitbreaker.Do(cb, func() (*User, error) {
//	    return fetchUser(ctx, id)
//	})
//
// A Classifier can mark certain errors as excluded, typically those
// caused by bad caller input, so they propagate without counting
// against the dependency.
package circuitbreaker
