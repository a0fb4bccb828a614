// Package healthcheck implements periodic health probing for downstream
// services. Probes run through the same guarded clients as user traffic,
// updating breaker state and the metrics collector as dependencies come
// and go.
package healthcheck
