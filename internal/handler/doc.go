// Package handler implements the gateway's HTTP surface: the relay that
// forwards requests to downstream services through guarded clients, and
// the operational endpoints for circuit breaker administration.
package handler
