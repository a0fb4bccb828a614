// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including server settings, dependency URLs, circuit breaker thresholds, retry
// behavior, and health check intervals.
package config
