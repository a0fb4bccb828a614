package httpclient

import (
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultMaxRetries    = 3
	DefaultBackoffFactor = 500 * time.Millisecond
	DefaultMaxBackoff    = 30 * time.Second
)

// DefaultRetryMethods is the idempotent set. Deployments that accept
// replayed writes can widen it through configuration.
var DefaultRetryMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPut,
	http.MethodDelete,
	http.MethodOptions,
}

// retryStatuses are the only response codes that trigger another
// attempt. Everything else is final.
var retryStatuses = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// RetryPolicy bounds how the transport re-attempts failed calls.
type RetryPolicy struct {
	// MaxRetries caps the attempts made after the first call. Zero
	// means the default; a negative value disables retries.
	MaxRetries int

	// BackoffFactor is the base of the exponential schedule: the n-th
	// retry waits BackoffFactor * 2^(n-1).
	BackoffFactor time.Duration

	// MaxBackoff bounds a single wait.
	MaxBackoff time.Duration

	// Jitter randomizes each wait into [delay/2, delay] so synchronized
	// callers spread out.
	Jitter bool

	// Methods lists the HTTP methods eligible for retry. Nil means
	// DefaultRetryMethods.
	Methods []string
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = DefaultBackoffFactor
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.Methods == nil {
		p.Methods = DefaultRetryMethods
	}
	return p
}

// Backoff returns the wait before the attempt-th retry, 1-based: with
// the default factor that is 0.5s, 1s, 2s, capped by MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BackoffFactor <= 0 {
		return 0
	}

	delay := p.BackoffFactor
	for i := 1; i < attempt; i++ {
		next := delay * 2
		if next <= 0 || (p.MaxBackoff > 0 && next >= p.MaxBackoff) {
			// Schedule saturated, doubling further would overflow or
			// exceed the cap.
			if p.MaxBackoff > 0 {
				delay = p.MaxBackoff
			}
			break
		}
		delay = next
	}

	if p.Jitter && delay > 0 {
		half := delay / 2
		delay = half + time.Duration(rand.Int63n(int64(half)+1))
	}
	return delay
}

func (p RetryPolicy) methodSet() map[string]bool {
	set := make(map[string]bool, len(p.Methods))
	for _, m := range p.Methods {
		set[strings.ToUpper(m)] = true
	}
	return set
}
