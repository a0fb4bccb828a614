package circuitbreaker

import (
	"fmt"
	"time"
)

// OpenError is returned when a call is rejected by an open breaker.
// RetryAfter is how long the open window has left; callers may use it
// to back off instead of retrying immediately.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry after %s", e.Name, e.RetryAfter.Round(time.Millisecond))
}
