package httpclient

import "fmt"

// UnavailableError marks a dependency that could not be reached at all:
// connection refused, DNS failure, or a timed out request.
type UnavailableError struct {
	URL string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("service unavailable: %s: %v", e.URL, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// StatusError is a call that reached the dependency but failed anyway.
// StatusCode carries the final HTTP status once the retry budget is
// spent; zero means the request died before any status was received,
// with the cause in Err.
type StatusError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request failed: %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
