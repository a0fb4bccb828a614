// Package httpclient is the outgoing side of the platform's service
// mesh: a pooled, retrying HTTP transport wrapped by circuit breakers.
//
// HTTPClient retries transient failures (connection errors and the
// 500/502/503/504 statuses) with exponential backoff, for retry-safe
// methods only. ServiceClient adds the breaker on top; each JSON verb
// is exactly one guarded call, so a request that exhausts its retries
// counts as a single failure.
//
//	registry := circuitbreaker.NewRegistry()
//	sc, err := httpclient.NewServiceClient(httpclient.ClientConfig{
//	    Name:    "users-service",
//	    BaseURL: "http://localhost:5001",
//	}, registry)
//	if err != nil {
//	    return err
//	}
//	users := httpclient.NewUsersClient(sc)
//	user, err := users.GetUser(ctx, 42, token)
//
// Failures are typed: *UnavailableError when the dependency cannot be
// reached, *StatusError for a failing response, and the breaker's
// *circuitbreaker.OpenError when calls are being rejected. Statuses in
// the excluded set, 4xx caller faults by default, propagate as errors
// without counting against the dependency.
package httpclient
