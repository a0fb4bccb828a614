package httpclient_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/roomhive/interservice/pkg/httpclient"
)

func fastRetry(maxRetries int) httpclient.RetryPolicy {
	return httpclient.RetryPolicy{
		MaxRetries:    maxRetries,
		BackoffFactor: time.Millisecond,
		MaxBackoff:    5 * time.Millisecond,
	}
}

func newTransport(baseURL string, retry httpclient.RetryPolicy) *httpclient.HTTPClient {
	client, err := httpclient.NewHTTPClient(baseURL, httpclient.TransportConfig{
		Retry:  retry,
		Logger: quietLogger(),
	})
	Expect(err).NotTo(HaveOccurred())
	return client
}

// flakyServer fails the first failures hits with status, then answers
// 200 with a small JSON body.
type flakyServer struct {
	mu       sync.Mutex
	hits     int
	failures int
	status   int
	ids      []string
	bodies   []string
}

func newFlakyServer(failures, status int) (*flakyServer, *httptest.Server) {
	fs := &flakyServer{failures: failures, status: status}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		fs.mu.Lock()
		fs.hits++
		hit := fs.hits
		fs.ids = append(fs.ids, r.Header.Get("X-Request-ID"))
		fs.bodies = append(fs.bodies, string(body))
		fs.mu.Unlock()

		if hit <= fs.failures {
			w.WriteHeader(fs.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	return fs, server
}

func (f *flakyServer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

func (f *flakyServer) requestIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func (f *flakyServer) requestBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

var _ = Describe("HTTPClient", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("NewHTTPClient", func() {
		It("should reject an empty base URL", func() {
			_, err := httpclient.NewHTTPClient("", httpclient.TransportConfig{})
			Expect(err).To(HaveOccurred())
		})

		It("should reject a relative base URL", func() {
			_, err := httpclient.NewHTTPClient("/api/users", httpclient.TransportConfig{})
			Expect(err).To(HaveOccurred())
		})

		It("should accept an absolute base URL", func() {
			client, err := httpclient.NewHTTPClient("http://localhost:5001", httpclient.TransportConfig{})
			Expect(err).NotTo(HaveOccurred())
			Expect(client.BaseURL()).To(Equal("http://localhost:5001"))
		})

		It("should trim a trailing slash from the base URL", func() {
			client, err := httpclient.NewHTTPClient("http://localhost:5001/", httpclient.TransportConfig{})
			Expect(err).NotTo(HaveOccurred())
			Expect(client.BaseURL()).To(Equal("http://localhost:5001"))
		})
	})

	Describe("Retries", func() {
		It("should retry server errors until one attempt succeeds", func() {
			fs, server := newFlakyServer(2, http.StatusInternalServerError)
			defer server.Close()

			client := newTransport(server.URL, fastRetry(3))

			resp, err := client.Get(ctx, "/api/rooms")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(fs.count()).To(Equal(3))
		})

		It("should give up once the retry budget is spent", func() {
			fs, server := newFlakyServer(100, http.StatusServiceUnavailable)
			defer server.Close()

			client := newTransport(server.URL, fastRetry(2))

			_, err := client.Get(ctx, "/api/rooms")
			var statusErr *httpclient.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(fs.count()).To(Equal(3))
		})

		It("should retry each of the transient statuses", func() {
			for _, status := range []int{
				http.StatusInternalServerError,
				http.StatusBadGateway,
				http.StatusServiceUnavailable,
				http.StatusGatewayTimeout,
			} {
				fs, server := newFlakyServer(1, status)
				client := newTransport(server.URL, fastRetry(2))

				resp, err := client.Get(ctx, "/api/rooms")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(fs.count()).To(Equal(2))
				server.Close()
			}
		})

		It("should not retry client errors", func() {
			fs, server := newFlakyServer(100, http.StatusNotFound)
			defer server.Close()

			client := newTransport(server.URL, fastRetry(3))

			_, err := client.Get(ctx, "/api/rooms/99")
			var statusErr *httpclient.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.StatusCode).To(Equal(http.StatusNotFound))
			Expect(fs.count()).To(Equal(1))
		})

		It("should not retry methods outside the retry-safe set", func() {
			fs, server := newFlakyServer(100, http.StatusInternalServerError)
			defer server.Close()

			client := newTransport(server.URL, fastRetry(3))

			_, err := client.Post(ctx, "/api/bookings")
			var statusErr *httpclient.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(fs.count()).To(Equal(1))
		})

		It("should retry widened methods when configured", func() {
			fs, server := newFlakyServer(2, http.StatusInternalServerError)
			defer server.Close()

			retry := fastRetry(3)
			retry.Methods = []string{"get", "post"}
			client := newTransport(server.URL, retry)

			resp, err := client.Post(ctx, "/api/bookings")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(fs.count()).To(Equal(3))
		})

		It("should resend the body on every attempt", func() {
			fs, server := newFlakyServer(2, http.StatusInternalServerError)
			defer server.Close()

			client := newTransport(server.URL, fastRetry(3))

			resp, err := client.Put(ctx, "/api/rooms/1",
				httpclient.WithJSONBody(map[string]string{"name": "Atlas"}))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			bodies := fs.requestBodies()
			Expect(bodies).To(HaveLen(3))
			for _, body := range bodies {
				Expect(body).To(MatchJSON(`{"name":"Atlas"}`))
			}
		})

		It("should drain failed responses so the connection is reused", func() {
			var mu sync.Mutex
			hits := 0
			newConns := 0

			server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				hits++
				hit := hits
				mu.Unlock()

				if hit <= 2 {
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"transient failure with a body worth draining"}`))
					return
				}
				w.Write([]byte(`{"ok":true}`))
			}))
			server.Config.ConnState = func(conn net.Conn, state http.ConnState) {
				if state == http.StateNew {
					mu.Lock()
					newConns++
					mu.Unlock()
				}
			}
			server.Start()
			defer server.Close()

			client := newTransport(server.URL, fastRetry(3))

			resp, err := client.Get(ctx, "/api/rooms")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			mu.Lock()
			defer mu.Unlock()
			Expect(hits).To(Equal(3))
			Expect(newConns).To(Equal(1))
		})

		It("should return UnavailableError when the dependency is unreachable", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			deadURL := server.URL
			server.Close()

			client := newTransport(deadURL, fastRetry(1))

			_, err := client.Get(ctx, "/api/rooms")
			var unavailable *httpclient.UnavailableError
			Expect(errors.As(err, &unavailable)).To(BeTrue())
		})

		It("should stop retrying when the context is cancelled", func() {
			fs, server := newFlakyServer(100, http.StatusInternalServerError)
			defer server.Close()

			retry := httpclient.RetryPolicy{MaxRetries: 5, BackoffFactor: 5 * time.Second}
			client := newTransport(server.URL, retry)

			cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err := client.Get(cancelCtx, "/api/rooms")
			Expect(err).To(HaveOccurred())
			Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))
			Expect(fs.count()).To(Equal(1))
		})
	})

	Describe("Request metadata", func() {
		It("should attach one request ID and keep it across attempts", func() {
			fs, server := newFlakyServer(1, http.StatusBadGateway)
			defer server.Close()

			client := newTransport(server.URL, fastRetry(2))

			resp, err := client.Get(ctx, "/api/rooms")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			ids := fs.requestIDs()
			Expect(ids).To(HaveLen(2))
			Expect(ids[0]).NotTo(BeEmpty())
			Expect(ids[1]).To(Equal(ids[0]))
		})

		It("should keep a caller-provided request ID", func() {
			fs, server := newFlakyServer(0, http.StatusOK)
			defer server.Close()

			client := newTransport(server.URL, fastRetry(2))

			resp, err := client.Get(ctx, "/api/rooms",
				httpclient.WithHeader("X-Request-ID", "fixed-id"))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(fs.requestIDs()).To(Equal([]string{"fixed-id"}))
		})

		It("should encode query parameters", func() {
			var mu sync.Mutex
			var query string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				query = r.URL.RawQuery
				mu.Unlock()
				w.Write([]byte(`{}`))
			}))
			defer server.Close()

			client := newTransport(server.URL, fastRetry(1))

			resp, err := client.Get(ctx, "/api/rooms",
				httpclient.WithQuery("building", "HQ"),
				httpclient.WithQuery("floor", "2"))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			mu.Lock()
			defer mu.Unlock()
			Expect(query).To(Equal("building=HQ&floor=2"))
		})

		It("should default the Accept header to JSON", func() {
			var mu sync.Mutex
			var accept, contentType string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				accept = r.Header.Get("Accept")
				contentType = r.Header.Get("Content-Type")
				mu.Unlock()
				w.Write([]byte(`{}`))
			}))
			defer server.Close()

			client := newTransport(server.URL, fastRetry(1))

			resp, err := client.Post(ctx, "/api/bookings",
				httpclient.WithJSONBody(map[string]int{"room_id": 1}))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			mu.Lock()
			defer mu.Unlock()
			Expect(accept).To(Equal("application/json"))
			Expect(contentType).To(Equal("application/json"))
		})
	})

	Describe("RetryPolicy", func() {
		It("should double the backoff per attempt", func() {
			policy := httpclient.RetryPolicy{BackoffFactor: 100 * time.Millisecond, MaxBackoff: time.Minute}
			Expect(policy.Backoff(1)).To(Equal(100 * time.Millisecond))
			Expect(policy.Backoff(2)).To(Equal(200 * time.Millisecond))
			Expect(policy.Backoff(3)).To(Equal(400 * time.Millisecond))
		})

		It("should cap the backoff at MaxBackoff", func() {
			policy := httpclient.RetryPolicy{BackoffFactor: time.Second, MaxBackoff: 3 * time.Second}
			Expect(policy.Backoff(2)).To(Equal(2 * time.Second))
			Expect(policy.Backoff(3)).To(Equal(3 * time.Second))
			Expect(policy.Backoff(10)).To(Equal(3 * time.Second))
		})

		It("should return zero for attempt zero", func() {
			policy := httpclient.RetryPolicy{BackoffFactor: time.Second}
			Expect(policy.Backoff(0)).To(BeZero())
		})

		It("should keep jittered waits inside the half-to-full window", func() {
			policy := httpclient.RetryPolicy{
				BackoffFactor: time.Second,
				MaxBackoff:    time.Minute,
				Jitter:        true,
			}
			for i := 0; i < 50; i++ {
				d := policy.Backoff(2)
				Expect(d).To(BeNumerically(">=", time.Second))
				Expect(d).To(BeNumerically("<=", 2*time.Second))
			}
		})
	})
})
