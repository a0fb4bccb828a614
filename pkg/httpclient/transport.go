package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/go-ozzo/ozzo-validation/is"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

const (
	DefaultRequestTimeout      = 10 * time.Second
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 20
	DefaultIdleConnTimeout     = 90 * time.Second
)

const requestIDHeader = "X-Request-ID"

// TransportConfig tunes the pooled client under an HTTPClient. The zero
// value gives the package defaults.
type TransportConfig struct {
	Timeout             time.Duration // whole-request deadline
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	Retry               RetryPolicy
	Logger              *slog.Logger
}

func (c TransportConfig) withDefaults() TransportConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultRequestTimeout
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = DefaultIdleConnTimeout
	}
	c.Retry = c.Retry.withDefaults()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// HTTPClient is a pooled HTTP client bound to one base URL, with
// bounded retries for transient failures. Responses below status 400
// are returned to the caller, everything else surfaces as a typed
// error once the retry budget is spent.
type HTTPClient struct {
	baseURL      string
	client       *http.Client
	retry        RetryPolicy
	retryMethods map[string]bool
	log          *slog.Logger
}

// NewHTTPClient validates the base URL and builds the client.
func NewHTTPClient(baseURL string, cfg TransportConfig) (*HTTPClient, error) {
	if err := validation.Validate(baseURL, validation.Required, is.URL); err != nil {
		return nil, fmt.Errorf("base url %q: %w", baseURL, err)
	}
	if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q: must be absolute", baseURL)
	}

	cfg = cfg.withDefaults()

	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
				IdleConnTimeout:     cfg.IdleConnTimeout,
			},
		},
		retry:        cfg.Retry,
		retryMethods: cfg.Retry.methodSet(),
		log:          cfg.Logger,
	}, nil
}

func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) Get(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, opts...)
}

func (c *HTTPClient) Post(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, opts...)
}

func (c *HTTPClient) Put(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.Do(ctx, http.MethodPut, path, opts...)
}

func (c *HTTPClient) Delete(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.Do(ctx, http.MethodDelete, path, opts...)
}

func (c *HTTPClient) Patch(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.Do(ctx, http.MethodPatch, path, opts...)
}

// Do performs one logical request. Attempts are re-sent for
// connection-level failures and for 500, 502, 503 and 504 responses,
// but only when the method is in the retry-safe set; waits between
// attempts follow the backoff schedule and respect ctx. The response
// body of a discarded attempt is drained so its connection returns to
// the pool. Retries share one request ID.
func (c *HTTPClient) Do(ctx context.Context, method, path string, opts ...RequestOption) (*http.Response, error) {
	ro := buildRequestOptions(opts)
	if ro.bodyErr != nil {
		return nil, &StatusError{URL: c.url(path), Err: ro.bodyErr}
	}

	reqURL := c.url(path)
	if len(ro.query) > 0 {
		reqURL += "?" + ro.query.Encode()
	}
	if ro.headers.Get(requestIDHeader) == "" {
		ro.headers.Set(requestIDHeader, uuid.NewString())
	}

	maxAttempts := 1
	if c.retryMethods[strings.ToUpper(method)] {
		maxAttempts += c.retry.MaxRetries
	}

	for attempt := 1; ; attempt++ {
		resp, err := c.attempt(ctx, method, reqURL, ro)
		if err != nil {
			if !isConnectionError(err) {
				return nil, &StatusError{URL: reqURL, Err: err}
			}
			if ctx.Err() != nil || attempt >= maxAttempts {
				return nil, &UnavailableError{URL: reqURL, Err: err}
			}
			c.logRetry(method, reqURL, attempt, 0, err)
			if werr := c.wait(ctx, attempt); werr != nil {
				return nil, &UnavailableError{URL: reqURL, Err: err}
			}
			continue
		}

		if retryStatuses[resp.StatusCode] && attempt < maxAttempts {
			drain(resp)
			c.logRetry(method, reqURL, attempt, resp.StatusCode, nil)
			if werr := c.wait(ctx, attempt); werr != nil {
				return nil, &StatusError{URL: reqURL, StatusCode: resp.StatusCode}
			}
			continue
		}

		if resp.StatusCode >= http.StatusBadRequest {
			drain(resp)
			return nil, &StatusError{URL: reqURL, StatusCode: resp.StatusCode}
		}
		return resp, nil
	}
}

// Close releases the idle connections held by the pool.
func (c *HTTPClient) Close() {
	c.client.CloseIdleConnections()
}

func (c *HTTPClient) attempt(ctx context.Context, method, reqURL string, ro *requestOptions) (*http.Response, error) {
	var body io.Reader
	if ro.body != nil {
		body = bytes.NewReader(ro.body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	for key, values := range ro.headers {
		req.Header[key] = values
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	return c.client.Do(req)
}

func (c *HTTPClient) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *HTTPClient) wait(ctx context.Context, attempt int) error {
	delay := c.retry.Backoff(attempt)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *HTTPClient) logRetry(method, reqURL string, attempt, status int, err error) {
	attrs := []any{
		slog.String("method", method),
		slog.String("url", reqURL),
		slog.Int("attempt", attempt),
		slog.Duration("backoff", c.retry.Backoff(attempt)),
	}
	if status != 0 {
		attrs = append(attrs, slog.Int("status", status))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	c.log.Warn("retrying request", attrs...)
}

// drain consumes what is left of a discarded response so the keep-alive
// connection can be reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// isConnectionError reports whether err means the dependency could not
// be reached, as opposed to a request that was malformed or rejected.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
