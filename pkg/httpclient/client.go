package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/roomhive/interservice/pkg/circuitbreaker"
)

// DefaultExcludedStatuses are response codes read as caller-input
// faults: the dependency answered, so they must not trip its breaker.
var DefaultExcludedStatuses = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusPaymentRequired,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
}

// DefaultServiceURLs maps the platform's service names to their
// conventional addresses. Deployments with different topology set
// ClientConfig.BaseURL instead.
var DefaultServiceURLs = map[string]string{
	"users":    "http://localhost:5001",
	"rooms":    "http://localhost:5002",
	"bookings": "http://localhost:5003",
	"reviews":  "http://localhost:5004",
}

// ClientConfig describes one downstream dependency.
type ClientConfig struct {
	// Name is the logical dependency name, also the breaker name.
	Name string

	// BaseURL roots every path the client requests.
	BaseURL string

	// Breaker carries the breaker thresholds. Its Classifier is filled
	// in from ExcludedStatuses when unset.
	Breaker circuitbreaker.Config

	// ExcludedStatuses overrides DefaultExcludedStatuses when non-nil.
	ExcludedStatuses []int

	// Transport tunes the underlying pooled client.
	Transport TransportConfig

	Logger *slog.Logger
}

// ServiceClient couples a retrying transport with a shared breaker.
// Every verb wraps exactly one transport call: retries happen inside
// the transport and are invisible to the breaker, which scores only the
// final outcome.
type ServiceClient struct {
	name      string
	breaker   *circuitbreaker.Breaker
	transport *HTTPClient
	log       *slog.Logger
}

// NewServiceClient builds a client for one dependency, sharing its
// breaker through registry so every client of the same dependency sees
// the same state.
func NewServiceClient(cfg ClientConfig, registry *circuitbreaker.Registry) (*ServiceClient, error) {
	if cfg.Name == "" {
		return nil, errors.New("service client: name is required")
	}
	if registry == nil {
		return nil, errors.New("service client: registry is required")
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	transportCfg := cfg.Transport
	if transportCfg.Logger == nil {
		transportCfg.Logger = log
	}
	transport, err := NewHTTPClient(cfg.BaseURL, transportCfg)
	if err != nil {
		return nil, fmt.Errorf("service client %q: %w", cfg.Name, err)
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.Logger == nil {
		breakerCfg.Logger = log
	}
	if breakerCfg.Classifier == nil {
		breakerCfg.Classifier = StatusClassifier(cfg.ExcludedStatuses)
	}

	return &ServiceClient{
		name:      cfg.Name,
		breaker:   registry.GetOrCreate(cfg.Name, breakerCfg),
		transport: transport,
		log:       log,
	}, nil
}

// New builds the guarded client for a named platform service. The name
// and base URL are resolved from the service name when cfg leaves them
// empty; a service outside DefaultServiceURLs needs an explicit BaseURL.
func New(service string, cfg ClientConfig, registry *circuitbreaker.Registry) (*ServiceClient, error) {
	if cfg.BaseURL == "" {
		baseURL, ok := DefaultServiceURLs[service]
		if !ok {
			return nil, fmt.Errorf("unknown service %q", service)
		}
		cfg.BaseURL = baseURL
	}
	if cfg.Name == "" {
		cfg.Name = service + "-service"
	}

	return NewServiceClient(cfg, registry)
}

// StatusClassifier builds the breaker classifier used by service
// clients: responses whose status is in excluded are caller faults, a
// nil excluded list means DefaultExcludedStatuses.
func StatusClassifier(excluded []int) circuitbreaker.Classifier {
	if excluded == nil {
		excluded = DefaultExcludedStatuses
	}
	set := make(map[int]bool, len(excluded))
	for _, code := range excluded {
		set[code] = true
	}

	return func(err error) circuitbreaker.Outcome {
		if err == nil {
			return circuitbreaker.OutcomeSuccess
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && set[statusErr.StatusCode] {
			return circuitbreaker.OutcomeExcluded
		}
		return circuitbreaker.OutcomeFailure
	}
}

func (s *ServiceClient) Name() string {
	return s.name
}

// Breaker exposes the shared breaker for metrics and administration.
func (s *ServiceClient) Breaker() *circuitbreaker.Breaker {
	return s.breaker
}

// Close releases the transport's idle connections. The breaker stays
// registered; other clients may share it.
func (s *ServiceClient) Close() {
	s.transport.Close()
}

func (s *ServiceClient) GetJSON(ctx context.Context, path string, dest any, opts ...RequestOption) error {
	return s.callJSON(ctx, http.MethodGet, path, dest, opts...)
}

func (s *ServiceClient) PostJSON(ctx context.Context, path string, dest any, opts ...RequestOption) error {
	return s.callJSON(ctx, http.MethodPost, path, dest, opts...)
}

func (s *ServiceClient) PutJSON(ctx context.Context, path string, dest any, opts ...RequestOption) error {
	return s.callJSON(ctx, http.MethodPut, path, dest, opts...)
}

func (s *ServiceClient) DeleteJSON(ctx context.Context, path string, dest any, opts ...RequestOption) error {
	return s.callJSON(ctx, http.MethodDelete, path, dest, opts...)
}

func (s *ServiceClient) PatchJSON(ctx context.Context, path string, dest any, opts ...RequestOption) error {
	return s.callJSON(ctx, http.MethodPatch, path, dest, opts...)
}

// callJSON runs one guarded call and decodes the successful response
// into dest. A nil dest still decodes into a throwaway map, so a broken
// body surfaces as an error either way.
func (s *ServiceClient) callJSON(ctx context.Context, method, path string, dest any, opts ...RequestOption) error {
	_, err := s.breaker.Execute(func() (any, error) {
		resp, err := s.transport.Do(ctx, method, path, opts...)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		return nil, decodeJSON(resp, dest)
	})
	return err
}

// Call runs one guarded call and hands the raw response to the caller,
// who owns closing its body. Used where the payload is relayed rather
// than decoded.
func (s *ServiceClient) Call(ctx context.Context, method, path string, opts ...RequestOption) (*http.Response, error) {
	return circuitbreaker.Do(s.breaker, func() (*http.Response, error) {
		return s.transport.Do(ctx, method, path, opts...)
	})
}

// HealthStatus is the conventional health endpoint payload of the
// platform's services.
type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Health probes the dependency's health endpoint through the breaker,
// so probe outcomes count like regular traffic.
func (s *ServiceClient) Health(ctx context.Context) (HealthStatus, error) {
	var status HealthStatus
	err := s.GetJSON(ctx, "/health", &status)
	return status, err
}

func decodeJSON(resp *http.Response, dest any) error {
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	if dest == nil {
		dest = &map[string]any{}
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
