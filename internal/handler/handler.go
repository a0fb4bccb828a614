package handler

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/roomhive/interservice/internal/metrics"
	"github.com/roomhive/interservice/pkg/circuitbreaker"
	"github.com/roomhive/interservice/pkg/httpclient"
)

// maxRelayBody caps how much of a request body is buffered for retries.
const maxRelayBody = 10 << 20

// forwardedHeaders are the request headers relayed to the dependency.
var forwardedHeaders = []string{"Authorization", "Accept", "X-Request-ID"}

// RelayHandler forwards /relay/{service}/{path...} requests to the named
// dependency through its guarded client, translating call-layer errors
// into gateway responses.
type RelayHandler struct {
	logger           *slog.Logger
	clients          map[string]*httpclient.ServiceClient
	metricsCollector *metrics.Collector
}

func NewRelayHandler(logger *slog.Logger, clients map[string]*httpclient.ServiceClient, collector *metrics.Collector) *RelayHandler {
	return &RelayHandler{
		logger:           logger,
		clients:          clients,
		metricsCollector: collector,
	}
}

func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	clientIP := extractClientIP(r)

	h.logger.Info("received relay request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("service", service),
		slog.String("user_agent", r.UserAgent()))

	client, ok := h.clients[service]
	if !ok {
		h.logger.Warn("unknown relay target", slog.String("service", service))
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": "unknown service " + service,
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRelayBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"error": "request body too large",
		})
		return
	}

	opts := make([]httpclient.RequestOption, 0, 8)
	for key, values := range r.URL.Query() {
		for _, value := range values {
			opts = append(opts, httpclient.WithQuery(key, value))
		}
	}
	for _, name := range forwardedHeaders {
		if value := r.Header.Get(name); value != "" {
			opts = append(opts, httpclient.WithHeader(name, value))
		}
	}
	opts = append(opts, httpclient.WithHeader("X-Forwarded-For", forwardedFor(r, clientIP)))
	if len(body) > 0 {
		opts = append(opts, httpclient.WithBody(r.Header.Get("Content-Type"), body))
	}

	start := time.Now()
	resp, err := client.Call(r.Context(), r.Method, "/"+r.PathValue("path"), opts...)
	duration := time.Since(start)

	if err != nil {
		h.writeCallError(w, service, err, duration)
		return
	}
	defer resp.Body.Close()

	h.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventCallCompleted,
		Timestamp:  time.Now(),
		Dependency: service,
		Duration:   duration,
		StatusCode: resp.StatusCode,
		Outcome:    "success",
	})

	copyResponseHeaders(w.Header(), resp.Header)
	w.Header().Set("X-Relay-Service", service)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn("failed to stream relay response",
			slog.String("service", service),
			slog.String("error", err.Error()))
	}
}

// writeCallError maps call-layer errors onto gateway responses: open
// circuits fail fast as 503 with a Retry-After hint, unreachable services
// become 502, and dependency error statuses pass through by code.
func (h *RelayHandler) writeCallError(w http.ResponseWriter, service string, err error, duration time.Duration) {
	var openErr *circuitbreaker.OpenError
	var statusErr *httpclient.StatusError
	var unavailableErr *httpclient.UnavailableError

	switch {
	case errors.As(err, &openErr):
		h.emitEvent(metrics.MetricEvent{
			Type:       metrics.EventCallRejected,
			Timestamp:  time.Now(),
			Dependency: service,
		})

		retryAfter := int(openErr.RetryAfter.Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":               "service temporarily unavailable",
			"service":             service,
			"retry_after_seconds": retryAfter,
		})

	case errors.As(err, &statusErr):
		code := statusErr.StatusCode
		if code == 0 {
			code = http.StatusBadGateway
		}

		h.emitEvent(metrics.MetricEvent{
			Type:       metrics.EventCallCompleted,
			Timestamp:  time.Now(),
			Dependency: service,
			Duration:   duration,
			StatusCode: code,
			Outcome:    "failure",
		})

		writeJSON(w, code, map[string]any{
			"error":   service + " returned status " + strconv.Itoa(code),
			"service": service,
		})

	case errors.As(err, &unavailableErr):
		h.emitEvent(metrics.MetricEvent{
			Type:       metrics.EventCallCompleted,
			Timestamp:  time.Now(),
			Dependency: service,
			Duration:   duration,
			Outcome:    "failure",
		})

		h.logger.Warn("dependency unreachable",
			slog.String("service", service),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "service unavailable",
			"service": service,
		})

	default:
		h.emitEvent(metrics.MetricEvent{
			Type:       metrics.EventCallCompleted,
			Timestamp:  time.Now(),
			Dependency: service,
			Duration:   duration,
			Outcome:    "failure",
		})

		h.logger.Error("relay call failed",
			slog.String("service", service),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "internal relay error",
			"service": service,
		})
	}
}

func (h *RelayHandler) emitEvent(event metrics.MetricEvent) {
	if h.metricsCollector == nil {
		return
	}

	h.metricsCollector.Emit(event)
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

// forwardedFor extends an existing X-Forwarded-For chain with the
// connecting peer.
func forwardedFor(r *http.Request, clientIP string) string {
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	if host == "" {
		host = clientIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff + ", " + host
	}
	return host
}

// hopHeaders are stripped from relayed responses per RFC 9110 section 7.6.1.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func copyResponseHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}
