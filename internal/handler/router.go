package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/roomhive/interservice/internal/metrics"
)

// NewRouter assembles the gateway surface: the relay, circuit breaker
// administration, metrics in both JSON and Prometheus form, and liveness.
func NewRouter(relay *RelayHandler, breakers *BreakerHandler, collector *metrics.Collector, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/relay/{service}", relay)
	mux.Handle("/relay/{service}/{path...}", relay)

	mux.HandleFunc("GET /api/circuit-breakers", breakers.List)
	mux.HandleFunc("POST /api/circuit-breakers/reset-all", breakers.ResetAll)
	mux.HandleFunc("GET /api/circuit-breakers/{name}", breakers.Show)
	mux.HandleFunc("POST /api/circuit-breakers/{name}/force-open", breakers.ForceOpen)
	mux.HandleFunc("POST /api/circuit-breakers/{name}/force-close", breakers.ForceClose)
	mux.HandleFunc("POST /api/circuit-breakers/{name}/reset", breakers.Reset)

	mux.Handle("GET /metrics", collector.PrometheusHandler())
	mux.HandleFunc("GET /metrics/json", collector.Handler())

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	return AccessLog(logger, mux)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// AccessLog wraps a handler with a completion log line per request.
func AccessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		logger.Info("request completed",
			slog.String("from", extractClientIP(r)),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.statusCode),
			slog.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are gone at this point; nothing sensible left to send.
		return
	}
}
