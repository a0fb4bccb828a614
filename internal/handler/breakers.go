package handler

import (
	"log/slog"
	"net/http"

	"github.com/roomhive/interservice/pkg/circuitbreaker"
)

// BreakerHandler exposes operational endpoints for inspecting and
// overriding circuit breakers.
type BreakerHandler struct {
	logger   *slog.Logger
	registry *circuitbreaker.Registry
}

func NewBreakerHandler(logger *slog.Logger, registry *circuitbreaker.Registry) *BreakerHandler {
	return &BreakerHandler{
		logger:   logger,
		registry: registry,
	}
}

func (h *BreakerHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"circuit_breakers": h.registry.AllMetrics(),
	})
}

func (h *BreakerHandler) Show(w http.ResponseWriter, r *http.Request) {
	breaker, ok := h.lookup(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, breaker.Metrics())
}

func (h *BreakerHandler) ForceOpen(w http.ResponseWriter, r *http.Request) {
	breaker, ok := h.lookup(w, r)
	if !ok {
		return
	}

	breaker.ForceOpen()
	h.logger.Warn("circuit breaker forced open", slog.String("breaker", breaker.Name()))
	writeJSON(w, http.StatusOK, breaker.Metrics())
}

func (h *BreakerHandler) ForceClose(w http.ResponseWriter, r *http.Request) {
	breaker, ok := h.lookup(w, r)
	if !ok {
		return
	}

	breaker.ForceClose()
	h.logger.Info("circuit breaker forced closed", slog.String("breaker", breaker.Name()))
	writeJSON(w, http.StatusOK, breaker.Metrics())
}

func (h *BreakerHandler) Reset(w http.ResponseWriter, r *http.Request) {
	breaker, ok := h.lookup(w, r)
	if !ok {
		return
	}

	breaker.Reset()
	h.logger.Info("circuit breaker reset", slog.String("breaker", breaker.Name()))
	writeJSON(w, http.StatusOK, breaker.Metrics())
}

func (h *BreakerHandler) ResetAll(w http.ResponseWriter, r *http.Request) {
	h.registry.ResetAll()
	h.logger.Info("all circuit breakers reset")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"circuit_breakers": h.registry.AllMetrics(),
	})
}

func (h *BreakerHandler) lookup(w http.ResponseWriter, r *http.Request) (*circuitbreaker.Breaker, bool) {
	name := r.PathValue("name")
	breaker, ok := h.registry.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": "unknown circuit breaker " + name,
		})
		return nil, false
	}

	return breaker, true
}
