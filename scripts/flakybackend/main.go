// Flakybackend simulates one platform service behind the relay. It answers
// /health and echoes every other path as JSON, and its failure mode can be
// flipped at runtime so circuit breaker behavior can be exercised without
// killing processes.
//
// Usage:
//
//	go run ./scripts/flakybackend -port 5001 -service users
//	curl -X POST 'http://localhost:5001/__mode?set=errors'
//
// Modes:
//
//	ok       - 200 JSON echo (default)
//	errors   - 500 on every request
//	timeout  - hang for the -hang duration before answering
//	notfound - 404 on every request, /health stays healthy
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

var validModes = map[string]bool{
	"ok":       true,
	"errors":   true,
	"timeout":  true,
	"notfound": true,
}

// backendState holds the switchable failure mode and a hit counter so
// test scripts can verify how much traffic actually reached the service.
type backendState struct {
	mu   sync.Mutex
	mode string
	hits int
}

func (s *backendState) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *backendState) set(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

func (s *backendState) hit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits++
}

func (s *backendState) snapshot() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.hits
}

func main() {
	var (
		port    = flag.Int("port", 5001, "port to listen on")
		service = flag.String("service", "users", "service name reported in responses")
		hang    = flag.Duration("hang", 30*time.Second, "how long timeout mode stalls before answering")
	)
	flag.Parse()

	state := &backendState{mode: "ok"}
	serviceName := *service + "-service"

	mux := http.NewServeMux()

	// Mode control endpoint, not counted as a hit.
	mux.HandleFunc("/__mode", func(w http.ResponseWriter, r *http.Request) {
		if set := r.URL.Query().Get("set"); set != "" {
			if !validModes[set] {
				http.Error(w, "unknown mode: "+set, http.StatusBadRequest)
				return
			}
			state.set(set)
			log.Printf("mode changed to %s", set)
		}
		mode, hits := state.snapshot()
		writeJSON(w, http.StatusOK, map[string]any{
			"service": serviceName,
			"mode":    mode,
			"hits":    hits,
		})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		state.hit()
		switch state.get() {
		case "errors":
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "simulated failure"})
		case "timeout":
			time.Sleep(*hang)
			writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "service": serviceName})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "service": serviceName})
		}
	})

	// Echo endpoint standing in for the real service API.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		state.hit()
		body, _ := io.ReadAll(r.Body)
		log.Printf("request: method=%s path=%s from=%s body_bytes=%d", r.Method, r.URL.Path, r.RemoteAddr, len(body))

		switch state.get() {
		case "errors":
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "simulated failure"})
			return
		case "timeout":
			time.Sleep(*hang)
		case "notfound":
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
			return
		}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		status := http.StatusOK
		if r.Method == http.MethodPost {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{
			"service":    serviceName,
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": requestID,
		})
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting %s on %s", serviceName, addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	b, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
