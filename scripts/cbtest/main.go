// cbtest walks a relay circuit breaker through its full lifecycle by
// flipping a flakybackend between failure modes and watching the relay's
// responses and admin API.
//
// Usage:
//
//	go run ./scripts/flakybackend -port 5001 -service users    (terminal 1)
//	go run ./cmd                                               (terminal 2)
//	go run ./scripts/cbtest -relay http://localhost:8080 -backend http://localhost:5001 -service users
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func main() {
	var (
		relayURL     = flag.String("relay", "http://localhost:8080", "Relay base URL")
		backendURL   = flag.String("backend", "http://localhost:5001", "Flakybackend base URL (for mode control)")
		service      = flag.String("service", "users", "Dependency name as routed by the relay")
		requests     = flag.Int("requests", 10, "Requests per phase")
		recoveryWait = flag.Duration("recovery-wait", 90*time.Second, "How long to wait for the breaker to close again")
	)
	flag.Parse()

	client := &http.Client{Timeout: 30 * time.Second}
	target := *relayURL + "/relay/" + *service + "/ping"
	breakerName := *service + "-service"

	fmt.Println(colorCyan + "╔════════════════════════════════════════════════════════════════╗" + colorReset)
	fmt.Println(colorCyan + "║             CIRCUIT BREAKER LIFECYCLE TEST                     ║" + colorReset)
	fmt.Println(colorCyan + "╚════════════════════════════════════════════════════════════════╝" + colorReset)
	fmt.Println()

	// PHASE 1: Verify normal operation
	fmt.Println(colorBlue + "━━━ PHASE 1: Normal Operation ━━━" + colorReset)
	fmt.Println("Relaying requests to verify the dependency is reachable...")

	if err := setMode(client, *backendURL, "ok"); err != nil {
		fmt.Printf(colorRed+"  ✗ Could not reach flakybackend at %s: %v\n"+colorReset, *backendURL, err)
		os.Exit(1)
	}

	okCount := 0
	for i := 0; i < *requests; i++ {
		resp, err := client.Get(target)
		if err != nil {
			fmt.Printf(colorRed+"  Request %d: ERROR - %v\n"+colorReset, i+1, err)
			continue
		}
		if resp.StatusCode == http.StatusOK {
			okCount++
			if i == 0 {
				fmt.Printf("  Relayed by: %s\n", resp.Header.Get("X-Relay-Service"))
			}
		} else {
			fmt.Printf(colorYellow+"  Request %d: status=%d\n"+colorReset, i+1, resp.StatusCode)
		}
		drain(resp)
	}

	if okCount == 0 {
		fmt.Println(colorRed + "  ✗ No requests succeeded! Is the relay running?" + colorReset)
		os.Exit(1)
	}
	fmt.Printf(colorGreen+"  ✓ %d/%d requests relayed\n"+colorReset, okCount, *requests)
	fmt.Println()

	// PHASE 2: Fail the dependency until the breaker opens
	fmt.Println(colorBlue + "━━━ PHASE 2: Dependency Failure ━━━" + colorReset)
	fmt.Println("Switching dependency to errors mode...")
	fmt.Println("Each failing request is retried before it surfaces, so this phase takes a while.")

	if err := setMode(client, *backendURL, "errors"); err != nil {
		fmt.Printf(colorRed+"  ✗ Could not switch mode: %v\n"+colorReset, err)
		os.Exit(1)
	}

	opened := false
	failures := 0
	for i := 0; i < *requests*3; i++ {
		resp, err := client.Get(target)
		if err != nil {
			fmt.Printf(colorRed+"  Request %d: ERROR - %v\n"+colorReset, i+1, err)
			continue
		}
		if resp.StatusCode == http.StatusServiceUnavailable && resp.Header.Get("Retry-After") != "" {
			drain(resp)
			fmt.Printf(colorGreen+"  ✓ Circuit opened after %d surfaced failures\n"+colorReset, failures)
			opened = true
			break
		}
		failures++
		fmt.Printf(colorYellow+"  Request %d: status=%d (failure passed through)\n"+colorReset, i+1, resp.StatusCode)
		drain(resp)
	}
	if !opened {
		fmt.Println(colorRed + "  ✗ Circuit never opened, check the relay's failure threshold" + colorReset)
	}
	fmt.Println()

	// PHASE 3: Verify fail-fast while open
	fmt.Println(colorBlue + "━━━ PHASE 3: Fail-Fast ━━━" + colorReset)
	fmt.Println("Sending requests against the open circuit...")

	hitsBefore, _ := backendHits(client, *backendURL)
	rejected := 0
	var totalLatency time.Duration
	for i := 0; i < *requests; i++ {
		start := time.Now()
		resp, err := client.Get(target)
		latency := time.Since(start)
		totalLatency += latency
		if err != nil {
			fmt.Printf(colorRed+"  Request %d: ERROR - %v\n"+colorReset, i+1, err)
			continue
		}
		if resp.StatusCode == http.StatusServiceUnavailable {
			rejected++
			if i == 0 {
				fmt.Printf("  Retry-After: %ss\n", resp.Header.Get("Retry-After"))
			}
		}
		drain(resp)
	}
	hitsAfter, _ := backendHits(client, *backendURL)

	fmt.Printf("\n  Rejected: %d/%d  avg latency: %v\n", rejected, *requests, totalLatency/time.Duration(*requests))
	fmt.Printf("  New requests reaching the dependency: %d (health probes only)\n", hitsAfter-hitsBefore)
	if rejected == *requests {
		fmt.Println(colorGreen + "  ✓ Open circuit rejects without touching the dependency" + colorReset)
	}
	fmt.Println()

	// PHASE 4: Inspect the breaker through the admin API
	fmt.Println(colorBlue + "━━━ PHASE 4: Breaker Status ━━━" + colorReset)
	fmt.Printf("GET /api/circuit-breakers/%s...\n", breakerName)

	status, err := breakerStatus(client, *relayURL, breakerName)
	if err != nil {
		fmt.Printf(colorYellow+"  Could not fetch breaker status: %v\n"+colorReset, err)
	} else {
		fmt.Printf("  state=%v failure_count=%v total_failures=%v timeout_seconds=%v\n",
			status["state"], status["failure_count"], status["total_failures"], status["timeout_seconds"])
	}
	fmt.Println()

	// PHASE 5: Recovery
	fmt.Println(colorBlue + "━━━ PHASE 5: Recovery ━━━" + colorReset)
	fmt.Println("Switching dependency back to ok mode and waiting for the circuit to close...")

	if err := setMode(client, *backendURL, "ok"); err != nil {
		fmt.Printf(colorRed+"  ✗ Could not switch mode: %v\n"+colorReset, err)
		os.Exit(1)
	}

	recoveryStart := time.Now()
	recovered := false
	for time.Since(recoveryStart) < *recoveryWait {
		resp, err := client.Get(target)
		if err == nil {
			if resp.StatusCode == http.StatusOK {
				drain(resp)
				recovered = true
				break
			}
			drain(resp)
		}
		time.Sleep(time.Second)
	}

	if recovered {
		fmt.Printf(colorGreen+"  ✓ Relay recovered after %v\n"+colorReset, time.Since(recoveryStart).Round(time.Second))
		if status, err := breakerStatus(client, *relayURL, breakerName); err == nil {
			fmt.Printf("  Breaker state: %v\n", status["state"])
		}
	} else {
		fmt.Printf(colorRed+"  ✗ Relay did not recover within %v\n"+colorReset, *recoveryWait)
	}
	fmt.Println()

	// PHASE 6: Excluded statuses must not trip the breaker
	fmt.Println(colorBlue + "━━━ PHASE 6: Excluded Statuses ━━━" + colorReset)
	fmt.Println("Switching dependency to notfound mode, 404s must pass through untripped...")

	if err := setMode(client, *backendURL, "notfound"); err != nil {
		fmt.Printf(colorRed+"  ✗ Could not switch mode: %v\n"+colorReset, err)
		os.Exit(1)
	}

	notFound := 0
	for i := 0; i < *requests; i++ {
		resp, err := client.Get(target)
		if err != nil {
			fmt.Printf(colorRed+"  Request %d: ERROR - %v\n"+colorReset, i+1, err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound {
			notFound++
		} else {
			fmt.Printf(colorYellow+"  Request %d: status=%d\n"+colorReset, i+1, resp.StatusCode)
		}
		drain(resp)
	}

	if status, err := breakerStatus(client, *relayURL, breakerName); err == nil {
		fmt.Printf("  404s passed through: %d/%d  breaker state: %v  failure_count: %v\n",
			notFound, *requests, status["state"], status["failure_count"])
		if fmt.Sprintf("%v", status["state"]) == "CLOSED" {
			fmt.Println(colorGreen + "  ✓ Client errors did not trip the breaker" + colorReset)
		}
	}

	setMode(client, *backendURL, "ok")
	fmt.Println()

	// Summary
	fmt.Println(colorCyan + "╔════════════════════════════════════════════════════════════════╗" + colorReset)
	fmt.Println(colorCyan + "║                    TEST COMPLETE                               ║" + colorReset)
	fmt.Println(colorCyan + "╚════════════════════════════════════════════════════════════════╝" + colorReset)
	fmt.Println()
	fmt.Println("Key behaviors verified:")
	fmt.Println("  1. Normal relaying with X-Relay-Service attribution")
	fmt.Println("  2. Failures surface until the threshold trips the breaker")
	fmt.Println("  3. Open circuit rejects fast with Retry-After, shedding dependency load")
	fmt.Println("  4. Admin API exposes live breaker state")
	fmt.Println("  5. Recovery closes the breaker once the dependency heals")
	fmt.Println("  6. Excluded statuses (404) never trip the breaker")
	fmt.Println()
	fmt.Println("Check relay logs for detailed retry and state change activity.")
}

func setMode(client *http.Client, backendURL, mode string) error {
	req, err := http.NewRequest(http.MethodPost, backendURL+"/__mode?set="+mode, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mode switch returned status %d", resp.StatusCode)
	}
	return nil
}

func backendHits(client *http.Client, backendURL string) (int, error) {
	payload, err := getJSON(client, backendURL+"/__mode")
	if err != nil {
		return 0, err
	}
	hits, ok := payload["hits"].(float64)
	if !ok {
		return 0, fmt.Errorf("no hits field in %v", payload)
	}
	return int(hits), nil
}

func breakerStatus(client *http.Client, relayURL, name string) (map[string]interface{}, error) {
	return getJSON(client, relayURL+"/api/circuit-breakers/"+name)
}

func getJSON(client *http.Client, url string) (map[string]interface{}, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
