// cbcompare measures what the circuit breaker buys during a dependency
// outage. The same request stream is sent once through the relay and once
// straight at the dependency, with the dependency flipped into errors mode
// partway through each run, and the results land in a markdown report.
//
// Usage:
//
//	go run ./scripts/flakybackend -port 5001 -service users    (terminal 1)
//	go run ./cmd                                               (terminal 2)
//	go run ./scripts/cbcompare -relay http://localhost:8080 -backend http://localhost:5001 -service users
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type TestResult struct {
	Name           string
	TotalRequests  int
	SuccessfulReqs int
	RejectedReqs   int
	FailedReqs     int
	DependencyHits int
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
	ErrorMessages  []string
}

var (
	relayURL   = flag.String("relay", "http://localhost:8080", "Relay base URL")
	backendURL = flag.String("backend", "http://localhost:5001", "Flakybackend base URL")
	service    = flag.String("service", "users", "Dependency name as routed by the relay")
	totalReqs  = flag.Int("requests", 100, "Total requests to send per test")
	breakAfter = flag.Int("break-after", 30, "Flip the dependency into errors mode after N requests")
	outPath    = flag.String("out", "circuit_breaker_results.md", "Where to write the markdown report")
)

func main() {
	flag.Parse()

	client := &http.Client{Timeout: 30 * time.Second}
	breakerName := *service + "-service"

	fmt.Println("╔════════════════════════════════════════════════════════════════╗")
	fmt.Println("║     CIRCUIT BREAKER COMPARISON TEST                            ║")
	fmt.Println("╚════════════════════════════════════════════════════════════════╝")
	fmt.Println()

	waitForRelay(client)
	if err := setMode(client, "ok"); err != nil {
		fmt.Fprintf(os.Stderr, "flakybackend unreachable at %s: %v\n", *backendURL, err)
		os.Exit(1)
	}

	// TEST 1: Through the relay, breaker armed
	fmt.Println("━━━ TEST 1: Guarded (through the relay) ━━━")
	resetBreaker(client, breakerName)
	time.Sleep(time.Second)
	guarded := runTest(client, "Guarded", *relayURL+"/relay/"+*service+"/ping")

	setMode(client, "ok")
	time.Sleep(2 * time.Second)

	// TEST 2: Straight at the dependency, nothing in between
	fmt.Println("\n━━━ TEST 2: Unguarded (direct to the dependency) ━━━")
	direct := runTest(client, "Unguarded", *backendURL+"/ping")

	setMode(client, "ok")
	resetBreaker(client, breakerName)

	generateReport(guarded, direct)
	fmt.Printf("\n✓ Tests complete! Results saved to %s\n", *outPath)
}

func runTest(client *http.Client, name, target string) TestResult {
	result := TestResult{
		Name:          name,
		TotalRequests: *totalReqs,
		MinLatency:    time.Hour,
	}

	var latencies []time.Duration
	var hitsAtBreak int
	broke := false

	fmt.Printf("  Sending %d requests (errors mode after %d)...\n", *totalReqs, *breakAfter)
	start := time.Now()

	for i := 0; i < *totalReqs; i++ {
		if i == *breakAfter && !broke {
			fmt.Printf("  [Request %d] Flipping dependency into errors mode\n", i)
			setMode(client, "errors")
			hitsAtBreak, _ = backendHits(client)
			broke = true
			time.Sleep(200 * time.Millisecond)
		}

		reqStart := time.Now()
		resp, err := client.Get(target)
		latency := time.Since(reqStart)
		latencies = append(latencies, latency)

		if err != nil {
			result.FailedReqs++
			result.ErrorMessages = append(result.ErrorMessages, truncate(err.Error(), 80))
		} else {
			switch {
			case resp.StatusCode < 500:
				result.SuccessfulReqs++
			case resp.StatusCode == http.StatusServiceUnavailable && resp.Header.Get("Retry-After") != "":
				result.RejectedReqs++
			default:
				result.FailedReqs++
				result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("HTTP %d", resp.StatusCode))
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		if latency < result.MinLatency {
			result.MinLatency = latency
		}
		if latency > result.MaxLatency {
			result.MaxLatency = latency
		}

		time.Sleep(20 * time.Millisecond)
	}

	result.TotalDuration = time.Since(start)

	hitsEnd, _ := backendHits(client)
	result.DependencyHits = hitsEnd - hitsAtBreak

	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	if len(latencies) > 0 {
		result.AvgLatency = total / time.Duration(len(latencies))
	}
	result.RequestsPerSec = float64(*totalReqs) / result.TotalDuration.Seconds()

	fmt.Printf("  ✓ Results: %d ok, %d rejected, %d failed; %d requests reached the broken dependency\n",
		result.SuccessfulReqs, result.RejectedReqs, result.FailedReqs, result.DependencyHits)

	return result
}

func generateReport(guarded, direct TestResult) {
	guardedRate := float64(guarded.SuccessfulReqs) / float64(guarded.TotalRequests) * 100
	directRate := float64(direct.SuccessfulReqs) / float64(direct.TotalRequests) * 100
	shed := direct.DependencyHits - guarded.DependencyHits

	var conclusion string
	if shed > 0 {
		shedPct := float64(shed) / float64(direct.DependencyHits) * 100
		conclusion = fmt.Sprintf("✅ **The circuit breaker shed %d requests (%.0f%%) away from the failing dependency.**\n\nAfter the failure threshold tripped, callers got immediate 503s with a Retry-After hint instead of hammering a service that could not answer.", shed, shedPct)
	} else if shed == 0 {
		conclusion = "⚖️ **Both runs sent the same load to the failing dependency.**\n\nThe breaker may not have tripped; check the failure threshold against the break-after setting."
	} else {
		conclusion = fmt.Sprintf("⚠️ **Unexpected: the guarded run reached the dependency %d more times.**\n\nBackground health probes or retries may account for the difference.", -shed)
	}

	report := fmt.Sprintf(`# Circuit Breaker Comparison Test Results

**Test Date:** %s
**Configuration:**
- Total Requests per Test: %d
- Dependency Broken After: Request #%d
- Dependency: %s

---

## 📊 Summary Table

| Metric | Guarded (relay) | Unguarded (direct) | Difference |
|--------|:---------------:|:------------------:|:----------:|
| **Success Rate** | %.1f%% | %.1f%% | %+.1f%% |
| **Successful** | %d | %d | %+d |
| **Rejected (fail-fast 503)** | %d | %d | %+d |
| **Failed** | %d | %d | %+d |
| **Requests Reaching Broken Dependency** | %d | %d | %+d |
| **Avg Latency** | %v | %v | - |
| **Max Latency** | %v | %v | - |
| **Throughput** | %.1f req/s | %.1f req/s | - |

---

## 🎯 Conclusion

%s

---

## 📈 Detailed Results

### Guarded (through the relay)
- Success Rate: **%.1f%%** (%d/%d)
- Rejected by Open Circuit: %d
- Failed Requests: %d
- Avg Latency: %v
- Unique Errors: %d

### Unguarded (direct to the dependency)
- Success Rate: **%.1f%%** (%d/%d)
- Failed Requests: %d
- Avg Latency: %v
- Unique Errors: %d

---

## 🔧 How the Circuit Breaker Helps

| Feature | Benefit |
|---------|---------|
| **Fail-Fast** | Opens after consecutive failures, answering in microseconds instead of timeouts |
| **Load Shedding** | A failing dependency stops receiving traffic it cannot serve |
| **Retry-After** | Rejected callers learn when the next attempt is worthwhile |
| **Recovery** | Half-open probes close the circuit once the dependency heals |

---

## ❌ Errors Observed

### Guarded
%s

### Unguarded
%s
`,
		time.Now().Format("2006-01-02 15:04:05"),
		*totalReqs, *breakAfter, *service,

		guardedRate, directRate, guardedRate-directRate,
		guarded.SuccessfulReqs, direct.SuccessfulReqs, guarded.SuccessfulReqs-direct.SuccessfulReqs,
		guarded.RejectedReqs, direct.RejectedReqs, guarded.RejectedReqs-direct.RejectedReqs,
		guarded.FailedReqs, direct.FailedReqs, guarded.FailedReqs-direct.FailedReqs,
		guarded.DependencyHits, direct.DependencyHits, guarded.DependencyHits-direct.DependencyHits,
		guarded.AvgLatency.Round(time.Microsecond), direct.AvgLatency.Round(time.Microsecond),
		guarded.MaxLatency.Round(time.Millisecond), direct.MaxLatency.Round(time.Millisecond),
		guarded.RequestsPerSec, direct.RequestsPerSec,

		conclusion,

		guardedRate, guarded.SuccessfulReqs, guarded.TotalRequests, guarded.RejectedReqs, guarded.FailedReqs,
		guarded.AvgLatency.Round(time.Microsecond), countUnique(guarded.ErrorMessages),

		directRate, direct.SuccessfulReqs, direct.TotalRequests, direct.FailedReqs,
		direct.AvgLatency.Round(time.Microsecond), countUnique(direct.ErrorMessages),

		formatErrors(guarded.ErrorMessages),
		formatErrors(direct.ErrorMessages),
	)

	os.WriteFile(*outPath, []byte(report), 0644)
}

func waitForRelay(client *http.Client) {
	fmt.Print("  Waiting for relay...")
	for i := 0; i < 30; i++ {
		resp, err := client.Get(*relayURL + "/healthz")
		if err == nil {
			resp.Body.Close()
			fmt.Println(" ready!")
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	fmt.Println(" timeout (continuing anyway)")
}

func setMode(client *http.Client, mode string) error {
	req, err := http.NewRequest(http.MethodPost, *backendURL+"/__mode?set="+mode, nil)
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

func backendHits(client *http.Client) (int, error) {
	resp, err := client.Get(*backendURL + "/__mode")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	hits, ok := payload["hits"].(float64)
	if !ok {
		return 0, fmt.Errorf("no hits field in %v", payload)
	}
	return int(hits), nil
}

func resetBreaker(client *http.Client, name string) {
	req, err := http.NewRequest(http.MethodPost, *relayURL+"/api/circuit-breakers/"+name+"/reset", nil)
	if err != nil {
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func countUnique(errors []string) int {
	m := make(map[string]bool)
	for _, e := range errors {
		m[e] = true
	}
	return len(m)
}

func formatErrors(errors []string) string {
	if len(errors) == 0 {
		return "_No errors_"
	}

	counts := make(map[string]int)
	for _, e := range errors {
		counts[e]++
	}

	var sb strings.Builder
	for err, count := range counts {
		sb.WriteString(fmt.Sprintf("- `%s` ×%d\n", err, count))
	}
	return sb.String()
}
