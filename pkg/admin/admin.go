// Package admin implements the proxy's diagnostic HTTP surface: health,
// Prometheus-style text metrics, resolved configuration, and a small
// in-flight transaction status page. It is a second, separate
// net/http listener from the proxy's own raw-socket surface.
package admin

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// HistogramBuckets defines the latency buckets (seconds) used when
// observing transaction durations.
var HistogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics is a minimal metrics container consumed by the /metrics
// handler, keyed to the proxy's outcome vocabulary.
type Metrics struct {
	sync.Mutex

	TotalRequests uint64 `json:"total_requests"`
	Serves        uint64 `json:"serves"`
	Misses        uint64 `json:"misses"`
	Revalidated   uint64 `json:"revalidated"`
	Bypass        uint64 `json:"bypass"`
	Tunnels       uint64 `json:"tunnels"`
	OriginErrors  uint64 `json:"origin_errors"`
	CacheErrors   uint64 `json:"cache_errors"`
	BadRequests   uint64 `json:"bad_requests"`

	// In-flight gauge + map of id->start time for /statusz.
	Inflight     int                  `json:"inflight"`
	InflightList map[string]time.Time `json:"inflight_list"`

	// Histograms: map outcome -> counts per bucket.
	HistCounts map[string][]uint64 `json:"hist_counts"`
	HistSum    map[string]float64  `json:"hist_sum"`
	HistTotal  map[string]uint64   `json:"hist_total"`
}

// NewMetrics constructs a Metrics instance with initialized histogram
// maps.
func NewMetrics() *Metrics {
	return &Metrics{
		InflightList: make(map[string]time.Time),
		HistCounts:   make(map[string][]uint64),
		HistSum:      make(map[string]float64),
		HistTotal:    make(map[string]uint64),
	}
}

// InflightAdd records an in-flight transaction with id.
func (m *Metrics) InflightAdd(id string) {
	m.Lock()
	defer m.Unlock()
	m.Inflight++
	m.InflightList[id] = time.Now()
}

// InflightRemove removes an in-flight transaction id.
func (m *Metrics) InflightRemove(id string) {
	m.Lock()
	defer m.Unlock()
	if m.Inflight > 0 {
		m.Inflight--
	}
	delete(m.InflightList, id)
}

// Increment helpers, one per transaction outcome.
func (m *Metrics) IncTotalRequests() { m.Lock(); m.TotalRequests++; m.Unlock() }
func (m *Metrics) IncServe()         { m.Lock(); m.Serves++; m.Unlock() }
func (m *Metrics) IncMiss()          { m.Lock(); m.Misses++; m.Unlock() }
func (m *Metrics) IncRevalidated()   { m.Lock(); m.Revalidated++; m.Unlock() }
func (m *Metrics) IncBypass()        { m.Lock(); m.Bypass++; m.Unlock() }
func (m *Metrics) IncTunnel()        { m.Lock(); m.Tunnels++; m.Unlock() }
func (m *Metrics) IncOriginErrors()  { m.Lock(); m.OriginErrors++; m.Unlock() }
func (m *Metrics) IncCacheErrors()   { m.Lock(); m.CacheErrors++; m.Unlock() }
func (m *Metrics) IncBadRequests()   { m.Lock(); m.BadRequests++; m.Unlock() }

// ObserveDuration records a transaction duration (in seconds) under a
// named outcome.
func (m *Metrics) ObserveDuration(outcome string, seconds float64) {
	m.Lock()
	defer m.Unlock()
	if _, ok := m.HistCounts[outcome]; !ok {
		m.HistCounts[outcome] = make([]uint64, len(HistogramBuckets))
		m.HistSum[outcome] = 0
		m.HistTotal[outcome] = 0
	}
	m.HistSum[outcome] += seconds
	m.HistTotal[outcome]++
	for i, b := range HistogramBuckets {
		if seconds <= b {
			m.HistCounts[outcome][i]++
			return
		}
	}
	if len(m.HistCounts[outcome]) > 0 {
		m.HistCounts[outcome][len(m.HistCounts[outcome])-1]++
	}
}

// HandleHealth is a simple healthz handler.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HandleVarz writes the resolved configuration as JSON.
func HandleVarz(w http.ResponseWriter, cfg interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cfg)
}

// HandleStatusz renders a small HTML page listing in-flight
// transactions.
func HandleStatusz(w http.ResponseWriter, m *Metrics) {
	m.Lock()
	defer m.Unlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body><h1>Status</h1>"))
	_, _ = w.Write([]byte("<p>Inflight: " + strconv.Itoa(m.Inflight) + "</p>"))
	_, _ = w.Write([]byte("<table border='1'><tr><th>Transaction</th><th>Start</th><th>Age(s)</th></tr>"))
	now := time.Now()
	for k, t := range m.InflightList {
		age := now.Sub(t).Seconds()
		_, _ = w.Write([]byte("<tr><td>" + html.EscapeString(k) + "</td><td>" + t.Format(time.RFC3339) + "</td><td>" + strconv.FormatFloat(age, 'f', 3, 64) + "</td></tr>"))
	}
	_, _ = w.Write([]byte("</table></body></html>"))
}

// HandleMetrics writes Prometheus text-format counters and a latency
// histogram per outcome, hand-formatted rather than built on a client
// library.
func HandleMetrics(w http.ResponseWriter, m *Metrics) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	m.Lock()
	write := func(name, help string, v uint64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", name)
		_, _ = fmt.Fprintf(w, "%s %d\n\n", name, v)
	}
	write("proxy_requests_total", "Total transactions accepted", m.TotalRequests)
	write("proxy_serves_total", "Served fully from cache", m.Serves)
	write("proxy_misses_total", "Fetched from origin and cached", m.Misses)
	write("proxy_revalidated_total", "Served after conditional revalidation", m.Revalidated)
	write("proxy_bypass_total", "Forwarded without caching (POST, non-cacheable)", m.Bypass)
	write("proxy_tunnels_total", "CONNECT tunnels relayed", m.Tunnels)
	write("proxy_origin_errors_total", "Errors contacting origin", m.OriginErrors)
	write("proxy_cache_errors_total", "Cache store I/O errors", m.CacheErrors)
	write("proxy_bad_requests_total", "Malformed client requests rejected with 400", m.BadRequests)

	_, _ = fmt.Fprintf(w, "# HELP proxy_inflight_requests In-flight transactions\n")
	_, _ = fmt.Fprintf(w, "# TYPE proxy_inflight_requests gauge\n")
	_, _ = fmt.Fprintf(w, "proxy_inflight_requests %d\n\n", m.Inflight)

	_, _ = fmt.Fprintf(w, "# HELP proxy_transaction_duration_seconds Transaction duration by outcome\n")
	_, _ = fmt.Fprintf(w, "# TYPE proxy_transaction_duration_seconds histogram\n")
	for outcome, counts := range m.HistCounts {
		cum := uint64(0)
		for i, b := range HistogramBuckets {
			if i < len(counts) {
				cum += counts[i]
			}
			_, _ = fmt.Fprintf(w, "proxy_transaction_duration_seconds_bucket{outcome=\"%s\",le=\"%g\"} %d\n", outcome, b, cum)
		}
		total := m.HistTotal[outcome]
		_, _ = fmt.Fprintf(w, "proxy_transaction_duration_seconds_bucket{outcome=\"%s\",le=\"+Inf\"} %d\n", outcome, total)
		_, _ = fmt.Fprintf(w, "proxy_transaction_duration_seconds_sum{outcome=\"%s\"} %g\n", outcome, m.HistSum[outcome])
		_, _ = fmt.Fprintf(w, "proxy_transaction_duration_seconds_count{outcome=\"%s\"} %d\n\n", outcome, total)
	}
	m.Unlock()
}
