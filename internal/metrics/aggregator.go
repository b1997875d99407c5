package metrics

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultLatencyWindow is the number of latencies kept per endpoint
const DefaultLatencyWindow = 1000

// PendingPollEndpoint is the aggregator key of the agent claim poll
const PendingPollEndpoint = "GET /api/deployments/pending/{agent_id}"

// Aggregator keeps per-endpoint request counts, a sliding window of
// latencies and counts by status code. Percentiles are computed over the
// window only.
type Aggregator struct {
	mu        sync.Mutex
	start     time.Time
	window    int
	now       func() time.Time
	endpoints map[string]*endpointStats
}

type endpointStats struct {
	count     int64
	latencies *latencyRing
	statuses  map[int]int64
}

// LatencyStats summarizes a latency window in milliseconds
type LatencyStats struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
}

// EndpointSummary is the derived view of one endpoint
type EndpointSummary struct {
	Endpoint          string           `json:"endpoint"`
	RequestCount      int64            `json:"request_count"`
	RequestsPerSecond float64          `json:"requests_per_second"`
	ErrorRate         float64          `json:"error_rate"`
	LatencyMS         LatencyStats     `json:"latency_ms"`
	StatusCodes       map[string]int64 `json:"status_codes"`
}

// Summary is the aggregate view across all endpoints
type Summary struct {
	UptimeSeconds     float64           `json:"uptime_seconds"`
	TotalRequests     int64             `json:"total_requests"`
	RequestsPerSecond float64           `json:"requests_per_second"`
	ErrorRate         float64           `json:"error_rate"`
	Endpoints         []EndpointSummary `json:"endpoints"`
}

// AggregatorOption configures an Aggregator
type AggregatorOption func(*Aggregator)

// WithLatencyWindow sets the number of latencies kept per endpoint
func WithLatencyWindow(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.window = n
		}
	}
}

// WithAggregatorClock replaces time.Now, for tests
func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an aggregator whose uptime starts now
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		window:    DefaultLatencyWindow,
		now:       time.Now,
		endpoints: make(map[string]*endpointStats),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.start = a.now()
	return a
}

// EndpointKey builds the aggregation key from a method and a route template
func EndpointKey(method, route string) string {
	return strings.ToUpper(method) + " " + route
}

// Record adds one request observation
func (a *Aggregator) Record(endpoint string, statusCode int, latency time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats, ok := a.endpoints[endpoint]
	if !ok {
		stats = &endpointStats{
			latencies: newLatencyRing(a.window),
			statuses:  make(map[int]int64),
		}
		a.endpoints[endpoint] = stats
	}
	stats.count++
	stats.latencies.add(latency)
	stats.statuses[statusCode]++
}

// Summary derives the current statistics for every endpoint, sorted by key
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	uptime := a.uptime()
	s := Summary{
		UptimeSeconds: uptime,
		Endpoints:     make([]EndpointSummary, 0, len(a.endpoints)),
	}

	var errCount int64
	for key, stats := range a.endpoints {
		s.TotalRequests += stats.count
		errCount += stats.errorCount()
		s.Endpoints = append(s.Endpoints, stats.summary(key, uptime))
	}
	sort.Slice(s.Endpoints, func(i, j int) bool {
		return s.Endpoints[i].Endpoint < s.Endpoints[j].Endpoint
	})

	s.RequestsPerSecond = rate(float64(s.TotalRequests), uptime)
	s.ErrorRate = rate(float64(errCount), float64(s.TotalRequests))
	return s
}

// Endpoint returns the summary of a single endpoint. ok is false when the
// endpoint has not been called yet.
func (a *Aggregator) Endpoint(key string) (EndpointSummary, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats, ok := a.endpoints[key]
	if !ok {
		return EndpointSummary{Endpoint: key, StatusCodes: map[string]int64{}}, false
	}
	return stats.summary(key, a.uptime()), true
}

func (a *Aggregator) uptime() float64 {
	return a.now().Sub(a.start).Seconds()
}

func (s *endpointStats) errorCount() int64 {
	var n int64
	for code, c := range s.statuses {
		if code < 200 || code >= 300 {
			n += c
		}
	}
	return n
}

func (s *endpointStats) summary(key string, uptime float64) EndpointSummary {
	codes := make(map[string]int64, len(s.statuses))
	for code, c := range s.statuses {
		codes[strconv.Itoa(code)] = c
	}
	return EndpointSummary{
		Endpoint:          key,
		RequestCount:      s.count,
		RequestsPerSecond: rate(float64(s.count), uptime),
		ErrorRate:         rate(float64(s.errorCount()), float64(s.count)),
		LatencyMS:         latencyStats(s.latencies.snapshot()),
		StatusCodes:       codes,
	}
}

// latencyStats sorts the window and reads percentiles at floor(n*q)
func latencyStats(window []time.Duration) LatencyStats {
	n := len(window)
	if n == 0 {
		return LatencyStats{}
	}

	ms := make([]float64, n)
	var sum float64
	for i, d := range window {
		ms[i] = float64(d) / float64(time.Millisecond)
		sum += ms[i]
	}
	sort.Float64s(ms)

	return LatencyStats{
		Mean: sum / float64(n),
		Min:  ms[0],
		Max:  ms[n-1],
		P50:  percentile(ms, 0.50),
		P95:  percentile(ms, 0.95),
		P99:  percentile(ms, 0.99),
	}
}

func percentile(sorted []float64, q float64) float64 {
	idx := int(math.Floor(float64(len(sorted)) * q))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func rate(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}
