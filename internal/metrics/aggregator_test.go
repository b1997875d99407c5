package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyRing_EvictsOldest(t *testing.T) {
	r := newLatencyRing(3)
	assert.Empty(t, r.snapshot())

	for i := 1; i <= 5; i++ {
		r.add(time.Duration(i) * time.Millisecond)
	}

	assert.Equal(t, []time.Duration{3 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond}, r.snapshot())
}

func TestAggregator_Percentiles(t *testing.T) {
	agg := NewAggregator()
	for i := 1; i <= 100; i++ {
		agg.Record("GET /api/agents", http.StatusOK, time.Duration(i)*time.Millisecond)
	}

	s, ok := agg.Endpoint("GET /api/agents")
	require.True(t, ok)
	assert.Equal(t, int64(100), s.RequestCount)
	assert.InDelta(t, 50.5, s.LatencyMS.Mean, 1e-9)
	assert.Equal(t, 1.0, s.LatencyMS.Min)
	assert.Equal(t, 100.0, s.LatencyMS.Max)
	// sorted[floor(n*q)] over 1..100
	assert.Equal(t, 51.0, s.LatencyMS.P50)
	assert.Equal(t, 96.0, s.LatencyMS.P95)
	assert.Equal(t, 100.0, s.LatencyMS.P99)
}

func TestAggregator_SingleSampleClampsIndex(t *testing.T) {
	agg := NewAggregator()
	agg.Record("GET /x", http.StatusOK, 7*time.Millisecond)

	s, _ := agg.Endpoint("GET /x")
	assert.Equal(t, 7.0, s.LatencyMS.P99)
	assert.Equal(t, 7.0, s.LatencyMS.P50)
}

func TestAggregator_WindowBoundsPercentiles(t *testing.T) {
	agg := NewAggregator(WithLatencyWindow(2))
	agg.Record("GET /x", http.StatusOK, 100*time.Millisecond)
	agg.Record("GET /x", http.StatusOK, 1*time.Millisecond)
	agg.Record("GET /x", http.StatusOK, 2*time.Millisecond)

	s, _ := agg.Endpoint("GET /x")
	assert.Equal(t, int64(3), s.RequestCount, "count is over all time")
	assert.Equal(t, 2.0, s.LatencyMS.Max, "latencies only over the window")
}

func TestAggregator_RatesAndErrors(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	agg := NewAggregator(WithAggregatorClock(func() time.Time { return clock }))

	agg.Record("GET /a", http.StatusOK, time.Millisecond)
	agg.Record("GET /a", http.StatusNotFound, time.Millisecond)
	agg.Record("POST /b", http.StatusCreated, time.Millisecond)
	agg.Record("POST /b", http.StatusInternalServerError, time.Millisecond)
	clock = now.Add(2 * time.Second)

	s := agg.Summary()
	assert.Equal(t, int64(4), s.TotalRequests)
	assert.InDelta(t, 2.0, s.RequestsPerSecond, 1e-9)
	assert.InDelta(t, 0.5, s.ErrorRate, 1e-9)
	require.Len(t, s.Endpoints, 2)
	assert.Equal(t, "GET /a", s.Endpoints[0].Endpoint)
	assert.Equal(t, int64(1), s.Endpoints[0].StatusCodes["404"])
	assert.InDelta(t, 0.5, s.Endpoints[1].ErrorRate, 1e-9)

	_, ok := agg.Endpoint("DELETE /none")
	assert.False(t, ok)
}

func TestHTTPMiddleware_GroupsByRouteTemplate(t *testing.T) {
	agg := NewAggregator()
	r := mux.NewRouter()
	r.Use(HTTPMiddleware(agg))
	r.HandleFunc("/api/deployments/pending/{agent_id}", func(w http.ResponseWriter, r *http.Request) {
		if mux.Vars(r)["agent_id"] == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("null"))
	}).Methods(http.MethodGet)

	for _, id := range []string{"a", "b", "missing"} {
		req := httptest.NewRequest(http.MethodGet, "/api/deployments/pending/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	s, ok := agg.Endpoint(PendingPollEndpoint)
	require.True(t, ok)
	assert.Equal(t, int64(3), s.RequestCount)
	assert.Equal(t, int64(2), s.StatusCodes["200"])
	assert.Equal(t, int64(1), s.StatusCodes["404"])
}

func TestUnmatchedHandler_KeysByRawPath(t *testing.T) {
	agg := NewAggregator()
	r := mux.NewRouter()
	r.Use(HTTPMiddleware(agg))
	r.HandleFunc("/api/agents", func(w http.ResponseWriter, r *http.Request) {}).Methods(http.MethodGet)
	r.NotFoundHandler = UnmatchedHandler(agg, http.NotFoundHandler())

	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/nothing-here", nil))
	}

	s, ok := agg.Endpoint("GET /api/nothing-here")
	require.True(t, ok)
	assert.Equal(t, int64(3), s.RequestCount)
	assert.Equal(t, int64(3), s.StatusCodes["404"])
	assert.InDelta(t, 1.0, s.ErrorRate, 1e-9)
}
