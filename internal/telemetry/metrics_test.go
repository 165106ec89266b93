package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveRetrieve(t *testing.T) {
	// Given: fresh metrics
	m := NewMetrics(nil)

	// When: recording calls with different outcomes
	m.ObserveRetrieve("ok", 20*time.Millisecond, 3)
	m.ObserveRetrieve("ok", 30*time.Millisecond, 1)
	m.ObserveRetrieve("not_ready", 0, 0)

	// Then: counters are split by outcome
	assert.InDelta(t, 2, testutil.ToFloat64(m.retrieveTotal.WithLabelValues("ok")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.retrieveTotal.WithLabelValues("not_ready")), 1e-9)
}

func TestMetrics_VariantDroppedAndIndexState(t *testing.T) {
	m := NewMetrics(nil)

	m.VariantDropped("deadline")
	m.VariantDropped("deadline")
	m.VariantDropped("embed_failed")
	m.IndexState(42, true)

	assert.InDelta(t, 2, testutil.ToFloat64(m.variantsDropped.WithLabelValues("deadline")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.variantsDropped.WithLabelValues("embed_failed")), 1e-9)
	assert.InDelta(t, 42, testutil.ToFloat64(m.indexChunks), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.lexicalActive), 1e-9)

	m.IndexState(0, false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.lexicalActive), 1e-9)
}

func TestMetrics_ObserveQueryFeedsStats(t *testing.T) {
	stats := NewQueryStats(QueryStatsConfig{})
	m := NewMetrics(stats)

	m.ObserveQuery("what is photosynthesis?", 0, 10*time.Millisecond)

	snap := m.Queries().Snapshot()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRetrieve("ok", time.Millisecond, 1)
		m.ObserveQuery("q", 1, time.Millisecond)
		m.VariantDropped("deadline")
		m.IndexState(1, true)
	})
	assert.Nil(t, m.Queries())
}

func TestMetrics_Handler(t *testing.T) {
	// Given: metrics with one observation
	m := NewMetrics(nil)
	m.ObserveRetrieve("ok", 5*time.Millisecond, 2)

	// When: scraping
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// Then: the tutor series are exposed
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `tutor_retrieve_total{outcome="ok"} 1`)
	assert.Contains(t, string(body), "tutor_retrieve_duration_seconds_bucket")
	assert.Contains(t, string(body), "tutor_index_chunks")
}

func TestMetrics_Middleware(t *testing.T) {
	// Given: a handler wrapped by the middleware
	m := NewMetrics(nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/retrieve" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	// When: serving known and unknown paths
	for _, path := range []string{"/v1/retrieve", "/healthz", "/secret/../x"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	// Then: requests are counted by normalized path and status
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/v1/retrieve", "503")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/healthz", "200")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "other", "200")), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(m.requestInFlight), 1e-9)
}
