package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveScan("lazy", "ok", 20*time.Millisecond)
	m.CacheResult("digest", true)
	m.CacheResult("digest", false)
	m.CacheResult("digest", false)
	m.FileProcessed(120)
	m.FileProcessed(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.scansTotal.WithLabelValues("lazy", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("digest", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("digest", "miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.filesProcessed))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.bytesSampled))
}

func TestMetrics_ActiveGauge(t *testing.T) {
	m := New()
	done := m.ScanStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeScans))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeScans))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveScan("full", "ok", time.Second)
	m.CacheResult("x", true)
	m.FileProcessed(1)
	m.ScanStarted()()
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveScan("full", "ok", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "repomuse_scans_total")
}
