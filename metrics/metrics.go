// Package metrics exposes the scan and cache counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors on a private registry, so several instances
// can coexist in one process (tests, multiple servers).
type Metrics struct {
	registry       *prometheus.Registry
	scansTotal     *prometheus.CounterVec
	scanDuration   *prometheus.HistogramVec
	cacheRequests  *prometheus.CounterVec
	filesProcessed prometheus.Counter
	bytesSampled   prometheus.Counter
	activeScans    prometheus.Gauge
}

// New registers every collector on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repomuse",
			Name:      "scans_total",
			Help:      "Scans served, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "repomuse",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of scans, by mode.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 3, 10),
		}, []string{"mode"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repomuse",
			Name:      "cache_requests_total",
			Help:      "Cache lookups, by cache and result.",
		}, []string{"cache", "result"}),
		filesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repomuse",
			Name:      "files_processed_total",
			Help:      "Files that went through the sampling pipeline.",
		}),
		bytesSampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repomuse",
			Name:      "bytes_sampled_total",
			Help:      "Bytes of file content read into digests.",
		}),
		activeScans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "repomuse",
			Name:      "active_scans",
			Help:      "Scans currently running.",
		}),
	}
	m.registry.MustRegister(
		m.scansTotal, m.scanDuration, m.cacheRequests,
		m.filesProcessed, m.bytesSampled, m.activeScans,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveScan records a finished scan
func (m *Metrics) ObserveScan(mode, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(mode, outcome).Inc()
	m.scanDuration.WithLabelValues(mode).Observe(took.Seconds())
}

// CacheResult records a cache hit or miss
func (m *Metrics) CacheResult(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(cache, result).Inc()
}

// FileProcessed records one processed file and the bytes sampled from it
func (m *Metrics) FileProcessed(sampledBytes int) {
	if m == nil {
		return
	}
	m.filesProcessed.Inc()
	if sampledBytes > 0 {
		m.bytesSampled.Add(float64(sampledBytes))
	}
}

// ScanStarted bumps the active gauge; the returned func lowers it
func (m *Metrics) ScanStarted() func() {
	if m == nil {
		return func() {}
	}
	m.activeScans.Inc()
	return m.activeScans.Dec
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the scrape endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
