package cache_store

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/morler/repomuse/metrics"
)

// CacheStats tracks hit and miss counts for one cache tier
type CacheStats struct {
	name          string
	metrics       *metrics.Metrics
	TotalRequests int64
	CacheHits     int64
	CacheMisses   int64
	LastResetTime time.Time
	mutex         sync.RWMutex
}

// NewCacheStats creates counters for a tier; m may be nil
func NewCacheStats(name string, m *metrics.Metrics) *CacheStats {
	return &CacheStats{name: name, metrics: m, LastResetTime: time.Now()}
}

// recordCacheHit increments cache hit counter
func (s *CacheStats) recordCacheHit() {
	if s == nil {
		return
	}
	s.mutex.Lock()
	s.TotalRequests++
	s.CacheHits++
	s.mutex.Unlock()
	s.metrics.CacheResult(s.name, true)
}

// recordCacheMiss increments cache miss counter
func (s *CacheStats) recordCacheMiss() {
	if s == nil {
		return
	}
	s.mutex.Lock()
	s.TotalRequests++
	s.CacheMisses++
	s.mutex.Unlock()
	s.metrics.CacheResult(s.name, false)
}

// Record counts a hit or a miss
func (s *CacheStats) Record(hit bool) {
	if hit {
		s.recordCacheHit()
	} else {
		s.recordCacheMiss()
	}
}

// GetPerformanceStats returns hit rate and throughput for the tier
func (s *CacheStats) GetPerformanceStats() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{
			"total_requests":      0,
			"cache_hits":          0,
			"cache_misses":        0,
			"hit_rate_percent":    0.0,
			"miss_rate_percent":   0.0,
			"uptime_seconds":      0.0,
			"uptime_human":        "0s",
			"requests_per_second": 0.0,
		}
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	hitRate := 0.0
	missRate := 0.0
	if s.TotalRequests > 0 {
		hitRate = float64(s.CacheHits) / float64(s.TotalRequests) * 100
		missRate = float64(s.CacheMisses) / float64(s.TotalRequests) * 100
	}

	uptime := time.Since(s.LastResetTime)
	reqPerSec := 0.0
	if uptime.Seconds() > 0 {
		reqPerSec = float64(s.TotalRequests) / uptime.Seconds()
	}

	return map[string]interface{}{
		"total_requests":      s.TotalRequests,
		"cache_hits":          s.CacheHits,
		"cache_misses":        s.CacheMisses,
		"hit_rate_percent":    hitRate,
		"miss_rate_percent":   missRate,
		"uptime_seconds":      uptime.Seconds(),
		"uptime_human":        humanize.RelTime(s.LastResetTime, time.Now(), "", ""),
		"requests_per_second": reqPerSec,
		"last_reset":          s.LastResetTime.Format(time.RFC3339),
	}
}

// ResetPerformanceStats resets all performance counters
func (s *CacheStats) ResetPerformanceStats() {
	if s == nil {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.TotalRequests = 0
	s.CacheHits = 0
	s.CacheMisses = 0
	s.LastResetTime = time.Now()
}
