package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks overall system performance.
type SystemMetrics struct {
	// Latency histograms
	RequestLatency   *LatencyHistogram
	UpstreamLatency  *LatencyHistogram
	ForecastLatency  *LatencyHistogram
	SentimentLatency *LatencyHistogram
	DBLatency        *LatencyHistogram

	// Counters
	requestsServed   uint64
	ticksRelayed     uint64
	cacheHits        uint64
	cacheMisses      uint64
	errorsCount      uint64
	upstreamSessions int64
	chartViews       int64

	startedAt time.Time
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are recomputed lazily.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool         // Whether samples have changed since last Stats()
	cachedStats LatencyStats // Cached computed stats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		RequestLatency:   NewLatencyHistogram(1000),
		UpstreamLatency:  NewLatencyHistogram(500),
		ForecastLatency:  NewLatencyHistogram(200),
		SentimentLatency: NewLatencyHistogram(200),
		DBLatency:        NewLatencyHistogram(1000),
		startedAt:        time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Shift window: remove oldest
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true // Mark as dirty for lazy recomputation
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
// Uses lazy computation - only recomputes when samples have changed.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Return cached stats if samples haven't changed
	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	// Compute new stats
	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	min, max := sorted[0], sorted[n-1]
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   min,
		Max:   max,
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// IncrementRequests increments served HTTP requests.
func (m *SystemMetrics) IncrementRequests() {
	atomic.AddUint64(&m.requestsServed, 1)
}

// IncrementTicks increments frames relayed to subscribers.
func (m *SystemMetrics) IncrementTicks() {
	atomic.AddUint64(&m.ticksRelayed, 1)
}

// CacheHit counts a market data cache hit.
func (m *SystemMetrics) CacheHit() { atomic.AddUint64(&m.cacheHits, 1) }

// CacheMiss counts a market data cache miss.
func (m *SystemMetrics) CacheMiss() { atomic.AddUint64(&m.cacheMisses, 1) }

// IncrementErrors increments error counter.
func (m *SystemMetrics) IncrementErrors() {
	atomic.AddUint64(&m.errorsCount, 1)
}

// AddUpstreamSessions adjusts the number of live upstream streams.
func (m *SystemMetrics) AddUpstreamSessions(delta int64) {
	atomic.AddInt64(&m.upstreamSessions, delta)
}

// AddChartViews adjusts the number of connected chart views.
func (m *SystemMetrics) AddChartViews(delta int64) {
	atomic.AddInt64(&m.chartViews, delta)
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	RequestLatency   LatencyStats `json:"request_latency"`
	UpstreamLatency  LatencyStats `json:"upstream_latency"`
	ForecastLatency  LatencyStats `json:"forecast_latency"`
	SentimentLatency LatencyStats `json:"sentiment_latency"`
	DBLatency        LatencyStats `json:"db_latency"`
	RequestsServed   uint64       `json:"requests_served"`
	TicksRelayed     uint64       `json:"ticks_relayed"`
	CacheHits        uint64       `json:"cache_hits"`
	CacheMisses      uint64       `json:"cache_misses"`
	ErrorsCount      uint64       `json:"errors_count"`
	UpstreamSessions int64        `json:"upstream_sessions"`
	ChartViews       int64        `json:"chart_views"`
	GoroutineCount   int          `json:"goroutine_count"`
	HeapAlloc        uint64       `json:"heap_alloc_bytes"`
	HeapSys          uint64       `json:"heap_sys_bytes"`
	Uptime           string       `json:"uptime"`
	Timestamp        time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		RequestLatency:   m.RequestLatency.Stats(),
		UpstreamLatency:  m.UpstreamLatency.Stats(),
		ForecastLatency:  m.ForecastLatency.Stats(),
		SentimentLatency: m.SentimentLatency.Stats(),
		DBLatency:        m.DBLatency.Stats(),
		RequestsServed:   atomic.LoadUint64(&m.requestsServed),
		TicksRelayed:     atomic.LoadUint64(&m.ticksRelayed),
		CacheHits:        atomic.LoadUint64(&m.cacheHits),
		CacheMisses:      atomic.LoadUint64(&m.cacheMisses),
		ErrorsCount:      atomic.LoadUint64(&m.errorsCount),
		UpstreamSessions: atomic.LoadInt64(&m.upstreamSessions),
		ChartViews:       atomic.LoadInt64(&m.chartViews),
		GoroutineCount:   runtime.NumGoroutine(),
		HeapAlloc:        memStats.HeapAlloc,
		HeapSys:          memStats.HeapSys,
		Uptime:           time.Since(m.startedAt).Round(time.Second).String(),
		Timestamp:        time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
