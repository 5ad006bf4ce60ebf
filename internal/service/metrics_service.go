package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot is a point-in-time summary served by the health endpoint.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	ExtractionsTotal         uint64    `json:"extractions_total"`
	TransfersTotal           uint64    `json:"transfers_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService owns a private Prometheus registry. Every method is safe on a nil receiver.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	extractions        *prometheus.CounterVec
	extractionDuration prometheus.Observer
	signatoryDecisions *prometheus.CounterVec
	documentMoves      *prometheus.CounterVec
	transfers          *prometheus.CounterVec
	notifications      *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	extractionCount      uint64
	transferCount        uint64
}

// NewMetricsService registers the HTTP, cache and workflow collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	extractions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_extractions_total",
		Help: "Receipt extractions by outcome",
	}, []string{"outcome"})

	extractionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "receipt_extraction_seconds",
		Help:    "Time spent calling the vision model",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	signatoryDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signatory_decisions_total",
		Help: "Signatory decisions by resulting status",
	}, []string{"status"})

	documentMoves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_transitions_total",
		Help: "Document request transitions by target status",
	}, []string{"to"})

	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clearance_transfers_total",
		Help: "Clearance to document transfers by trigger and result",
	}, []string{"trigger", "result"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Student notifications by phase",
	}, []string{"phase"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		extractions, extractionDuration, signatoryDecisions, documentMoves, transfers, notifications, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		extractions:        extractions,
		extractionDuration: extractionDuration,
		signatoryDecisions: signatoryDecisions,
		documentMoves:      documentMoves,
		transfers:          transfers,
		notifications:      notifications,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordExtraction counts a receipt extraction; outcome is a parse stage or an error kind.
func (m *MetricsService) RecordExtraction(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(outcome).Inc()
	if duration > 0 {
		m.extractionDuration.Observe(duration.Seconds())
	}
	atomic.AddUint64(&m.extractionCount, 1)
}

// RecordSignatoryDecision counts approvals, rejections and resets.
func (m *MetricsService) RecordSignatoryDecision(status string) {
	if m == nil {
		return
	}
	m.signatoryDecisions.WithLabelValues(status).Inc()
}

// RecordDocumentTransition counts document status moves by target.
func (m *MetricsService) RecordDocumentTransition(to string) {
	if m == nil {
		return
	}
	m.documentMoves.WithLabelValues(to).Inc()
}

// RecordTransfer counts bridge runs. result is created, existing or failed.
func (m *MetricsService) RecordTransfer(trigger, result string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(trigger, result).Inc()
	if result == "created" {
		atomic.AddUint64(&m.transferCount, 1)
	}
}

// RecordNotification counts notifications by phase.
func (m *MetricsService) RecordNotification(phase string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(phase).Inc()
}

// Snapshot returns aggregated counters for the health endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	snap := MetricsSnapshot{
		RequestsTotal:    requests,
		CacheHits:        hits,
		CacheMisses:      misses,
		ExtractionsTotal: atomic.LoadUint64(&m.extractionCount),
		TransfersTotal:   atomic.LoadUint64(&m.transferCount),
		Goroutines:       runtime.NumGoroutine(),
		GeneratedAt:      time.Now().UTC(),
	}
	if hits+misses > 0 {
		snap.CacheHitRatio = float64(hits) / float64(hits+misses)
	}
	if requests > 0 {
		snap.AverageRequestDurationMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	return snap
}
