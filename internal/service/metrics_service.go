package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/punch-attendance-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	punchesSubmitted  *prometheus.CounterVec
	punchDecisions    *prometheus.CounterVec
	punchDistance     prometheus.Histogram
	otpIssued         prometheus.Counter
	otpVerifications  *prometheus.CounterVec
	mailDeliveries    *prometheus.CounterVec
	locationsRecorded prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	punchSubmitCount     uint64
	punchDecisionCount   uint64
	otpIssuedCount       uint64
}

// NewMetricsService registers core Prometheus collectors.
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	punchesSubmitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "punch_requests_submitted_total",
		Help: "Punch requests submitted by students",
	}, []string{"type"})

	punchDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "punch_requests_decided_total",
		Help: "Punch requests processed by mentors",
	}, []string{"status"})

	punchDistance := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "punch_distance_meters",
		Help:    "Distance between punch position and batch site",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 5000, 25000},
	})

	otpIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "password_reset_otp_issued_total",
		Help: "Password reset codes issued",
	})

	otpVerifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "password_reset_otp_verifications_total",
		Help: "Password reset code verification outcomes",
	}, []string{"result"})

	mailDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mail_deliveries_total",
		Help: "Outbound mail delivery attempts",
	}, []string{"result"})

	locationsRecorded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "locations_recorded_total",
		Help: "Location records appended",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses,
		punchesSubmitted, punchDecisions, punchDistance, otpIssued, otpVerifications, mailDeliveries,
		locationsRecorded, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		punchesSubmitted:  punchesSubmitted,
		punchDecisions:    punchDecisions,
		punchDistance:     punchDistance,
		otpIssued:         otpIssued,
		otpVerifications:  otpVerifications,
		mailDeliveries:    mailDeliveries,
		locationsRecorded: locationsRecorded,
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
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// RecordPunchSubmitted counts a new ledger entry and its distance from site.
func (m *MetricsService) RecordPunchSubmitted(punchType models.PunchType, distance float64) {
	if m == nil {
		return
	}
	m.punchesSubmitted.WithLabelValues(string(punchType)).Inc()
	m.punchDistance.Observe(distance)
	atomic.AddUint64(&m.punchSubmitCount, 1)
}

// RecordPunchDecision counts a mentor decision.
func (m *MetricsService) RecordPunchDecision(status models.PunchStatus) {
	if m == nil {
		return
	}
	m.punchDecisions.WithLabelValues(string(status)).Inc()
	atomic.AddUint64(&m.punchDecisionCount, 1)
}

// RecordOTPIssued counts a stored reset code.
func (m *MetricsService) RecordOTPIssued() {
	if m == nil {
		return
	}
	m.otpIssued.Inc()
	atomic.AddUint64(&m.otpIssuedCount, 1)
}

// RecordOTPVerification counts a verification outcome such as "ok", "expired" or "mismatch".
func (m *MetricsService) RecordOTPVerification(result string) {
	if m == nil {
		return
	}
	m.otpVerifications.WithLabelValues(result).Inc()
}

// RecordMailDelivery counts a mail job outcome.
func (m *MetricsService) RecordMailDelivery(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.mailDeliveries.WithLabelValues(result).Inc()
}

// RecordLocation counts an appended location record.
func (m *MetricsService) RecordLocation() {
	if m == nil {
		return
	}
	m.locationsRecorded.Inc()
}

// Snapshot returns aggregated metrics suitable for the admin summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		PunchesSubmitted:         atomic.LoadUint64(&m.punchSubmitCount),
		PunchesDecided:           atomic.LoadUint64(&m.punchDecisionCount),
		OTPsIssued:               atomic.LoadUint64(&m.otpIssuedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
