package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/student-tracker-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	loginAttempts   *prometheus.CounterVec
	reconciledRows  *prometheus.CounterVec
	auditFailures   prometheus.Counter
	txDuration      *prometheus.HistogramVec

	requestCount         uint64
	requestDurationTotal uint64
	loginSuccessCount    uint64
	loginFailureCount    uint64
	reconciledCount      uint64
	auditFailureCount    uint64
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

	loginAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Login attempts by scheme and outcome",
	}, []string{"scheme", "outcome"})

	reconciledRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculum_reconciled_rows_total",
		Help: "Junction rows written by curriculum reconciliation",
	}, []string{"junction"})

	auditFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_write_failures_total",
		Help: "Audit entries that could not be stored",
	})

	txDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_transaction_duration_seconds",
		Help:    "Duration of multi-table write transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, loginAttempts, reconciledRows, auditFailures, txDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		loginAttempts:   loginAttempts,
		reconciledRows:  reconciledRows,
		auditFailures:   auditFailures,
		txDuration:      txDuration,
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

// RecordLogin counts a login attempt for the given scheme.
func (m *MetricsService) RecordLogin(role models.Role, success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
		atomic.AddUint64(&m.loginSuccessCount, 1)
	} else {
		atomic.AddUint64(&m.loginFailureCount, 1)
	}
	m.loginAttempts.WithLabelValues(string(role), outcome).Inc()
}

// RecordReconciled counts junction rows written for a curriculum.
func (m *MetricsService) RecordReconciled(junction string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.reconciledRows.WithLabelValues(junction).Add(float64(rows))
	atomic.AddUint64(&m.reconciledCount, uint64(rows))
}

// RecordAuditFailure counts an audit entry that was dropped.
func (m *MetricsService) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
	atomic.AddUint64(&m.auditFailureCount, 1)
}

// ObserveTransaction records how long a write transaction took.
func (m *MetricsService) ObserveTransaction(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.txDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Snapshot returns aggregated metrics suitable for the admin dashboard.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		LoginSuccesses:           atomic.LoadUint64(&m.loginSuccessCount),
		LoginFailures:            atomic.LoadUint64(&m.loginFailureCount),
		ReconciledRows:           atomic.LoadUint64(&m.reconciledCount),
		AuditFailures:            atomic.LoadUint64(&m.auditFailureCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
