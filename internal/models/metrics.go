package models

import "time"

// SystemMetrics is a point-in-time summary of the service's instrumentation.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	LoginSuccesses           uint64    `json:"login_successes"`
	LoginFailures            uint64    `json:"login_failures"`
	ReconciledRows           uint64    `json:"reconciled_rows"`
	AuditFailures            uint64    `json:"audit_failures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
