package models

import "time"

// DatabaseCheck reports the database round-trip probe.
type DatabaseCheck struct {
	Status    Severity `json:"status"`
	LatencyMs int64    `json:"latency_ms"`
	Error     string   `json:"error,omitempty"`
}

// QueueCheck reports queue metrics and the recent success rate.
type QueueCheck struct {
	Status      Severity              `json:"status"`
	Metrics     *QueueMetricsSnapshot `json:"metrics,omitempty"`
	SuccessRate float64               `json:"success_rate"`
	Error       string                `json:"error,omitempty"`
}

// CredentialsCheck reports the expiry countdown of an external integration's credentials.
type CredentialsCheck struct {
	Status          Severity   `json:"status"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	DaysUntilExpiry int        `json:"days_until_expiry"`
	Error           string     `json:"error,omitempty"`
}

// RecentErrorsCheck reports the number of error alerts over a trailing window.
type RecentErrorsCheck struct {
	Status        Severity `json:"status"`
	Count         int      `json:"count"`
	WindowMinutes int      `json:"window_minutes"`
	Error         string   `json:"error,omitempty"`
}

// HealthChecks composes the per-check results. AmazonCredentials is nil when
// that integration is not configured.
type HealthChecks struct {
	Database          DatabaseCheck     `json:"database"`
	Queue             QueueCheck        `json:"queue"`
	AmazonCredentials *CredentialsCheck `json:"amazon_credentials,omitempty"`
	RecentErrors      RecentErrorsCheck `json:"recent_errors"`
}

// HealthReport is rebuilt on every request and never persisted.
type HealthReport struct {
	Status          Severity     `json:"status"`
	Timestamp       time.Time    `json:"timestamp"`
	Checks          HealthChecks `json:"checks"`
	Recommendations []string     `json:"recommendations"`
	Summary         string       `json:"summary"`
}
