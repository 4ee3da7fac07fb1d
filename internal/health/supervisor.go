// Package health composes the database probe, queue metrics, credential expiry
// and the recent alert rate into a single HealthReport.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/enrichq/internal/config"
	"github.com/kiranshivaraju/enrichq/internal/store"
	"github.com/kiranshivaraju/enrichq/pkg/models"
	"golang.org/x/sync/errgroup"
)

// AmazonProvider is the credential_states key for the Amazon integration.
const AmazonProvider = "amazon"

// DefaultCheckTimeout bounds each individual check.
const DefaultCheckTimeout = 5 * time.Second

// MetricsSource produces a queue snapshot.
type MetricsSource interface {
	Snapshot(ctx context.Context) (*models.QueueMetricsSnapshot, error)
}

// AlertPublisher records an operational alert.
type AlertPublisher interface {
	Publish(ctx context.Context, severity models.Severity, title, message string) error
}

// Thresholds tune when a check degrades.
type Thresholds struct {
	DBSlow             time.Duration
	StuckCritical      int
	MinSuccessRate     float64
	MinFinishedForRate int
	CredentialWarnDays int
	ErrorWindow        time.Duration
	ErrorWarnCount     int
	ErrorCriticalCount int
	CheckCredentials   bool
}

// ThresholdsFromConfig maps the environment configuration onto Thresholds.
func ThresholdsFromConfig(h config.HealthConfig, c config.CredentialsConfig) Thresholds {
	return Thresholds{
		DBSlow:             h.DBSlowThreshold,
		StuckCritical:      h.StuckCritical,
		MinSuccessRate:     h.MinSuccessRate,
		MinFinishedForRate: h.MinFinishedForRate,
		CredentialWarnDays: h.CredentialWarnDays,
		ErrorWindow:        h.ErrorWindow,
		ErrorWarnCount:     h.ErrorWarnCount,
		ErrorCriticalCount: h.ErrorCriticalCount,
		CheckCredentials:   c.AmazonEnabled,
	}
}

// Supervisor builds health reports. Every check runs independently; a failing
// check records its error in its own slot and the others still run.
type Supervisor struct {
	store   store.Store
	metrics MetricsSource
	alerts  AlertPublisher
	limits  Thresholds
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu         sync.Mutex
	lastStatus models.Severity
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// WithAlerts makes Run publish an alert whenever the overall status worsens.
func WithAlerts(p AlertPublisher) Option {
	return func(s *Supervisor) { s.alerts = p }
}

// WithCheckTimeout overrides DefaultCheckTimeout. A check still running at the
// deadline is reported in its own slot and does not hold up the report.
func WithCheckTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(st store.Store, metrics MetricsSource, limits Thresholds, opts ...Option) *Supervisor {
	s := &Supervisor{
		store:      st,
		metrics:    metrics,
		limits:     limits,
		timeout:    DefaultCheckTimeout,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.With("component", "health.supervisor"),
		lastStatus: models.SeverityOK,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check runs all checks concurrently and assembles the report. It never
// returns an error: failures are reported per check.
func (s *Supervisor) Check(ctx context.Context) *models.HealthReport {
	var checks models.HealthChecks
	var g errgroup.Group

	g.Go(func() error {
		checks.Database = guard(ctx, "database", s.timeout, s.checkDatabase,
			func(msg string) models.DatabaseCheck {
				return models.DatabaseCheck{Status: models.SeverityCritical, Error: msg}
			})
		return nil
	})
	g.Go(func() error {
		checks.Queue = guard(ctx, "queue", s.timeout, s.checkQueue,
			func(msg string) models.QueueCheck {
				return models.QueueCheck{Status: models.SeverityCritical, Error: msg}
			})
		return nil
	})
	if s.limits.CheckCredentials {
		g.Go(func() error {
			c := guard(ctx, "amazon_credentials", s.timeout, s.checkCredentials,
				func(msg string) models.CredentialsCheck {
					return models.CredentialsCheck{Status: models.SeverityWarning, Error: msg}
				})
			checks.AmazonCredentials = &c
			return nil
		})
	}
	g.Go(func() error {
		checks.RecentErrors = guard(ctx, "recent_errors", s.timeout, s.checkRecentErrors,
			func(msg string) models.RecentErrorsCheck {
				return models.RecentErrorsCheck{Status: models.SeverityWarning, Error: msg,
					WindowMinutes: int(s.limits.ErrorWindow.Minutes())}
			})
		return nil
	})
	_ = g.Wait()

	status := overallStatus(checks)
	return &models.HealthReport{
		Status:          status,
		Timestamp:       s.now(),
		Checks:          checks,
		Recommendations: Recommendations(checks, s.limits),
		Summary:         summarize(status, checks),
	}
}

// Run builds a report and publishes an alert when the overall status is worse
// than on the previous run.
func (s *Supervisor) Run(ctx context.Context) error {
	report := s.Check(ctx)

	s.mu.Lock()
	prev := s.lastStatus
	s.lastStatus = report.Status
	s.mu.Unlock()

	if report.Status.Rank() <= prev.Rank() {
		return nil
	}

	s.logger.Warn("system health degraded", "from", prev, "to", report.Status, "summary", report.Summary)
	if s.alerts == nil {
		return nil
	}
	title := fmt.Sprintf("System health %s", report.Status)
	if err := s.alerts.Publish(ctx, report.Status, title, report.Summary); err != nil {
		return fmt.Errorf("publishing health alert: %w", err)
	}
	return nil
}

func (s *Supervisor) checkDatabase(ctx context.Context) models.DatabaseCheck {
	start := time.Now()
	err := s.store.Ping(ctx)
	latency := time.Since(start)

	check := models.DatabaseCheck{Status: models.SeverityOK, LatencyMs: latency.Milliseconds()}
	switch {
	case err != nil:
		check.Status = models.SeverityCritical
		check.Error = err.Error()
	case s.limits.DBSlow > 0 && latency > s.limits.DBSlow:
		check.Status = models.SeverityWarning
	}
	return check
}

func (s *Supervisor) checkQueue(ctx context.Context) models.QueueCheck {
	snap, err := s.metrics.Snapshot(ctx)
	if err != nil {
		return models.QueueCheck{Status: models.SeverityCritical, Error: err.Error()}
	}

	check := models.QueueCheck{Status: models.SeverityOK, Metrics: snap, SuccessRate: snap.SuccessRate()}
	if snap.Stuck > 0 {
		check.Status = models.SeverityWarning
	}
	if snap.Completed24h+snap.Failed24h >= s.limits.MinFinishedForRate && check.SuccessRate < s.limits.MinSuccessRate {
		check.Status = models.SeverityWarning
	}
	if snap.Stuck > s.limits.StuckCritical {
		check.Status = models.SeverityCritical
	}
	return check
}

func (s *Supervisor) checkCredentials(ctx context.Context) models.CredentialsCheck {
	expiresAt, err := s.store.GetCredentialExpiry(ctx, AmazonProvider)
	if errors.Is(err, store.ErrNotFound) {
		return models.CredentialsCheck{Status: models.SeverityWarning, Error: "no credential record"}
	}
	if err != nil {
		return models.CredentialsCheck{Status: models.SeverityWarning, Error: err.Error()}
	}

	remaining := expiresAt.Sub(s.now())
	check := models.CredentialsCheck{
		Status:          models.SeverityOK,
		ExpiresAt:       &expiresAt,
		DaysUntilExpiry: int(remaining.Hours() / 24),
	}
	switch {
	case remaining <= 0:
		check.Status = models.SeverityCritical
	case check.DaysUntilExpiry <= s.limits.CredentialWarnDays:
		check.Status = models.SeverityWarning
	}
	return check
}

func (s *Supervisor) checkRecentErrors(ctx context.Context) models.RecentErrorsCheck {
	window := s.limits.ErrorWindow
	check := models.RecentErrorsCheck{Status: models.SeverityOK, WindowMinutes: int(window.Minutes())}

	n, err := s.store.CountAlertsSince(ctx, s.now().Add(-window),
		[]models.Severity{models.SeverityWarning, models.SeverityCritical})
	if err != nil {
		check.Status = models.SeverityWarning
		check.Error = err.Error()
		return check
	}

	check.Count = n
	switch {
	case n > s.limits.ErrorCriticalCount:
		check.Status = models.SeverityCritical
	case n > s.limits.ErrorWarnCount:
		check.Status = models.SeverityWarning
	}
	return check
}

// guard runs check and converts a panic into the fallback result.
// guard runs check under its own deadline. A panic or an overrun is turned
// into the fallback result; a check that ignores its context is abandoned.
func guard[T any](ctx context.Context, name string, timeout time.Duration, check func(context.Context) T, fallback func(msg string) T) T {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan T, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in health check", "check", name, "error", r)
				done <- fallback(fmt.Sprintf("panic: %v", r))
			}
		}()
		done <- check(cctx)
	}()

	select {
	case out := <-done:
		return out
	case <-cctx.Done():
		slog.Warn("health check timed out", "check", name, "timeout", timeout.String())
		return fallback(fmt.Sprintf("timed out after %s", timeout))
	}
}

func overallStatus(c models.HealthChecks) models.Severity {
	status := models.SeverityOK
	status = models.MaxSeverity(status, c.Database.Status)
	status = models.MaxSeverity(status, c.Queue.Status)
	if c.AmazonCredentials != nil {
		status = models.MaxSeverity(status, c.AmazonCredentials.Status)
	}
	return models.MaxSeverity(status, c.RecentErrors.Status)
}
