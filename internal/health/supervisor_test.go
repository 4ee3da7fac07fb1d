package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/enrichq/internal/health"
	"github.com/kiranshivaraju/enrichq/internal/store"
	"github.com/kiranshivaraju/enrichq/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func defaultLimits() health.Thresholds {
	return health.Thresholds{
		DBSlow:             time.Second,
		StuckCritical:      5,
		MinSuccessRate:     0.8,
		MinFinishedForRate: 5,
		CredentialWarnDays: 7,
		ErrorWindow:        time.Hour,
		ErrorWarnCount:     10,
		ErrorCriticalCount: 50,
	}
}

// mockMetrics returns a fixed snapshot or error.
type mockMetrics struct {
	snap *models.QueueMetricsSnapshot
	err  error
}

func (m *mockMetrics) Snapshot(context.Context) (*models.QueueMetricsSnapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	cp := *m.snap
	return &cp, nil
}

// mockPublisher records published alerts.
type mockPublisher struct {
	mu     sync.Mutex
	alerts []models.AlertEvent
}

func (m *mockPublisher) Publish(_ context.Context, severity models.Severity, title, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, models.AlertEvent{Severity: severity, Title: title, Message: message})
	return nil
}

// slowStore delays Ping.
type slowStore struct {
	*store.MemoryStore
	delay time.Duration
}

func (s slowStore) Ping(ctx context.Context) error {
	time.Sleep(s.delay)
	return s.MemoryStore.Ping(ctx)
}

func healthyMetrics() *mockMetrics {
	return &mockMetrics{snap: &models.QueueMetricsSnapshot{Pending: 2, Completed24h: 20, Failed24h: 1}}
}

func addAlerts(t *testing.T, s *store.MemoryStore, n int, sev models.Severity) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.CreateAlert(context.Background(), &models.AlertEvent{
			ID: uuid.New(), Severity: sev, Title: "t", CreatedAt: fixedNow.Add(-time.Minute),
		}))
	}
}

func TestCheck_AllHealthy(t *testing.T) {
	s := store.NewMemoryStore()
	sup := health.NewSupervisor(s, healthyMetrics(), defaultLimits(), health.WithClock(clock))

	report := sup.Check(context.Background())

	assert.Equal(t, models.SeverityOK, report.Status)
	assert.Equal(t, fixedNow, report.Timestamp)
	assert.Equal(t, models.SeverityOK, report.Checks.Database.Status)
	assert.Equal(t, models.SeverityOK, report.Checks.Queue.Status)
	assert.Nil(t, report.Checks.AmazonCredentials)
	assert.Empty(t, report.Recommendations)
	assert.Equal(t, "All 3 checks passed", report.Summary)
}

func TestCheck_DatabaseFailureDoesNotAbortOtherChecks(t *testing.T) {
	s := store.NewMemoryStore()
	s.SetPingError(errors.New("dial tcp: connection refused"))
	addAlerts(t, s, 12, models.SeverityWarning)

	sup := health.NewSupervisor(s, healthyMetrics(), defaultLimits(), health.WithClock(clock))
	report := sup.Check(context.Background())

	assert.Equal(t, models.SeverityCritical, report.Status)
	assert.Equal(t, models.SeverityCritical, report.Checks.Database.Status)
	assert.Contains(t, report.Checks.Database.Error, "connection refused")

	require.NotNil(t, report.Checks.Queue.Metrics)
	assert.Equal(t, 2, report.Checks.Queue.Metrics.Pending)
	assert.Equal(t, 12, report.Checks.RecentErrors.Count)
	assert.Equal(t, models.SeverityWarning, report.Checks.RecentErrors.Status)

	require.Len(t, report.Recommendations, 2)
	assert.Contains(t, report.Recommendations[0], "Database is unreachable")
	assert.Contains(t, report.Recommendations[1], "12 warning or critical alerts")
	assert.Contains(t, report.Summary, "database")
}

func TestCheck_SlowDatabaseWarns(t *testing.T) {
	s := slowStore{MemoryStore: store.NewMemoryStore(), delay: 5 * time.Millisecond}
	limits := defaultLimits()
	limits.DBSlow = time.Millisecond

	report := health.NewSupervisor(s, healthyMetrics(), limits).Check(context.Background())

	assert.Equal(t, models.SeverityWarning, report.Checks.Database.Status)
	assert.Empty(t, report.Checks.Database.Error)
	assert.GreaterOrEqual(t, report.Checks.Database.LatencyMs, int64(5))
}

func TestCheck_QueueThresholds(t *testing.T) {
	tests := []struct {
		name string
		snap models.QueueMetricsSnapshot
		want models.Severity
	}{
		{"idle", models.QueueMetricsSnapshot{}, models.SeverityOK},
		{"one stuck", models.QueueMetricsSnapshot{Stuck: 1, Completed24h: 10}, models.SeverityWarning},
		{"five stuck", models.QueueMetricsSnapshot{Stuck: 5, Completed24h: 10}, models.SeverityWarning},
		{"six stuck", models.QueueMetricsSnapshot{Stuck: 6, Completed24h: 10}, models.SeverityCritical},
		{"low success rate", models.QueueMetricsSnapshot{Completed24h: 3, Failed24h: 7}, models.SeverityWarning},
		{"too few finished to judge", models.QueueMetricsSnapshot{Completed24h: 1, Failed24h: 3}, models.SeverityOK},
		{"rate at threshold", models.QueueMetricsSnapshot{Completed24h: 8, Failed24h: 2}, models.SeverityOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := tt.snap
			sup := health.NewSupervisor(store.NewMemoryStore(), &mockMetrics{snap: &snap}, defaultLimits())
			report := sup.Check(context.Background())
			assert.Equal(t, tt.want, report.Checks.Queue.Status)
			assert.Equal(t, tt.want, report.Status)
		})
	}
}

func TestCheck_QueueErrorIsCritical(t *testing.T) {
	sup := health.NewSupervisor(store.NewMemoryStore(), &mockMetrics{err: errors.New("timeout")}, defaultLimits())

	report := sup.Check(context.Background())

	assert.Equal(t, models.SeverityCritical, report.Checks.Queue.Status)
	assert.Equal(t, "timeout", report.Checks.Queue.Error)
	assert.Nil(t, report.Checks.Queue.Metrics)
	assert.Equal(t, models.SeverityOK, report.Checks.Database.Status)
}

func TestCheck_Credentials(t *testing.T) {
	tests := []struct {
		name     string
		expiry   *time.Time
		want     models.Severity
		wantDays int
	}{
		{"expired", ptr(fixedNow.Add(-time.Hour)), models.SeverityCritical, 0},
		{"expiring soon", ptr(fixedNow.Add(3*24*time.Hour + time.Hour)), models.SeverityWarning, 3},
		{"plenty of time", ptr(fixedNow.Add(30 * 24 * time.Hour)), models.SeverityOK, 30},
		{"no record", nil, models.SeverityWarning, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			if tt.expiry != nil {
				s.SetCredentialExpiry(health.AmazonProvider, *tt.expiry)
			}
			limits := defaultLimits()
			limits.CheckCredentials = true

			report := health.NewSupervisor(s, healthyMetrics(), limits, health.WithClock(clock)).Check(context.Background())

			require.NotNil(t, report.Checks.AmazonCredentials)
			assert.Equal(t, tt.want, report.Checks.AmazonCredentials.Status)
			assert.Equal(t, tt.wantDays, report.Checks.AmazonCredentials.DaysUntilExpiry)
			assert.Equal(t, tt.want, report.Status)
		})
	}
}

func TestCheck_RecentErrorThresholds(t *testing.T) {
	tests := []struct {
		count int
		want  models.Severity
	}{
		{0, models.SeverityOK},
		{10, models.SeverityOK},
		{11, models.SeverityWarning},
		{51, models.SeverityCritical},
	}

	for _, tt := range tests {
		s := store.NewMemoryStore()
		addAlerts(t, s, tt.count, models.SeverityCritical)
		addAlerts(t, s, 20, models.SeverityInfo)

		report := health.NewSupervisor(s, healthyMetrics(), defaultLimits(), health.WithClock(clock)).Check(context.Background())

		assert.Equal(t, tt.count, report.Checks.RecentErrors.Count)
		assert.Equal(t, tt.want, report.Checks.RecentErrors.Status, "count=%d", tt.count)
		assert.Equal(t, 60, report.Checks.RecentErrors.WindowMinutes)
	}
}

func TestCheck_RecommendationOrderIsDeterministic(t *testing.T) {
	s := store.NewMemoryStore()
	s.SetPingError(errors.New("down"))
	s.SetCredentialExpiry(health.AmazonProvider, fixedNow.Add(-time.Hour))
	addAlerts(t, s, 60, models.SeverityCritical)
	limits := defaultLimits()
	limits.CheckCredentials = true
	metrics := &mockMetrics{snap: &models.QueueMetricsSnapshot{Stuck: 2, Completed24h: 1, Failed24h: 9}}

	sup := health.NewSupervisor(s, metrics, limits, health.WithClock(clock))
	first := sup.Check(context.Background())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first.Recommendations, sup.Check(context.Background()).Recommendations)
	}

	require.Len(t, first.Recommendations, 5)
	assert.Contains(t, first.Recommendations[0], "Database")
	assert.Contains(t, first.Recommendations[1], "stuck")
	assert.Contains(t, first.Recommendations[2], "success rate is 10%")
	assert.Contains(t, first.Recommendations[3], "expired")
	assert.Contains(t, first.Recommendations[4], "alerts")
	assert.Equal(t, "critical: 4 of 4 checks degraded (database, queue, amazon_credentials, recent_errors)", first.Summary)
}

func TestReport_JSONShape(t *testing.T) {
	sup := health.NewSupervisor(store.NewMemoryStore(), healthyMetrics(), defaultLimits(), health.WithClock(clock))
	data, err := json.Marshal(sup.Check(context.Background()))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.ElementsMatch(t, []string{"status", "timestamp", "checks", "recommendations", "summary"}, keys(raw))

	checks := raw["checks"].(map[string]any)
	assert.ElementsMatch(t, []string{"database", "queue", "recent_errors"}, keys(checks))
	assert.Equal(t, []any{}, raw["recommendations"])
}

func TestRun_AlertsOnlyWhenStatusWorsens(t *testing.T) {
	s := store.NewMemoryStore()
	pub := &mockPublisher{}
	sup := health.NewSupervisor(s, healthyMetrics(), defaultLimits(), health.WithClock(clock), health.WithAlerts(pub))
	ctx := context.Background()

	require.NoError(t, sup.Run(ctx))
	assert.Empty(t, pub.alerts)

	s.SetPingError(errors.New("down"))
	require.NoError(t, sup.Run(ctx))
	require.Len(t, pub.alerts, 1)
	assert.Equal(t, models.SeverityCritical, pub.alerts[0].Severity)
	assert.Equal(t, "System health critical", pub.alerts[0].Title)

	require.NoError(t, sup.Run(ctx))
	assert.Len(t, pub.alerts, 1)

	s.SetPingError(nil)
	require.NoError(t, sup.Run(ctx))
	assert.Len(t, pub.alerts, 1)

	s.SetPingError(errors.New("down again"))
	require.NoError(t, sup.Run(ctx))
	assert.Len(t, pub.alerts, 2)
}

// panickyMetrics panics on every snapshot.
type panickyMetrics struct{}

func (panickyMetrics) Snapshot(context.Context) (*models.QueueMetricsSnapshot, error) {
	panic("nil map")
}

func TestCheck_PanickingCheckIsContained(t *testing.T) {
	report := health.NewSupervisor(store.NewMemoryStore(), panickyMetrics{}, defaultLimits()).Check(context.Background())

	assert.Equal(t, models.SeverityCritical, report.Checks.Queue.Status)
	assert.Contains(t, report.Checks.Queue.Error, "panic")
	assert.Equal(t, models.SeverityOK, report.Checks.Database.Status)
}

// stalledStore blocks Ping until released, ignoring its context.
type stalledStore struct {
	*store.MemoryStore
	release chan struct{}
}

func (s stalledStore) Ping(context.Context) error {
	<-s.release
	return nil
}

func TestCheck_StalledCheckTimesOutAlone(t *testing.T) {
	st := stalledStore{MemoryStore: store.NewMemoryStore(), release: make(chan struct{})}
	t.Cleanup(func() { close(st.release) })

	sup := health.NewSupervisor(st, healthyMetrics(), defaultLimits(), health.WithCheckTimeout(50*time.Millisecond))

	start := time.Now()
	report := sup.Check(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, models.SeverityCritical, report.Checks.Database.Status)
	assert.Contains(t, report.Checks.Database.Error, "timed out")
	assert.Equal(t, models.SeverityOK, report.Checks.Queue.Status)
	assert.Equal(t, models.SeverityOK, report.Checks.RecentErrors.Status)
}

func ptr[T any](v T) *T { return &v }

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
