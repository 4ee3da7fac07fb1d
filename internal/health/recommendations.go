package health

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// Recommendations returns one remediation hint per degraded check, in the
// fixed order database, queue, credentials, recent errors.
func Recommendations(c models.HealthChecks, limits Thresholds) []string {
	recs := []string{}

	switch {
	case c.Database.Error != "":
		recs = append(recs, "Database is unreachable: verify DATABASE_URL and that Postgres is accepting connections.")
	case c.Database.Status != models.SeverityOK:
		recs = append(recs, fmt.Sprintf("Database round-trip took %dms (limit %dms): look for long-running queries or pool exhaustion.",
			c.Database.LatencyMs, limits.DBSlow.Milliseconds()))
	}

	q := c.Queue
	switch {
	case q.Error != "":
		recs = append(recs, "Queue metrics are unavailable: check the enrichment_jobs table and database health.")
	case q.Metrics != nil:
		if q.Metrics.Stuck > 0 {
			recs = append(recs, fmt.Sprintf("%d job(s) stuck in processing: they will be reclaimed by the reaper; retry large imports in chunks.",
				q.Metrics.Stuck))
		}
		finished := q.Metrics.Completed24h + q.Metrics.Failed24h
		if finished >= limits.MinFinishedForRate && q.SuccessRate < limits.MinSuccessRate {
			recs = append(recs, fmt.Sprintf("Enrichment success rate is %.0f%% over 24h: review error messages on failed jobs.",
				q.SuccessRate*100))
		}
	}

	if cred := c.AmazonCredentials; cred != nil {
		switch {
		case cred.Error != "":
			recs = append(recs, fmt.Sprintf("Amazon credential status unknown (%s): reconnect the integration.", cred.Error))
		case cred.Status == models.SeverityCritical:
			recs = append(recs, "Amazon credentials have expired: re-authorize the integration.")
		case cred.Status == models.SeverityWarning:
			recs = append(recs, fmt.Sprintf("Amazon credentials expire in %d day(s): renew them.", cred.DaysUntilExpiry))
		}
	}

	e := c.RecentErrors
	switch {
	case e.Error != "":
		recs = append(recs, "Recent alert count is unavailable: check the system_alerts table.")
	case e.Status != models.SeverityOK:
		recs = append(recs, fmt.Sprintf("%d warning or critical alerts in the last %d minutes: review the alert log.",
			e.Count, e.WindowMinutes))
	}

	return recs
}

func summarize(status models.Severity, c models.HealthChecks) string {
	var degraded []string
	total := 3
	if c.Database.Status != models.SeverityOK {
		degraded = append(degraded, "database")
	}
	if c.Queue.Status != models.SeverityOK {
		degraded = append(degraded, "queue")
	}
	if c.AmazonCredentials != nil {
		total++
		if c.AmazonCredentials.Status != models.SeverityOK {
			degraded = append(degraded, "amazon_credentials")
		}
	}
	if c.RecentErrors.Status != models.SeverityOK {
		degraded = append(degraded, "recent_errors")
	}

	if len(degraded) == 0 {
		return fmt.Sprintf("All %d checks passed", total)
	}
	return fmt.Sprintf("%s: %d of %d checks degraded (%s)", status, len(degraded), total, strings.Join(degraded, ", "))
}
