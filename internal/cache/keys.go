package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// RecentAlertsKey holds the cached recent-alert listing. It is dropped
	// whenever a new alert is dispatched.
	RecentAlertsKey = "alerts:recent"
	// QueueMetricsKey holds the last periodically computed queue snapshot.
	QueueMetricsKey = "queue:metrics"
)

// JobStatusTTL bounds how long a mirrored job status outlives its last write.
const JobStatusTTL = 30 * time.Minute

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
