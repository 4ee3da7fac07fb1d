// Package queue watches the enrichment job table: it reclaims jobs that were
// abandoned mid-flight and aggregates queue depth counters.
package queue

import (
	"context"
	"time"

	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// DefaultStaleness is how long an owner may sit in the enriching state without
// any write before its in-flight jobs are considered stuck.
const DefaultStaleness = 10 * time.Minute

// Staleness decides when an in-flight job counts as stuck. The reaper and the
// aggregator share one value so that "stuck" means the same thing to both.
type Staleness struct {
	Threshold time.Duration
	Now       func() time.Time
}

// NewStaleness returns a policy with the given threshold, falling back to
// DefaultStaleness for non-positive values.
func NewStaleness(threshold time.Duration) Staleness {
	if threshold <= 0 {
		threshold = DefaultStaleness
	}
	return Staleness{Threshold: threshold, Now: func() time.Time { return time.Now().UTC() }}
}

// Cutoff is the instant before which a write is considered stale.
func (s Staleness) Cutoff() time.Time {
	return s.current().Add(-s.Threshold)
}

func (s Staleness) current() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

// AlertPublisher records an operational alert.
type AlertPublisher interface {
	Publish(ctx context.Context, severity models.Severity, title, message string) error
}
