package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Enrichment types known to the pipeline. The set is open: any non-empty tag is
// accepted and forwarded to the enrichment capability as-is.
const (
	EnrichmentAttributes = "attributes"
	EnrichmentHSCode     = "hs_code"
	EnrichmentTaxonomy   = "taxonomy"
	EnrichmentAmazonLink = "amazon_link"
)

// EnrichmentJob is the envelope tracking one enrichment unit of work for an owner
// (product or analysis). The enrichment itself happens elsewhere; the job only
// records where the work is in its lifecycle.
type EnrichmentJob struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	OwnerID        uuid.UUID `db:"owner_id"        json:"owner_id"`
	EnrichmentType string    `db:"enrichment_type" json:"enrichment_type"`
	Status         string    `db:"status"          json:"status"`
	ErrorMessage   *string   `db:"error_message"   json:"error_message,omitempty"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"      json:"updated_at"`
}

// jobPredecessors maps each target status to the statuses it may be reached from.
var jobPredecessors = map[string][]string{
	JobStatusProcessing: {JobStatusPending},
	JobStatusCompleted:  {JobStatusProcessing},
	JobStatusFailed:     {JobStatusProcessing},
}

// JobPredecessors returns the statuses from which target is reachable.
// Returns nil for pending and for unknown statuses.
func JobPredecessors(target string) []string {
	return jobPredecessors[target]
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to string) bool {
	for _, p := range jobPredecessors[to] {
		if p == from {
			return true
		}
	}
	return false
}

// IsTerminalJobStatus reports whether no further transition is possible.
func IsTerminalJobStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// IsValidJobStatus reports whether status belongs to the closed status set.
func IsValidJobStatus(status string) bool {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}
