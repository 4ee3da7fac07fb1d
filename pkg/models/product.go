package models

import (
	"time"

	"github.com/google/uuid"
)

// Owner enrichment markers. OwnerStatusEnriching is the in-progress marker the
// reaper and the queue metrics use as their staleness oracle.
const (
	OwnerStatusIdle      = "idle"
	OwnerStatusEnriching = "enriching"
	OwnerStatusEnriched  = "enriched"
	OwnerStatusFailed    = "enrichment_failed"
)

// Product is the owning entity of enrichment jobs. Jobs reference it by ID only.
type Product struct {
	ID               uuid.UUID `db:"id"                json:"id"`
	Name             string    `db:"name"              json:"name"`
	EnrichmentStatus string    `db:"enrichment_status" json:"enrichment_status"`
	CreatedAt        time.Time `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"        json:"updated_at"`
}
