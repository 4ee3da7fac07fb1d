package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrInvalidTransition is returned by AdvanceJob when the requested status is not
// reachable from the job's current status. It points at a logic bug or a lost race.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetSessionsByPrefix(ctx context.Context, prefix string) ([]*models.Session, error)
	CreateSession(ctx context.Context, session *models.Session) error

	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	SetOwnerStatus(ctx context.Context, ownerID uuid.UUID, status string) error
	// ReleaseOwner moves the owner out of enriching only when none of its jobs
	// is pending or processing; released reports whether it did.
	ReleaseOwner(ctx context.Context, ownerID uuid.UUID, status string) (released bool, err error)

	CreateJob(ctx context.Context, job *models.EnrichmentJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.EnrichmentJob, error)
	AdvanceJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	ListJobsByOwner(ctx context.Context, ownerID uuid.UUID, statuses []string) ([]*models.EnrichmentJob, error)

	CountJobs(ctx context.Context, status string, since time.Time) (int, error)
	ListStuckJobs(ctx context.Context, cutoff time.Time) ([]*models.EnrichmentJob, error)
	CountStuckJobs(ctx context.Context, cutoff time.Time) (int, error)
	ReleaseStaleOwners(ctx context.Context, cutoff time.Time) (int, error)

	CreateAlert(ctx context.Context, alert *models.AlertEvent) error
	ListRecentAlerts(ctx context.Context, limit int) ([]*models.AlertEvent, error)
	CountAlertsSince(ctx context.Context, since time.Time, severities []models.Severity) (int, error)

	GetCredentialExpiry(ctx context.Context, provider string) (time.Time, error)
}

type jobUpdateParams struct {
	ErrorMessage *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

// NewJob builds a pending job envelope for an owner.
func NewJob(ownerID uuid.UUID, enrichmentType string, now time.Time) *models.EnrichmentJob {
	return &models.EnrichmentJob{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		EnrichmentType: enrichmentType,
		Status:         models.JobStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
