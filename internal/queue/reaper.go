package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/enrichq/internal/cache"
	"github.com/kiranshivaraju/enrichq/internal/store"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// TimeoutReason is written to the error_message of every reclaimed job.
const TimeoutReason = "Job timeout — import too large, retry using chunked path"

// SweepResult summarizes one reaper pass.
type SweepResult struct {
	Reclaimed      int `json:"reclaimed"`
	OwnersReleased int `json:"owners_released"`
}

// Reaper fails jobs left in processing by a worker that died or hung, and
// releases the enriching marker on their owners.
type Reaper struct {
	store  store.Store
	policy Staleness
	alerts AlertPublisher
	cache  cache.Cache
	logger *slog.Logger
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithStatusCache rewrites the mirrored job status of every reclaimed job so
// status polls stop reporting processing.
func WithStatusCache(ca cache.Cache) ReaperOption {
	return func(r *Reaper) { r.cache = ca }
}

// NewReaper creates a Reaper. alerts may be nil.
func NewReaper(st store.Store, policy Staleness, alerts AlertPublisher, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		store:  st,
		policy: policy,
		alerts: alerts,
		logger: slog.With("component", "queue.reaper"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep runs one reclamation pass. Jobs that reached a terminal state between
// selection and update are skipped and not counted, so repeated sweeps are
// idempotent. A persistence error aborts the pass; the partial result is
// returned alongside it.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	cutoff := r.policy.Cutoff()

	jobs, err := r.store.ListStuckJobs(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("listing stuck jobs: %w", err)
	}

	for _, job := range jobs {
		err := r.store.AdvanceJob(ctx, job.ID, models.JobStatusFailed, store.WithErrorMessage(TimeoutReason))
		switch {
		case err == nil:
			res.Reclaimed++
			r.mirrorFailed(ctx, job)
		case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrNotFound):
			r.logger.Debug("stuck job already resolved", "job_id", job.ID, "error", err)
		default:
			return res, fmt.Errorf("reclaiming job %s: %w", job.ID, err)
		}
	}

	released, err := r.store.ReleaseStaleOwners(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("releasing stale owners: %w", err)
	}
	res.OwnersReleased = released

	if res.Reclaimed == 0 && res.OwnersReleased == 0 {
		return res, nil
	}

	r.logger.Info("reclaimed stuck enrichment jobs",
		"reclaimed", res.Reclaimed,
		"owners_released", res.OwnersReleased,
		"threshold", r.policy.Threshold.String())

	if res.Reclaimed > 0 && r.alerts != nil {
		msg := fmt.Sprintf("%d enrichment job(s) exceeded %s in processing and were marked failed",
			res.Reclaimed, r.policy.Threshold)
		if err := r.alerts.Publish(ctx, models.SeverityWarning, "Stuck enrichment jobs reclaimed", msg); err != nil {
			r.logger.Warn("failed to publish reclaim alert", "error", err)
		}
	}

	return res, nil
}

func (r *Reaper) mirrorFailed(ctx context.Context, job *models.EnrichmentJob) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetJobStatus(ctx, job.ID, models.JobStatusFailed, cache.JobStatusTTL); err != nil {
		r.logger.Warn("failed to update cached job status", "job_id", job.ID, "error", err)
	}
}

// Run adapts Sweep to the scheduler's task signature.
func (r *Reaper) Run(ctx context.Context) error {
	_, err := r.Sweep(ctx)
	return err
}
