package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/enrichq/internal/cache"
	"github.com/kiranshivaraju/enrichq/internal/store"
	"github.com/kiranshivaraju/enrichq/pkg/models"
	"golang.org/x/sync/errgroup"
)

const finishedWindow = 24 * time.Hour

// Aggregator computes point-in-time queue counters.
type Aggregator struct {
	store  store.Store
	policy Staleness
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewAggregator creates an Aggregator. When ca is nil, Cached always computes
// a fresh snapshot.
func NewAggregator(st store.Store, policy Staleness, ca cache.Cache, ttl time.Duration) *Aggregator {
	return &Aggregator{
		store:  st,
		policy: policy,
		cache:  ca,
		ttl:    ttl,
		logger: slog.With("component", "queue.metrics"),
	}
}

// Snapshot runs the five counts concurrently. The counts are not taken in one
// transaction, so they may disagree slightly under load.
func (a *Aggregator) Snapshot(ctx context.Context) (*models.QueueMetricsSnapshot, error) {
	now := a.policy.current()
	since := now.Add(-finishedWindow)
	cutoff := now.Add(-a.policy.Threshold)

	var snap models.QueueMetricsSnapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := a.store.CountJobs(gctx, models.JobStatusPending, time.Time{})
		snap.Pending = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.CountJobs(gctx, models.JobStatusProcessing, time.Time{})
		snap.Processing = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.CountJobs(gctx, models.JobStatusCompleted, since)
		snap.Completed24h = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.CountJobs(gctx, models.JobStatusFailed, since)
		snap.Failed24h = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.CountStuckJobs(gctx, cutoff)
		snap.Stuck = n
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("computing queue metrics: %w", err)
	}
	snap.ComputedAt = now
	return &snap, nil
}

// Refresh computes a snapshot and stores it in the cache.
func (a *Aggregator) Refresh(ctx context.Context) error {
	snap, err := a.Snapshot(ctx)
	if err != nil {
		return err
	}
	if a.cache == nil {
		return nil
	}
	if err := cache.SetJSON(ctx, a.cache, cache.QueueMetricsKey, snap, a.ttl); err != nil {
		return fmt.Errorf("caching queue metrics: %w", err)
	}
	return nil
}

// Cached returns the last refreshed snapshot, computing a live one on a miss.
func (a *Aggregator) Cached(ctx context.Context) (*models.QueueMetricsSnapshot, error) {
	if a.cache != nil {
		var snap models.QueueMetricsSnapshot
		found, err := cache.GetJSON(ctx, a.cache, cache.QueueMetricsKey, &snap)
		if err != nil {
			a.logger.Warn("queue metrics cache read failed", "error", err)
		}
		if found {
			return &snap, nil
		}
	}
	return a.Snapshot(ctx)
}
