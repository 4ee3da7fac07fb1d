package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/enrichq/internal/cache"
	"github.com/kiranshivaraju/enrichq/internal/queue"
	"github.com/kiranshivaraju/enrichq/internal/store"
	"github.com/kiranshivaraju/enrichq/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedQueue builds 3 pending, 2 fresh processing, 5 recently completed,
// 1 recently failed and one old completed job.
func seedQueue(s *store.MemoryStore) {
	owner := &models.Product{
		ID:               uuid.New(),
		Name:             "Office Chair",
		EnrichmentStatus: models.OwnerStatusEnriching,
		CreatedAt:        fixedNow.Add(-time.Minute),
		UpdatedAt:        fixedNow.Add(-time.Minute),
	}
	s.PutProduct(owner)

	put := func(status string, age time.Duration) {
		job := store.NewJob(owner.ID, models.EnrichmentTaxonomy, fixedNow.Add(-age))
		job.Status = status
		s.PutJob(job)
	}
	for i := 0; i < 3; i++ {
		put(models.JobStatusPending, time.Minute)
	}
	for i := 0; i < 2; i++ {
		put(models.JobStatusProcessing, time.Minute)
	}
	for i := 0; i < 5; i++ {
		put(models.JobStatusCompleted, time.Duration(i+1)*time.Hour)
	}
	put(models.JobStatusFailed, 2*time.Hour)
	put(models.JobStatusCompleted, 30*time.Hour)
}

func TestAggregator_Snapshot(t *testing.T) {
	s := store.NewMemoryStore(store.WithClock(clock))
	seedQueue(s)

	snap, err := queue.NewAggregator(s, newPolicy(), nil, 0).Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, snap.Pending)
	assert.Equal(t, 2, snap.Processing)
	assert.Equal(t, 5, snap.Completed24h)
	assert.Equal(t, 1, snap.Failed24h)
	assert.Equal(t, 0, snap.Stuck)
	assert.Equal(t, fixedNow, snap.ComputedAt)
}

func TestAggregator_StuckMatchesReaper(t *testing.T) {
	s := store.NewMemoryStore(store.WithClock(clock))
	seedInFlight(s, 15*time.Minute)
	seedInFlight(s, 5*time.Minute)
	agg := queue.NewAggregator(s, newPolicy(), nil, 0)

	snap, err := agg.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Stuck)
	assert.Equal(t, 2, snap.Processing)

	// Counting must not reclaim anything.
	again, err := agg.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, again.Stuck)

	res, err := queue.NewReaper(s, newPolicy(), nil).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.Stuck, res.Reclaimed)

	after, err := agg.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, after.Stuck)
	assert.Equal(t, 1, after.Failed24h)
}

func TestAggregator_RefreshAndCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)

	s := store.NewMemoryStore(store.WithClock(clock))
	seedQueue(s)
	agg := queue.NewAggregator(s, newPolicy(), rc, time.Minute)

	require.NoError(t, agg.Refresh(context.Background()))
	assert.True(t, mr.Exists(cache.QueueMetricsKey))

	// New work after the refresh is not visible until the next refresh.
	seedInFlight(s, time.Minute)

	snap, err := agg.Cached(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Processing)

	mr.FastForward(2 * time.Minute)

	snap, err = agg.Cached(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Processing)
}

func TestAggregator_CachedWithoutCacheComputesLive(t *testing.T) {
	s := store.NewMemoryStore(store.WithClock(clock))
	seedQueue(s)

	snap, err := queue.NewAggregator(s, newPolicy(), nil, 0).Cached(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Pending)
}

func TestSnapshot_SuccessRate(t *testing.T) {
	snap := models.QueueMetricsSnapshot{Completed24h: 5, Failed24h: 1}
	assert.InDelta(t, 5.0/6.0, snap.SuccessRate(), 0.0001)
	assert.Equal(t, 1.0, models.QueueMetricsSnapshot{}.SuccessRate())
}
