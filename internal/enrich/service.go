// Package enrich is the entry point for enrichment requests: it authenticates
// the caller, opens one job per requested type, calls the capability and folds
// each outcome back into the job's state.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/enrichq/internal/cache"
	"github.com/kiranshivaraju/enrichq/internal/store"
	"github.com/kiranshivaraju/enrichq/pkg/models"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnauthenticated    = errors.New("missing or expired session")
	ErrInvalidRequest     = errors.New("invalid enrichment request")
	ErrExternalCapability = errors.New("enrichment capability failed")
)

const (
	maxTypes         = 16
	maxTypeLength    = 64
	maxErrorMessage  = 2000
	defaultParallel  = 4
	defaultCallLimit = 120 * time.Second
)

// EnrichRequest asks for one or more enrichment types on an owner.
type EnrichRequest struct {
	OwnerID uuid.UUID
	Types   []string
	Options map[string]any
}

// TypeResult is the outcome of one enrichment type.
type TypeResult struct {
	EnrichmentType string          `json:"enrichmentType"`
	JobID          uuid.UUID       `json:"jobId"`
	Status         string          `json:"status"`
	Error          string          `json:"error,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// EnrichResult aggregates a batch. A batch is partially successful when
// 0 < SuccessCount < TotalCount.
type EnrichResult struct {
	SuccessCount int
	TotalCount   int
	Results      []TypeResult
}

// Success reports whether at least one type succeeded.
func (r *EnrichResult) Success() bool { return r.SuccessCount > 0 }

// Service dispatches enrichment requests.
type Service struct {
	store       store.Store
	enricher    models.Enricher
	cache       cache.Cache
	timeout     time.Duration
	parallelism int
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache mirrors job status transitions into ca.
func WithCache(ca cache.Cache) Option {
	return func(s *Service) { s.cache = ca }
}

// WithTimeout bounds each capability call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithParallelism caps how many types of one request run at once.
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(st store.Store, enricher models.Enricher, opts ...Option) *Service {
	s := &Service{
		store:       st,
		enricher:    enricher,
		timeout:     defaultCallLimit,
		parallelism: defaultParallel,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.With("component", "enrich.service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enrich runs every requested type against the capability. Each type gets its
// own job, so one failing type does not fail the others. The returned error is
// reserved for requests that could not start at all; per-type failures are in
// the result.
func (s *Service) Enrich(ctx context.Context, sess *models.Session, req EnrichRequest) (*EnrichResult, error) {
	if sess == nil || !sess.Valid(s.now()) {
		return nil, ErrUnauthenticated
	}

	types, err := normalizeTypes(req.Types)
	if err != nil {
		return nil, err
	}
	if req.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: ownerId is required", ErrInvalidRequest)
	}

	if err := s.store.SetOwnerStatus(ctx, req.OwnerID, models.OwnerStatusEnriching); err != nil {
		return nil, fmt.Errorf("marking owner %s enriching: %w", req.OwnerID, err)
	}

	// Terminal writes must land even if the caller goes away mid-batch;
	// otherwise jobs would sit in processing until the reaper finds them.
	persistCtx := context.WithoutCancel(ctx)

	results := make([]TypeResult, len(types))
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, typ := range types {
		i, typ := i, typ
		g.Go(func() error {
			results[i] = s.runOne(ctx, persistCtx, req.OwnerID, typ, req.Options)
			return nil
		})
	}
	_ = g.Wait()

	res := &EnrichResult{TotalCount: len(results), Results: results}
	for _, r := range results {
		if r.Status == models.JobStatusCompleted {
			res.SuccessCount++
		}
	}

	final := models.OwnerStatusFailed
	if res.Success() {
		final = models.OwnerStatusEnriched
	}
	// Another batch on the same owner may still be running; the marker stays
	// until its last job settles.
	released, err := s.store.ReleaseOwner(persistCtx, req.OwnerID, final)
	switch {
	case err != nil:
		s.logger.Error("failed to release owner", "owner_id", req.OwnerID, "status", final, "error", err)
	case !released:
		s.logger.Debug("owner still has jobs in flight", "owner_id", req.OwnerID)
	}

	s.logger.Info("enrichment batch finished",
		"owner_id", req.OwnerID,
		"user_id", sess.UserID,
		"success_count", res.SuccessCount,
		"total_count", res.TotalCount)
	return res, nil
}

func (s *Service) runOne(ctx, persistCtx context.Context, ownerID uuid.UUID, typ string, opts map[string]any) TypeResult {
	job := store.NewJob(ownerID, typ, s.now())
	result := TypeResult{EnrichmentType: typ, JobID: job.ID, Status: models.JobStatusFailed}

	if err := s.store.CreateJob(persistCtx, job); err != nil {
		result.JobID = uuid.Nil
		result.Error = fmt.Sprintf("creating job: %v", err)
		return result
	}
	s.mirror(persistCtx, job.ID, models.JobStatusPending)

	if err := s.store.AdvanceJob(persistCtx, job.ID, models.JobStatusProcessing); err != nil {
		result.Error = fmt.Sprintf("starting job: %v", err)
		return result
	}
	s.mirror(persistCtx, job.ID, models.JobStatusProcessing)

	outcome, err := s.call(ctx, models.EnrichmentRequest{OwnerID: ownerID, EnrichmentType: typ, Options: opts})
	if err == nil && !outcome.Success {
		msg := outcome.Message
		if msg == "" {
			msg = "capability reported failure"
		}
		err = fmt.Errorf("%w: %s", ErrExternalCapability, msg)
	}

	if err != nil {
		result.Error = truncateString(err.Error(), maxErrorMessage)
		if terr := s.store.AdvanceJob(persistCtx, job.ID, models.JobStatusFailed, store.WithErrorMessage(result.Error)); terr != nil {
			s.logger.Warn("failed to mark job failed", "job_id", job.ID, "error", terr)
			s.resync(persistCtx, job.ID)
			return result
		}
		s.mirror(persistCtx, job.ID, models.JobStatusFailed)
		return result
	}

	if terr := s.store.AdvanceJob(persistCtx, job.ID, models.JobStatusCompleted); terr != nil {
		// Usually the reaper got there first.
		s.logger.Warn("failed to mark job completed", "job_id", job.ID, "error", terr)
		result.Error = fmt.Sprintf("completing job: %v", terr)
		s.resync(persistCtx, job.ID)
		return result
	}
	s.mirror(persistCtx, job.ID, models.JobStatusCompleted)

	result.Status = models.JobStatusCompleted
	result.Payload = outcome.Payload
	return result
}

// call invokes the capability with the configured timeout. A panic inside the
// capability is reported as an error.
func (s *Service) call(ctx context.Context, req models.EnrichmentRequest) (out models.EnrichmentOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in enrichment capability", "error", r, "enrichment_type", req.EnrichmentType)
			err = fmt.Errorf("%w: panic: %v", ErrExternalCapability, r)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err = s.enricher.Enrich(callCtx, req)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrExternalCapability, err)
	}
	return out, nil
}

func (s *Service) mirror(ctx context.Context, jobID uuid.UUID, status string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.SetJobStatus(ctx, jobID, status, cache.JobStatusTTL)
}

// resync mirrors whatever status the store holds after a terminal write lost
// its race.
func (s *Service) resync(ctx context.Context, jobID uuid.UUID) {
	if s.cache == nil {
		return
	}
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		_ = s.cache.Delete(ctx, cache.JobStatusKey(jobID))
		return
	}
	s.mirror(ctx, jobID, job.Status)
}

// normalizeTypes trims and deduplicates, keeping first-seen order.
func normalizeTypes(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		if len(t) > maxTypeLength {
			return nil, fmt.Errorf("%w: enrichment type %.16q... exceeds %d characters", ErrInvalidRequest, t, maxTypeLength)
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one enrichment type is required", ErrInvalidRequest)
	}
	if len(out) > maxTypes {
		return nil, fmt.Errorf("%w: at most %d enrichment types per request", ErrInvalidRequest, maxTypes)
	}
	return out, nil
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
