package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// MemoryStore is an in-process Store guarded by a single mutex. Every
// transition happens under the lock, which gives AdvanceJob the same
// compare-and-set behaviour as the Postgres implementation. Reads return copies.
type MemoryStore struct {
	mu          sync.RWMutex
	now         func() time.Time
	onAlert     func(models.AlertEvent)
	sessions    map[uuid.UUID]*models.Session
	products    map[uuid.UUID]*models.Product
	jobs        map[uuid.UUID]*models.EnrichmentJob
	alerts      []*models.AlertEvent
	credentials map[string]time.Time
	pingErr     error
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for updated_at stamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithAlertHook registers a callback invoked after every CreateAlert, outside
// the store lock. It stands in for the Postgres insert trigger.
func WithAlertHook(fn func(models.AlertEvent)) MemoryOption {
	return func(s *MemoryStore) { s.onAlert = fn }
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:         func() time.Time { return time.Now().UTC() },
		sessions:    make(map[uuid.UUID]*models.Session),
		products:    make(map[uuid.UUID]*models.Product),
		jobs:        make(map[uuid.UUID]*models.EnrichmentJob),
		credentials: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPingError makes subsequent Ping calls fail with err (nil restores).
func (s *MemoryStore) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// SetCredentialExpiry records when a provider's credentials expire.
func (s *MemoryStore) SetCredentialExpiry(provider string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[provider] = expiresAt
}

// PutJob stores job as-is, bypassing the state machine. Used to seed fixtures.
func (s *MemoryStore) PutJob(job *models.EnrichmentJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := *job
	s.jobs[job.ID] = &cloned
}

// PutProduct stores p as-is, including its updated_at.
func (s *MemoryStore) PutProduct(p *models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := *p
	s.products[p.ID] = &cloned
}

func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}

// --- Sessions ---

func (s *MemoryStore) GetSessionsByPrefix(_ context.Context, prefix string) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.TokenPrefix == prefix {
			cloned := *sess
			out = append(out, &cloned)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return ErrDuplicateKey
	}
	cloned := *sess
	s.sessions[sess.ID] = &cloned
	return nil
}

// --- Products ---

func (s *MemoryStore) CreateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ID]; exists {
		return ErrDuplicateKey
	}
	cloned := *p
	s.products[p.ID] = &cloned
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cloned := *p
	return &cloned, nil
}

func (s *MemoryStore) SetOwnerStatus(_ context.Context, ownerID uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[ownerID]
	if !ok {
		return ErrNotFound
	}
	p.EnrichmentStatus = status
	p.UpdatedAt = s.nextStamp(p.UpdatedAt)
	return nil
}

func (s *MemoryStore) ReleaseOwner(_ context.Context, ownerID uuid.UUID, status string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[ownerID]
	if !ok {
		return false, ErrNotFound
	}
	for _, j := range s.jobs {
		if j.OwnerID == ownerID && (j.Status == models.JobStatusPending || j.Status == models.JobStatusProcessing) {
			return false, nil
		}
	}
	p.EnrichmentStatus = status
	p.UpdatedAt = s.nextStamp(p.UpdatedAt)
	return true, nil
}

// --- Jobs ---

func (s *MemoryStore) CreateJob(_ context.Context, job *models.EnrichmentJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return ErrDuplicateKey
	}
	cloned := *job
	s.jobs[job.ID] = &cloned
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*models.EnrichmentJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *MemoryStore) AdvanceJob(_ context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !models.CanTransition(j.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, status)
	}

	j.Status = status
	j.UpdatedAt = s.nextStamp(j.UpdatedAt)
	if status == models.JobStatusFailed && params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		j.ErrorMessage = &msg
	}
	return nil
}

func (s *MemoryStore) ListJobsByOwner(_ context.Context, ownerID uuid.UUID, statuses []string) ([]*models.EnrichmentJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.EnrichmentJob
	for _, j := range s.jobs {
		if j.OwnerID != ownerID {
			continue
		}
		if len(statuses) > 0 && !contains(statuses, j.Status) {
			continue
		}
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountJobs(_ context.Context, status string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, j := range s.jobs {
		if j.Status == status && !j.UpdatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListStuckJobs(_ context.Context, cutoff time.Time) ([]*models.EnrichmentJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.stuckLocked(cutoff)
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.Before(out[k].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) CountStuckJobs(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stuckLocked(cutoff)), nil
}

func (s *MemoryStore) stuckLocked(cutoff time.Time) []*models.EnrichmentJob {
	var out []*models.EnrichmentJob
	for _, j := range s.jobs {
		if j.Status != models.JobStatusProcessing || !j.UpdatedAt.Before(cutoff) {
			continue
		}
		p, ok := s.products[j.OwnerID]
		if !ok || p.EnrichmentStatus != models.OwnerStatusEnriching || !p.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, cloneJob(j))
	}
	return out
}

func (s *MemoryStore) ReleaseStaleOwners(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	busy := make(map[uuid.UUID]bool)
	for _, j := range s.jobs {
		if j.Status == models.JobStatusProcessing && !j.UpdatedAt.Before(cutoff) {
			busy[j.OwnerID] = true
		}
	}

	n := 0
	for id, p := range s.products {
		if p.EnrichmentStatus != models.OwnerStatusEnriching || !p.UpdatedAt.Before(cutoff) || busy[id] {
			continue
		}
		p.EnrichmentStatus = models.OwnerStatusFailed
		p.UpdatedAt = s.nextStamp(p.UpdatedAt)
		n++
	}
	return n, nil
}

// --- Alerts ---

func (s *MemoryStore) CreateAlert(_ context.Context, a *models.AlertEvent) error {
	s.mu.Lock()
	cloned := *a
	s.alerts = append(s.alerts, &cloned)
	hook := s.onAlert
	s.mu.Unlock()

	if hook != nil {
		hook(cloned)
	}
	return nil
}

func (s *MemoryStore) ListRecentAlerts(_ context.Context, limit int) ([]*models.AlertEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.AlertEvent, 0, limit)
	for i := len(s.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		cloned := *s.alerts[i]
		out = append(out, &cloned)
	}
	return out, nil
}

func (s *MemoryStore) CountAlertsSince(_ context.Context, since time.Time, severities []models.Severity) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.alerts {
		if a.CreatedAt.Before(since) {
			continue
		}
		for _, sev := range severities {
			if a.Severity == sev {
				n++
				break
			}
		}
	}
	return n, nil
}

// --- Credentials ---

func (s *MemoryStore) GetCredentialExpiry(_ context.Context, provider string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.credentials[provider]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return t, nil
}

// nextStamp returns a write timestamp strictly after prev.
func (s *MemoryStore) nextStamp(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

func cloneJob(j *models.EnrichmentJob) *models.EnrichmentJob {
	cloned := *j
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		cloned.ErrorMessage = &msg
	}
	return &cloned
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
