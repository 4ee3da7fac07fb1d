package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// Pool is the subset of *pgxpool.Pool used by PostgresStore.
// pgxmock's pool satisfies it as well.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool Pool
	now  func() time.Time
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Sessions ---

func (s *PostgresStore) GetSessionsByPrefix(ctx context.Context, prefix string) ([]*models.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, token_hash, token_prefix, expires_at, created_at
		 FROM sessions WHERE token_prefix = $1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get sessions by prefix: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var sess models.Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.TokenPrefix,
			&sess.ExpiresAt, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, token_prefix, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.UserID, sess.TokenHash, sess.TokenPrefix, sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// --- Products ---

func (s *PostgresStore) CreateProduct(ctx context.Context, p *models.Product) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, name, enrichment_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.EnrichmentStatus, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, enrichment_status, created_at, updated_at FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.EnrichmentStatus, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) SetOwnerStatus(ctx context.Context, ownerID uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products
		 SET enrichment_status = $2, updated_at = GREATEST($3, updated_at + INTERVAL '1 microsecond')
		 WHERE id = $1`, ownerID, status, s.now())
	if err != nil {
		return fmt.Errorf("set owner status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseOwner sets the owner's final status unless another of its jobs is
// still pending or processing. It reports whether the marker was released.
func (s *PostgresStore) ReleaseOwner(ctx context.Context, ownerID uuid.UUID, status string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products p
		 SET enrichment_status = $2, updated_at = GREATEST($3, p.updated_at + INTERVAL '1 microsecond')
		 WHERE p.id = $1
		   AND NOT EXISTS (
		       SELECT 1 FROM enrichment_jobs j
		       WHERE j.owner_id = p.id AND j.status IN ('pending', 'processing')
		   )`, ownerID, status, s.now())
	if err != nil {
		return false, fmt.Errorf("release owner: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, ownerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("release owner: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// --- Jobs ---

const jobColumns = `id, owner_id, enrichment_type, status, error_message, created_at, updated_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.EnrichmentJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO enrichment_jobs (id, owner_id, enrichment_type, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.OwnerID, job.EnrichmentType, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.EnrichmentJob, error) {
	var j models.EnrichmentJob
	err := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM enrichment_jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.OwnerID, &j.EnrichmentType, &j.Status, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// AdvanceJob moves a job to status with a single conditional UPDATE. The WHERE
// clause on the current status is the compare-and-set: two concurrent callers
// cannot both win the same transition.
func (s *PostgresStore) AdvanceJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	// error_message is only ever written on failure.
	var errMsg *string
	if status == models.JobStatusFailed {
		errMsg = params.ErrorMessage
	}

	from := models.JobPredecessors(status)
	if from == nil {
		from = []string{}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE enrichment_jobs
		 SET status = $2,
		     updated_at = GREATEST($3, updated_at + INTERVAL '1 microsecond'),
		     error_message = COALESCE($4, error_message)
		 WHERE id = $1 AND status = ANY($5)`,
		id, status, s.now(), errMsg, from)
	if err != nil {
		return fmt.Errorf("advance job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM enrichment_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

func (s *PostgresStore) ListJobsByOwner(ctx context.Context, ownerID uuid.UUID, statuses []string) ([]*models.EnrichmentJob, error) {
	query := `SELECT ` + jobColumns + ` FROM enrichment_jobs WHERE owner_id = $1`
	args := []any{ownerID}
	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		args = append(args, statuses)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs by owner: %w", err)
	}
	return collectJobs(rows)
}

func (s *PostgresStore) CountJobs(ctx context.Context, status string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM enrichment_jobs WHERE status = $1 AND updated_at >= $2`,
		status, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s jobs: %w", status, err)
	}
	return n, nil
}

// stuckJobsWhere selects processing jobs whose owner still carries the
// in-progress marker and where neither row has been touched since the cutoff.
const stuckJobsWhere = `
	FROM enrichment_jobs j
	JOIN products p ON p.id = j.owner_id
	WHERE j.status = 'processing'
	  AND p.enrichment_status = 'enriching'
	  AND p.updated_at < $1
	  AND j.updated_at < $1`

func (s *PostgresStore) ListStuckJobs(ctx context.Context, cutoff time.Time) ([]*models.EnrichmentJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT j.id, j.owner_id, j.enrichment_type, j.status, j.error_message, j.created_at, j.updated_at`+
			stuckJobsWhere+` ORDER BY j.updated_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stuck jobs: %w", err)
	}
	return collectJobs(rows)
}

func (s *PostgresStore) CountStuckJobs(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*)`+stuckJobsWhere, cutoff).Scan(&n); err != nil {
		return 0, fmt.Errorf("count stuck jobs: %w", err)
	}
	return n, nil
}

// ReleaseStaleOwners clears the in-progress marker on owners that have been
// enriching since before the cutoff and have no recently touched processing job.
func (s *PostgresStore) ReleaseStaleOwners(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products p
		 SET enrichment_status = 'enrichment_failed',
		     updated_at = GREATEST($2, p.updated_at + INTERVAL '1 microsecond')
		 WHERE p.enrichment_status = 'enriching'
		   AND p.updated_at < $1
		   AND NOT EXISTS (
		       SELECT 1 FROM enrichment_jobs j
		       WHERE j.owner_id = p.id AND j.status = 'processing' AND j.updated_at >= $1
		   )`, cutoff, s.now())
	if err != nil {
		return 0, fmt.Errorf("release stale owners: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func collectJobs(rows pgx.Rows) ([]*models.EnrichmentJob, error) {
	defer rows.Close()

	var jobs []*models.EnrichmentJob
	for rows.Next() {
		var j models.EnrichmentJob
		if err := rows.Scan(&j.ID, &j.OwnerID, &j.EnrichmentType, &j.Status, &j.ErrorMessage,
			&j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// --- Alerts ---

func (s *PostgresStore) CreateAlert(ctx context.Context, a *models.AlertEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO system_alerts (id, severity, title, message, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, string(a.Severity), a.Title, a.Message, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecentAlerts(ctx context.Context, limit int) ([]*models.AlertEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, severity, title, message, created_at
		 FROM system_alerts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.AlertEvent
	for rows.Next() {
		var a models.AlertEvent
		var severity string
		if err := rows.Scan(&a.ID, &severity, &a.Title, &a.Message, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Severity = models.Severity(severity)
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

func (s *PostgresStore) CountAlertsSince(ctx context.Context, since time.Time, severities []models.Severity) (int, error) {
	levels := make([]string, len(severities))
	for i, sev := range severities {
		levels[i] = string(sev)
	}

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM system_alerts WHERE created_at >= $1 AND severity = ANY($2)`,
		since, levels).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

// --- Credentials ---

func (s *PostgresStore) GetCredentialExpiry(ctx context.Context, provider string) (time.Time, error) {
	var expiresAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT expires_at FROM credential_states WHERE provider = $1`, provider,
	).Scan(&expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get credential expiry: %w", err)
	}
	return expiresAt, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
