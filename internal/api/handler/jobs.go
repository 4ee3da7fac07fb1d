package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/enrichq/internal/api/response"
	"github.com/kiranshivaraju/enrichq/internal/cache"
	"github.com/kiranshivaraju/enrichq/internal/store"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// JobReader is the store subset the job handlers read from.
type JobReader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.EnrichmentJob, error)
	ListJobsByOwner(ctx context.Context, ownerID uuid.UUID, statuses []string) ([]*models.EnrichmentJob, error)
}

// NewOwnerJobsHandler returns an http.HandlerFunc for
// GET /api/v1/owners/{ownerID}/jobs. An optional comma separated ?status=
// filters by job status.
func NewOwnerJobsHandler(jobs JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := uuid.Parse(chi.URLParam(r, "ownerID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "ownerID must be a valid UUID", nil)
			return
		}

		var statuses []string
		if raw := r.URL.Query().Get("status"); raw != "" {
			for _, s := range strings.Split(raw, ",") {
				s = strings.TrimSpace(s)
				if !models.IsValidJobStatus(s) {
					response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
						"status must be one of pending, processing, completed, failed", nil)
					return
				}
				statuses = append(statuses, s)
			}
		}

		if _, err := jobs.GetProduct(r.Context(), ownerID); err != nil {
			writeLookupError(w, err, "Owner not found")
			return
		}

		list, err := jobs.ListJobsByOwner(r.Context(), ownerID, statuses)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Failed to list jobs", nil)
			return
		}
		if list == nil {
			list = []*models.EnrichmentJob{}
		}
		response.Collection(w, list, response.CollectionMeta{Limit: len(list), Total: len(list)})
	}
}

type jobStatusResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
}

// NewJobStatusHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/status. Polls are served from the cache when the
// status is there; misses go to the store and refill the cache.
func NewJobStatusHandler(jobs JobReader, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "jobID must be a valid UUID", nil)
			return
		}

		if status, found, err := ca.GetJobStatus(r.Context(), jobID); err == nil && found {
			response.JSON(w, jobStatusResponse{JobID: jobID, Status: status})
			return
		}

		job, err := jobs.GetJob(r.Context(), jobID)
		if err != nil {
			writeLookupError(w, err, "Job not found")
			return
		}
		_ = ca.SetJobStatus(r.Context(), jobID, job.Status, cache.JobStatusTTL)
		response.JSON(w, jobStatusResponse{JobID: jobID, Status: job.Status})
	}
}

func writeLookupError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, response.CodeNotFound, notFoundMsg, nil)
		return
	}
	response.Error(w, http.StatusInternalServerError, response.CodeInternal, "An unexpected error occurred", nil)
}
