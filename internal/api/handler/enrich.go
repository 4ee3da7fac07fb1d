package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/enrichq/internal/api/middleware"
	"github.com/kiranshivaraju/enrichq/internal/api/response"
	"github.com/kiranshivaraju/enrichq/internal/enrich"
	"github.com/kiranshivaraju/enrichq/internal/store"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// Enricher defines the interface the enrich handler depends on.
type Enricher interface {
	Enrich(ctx context.Context, sess *models.Session, req enrich.EnrichRequest) (*enrich.EnrichResult, error)
}

type enrichRequest struct {
	OwnerID         string         `json:"ownerId"`
	EnrichmentTypes []string       `json:"enrichmentTypes"`
	Options         map[string]any `json:"options"`
}

type enrichResponse struct {
	Success      bool                `json:"success"`
	SuccessCount int                 `json:"successCount"`
	TotalCount   int                 `json:"totalCount"`
	Error        string              `json:"error,omitempty"`
	Results      []enrich.TypeResult `json:"results"`
}

// NewEnrichHandler returns an http.HandlerFunc for POST /api/v1/enrich.
func NewEnrichHandler(svc Enricher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enrichRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
			return
		}

		if req.OwnerID == "" {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "ownerId is required", nil)
			return
		}
		ownerID, err := uuid.Parse(req.OwnerID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "ownerId must be a valid UUID", nil)
			return
		}

		result, err := svc.Enrich(r.Context(), mw.GetSession(r), enrich.EnrichRequest{
			OwnerID: ownerID,
			Types:   req.EnrichmentTypes,
			Options: req.Options,
		})
		if err != nil {
			switch {
			case errors.Is(err, enrich.ErrUnauthenticated):
				response.Error(w, http.StatusUnauthorized, response.CodeUnauthenticated,
					"A valid session is required", nil)
			case errors.Is(err, enrich.ErrInvalidRequest):
				response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, response.CodeNotFound, "Owner not found", nil)
			default:
				response.Error(w, http.StatusInternalServerError, response.CodeInternal,
					"An unexpected error occurred", nil)
			}
			return
		}

		resp := enrichResponse{
			Success:      result.Success(),
			SuccessCount: result.SuccessCount,
			TotalCount:   result.TotalCount,
			Results:      result.Results,
		}
		if !resp.Success {
			resp.Error = "all enrichment types failed"
		}
		response.Raw(w, http.StatusOK, resp)
	}
}
