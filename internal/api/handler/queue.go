package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/enrichq/internal/api/response"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// MetricsReader serves the latest queue snapshot.
type MetricsReader interface {
	Cached(ctx context.Context) (*models.QueueMetricsSnapshot, error)
}

type queueMetricsResponse struct {
	*models.QueueMetricsSnapshot
	SuccessRate float64 `json:"success_rate"`
}

// NewQueueMetricsHandler returns an http.HandlerFunc for GET /api/v1/queue/metrics.
func NewQueueMetricsHandler(metrics MetricsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := metrics.Cached(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Failed to read queue metrics", nil)
			return
		}
		response.JSON(w, queueMetricsResponse{QueueMetricsSnapshot: snap, SuccessRate: snap.SuccessRate()})
	}
}
