package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/enrichq/internal/api/response"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// HealthChecker builds a health report on demand.
type HealthChecker interface {
	Check(ctx context.Context) *models.HealthReport
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health. The
// report is written unwrapped; critical answers 503 so load balancers can act
// on the status code alone.
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := checker.Check(r.Context())

		status := http.StatusOK
		if report.Status == models.SeverityCritical {
			status = http.StatusServiceUnavailable
		}
		response.Raw(w, status, report)
	}
}
