package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/enrichq/internal/api/response"
	"github.com/kiranshivaraju/enrichq/internal/cache"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

const (
	defaultAlertLimit = 20
	maxAlertLimit     = 100
	alertListTTL      = 60 * time.Second
)

// AlertLister reads the alert log newest first.
type AlertLister interface {
	ListRecentAlerts(ctx context.Context, limit int) ([]*models.AlertEvent, error)
}

// NewListAlertsHandler returns an http.HandlerFunc for GET /api/v1/alerts.
// The newest maxAlertLimit alerts are cached under one key and sliced per
// request, so a single invalidation refreshes every limit.
func NewListAlertsHandler(alerts AlertLister, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultAlertLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxAlertLimit {
				response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
					"limit must be an integer between 1 and 100", nil)
				return
			}
			limit = n
		}

		var recent []*models.AlertEvent
		found, err := cache.GetJSON(r.Context(), ca, cache.RecentAlertsKey, &recent)
		if err != nil {
			slog.Warn("reading cached alerts", "error", err)
		}
		if !found {
			recent, err = alerts.ListRecentAlerts(r.Context(), maxAlertLimit)
			if err != nil {
				response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Failed to list alerts", nil)
				return
			}
			if recent == nil {
				recent = []*models.AlertEvent{}
			}
			if err := cache.SetJSON(r.Context(), ca, cache.RecentAlertsKey, recent, alertListTTL); err != nil {
				slog.Warn("caching alerts", "error", err)
			}
		}

		if len(recent) > limit {
			recent = recent[:limit]
		}
		response.Collection(w, recent, response.CollectionMeta{Limit: limit, Total: len(recent)})
	}
}
