package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/enrichq/internal/cache"
	"github.com/kiranshivaraju/enrichq/internal/store"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// Publisher records alerts in the durable alert log. Delivery to live
// subscribers happens downstream of the insert.
type Publisher struct {
	store store.Store
	cache cache.Cache
	now   func() time.Time
}

// NewPublisher creates a Publisher. When ca is non-nil the cached alert
// listing is dropped after every insert, so it stays fresh even when no
// dispatch session is open.
func NewPublisher(st store.Store, ca cache.Cache) *Publisher {
	return &Publisher{store: st, cache: ca, now: func() time.Time { return time.Now().UTC() }}
}

// Publish inserts a new AlertEvent.
func (p *Publisher) Publish(ctx context.Context, severity models.Severity, title, message string) error {
	if !models.IsValidAlertSeverity(severity) {
		return fmt.Errorf("invalid alert severity %q", severity)
	}
	ev := &models.AlertEvent{
		ID:        uuid.New(),
		Severity:  severity,
		Title:     title,
		Message:   message,
		CreatedAt: p.now(),
	}
	if err := p.store.CreateAlert(ctx, ev); err != nil {
		return fmt.Errorf("recording alert: %w", err)
	}
	if p.cache != nil {
		_ = p.cache.Delete(ctx, cache.RecentAlertsKey)
	}
	return nil
}
