package alert

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// ErrSubscriptionClosed is returned by Next after Close.
var ErrSubscriptionClosed = errors.New("alert subscription closed")

// Source opens subscriptions to newly recorded alerts.
type Source interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription yields alerts recorded after it was opened. Close releases the
// underlying resource and is safe to call more than once, but not while a
// Next call is still blocked.
type Subscription interface {
	Next(ctx context.Context) (models.AlertEvent, error)
	Close() error
}
