package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// Channel is the Postgres NOTIFY channel fed by the system_alerts insert trigger.
const Channel = "system_alerts"

// PGSource subscribes to alerts through Postgres LISTEN/NOTIFY. Each
// subscription holds one pooled connection until it is closed.
type PGSource struct {
	pool *pgxpool.Pool
}

// NewPGSource creates a PGSource.
func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

func (s *PGSource) Subscribe(ctx context.Context) (Subscription, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", Channel, err)
	}
	return &pgSubscription{conn: conn}, nil
}

type pgSubscription struct {
	conn   *pgxpool.Conn
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func (s *pgSubscription) Next(ctx context.Context) (models.AlertEvent, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return models.AlertEvent{}, ErrSubscriptionClosed
	}

	for {
		n, err := s.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return models.AlertEvent{}, fmt.Errorf("wait for notification: %w", err)
		}

		var ev models.AlertEvent
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			slog.Warn("dropping malformed alert notification", "payload", n.Payload, "error", err)
			continue
		}
		return ev, nil
	}
}

// Close unlistens and hands the connection back to the pool. A connection
// that cannot be unlistened is destroyed instead so no stale LISTEN survives.
func (s *pgSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err = s.conn.Exec(ctx, "UNLISTEN "+Channel); err != nil {
			_ = s.conn.Conn().Close(ctx)
		}
		s.conn.Release()
	})
	return err
}
