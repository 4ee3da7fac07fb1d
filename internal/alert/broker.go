package alert

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kiranshivaraju/enrichq/pkg/models"
)

const brokerBuffer = 64

// Broker is an in-process Source. Publish fans an event out to every open
// subscription; a subscriber whose buffer is full misses the event.
type Broker struct {
	mu   sync.Mutex
	subs map[*brokerSub]struct{}
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*brokerSub]struct{})}
}

// Publish delivers ev to current subscribers without blocking.
func (b *Broker) Publish(ev models.AlertEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("alert subscriber buffer full, dropping event", "alert_id", ev.ID)
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) Subscribe(_ context.Context) (Subscription, error) {
	sub := &brokerSub{broker: b, ch: make(chan models.AlertEvent, brokerBuffer), done: make(chan struct{})}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

type brokerSub struct {
	broker *Broker
	ch     chan models.AlertEvent
	done   chan struct{}
	once   sync.Once
}

func (s *brokerSub) Next(ctx context.Context) (models.AlertEvent, error) {
	select {
	case ev := <-s.ch:
		return ev, nil
	case <-s.done:
		return models.AlertEvent{}, ErrSubscriptionClosed
	case <-ctx.Done():
		return models.AlertEvent{}, ctx.Err()
	}
}

func (s *brokerSub) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		s.broker.mu.Unlock()
		close(s.done)
	})
	return nil
}
