package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kiranshivaraju/enrichq/internal/cache"
)

// State is the lifecycle position of a dispatch session.
type State string

const (
	StateSubscribed   State = "subscribed"
	StateDelivering   State = "delivering"
	StateUnsubscribed State = "unsubscribed"
)

// ErrObserverPanic ends a session whose observer panicked.
var ErrObserverPanic = errors.New("alert observer panicked")

// Observer receives routed notices. It is called from the session goroutine,
// one notice at a time.
type Observer func(Notice)

// Dispatcher opens dispatch sessions against a Source. Alerts recorded while
// no session is open are never delivered.
type Dispatcher struct {
	source Source
	cache  cache.Cache
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher. ca may be nil.
func NewDispatcher(source Source, ca cache.Cache) *Dispatcher {
	return &Dispatcher{
		source: source,
		cache:  ca,
		logger: slog.With("component", "alert.dispatcher"),
	}
}

// Session is one subscriber's live feed.
type Session struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state State
	err   error
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session is unsubscribed and its resource released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended. It is nil while the session is open and
// after a plain Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes and waits for the subscription to be released.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start subscribes and begins delivering notices to observer until ctx ends
// or Close is called.
func (d *Dispatcher) Start(ctx context.Context, observer Observer) (*Session, error) {
	sub, err := d.source.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribing to alerts: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sess := &Session{cancel: cancel, done: make(chan struct{}), state: StateSubscribed}
	go d.run(ctx, sess, sub, observer)
	return sess, nil
}

func (d *Dispatcher) run(ctx context.Context, sess *Session, sub Subscription, observer Observer) {
	defer close(sess.done)
	defer sess.setState(StateUnsubscribed)
	defer func() {
		if err := sub.Close(); err != nil {
			d.logger.Warn("releasing alert subscription", "error", err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in alert observer", "error", r)
			sess.mu.Lock()
			sess.err = fmt.Errorf("%w: %v", ErrObserverPanic, r)
			sess.mu.Unlock()
		}
	}()

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, ErrSubscriptionClosed) {
				d.logger.Warn("alert subscription failed", "error", err)
				sess.mu.Lock()
				sess.err = err
				sess.mu.Unlock()
			}
			return
		}

		sess.setState(StateDelivering)
		d.invalidate(ctx)
		observer(Route(ev))
		sess.setState(StateSubscribed)
	}
}

// invalidate drops the cached alert listing so readers see the new event.
func (d *Dispatcher) invalidate(ctx context.Context) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Delete(ctx, cache.RecentAlertsKey); err != nil {
		d.logger.Warn("invalidating alert listing cache", "error", err)
	}
}
