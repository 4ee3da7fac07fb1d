package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name string
		task Task
		want string
	}{
		{"missing name", Task{Interval: time.Second, Run: noop}, "name is required"},
		{"zero interval", Task{Name: "reaper", Run: noop}, "interval must be positive"},
		{"missing run", Task{Name: "reaper", Interval: time.Second}, "run function is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.task)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestScheduler_RunsEachTaskIndependently(t *testing.T) {
	var fast, slow atomic.Int32
	s, err := New(
		Task{Name: "fast", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			fast.Add(1)
			return nil
		}},
		Task{Name: "slow", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error {
			slow.Add(1)
			select {
			case <-ctx.Done():
			case <-time.After(200 * time.Millisecond):
			}
			return nil
		}},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	assert.Eventually(t, func() bool { return fast.Load() >= 5 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, slow.Load(), int32(2))

	cancel()
	s.Wait()
}

func TestScheduler_FailuresDoNotStopTask(t *testing.T) {
	var calls atomic.Int32
	s, err := New(Task{Name: "flaky", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		n := calls.Add(1)
		if n == 1 {
			panic("first run blew up")
		}
		return errors.New("still failing")
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()
}

func TestScheduler_RunAtStart(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, err := New(Task{Name: "health", Interval: time.Hour, RunAtStart: true, Run: func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task did not run at start")
	}
	cancel()
	s.Wait()
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	s, err := New(Task{Name: "idle", Interval: time.Hour, Run: func(context.Context) error { return nil }})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
