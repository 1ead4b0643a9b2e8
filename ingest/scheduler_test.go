package ingest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerFiresImmediatelyThenOnInterval(t *testing.T) {
	// WHAT: The scheduler triggers once at start and again on each tick.
	// WHY: Leftover work from an interrupted run must not wait a full
	// interval after restart.
	var fires atomic.Int64
	s := NewScheduler(10*time.Millisecond, func() { fires.Add(1) }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for fires.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("fires: got %d, want at least 3", fires.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestSchedulerDefaultsInterval(t *testing.T) {
	// WHAT: A non-positive interval falls back to one minute.
	// WHY: Zero-value config must not produce a busy loop.
	s := NewScheduler(0, func() {}, nil)
	if s.interval != time.Minute {
		t.Fatalf("interval: got %v, want 1m", s.interval)
	}
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	// WHAT: Run returns promptly after ctx cancellation.
	// WHY: Part of the service's graceful shutdown path.
	s := NewScheduler(time.Hour, func() {}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
