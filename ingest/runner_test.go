package ingest

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRunnerCoalescesTriggers(t *testing.T) {
	// WHAT: Triggers fired while no run is draining collapse into a single
	// queued run.
	// WHY: Every run picks up all pending work; extra queued runs are waste.
	var mu sync.Mutex
	runs := 0
	release := make(chan struct{})

	r := NewRunner(func(ctx context.Context) {
		mu.Lock()
		runs++
		mu.Unlock()
		<-release
	}, nil)

	for i := 0; i < 5; i++ {
		r.Trigger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// Wait for the first run to start, then let it and any follow-up
	// finish.
	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		started := runs > 0
		mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("run never started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(release)
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if runs != 1 {
		t.Fatalf("runs: got %d, want 1 (five triggers before start must coalesce)", runs)
	}
}

func TestRunnerTriggerNeverBlocks(t *testing.T) {
	// WHAT: Trigger returns immediately even when nothing drains the queue.
	// WHY: Notification handlers call Trigger on the request path.
	r := NewRunner(func(ctx context.Context) {}, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Trigger()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Trigger blocked")
	}
}

func TestRunnerQueuesTriggerDuringRun(t *testing.T) {
	// WHAT: A trigger arriving mid-run queues exactly one follow-up run.
	// WHY: Work appearing during a run must not wait for the next tick.
	started := make(chan struct{}, 2)
	release := make(chan struct{})

	r := NewRunner(func(ctx context.Context) {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	r.Trigger()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never started")
	}

	// Mid-run triggers: only one follow-up run may result.
	r.Trigger()
	r.Trigger()
	release <- struct{}{}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("queued run never started")
	}
	release <- struct{}{}

	cancel()
	<-done
	if len(started) != 0 {
		t.Fatalf("extra runs queued: %d", len(started))
	}
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	// WHAT: Run returns promptly after ctx cancellation.
	// WHY: Graceful shutdown joins the worker goroutine.
	r := NewRunner(func(ctx context.Context) {}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}
