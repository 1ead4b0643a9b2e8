package ingest

import (
	"context"
	"log/slog"
)

// Runner serializes processing runs on a single worker goroutine. Both the
// scheduler tick and inbound notifications call Trigger; a trigger arriving
// while a run executes is queued behind it, and duplicates coalesce — a
// pending run picks up everything not yet processed, so holding more than
// one queued trigger is pointless.
type Runner struct {
	trigger chan struct{}
	run     func(ctx context.Context)
	logger  *slog.Logger
}

// NewRunner creates a Runner around a processing body.
func NewRunner(run func(ctx context.Context), logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		trigger: make(chan struct{}, 1),
		run:     run,
		logger:  logger,
	}
}

// Trigger requests a processing run. Never blocks: when a trigger is already
// queued the request coalesces into it.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run executes queued processing runs one at a time. Blocks until ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("ingest: runner stopped")
			return
		case <-r.trigger:
			r.run(ctx)
		}
	}
}
