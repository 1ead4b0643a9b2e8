package ingest

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler triggers processing on a fixed interval.
type Scheduler struct {
	interval time.Duration
	trigger  func()
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. Interval defaults to one minute.
func NewScheduler(interval time.Duration, trigger func(), logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{interval: interval, trigger: trigger, logger: logger}
}

// Run fires the trigger on a ticker. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run once immediately on start to pick up work left over from a
	// previous run that was cut short.
	s.trigger()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ingest: scheduler stopped")
			return
		case <-ticker.C:
			s.trigger()
		}
	}
}
