// Package ingest drives snapshot processing: discovery of unprocessed
// snapshots, sequential merging, and marker bookkeeping, triggered either by
// a periodic tick or by inbound change notifications.
package ingest

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/snapfold/store"
)

// MergeFunc applies one snapshot to its target entity.
type MergeFunc func(ctx context.Context, graph, snapshotID string) error

// Processor discovers and merges unprocessed snapshots.
type Processor struct {
	store  *store.Store
	merge  MergeFunc
	logger *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(st *store.Store, merge MergeFunc, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: st, merge: merge, logger: logger}
}

// Process merges every snapshot not yet marked success, oldest first, across
// all graphs in a single pass. Each snapshot gets exactly one attempt per
// call: failures are logged, recorded as failed markers, and retried on the
// next invocation — one bad snapshot never blocks the rest of the batch.
func (p *Processor) Process(ctx context.Context) {
	pending, err := p.store.ListUnprocessed(ctx)
	if err != nil {
		p.logger.Error("ingest: discover unprocessed snapshots", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	p.logger.Info("ingest: processing snapshots", "count", len(pending))

	for _, u := range pending {
		// A cancelled run leaves the rest unmarked; the next tick
		// re-discovers them.
		if ctx.Err() != nil {
			p.logger.Warn("ingest: run cancelled", "remaining", len(pending))
			return
		}

		if err := p.merge(ctx, u.Graph, u.SnapshotID); err != nil {
			p.logger.Error("ingest: merge failed",
				"graph", u.Graph, "snapshot_id", u.SnapshotID, "error", err)
			if merr := p.store.RecordFailure(ctx, u.Graph, u.SnapshotID, err.Error()); merr != nil {
				p.logger.Error("ingest: record failure marker",
					"snapshot_id", u.SnapshotID, "error", merr)
			}
			continue
		}

		if err := p.store.RecordSuccess(ctx, u.Graph, u.SnapshotID); err != nil {
			p.logger.Error("ingest: record success marker",
				"snapshot_id", u.SnapshotID, "error", err)
		}
	}
	p.logger.Info("ingest: run complete", "count", len(pending))
}
