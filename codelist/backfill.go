package codelist

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/snapfold/store"
)

// Backfill ensures referenced authority identifiers exist as local
// code-list entries, fetching labels from the registry on cache miss.
type Backfill struct {
	store    *store.Store
	registry *Registry
	logger   *slog.Logger
}

// NewBackfill creates a Backfill service.
func NewBackfill(st *store.Store, reg *Registry, logger *slog.Logger) *Backfill {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfill{store: st, registry: reg, logger: logger}
}

// EnsureExist ensures a code-list entry exists for every given authority
// URI. Entries are a denormalization convenience, not correctness-critical
// data: fetch and persist failures are logged and suppressed, and an entry
// already present is never fetched again.
func (b *Backfill) EnsureExist(ctx context.Context, uris []string) {
	seen := make(map[string]bool, len(uris))
	for _, uri := range uris {
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true

		existing, err := b.store.GetCodeListEntry(ctx, uri)
		if err != nil {
			b.logger.Warn("codelist: lookup entry", "uri", uri, "error", err)
			continue
		}
		if existing != nil {
			continue
		}

		label, takenFrom, err := b.registry.Lookup(ctx, uri)
		if err != nil {
			b.logger.Warn("codelist: registry fetch", "uri", uri, "error", err)
			continue
		}
		if label == "" {
			b.logger.Debug("codelist: registry has no label", "uri", uri)
			continue
		}

		if err := b.store.InsertCodeListEntry(ctx, &store.CodeListEntry{
			ID:        uri,
			PrefLabel: label,
			TakenFrom: takenFrom,
		}); err != nil {
			b.logger.Warn("codelist: insert entry", "uri", uri, "error", err)
			continue
		}
		b.logger.Info("codelist: entry backfilled", "uri", uri, "label", label)
	}
}
