// Package merge folds a snapshot into its target entity.
//
// The algorithm is the same for concept and instance snapshots: resolve or
// create the target entity, decide ordering against the entity's current
// latest, apply the content, record lineage, gate downstream review
// propagation on functional change, and backfill authority references.
package merge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/snapfold/codelist"
	"github.com/hazyhaar/snapfold/contentdiff"
	"github.com/hazyhaar/snapfold/dbopen"
	"github.com/hazyhaar/snapfold/idgen"
	"github.com/hazyhaar/snapfold/store"
)

// ErrInvalidSnapshot is returned when a snapshot violates the
// required-field contract (missing target identity, timestamp or title).
var ErrInvalidSnapshot = errors.New("merge: invalid snapshot")

// Merger applies snapshots to entities.
type Merger struct {
	store    *store.Store
	backfill *codelist.Backfill
	logger   *slog.Logger
	newID    idgen.Generator
}

// Option configures a Merger.
type Option func(*Merger)

// WithIDGenerator overrides identity minting. Tests inject deterministic
// generators to assert on entity and child ids.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(m *Merger) { m.newID = gen }
}

// New creates a Merger.
func New(st *store.Store, backfill *codelist.Backfill, logger *slog.Logger, opts ...Option) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Merger{
		store:    st,
		backfill: backfill,
		logger:   logger,
		newID:    idgen.Default,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// outcome carries what a committed merge transaction did, for post-commit
// logging and backfill.
type outcome struct {
	entityID   string
	created    bool
	noop       bool
	late       bool
	latest     string
	functional bool
	status     string
	flagged    int64
	content    *store.Content
}

// Merge applies one snapshot to its target entity. Idempotent: merging a
// snapshot already in the entity's lineage is a no-op.
//
// Every entity mutation (resolve-or-create, the content replace, lineage
// bookkeeping and review propagation) commits as one transaction: on any
// failure the caller observes the previous state, never a partial merge that
// a retry would skip over. Only the authority backfill runs after commit;
// its failures are suppressed regardless.
func (m *Merger) Merge(ctx context.Context, graph, snapshotID string) error {
	snap, err := m.store.GetSnapshot(ctx, graph, snapshotID)
	if err != nil {
		return fmt.Errorf("merge: load snapshot %s: %w", snapshotID, err)
	}
	if snap == nil {
		return fmt.Errorf("merge: snapshot %s in graph %s: %w", snapshotID, graph, store.ErrNotFound)
	}
	if err := validate(snap); err != nil {
		return err
	}

	var out outcome
	if err := dbopen.RunTx(ctx, m.store.DB, func(tx *sql.Tx) error {
		o, err := m.applyTx(ctx, tx, snap)
		if err != nil {
			return err
		}
		out = o
		return nil
	}); err != nil {
		return err
	}

	if out.created {
		m.logger.Info("merge: entity created",
			"entity_id", out.entityID, "kind", snap.Kind, "version_of", snap.VersionOf)
	}
	switch {
	case out.noop:
		m.logger.Debug("merge: snapshot already merged",
			"snapshot_id", snap.ID, "entity_id", out.entityID)
		return nil
	case out.late:
		m.logger.Info("merge: late arrival recorded",
			"snapshot_id", snap.ID, "entity_id", out.entityID,
			"generated_at", snap.GeneratedAt, "latest", out.latest)
		return nil
	}
	if out.flagged > 0 {
		m.logger.Info("merge: instances flagged for review",
			"concept", snap.VersionOf, "status", out.status, "count", out.flagged)
	}

	// Backfill is a denormalization convenience; its failures never surface.
	m.backfill.EnsureExist(ctx,
		append(append([]string{}, out.content.CompetentAuthorities...), out.content.ExecutingAuthorities...))

	m.logger.Info("merge: snapshot applied",
		"snapshot_id", snap.ID, "entity_id", out.entityID,
		"generated_at", snap.GeneratedAt, "functional", out.functional)
	return nil
}

// applyTx is the transactional body of Merge. It only writes through tx; the
// caller commits or rolls back.
func (m *Merger) applyTx(ctx context.Context, tx *sql.Tx, snap *store.Snapshot) (outcome, error) {
	var out outcome

	entity, err := m.store.GetEntityByVersionOfTx(ctx, tx, snap.Kind, snap.VersionOf)
	if err != nil {
		return out, fmt.Errorf("merge: resolve entity for %s: %w", snap.VersionOf, err)
	}
	if entity == nil {
		// First snapshot for this target: mint a fresh entity, its identity
		// independent of the snapshot's own.
		entity = &store.Entity{
			ID:        m.newID(),
			Kind:      snap.Kind,
			VersionOf: snap.VersionOf,
			Content:   &store.Content{},
		}
		if err := m.store.CreateEntityTx(ctx, tx, entity); err != nil {
			return out, fmt.Errorf("merge: create entity for %s: %w", snap.VersionOf, err)
		}
		out.created = true
	}
	out.entityID = entity.ID

	if alreadyMerged(entity, snap.ID) {
		out.noop = true
		return out, nil
	}

	// Late arrival: an older snapshot never touches displayed content, but
	// lineage stays a superset of everything merged.
	if entity.LatestSnapshot != "" && snap.GeneratedNs < entity.LatestGeneratedNs {
		if err := m.store.AddPreviousSnapshotTx(ctx, tx, entity.ID, snap.ID); err != nil {
			return out, fmt.Errorf("merge: record late snapshot %s: %w", snap.ID, err)
		}
		out.late = true
		out.latest = entity.LatestSnapshot
		return out, nil
	}

	// Newer or equal: full replace with freshly minted child identities.
	content := m.remint(snap.Content)
	archiveFlip := entity.IsArchived != snap.IsArchived
	out.functional = archiveFlip || contentdiff.Changed(entity.Content, content)
	out.content = content

	if err := m.store.ApplyLatestTx(ctx, tx, &store.LatestUpdate{
		EntityID:            entity.ID,
		SnapshotID:          snap.ID,
		GeneratedAt:         snap.GeneratedAt,
		GeneratedNs:         snap.GeneratedNs,
		IsArchived:          snap.IsArchived,
		Content:             content,
		FunctionallyChanged: out.functional,
		PreviousLatest:      entity.LatestSnapshot,
	}); err != nil {
		return out, fmt.Errorf("merge: apply snapshot %s: %w", snap.ID, err)
	}

	if out.functional && snap.Kind == store.KindConcept {
		out.status = store.ReviewConceptChanged
		if archiveFlip && snap.IsArchived {
			out.status = store.ReviewConceptArchived
		}
		n, err := m.store.MarkInstancesForReviewTx(ctx, tx, entity.VersionOf, out.status)
		if err != nil {
			return out, fmt.Errorf("merge: flag instances of %s: %w", entity.VersionOf, err)
		}
		out.flagged = n
	}
	return out, nil
}

func validate(snap *store.Snapshot) error {
	switch {
	case snap.VersionOf == "":
		return fmt.Errorf("%w: %s has no target identity", ErrInvalidSnapshot, snap.ID)
	case snap.GeneratedAt == "":
		return fmt.Errorf("%w: %s has no generation time", ErrInvalidSnapshot, snap.ID)
	case snap.Content == nil || snap.Content.Title == "":
		return fmt.Errorf("%w: %s has no title", ErrInvalidSnapshot, snap.ID)
	}
	return nil
}

func alreadyMerged(e *store.Entity, snapshotID string) bool {
	if e.LatestSnapshot == snapshotID {
		return true
	}
	for _, id := range e.PreviousSnapshots {
		if id == snapshotID {
			return true
		}
	}
	return false
}

// remint deep-copies a snapshot's content, replacing every sub-entity
// identity with a freshly minted entity-owned one. Relative order is
// preserved; identities are never reused across snapshot generations.
func (m *Merger) remint(c *store.Content) *store.Content {
	if c == nil {
		return &store.Content{}
	}
	out := &store.Content{
		Title:                c.Title,
		Description:          c.Description,
		Modified:             c.Modified,
		Keywords:             append([]string(nil), c.Keywords...),
		CompetentAuthorities: append([]string(nil), c.CompetentAuthorities...),
		ExecutingAuthorities: append([]string(nil), c.ExecutingAuthorities...),
		SourceConcept:        c.SourceConcept,
	}
	for _, r := range c.Requirements {
		nr := store.Requirement{
			ID:          m.newID(),
			Title:       r.Title,
			Description: r.Description,
			Order:       r.Order,
		}
		if r.Evidence != nil {
			nr.Evidence = &store.Evidence{
				ID:          m.newID(),
				Title:       r.Evidence.Title,
				Description: r.Evidence.Description,
			}
		}
		out.Requirements = append(out.Requirements, nr)
	}
	for _, p := range c.Procedures {
		np := store.Procedure{
			ID:          m.newID(),
			Title:       p.Title,
			Description: p.Description,
			Order:       p.Order,
			Websites:    m.remintWebsites(p.Websites),
		}
		out.Procedures = append(out.Procedures, np)
	}
	for _, cost := range c.Costs {
		out.Costs = append(out.Costs, store.Cost{
			ID:          m.newID(),
			Title:       cost.Title,
			Description: cost.Description,
			Order:       cost.Order,
		})
	}
	for _, fa := range c.FinancialAdvantages {
		out.FinancialAdvantages = append(out.FinancialAdvantages, store.FinancialAdvantage{
			ID:          m.newID(),
			Title:       fa.Title,
			Description: fa.Description,
			Order:       fa.Order,
		})
	}
	for _, lr := range c.LegalResources {
		out.LegalResources = append(out.LegalResources, store.LegalResource{
			ID:          m.newID(),
			Title:       lr.Title,
			Description: lr.Description,
			URL:         lr.URL,
			Order:       lr.Order,
		})
	}
	out.Websites = m.remintWebsites(c.Websites)
	return out
}

func (m *Merger) remintWebsites(ws []store.Website) []store.Website {
	var out []store.Website
	for _, w := range ws {
		out = append(out, store.Website{
			ID:          m.newID(),
			Title:       w.Title,
			Description: w.Description,
			URL:         w.URL,
			Order:       w.Order,
		})
	}
	return out
}
