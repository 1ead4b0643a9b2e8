package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/snapfold/dbopen"
)

// dbtx is the querying surface shared by *sql.DB and *sql.Tx. Entity
// mutations run on whichever the caller provides: the merger passes a
// transaction so a whole merge commits or rolls back as one unit.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const entityColumns = `id, kind, version_of, latest_snapshot, latest_generated_at,
	latest_generated_ns, latest_functional_snapshot, is_archived,
	source_concept, review_status, content, created_at, updated_at`

// CreateEntity inserts a new entity shell. Content and lineage fields are
// filled by the first ApplyLatest.
func (s *Store) CreateEntity(ctx context.Context, e *Entity) error {
	return createEntity(ctx, s.DB, e)
}

// CreateEntityTx is CreateEntity on an open transaction.
func (s *Store) CreateEntityTx(ctx context.Context, tx *sql.Tx, e *Entity) error {
	return createEntity(ctx, tx, e)
}

func createEntity(ctx context.Context, q dbtx, e *Entity) error {
	if e.Kind != KindConcept && e.Kind != KindInstance {
		return fmt.Errorf("store: invalid entity kind %q", e.Kind)
	}
	now := time.Now().UnixMilli()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	if e.UpdatedAt == 0 {
		e.UpdatedAt = now
	}
	content := e.Content
	if content == nil {
		content = &Content{}
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("store: marshal entity content: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO entities (id, kind, version_of, latest_snapshot,
		latest_generated_at, latest_generated_ns, latest_functional_snapshot,
		is_archived, source_concept, review_status, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.VersionOf, e.LatestSnapshot,
		e.LatestGeneratedAt, e.LatestGeneratedNs, e.LatestFunctional,
		e.IsArchived, e.SourceConcept, e.ReviewStatus, string(contentJSON),
		e.CreatedAt, e.UpdatedAt,
	)
	return err
}

// GetEntity retrieves an entity by id, including its lineage set.
// Returns nil when absent.
func (s *Store) GetEntity(ctx context.Context, id string) (*Entity, error) {
	return getEntity(ctx, s.DB,
		`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
}

// GetEntityByVersionOf resolves the target entity a snapshot describes.
// Returns nil when no entity exists for that external identity yet.
func (s *Store) GetEntityByVersionOf(ctx context.Context, kind, versionOf string) (*Entity, error) {
	return getEntity(ctx, s.DB,
		`SELECT `+entityColumns+` FROM entities WHERE kind = ? AND version_of = ?`,
		kind, versionOf)
}

// GetEntityByVersionOfTx is GetEntityByVersionOf on an open transaction.
func (s *Store) GetEntityByVersionOfTx(ctx context.Context, tx *sql.Tx, kind, versionOf string) (*Entity, error) {
	return getEntity(ctx, tx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = ? AND version_of = ?`,
		kind, versionOf)
}

func getEntity(ctx context.Context, q dbtx, query string, args ...any) (*Entity, error) {
	row := q.QueryRowContext(ctx, query, args...)

	var e Entity
	var archived int
	var contentJSON string
	err := row.Scan(
		&e.ID, &e.Kind, &e.VersionOf, &e.LatestSnapshot, &e.LatestGeneratedAt,
		&e.LatestGeneratedNs, &e.LatestFunctional, &archived,
		&e.SourceConcept, &e.ReviewStatus, &contentJSON, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	e.IsArchived = archived != 0
	e.Content = &Content{}
	if err := json.Unmarshal([]byte(contentJSON), e.Content); err != nil {
		return nil, fmt.Errorf("store: unmarshal entity content: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT snapshot_id FROM previous_snapshots WHERE entity_id = ? ORDER BY snapshot_id`,
		e.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		e.PreviousSnapshots = append(e.PreviousSnapshots, id)
	}
	return &e, rows.Err()
}

// LatestUpdate describes a full content replace: the snapshot becomes the
// entity's new latest, the former latest (if any) moves into the lineage set.
type LatestUpdate struct {
	EntityID            string
	SnapshotID          string
	GeneratedAt         string
	GeneratedNs         int64
	IsArchived          bool
	Content             *Content // with freshly minted entity-owned child ids
	FunctionallyChanged bool
	PreviousLatest      string // former latest_snapshot, empty on first merge
}

// ApplyLatest performs the replace in one transaction so readers never see a
// half-merged entity. On failure the previous state is untouched.
func (s *Store) ApplyLatest(ctx context.Context, u *LatestUpdate) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		return applyLatest(ctx, tx, u)
	})
}

// ApplyLatestTx is ApplyLatest on an open transaction. The merger uses it so
// the replace commits together with review propagation.
func (s *Store) ApplyLatestTx(ctx context.Context, tx *sql.Tx, u *LatestUpdate) error {
	return applyLatest(ctx, tx, u)
}

func applyLatest(ctx context.Context, q dbtx, u *LatestUpdate) error {
	contentJSON, err := json.Marshal(u.Content)
	if err != nil {
		return fmt.Errorf("store: marshal entity content: %w", err)
	}
	now := time.Now().UnixMilli()

	var query string
	args := []any{
		u.SnapshotID, u.GeneratedAt, u.GeneratedNs, u.IsArchived,
		u.Content.SourceConcept, string(contentJSON), now,
	}
	if u.FunctionallyChanged {
		query = `UPDATE entities SET latest_snapshot=?, latest_generated_at=?,
			latest_generated_ns=?, is_archived=?, source_concept=?, content=?,
			updated_at=?, latest_functional_snapshot=? WHERE id=?`
		args = append(args, u.SnapshotID, u.EntityID)
	} else {
		query = `UPDATE entities SET latest_snapshot=?, latest_generated_at=?,
			latest_generated_ns=?, is_archived=?, source_concept=?, content=?,
			updated_at=? WHERE id=?`
		args = append(args, u.EntityID)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: apply latest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("store: apply latest: entity %s: %w", u.EntityID, ErrNotFound)
	}

	if u.PreviousLatest != "" {
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO previous_snapshots (entity_id, snapshot_id) VALUES (?, ?)`,
			u.EntityID, u.PreviousLatest); err != nil {
			return fmt.Errorf("store: record previous latest: %w", err)
		}
	}
	return nil
}

// AddPreviousSnapshot records a snapshot into the lineage set without
// touching displayed content. Used for late arrivals. Idempotent.
func (s *Store) AddPreviousSnapshot(ctx context.Context, entityID, snapshotID string) error {
	return addPreviousSnapshot(ctx, s.DB, entityID, snapshotID)
}

// AddPreviousSnapshotTx is AddPreviousSnapshot on an open transaction.
func (s *Store) AddPreviousSnapshotTx(ctx context.Context, tx *sql.Tx, entityID, snapshotID string) error {
	return addPreviousSnapshot(ctx, tx, entityID, snapshotID)
}

func addPreviousSnapshot(ctx context.Context, q dbtx, entityID, snapshotID string) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO previous_snapshots (entity_id, snapshot_id) VALUES (?, ?)`,
		entityID, snapshotID)
	return err
}

// MarkInstancesForReview flags every instance sourced from the given concept
// as needing review. The review flag is metadata: updated_at is deliberately
// left untouched. Returns the number of flagged instances.
func (s *Store) MarkInstancesForReview(ctx context.Context, conceptVersionOf, status string) (int64, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE entities SET review_status = ? WHERE kind = ? AND source_concept = ?`,
		status, KindInstance, conceptVersionOf)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkInstancesForReviewTx is MarkInstancesForReview on an open transaction,
// so review flags commit atomically with the concept replace that caused them.
func (s *Store) MarkInstancesForReviewTx(ctx context.Context, tx *sql.Tx, conceptVersionOf, status string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE entities SET review_status = ? WHERE kind = ? AND source_concept = ?`,
		status, KindInstance, conceptVersionOf)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
