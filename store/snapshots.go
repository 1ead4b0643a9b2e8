package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// InsertSnapshot appends a snapshot row. The ordering key is derived from
// the raw generated_at text; the text itself is stored unmodified.
func (s *Store) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.Kind != KindConcept && snap.Kind != KindInstance {
		return fmt.Errorf("store: invalid snapshot kind %q", snap.Kind)
	}
	ns, err := ParseGeneratedAt(snap.GeneratedAt)
	if err != nil {
		return err
	}
	snap.GeneratedNs = ns
	if snap.InsertedAt == 0 {
		snap.InsertedAt = time.Now().UnixMilli()
	}
	content := snap.Content
	if content == nil {
		content = &Content{}
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot content: %w", err)
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO snapshots (id, graph, kind, version_of, generated_at,
		generated_ns, is_archived, content, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Graph, snap.Kind, snap.VersionOf, snap.GeneratedAt,
		snap.GeneratedNs, snap.IsArchived, string(contentJSON), snap.InsertedAt,
	)
	return err
}

// GetSnapshot retrieves a snapshot by graph and id. Returns nil when absent.
func (s *Store) GetSnapshot(ctx context.Context, graph, id string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, graph, kind, version_of, generated_at, generated_ns,
		is_archived, content, inserted_at
		FROM snapshots WHERE graph = ? AND id = ?`, graph, id)

	var snap Snapshot
	var archived int
	var contentJSON string
	err := row.Scan(
		&snap.ID, &snap.Graph, &snap.Kind, &snap.VersionOf, &snap.GeneratedAt,
		&snap.GeneratedNs, &archived, &contentJSON, &snap.InsertedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.IsArchived = archived != 0
	snap.Content = &Content{}
	if err := json.Unmarshal([]byte(contentJSON), snap.Content); err != nil {
		return nil, fmt.Errorf("store: unmarshal snapshot content: %w", err)
	}
	return &snap, nil
}

// ListUnprocessed returns every snapshot lacking a success marker in its
// graph, ordered by generation time ascending with the snapshot id as the
// stable tie-break. This is the processor's discovery query.
func (s *Store) ListUnprocessed(ctx context.Context) ([]*UnprocessedSnapshot, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT s.graph, s.id, s.kind, s.generated_ns
		FROM snapshots s
		WHERE NOT EXISTS (
			SELECT 1 FROM markers m
			WHERE m.graph = s.graph AND m.snapshot_id = s.id AND m.status = ?
		)
		ORDER BY s.generated_ns ASC, s.id ASC`, StatusSuccess)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*UnprocessedSnapshot
	for rows.Next() {
		var u UnprocessedSnapshot
		if err := rows.Scan(&u.Graph, &u.SnapshotID, &u.Kind, &u.GeneratedNs); err != nil {
			return nil, fmt.Errorf("scan unprocessed: %w", err)
		}
		result = append(result, &u)
	}
	return result, rows.Err()
}

// HasNewerProcessed reports whether a strictly newer snapshot for the same
// target has already been successfully processed. Late-arrival callers can
// use this to skip redundant work; the merger's own ordering check remains
// the correctness path.
func (s *Store) HasNewerProcessed(ctx context.Context, snap *Snapshot) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots s2
		WHERE s2.graph = ? AND s2.version_of = ? AND s2.kind = ?
		  AND s2.generated_ns > ?
		  AND EXISTS (
			SELECT 1 FROM markers m
			WHERE m.graph = s2.graph AND m.snapshot_id = s2.id AND m.status = ?
		  )`,
		snap.Graph, snap.VersionOf, snap.Kind, snap.GeneratedNs, StatusSuccess).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
