package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/snapfold/idgen"
)

// RecordSuccess appends a success marker for a snapshot. Markers are never
// updated in place; a reattempt after failure appends a new row.
func (s *Store) RecordSuccess(ctx context.Context, graph, snapshotID string) error {
	return s.insertMarker(ctx, graph, snapshotID, StatusSuccess, "")
}

// RecordFailure appends a failed marker carrying the error message.
func (s *Store) RecordFailure(ctx context.Context, graph, snapshotID, errMsg string) error {
	return s.insertMarker(ctx, graph, snapshotID, StatusFailed, errMsg)
}

func (s *Store) insertMarker(ctx context.Context, graph, snapshotID, status, errMsg string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO markers (id, graph, snapshot_id, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		idgen.Prefixed("mrk_", idgen.Default)(), graph, snapshotID, status, errMsg,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: insert marker: %w", err)
	}
	return nil
}

// ListMarkers returns all markers for a snapshot, oldest first.
func (s *Store) ListMarkers(ctx context.Context, graph, snapshotID string) ([]*Marker, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, graph, snapshot_id, status, error, created_at
		FROM markers WHERE graph = ? AND snapshot_id = ?
		ORDER BY created_at ASC, id ASC`, graph, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markers []*Marker
	for rows.Next() {
		var m Marker
		if err := rows.Scan(&m.ID, &m.Graph, &m.SnapshotID, &m.Status, &m.Error, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		markers = append(markers, &m)
	}
	return markers, rows.Err()
}
