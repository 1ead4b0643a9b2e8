package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetCodeListEntry retrieves a cached authority label by its URI.
// Returns nil when absent.
func (s *Store) GetCodeListEntry(ctx context.Context, id string) (*CodeListEntry, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, pref_label, taken_from, created_at
		FROM codelist_entries WHERE id = ?`, id)

	var e CodeListEntry
	err := row.Scan(&e.ID, &e.PrefLabel, &e.TakenFrom, &e.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan codelist entry: %w", err)
	}
	return &e, nil
}

// InsertCodeListEntry persists a backfilled authority label. Entries are
// created at most once per URI and never updated.
func (s *Store) InsertCodeListEntry(ctx context.Context, e *CodeListEntry) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO codelist_entries (id, pref_label, taken_from, created_at)
		VALUES (?, ?, ?, ?)`,
		e.ID, e.PrefLabel, e.TakenFrom, e.CreatedAt)
	return err
}
