// Package store provides the data access layer for the snapfold database.
//
// The store receives an already-opened *sql.DB (see dbopen) and wraps it
// with typed operations for snapshots, entities, processed markers and
// code-list entries. Snapshots and markers are append-only; entities are
// the only mutable rows.
package store

import "database/sql"

// Store wraps the snapfold database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
