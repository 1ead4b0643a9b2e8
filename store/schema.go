package store

import "database/sql"

// Schema is the complete snapfold schema.
const Schema = `
-- Snapshots: immutable versioned records ingested from the source stream.
-- Scoped to their source graph (partition); never updated or deleted.
CREATE TABLE IF NOT EXISTS snapshots (
    id            TEXT NOT NULL,
    graph         TEXT NOT NULL,
    kind          TEXT NOT NULL,
    version_of    TEXT NOT NULL,
    generated_at  TEXT NOT NULL,
    generated_ns  INTEGER NOT NULL,
    is_archived   INTEGER NOT NULL DEFAULT 0,
    content       TEXT NOT NULL DEFAULT '{}',
    inserted_at   INTEGER NOT NULL,
    PRIMARY KEY (graph, id)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_order ON snapshots(generated_ns, id);
CREATE INDEX IF NOT EXISTS idx_snapshots_version_of ON snapshots(version_of);

-- Entities: mutable current state built by merging snapshots.
CREATE TABLE IF NOT EXISTS entities (
    id                         TEXT PRIMARY KEY,
    kind                       TEXT NOT NULL,
    version_of                 TEXT NOT NULL,
    latest_snapshot            TEXT NOT NULL DEFAULT '',
    latest_generated_at        TEXT NOT NULL DEFAULT '',
    latest_generated_ns        INTEGER NOT NULL DEFAULT 0,
    latest_functional_snapshot TEXT NOT NULL DEFAULT '',
    is_archived                INTEGER NOT NULL DEFAULT 0,
    source_concept             TEXT NOT NULL DEFAULT '',
    review_status              TEXT NOT NULL DEFAULT '',
    content                    TEXT NOT NULL DEFAULT '{}',
    created_at                 INTEGER NOT NULL,
    updated_at                 INTEGER NOT NULL,
    UNIQUE (kind, version_of)
);
CREATE INDEX IF NOT EXISTS idx_entities_source_concept ON entities(source_concept);

-- Lineage: all snapshots ever merged into an entity except the latest one.
-- Set semantics via the composite primary key.
CREATE TABLE IF NOT EXISTS previous_snapshots (
    entity_id   TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    snapshot_id TEXT NOT NULL,
    PRIMARY KEY (entity_id, snapshot_id)
);

-- Processed markers: one row per processing attempt, never updated.
CREATE TABLE IF NOT EXISTS markers (
    id          TEXT PRIMARY KEY,
    graph       TEXT NOT NULL,
    snapshot_id TEXT NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_markers_snapshot ON markers(graph, snapshot_id, status);

-- Code-list entries: lazily backfilled labels for external authorities.
CREATE TABLE IF NOT EXISTS codelist_entries (
    id         TEXT PRIMARY KEY,
    pref_label TEXT NOT NULL,
    taken_from TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
