package store

import (
	"errors"
	"fmt"
	"time"
)

// Snapshot and entity kinds.
const (
	KindConcept  = "concept"
	KindInstance = "instance"
)

// Marker statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Review statuses applied to instances when their source concept changes.
const (
	ReviewConceptChanged  = "concept-changed"
	ReviewConceptArchived = "concept-archived"
)

// ErrNotFound is returned when a referenced snapshot or entity is missing.
var ErrNotFound = errors.New("store: not found")

// Snapshot is an immutable versioned record published by the external source.
type Snapshot struct {
	ID          string   `json:"id"`
	Graph       string   `json:"graph"`
	Kind        string   `json:"kind"`
	VersionOf   string   `json:"version_of"`
	GeneratedAt string   `json:"generated_at"` // raw textual timestamp, stored verbatim
	GeneratedNs int64    `json:"-"`            // parsed ordering key, derived once on insert
	IsArchived  bool     `json:"is_archived"`
	Content     *Content `json:"content"`
	InsertedAt  int64    `json:"inserted_at"`
}

// Entity is the mutable current state built by merging snapshots over time.
type Entity struct {
	ID                string   `json:"id"`
	Kind              string   `json:"kind"`
	VersionOf         string   `json:"version_of"`
	LatestSnapshot    string   `json:"latest_snapshot"`
	LatestGeneratedAt string   `json:"latest_generated_at"`
	LatestGeneratedNs int64    `json:"-"`
	LatestFunctional  string   `json:"latest_functionally_changed_snapshot"`
	PreviousSnapshots []string `json:"previous_snapshots"`
	IsArchived        bool     `json:"is_archived"`
	SourceConcept     string   `json:"source_concept,omitempty"` // instances only
	ReviewStatus      string   `json:"review_status,omitempty"`  // instances only
	Content           *Content `json:"content"`
	CreatedAt         int64    `json:"created_at"`
	UpdatedAt         int64    `json:"updated_at"`
}

// Content is the displayed payload shared by snapshots and entities.
// Sub-collection ids are snapshot-owned on snapshots and entity-owned on
// entities; the merger re-mints them on every replace.
type Content struct {
	Title                string               `json:"title"`
	Description          string               `json:"description"`
	Modified             string               `json:"modified,omitempty"` // source-side edit time, not functional
	Keywords             []string             `json:"keywords,omitempty"`
	Requirements         []Requirement        `json:"requirements,omitempty"`
	Procedures           []Procedure          `json:"procedures,omitempty"`
	Costs                []Cost               `json:"costs,omitempty"`
	FinancialAdvantages  []FinancialAdvantage `json:"financial_advantages,omitempty"`
	LegalResources       []LegalResource      `json:"legal_resources,omitempty"`
	Websites             []Website            `json:"websites,omitempty"`
	CompetentAuthorities []string             `json:"competent_authorities,omitempty"`
	ExecutingAuthorities []string             `json:"executing_authorities,omitempty"`
	SourceConcept        string               `json:"source_concept,omitempty"` // instances only
}

// Requirement is a condition with optional supporting evidence.
type Requirement struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Order       int       `json:"order"`
	Evidence    *Evidence `json:"evidence,omitempty"`
}

// Evidence is a proof document attached to a requirement.
type Evidence struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Procedure is a step with optional linked websites.
type Procedure struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Order       int       `json:"order"`
	Websites    []Website `json:"websites,omitempty"`
}

type Cost struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

type FinancialAdvantage struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

type LegalResource struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Order       int    `json:"order"`
}

type Website struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Order       int    `json:"order"`
}

// Marker records the outcome of one processing attempt for a snapshot.
type Marker struct {
	ID         string `json:"id"`
	Graph      string `json:"graph"`
	SnapshotID string `json:"snapshot_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// CodeListEntry is a locally cached label for an external authority.
type CodeListEntry struct {
	ID        string `json:"id"`
	PrefLabel string `json:"pref_label"`
	TakenFrom string `json:"taken_from"`
	CreatedAt int64  `json:"created_at"`
}

// UnprocessedSnapshot is a discovery row: a snapshot lacking a success marker.
type UnprocessedSnapshot struct {
	Graph       string
	SnapshotID  string
	Kind        string
	GeneratedNs int64
}

// ParseGeneratedAt parses a snapshot's textual generation timestamp into the
// UTC nanosecond ordering key. The raw text is kept verbatim on the row; only
// ordering uses the parsed value.
func ParseGeneratedAt(raw string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return 0, fmt.Errorf("store: parse generated_at %q: %w", raw, err)
	}
	return t.UTC().UnixNano(), nil
}
