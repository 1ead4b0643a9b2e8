package store

import (
	"context"
	"testing"

	"github.com/hazyhaar/snapfold/dbopen"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return NewStore(db)
}

func TestApplySchema(t *testing.T) {
	// WHAT: Verify schema creates all tables without error.
	// WHY: Schema is the foundation — if it fails, nothing works.
	s := openTestStore(t)
	for _, table := range []string{"snapshots", "entities", "previous_snapshots", "markers", "codelist_entries"} {
		var name string
		err := s.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestParseGeneratedAt(t *testing.T) {
	// WHAT: Parse RFC3339 timestamps of varying precision into ordering keys.
	// WHY: Ordering uses the derived key; the raw text is only stored.
	ns1, err := ParseGeneratedAt("2024-01-16T00:00:00Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ns2, err := ParseGeneratedAt("2024-01-16T00:00:00.000000001Z")
	if err != nil {
		t.Fatalf("parse with nanos: %v", err)
	}
	if ns2 != ns1+1 {
		t.Errorf("nanosecond precision lost: %d vs %d", ns1, ns2)
	}

	if _, err := ParseGeneratedAt("yesterday"); err == nil {
		t.Error("expected error for garbage timestamp")
	}
}

func TestInsertSnapshotRejectsUnknownKind(t *testing.T) {
	// WHAT: Inserting a snapshot with an unknown kind fails.
	// WHY: The merger dispatches on kind; bad rows must never enter.
	s := openTestStore(t)
	err := s.InsertSnapshot(context.Background(), &Snapshot{
		ID: "snap-1", Graph: "g", Kind: "widget",
		VersionOf: "https://example.org/c/1", GeneratedAt: "2024-01-16T00:00:00Z",
	})
	if err == nil {
		t.Fatal("expected error for kind widget")
	}
}

func TestSnapshotTimestampRoundTrip(t *testing.T) {
	// WHAT: The raw generated_at text survives insert and read unmodified.
	// WHY: The source's textual precision must round-trip exactly, never be
	// renormalized.
	s := openTestStore(t)
	ctx := context.Background()

	raw := "2024-01-16T09:30:00.500Z"
	snap := &Snapshot{
		ID: "snap-1", Graph: "g", Kind: KindConcept,
		VersionOf:   "https://example.org/c/1",
		GeneratedAt: raw,
		Content:     &Content{Title: "v1"},
	}
	if err := s.InsertSnapshot(ctx, snap); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetSnapshot(ctx, "g", "snap-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("snapshot not found")
	}
	if got.GeneratedAt != raw {
		t.Errorf("generated_at: got %q, want %q", got.GeneratedAt, raw)
	}
	if got.Content.Title != "v1" {
		t.Errorf("title: got %q", got.Content.Title)
	}
	if got.GeneratedNs == 0 {
		t.Error("ordering key not derived")
	}
}

func TestGetSnapshotMissing(t *testing.T) {
	// WHAT: Missing snapshots return nil, not an error.
	// WHY: Callers distinguish not-found from system failure.
	s := openTestStore(t)
	got, err := s.GetSnapshot(context.Background(), "g", "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing snapshot")
	}
}

func TestListUnprocessedOrderingAndFiltering(t *testing.T) {
	// WHAT: Discovery returns snapshots without a success marker, oldest
	// first, with the id as tie-break; failed markers keep rows eligible.
	// WHY: The processor's single pass depends on this exact ordering.
	s := openTestStore(t)
	ctx := context.Background()

	insert := func(id, at string) {
		t.Helper()
		if err := s.InsertSnapshot(ctx, &Snapshot{
			ID: id, Graph: "g", Kind: KindConcept,
			VersionOf: "https://example.org/c/1", GeneratedAt: at,
			Content: &Content{Title: id},
		}); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	insert("snap-b", "2024-01-17T00:00:00Z")
	insert("snap-a", "2024-01-16T00:00:00Z")
	// Same instant as snap-b: id decides.
	insert("snap-c", "2024-01-17T00:00:00Z")

	if err := s.RecordSuccess(ctx, "g", "snap-a"); err != nil {
		t.Fatalf("success marker: %v", err)
	}
	if err := s.RecordFailure(ctx, "g", "snap-b", "boom"); err != nil {
		t.Fatalf("failure marker: %v", err)
	}

	got, err := s.ListUnprocessed(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("count: got %d, want 2", len(got))
	}
	if got[0].SnapshotID != "snap-b" || got[1].SnapshotID != "snap-c" {
		t.Errorf("order: got %s, %s; want snap-b, snap-c", got[0].SnapshotID, got[1].SnapshotID)
	}
}

func TestHasNewerProcessed(t *testing.T) {
	// WHAT: Detect a strictly newer, already-successful snapshot for the
	// same target.
	// WHY: Late-arrival callers use this to skip redundant work.
	s := openTestStore(t)
	ctx := context.Background()

	old := &Snapshot{
		ID: "snap-old", Graph: "g", Kind: KindConcept,
		VersionOf: "https://example.org/c/1", GeneratedAt: "2024-01-15T00:00:00Z",
		Content: &Content{Title: "old"},
	}
	newer := &Snapshot{
		ID: "snap-new", Graph: "g", Kind: KindConcept,
		VersionOf: "https://example.org/c/1", GeneratedAt: "2024-01-17T00:00:00Z",
		Content: &Content{Title: "new"},
	}
	for _, snap := range []*Snapshot{old, newer} {
		if err := s.InsertSnapshot(ctx, snap); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := s.HasNewerProcessed(ctx, old)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got {
		t.Error("no marker yet: should be false")
	}

	if err := s.RecordSuccess(ctx, "g", "snap-new"); err != nil {
		t.Fatalf("marker: %v", err)
	}
	got, err = s.HasNewerProcessed(ctx, old)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !got {
		t.Error("newer success marker exists: should be true")
	}

	// The newer snapshot itself has no strictly newer processed sibling.
	got, err = s.HasNewerProcessed(ctx, newer)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got {
		t.Error("latest snapshot should not be superseded")
	}
}
