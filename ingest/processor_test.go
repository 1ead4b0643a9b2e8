package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/snapfold/dbopen"
	"github.com/hazyhaar/snapfold/store"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := store.ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return store.NewStore(db)
}

func seedSnapshot(t *testing.T, st *store.Store, id, generatedAt string) {
	t.Helper()
	if err := st.InsertSnapshot(context.Background(), &store.Snapshot{
		ID: id, Graph: "g", Kind: store.KindConcept,
		VersionOf: "https://example.org/concept/" + id, GeneratedAt: generatedAt,
		Content: &store.Content{Title: id},
	}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestProcessRecordsSuccessMarkers(t *testing.T) {
	// WHAT: A clean run merges every pending snapshot oldest-first and
	// marks each with a success marker.
	// WHY: Successful snapshots must drop out of the next discovery pass.
	st := openTestStore(t)
	seedSnapshot(t, st, "B", "2024-01-17T00:00:00Z")
	seedSnapshot(t, st, "A", "2024-01-16T00:00:00Z")

	var merged []string
	p := NewProcessor(st, func(ctx context.Context, graph, snapshotID string) error {
		merged = append(merged, snapshotID)
		return nil
	}, nil)
	p.Process(context.Background())

	if len(merged) != 2 || merged[0] != "A" || merged[1] != "B" {
		t.Fatalf("merge order: got %v, want [A B]", merged)
	}
	pending, err := st.ListUnprocessed(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after run: %+v", pending)
	}
}

func TestProcessOneAttemptPerSnapshotPerRun(t *testing.T) {
	// WHAT: A failing snapshot is attempted exactly once per run, gets a
	// failure marker, and stays eligible for the next run.
	// WHY: Retries are bounded by discovery, not by an in-run loop.
	st := openTestStore(t)
	seedSnapshot(t, st, "A", "2024-01-16T00:00:00Z")

	attempts := 0
	p := NewProcessor(st, func(ctx context.Context, graph, snapshotID string) error {
		attempts++
		return errors.New("boom")
	}, nil)
	p.Process(context.Background())

	if attempts != 1 {
		t.Fatalf("attempts in one run: got %d, want 1", attempts)
	}
	markers, err := st.ListMarkers(context.Background(), "g", "A")
	if err != nil {
		t.Fatalf("markers: %v", err)
	}
	if len(markers) != 1 || markers[0].Status != store.StatusFailed || markers[0].Error != "boom" {
		t.Fatalf("markers: %+v", markers)
	}

	p.Process(context.Background())
	if attempts != 2 {
		t.Fatalf("attempts after second run: got %d, want 2", attempts)
	}
}

func TestProcessFailureDoesNotBlockOthers(t *testing.T) {
	// WHAT: One failing snapshot does not prevent the rest of the batch
	// from merging.
	// WHY: Batches mix independent targets; isolation is per snapshot.
	st := openTestStore(t)
	seedSnapshot(t, st, "bad", "2024-01-16T00:00:00Z")
	seedSnapshot(t, st, "good", "2024-01-17T00:00:00Z")

	p := NewProcessor(st, func(ctx context.Context, graph, snapshotID string) error {
		if snapshotID == "bad" {
			return errors.New("boom")
		}
		return nil
	}, nil)
	p.Process(context.Background())

	pending, err := st.ListUnprocessed(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].SnapshotID != "bad" {
		t.Fatalf("pending: %+v, want only bad", pending)
	}
}

func TestProcessStopsOnCancelledContext(t *testing.T) {
	// WHAT: A cancelled context stops the batch before the next merge.
	// WHY: Shutdown must not start new merges; leftovers are re-discovered.
	st := openTestStore(t)
	seedSnapshot(t, st, "A", "2024-01-16T00:00:00Z")
	seedSnapshot(t, st, "B", "2024-01-17T00:00:00Z")

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	p := NewProcessor(st, func(ctx context.Context, graph, snapshotID string) error {
		attempts++
		cancel()
		return nil
	}, nil)
	p.Process(ctx)

	if attempts != 1 {
		t.Fatalf("attempts: got %d, want 1", attempts)
	}
}
