package idgen

import (
	"sort"
	"strings"
	"testing"
)

func TestUUIDv7Unique(t *testing.T) {
	// WHAT: Consecutive IDs are unique and valid UUIDs.
	gen := UUIDv7()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
		if _, err := Parse(id); err != nil {
			t.Fatalf("generated id does not parse: %v", err)
		}
	}
}

func TestUUIDv7TimeSortable(t *testing.T) {
	// WHAT: v7 IDs generated in sequence sort lexicographically in
	// generation order.
	// WHY: Time-sortability is why v7 is the default.
	gen := UUIDv7()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = gen()
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for i := range ids {
		if ids[i] != sorted[i] {
			t.Fatalf("ids not time-sorted at %d: %q vs %q", i, ids[i], sorted[i])
		}
	}
}

func TestPrefixed(t *testing.T) {
	// WHAT: Prefixed prepends the prefix; the remainder stays a valid ID.
	gen := Prefixed("mrk_", UUIDv7())
	id := gen()
	if !strings.HasPrefix(id, "mrk_") {
		t.Fatalf("id %q lacks prefix", id)
	}
	if _, err := Parse(strings.TrimPrefix(id, "mrk_")); err != nil {
		t.Fatalf("suffix does not parse: %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("expected parse error")
	}
}
