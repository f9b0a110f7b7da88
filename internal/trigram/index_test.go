package trigram

import (
	"testing"

	badger "github.com/dgraph-io/badger/v4"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("failed to open badger db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTrigramsShortString(t *testing.T) {
	grams := Trigrams("Go")
	if len(grams) != 1 || grams[0] != "go" {
		t.Fatalf("expected single lowercased trigram, got %v", grams)
	}
}

func TestTrigramsOverlap(t *testing.T) {
	grams := Trigrams("hello")
	want := []string{"hel", "ell", "llo"}
	if len(grams) != len(want) {
		t.Fatalf("expected %d trigrams, got %d: %v", len(want), len(grams), grams)
	}
	for i, g := range want {
		if grams[i] != g {
			t.Fatalf("trigram %d: expected %q, got %q", i, g, grams[i])
		}
	}
}

func TestIndexAndSearch(t *testing.T) {
	idx := Open(openTestDB(t))

	if err := idx.Index(1, "hello world"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx.Index(2, "goodbye world"); err != nil {
		t.Fatalf("Index: %v", err)
	}

	ids, err := idx.Search("hello")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("expected [1], got %v", ids)
	}

	ids, err = idx.Search("world")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected both documents to match 'world', got %v", ids)
	}
}

func TestRemoveDropsFromPostings(t *testing.T) {
	idx := Open(openTestDB(t))
	if err := idx.Index(1, "shared term"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx.Remove(1, "shared term"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ids, err := idx.Search("shared")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no matches after removal, got %v", ids)
	}
}

func TestUnicodeCaseFolding(t *testing.T) {
	idx := Open(openTestDB(t))
	if err := idx.Index(1, "Göteborg"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx.Index(2, "Malmö"); err != nil {
		t.Fatalf("Index: %v", err)
	}

	ids, err := idx.Search("göteborg")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("case-folded search expected [1], got %v", ids)
	}

	grams := Trigrams("Göteborg")
	if grams[0] != "göt" {
		t.Fatalf("expected folded first trigram göt, got %q", grams[0])
	}
}
