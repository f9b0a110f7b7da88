package atom

import (
	"os"
	"testing"
)

func TestInternIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	id1, err := s.Intern([]byte("hello"))
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	id2, err := s.Intern([]byte("hello"))
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected equal ids, got %d and %d", id1, id2)
	}
	if id1 == 0 {
		t.Fatalf("id 0 must never be allocated")
	}

	got := s.GetBytes(id1)
	if string(got) != "hello" {
		t.Fatalf("GetBytes(%d) = %q, want %q", id1, got, "hello")
	}
}

func TestInternIDsMonotonic(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	var last ID
	for _, w := range []string{"a", "b", "c", "d"} {
		id, err := s.Intern([]byte(w))
		if err != nil {
			t.Fatalf("Intern(%s): %v", w, err)
		}
		if id <= last {
			t.Fatalf("ids must be monotonically increasing: %d then %d", last, id)
		}
		last = id
	}
}

func TestInternSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := s.Intern([]byte("persisted"))
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	id2, err := s2.Intern([]byte("persisted"))
	if err != nil {
		t.Fatalf("Intern after reopen: %v", err)
	}
	if id != id2 {
		t.Fatalf("expected id to survive restart: %d != %d", id, id2)
	}
}

func TestGetIDWithoutInsert(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if id := s.GetID([]byte("absent")); id != 0 {
		t.Fatalf("expected 0 for absent bytes, got %d", id)
	}
	want, _ := s.Intern([]byte("present"))
	if got := s.GetID([]byte("present")); got != want {
		t.Fatalf("GetID = %d, want %d", got, want)
	}
}

func TestStaleHashRebuildsFromData(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Intern([]byte("one"))
	s.Intern([]byte("two"))
	s.Close()

	// Simulate a hash file that disagrees with the data file by deleting it.
	if err := os.Remove(dir + "/atoms.hash"); err != nil {
		t.Fatalf("remove hash: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen after hash loss: %v", err)
	}
	defer s2.Close()

	if id := s2.GetID([]byte("one")); id == 0 {
		t.Fatalf("expected rebuilt hash to find 'one'")
	}
	if id := s2.GetID([]byte("two")); id == 0 {
		t.Fatalf("expected rebuilt hash to find 'two'")
	}
}

func TestStatisticsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Intern([]byte("alpha")); err != nil {
		t.Fatalf("Intern: %v", err)
	}
	if _, err := s.Intern([]byte("beta!")); err != nil {
		t.Fatalf("Intern: %v", err)
	}
	before := s.Statistics()
	s.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	after := s2.Statistics()
	if after.AtomCount != before.AtomCount {
		t.Fatalf("atom count after restart: %d vs %d", after.AtomCount, before.AtomCount)
	}
	if after.TotalBytes != before.TotalBytes || after.TotalBytes != 10 {
		t.Fatalf("total bytes after restart: %d vs %d", after.TotalBytes, before.TotalBytes)
	}
}
