package quadstore

import (
	"testing"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/walog"
)

func openTest(t *testing.T, dir string) (*atom.Store, *Store) {
	t.Helper()
	atoms, err := atom.Open(dir)
	if err != nil {
		t.Fatalf("atom.Open: %v", err)
	}
	qs, err := Open(dir, atoms)
	if err != nil {
		atoms.Close()
		t.Fatalf("Open: %v", err)
	}
	return atoms, qs
}

func internIRI(t *testing.T, atoms *atom.Store, s string) atom.ID {
	t.Helper()
	id, err := atoms.InternIdentifier([]byte(s))
	if err != nil {
		t.Fatalf("InternIdentifier: %v", err)
	}
	return id
}

func countMatches(t *testing.T, qs *Store, s, p, o, g atom.ID, mode QueryMode, at, from, to uint64) int {
	t.Helper()
	en, err := qs.Query(s, p, o, g, mode, at, from, to)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer en.Close()
	n := 0
	for en.Next() {
		n++
	}
	return n
}

func TestAddAndTemporalVisibility(t *testing.T) {
	dir := t.TempDir()
	atoms, qs := openTest(t, dir)
	defer qs.Close()
	defer atoms.Close()

	s := internIRI(t, atoms, "s")
	p := internIRI(t, atoms, "p")
	o := internIRI(t, atoms, "o")

	if err := qs.Add(Quad{Subject: s, Predicate: p, Object: o, ValidFrom: 100, ValidTo: 200}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	for _, tc := range []struct {
		at   uint64
		want int
	}{{99, 0}, {100, 1}, {150, 1}, {199, 1}, {200, 0}} {
		if got := countMatches(t, qs, s, p, o, 0, ModeAsOf, tc.at, 0, 0); got != tc.want {
			t.Fatalf("as of %d: got %d, want %d", tc.at, got, tc.want)
		}
	}
	if got := countMatches(t, qs, s, p, o, 0, ModeDuring, 0, 150, 300); got != 1 {
		t.Fatalf("during overlap: got %d", got)
	}
	if got := countMatches(t, qs, s, p, o, 0, ModeDuring, 0, 200, 300); got != 0 {
		t.Fatalf("during disjoint: got %d", got)
	}
}

func TestEndDatePreservesHistory(t *testing.T) {
	dir := t.TempDir()
	atoms, qs := openTest(t, dir)
	defer qs.Close()
	defer atoms.Close()

	s := internIRI(t, atoms, "s")
	p := internIRI(t, atoms, "p")
	o := internIRI(t, atoms, "o")

	if err := qs.Add(Quad{Subject: s, Predicate: p, Object: o, ValidFrom: 100, ValidTo: walog.MaxTicks}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ended, err := qs.End(s, p, o, 0, 500)
	if err != nil || !ended {
		t.Fatalf("End: ended=%v err=%v", ended, err)
	}
	if got := countMatches(t, qs, s, p, o, 0, ModeAsOf, 600, 0, 0); got != 0 {
		t.Fatalf("ended quad still current: %d", got)
	}
	if got := countMatches(t, qs, s, p, o, 0, ModeAsOf, 300, 0, 0); got != 1 {
		t.Fatalf("history lost: %d", got)
	}
	if got := countMatches(t, qs, s, p, o, 0, ModeEvolution, 0, 0, 0); got != 1 {
		t.Fatalf("evolution should show the single end-dated version: %d", got)
	}
}

func TestConcurrentBatchRejected(t *testing.T) {
	dir := t.TempDir()
	atoms, qs := openTest(t, dir)
	defer qs.Close()
	defer atoms.Close()

	txID, err := qs.BeginBatch()
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	if _, err := qs.BeginBatch(); err != ErrConcurrentWrite {
		t.Fatalf("second BeginBatch: got %v, want ErrConcurrentWrite", err)
	}
	if err := qs.RollbackBatch(txID); err != nil {
		t.Fatalf("RollbackBatch: %v", err)
	}
}

func TestBatchVisibleOnlyAfterCommit(t *testing.T) {
	dir := t.TempDir()
	atoms, qs := openTest(t, dir)
	defer qs.Close()
	defer atoms.Close()

	s := internIRI(t, atoms, "s")
	p := internIRI(t, atoms, "p")
	o := internIRI(t, atoms, "o")

	txID, err := qs.BeginBatch()
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	if err := qs.Add(Quad{Subject: s, Predicate: p, Object: o, ValidFrom: 1, ValidTo: walog.MaxTicks}); err != nil {
		t.Fatalf("batched Add: %v", err)
	}
	if err := qs.CommitBatch(txID); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	if got := countMatches(t, qs, s, p, o, 0, ModeAsOf, 10, 0, 0); got != 1 {
		t.Fatalf("committed batch not visible: %d", got)
	}
}

func TestRestartKeepsData(t *testing.T) {
	dir := t.TempDir()
	atoms, qs := openTest(t, dir)

	s := internIRI(t, atoms, "s")
	p := internIRI(t, atoms, "p")
	o := internIRI(t, atoms, "o")
	if err := qs.Add(Quad{Subject: s, Predicate: p, Object: o, ValidFrom: 1, ValidTo: walog.MaxTicks}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	txBefore := qs.WAL().CurrentTxID()
	qs.Close()
	atoms.Close()

	atoms2, qs2 := openTest(t, dir)
	defer qs2.Close()
	defer atoms2.Close()

	if got := qs2.WAL().CurrentTxID(); got != txBefore {
		t.Fatalf("tx id after restart: got %d, want %d", got, txBefore)
	}
	s2 := internIRI(t, atoms2, "s")
	if s2 != s {
		t.Fatalf("atom id changed across restart: %d vs %d", s2, s)
	}
	if got := countMatches(t, qs2, s2, 0, 0, 0, ModeAsOf, 10, 0, 0); got != 1 {
		t.Fatalf("quad lost across restart: %d", got)
	}
}

func TestSelectIndexPlannerRule(t *testing.T) {
	for _, tc := range []struct {
		s, p, o, g bool
		want       Table
	}{
		{true, false, false, false, TableSPOT},
		{false, true, false, false, TablePOST},
		{false, false, true, false, TableOSPT},
		{false, true, true, true, TableGSPOT},
		{false, false, false, false, TableSPOT},
	} {
		if got := SelectIndex(tc.s, tc.p, tc.o, tc.g); got != tc.want {
			t.Fatalf("SelectIndex(%v %v %v %v) = %v, want %v", tc.s, tc.p, tc.o, tc.g, got, tc.want)
		}
	}
}
