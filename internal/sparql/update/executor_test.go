package update

import (
	"testing"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/quadstore"
	"github.com/mercurydb/mercury/internal/sparql/parser"
)

func openExecutor(t *testing.T) *Executor {
	t.Helper()
	dir := t.TempDir()
	atoms, err := atom.Open(dir)
	if err != nil {
		t.Fatalf("atom.Open: %v", err)
	}
	t.Cleanup(func() { atoms.Close() })
	qs, err := quadstore.Open(dir, atoms)
	if err != nil {
		t.Fatalf("quadstore.Open: %v", err)
	}
	t.Cleanup(func() { qs.Close() })
	return &Executor{Store: qs, Atoms: atoms}
}

func run(t *testing.T, e *Executor, src string) Result {
	t.Helper()
	q, err := parser.NewParser(src).Parse()
	if err != nil {
		t.Fatalf("Parse %q: %v", src, err)
	}
	res, err := e.Execute(q)
	if err != nil {
		t.Fatalf("Execute %q: %v", src, err)
	}
	return res
}

func countCurrent(t *testing.T, e *Executor) int {
	t.Helper()
	en, err := e.Store.Query(0, 0, 0, 0, quadstore.ModeCurrent, quadstore.Now(), 0, 0)
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

func TestInsertAndDeleteData(t *testing.T) {
	e := openExecutor(t)

	res := run(t, e, `INSERT DATA { <http://ex.org/a> <http://ex.org/p> "1" . <http://ex.org/a> <http://ex.org/p> "2" }`)
	if res.Inserted != 2 {
		t.Fatalf("expected 2 inserted, got %d", res.Inserted)
	}
	if n := countCurrent(t, e); n != 2 {
		t.Fatalf("expected 2 current quads, got %d", n)
	}

	res = run(t, e, `DELETE DATA { <http://ex.org/a> <http://ex.org/p> "1" }`)
	if res.Deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", res.Deleted)
	}
	if n := countCurrent(t, e); n != 1 {
		t.Fatalf("expected 1 current quad after delete, got %d", n)
	}
}

func TestDeleteWhere(t *testing.T) {
	e := openExecutor(t)
	run(t, e, `INSERT DATA { <http://ex.org/a> <http://ex.org/p> "1" . <http://ex.org/b> <http://ex.org/p> "2" . <http://ex.org/a> <http://ex.org/q> "3" }`)

	res := run(t, e, `DELETE WHERE { ?s <http://ex.org/p> ?o }`)
	if res.Deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", res.Deleted)
	}
	if n := countCurrent(t, e); n != 1 {
		t.Fatalf("expected 1 remaining quad, got %d", n)
	}
}

func TestModifyRewritesMatches(t *testing.T) {
	e := openExecutor(t)
	run(t, e, `INSERT DATA { <http://ex.org/alice> <http://ex.org/worksFor> <http://ex.org/Acme> }`)

	res := run(t, e, `DELETE { ?s <http://ex.org/worksFor> <http://ex.org/Acme> }
		INSERT { ?s <http://ex.org/worksFor> <http://ex.org/Initech> }
		WHERE { ?s <http://ex.org/worksFor> <http://ex.org/Acme> }`)
	if res.Deleted != 1 || res.Inserted != 1 {
		t.Fatalf("expected 1/1, got %+v", res)
	}
}

func TestClearGraphScopesToGraph(t *testing.T) {
	e := openExecutor(t)
	run(t, e, `INSERT DATA { GRAPH <http://ex.org/g1> { <http://ex.org/a> <http://ex.org/p> "1" } }`)
	run(t, e, `INSERT DATA { <http://ex.org/b> <http://ex.org/p> "2" }`)

	res := run(t, e, `CLEAR GRAPH <http://ex.org/g1>`)
	if res.Deleted != 1 {
		t.Fatalf("expected 1 cleared, got %d", res.Deleted)
	}
	if n := countCurrent(t, e); n != 1 {
		t.Fatalf("default-graph quad must survive, got %d current", n)
	}
}

func TestCopyAndMove(t *testing.T) {
	e := openExecutor(t)
	run(t, e, `INSERT DATA { GRAPH <http://ex.org/src> { <http://ex.org/a> <http://ex.org/p> "1" } }`)

	res := run(t, e, `COPY <http://ex.org/src> TO <http://ex.org/dst>`)
	if res.Inserted != 1 {
		t.Fatalf("COPY: expected 1 inserted, got %+v", res)
	}
	if n := countCurrent(t, e); n != 2 {
		t.Fatalf("after COPY expected 2 quads, got %d", n)
	}

	res = run(t, e, `MOVE <http://ex.org/src> TO <http://ex.org/dst2>`)
	if res.Inserted != 1 || res.Deleted != 1 {
		t.Fatalf("MOVE: expected 1 inserted 1 deleted, got %+v", res)
	}
}
