package agg

import (
	"testing"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/quadstore"
	"github.com/mercurydb/mercury/internal/rdfterm"
	"github.com/mercurydb/mercury/internal/sparql/parser"
	"github.com/mercurydb/mercury/internal/sparql/scan"
	"github.com/mercurydb/mercury/internal/walog"
	"github.com/mercurydb/mercury/pkg/rdf"
)

func openTestStore(t *testing.T) (*atom.Store, *quadstore.Store) {
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
	return atoms, qs
}

func intern(t *testing.T, atoms *atom.Store, term rdf.Term) atom.ID {
	t.Helper()
	enc, err := rdfterm.Encode(term)
	if err != nil {
		t.Fatalf("rdfterm.Encode: %v", err)
	}
	var id atom.ID
	if _, ok := term.(*rdf.Literal); ok {
		id, err = atoms.Intern(enc)
	} else {
		id, err = atoms.InternIdentifier(enc)
	}
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	return id
}

func addQuad(t *testing.T, qs *quadstore.Store, s, p, o atom.ID) {
	t.Helper()
	now := quadstore.Now()
	if err := qs.Add(quadstore.Quad{Subject: s, Predicate: p, Object: o, ValidFrom: now, ValidTo: walog.MaxTicks}); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func runQuery(t *testing.T, atoms *atom.Store, qs *quadstore.Store, src string) (*scan.Context, []Row) {
	t.Helper()
	q, err := parser.NewParser(src).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ctx := scan.NewContext(q, qs, atoms, nil)
	plan, err := scan.BuildPlan(ctx, q.Body, 0)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	defer plan.Close()
	rows, err := Run(ctx, plan)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return ctx, rows
}

func boundTerm(t *testing.T, ctx *scan.Context, row Row, name string) rdf.Term {
	t.Helper()
	h := pattern.HashVar(name)
	for _, bp := range row {
		if bp.Hash != h {
			continue
		}
		enc, err := ctx.ValueEncoding(bp.Value)
		if err != nil {
			t.Fatalf("ValueEncoding: %v", err)
		}
		term, err := rdfterm.Decode(enc)
		if err != nil {
			t.Fatalf("rdfterm.Decode: %v", err)
		}
		return term
	}
	return nil
}

func TestCountStar(t *testing.T) {
	atoms, qs := openTestStore(t)
	a := intern(t, atoms, rdf.NewNamedNode("http://example.org/a"))
	p := intern(t, atoms, rdf.NewNamedNode("http://example.org/p"))
	addQuad(t, qs, a, p, intern(t, atoms, rdf.NewLiteral("1")))
	addQuad(t, qs, a, p, intern(t, atoms, rdf.NewLiteral("2")))

	ctx, rows := runQuery(t, atoms, qs,
		`SELECT (COUNT(*) AS ?n) WHERE { <http://example.org/a> <http://example.org/p> ?o }`)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	lit, ok := boundTerm(t, ctx, rows[0], "n").(*rdf.Literal)
	if !ok || lit.Value != "2" {
		t.Fatalf("expected ?n = 2, got %v", lit)
	}
}

func TestGroupByWithSum(t *testing.T) {
	atoms, qs := openTestStore(t)
	p := intern(t, atoms, rdf.NewNamedNode("http://example.org/score"))
	alice := intern(t, atoms, rdf.NewNamedNode("http://example.org/alice"))
	bob := intern(t, atoms, rdf.NewNamedNode("http://example.org/bob"))
	addQuad(t, qs, alice, p, intern(t, atoms, rdf.NewIntegerLiteral(3)))
	addQuad(t, qs, alice, p, intern(t, atoms, rdf.NewIntegerLiteral(4)))
	addQuad(t, qs, bob, p, intern(t, atoms, rdf.NewIntegerLiteral(10)))

	ctx, rows := runQuery(t, atoms, qs,
		`SELECT ?s (SUM(?v) AS ?total) WHERE { ?s <http://example.org/score> ?v } GROUP BY ?s ORDER BY ?total`)
	if len(rows) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(rows))
	}
	first, _ := boundTerm(t, ctx, rows[0], "total").(*rdf.Literal)
	second, _ := boundTerm(t, ctx, rows[1], "total").(*rdf.Literal)
	if first == nil || first.Value != "7" {
		t.Fatalf("expected first total 7, got %v", first)
	}
	if second == nil || second.Value != "10" {
		t.Fatalf("expected second total 10, got %v", second)
	}
}

func TestDistinctAndLimit(t *testing.T) {
	atoms, qs := openTestStore(t)
	p := intern(t, atoms, rdf.NewNamedNode("http://example.org/p"))
	v := intern(t, atoms, rdf.NewLiteral("x"))
	addQuad(t, qs, intern(t, atoms, rdf.NewNamedNode("http://example.org/s1")), p, v)
	addQuad(t, qs, intern(t, atoms, rdf.NewNamedNode("http://example.org/s2")), p, v)

	_, rows := runQuery(t, atoms, qs,
		`SELECT DISTINCT ?o WHERE { ?s <http://example.org/p> ?o }`)
	if len(rows) != 1 {
		t.Fatalf("expected 1 distinct row, got %d", len(rows))
	}

	_, rows = runQuery(t, atoms, qs,
		`SELECT ?s WHERE { ?s <http://example.org/p> ?o } LIMIT 1`)
	if len(rows) != 1 {
		t.Fatalf("expected LIMIT 1 to yield 1 row, got %d", len(rows))
	}
}

func TestHavingFiltersGroups(t *testing.T) {
	atoms, qs := openTestStore(t)
	p := intern(t, atoms, rdf.NewNamedNode("http://example.org/score"))
	alice := intern(t, atoms, rdf.NewNamedNode("http://example.org/alice"))
	bob := intern(t, atoms, rdf.NewNamedNode("http://example.org/bob"))
	addQuad(t, qs, alice, p, intern(t, atoms, rdf.NewIntegerLiteral(3)))
	addQuad(t, qs, bob, p, intern(t, atoms, rdf.NewIntegerLiteral(10)))

	ctx, rows := runQuery(t, atoms, qs,
		`SELECT ?s (SUM(?v) AS ?total) WHERE { ?s <http://example.org/score> ?v } GROUP BY ?s HAVING (?total > 5)`)
	if len(rows) != 1 {
		t.Fatalf("expected 1 surviving group, got %d", len(rows))
	}
	s, _ := boundTerm(t, ctx, rows[0], "s").(*rdf.NamedNode)
	if s == nil || s.IRI != "http://example.org/bob" {
		t.Fatalf("expected bob, got %v", s)
	}
}
