package scan

import (
	"testing"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/quadstore"
	"github.com/mercurydb/mercury/internal/rdfterm"
	"github.com/mercurydb/mercury/internal/sparql/parser"
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

func internIRI(t *testing.T, atoms *atom.Store, iri string) atom.ID {
	t.Helper()
	enc, err := rdfterm.Encode(rdf.NewNamedNode(iri))
	if err != nil {
		t.Fatalf("rdfterm.Encode: %v", err)
	}
	id, err := atoms.InternIdentifier(enc)
	if err != nil {
		t.Fatalf("InternIdentifier: %v", err)
	}
	return id
}

func addQuad(t *testing.T, qs *quadstore.Store, s, p, o, g atom.ID) {
	t.Helper()
	now := quadstore.Now()
	if err := qs.Add(quadstore.Quad{Subject: s, Predicate: p, Object: o, Graph: g, ValidFrom: now, ValidTo: walog.MaxTicks}); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func TestTriplePatternScanBindsObject(t *testing.T) {
	atoms, qs := openTestStore(t)

	alice := internIRI(t, atoms, "http://example.org/alice")
	knows := internIRI(t, atoms, "http://example.org/knows")
	bob := internIRI(t, atoms, "http://example.org/bob")
	addQuad(t, qs, alice, knows, bob, 0)

	src := `SELECT ?o WHERE { <http://example.org/alice> <http://example.org/knows> ?o }`
	q, err := parser.NewParser(src).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	ctx := NewContext(q, qs, atoms, nil)
	plan, err := BuildPlan(ctx, q.Body, 0)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	defer plan.Close()

	ok, err := plan.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatalf("expected one solution")
	}
	v, bound := ctx.Table.Lookup(pattern.HashVar("o"))
	if !bound {
		t.Fatalf("expected ?o to be bound")
	}
	fv, err := ctx.filterValue(v)
	if err != nil {
		t.Fatalf("filterValue: %v", err)
	}
	if fv.Lexical != "http://example.org/bob" {
		t.Fatalf("expected bob IRI, got %q", fv.Lexical)
	}

	ok, err = plan.Next()
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if ok {
		t.Fatalf("expected exactly one solution")
	}
}

func TestMultiPatternScanJoinsSharedVariable(t *testing.T) {
	atoms, qs := openTestStore(t)

	alice := internIRI(t, atoms, "http://example.org/alice")
	knows := internIRI(t, atoms, "http://example.org/knows")
	bob := internIRI(t, atoms, "http://example.org/bob")
	name := internIRI(t, atoms, "http://example.org/name")
	bobName, err := atoms.Intern(mustEncode(t, rdf.NewLiteral("Bob")))
	if err != nil {
		t.Fatalf("Intern literal: %v", err)
	}
	addQuad(t, qs, alice, knows, bob, 0)
	addQuad(t, qs, bob, name, bobName, 0)

	src := `SELECT ?n WHERE { <http://example.org/alice> <http://example.org/knows> ?friend . ?friend <http://example.org/name> ?n }`
	q, err := parser.NewParser(src).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	ctx := NewContext(q, qs, atoms, nil)
	plan, err := BuildPlan(ctx, q.Body, 0)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	defer plan.Close()

	ok, err := plan.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatalf("expected a joined solution")
	}
	v, bound := ctx.Table.Lookup(pattern.HashVar("n"))
	if !bound {
		t.Fatalf("expected ?n to be bound")
	}
	fv, err := ctx.filterValue(v)
	if err != nil {
		t.Fatalf("filterValue: %v", err)
	}
	if fv.Lexical != "Bob" {
		t.Fatalf("expected Bob, got %q", fv.Lexical)
	}
}

func TestOptionalScanYieldsUnboundWhenNoMatch(t *testing.T) {
	atoms, qs := openTestStore(t)

	alice := internIRI(t, atoms, "http://example.org/alice")
	knows := internIRI(t, atoms, "http://example.org/knows")
	bob := internIRI(t, atoms, "http://example.org/bob")
	addQuad(t, qs, alice, knows, bob, 0)

	src := `SELECT ?o ?mbox WHERE { <http://example.org/alice> <http://example.org/knows> ?o . OPTIONAL { ?o <http://example.org/mbox> ?mbox } }`
	q, err := parser.NewParser(src).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	ctx := NewContext(q, qs, atoms, nil)
	plan, err := BuildPlan(ctx, q.Body, 0)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	defer plan.Close()

	ok, err := plan.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatalf("expected the outer row to survive the unmatched OPTIONAL")
	}
	if _, bound := ctx.Table.Lookup(pattern.HashVar("mbox")); bound {
		t.Fatalf("expected ?mbox to remain unbound when OPTIONAL has no match")
	}
	v, bound := ctx.Table.Lookup(pattern.HashVar("o"))
	if !bound {
		t.Fatalf("expected ?o to still be bound")
	}
	fv, err := ctx.filterValue(v)
	if err != nil {
		t.Fatalf("filterValue: %v", err)
	}
	if fv.Lexical != "http://example.org/bob" {
		t.Fatalf("expected bob IRI, got %q", fv.Lexical)
	}

	ok, err = plan.Next()
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if ok {
		t.Fatalf("expected exactly one solution")
	}
}

func TestUnionScanYieldsBothBranches(t *testing.T) {
	atoms, qs := openTestStore(t)

	alice := internIRI(t, atoms, "http://example.org/alice")
	carol := internIRI(t, atoms, "http://example.org/carol")
	knows := internIRI(t, atoms, "http://example.org/knows")
	likes := internIRI(t, atoms, "http://example.org/likes")
	bob := internIRI(t, atoms, "http://example.org/bob")
	addQuad(t, qs, alice, knows, bob, 0)
	addQuad(t, qs, carol, likes, bob, 0)

	src := `SELECT ?s WHERE { { ?s <http://example.org/knows> <http://example.org/bob> } UNION { ?s <http://example.org/likes> <http://example.org/bob> } }`
	q, err := parser.NewParser(src).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	ctx := NewContext(q, qs, atoms, nil)
	plan, err := BuildPlan(ctx, q.Body, 0)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	defer plan.Close()

	var got []string
	for {
		ok, err := plan.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		v, bound := ctx.Table.Lookup(pattern.HashVar("s"))
		if !bound {
			t.Fatalf("expected ?s to be bound")
		}
		fv, err := ctx.filterValue(v)
		if err != nil {
			t.Fatalf("filterValue: %v", err)
		}
		got = append(got, fv.Lexical)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 solutions across both UNION branches, got %v", got)
	}
}

func mustEncode(t *testing.T, term rdf.Term) []byte {
	t.Helper()
	b, err := rdfterm.Encode(term)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return b
}
