package reasoner

import (
	"testing"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/quadstore"
	"github.com/mercurydb/mercury/internal/rdfterm"
	"github.com/mercurydb/mercury/internal/walog"
	"github.com/mercurydb/mercury/pkg/rdf"
)

func openReasoner(t *testing.T, rules RuleSet) *Reasoner {
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
	return &Reasoner{Store: qs, Atoms: atoms, Rules: rules}
}

func iri(t *testing.T, r *Reasoner, s string) atom.ID {
	t.Helper()
	enc, err := rdfterm.Encode(rdf.NewNamedNode(s))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	id, err := r.Atoms.InternIdentifier(enc)
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	return id
}

func add(t *testing.T, r *Reasoner, s, p, o atom.ID) {
	t.Helper()
	now := quadstore.Now()
	if err := r.Store.Add(quadstore.Quad{Subject: s, Predicate: p, Object: o, ValidFrom: now, ValidTo: walog.MaxTicks}); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func holds(t *testing.T, r *Reasoner, s, p, o atom.ID) bool {
	t.Helper()
	en, err := r.Store.Query(s, p, o, 0, quadstore.ModeCurrent, quadstore.Now(), 0, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer en.Close()
	return en.Next()
}

func TestSubClassClosure(t *testing.T) {
	r := openReasoner(t, RdfsSubClass)
	typ := iri(t, r, iriType)
	sub := iri(t, r, iriSubClassOf)
	dog := iri(t, r, "http://ex.org/Dog")
	mammal := iri(t, r, "http://ex.org/Mammal")
	animal := iri(t, r, "http://ex.org/Animal")
	rex := iri(t, r, "http://ex.org/rex")

	add(t, r, dog, sub, mammal)
	add(t, r, mammal, sub, animal)
	add(t, r, rex, typ, dog)

	n, err := r.Materialize(10)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if n < 2 {
		t.Fatalf("expected at least 2 inferred quads, got %d", n)
	}
	if !holds(t, r, rex, typ, mammal) || !holds(t, r, rex, typ, animal) {
		t.Fatalf("subclass closure incomplete")
	}
}

func TestTransitiveAndSymmetric(t *testing.T) {
	r := openReasoner(t, OwlTransitive|OwlSymmetric)
	typ := iri(t, r, iriType)
	trans := iri(t, r, iriTransitiveProperty)
	sym := iri(t, r, iriSymmetricProperty)
	partOf := iri(t, r, "http://ex.org/partOf")
	near := iri(t, r, "http://ex.org/near")
	a := iri(t, r, "http://ex.org/a")
	b := iri(t, r, "http://ex.org/b")
	c := iri(t, r, "http://ex.org/c")

	add(t, r, partOf, typ, trans)
	add(t, r, a, partOf, b)
	add(t, r, b, partOf, c)
	add(t, r, near, typ, sym)
	add(t, r, a, near, b)

	if _, err := r.Materialize(10); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if !holds(t, r, a, partOf, c) {
		t.Fatalf("transitive closure missing a partOf c")
	}
	if !holds(t, r, b, near, a) {
		t.Fatalf("symmetric closure missing b near a")
	}
}

func TestDomainRangeSkipsLiteralRange(t *testing.T) {
	r := openReasoner(t, RdfsDomain|RdfsRange)
	typ := iri(t, r, iriType)
	domain := iri(t, r, iriDomain)
	rang := iri(t, r, iriRange)
	name := iri(t, r, "http://ex.org/name")
	person := iri(t, r, "http://ex.org/Person")
	alice := iri(t, r, "http://ex.org/alice")

	enc, err := rdfterm.Encode(rdf.NewLiteral("Alice"))
	if err != nil {
		t.Fatalf("Encode literal: %v", err)
	}
	lit, err := r.Atoms.Intern(enc)
	if err != nil {
		t.Fatalf("Intern literal: %v", err)
	}

	add(t, r, name, domain, person)
	add(t, r, name, rang, person)
	add(t, r, alice, name, lit)

	if _, err := r.Materialize(10); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if !holds(t, r, alice, typ, person) {
		t.Fatalf("domain inference missing")
	}
	if holds(t, r, lit, typ, person) {
		t.Fatalf("range inference must skip literal objects")
	}
}
