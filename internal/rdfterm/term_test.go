package rdfterm

import (
	"testing"

	"github.com/mercurydb/mercury/pkg/rdf"
)

func roundtrip(t *testing.T, term rdf.Term) rdf.Term {
	t.Helper()
	b, err := Encode(term)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func TestRoundtripIRI(t *testing.T) {
	in := rdf.NewNamedNode("http://example.org/s")
	out := roundtrip(t, in)
	if !in.Equals(out) {
		t.Fatalf("roundtrip mismatch: %v != %v", in, out)
	}
}

func TestRoundtripBlankNode(t *testing.T) {
	in := rdf.NewBlankNode("b0")
	out := roundtrip(t, in)
	if !in.Equals(out) {
		t.Fatalf("roundtrip mismatch: %v != %v", in, out)
	}
}

func TestRoundtripSimpleLiteral(t *testing.T) {
	in := rdf.NewLiteral("hello")
	out := roundtrip(t, in)
	if !in.Equals(out) {
		t.Fatalf("roundtrip mismatch: %v != %v", in, out)
	}
}

func TestRoundtripLangLiteral(t *testing.T) {
	in := rdf.NewLiteralWithLanguage("bonjour", "fr")
	out := roundtrip(t, in)
	if !in.Equals(out) {
		t.Fatalf("roundtrip mismatch: %v != %v", in, out)
	}
}

func TestRoundtripTypedLiteral(t *testing.T) {
	in := rdf.NewIntegerLiteral(42)
	out := roundtrip(t, in)
	if !in.Equals(out) {
		t.Fatalf("roundtrip mismatch: %v != %v", in, out)
	}
}

func TestIsHelpers(t *testing.T) {
	iri, _ := Encode(rdf.NewNamedNode("http://x"))
	if !IsIRI(iri) || IsLiteral(iri) || IsBlankNode(iri) {
		t.Fatalf("IsIRI/IsLiteral/IsBlankNode misclassified IRI encoding")
	}
	lit, _ := Encode(rdf.NewLiteral("x"))
	if !IsLiteral(lit) || IsIRI(lit) {
		t.Fatalf("IsLiteral misclassified literal encoding")
	}
}
