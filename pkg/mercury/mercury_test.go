package mercury

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mercurydb/mercury/internal/quadstore"
	"github.com/mercurydb/mercury/internal/walog"
	"github.com/mercurydb/mercury/pkg/rdf"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustQuery(t *testing.T, db *DB, src string) *Result {
	t.Helper()
	res, err := db.Query(context.Background(), src)
	if err != nil {
		t.Fatalf("Query %q: %v", src, err)
	}
	return res
}

func TestLoadAndSelectAll(t *testing.T) {
	db := openDB(t)
	n, err := db.Load(strings.NewReader(`<http://ex.org/a> <http://ex.org/b> <http://ex.org/c> .`), "application/n-triples")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 quad loaded, got %d", n)
	}

	res := mustQuery(t, db, `SELECT * WHERE { ?s ?p ?o }`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	s, _ := res.Rows[0]["s"].(*rdf.NamedNode)
	if s == nil || s.IRI != "http://ex.org/a" {
		t.Fatalf("unexpected subject %v", res.Rows[0]["s"])
	}
}

func TestOptionalPartialMatch(t *testing.T) {
	db := openDB(t)
	data := `
		<http://ex.org/a> <http://xmlns.com/foaf/0.1/name> "A" .
		<http://ex.org/b> <http://xmlns.com/foaf/0.1/name> "B" .
		<http://ex.org/a> <http://xmlns.com/foaf/0.1/age> 30 .
	`
	if _, err := db.Load(strings.NewReader(data), "text/turtle"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	res := mustQuery(t, db, `SELECT ?p ?age WHERE {
		?p <http://xmlns.com/foaf/0.1/name> ?n
		OPTIONAL { ?p <http://xmlns.com/foaf/0.1/age> ?age }
	}`)
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	withAge := 0
	for _, row := range res.Rows {
		if _, ok := row["age"]; ok {
			withAge++
		}
	}
	if withAge != 1 {
		t.Fatalf("expected exactly 1 row with ?age, got %d", withAge)
	}
}

func TestPropertyPathClosures(t *testing.T) {
	db := openDB(t)
	data := `
		<http://ex.org/a> <http://ex.org/knows> <http://ex.org/b> .
		<http://ex.org/b> <http://ex.org/knows> <http://ex.org/c> .
	`
	if _, err := db.Load(strings.NewReader(data), "text/turtle"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	iris := func(res *Result) map[string]bool {
		out := map[string]bool{}
		for _, row := range res.Rows {
			if n, ok := row["x"].(*rdf.NamedNode); ok {
				out[strings.TrimPrefix(n.IRI, "http://ex.org/")] = true
			}
		}
		return out
	}

	plus := iris(mustQuery(t, db, `SELECT ?x WHERE { <http://ex.org/a> <http://ex.org/knows>+ ?x }`))
	if !plus["b"] || !plus["c"] || plus["a"] {
		t.Fatalf("knows+ expected {b,c}, got %v", plus)
	}
	star := iris(mustQuery(t, db, `SELECT ?x WHERE { <http://ex.org/a> <http://ex.org/knows>* ?x }`))
	if !star["a"] || !star["b"] || !star["c"] {
		t.Fatalf("knows* expected {a,b,c}, got %v", star)
	}
	opt := iris(mustQuery(t, db, `SELECT ?x WHERE { <http://ex.org/a> <http://ex.org/knows>? ?x }`))
	if !opt["a"] || !opt["b"] || opt["c"] {
		t.Fatalf("knows? expected {a,b}, got %v", opt)
	}
}

func TestTemporalAsOfAndAllVersions(t *testing.T) {
	db := openDB(t)
	alice, err := db.internTerm(rdf.NewNamedNode("http://ex.org/alice"))
	if err != nil {
		t.Fatal(err)
	}
	worksFor, err := db.internTerm(rdf.NewNamedNode("http://ex.org/worksFor"))
	if err != nil {
		t.Fatal(err)
	}
	acme, err := db.internTerm(rdf.NewNamedNode("http://ex.org/Acme"))
	if err != nil {
		t.Fatal(err)
	}
	initech, err := db.internTerm(rdf.NewNamedNode("http://ex.org/Initech"))
	if err != nil {
		t.Fatal(err)
	}

	t2020 := quadstore.TicksFromTime(mustTime(t, "2020-01-01T00:00:00Z"))
	t2023 := quadstore.TicksFromTime(mustTime(t, "2023-07-01T00:00:00Z"))
	if err := db.store.Add(quadstore.Quad{Subject: alice, Predicate: worksFor, Object: acme, ValidFrom: t2020, ValidTo: t2023}); err != nil {
		t.Fatal(err)
	}
	if err := db.store.Add(quadstore.Quad{Subject: alice, Predicate: worksFor, Object: initech, ValidFrom: t2023, ValidTo: walog.MaxTicks}); err != nil {
		t.Fatal(err)
	}

	res := mustQuery(t, db, `SELECT ?c WHERE { <http://ex.org/alice> <http://ex.org/worksFor> ?c } AS OF "2023-08-01"`)
	if len(res.Rows) != 1 {
		t.Fatalf("AS OF expected 1 row, got %d", len(res.Rows))
	}
	if n, _ := res.Rows[0]["c"].(*rdf.NamedNode); n == nil || n.IRI != "http://ex.org/Initech" {
		t.Fatalf("AS OF expected Initech, got %v", res.Rows[0]["c"])
	}

	res = mustQuery(t, db, `SELECT ?c WHERE { <http://ex.org/alice> <http://ex.org/worksFor> ?c } ALL VERSIONS`)
	if len(res.Rows) != 2 {
		t.Fatalf("ALL VERSIONS expected 2 rows, got %d", len(res.Rows))
	}
}

func TestAskConstructAndUpdate(t *testing.T) {
	db := openDB(t)
	res := mustQuery(t, db, `INSERT DATA { <http://ex.org/a> <http://ex.org/p> <http://ex.org/b> }`)
	if res.Inserted != 1 {
		t.Fatalf("expected 1 inserted, got %d", res.Inserted)
	}

	ask := mustQuery(t, db, `ASK WHERE { <http://ex.org/a> <http://ex.org/p> ?o }`)
	if !ask.Bool {
		t.Fatalf("ASK expected true")
	}

	built := mustQuery(t, db, `CONSTRUCT { ?s <http://ex.org/q> ?o } WHERE { ?s <http://ex.org/p> ?o }`)
	if len(built.Triples) != 1 {
		t.Fatalf("CONSTRUCT expected 1 triple, got %d", len(built.Triples))
	}
	if p, _ := built.Triples[0].Predicate.(*rdf.NamedNode); p == nil || p.IRI != "http://ex.org/q" {
		t.Fatalf("CONSTRUCT predicate wrong: %v", built.Triples[0])
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return parsed
}

func TestTextMatchFilterUsesTrigramIndex(t *testing.T) {
	db := openDB(t)
	data := `
		<http://ex.org/g> <http://ex.org/name> "Göteborg" .
		<http://ex.org/m> <http://ex.org/name> "Malmö" .
	`
	if _, err := db.Load(strings.NewReader(data), "text/turtle"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	res := mustQuery(t, db, `SELECT ?s WHERE { ?s <http://ex.org/name> ?n FILTER(text:match(?n, "göteborg")) }`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 match for göteborg, got %d", len(res.Rows))
	}
	if s, _ := res.Rows[0]["s"].(*rdf.NamedNode); s == nil || s.IRI != "http://ex.org/g" {
		t.Fatalf("wrong match: %v", res.Rows[0]["s"])
	}

	res = mustQuery(t, db, `SELECT ?s WHERE { ?s <http://ex.org/name> ?n FILTER(text:match(?n, "ö")) }`)
	if len(res.Rows) != 2 {
		t.Fatalf("short needle must match both cities, got %d rows", len(res.Rows))
	}

	mustQuery(t, db, `DELETE DATA { <http://ex.org/g> <http://ex.org/name> "Göteborg" }`)
	res = mustQuery(t, db, `SELECT ?s WHERE { ?s <http://ex.org/name> ?n FILTER(text:match(?n, "göteborg")) }`)
	if len(res.Rows) != 0 {
		t.Fatalf("deleted literal must no longer match, got %d rows", len(res.Rows))
	}
}

func TestLoadRDFXMLAndJSONLD(t *testing.T) {
	db := openDB(t)

	rdfxml := `<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns:ex="http://ex.org/">
  <rdf:Description rdf:about="http://ex.org/a">
    <ex:name>Alice</ex:name>
  </rdf:Description>
</rdf:RDF>`
	if n, err := db.Load(strings.NewReader(rdfxml), "application/rdf+xml"); err != nil || n != 1 {
		t.Fatalf("RDF/XML load: n=%d err=%v", n, err)
	}

	jsonld := `{"@id": "http://ex.org/b", "http://ex.org/name": "Bob"}`
	if n, err := db.Load(strings.NewReader(jsonld), "application/ld+json"); err != nil || n != 1 {
		t.Fatalf("JSON-LD load: n=%d err=%v", n, err)
	}

	res := mustQuery(t, db, `SELECT ?s WHERE { ?s <http://ex.org/name> ?n }`)
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 subjects after XML+JSON-LD loads, got %d", len(res.Rows))
	}
}
