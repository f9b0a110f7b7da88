package parser

import (
	"testing"

	"github.com/mercurydb/mercury/internal/pattern"
)

func mustParse(t *testing.T, src string) *Query {
	t.Helper()
	q, err := NewParser(src).Parse()
	if err != nil {
		t.Fatalf("Parse %q: %v", src, err)
	}
	return q
}

func kindCounts(q *Query) map[pattern.Kind]int {
	counts := map[pattern.Kind]int{}
	for i := 0; i < q.Body.Len(); i++ {
		counts[q.Body.At(i).Kind()]++
	}
	return counts
}

func TestSelectBasicTriple(t *testing.T) {
	q := mustParse(t, `SELECT ?s ?o WHERE { ?s <http://ex.org/p> ?o }`)
	if q.Type != QuerySelect {
		t.Fatalf("expected select, got %d", q.Type)
	}
	if len(q.Projection) != 2 || q.Projection[0].VarName != "s" || q.Projection[1].VarName != "o" {
		t.Fatalf("unexpected projection %+v", q.Projection)
	}
	if n := kindCounts(q)[pattern.KindTriple]; n != 1 {
		t.Fatalf("expected 1 triple slot, got %d", n)
	}
}

func TestPrefixedNamesAndShorthand(t *testing.T) {
	q := mustParse(t, `PREFIX foaf: <http://xmlns.com/foaf/0.1/>
		SELECT ?p WHERE { ?p a foaf:Person ; foaf:name ?n . }`)
	if q.Prefixes["foaf"] != "http://xmlns.com/foaf/0.1/" {
		t.Fatalf("prefix not recorded: %v", q.Prefixes)
	}
	if n := kindCounts(q)[pattern.KindTriple]; n != 2 {
		t.Fatalf("';' continuation should yield 2 triples, got %d", n)
	}
}

func TestGroupConstructsProduceHeaders(t *testing.T) {
	q := mustParse(t, `SELECT * WHERE {
		?s <http://ex.org/p> ?o .
		OPTIONAL { ?s <http://ex.org/q> ?x }
		MINUS { ?s <http://ex.org/r> ?y }
		FILTER(?o > 3)
		BIND(?o + 1 AS ?o2)
	}`)
	counts := kindCounts(q)
	if counts[pattern.KindOptionalHeader] != 1 || counts[pattern.KindMinusHeader] != 1 {
		t.Fatalf("missing group headers: %v", counts)
	}
	if counts[pattern.KindFilter] != 1 || counts[pattern.KindBind] != 1 {
		t.Fatalf("missing filter/bind slots: %v", counts)
	}
}

func TestValuesBlock(t *testing.T) {
	q := mustParse(t, `SELECT ?x WHERE { ?x <http://ex.org/p> ?o . VALUES ?o { "a" "b" "c" } }`)
	counts := kindCounts(q)
	if counts[pattern.KindValuesHeader] != 1 || counts[pattern.KindValuesEntry] != 3 {
		t.Fatalf("VALUES encoding wrong: %v", counts)
	}
}

func TestPathSequenceExpandsToChain(t *testing.T) {
	q := mustParse(t, `SELECT ?x WHERE { <http://ex.org/a> <http://ex.org/p>/<http://ex.org/q> ?x }`)
	if n := kindCounts(q)[pattern.KindTriple]; n != 2 {
		t.Fatalf("sequence path should desugar to 2 triples, got %d", n)
	}
}

func TestPathClosureKeptOnSlot(t *testing.T) {
	q := mustParse(t, `SELECT ?x WHERE { <http://ex.org/a> <http://ex.org/p>+ ?x }`)
	var found bool
	for i := 0; i < q.Body.Len(); i++ {
		slot := q.Body.At(i)
		if slot.Kind() != pattern.KindTriple {
			continue
		}
		tf := slot.Triple()
		if tf.HasPath && tf.Path.Kind == pattern.PathOneOrMore {
			found = true
		}
	}
	if !found {
		t.Fatalf("one-or-more path not recorded on the slot")
	}
}

func TestQuotedTripleExpandsToReification(t *testing.T) {
	q := mustParse(t, `SELECT ?w WHERE { << <http://ex.org/a> <http://ex.org/p> <http://ex.org/b> >> <http://ex.org/saidBy> ?w }`)
	// 4 reification triples plus the outer statement.
	if n := kindCounts(q)[pattern.KindTriple]; n != 5 {
		t.Fatalf("expected 5 triples after reification expansion, got %d", n)
	}
}

func TestSolutionModifiers(t *testing.T) {
	q := mustParse(t, `SELECT ?s (COUNT(?o) AS ?n) WHERE { ?s ?p ?o }
		GROUP BY ?s HAVING (?n > 1) ORDER BY DESC(?n) LIMIT 10 OFFSET 5`)
	m := q.Modifier
	if len(m.GroupBy) != 1 || len(m.Having) != 1 || len(m.OrderBy) != 1 {
		t.Fatalf("modifiers not parsed: %+v", m)
	}
	if !m.OrderBy[0].Descending {
		t.Fatalf("DESC not recorded")
	}
	if m.Limit != 10 || m.Offset != 5 {
		t.Fatalf("limit/offset wrong: %d/%d", m.Limit, m.Offset)
	}
	if len(q.Projection) != 2 || !q.Projection[1].IsExpr || q.Projection[1].ExprAliasName != "n" {
		t.Fatalf("computed projection wrong: %+v", q.Projection)
	}
}

func TestTemporalSuffixes(t *testing.T) {
	q := mustParse(t, `SELECT ?c WHERE { ?s ?p ?c } AS OF "2023-08-01"`)
	if q.Temporal != TemporalAsOf || q.TemporalExpr.Len == 0 {
		t.Fatalf("AS OF not parsed: %+v", q)
	}
	q = mustParse(t, `SELECT ?c WHERE { ?s ?p ?c } ALL VERSIONS`)
	if q.Temporal != TemporalAllVersions {
		t.Fatalf("ALL VERSIONS not parsed")
	}
}

func TestConstructRecordsTemplateRange(t *testing.T) {
	q := mustParse(t, `CONSTRUCT { ?s <http://ex.org/q> ?o } WHERE { ?s <http://ex.org/p> ?o }`)
	if q.Type != QueryConstruct {
		t.Fatalf("expected construct")
	}
	if q.ConstructEnd <= q.ConstructStart {
		t.Fatalf("template range empty: [%d, %d)", q.ConstructStart, q.ConstructEnd)
	}
	if q.WhereStart != q.ConstructEnd {
		t.Fatalf("WHERE should start right after the template: %d vs %d", q.WhereStart, q.ConstructEnd)
	}
}

func TestUpdateForms(t *testing.T) {
	q := mustParse(t, `INSERT DATA { <http://ex.org/a> <http://ex.org/p> "1" }`)
	if q.Update == nil || q.Update.Form != UpdateInsertData {
		t.Fatalf("INSERT DATA not recognized")
	}
	q = mustParse(t, `DELETE WHERE { ?s <http://ex.org/p> ?o }`)
	if q.Update == nil || q.Update.Form != UpdateDeleteWhere {
		t.Fatalf("DELETE WHERE not recognized")
	}
	q = mustParse(t, `WITH <http://ex.org/g> DELETE { ?s ?p ?o } INSERT { ?s ?p "x" } WHERE { ?s ?p ?o }`)
	u := q.Update
	if u == nil || u.Form != UpdateModify || u.WithGraph != "http://ex.org/g" {
		t.Fatalf("Modify/WITH not recognized: %+v", u)
	}
	q = mustParse(t, `CLEAR NAMED`)
	if q.Update == nil || q.Update.Form != UpdateClear || q.Update.Scope != ScopeNamed {
		t.Fatalf("CLEAR NAMED not recognized")
	}
	q = mustParse(t, `COPY <http://ex.org/a> TO <http://ex.org/b>`)
	if q.Update == nil || q.Update.Form != UpdateCopy {
		t.Fatalf("COPY not recognized")
	}
}

func TestParseErrorCarriesPosition(t *testing.T) {
	_, err := NewParser("SELECT ?s WHERE ?s ?p ?o }").Parse()
	if err == nil {
		t.Fatalf("expected a parse error")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Line < 1 || pe.Column < 1 {
		t.Fatalf("position not set: %+v", pe)
	}
}
