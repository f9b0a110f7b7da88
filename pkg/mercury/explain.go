package mercury

import (
	"fmt"
	"strings"

	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/quadstore"
	"github.com/mercurydb/mercury/internal/sparql/parser"
)

// Explain parses a query and renders a plan summary: one line per pattern
// slot with the index a scan of it would use, plus the solution modifiers
// in application order.
func (db *DB) Explain(src string) (string, error) {
	q, err := parser.NewParser(src).Parse()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if q.Update != nil {
		fmt.Fprintf(&b, "update form %d\n", q.Update.Form)
		return b.String(), nil
	}

	termText := func(t pattern.Term) string {
		if t.Start < 0 {
			return "(generated)"
		}
		return q.Source[t.Start : t.Start+t.Len]
	}

	n := 0
	for i := int(q.WhereStart); i < q.Body.Len(); i++ {
		slot := q.Body.At(i)
		switch slot.Kind() {
		case pattern.KindTriple, pattern.KindMinusTriple:
			tf := slot.Triple()
			n++
			table := quadstore.SelectIndex(
				tf.Subject.Type != pattern.TermVariable,
				tf.Predicate.Type != pattern.TermVariable,
				tf.Object.Type != pattern.TermVariable,
				false,
			)
			kind := "scan"
			if tf.HasPath {
				kind = "path scan"
			}
			fmt.Fprintf(&b, "pattern %d: %s %s %s  [%s via %s]\n",
				n, termText(tf.Subject), termText(tf.Predicate), termText(tf.Object), kind, table)
		case pattern.KindFilter:
			f := slot.Filter()
			fmt.Fprintf(&b, "filter: %s\n", strings.TrimSpace(q.Source[f.Start:f.Start+f.Len]))
		case pattern.KindBind:
			bf := slot.Bind()
			fmt.Fprintf(&b, "bind: %s -> %s\n",
				strings.TrimSpace(q.Source[bf.ExprStart:bf.ExprStart+bf.ExprLen]),
				q.Source[bf.VarStart:bf.VarStart+bf.VarLen])
		case pattern.KindOptionalHeader:
			b.WriteString("optional group\n")
		case pattern.KindUnionHeader:
			b.WriteString("union\n")
		case pattern.KindMinusHeader:
			b.WriteString("minus group\n")
		case pattern.KindGraphHeader:
			b.WriteString("graph group\n")
		case pattern.KindServiceHeader:
			b.WriteString("service group\n")
		case pattern.KindValuesHeader:
			b.WriteString("values block\n")
		}
	}

	m := q.Modifier
	if len(m.GroupBy) > 0 {
		fmt.Fprintf(&b, "group by: %d keys\n", len(m.GroupBy))
	}
	if len(m.Having) > 0 {
		fmt.Fprintf(&b, "having: %d conditions\n", len(m.Having))
	}
	if len(m.OrderBy) > 0 {
		fmt.Fprintf(&b, "order by: %d keys\n", len(m.OrderBy))
	}
	if q.Distinct {
		b.WriteString("distinct\n")
	}
	if m.Offset > 0 {
		fmt.Fprintf(&b, "offset %d\n", m.Offset)
	}
	if m.Limit >= 0 {
		fmt.Fprintf(&b, "limit %d\n", m.Limit)
	}
	switch q.Temporal {
	case parser.TemporalAsOf:
		b.WriteString("temporal: as of\n")
	case parser.TemporalDuring:
		b.WriteString("temporal: during\n")
	case parser.TemporalAllVersions:
		b.WriteString("temporal: all versions\n")
	}
	return b.String(), nil
}
