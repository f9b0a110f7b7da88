package agg

import (
	"fmt"
	"strings"

	"github.com/mercurydb/mercury/internal/sparql/filter"
	"github.com/mercurydb/mercury/internal/sparql/scan"
	"github.com/mercurydb/mercury/pkg/rdf"
)

// aggSpec is one parsed aggregate call from a projection expression.
type aggSpec struct {
	fn       string // COUNT, SUM, AVG, MIN, MAX, GROUP_CONCAT, SAMPLE
	distinct bool
	star     bool   // COUNT(*)
	argSrc   string // argument expression text, empty for star
	sep      string // GROUP_CONCAT separator, defaults to " "
}

var aggregateNames = []string{"GROUP_CONCAT", "COUNT", "SUM", "AVG", "MIN", "MAX", "SAMPLE"}

// parseAggregate recognizes an aggregate call at the start of an
// expression span. Returns ok=false for any other expression.
func parseAggregate(src string) (aggSpec, bool) {
	s := strings.TrimSpace(src)
	upper := strings.ToUpper(s)
	for _, name := range aggregateNames {
		if !strings.HasPrefix(upper, name) {
			continue
		}
		rest := strings.TrimSpace(s[len(name):])
		if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
			continue
		}
		inner := strings.TrimSpace(rest[1 : len(rest)-1])
		spec := aggSpec{fn: name, sep: " "}
		if up := strings.ToUpper(inner); strings.HasPrefix(up, "DISTINCT") {
			spec.distinct = true
			inner = strings.TrimSpace(inner[len("DISTINCT"):])
		}
		if name == "GROUP_CONCAT" {
			if i := strings.IndexByte(inner, ';'); i >= 0 {
				tail := strings.TrimSpace(inner[i+1:])
				inner = strings.TrimSpace(inner[:i])
				if up := strings.ToUpper(tail); strings.HasPrefix(up, "SEPARATOR") {
					tail = strings.TrimSpace(tail[len("SEPARATOR"):])
					if strings.HasPrefix(tail, "=") {
						sep := strings.TrimSpace(tail[1:])
						spec.sep = strings.Trim(sep, `"'`)
					}
				}
			}
		}
		if inner == "*" {
			spec.star = true
		} else {
			spec.argSrc = inner
		}
		return spec, true
	}
	return aggSpec{}, false
}

// group collects the member rows sharing one GROUP BY key.
type group struct {
	rep  Row // first row seen, the source of group-key bindings
	rows []Row
}

// groupAndAggregate partitions rows by the GROUP BY key, computes each
// aggregate projection per group, and emits one output row per group with
// the aggregate aliases bound. With no GROUP BY clause all rows form a
// single implicit group (which exists even when the input is empty, so
// COUNT(*) over no rows yields 0).
func groupAndAggregate(ctx *scan.Context, rows []Row, aggProj map[int]aggSpec) ([]Row, error) {
	q := ctx.Query
	ev := filter.NewEvaluator(ctx.Environment())

	var order []string
	groups := map[string]*group{}
	if len(q.Modifier.GroupBy) == 0 {
		groups[""] = &group{rows: rows}
		if len(rows) > 0 {
			groups[""].rep = rows[0]
		}
		order = append(order, "")
	} else {
		for _, row := range rows {
			restoreRow(ctx, row)
			key, err := groupKey(ctx, ev)
			if err != nil {
				return nil, err
			}
			g, ok := groups[key]
			if !ok {
				g = &group{rep: row}
				groups[key] = g
				order = append(order, key)
			}
			g.rows = append(g.rows, row)
		}
	}

	var out []Row
	for _, key := range order {
		g := groups[key]

		results := make(map[int]rdf.Term, len(aggProj))
		for i, spec := range aggProj {
			term, bound, err := computeAggregate(ctx, ev, spec, g.rows)
			if err != nil {
				return nil, err
			}
			if bound {
				results[i] = term
			}
		}

		restoreRow(ctx, g.rep)
		for i, p := range q.Projection {
			if !p.IsExpr {
				continue
			}
			if term, ok := results[i]; ok {
				if err := ctx.BindTerm(p.ExprAliasName, term); err != nil {
					return nil, err
				}
				continue
			}
			if _, isAgg := aggProj[i]; isAgg {
				continue // aggregate evaluated to an error: alias stays unbound
			}
			src := q.Source[p.ExprStart : p.ExprStart+p.ExprLen]
			v, err := ev.EvalValue(src)
			if err != nil || v.Err != nil {
				continue
			}
			term, err := scan.FilterValueToTerm(v)
			if err != nil {
				continue
			}
			if err := ctx.BindTerm(p.ExprAliasName, term); err != nil {
				return nil, err
			}
		}
		out = append(out, Row(ctx.Table.Snapshot()))
	}
	return out, nil
}

// groupKey derives the GROUP BY key for the row currently in the binding
// table: the canonical encoding of each bare group variable, or the
// evaluated value of each group expression.
func groupKey(ctx *scan.Context, ev *filter.Evaluator) (string, error) {
	q := ctx.Query
	var b strings.Builder
	for _, c := range q.Modifier.GroupBy {
		if c.Var != 0 {
			v, bound := ctx.Table.Lookup(c.Var)
			if !bound {
				b.WriteString("~;")
				continue
			}
			enc, err := ctx.ValueEncoding(v)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%q;", enc)
			continue
		}
		src := q.Source[c.ExprStart : c.ExprStart+c.ExprLen]
		v, err := ev.EvalValue(stripOuterParens(src))
		if err != nil || v.Err != nil {
			b.WriteString("!;")
			continue
		}
		fmt.Fprintf(&b, "%d:%q:%q:%q;", v.Kind, v.Lexical, v.Lang, v.Datatype)
	}
	return b.String(), nil
}

// computeAggregate folds one aggregate over a group's member rows.
// bound=false means the aggregate produced no value (e.g. MIN over an
// empty group) and its alias must stay unbound.
func computeAggregate(ctx *scan.Context, ev *filter.Evaluator, spec aggSpec, members []Row) (rdf.Term, bool, error) {
	var (
		count    int64
		sum      float64
		allInts  = true
		haveBest bool
		best     filter.Value
		parts    []string
		sample   filter.Value
		haveSamp bool
		seen     map[string]bool
	)
	if spec.distinct {
		seen = map[string]bool{}
	}

	for _, row := range members {
		restoreRow(ctx, row)
		if spec.star {
			count++
			continue
		}
		v, err := ev.EvalValue(spec.argSrc)
		if err != nil || v.Err != nil || v.Kind == filter.KindUnbound {
			continue
		}
		if spec.distinct {
			key := fmt.Sprintf("%d:%q:%q:%q", v.Kind, v.Lexical, v.Lang, v.Datatype)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		count++
		switch spec.fn {
		case "SUM", "AVG":
			sum += v.Num
			if !v.IsInt {
				allInts = false
			}
		case "MIN":
			if !haveBest || compareValues(v, best) < 0 {
				best, haveBest = v, true
			}
		case "MAX":
			if !haveBest || compareValues(v, best) > 0 {
				best, haveBest = v, true
			}
		case "GROUP_CONCAT":
			parts = append(parts, v.Lexical)
		case "SAMPLE":
			if !haveSamp {
				sample, haveSamp = v, true
			}
		}
	}

	switch spec.fn {
	case "COUNT":
		return rdf.NewIntegerLiteral(count), true, nil
	case "SUM":
		if allInts {
			return rdf.NewIntegerLiteral(int64(sum)), true, nil
		}
		return rdf.NewDecimalLiteral(sum), true, nil
	case "AVG":
		if count == 0 {
			return rdf.NewIntegerLiteral(0), true, nil
		}
		avg := sum / float64(count)
		if allInts && avg == float64(int64(avg)) {
			return rdf.NewIntegerLiteral(int64(avg)), true, nil
		}
		return rdf.NewDecimalLiteral(avg), true, nil
	case "MIN", "MAX":
		if !haveBest {
			return nil, false, nil
		}
		term, err := scan.FilterValueToTerm(best)
		if err != nil {
			return nil, false, nil
		}
		return term, true, nil
	case "GROUP_CONCAT":
		return rdf.NewLiteral(strings.Join(parts, spec.sep)), true, nil
	case "SAMPLE":
		if !haveSamp {
			return nil, false, nil
		}
		term, err := scan.FilterValueToTerm(sample)
		if err != nil {
			return nil, false, nil
		}
		return term, true, nil
	default:
		return nil, false, fmt.Errorf("agg: unknown aggregate %s", spec.fn)
	}
}
