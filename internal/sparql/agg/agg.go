// Package agg applies the post-join solution-modifier pipeline to the
// rows a scan plan produces, in this order: GROUP BY and the aggregate
// functions, HAVING, ORDER BY, projection, DISTINCT/REDUCED, and
// OFFSET/LIMIT. ORDER BY runs before projection so it can sort on
// variables the SELECT clause does not keep.
package agg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/sparql/filter"
	"github.com/mercurydb/mercury/internal/sparql/parser"
	"github.com/mercurydb/mercury/internal/sparql/scan"
)

// Row is one fully-materialized solution: the bound (variable, value)
// pairs captured from the binding table after a scan produced it.
type Row []pattern.BoundPair

// Run drains plan and applies the query's solution modifiers, returning
// the final result rows in output order.
func Run(ctx *scan.Context, plan scan.Scanner) ([]Row, error) {
	q := ctx.Query

	rows, err := collect(ctx, plan)
	if err != nil {
		return nil, err
	}

	aggProj := aggregateProjections(q)
	if len(q.Modifier.GroupBy) > 0 || len(aggProj) > 0 {
		rows, err = groupAndAggregate(ctx, rows, aggProj)
	} else {
		rows, err = applyComputedProjections(ctx, rows)
	}
	if err != nil {
		return nil, err
	}

	if len(q.Modifier.Having) > 0 {
		rows, err = applyHaving(ctx, rows)
		if err != nil {
			return nil, err
		}
	}

	if len(q.Modifier.OrderBy) > 0 {
		if err := orderRows(ctx, rows); err != nil {
			return nil, err
		}
	}

	rows = projectRows(ctx, rows)

	if q.Distinct {
		rows = dedupe(ctx, rows, false)
	} else if q.Reduced {
		rows = dedupe(ctx, rows, true)
	}

	return sliceRows(rows, q.Modifier.Offset, q.Modifier.Limit), nil
}

func collect(ctx *scan.Context, plan scan.Scanner) ([]Row, error) {
	var rows []Row
	for {
		ok, err := plan.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, Row(ctx.Table.Snapshot()))
	}
}

// restoreRow resets the binding table to exactly the given row.
func restoreRow(ctx *scan.Context, row Row) {
	ctx.Table.Reset()
	ctx.Table.Restore([]pattern.BoundPair(row))
}

// applyComputedProjections evaluates non-aggregate (expr AS ?alias)
// projection items per row and binds the alias.
func applyComputedProjections(ctx *scan.Context, rows []Row) ([]Row, error) {
	q := ctx.Query
	hasExpr := false
	for _, p := range q.Projection {
		if p.IsExpr {
			hasExpr = true
			break
		}
	}
	if !hasExpr {
		return rows, nil
	}
	ev := filter.NewEvaluator(ctx.Environment())
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		restoreRow(ctx, row)
		for _, p := range q.Projection {
			if !p.IsExpr {
				continue
			}
			src := q.Source[p.ExprStart : p.ExprStart+p.ExprLen]
			v, err := ev.EvalValue(src)
			if err != nil || v.Err != nil {
				continue // expression errors leave the alias unbound
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

func applyHaving(ctx *scan.Context, rows []Row) ([]Row, error) {
	q := ctx.Query
	ev := filter.NewEvaluator(ctx.Environment())
	out := rows[:0]
	for _, row := range rows {
		restoreRow(ctx, row)
		keep := true
		for _, h := range q.Modifier.Having {
			src := q.Source[h.Start : h.Start+h.Len]
			ok, err := ev.Eval(src)
			if err != nil {
				return nil, fmt.Errorf("agg: HAVING: %w", err)
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

// projectRows restricts each row to the projected variables. SELECT *
// (and projection-less ASK bodies) keep every binding.
func projectRows(ctx *scan.Context, rows []Row) []Row {
	q := ctx.Query
	if q.SelectAll || len(q.Projection) == 0 {
		return rows
	}
	keep := map[pattern.VarHash]bool{}
	for _, p := range q.Projection {
		if p.IsExpr {
			keep[p.ExprAliasVar] = true
		} else {
			keep[p.Var] = true
		}
	}
	out := make([]Row, len(rows))
	for i, row := range rows {
		pr := make(Row, 0, len(keep))
		for _, bp := range row {
			if keep[bp.Hash] {
				pr = append(pr, bp)
			}
		}
		out[i] = pr
	}
	return out
}

// rowKey builds a canonical identity string for a row from its bound
// values' canonical term encodings, for DISTINCT/REDUCED and GROUP BY.
func rowKey(ctx *scan.Context, row Row) (string, error) {
	sorted := make([]pattern.BoundPair, len(row))
	copy(sorted, row)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hash < sorted[j].Hash })
	var b strings.Builder
	for _, bp := range sorted {
		enc, err := ctx.ValueEncoding(bp.Value)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%d=%q;", bp.Hash, enc)
	}
	return b.String(), nil
}

func dedupe(ctx *scan.Context, rows []Row, adjacentOnly bool) []Row {
	if len(rows) == 0 {
		return rows
	}
	var out []Row
	seen := map[string]bool{}
	prev := ""
	for _, row := range rows {
		key, err := rowKey(ctx, row)
		if err != nil {
			out = append(out, row)
			continue
		}
		if adjacentOnly {
			if key == prev {
				continue
			}
			prev = key
		} else {
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, row)
	}
	return out
}

func sliceRows(rows []Row, offset, limit int) []Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// orderRows sorts rows by the query's ORDER BY conditions, evaluating each
// condition's expression once per row up front.
func orderRows(ctx *scan.Context, rows []Row) error {
	q := ctx.Query
	conds := q.Modifier.OrderBy
	keys := make([][]filter.Value, len(rows))
	ev := filter.NewEvaluator(ctx.Environment())
	for i, row := range rows {
		restoreRow(ctx, row)
		ks := make([]filter.Value, len(conds))
		for j, c := range conds {
			src := strings.TrimSpace(q.Source[c.ExprStart : c.ExprStart+c.ExprLen])
			v, err := ev.EvalValue(stripOuterParens(src))
			if err != nil {
				v = filter.Value{}
			}
			ks[j] = v
		}
		keys[i] = ks
	}
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		for j, c := range conds {
			cmp := compareValues(keys[idx[a]][j], keys[idx[b]][j])
			if cmp == 0 {
				continue
			}
			if c.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	sortedRows := make([]Row, len(rows))
	sortedKeys := make([][]filter.Value, len(rows))
	for i, j := range idx {
		sortedRows[i] = rows[j]
		sortedKeys[i] = keys[j]
	}
	copy(rows, sortedRows)
	copy(keys, sortedKeys)
	return nil
}

func stripOuterParens(s string) string {
	for len(s) > 1 && s[0] == '(' && s[len(s)-1] == ')' {
		depth := 0
		balanced := true
		for i := 0; i < len(s)-1; i++ {
			switch s[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				balanced = false
				break
			}
		}
		if !balanced {
			return s
		}
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// aggregateProjections returns the query's projection items that are
// aggregate calls, keyed by projection index.
func aggregateProjections(q *parser.Query) map[int]aggSpec {
	out := map[int]aggSpec{}
	for i, p := range q.Projection {
		if !p.IsExpr {
			continue
		}
		src := q.Source[p.ExprStart : p.ExprStart+p.ExprLen]
		if spec, ok := parseAggregate(src); ok {
			out[i] = spec
		}
	}
	return out
}
