package mercury

import (
	"context"
	"fmt"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/quadstore"
	"github.com/mercurydb/mercury/internal/rdfterm"
	"github.com/mercurydb/mercury/internal/sparql/agg"
	"github.com/mercurydb/mercury/internal/sparql/parser"
	"github.com/mercurydb/mercury/internal/sparql/scan"
	"github.com/mercurydb/mercury/internal/sparql/update"
	"github.com/mercurydb/mercury/pkg/rdf"
)

// Result carries the outcome of one query or update execution.
type Result struct {
	Type parser.QueryType

	// SELECT
	Vars []string
	Rows []map[string]rdf.Term

	// ASK
	Bool bool

	// CONSTRUCT / DESCRIBE
	Triples []*rdf.Triple

	// Updates
	Inserted int
	Deleted  int
}

// Query parses and executes a SPARQL query or update. The context cancels
// long executions between solutions.
func (db *DB) Query(ctx context.Context, src string) (*Result, error) {
	q, err := parser.NewParser(src).Parse()
	if err != nil {
		return nil, err
	}

	if q.Type == parser.QueryUpdate {
		ex := &update.Executor{Store: db.store, Atoms: db.atoms, Trigrams: db.trigrams}
		res, err := ex.Execute(q)
		if err != nil {
			return nil, err
		}
		return &Result{Type: q.Type, Inserted: res.Inserted, Deleted: res.Deleted}, nil
	}

	sctx := scan.NewContext(q, db.store, db.atoms, db.trigrams)
	defer sctx.Release()
	sctx.Service = db.svc
	sctx.Ctx = ctx

	var datasetIDs []atom.ID
	for _, iri := range q.Dataset {
		id, err := db.internTerm(rdf.NewNamedNode(iri))
		if err != nil {
			return nil, err
		}
		datasetIDs = append(datasetIDs, id)
	}
	plan, err := scan.BuildDatasetPlan(sctx, q.Body, datasetIDs)
	if err != nil {
		return nil, err
	}
	defer plan.Close()

	switch q.Type {
	case parser.QueryAsk:
		ok, err := plan.Next()
		if err != nil {
			return nil, err
		}
		return &Result{Type: q.Type, Bool: ok}, nil
	case parser.QueryConstruct:
		return db.construct(ctx, sctx, plan)
	case parser.QueryDescribe:
		return db.describe(ctx, sctx, plan)
	default:
		return db.selectRows(ctx, sctx, plan)
	}
}

// varNames maps every variable hash the query can bind to its lexical
// name: pattern variables, BIND/VALUES targets, and projection aliases.
func varNames(q *parser.Query) (map[pattern.VarHash]string, []string) {
	names := map[pattern.VarHash]string{}
	var order []string
	add := func(name string) {
		if name == "" {
			return
		}
		h := pattern.HashVar(name)
		if _, ok := names[h]; !ok {
			names[h] = name
			order = append(order, name)
		}
	}
	addTerm := func(t pattern.Term) {
		if t.Type == pattern.TermVariable && t.Start >= 0 {
			add(q.Source[t.Start+1 : t.Start+t.Len])
		}
	}
	for i := 0; i < q.Body.Len(); i++ {
		slot := q.Body.At(i)
		switch slot.Kind() {
		case pattern.KindTriple, pattern.KindMinusTriple:
			tf := slot.Triple()
			addTerm(tf.Subject)
			addTerm(tf.Predicate)
			addTerm(tf.Object)
		case pattern.KindBind:
			bf := slot.Bind()
			add(q.Source[bf.VarStart+1 : bf.VarStart+bf.VarLen])
		case pattern.KindValuesHeader:
			vh := slot.ValuesHeader()
			add(q.Source[vh.VarStart+1 : vh.VarStart+vh.VarLen])
		case pattern.KindGraphHeader:
			h := slot.GraphHeader()
			if h.TermType == pattern.TermVariable && h.TermStart >= 0 {
				add(q.Source[h.TermStart+1 : h.TermStart+h.TermLen])
			}
		}
	}
	for _, p := range q.Projection {
		if p.IsExpr {
			add(p.ExprAliasName)
		} else {
			add(p.VarName)
		}
	}
	return names, order
}

// projectedVarNames returns the output column names in declaration order.
func projectedVarNames(q *parser.Query, all []string) []string {
	if q.SelectAll || len(q.Projection) == 0 {
		return all
	}
	var out []string
	for _, p := range q.Projection {
		if p.IsExpr {
			out = append(out, p.ExprAliasName)
		} else {
			out = append(out, p.VarName)
		}
	}
	return out
}

func (db *DB) selectRows(ctx context.Context, sctx *scan.Context, plan scan.Scanner) (*Result, error) {
	q := sctx.Query
	rows, err := agg.Run(sctx, plan)
	if err != nil {
		return nil, err
	}
	names, order := varNames(q)
	res := &Result{Type: q.Type, Vars: projectedVarNames(q, order)}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := make(map[string]rdf.Term, len(row))
		for _, bp := range row {
			name, ok := names[bp.Hash]
			if !ok {
				continue // internal synthesized variable
			}
			term, err := db.decodeValue(sctx, bp.Value)
			if err != nil {
				return nil, err
			}
			m[name] = term
		}
		res.Rows = append(res.Rows, m)
	}
	return res, nil
}

func (db *DB) decodeValue(sctx *scan.Context, v pattern.Value) (rdf.Term, error) {
	enc, err := sctx.ValueEncoding(v)
	if err != nil {
		return nil, err
	}
	return rdfterm.Decode(enc)
}

// construct instantiates the CONSTRUCT template once per solution,
// deduplicating the produced triples.
func (db *DB) construct(ctx context.Context, sctx *scan.Context, plan scan.Scanner) (*Result, error) {
	q := sctx.Query
	rows, err := agg.Run(sctx, plan)
	if err != nil {
		return nil, err
	}
	res := &Result{Type: q.Type}
	seen := map[string]bool{}
	for rowIdx, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sctx.Table.Reset()
		sctx.Table.Restore([]pattern.BoundPair(row))
		for i := int(q.ConstructStart); i < int(q.ConstructEnd); i++ {
			slot := q.Body.At(i)
			if slot.Kind() != pattern.KindTriple {
				continue
			}
			tf := slot.Triple()
			s, okS, err := db.templateTerm(sctx, tf.Subject, rowIdx)
			if err != nil {
				return nil, err
			}
			p, okP, err := db.templateTerm(sctx, tf.Predicate, rowIdx)
			if err != nil {
				return nil, err
			}
			o, okO, err := db.templateTerm(sctx, tf.Object, rowIdx)
			if err != nil {
				return nil, err
			}
			if !okS || !okP || !okO {
				continue
			}
			t := rdf.NewTriple(s, p, o)
			key := t.String()
			if !seen[key] {
				seen[key] = true
				res.Triples = append(res.Triples, t)
			}
		}
	}
	return res, nil
}

// templateTerm resolves one CONSTRUCT-template position under the current
// row. Blank nodes are scoped per solution so each row mints its own.
func (db *DB) templateTerm(sctx *scan.Context, t pattern.Term, rowIdx int) (rdf.Term, bool, error) {
	if t.Type == pattern.TermBlankNode {
		return rdf.NewBlankNode(fmt.Sprintf("c%d_%s", rowIdx, sctx.TermText(t))), true, nil
	}
	id, ok, err := sctx.ResolveTemplateTerm(t)
	if err != nil || !ok {
		return nil, false, err
	}
	term, err := rdfterm.Decode(db.atoms.GetBytes(id))
	if err != nil {
		return nil, false, err
	}
	return term, true, nil
}

// describe emits every current statement about each resource the query's
// projected variables bind to.
func (db *DB) describe(ctx context.Context, sctx *scan.Context, plan scan.Scanner) (*Result, error) {
	q := sctx.Query
	rows, err := agg.Run(sctx, plan)
	if err != nil {
		return nil, err
	}
	res := &Result{Type: q.Type}
	described := map[atom.ID]bool{}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, bp := range row {
			enc, err := sctx.ValueEncoding(bp.Value)
			if err != nil {
				continue
			}
			if rdfterm.IsLiteral(enc) {
				continue
			}
			id := db.atoms.GetIdentifierID(enc)
			if id == 0 || described[id] {
				continue
			}
			described[id] = true
			if err := db.describeResource(id, res); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

func (db *DB) describeResource(id atom.ID, res *Result) error {
	en, err := db.store.Query(id, 0, 0, 0, quadstore.ModeCurrent, quadstore.Now(), 0, 0)
	if err != nil {
		return err
	}
	defer en.Close()
	for en.Next() {
		q := en.Quad()
		s, err := rdfterm.Decode(db.atoms.GetBytes(q.Subject))
		if err != nil {
			continue
		}
		p, err := rdfterm.Decode(db.atoms.GetBytes(q.Predicate))
		if err != nil {
			continue
		}
		o, err := rdfterm.Decode(db.atoms.GetBytes(q.Object))
		if err != nil {
			continue
		}
		res.Triples = append(res.Triples, rdf.NewTriple(s, p, o))
	}
	return nil
}
